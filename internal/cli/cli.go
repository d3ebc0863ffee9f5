package cli

import (
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/bionicotaku/lingo-utils-tokenauth"
	"github.com/bionicotaku/lingo-utils-tokenauth/internal/config"
)

// Config is passed to every command's Run.
type Config struct {
	EnvFile string
	Out     io.Writer
}

// CLI is the kong command tree for cmd/tokenauth.
var CLI struct {
	EnvFile string `kong:"name='env-file',default='.env',help='dotenv file loaded before reading the environment'"`

	Serve    serveCmd    `kong:"cmd,help='run the token service'"`
	Issue    issueCmd    `kong:"cmd,help='issue a token with the local configuration'"`
	Validate validateCmd `kong:"cmd,help='validate a token with the local configuration'"`
	Fetch    fetchCmd    `kong:"cmd,help='fetch a token from a running service'"`
}

type services struct {
	conf      *config.Config
	issuer    *tokenauth.Issuer
	validator *tokenauth.Validator
}

func loadServices(envFile string, opts ...tokenauth.Option) (*services, error) {
	conf, err := config.Load(envFile)
	if err != nil {
		return nil, err
	}
	signing, err := conf.Signing()
	if err != nil {
		return nil, err
	}
	allowed := conf.Allowlist()
	issuer, err := tokenauth.NewIssuer(signing, allowed, opts...)
	if err != nil {
		return nil, err
	}
	validator, err := tokenauth.NewValidator(signing, allowed, opts...)
	if err != nil {
		return nil, err
	}
	return &services{conf: conf, issuer: issuer, validator: validator}, nil
}

func newTable(out io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.AppendHeader(table.Row{"Field", "Value"})
	return t
}

func formatTime(ts time.Time) string {
	return ts.UTC().Format(tokenauth.IssuedAtLayout)
}
