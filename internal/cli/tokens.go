package cli

import (
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/bionicotaku/lingo-utils-tokenauth"
)

type issueCmd struct {
	UserID string `kong:"required,name='user-id',help='allowlisted subject'"`
	Email  string `kong:"name='email',help='email claim, defaults to local-test@example.com'"`
	Role   string `kong:"name='role',help='role claim, defaults to user'"`
}

func (c *issueCmd) Run(cfg *Config) error {
	svc, err := loadServices(cfg.EnvFile)
	if err != nil {
		return err
	}
	tok, err := svc.issuer.Issue(c.UserID, c.Email, c.Role)
	if err != nil {
		return err
	}
	t := newTable(cfg.Out)
	t.AppendRows([]table.Row{
		{"AccessToken", tok.AccessToken},
		{"TokenType", tok.TokenType},
		{"ExpiresIn", tok.ExpiresIn},
		{"IssuedAt", formatTime(tok.IssuedAt)},
		{"ExpiresAt", formatTime(tok.ExpiresAt())},
		{"Subject", tok.Claims.Subject},
		{"Email", tok.Claims.Email},
		{"Role", tok.Claims.Role},
	})
	t.Render()
	return nil
}

type validateCmd struct {
	Token string `kong:"arg,required,help='signed token'"`
}

// Run prints the principal, or the failure code before returning the error.
func (c *validateCmd) Run(cfg *Config) error {
	svc, err := loadServices(cfg.EnvFile)
	if err != nil {
		return err
	}
	p, err := svc.validator.Validate(c.Token)
	t := newTable(cfg.Out)
	if err != nil {
		t.AppendRows([]table.Row{
			{"Valid", false},
			{"Code", tokenauth.CodeOf(err)},
		})
		t.Render()
		return err
	}
	t.AppendRows([]table.Row{
		{"Valid", true},
		{"UserID", p.UserID},
		{"Email", p.Email},
		{"Role", p.Role},
		{"IssuedAt", formatTime(p.IssuedAt)},
	})
	t.Render()
	return nil
}
