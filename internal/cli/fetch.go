package cli

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"golang.org/x/oauth2"

	"github.com/bionicotaku/lingo-utils-tokenauth"
)

type fetchCmd struct {
	Endpoint string        `kong:"name='endpoint',default='http://localhost:8080/v1/auth/token',help='issuance endpoint'"`
	UserID   string        `kong:"required,name='user-id',help='allowlisted subject'"`
	Email    string        `kong:"name='email',help='email claim'"`
	Role     string        `kong:"name='role',help='role claim'"`
	URL      string        `kong:"name='url',help='protected URL to GET with the fetched token'"`
	Timeout  time.Duration `kong:"name='timeout',default='10s',help='overall request timeout'"`
}

func (c *fetchCmd) Run(cfg *Config) error {
	ctx, cancel := context.WithTimeout(context.Background(), c.Timeout)
	defer cancel()

	provider := tokenauth.NewProvider(tokenauth.ProviderConfig{Endpoint: c.Endpoint})
	ts, err := provider.TokenSource(ctx, c.UserID, tokenauth.WithEmail(c.Email), tokenauth.WithRole(c.Role))
	if err != nil {
		return err
	}
	tok, err := ts.Token()
	if err != nil {
		return fmt.Errorf("fetch token: %w", err)
	}

	t := newTable(cfg.Out)
	t.AppendRows([]table.Row{
		{"AccessToken", tok.AccessToken},
		{"TokenType", tok.TokenType},
		{"Expiry", formatTime(tok.Expiry)},
	})

	if c.URL != "" {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL, nil)
		if err != nil {
			return err
		}
		res, err := oauth2.NewClient(ctx, ts).Do(req)
		if err != nil {
			return fmt.Errorf("get %s: %w", c.URL, err)
		}
		defer res.Body.Close()
		body, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
		if err != nil {
			return err
		}
		t.AppendRows([]table.Row{
			{"Status", res.Status},
			{"Body", string(body)},
		})
	}
	t.Render()
	return nil
}
