package tokenauth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

// IssuedAtLayout is the ISO-8601 layout used for issuedAt on the wire.
const IssuedAtLayout = "2006-01-02T15:04:05.000Z07:00"

// TokenFactory allows callers to override how tokens are minted.
type TokenFactory func(context.Context, ProviderParams) (oauth2.TokenSource, error)

// ProviderConfig defines where and how tokens are requested by default.
type ProviderConfig struct {
	// Endpoint is the full URL of the issuance route, e.g. http://localhost:8080/v1/auth/token.
	Endpoint     string
	HTTPClient   *http.Client
	Email        string
	Role         string
	TokenFactory TokenFactory
}

// ProviderParams identifies a single token request.
type ProviderParams struct {
	UserID string
	Email  string
	Role   string
}

// Provider mints tokens from a running issuance endpoint and caches one
// refreshing token source per (user, email, role).
type Provider struct {
	mu       sync.RWMutex
	factory  TokenFactory
	entries  map[ProviderParams]oauth2.TokenSource
	defaults ProviderParams
}

// TokenOption customizes a single Token call.
type TokenOption func(*ProviderParams)

// WithEmail overrides the email claim requested for the token.
func WithEmail(email string) TokenOption {
	return func(p *ProviderParams) {
		p.Email = email
	}
}

// WithRole overrides the role claim requested for the token.
func WithRole(role string) TokenOption {
	return func(p *ProviderParams) {
		p.Role = role
	}
}

// NewProvider constructs a Provider using the supplied defaults.
func NewProvider(cfg ProviderConfig) *Provider {
	factory := cfg.TokenFactory
	if factory == nil {
		factory = HTTPTokenFactory(cfg.Endpoint, cfg.HTTPClient)
	}
	return &Provider{
		factory: factory,
		entries: make(map[ProviderParams]oauth2.TokenSource),
		defaults: ProviderParams{
			Email: cfg.Email,
			Role:  cfg.Role,
		},
	}
}

// Token returns an access token for userID, minting a new one only when the
// cached one is missing or about to expire.
func (p *Provider) Token(ctx context.Context, userID string, opts ...TokenOption) (string, error) {
	ts, err := p.TokenSource(ctx, userID, opts...)
	if err != nil {
		return "", err
	}
	tok, err := ts.Token()
	if err != nil {
		return "", fmt.Errorf("fetch token: %w", err)
	}
	if tok.AccessToken == "" {
		return "", errors.New("empty access token returned")
	}
	return tok.AccessToken, nil
}

// TokenSource returns the cached token source for userID. It can be handed to
// oauth2.NewClient to authorize outgoing requests.
func (p *Provider) TokenSource(ctx context.Context, userID string, opts ...TokenOption) (oauth2.TokenSource, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, errors.New("user id is required")
	}
	params := p.defaults
	params.UserID = strings.TrimSpace(userID)
	for _, opt := range opts {
		opt(&params)
	}

	p.mu.RLock()
	ts, ok := p.entries[params]
	p.mu.RUnlock()
	if ok {
		return ts, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if ts, ok = p.entries[params]; ok {
		return ts, nil
	}
	src, err := p.factory(ctx, params)
	if err != nil {
		return nil, err
	}
	ts = oauth2.ReuseTokenSource(nil, src)
	p.entries[params] = ts
	return ts, nil
}

// IssueRequest is the issuance request body.
type IssueRequest struct {
	UserID string `json:"userId"`
	Email  string `json:"email,omitempty"`
	Role   string `json:"role,omitempty"`
}

// IssueResponse is the issuance response body.
type IssueResponse struct {
	AccessToken string `json:"accessToken"`
	TokenType   string `json:"tokenType"`
	ExpiresIn   string `json:"expiresIn"`
	IssuedAt    string `json:"issuedAt"`
	Usage       string `json:"usage"`
}

// HTTPTokenFactory returns a factory that POSTs to endpoint. The token expiry
// is derived from issuedAt and expiresIn in the response.
func HTTPTokenFactory(endpoint string, client *http.Client) TokenFactory {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return func(ctx context.Context, params ProviderParams) (oauth2.TokenSource, error) {
		if endpoint == "" {
			return nil, errors.New("token endpoint is required")
		}
		return &httpTokenSource{
			ctx:      context.WithoutCancel(ctx),
			endpoint: endpoint,
			client:   client,
			params:   params,
		}, nil
	}
}

type httpTokenSource struct {
	ctx      context.Context
	endpoint string
	client   *http.Client
	params   ProviderParams
}

func (s *httpTokenSource) Token() (*oauth2.Token, error) {
	body, err := json.Marshal(IssueRequest{UserID: s.params.UserID, Email: s.params.Email, Role: s.params.Role})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(s.ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<10))
		return nil, fmt.Errorf("token endpoint returned %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}
	var out IssueResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode token response: %w", err)
	}
	if out.AccessToken == "" {
		return nil, errors.New("response did not include accessToken")
	}
	return tokenFromResponse(out)
}

func tokenFromResponse(out IssueResponse) (*oauth2.Token, error) {
	tok := &oauth2.Token{AccessToken: out.AccessToken, TokenType: out.TokenType}
	issuedAt, err := time.Parse(IssuedAtLayout, out.IssuedAt)
	if err != nil {
		return nil, fmt.Errorf("parse issuedAt: %w", err)
	}
	lifetime, err := ParseLifetime(out.ExpiresIn)
	if err != nil {
		return nil, fmt.Errorf("parse expiresIn: %w", err)
	}
	tok.Expiry = issuedAt.Add(lifetime)
	return tok, nil
}
