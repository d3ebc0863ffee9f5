package tokenauth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwt"
)

// Option customizes an Issuer or Validator.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Issuer signs tokens for allowlisted subjects. It holds no mutable state and
// is safe for concurrent use.
type Issuer struct {
	cfg     SigningConfig
	allowed Allowlist
	now     func() time.Time
}

// NewIssuer builds an issuer. cfg must come from NewSigningConfig.
func NewIssuer(cfg SigningConfig, allowed Allowlist, opts ...Option) (*Issuer, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	o := buildOptions(opts)
	return &Issuer{cfg: cfg, allowed: allowed, now: o.now}, nil
}

// Issue signs a token for subject. Empty email and role fall back to
// DefaultEmail and DefaultRole. Subjects outside the allowlist get an *Error
// with ErrCodeNotAllowlisted.
func (i *Issuer) Issue(subject, email, role string) (*IssuedToken, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return nil, newError(ErrCodeNotAllowlisted, errors.New("subject is empty"))
	}
	if !i.allowed.Contains(subject) {
		return nil, newError(ErrCodeNotAllowlisted, fmt.Errorf("subject %q not allowlisted", subject))
	}

	issuedAt := time.Unix(i.now().Unix(), 0).UTC()
	claims := Claims{
		Subject:   subject,
		Email:     orDefault(email, DefaultEmail),
		Role:      orDefault(role, DefaultRole),
		IssuedAt:  issuedAt,
		ExpiresAt: issuedAt.Add(i.cfg.Lifetime),
	}

	signed, err := i.sign(claims)
	if err != nil {
		return nil, err
	}
	return &IssuedToken{
		AccessToken: signed,
		TokenType:   TokenType,
		ExpiresIn:   i.cfg.ExpiresIn,
		Lifetime:    i.cfg.Lifetime,
		IssuedAt:    issuedAt,
		Claims:      claims,
	}, nil
}

func (i *Issuer) sign(c Claims) (string, error) {
	token, err := jwt.NewBuilder().
		Subject(c.Subject).
		IssuedAt(c.IssuedAt).
		Expiration(c.ExpiresAt).
		Claim(claimEmail, c.Email).
		Claim(claimRole, c.Role).
		Build()
	if err != nil {
		return "", fmt.Errorf("build token: %w", err)
	}
	signed, err := jwt.Sign(token, jwt.WithKey(Algorithm, i.cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return string(signed), nil
}

func orDefault(v, fallback string) string {
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	return fallback
}
