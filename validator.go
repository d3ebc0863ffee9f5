package tokenauth

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// Validator verifies bearer tokens produced by Issuer. It holds no mutable
// state and is safe for concurrent use.
type Validator struct {
	cfg     SigningConfig
	allowed Allowlist
	now     func() time.Time
}

// NewValidator builds a validator. The allowlist is re-checked on every call,
// so dropping a subject from it invalidates that subject's outstanding tokens.
func NewValidator(cfg SigningConfig, allowed Allowlist, opts ...Option) (*Validator, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	o := buildOptions(opts)
	return &Validator{cfg: cfg, allowed: allowed, now: o.now}, nil
}

// Validate verifies token and returns the caller principal. Failures are
// reported as *Error and are never retried.
func (v *Validator) Validate(token string) (*Principal, error) {
	parsed, err := v.decode(token)
	if err != nil {
		return nil, err
	}

	claims := extractClaims(parsed)
	switch {
	case claims.Subject == "":
		return nil, newError(ErrCodeMissingSubject, nil)
	case missingTime(claims.IssuedAt):
		return nil, newError(ErrCodeMissingIssuedAt, nil)
	case missingTime(claims.ExpiresAt):
		return nil, newError(ErrCodeMissingExpiry, nil)
	}

	if now := v.now(); claims.ExpiresAt.Unix() <= now.Unix() {
		return nil, newError(ErrCodeExpired, fmt.Errorf("expired at %s", claims.ExpiresAt.UTC().Format(time.RFC3339)))
	}

	if !v.allowed.Contains(claims.Subject) {
		return nil, newError(ErrCodeNotAuthorized, fmt.Errorf("subject %q not allowed", claims.Subject))
	}

	return &Principal{
		UserID:   claims.Subject,
		Email:    claims.Email,
		Role:     orDefault(claims.Role, DefaultRole),
		IssuedAt: claims.IssuedAt,
	}, nil
}

// decode checks the header algorithm and the HMAC signature. Temporal claims
// are validated by Validate itself, not by the jwt package.
func (v *Validator) decode(token string) (jwt.Token, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, newError(ErrCodeInvalidSignature, errors.New("token is empty"))
	}
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, newError(ErrCodeInvalidSignature, errors.New("token is not in compact form"))
	}
	// Non-canonical encodings are rejected; jws ignores the unused trailing bits.
	if _, err := base64.RawURLEncoding.Strict().DecodeString(parts[2]); err != nil {
		return nil, newError(ErrCodeInvalidSignature, fmt.Errorf("signature encoding: %w", err))
	}

	msg, err := jws.Parse([]byte(token))
	if err != nil {
		return nil, newError(ErrCodeInvalidSignature, err)
	}
	sigs := msg.Signatures()
	if len(sigs) != 1 {
		return nil, newError(ErrCodeInvalidSignature, fmt.Errorf("expected 1 signature, got %d", len(sigs)))
	}
	if alg := sigs[0].ProtectedHeaders().Algorithm(); alg != Algorithm {
		return nil, newError(ErrCodeInvalidSignature, fmt.Errorf("unexpected algorithm %q", alg))
	}

	parsed, err := jwt.Parse([]byte(token),
		jwt.WithKey(Algorithm, v.cfg.Secret),
		jwt.WithValidate(false),
	)
	if err != nil {
		return nil, newError(ErrCodeInvalidSignature, err)
	}
	return parsed, nil
}

func extractClaims(token jwt.Token) Claims {
	claims := Claims{
		Subject:   token.Subject(),
		IssuedAt:  token.IssuedAt(),
		ExpiresAt: token.Expiration(),
	}
	if v, ok := token.Get(claimEmail); ok {
		if s, ok := v.(string); ok {
			claims.Email = s
		}
	}
	if v, ok := token.Get(claimRole); ok {
		if s, ok := v.(string); ok {
			claims.Role = s
		}
	}
	return claims
}

// missingTime treats both an absent claim and a zero Unix value as missing.
func missingTime(t time.Time) bool {
	return t.IsZero() || t.Unix() == 0
}
