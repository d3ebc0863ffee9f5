package tokenauth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
)

const (
	// Algorithm is the only signature algorithm issued or accepted.
	Algorithm = jwa.HS256

	// MinSecretLength is the minimum signing secret size in bytes.
	MinSecretLength = 32

	DefaultExpiresIn = "7d"
	DefaultEmail     = "local-test@example.com"
	DefaultRole      = "user"
	TokenType        = "Bearer"
)

// SigningConfig holds the process-wide signing parameters. Build it once at
// startup with NewSigningConfig and share it by value; it is never mutated.
type SigningConfig struct {
	Secret    []byte
	Lifetime  time.Duration
	ExpiresIn string
}

// NewSigningConfig validates the secret and parses the lifetime string.
// An empty expiresIn falls back to DefaultExpiresIn.
func NewSigningConfig(secret, expiresIn string) (SigningConfig, error) {
	cfg := SigningConfig{
		Secret:    []byte(secret),
		ExpiresIn: strings.TrimSpace(expiresIn),
	}
	cfg.normalize()
	lifetime, err := ParseLifetime(cfg.ExpiresIn)
	if err != nil {
		return SigningConfig{}, fmt.Errorf("jwt expires in: %w", err)
	}
	cfg.Lifetime = lifetime
	if err := cfg.validate(); err != nil {
		return SigningConfig{}, err
	}
	return cfg, nil
}

// normalize sets default values for optional fields.
func (c *SigningConfig) normalize() {
	if c.ExpiresIn == "" {
		c.ExpiresIn = DefaultExpiresIn
	}
}

// validate ensures the signing configuration is usable.
func (c SigningConfig) validate() error {
	switch {
	case len(c.Secret) == 0:
		return errors.New("jwt secret is required")
	case len(c.Secret) < MinSecretLength:
		return fmt.Errorf("jwt secret must be at least %d characters long", MinSecretLength)
	case c.Lifetime < time.Second:
		return fmt.Errorf("token lifetime must be at least 1s, got %v", c.Lifetime)
	}
	return nil
}
