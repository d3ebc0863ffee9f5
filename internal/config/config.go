// Package config loads service configuration from the environment.
//
// An optional .env file is read first; variables already present in the
// environment win. Parsing is done by caarlos0/env into Config.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/bionicotaku/lingo-utils-tokenauth"
)

const EnvProduction = "production"

type Config struct {
	App      AppConfig
	JWT      JWTConfig
	Security SecurityConfig
	Redis    RedisConfig
}

type AppConfig struct {
	Env           string `env:"APP_ENV" envDefault:"development"`
	Port          int    `env:"PORT" envDefault:"8080"`
	Version       string `env:"API_VERSION" envDefault:"1"`
	VersionPrefix string `env:"API_VERSION_PREFIX" envDefault:"v"`
	LogLevel      string `env:"LOG_LEVEL" envDefault:"info"`
}

type JWTConfig struct {
	Secret       string   `env:"JWT_SECRET"`
	ExpiresIn    string   `env:"JWT_EXPIRES_IN" envDefault:"7d"`
	AllowedUsers []string `env:"AUTH_ALLOWED_USERS" envDefault:"local-admin,test-user" envSeparator:","`
}

type SecurityConfig struct {
	CORSOrigins []string `env:"CORS_ORIGINS" envDefault:"http://localhost:3000" envSeparator:","`
	TrustProxy  bool     `env:"TRUST_PROXY" envDefault:"false"`
	RateLimit   RateLimitConfig
}

// RateLimitConfig mirrors the three global throttlers plus the issuance
// override. TTL values are milliseconds.
type RateLimitConfig struct {
	ShortTTL    int `env:"RATE_LIMIT_SHORT_TTL" envDefault:"1000"`
	ShortLimit  int `env:"RATE_LIMIT_SHORT_LIMIT" envDefault:"3"`
	MediumTTL   int `env:"RATE_LIMIT_MEDIUM_TTL" envDefault:"10000"`
	MediumLimit int `env:"RATE_LIMIT_MEDIUM_LIMIT" envDefault:"20"`
	LongTTL     int `env:"RATE_LIMIT_LONG_TTL" envDefault:"60000"`
	LongLimit   int `env:"RATE_LIMIT_LONG_LIMIT" envDefault:"100"`
	TokenTTL    int `env:"RATE_LIMIT_TOKEN_TTL" envDefault:"60000"`
	TokenLimit  int `env:"RATE_LIMIT_TOKEN_LIMIT" envDefault:"3"`
}

type RedisConfig struct {
	URL string `env:"REDIS_URL"`
}

// Load reads envFile (when non-empty and present) and parses the environment.
// It fails when the JWT settings cannot produce a valid signing config.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if _, err := c.Signing(); err != nil {
		return err
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		return fmt.Errorf("invalid PORT %d", c.App.Port)
	}
	for name, t := range c.Security.RateLimit.throttlers() {
		if t.limit <= 0 || t.ttl <= 0 {
			return fmt.Errorf("rate limit %s: ttl and limit must be positive", name)
		}
	}
	return nil
}

// Signing builds the validated signing configuration.
func (c *Config) Signing() (tokenauth.SigningConfig, error) {
	return tokenauth.NewSigningConfig(c.JWT.Secret, c.JWT.ExpiresIn)
}

// Allowlist returns the configured allowlist.
func (c *Config) Allowlist() tokenauth.Allowlist {
	return tokenauth.NewAllowlist(c.JWT.AllowedUsers...)
}

// IsProduction reports whether APP_ENV is production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.App.Env, EnvProduction)
}

// RoutePrefix returns the URI version prefix, e.g. "/v1".
func (c *Config) RoutePrefix() string {
	if c.App.Version == "" {
		return ""
	}
	return "/" + c.App.VersionPrefix + c.App.Version
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

type throttle struct {
	ttl   time.Duration
	limit int
}

func (r RateLimitConfig) throttlers() map[string]throttle {
	ms := func(v int) time.Duration { return time.Duration(v) * time.Millisecond }
	return map[string]throttle{
		"short":  {ms(r.ShortTTL), r.ShortLimit},
		"medium": {ms(r.MediumTTL), r.MediumLimit},
		"long":   {ms(r.LongTTL), r.LongLimit},
		"token":  {ms(r.TokenTTL), r.TokenLimit},
	}
}

// Window returns the named throttler window and limit. Known names are
// short, medium, long and token.
func (r RateLimitConfig) Window(name string) (time.Duration, int) {
	t := r.throttlers()[name]
	return t.ttl, t.limit
}
