// Package config loads environment-driven configuration.
//
// All settings come from environment variables (optionally seeded from a .env
// file by the caller). Parsing uses struct tags so defaults and required
// fields live next to the field they describe instead of scattered Getenv
// calls.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// OAuthClient holds one provider's OAuth app credentials. Providers with an
// empty ClientID are treated as unconfigured: their flows fail with a clear
// configuration error instead of redirecting with undefined values.
type OAuthClient struct {
	ClientID     string `env:"CLIENT_ID"`
	ClientSecret string `env:"CLIENT_SECRET"`
	CallbackURL  string `env:"CALLBACK_URL"`
}

// Configured reports whether the provider can be used at all.
func (c OAuthClient) Configured() bool {
	return c.ClientID != "" && c.ClientSecret != "" && c.CallbackURL != ""
}

type Config struct {
	Env  string `env:"APP_ENV" envDefault:"development"` // development | production
	Port int    `env:"PORT" envDefault:"8080"`

	DBPath string `env:"DB_PATH" envDefault:"data/campushub.db"`

	// JWTSecret signs session tokens. Required: the server refuses to start
	// without it rather than falling back to a guessable default.
	JWTSecret string        `env:"JWT_SECRET,notEmpty"`
	TokenTTL  time.Duration `env:"TOKEN_TTL" envDefault:"168h"` // 7 days

	// AllowedOrigins is the allow-list for OAuth initiate redirect_uri values.
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000,http://localhost:5173"`

	// RedisAddr selects the handshake state store: set → Redis, empty → the
	// in-process store (single-instance deployments and tests).
	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	GitHub OAuthClient `envPrefix:"GH_"`
	Jira   OAuthClient `envPrefix:"JIRA_"`
}

// IsProduction controls cookie hardening (Secure + SameSite=Strict).
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Load parses configuration from the process environment.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &cfg, nil
}
