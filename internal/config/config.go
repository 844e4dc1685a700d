package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Env values recognised by the service. Production switches the session
// cookie to Secure + SameSite=None for cross-site frontends.
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Config contains server configuration parameters.
type Config struct {
	Addr          string        `env:"ADDR" envDefault:":8080"`
	Env           string        `env:"ENV" envDefault:"development"`
	PostgresDSN   string        `env:"PG_DSN"`
	AuthSecret    string        `env:"AUTH_SECRET"`
	SessionTTL    time.Duration `env:"SESSION_TTL" envDefault:"5h"`
	AllowOwnClaim bool          `env:"ALLOW_OWN_CLAIM" envDefault:"false"`
	CORSOrigins   []string      `env:"CORS_ORIGINS" envSeparator:","`
	RateBurst     int           `env:"RATE_BURST" envDefault:"20"`
	RatePerSec    int           `env:"RATE_PER_SEC" envDefault:"10"`
}

// Load parses configuration from FOODBRIDGE_-prefixed environment
// variables.
func Load() (*Config, error) {
	cfg := Config{}
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: "FOODBRIDGE_"}); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.AuthSecret == "" {
		return nil, fmt.Errorf("FOODBRIDGE_AUTH_SECRET is required")
	}
	if cfg.Env != EnvDevelopment && cfg.Env != EnvProduction {
		return nil, fmt.Errorf("unknown FOODBRIDGE_ENV %q", cfg.Env)
	}
	return &cfg, nil
}

// IsProduction reports whether the service runs with production cookie
// attributes.
func (c *Config) IsProduction() bool {
	return c.Env == EnvProduction
}
