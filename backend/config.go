package backend

import (
	"context"
	"time"

	"github.com/go-playground/errors/v5"
	"github.com/sethvargo/go-envconfig"
)

// Config holds connection settings for the hosted backend.
type Config struct {
	BaseURL         string        `env:"BACKEND_URL, required"`
	APIKey          string        `env:"BACKEND_API_KEY, required"`
	Timeout         time.Duration `env:"BACKEND_TIMEOUT, default=10s"`
	ProfileRelation string        `env:"BACKEND_PROFILE_RELATION, default=profiles"`
	RoleRelation    string        `env:"BACKEND_ROLE_RELATION, default=user_roles"`
}

// LoadConfig reads the backend configuration from environment variables.
func LoadConfig(ctx context.Context) (*Config, error) {
	cfg := &Config{}
	if err := envconfig.Process(ctx, cfg); err != nil {
		return nil, errors.Wrap(err, "envconfig.Process()")
	}

	return cfg, nil
}
