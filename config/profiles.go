package config

import (
	"context"
	"fmt"
	"os"
)

// LoadProfile returns a configuration preset for a named environment.
// Environment variables still override the profile values.
func LoadProfile(name string) (*Config, error) {
	cfg := DefaultConfig()

	switch Environment(name) {
	case EnvDevelopment:
		cfg.Environment = EnvDevelopment
		cfg.Logging.Level = "debug"
		cfg.Logging.Format = "text"
	case EnvTesting:
		cfg.Environment = EnvTesting
		cfg.Catalog.Adapter = "memory"
		cfg.Engine.Debounce = 0
	case EnvStaging:
		cfg.Environment = EnvStaging
	case EnvProduction:
		cfg.Environment = EnvProduction
		cfg.Logging.Level = "warn"
		cfg.Engine.Dispatch = "async"
	default:
		return nil, fmt.Errorf("unknown profile: %s", name)
	}
	cfg.Profile = name

	if err := loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// SecretStore resolves secrets (DSNs, passwords) outside the config file.
type SecretStore interface {
	Get(ctx context.Context, key string) (string, error)
	GetWithDefault(ctx context.Context, key, fallback string) string
}

// EnvironmentSecretStore reads secrets from process environment variables.
type EnvironmentSecretStore struct{}

// NewEnvironmentSecretStore creates an environment-backed secret store.
func NewEnvironmentSecretStore() *EnvironmentSecretStore {
	return &EnvironmentSecretStore{}
}

// Get returns the secret or an error when the variable is unset or empty.
func (s *EnvironmentSecretStore) Get(_ context.Context, key string) (string, error) {
	v := os.Getenv(key)
	if v == "" {
		return "", fmt.Errorf("secret %s not found in environment", key)
	}
	return v, nil
}

// GetWithDefault returns the secret or the fallback when unset.
func (s *EnvironmentSecretStore) GetWithDefault(_ context.Context, key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
