package config

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	// Test loading default config
	cfg, err := Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	// Verify defaults
	assert.Equal(t, EnvDevelopment, cfg.Environment)
	assert.Equal(t, "memory", cfg.Catalog.Adapter)
	assert.Equal(t, 2, cfg.Engine.Rounding)
	assert.Equal(t, "sequential", cfg.Engine.CombineMode)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoadFromFile(t *testing.T) {
	// Create a temporary config file
	configContent := `{
		"environment": "testing",
		"catalog": {
			"adapter": "memory"
		},
		"engine": {
			"rounding": 3,
			"debounce": 0,
			"combine_mode": "additive",
			"dispatch": "sync"
		}
	}`

	tmpFile, err := os.CreateTemp("", "config_test_*.json")
	require.NoError(t, err)
	defer os.Remove(tmpFile.Name())

	_, err = tmpFile.WriteString(configContent)
	require.NoError(t, err)
	tmpFile.Close()

	// Load config from file
	cfg, err := LoadFromFile(tmpFile.Name())
	require.NoError(t, err)
	require.NotNil(t, cfg)

	// Verify loaded values
	assert.Equal(t, EnvTesting, cfg.Environment)
	assert.Equal(t, "memory", cfg.Catalog.Adapter)
	assert.Equal(t, 3, cfg.Engine.Rounding)
	assert.Equal(t, "additive", cfg.Engine.CombineMode)
}

func TestConfig_Validate(t *testing.T) {
	validEngine := EngineConfig{
		Rounding:    2,
		Debounce:    100 * time.Millisecond,
		CombineMode: "sequential",
		Dispatch:    "sync",
	}
	validLogging := LoggingConfig{
		Level:  "info",
		Format: "json",
		Output: "stdout",
	}

	tests := []struct {
		name        string
		config      *Config
		expectError bool
	}{
		{
			name: "valid config",
			config: &Config{
				Environment: EnvDevelopment,
				Catalog:     CatalogConfig{Adapter: "memory"},
				Engine:      validEngine,
				Logging:     validLogging,
			},
			expectError: false,
		},
		{
			name: "invalid environment",
			config: &Config{
				Environment: "",
				Catalog:     CatalogConfig{Adapter: "memory"},
				Engine:      validEngine,
				Logging:     validLogging,
			},
			expectError: true,
		},
		{
			name: "unknown catalog adapter",
			config: &Config{
				Environment: EnvDevelopment,
				Catalog:     CatalogConfig{Adapter: "cassandra"},
				Engine:      validEngine,
				Logging:     validLogging,
			},
			expectError: true,
		},
		{
			name: "sql adapter without dsn",
			config: &Config{
				Environment: EnvDevelopment,
				Catalog:     CatalogConfig{Adapter: "sql"},
				Engine:      validEngine,
				Logging:     validLogging,
			},
			expectError: true,
		},
		{
			name: "bad combine mode",
			config: &Config{
				Environment: EnvDevelopment,
				Catalog:     CatalogConfig{Adapter: "memory"},
				Engine: EngineConfig{
					Rounding:    2,
					CombineMode: "multiplicative",
					Dispatch:    "sync",
				},
				Logging: validLogging,
			},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestProfiles(t *testing.T) {
	tests := []struct {
		name         string
		profileName  string
		expectConfig bool
		environment  Environment
	}{
		{"development", "development", true, EnvDevelopment},
		{"testing", "testing", true, EnvTesting},
		{"staging", "staging", true, EnvStaging},
		{"production", "production", true, EnvProduction},
		{"unknown", "unknown", false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := LoadProfile(tt.profileName)
			if tt.expectConfig {
				require.NoError(t, err)
				require.NotNil(t, cfg)
				assert.Equal(t, tt.environment, cfg.Environment)
			} else {
				assert.Error(t, err)
				assert.Nil(t, cfg)
			}
		})
	}
}

func TestEnvOverride(t *testing.T) {
	os.Setenv("PROMOKIT_CATALOG_ADAPTER", "file")
	os.Setenv("PROMOKIT_CATALOG_FILE_PATH", "./catalog.json")
	defer os.Unsetenv("PROMOKIT_CATALOG_ADAPTER")
	defer os.Unsetenv("PROMOKIT_CATALOG_FILE_PATH")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "file", cfg.Catalog.Adapter)
	assert.Equal(t, "./catalog.json", cfg.Catalog.File.Path)
}

func TestEnvOverrideTypedFields(t *testing.T) {
	os.Setenv("PROMOKIT_ENGINE_ROUNDING", "3")
	os.Setenv("PROMOKIT_ENGINE_DEBOUNCE", "150ms")
	defer os.Unsetenv("PROMOKIT_ENGINE_ROUNDING")
	defer os.Unsetenv("PROMOKIT_ENGINE_DEBOUNCE")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Engine.Rounding)
	assert.Equal(t, 150*time.Millisecond, cfg.Engine.Debounce)
}

func TestEnvOverrideRejectsBadValues(t *testing.T) {
	os.Setenv("PROMOKIT_ENGINE_DEBOUNCE", "soon")
	defer os.Unsetenv("PROMOKIT_ENGINE_DEBOUNCE")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PROMOKIT_ENGINE_DEBOUNCE")
}

func TestSecrets(t *testing.T) {
	// Test environment secret store
	store := NewEnvironmentSecretStore()

	// Set test environment variable
	testKey := "TEST_SECRET_KEY"
	testValue := "test_secret_value"
	os.Setenv(testKey, testValue)
	defer os.Unsetenv(testKey)

	ctx := context.Background()

	// Test Get
	value, err := store.Get(ctx, testKey)
	assert.NoError(t, err)
	assert.Equal(t, testValue, value)

	// Test GetWithDefault
	defaultValue := "default"
	value = store.GetWithDefault(ctx, "NONEXISTENT_KEY", defaultValue)
	assert.Equal(t, defaultValue, value)

	value = store.GetWithDefault(ctx, testKey, defaultValue)
	assert.Equal(t, testValue, value)
}

func TestValidateConfigPath(t *testing.T) {
	tests := []struct {
		name        string
		path        string
		expectError bool
		setup       func() string // returns path to cleanup
	}{
		{
			name:        "valid json file",
			path:        "config_test.json",
			expectError: false,
			setup: func() string {
				tmpFile, _ := os.CreateTemp("", "config_test_*.json")
				tmpFile.WriteString("{}")
				tmpFile.Close()
				return tmpFile.Name()
			},
		},
		{
			name:        "empty path",
			path:        "",
			expectError: true,
			setup:       func() string { return "" },
		},
		{
			name:        "path traversal",
			path:        "../../../etc/passwd",
			expectError: true,
			setup:       func() string { return "" },
		},
		{
			name:        "non-json file",
			path:        "config.txt",
			expectError: true,
			setup: func() string {
				tmpFile, _ := os.CreateTemp("", "config_test_*.txt")
				tmpFile.WriteString("{}")
				tmpFile.Close()
				return tmpFile.Name()
			},
		},
		{
			name:        "nonexistent file",
			path:        "nonexistent.json",
			expectError: true,
			setup:       func() string { return "" },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cleanupPath := tt.setup()
			if cleanupPath != "" {
				defer os.Remove(cleanupPath)
				if tt.path == "config_test.json" || tt.path == "config.txt" {
					tt.path = cleanupPath
				}
			}

			err := validateConfigPath(tt.path)
			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
