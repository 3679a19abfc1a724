package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v9"
	"github.com/joho/godotenv"
)

const (
	DefaultEndpoint      = "https://api.anthropic.com/v1/messages"
	DefaultModel         = "claude-3-opus-20240229"
	DefaultMaxTokens     = 1024
	DefaultAPIVersion    = "2023-06-01"
	DefaultCredentialKey = "anthropic-api-key"
)

// Config holds application configuration
type Config struct {
	DataDir string `env:"DATA_DIR"`
	LogDir  string `env:"LOG_DIR"`
	Debug   bool   `env:"DEBUG"`
	Plain   bool   `env:"PLAIN"` // Print assistant replies without markdown rendering

	// Anthropic Messages API
	Endpoint       string        `env:"ENDPOINT" envDefault:"https://api.anthropic.com/v1/messages"`
	Model          string        `env:"MODEL" envDefault:"claude-3-opus-20240229"`
	MaxTokens      int           `env:"MAX_TOKENS" envDefault:"1024"`
	APIVersion     string        `env:"API_VERSION" envDefault:"2023-06-01"`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" envDefault:"60s"` // 0 waits for the transport defaults

	CredentialKey string `env:"CREDENTIAL_KEY" envDefault:"anthropic-api-key"` // settings row holding the API key
}

// Load reads ARBUSCHAT_* variables from the environment, after loading
// envFile into it when the file exists.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("failed to load env file %s: %w", envFile, err)
		}
	}

	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: "ARBUSCHAT_"}); err != nil {
		return Config{}, fmt.Errorf("failed to parse env config: %w", err)
	}

	if cfg.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return Config{}, fmt.Errorf("failed to resolve home directory: %w", err)
		}
		cfg.DataDir = filepath.Join(home, ".arbuschat")
	}
	if cfg.LogDir == "" {
		cfg.LogDir = filepath.Join(cfg.DataDir, "logs")
	}

	return cfg, nil
}

// Default returns the built-in configuration rooted at dataDir.
func Default(dataDir string) Config {
	return Config{
		DataDir:        dataDir,
		LogDir:         filepath.Join(dataDir, "logs"),
		Endpoint:       DefaultEndpoint,
		Model:          DefaultModel,
		MaxTokens:      DefaultMaxTokens,
		APIVersion:     DefaultAPIVersion,
		RequestTimeout: 60 * time.Second,
		CredentialKey:  DefaultCredentialKey,
	}
}

// DatabasePath is the sqlite file holding persisted settings.
func (c Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "arbuschat.db")
}

// Validate checks the values a request depends on.
func (c Config) Validate() error {
	switch {
	case c.Endpoint == "":
		return errors.New("endpoint must not be empty")
	case c.Model == "":
		return errors.New("model must not be empty")
	case c.MaxTokens <= 0:
		return fmt.Errorf("max tokens must be positive, got %d", c.MaxTokens)
	case c.RequestTimeout < 0:
		return fmt.Errorf("request timeout must not be negative, got %s", c.RequestTimeout)
	case c.CredentialKey == "":
		return errors.New("credential key must not be empty")
	}
	return nil
}
