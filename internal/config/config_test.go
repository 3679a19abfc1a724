package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("ARBUSCHAT_DATA_DIR", dir)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, dir, cfg.DataDir)
	assert.Equal(t, filepath.Join(dir, "logs"), cfg.LogDir)
	assert.Equal(t, DefaultEndpoint, cfg.Endpoint)
	assert.Equal(t, DefaultModel, cfg.Model)
	assert.Equal(t, DefaultMaxTokens, cfg.MaxTokens)
	assert.Equal(t, DefaultAPIVersion, cfg.APIVersion)
	assert.Equal(t, DefaultCredentialKey, cfg.CredentialKey)
	assert.Equal(t, 60*time.Second, cfg.RequestTimeout)
	assert.Equal(t, filepath.Join(dir, "arbuschat.db"), cfg.DatabasePath())
	assert.NoError(t, cfg.Validate())
}

func TestLoad_EnvFile(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	content := "ARBUSCHAT_DATA_DIR=" + dir + "\nARBUSCHAT_MODEL=claude-test\nARBUSCHAT_REQUEST_TIMEOUT=5s\n"
	require.NoError(t, os.WriteFile(envFile, []byte(content), 0o600))

	// godotenv never overrides variables that are already set, so make sure
	// the ones under test start out unset and are cleaned up afterwards.
	for _, key := range []string{"ARBUSCHAT_DATA_DIR", "ARBUSCHAT_MODEL", "ARBUSCHAT_REQUEST_TIMEOUT"} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}

	cfg, err := Load(envFile)
	require.NoError(t, err)
	assert.Equal(t, "claude-test", cfg.Model)
	assert.Equal(t, 5*time.Second, cfg.RequestTimeout)
	assert.Equal(t, dir, cfg.DataDir)
}

func TestLoad_MissingEnvFileIgnored(t *testing.T) {
	t.Setenv("ARBUSCHAT_DATA_DIR", t.TempDir())

	_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	assert.NoError(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "no timeout", mutate: func(c *Config) { c.RequestTimeout = 0 }},
		{name: "empty endpoint", mutate: func(c *Config) { c.Endpoint = "" }, wantErr: true},
		{name: "empty model", mutate: func(c *Config) { c.Model = "" }, wantErr: true},
		{name: "zero max tokens", mutate: func(c *Config) { c.MaxTokens = 0 }, wantErr: true},
		{name: "negative timeout", mutate: func(c *Config) { c.RequestTimeout = -time.Second }, wantErr: true},
		{name: "empty credential key", mutate: func(c *Config) { c.CredentialKey = "" }, wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default(t.TempDir())
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
