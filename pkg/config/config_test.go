package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, ProviderAnthropic, cfg.Model.Provider)
	assert.Equal(t, DefaultMaxRepairRounds, cfg.Verify.MaxRepairRounds)
}

func TestValidateRejectsBadConfigs(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"wrong schema", func(c *Config) { c.SchemaVersion = 99 }},
		{"unknown provider", func(c *Config) { c.Model.Provider = "mystery" }},
		{"missing model name", func(c *Config) { c.Model.Name = "" }},
		{"zero context budget", func(c *Config) { c.Model.MaxContextTokens = 0 }},
		{"zero poll interval", func(c *Config) { c.Verify.PollIntervalSeconds = 0 }},
		{"negative repair rounds", func(c *Config) { c.Verify.MaxRepairRounds = -1 }},
		{"empty branch prefix", func(c *Config) { c.Git.BranchPrefix = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadConfigDefaultsWhenMissing(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, LoadConfig(dir))

	cfg, err := GetConfig()
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
	assert.Equal(t, dir, ProjectDir())
}

func TestSaveAndLoadConfigRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.Model.Provider = ProviderOpenAI
	cfg.Model.Name = "gpt-4o"
	cfg.Verify.MaxRepairRounds = 3

	require.NoError(t, SaveConfig(dir, &cfg))
	require.NoError(t, LoadConfig(dir))

	loaded, err := GetConfig()
	require.NoError(t, err)
	assert.Equal(t, ProviderOpenAI, loaded.Model.Provider)
	assert.Equal(t, 3, loaded.Verify.MaxRepairRounds)
}

func TestLoadConfigRejectsCorruptFile(t *testing.T) {
	dir := t.TempDir()
	configDir := filepath.Join(dir, ConfigDirName)
	require.NoError(t, os.MkdirAll(configDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(configDir, configFileName), []byte("{not json"), 0644))

	assert.Error(t, LoadConfig(dir))
}
