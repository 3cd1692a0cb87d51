// Package config provides configuration loading, validation, and secrets
// management for autopatch.
//
// Three layers, strictly separated:
//
//  1. Orchestrator config: system-wide settings (models, verification
//     budgets, telemetry endpoints) stored in .autopatch/config.json.
//     Loaded once at startup into a global singleton protected by a mutex;
//     GetConfig returns it BY VALUE so callers cannot mutate shared state.
//  2. Secrets: API keys and the GitHub token, stored encrypted in
//     .autopatch/secrets.json.enc (see secrets.go) with env-var fallback.
//  3. Repository policy: per-repo autopatch.yaml committed to the target
//     repository (see policy.go). Owned by the repo, not the operator.
//
// Run state (attempt counts, commit SHAs, timings) never lives here; it
// belongs to the persistence layer.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"autopatch/pkg/logx"
)

// ConfigDirName is the per-project directory holding config and secrets.
const ConfigDirName = ".autopatch"

const configFileName = "config.json"

// SchemaVersion must be incremented on any breaking config change.
const SchemaVersion = 1

// Provider identifiers for synthesizer backends.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderGoogle    = "google"
	ProviderOllama    = "ollama"
)

// Defaults for the verification loop. These mirror the upstream CI policy:
// poll every 15s, give up after an hour, repair at most 5 times.
const (
	DefaultPollIntervalSeconds = 15
	DefaultPollBudgetMinutes   = 60
	DefaultMaxRepairRounds     = 5
)

// ModelConfig selects the synthesizer backend and its budgets.
type ModelConfig struct {
	Provider         string  `json:"provider"`           // anthropic, openai, google, ollama
	Name             string  `json:"name"`               // provider-specific model name
	MaxContextTokens int     `json:"max_context_tokens"` // per-file synthesis context ceiling
	MaxOutputTokens  int     `json:"max_output_tokens"`
	CpmTokensIn      float64 `json:"cpm_tokens_in"`  // USD per million prompt tokens
	CpmTokensOut     float64 `json:"cpm_tokens_out"` // USD per million completion tokens
}

// VerifyConfig bounds the CI verification loop.
type VerifyConfig struct {
	PollIntervalSeconds int `json:"poll_interval_seconds"`
	PollBudgetMinutes   int `json:"poll_budget_minutes"`
	MaxRepairRounds     int `json:"max_repair_rounds"`
}

// GitConfig names the bot's identity and branch conventions.
type GitConfig struct {
	BranchPrefix string `json:"branch_prefix"` // e.g. "autopatch/"
	BotUsername  string `json:"bot_username"`
	TargetBranch string `json:"target_branch"` // default base branch; repo policy may override
}

// TelemetryConfig points at the metrics backend.
type TelemetryConfig struct {
	PrometheusURL string `json:"prometheus_url"` // empty disables the query service
	EventLogDir   string `json:"event_log_dir"`  // JSONL event log directory
}

// Config is the orchestrator-wide configuration.
type Config struct {
	SchemaVersion int             `json:"schema_version"`
	Model         ModelConfig     `json:"model"`
	Verify        VerifyConfig    `json:"verify"`
	Git           GitConfig       `json:"git"`
	Telemetry     TelemetryConfig `json:"telemetry"`
	DatabasePath  string          `json:"database_path"` // SQLite run history
}

//nolint:gochecknoglobals // intentional singleton, guarded by mu
var (
	config     *Config
	projectDir string // immutable after LoadConfig
	logger     *logx.Logger
	mu         sync.RWMutex
)

func getLogger() *logx.Logger {
	if logger == nil {
		logger = logx.NewLogger("config")
	}
	return logger
}

// LogInfo logs through the config package logger (used by main for
// consistent formatting during startup).
func LogInfo(format string, args ...any) {
	getLogger().Info(format, args...)
}

// DefaultConfig returns a config with every default filled in.
func DefaultConfig() Config {
	return Config{
		SchemaVersion: SchemaVersion,
		Model: ModelConfig{
			Provider:         ProviderAnthropic,
			Name:             "claude-sonnet-4-20250514",
			MaxContextTokens: 128000,
			MaxOutputTokens:  8192,
			CpmTokensIn:      3.0,
			CpmTokensOut:     15.0,
		},
		Verify: VerifyConfig{
			PollIntervalSeconds: DefaultPollIntervalSeconds,
			PollBudgetMinutes:   DefaultPollBudgetMinutes,
			MaxRepairRounds:     DefaultMaxRepairRounds,
		},
		Git: GitConfig{
			BranchPrefix: "autopatch/",
			BotUsername:  "autopatch-bot",
			TargetBranch: "main",
		},
		Telemetry: TelemetryConfig{
			EventLogDir: "logs",
		},
		DatabasePath: filepath.Join(ConfigDirName, "autopatch.db"),
	}
}

// Validate rejects configs that would misbehave at runtime.
func (c *Config) Validate() error {
	if c.SchemaVersion != SchemaVersion {
		return fmt.Errorf("unsupported config schema version %d (want %d)", c.SchemaVersion, SchemaVersion)
	}
	switch c.Model.Provider {
	case ProviderAnthropic, ProviderOpenAI, ProviderGoogle, ProviderOllama:
	default:
		return fmt.Errorf("unknown model provider %q", c.Model.Provider)
	}
	if c.Model.Name == "" {
		return fmt.Errorf("model name must be set")
	}
	if c.Model.MaxContextTokens <= 0 || c.Model.MaxOutputTokens <= 0 {
		return fmt.Errorf("model token budgets must be positive")
	}
	if c.Model.CpmTokensIn < 0 || c.Model.CpmTokensOut < 0 {
		return fmt.Errorf("model token pricing must not be negative")
	}
	if c.Verify.PollIntervalSeconds <= 0 {
		return fmt.Errorf("verify poll interval must be positive")
	}
	if c.Verify.PollBudgetMinutes <= 0 {
		return fmt.Errorf("verify poll budget must be positive")
	}
	if c.Verify.MaxRepairRounds < 0 {
		return fmt.Errorf("max repair rounds must not be negative")
	}
	if c.Git.BranchPrefix == "" {
		return fmt.Errorf("git branch prefix must be set")
	}
	return nil
}

// LoadConfig reads .autopatch/config.json under dir, or installs defaults if
// the file does not exist. Safe to call once at startup.
func LoadConfig(dir string) error {
	mu.Lock()
	defer mu.Unlock()

	path := filepath.Join(dir, ConfigDirName, configFileName)
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		getLogger().Info("no config at %s, using defaults", path)
	case err != nil:
		return fmt.Errorf("failed to read config %s: %w", path, err)
	default:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config %s: %w", path, err)
	}

	config = &cfg
	projectDir = dir
	return nil
}

// GetConfig returns the loaded config by value.
func GetConfig() (Config, error) {
	mu.RLock()
	defer mu.RUnlock()
	if config == nil {
		return Config{}, fmt.Errorf("config not loaded; call LoadConfig first")
	}
	return *config, nil
}

// ProjectDir returns the directory LoadConfig was called with.
func ProjectDir() string {
	mu.RLock()
	defer mu.RUnlock()
	return projectDir
}

// SaveConfig persists cfg atomically (write temp, rename) after validation.
func SaveConfig(dir string, cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("refusing to save invalid config: %w", err)
	}

	configDir := filepath.Join(dir, ConfigDirName)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", configDir, err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	path := filepath.Join(configDir, configFileName)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace config: %w", err)
	}

	mu.Lock()
	cp := *cfg
	config = &cp
	projectDir = dir
	mu.Unlock()
	return nil
}
