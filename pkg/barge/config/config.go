// Package config loads the barge configuration: a YAML file plus .env
// files, with the LLM API key resolved through keyring → environment →
// config value.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/jholhewres/barge/pkg/barge/attention"
	"github.com/jholhewres/barge/pkg/barge/channels/discord"
	"github.com/jholhewres/barge/pkg/barge/llm"
)

// DefaultPath is where Load looks when no --config flag is given.
const DefaultPath = "config.yaml"

// Config is the root configuration.
type Config struct {
	Logging   LoggingConfig   `yaml:"logging"`
	API       llm.Config      `yaml:"api"`
	Attention AttentionConfig `yaml:"attention"`
	History   HistoryConfig   `yaml:"history"`
	Personas  PersonasConfig  `yaml:"personas"`
	Discord   discord.Config  `yaml:"discord"`
}

// Duration is a time.Duration that (un)marshals as a duration string
// ("8s", "2m") or a bare number of seconds.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var secs int64
	if err := value.Decode(&secs); err == nil {
		*d = Duration(time.Duration(secs) * time.Second)
		return nil
	}

	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// AttentionConfig is the YAML shape of the scheduler configuration.
type AttentionConfig struct {
	SessionTTL          Duration `yaml:"session_ttl"`
	InterjectDelay      Duration `yaml:"interject_delay"`
	BufferCap           int      `yaml:"buffer_cap"`
	CommandPrefixes     []string `yaml:"command_prefixes"`
	RearmAfterInterject bool     `yaml:"rearm_after_interject"`
	DecisionTimeout     Duration `yaml:"decision_timeout"`
}

// ToCore converts the YAML shape into the scheduler's config.
func (a AttentionConfig) ToCore() attention.Config {
	return attention.Config{
		SessionTTL:          time.Duration(a.SessionTTL),
		InterjectDelay:      time.Duration(a.InterjectDelay),
		BufferCap:           a.BufferCap,
		CommandPrefixes:     a.CommandPrefixes,
		RearmAfterInterject: a.RearmAfterInterject,
		DecisionTimeout:     time.Duration(a.DecisionTimeout),
	}
}

// LoggingConfig controls the slog handler.
type LoggingConfig struct {
	// Level: "debug", "info", "warn", "error".
	Level string `yaml:"level"`

	// Format: "text" or "json".
	Format string `yaml:"format"`
}

// HistoryConfig controls the conversation store.
type HistoryConfig struct {
	// Path is the SQLite database file.
	Path string `yaml:"path"`

	// MaxTurns bounds the history snapshot per decision call.
	MaxTurns int `yaml:"max_turns"`

	// Retention is how long idle conversations are kept.
	Retention Duration `yaml:"retention"`

	// SweepSchedule is the retention cron expression ("@hourly" default).
	SweepSchedule string `yaml:"sweep_schedule"`
}

// PersonasConfig points at the persona catalog.
type PersonasConfig struct {
	// Path is the persona catalog YAML file. Empty uses the built-in
	// default persona.
	Path string `yaml:"path"`
}

// Default returns a config with sensible defaults applied.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{Level: "info", Format: "json"},
		History: HistoryConfig{
			Path:          "barge.db",
			SweepSchedule: "@hourly",
		},
	}
}

// Load reads the config file at path (DefaultPath when empty), applies
// defaults and resolves secrets. Missing file is an error; callers that
// want setup-on-missing check os.IsNotExist.
func Load(path string) (*Config, error) {
	loadEnvFiles()

	if path == "" {
		path = DefaultPath
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	ResolveAPIKey(cfg)
	return cfg, nil
}

// Save writes the config as YAML, creating parent directories.
func Save(cfg *Config, path string) error {
	if path == "" {
		path = DefaultPath
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
	}

	raw, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}

// loadEnvFiles loads .env files from standard locations. godotenv.Load
// never overwrites live environment variables.
func loadEnvFiles() {
	for _, f := range []string{".env", ".env.local"} {
		_ = godotenv.Load(f)
	}
}
