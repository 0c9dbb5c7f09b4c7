package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	raw := `
logging:
  level: debug
  format: text
api:
  base_url: https://example.test/v1
  model: test-model
attention:
  session_ttl: 120s
  interject_delay: 8s
  buffer_cap: 20
  command_prefixes: ["/", "!"]
  rearm_after_interject: true
history:
  path: data/barge.db
  max_turns: 50
  retention: 72h
discord:
  allowed_guilds: ["123"]
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "text" {
		t.Errorf("logging = %+v", cfg.Logging)
	}
	if cfg.API.Model != "test-model" {
		t.Errorf("model = %q", cfg.API.Model)
	}

	core := cfg.Attention.ToCore()
	if core.SessionTTL != 120*time.Second {
		t.Errorf("session_ttl = %v", core.SessionTTL)
	}
	if core.InterjectDelay != 8*time.Second {
		t.Errorf("interject_delay = %v", core.InterjectDelay)
	}
	if !core.RearmAfterInterject {
		t.Error("rearm_after_interject not parsed")
	}
	if len(core.CommandPrefixes) != 2 || core.CommandPrefixes[1] != "!" {
		t.Errorf("command_prefixes = %v", core.CommandPrefixes)
	}

	if time.Duration(cfg.History.Retention) != 72*time.Hour {
		t.Errorf("retention = %v", cfg.History.Retention)
	}
	if cfg.History.Path != "data/barge.db" {
		t.Errorf("history path = %q", cfg.History.Path)
	}
	if len(cfg.Discord.AllowedGuilds) != 1 {
		t.Errorf("allowed_guilds = %v", cfg.Discord.AllowedGuilds)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if !os.IsNotExist(err) {
		t.Errorf("err = %v, want IsNotExist", err)
	}
}

func TestDuration(t *testing.T) {
	t.Run("bare seconds", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		if err := os.WriteFile(path, []byte("attention:\n  session_ttl: 90\n"), 0o600); err != nil {
			t.Fatal(err)
		}
		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if got := time.Duration(cfg.Attention.SessionTTL); got != 90*time.Second {
			t.Errorf("session_ttl = %v, want 90s", got)
		}
	})

	t.Run("invalid", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		if err := os.WriteFile(path, []byte("attention:\n  session_ttl: soonish\n"), 0o600); err != nil {
			t.Fatal(err)
		}
		if _, err := Load(path); err == nil {
			t.Error("expected error for invalid duration")
		}
	})
}

func TestSaveRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.API.Model = "m1"
	cfg.Attention.SessionTTL = Duration(2 * time.Minute)

	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	if err := Save(cfg, path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.API.Model != "m1" {
		t.Errorf("model = %q", loaded.API.Model)
	}
	if time.Duration(loaded.Attention.SessionTTL) != 2*time.Minute {
		t.Errorf("session_ttl = %v", loaded.Attention.SessionTTL)
	}
}
