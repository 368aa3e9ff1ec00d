package daemon

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Agent.PollInterval != "30s" {
		t.Errorf("PollInterval = %q, want 30s", cfg.Agent.PollInterval)
	}
	if cfg.Agent.ExplorationRate != 0.2 {
		t.Errorf("ExplorationRate = %v, want 0.2", cfg.Agent.ExplorationRate)
	}
	if cfg.API.Port != 8720 {
		t.Errorf("Port = %d, want 8720", cfg.API.Port)
	}
	if cfg.Ledger.Backend != "sim" {
		t.Errorf("Backend = %q, want sim", cfg.Ledger.Backend)
	}
	if cfg.Advisory.Enabled {
		t.Error("advisory enabled by default, want opt-in")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestLoadConfig_NoFileUsesDefaults(t *testing.T) {
	t.Setenv("STIPEND_HOME", t.TempDir())

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if cfg.API.Port != DefaultConfig().API.Port {
		t.Errorf("Port = %d, want default %d", cfg.API.Port, DefaultConfig().API.Port)
	}
}

func TestLoadConfig_ReadsFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("STIPEND_HOME", dir)

	content := `
[agent]
exploration_rate = 0.3

[api]
port = 9999
`
	if err := os.WriteFile(filepath.Join(dir, "config.toml"), []byte(content), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if cfg.API.Port != 9999 {
		t.Errorf("Port = %d, want 9999", cfg.API.Port)
	}
	if cfg.Agent.ExplorationRate != 0.3 {
		t.Errorf("ExplorationRate = %v, want 0.3", cfg.Agent.ExplorationRate)
	}
	// Untouched sections keep their defaults.
	if cfg.Ledger.Backend != "sim" {
		t.Errorf("Backend = %q, want default sim", cfg.Ledger.Backend)
	}
}

func TestSaveConfig_RoundTrip(t *testing.T) {
	t.Setenv("STIPEND_HOME", t.TempDir())

	cfg := DefaultConfig()
	cfg.API.Port = 12345
	cfg.Advisory.Enabled = true
	cfg.Advisory.Model = "test-model"

	if err := SaveConfig(cfg); err != nil {
		t.Fatalf("SaveConfig() error: %v", err)
	}

	loaded, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if loaded.API.Port != 12345 {
		t.Errorf("Port = %d, want 12345", loaded.API.Port)
	}
	if !loaded.Advisory.Enabled || loaded.Advisory.Model != "test-model" {
		t.Errorf("advisory = %+v, want enabled with test-model", loaded.Advisory)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"exploration rate above 1", func(c *Config) { c.Agent.ExplorationRate = 1.5 }},
		{"negative exploration rate", func(c *Config) { c.Agent.ExplorationRate = -0.1 }},
		{"zero learning rate", func(c *Config) { c.Agent.LearningRate = 0 }},
		{"invalid port", func(c *Config) { c.API.Port = -1 }},
		{"unknown ledger backend", func(c *Config) { c.Ledger.Backend = "mainnet" }},
		{"advisory without base url", func(c *Config) { c.Advisory.Enabled = true; c.Advisory.BaseURL = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() = nil, want error")
			}
		})
	}
}

func TestStipendHome_EnvOverride(t *testing.T) {
	t.Setenv("STIPEND_HOME", "/tmp/stipend-test-home")

	if got := StipendHome(); got != "/tmp/stipend-test-home" {
		t.Errorf("StipendHome() = %q, want env override", got)
	}
}
