// Package daemon manages the Stipend agent lifecycle and configuration.
package daemon

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config holds all agent configuration.
type Config struct {
	Agent     AgentConfig     `toml:"agent"`
	API       APIConfig       `toml:"api"`
	Advisory  AdvisoryConfig  `toml:"advisory"`
	Ledger    LedgerConfig    `toml:"ledger"`
	Telemetry TelemetryConfig `toml:"telemetry"`
	Logging   LoggingConfig   `toml:"logging"`
	Storage   StorageConfig   `toml:"storage"`
}

// AgentConfig tunes the decision engine and the polling loop.
type AgentConfig struct {
	PollInterval    string  `toml:"poll_interval"`    // e.g. "30s"
	CallTimeout     string  `toml:"call_timeout"`     // per ledger/advisory call
	ExplorationRate float64 `toml:"exploration_rate"` // initial, decays to 0.05
	LearningRate    float64 `toml:"learning_rate"`
	MetricsEvery    int     `toml:"metrics_every"` // log metrics every N cycles
}

// APIConfig controls the HTTP status API server.
type APIConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// AdvisoryConfig controls the optional assessment service. Leaving
// Enabled false is a fully supported configuration.
type AdvisoryConfig struct {
	Enabled bool   `toml:"enabled"`
	BaseURL string `toml:"base_url"`
	APIKey  string `toml:"api_key"`
	Model   string `toml:"model"`
}

// LedgerConfig selects and tunes the ledger backend. Only the simulated
// backend ships today; a wire-level chain client would slot in here.
type LedgerConfig struct {
	Backend         string  `toml:"backend"` // "sim"
	InitialFunds    float64 `toml:"initial_funds"`
	DailyLimit      float64 `toml:"daily_limit"`
	MaxSpendPerTask float64 `toml:"max_spend_per_task"`
}

// TelemetryConfig controls metrics exposure.
type TelemetryConfig struct {
	Prometheus bool `toml:"prometheus"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level string `toml:"level"`
}

// StorageConfig controls the durable store.
type StorageConfig struct {
	Dir string `toml:"dir"` // defaults to $STIPEND_HOME
}

// DefaultConfig returns sensible production defaults.
func DefaultConfig() Config {
	return Config{
		Agent: AgentConfig{
			PollInterval:    "30s",
			CallTimeout:     "10s",
			ExplorationRate: 0.2,
			LearningRate:    0.1,
			MetricsEvery:    10,
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 8720,
		},
		Advisory: AdvisoryConfig{
			Enabled: false,
			BaseURL: "https://api.openai.com/v1",
			Model:   "gpt-4o-mini",
		},
		Ledger: LedgerConfig{
			Backend:         "sim",
			InitialFunds:    1000,
			DailyLimit:      100,
			MaxSpendPerTask: 10,
		},
		Telemetry: TelemetryConfig{
			Prometheus: true,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Storage: StorageConfig{
			Dir: stipendHome(),
		},
	}
}

// LoadConfig reads config from $STIPEND_HOME/config.toml, falling back
// to defaults when no file exists.
func LoadConfig() (Config, error) {
	cfg := DefaultConfig()
	path := filepath.Join(stipendHome(), "config.toml")

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil // No config file yet — use defaults
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// SaveConfig writes the config to $STIPEND_HOME/config.toml.
func SaveConfig(cfg Config) error {
	path := filepath.Join(stipendHome(), "config.toml")
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	encoder := toml.NewEncoder(f)
	return encoder.Encode(cfg)
}

// Validate rejects configuration the agent cannot run with. Called at
// startup; failures are fatal before any state is touched.
func (c Config) Validate() error {
	if c.Agent.ExplorationRate < 0 || c.Agent.ExplorationRate > 1 {
		return fmt.Errorf("agent.exploration_rate %.2f outside [0,1]", c.Agent.ExplorationRate)
	}
	if c.Agent.LearningRate <= 0 || c.Agent.LearningRate > 1 {
		return fmt.Errorf("agent.learning_rate %.2f outside (0,1]", c.Agent.LearningRate)
	}
	if c.API.Port <= 0 || c.API.Port > 65535 {
		return fmt.Errorf("api.port %d invalid", c.API.Port)
	}
	if c.Ledger.Backend != "sim" {
		return fmt.Errorf("ledger.backend %q unsupported", c.Ledger.Backend)
	}
	if c.Advisory.Enabled && c.Advisory.BaseURL == "" {
		return fmt.Errorf("advisory.base_url required when advisory is enabled")
	}
	return nil
}

// stipendHome returns the Stipend data directory.
func stipendHome() string {
	if env := os.Getenv("STIPEND_HOME"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".stipend")
}

// StipendHome is exported for use by other packages.
func StipendHome() string {
	return stipendHome()
}
