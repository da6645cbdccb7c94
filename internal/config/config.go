// Package config loads doodoori.toml, layering file values over
// defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/doodoori/doodoori-go/internal/claude"
	"github.com/doodoori/doodoori-go/internal/spec"
)

// DefaultFileName is the config file looked up in the working
// directory.
const DefaultFileName = "doodoori.toml"

// Config holds all application configuration.
type Config struct {
	DefaultModel     string   `toml:"default_model"`
	MaxIterations    int      `toml:"max_iterations"`
	BudgetLimit      *float64 `toml:"budget_limit"`
	YoloMode         bool     `toml:"yolo_mode"`
	InstructionsFile string   `toml:"instructions_file"`
	DatabasePath     string   `toml:"database_path"`

	Logging       LoggingConfig       `toml:"logging"`
	Parallel      ParallelConfig      `toml:"parallel"`
	Notifications NotificationsConfig `toml:"notifications"`
	Watch         WatchConfig         `toml:"watch"`
	Batch         []BatchEntry        `toml:"batch"`
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Level    string `toml:"level"`
	File     string `toml:"file"`
	Progress bool   `toml:"progress"`
}

// ParallelConfig holds multi-task execution settings.
type ParallelConfig struct {
	Workers int `toml:"workers"`
}

// NotificationsConfig holds notification settings.
type NotificationsConfig struct {
	Enabled      bool     `toml:"enabled"`
	Desktop      bool     `toml:"desktop"`
	SlackWebhook string   `toml:"slack_webhook"`
	Events       []string `toml:"events"`
}

// WatchConfig holds watch mode settings.
type WatchConfig struct {
	Patterns       []string `toml:"patterns"`
	IgnorePatterns []string `toml:"ignore_patterns"`
	DebounceMS     int      `toml:"debounce_ms"`
	ClearScreen    bool     `toml:"clear_screen"`
	RunInitial     bool     `toml:"run_initial"`
}

// BatchEntry is one scheduled spec run.
type BatchEntry struct {
	Name     string `toml:"name"`
	SpecFile string `toml:"spec_file"`
	Schedule string `toml:"schedule"` // cron expression
	Enabled  bool   `toml:"enabled"`
}

// Default returns a Config with the standard defaults.
func Default() *Config {
	return &Config{
		DefaultModel:     string(claude.DefaultModel),
		MaxIterations:    spec.DefaultMaxIterations,
		InstructionsFile: "doodoori.md",
		DatabasePath:     filepath.Join(".doodoori", "costs.db"),
		Logging: LoggingConfig{
			Level:    "info",
			Progress: true,
		},
		Parallel: ParallelConfig{
			Workers: spec.DefaultMaxParallelWorkers,
		},
		Notifications: NotificationsConfig{
			Events: []string{"completed", "error"},
		},
		Watch: WatchConfig{
			DebounceMS: 500,
		},
	}
}

// Load reads configuration from a TOML file, falling back to defaults
// when the file does not exist.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	cfg.InstructionsFile = ExpandPath(cfg.InstructionsFile)
	cfg.DatabasePath = ExpandPath(cfg.DatabasePath)
	cfg.Logging.File = ExpandPath(cfg.Logging.File)
	for i := range cfg.Batch {
		cfg.Batch[i].SpecFile = ExpandPath(cfg.Batch[i].SpecFile)
	}

	return cfg, nil
}

// Model returns the configured default model, falling back to sonnet
// on an unknown value.
func (c *Config) Model() claude.Model {
	model, err := claude.ParseModel(c.DefaultModel)
	if err != nil {
		return claude.DefaultModel
	}
	return model
}

// Save writes the configuration to a TOML file.
func (c *Config) Save(path string) error {
	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("serializing config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0o644)
}

// ExpandPath expands a leading ~ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}
