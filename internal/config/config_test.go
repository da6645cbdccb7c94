package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/doodoori/doodoori-go/internal/claude"
)

func TestDefaults(t *testing.T) {
	cfg := Default()

	if cfg.DefaultModel != "sonnet" {
		t.Errorf("DefaultModel = %s", cfg.DefaultModel)
	}
	if cfg.MaxIterations != 50 {
		t.Errorf("MaxIterations = %d", cfg.MaxIterations)
	}
	if cfg.BudgetLimit != nil {
		t.Error("BudgetLimit should default to nil")
	}
	if cfg.Parallel.Workers != 3 {
		t.Errorf("Workers = %d", cfg.Parallel.Workers)
	}
	if cfg.Watch.DebounceMS != 500 {
		t.Errorf("DebounceMS = %d", cfg.Watch.DebounceMS)
	}
	if cfg.Logging.Level != "info" || !cfg.Logging.Progress {
		t.Errorf("Logging = %+v", cfg.Logging)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.DefaultModel != "sonnet" {
		t.Errorf("DefaultModel = %s", cfg.DefaultModel)
	}
}

func TestLoadPartialOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doodoori.toml")
	content := `
default_model = "opus"
max_iterations = 100
budget_limit = 5.0
yolo_mode = true

[parallel]
workers = 8

[notifications]
enabled = true
slack_webhook = "https://hooks.slack.com/services/x"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.DefaultModel != "opus" {
		t.Errorf("DefaultModel = %s", cfg.DefaultModel)
	}
	if cfg.MaxIterations != 100 {
		t.Errorf("MaxIterations = %d", cfg.MaxIterations)
	}
	if cfg.BudgetLimit == nil || *cfg.BudgetLimit != 5.0 {
		t.Errorf("BudgetLimit = %v", cfg.BudgetLimit)
	}
	if !cfg.YoloMode {
		t.Error("YoloMode should be true")
	}
	if cfg.Parallel.Workers != 8 {
		t.Errorf("Workers = %d", cfg.Parallel.Workers)
	}
	if !cfg.Notifications.Enabled || cfg.Notifications.SlackWebhook == "" {
		t.Errorf("Notifications = %+v", cfg.Notifications)
	}

	// Unspecified fields keep their defaults.
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %s", cfg.Logging.Level)
	}
}

func TestLoadBatchEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doodoori.toml")
	content := `
[[batch]]
name = "nightly-lint"
spec_file = "specs/lint.md"
schedule = "0 2 * * *"
enabled = true

[[batch]]
name = "weekly-deps"
spec_file = "specs/deps.md"
schedule = "0 6 * * 1"
enabled = false
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if len(cfg.Batch) != 2 {
		t.Fatalf("batch entries = %d", len(cfg.Batch))
	}
	if cfg.Batch[0].Name != "nightly-lint" || !cfg.Batch[0].Enabled {
		t.Errorf("batch[0] = %+v", cfg.Batch[0])
	}
	if cfg.Batch[1].Enabled {
		t.Error("batch[1] should be disabled")
	}
}

func TestLoadInvalidTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doodoori.toml")
	if err := os.WriteFile(path, []byte("not [valid toml"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestModelFallback(t *testing.T) {
	cfg := Default()
	cfg.DefaultModel = "opus"
	if cfg.Model() != claude.ModelOpus {
		t.Errorf("Model() = %s", cfg.Model())
	}

	cfg.DefaultModel = "gpt-9"
	if cfg.Model() != claude.DefaultModel {
		t.Errorf("unknown model should fall back, got %s", cfg.Model())
	}
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "doodoori.toml")

	cfg := Default()
	cfg.DefaultModel = "haiku"
	if err := cfg.Save(path); err != nil {
		t.Fatal(err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.DefaultModel != "haiku" {
		t.Errorf("DefaultModel = %s", loaded.DefaultModel)
	}
}

func TestExpandPath(t *testing.T) {
	home, _ := os.UserHomeDir()
	if got := ExpandPath("~/x/y.toml"); got != filepath.Join(home, "x/y.toml") {
		t.Errorf("ExpandPath = %s", got)
	}
	if got := ExpandPath("/abs/path"); got != "/abs/path" {
		t.Errorf("ExpandPath = %s", got)
	}
}
