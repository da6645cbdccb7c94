package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()
	if config.Debounce != 500*time.Millisecond {
		t.Errorf("debounce = %v", config.Debounce)
	}
	if !config.Recursive {
		t.Error("recursive should default to true")
	}
	if config.ClearScreen || config.RunInitial {
		t.Error("clear screen and run initial should default to false")
	}
}

func TestMatches(t *testing.T) {
	w := &Watcher{config: Config{
		BaseDir:        "/repo",
		Patterns:       []string{"src/**/*.go"},
		IgnorePatterns: []string{"target/**"},
	}}

	tests := []struct {
		path string
		want bool
	}{
		{"/repo/src/main.go", true},
		{"/repo/src/lib/util.go", true},
		{"/repo/target/debug/main", false},
		{"/repo/README.md", false},
	}
	for _, tt := range tests {
		if got := w.Matches(tt.path); got != tt.want {
			t.Errorf("Matches(%s) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestMatchesNoPatterns(t *testing.T) {
	w := &Watcher{config: Config{BaseDir: "/repo"}}
	if !w.Matches("/repo/anything.txt") {
		t.Error("empty patterns should match everything")
	}
}

func TestIgnoreBasenamePattern(t *testing.T) {
	w := &Watcher{config: Config{
		BaseDir:        "/repo",
		IgnorePatterns: []string{"*.log"},
	}}

	if w.Matches("/repo/deep/nested/debug.log") {
		t.Error("*.log should be ignored at any depth")
	}
	if !w.Matches("/repo/deep/nested/main.go") {
		t.Error("non-log file should match")
	}
}

func TestDefaultIgnores(t *testing.T) {
	config := DefaultConfig()
	config.BaseDir = "/repo"
	w := &Watcher{config: config}

	for _, path := range []string{
		"/repo/target/release/bin",
		"/repo/.git/HEAD",
		"/repo/.doodoori/costs.db",
		"/repo/node_modules/left-pad/index.js",
		"/repo/run.log",
	} {
		if w.Matches(path) {
			t.Errorf("%s should be ignored", path)
		}
	}
	if !w.Matches("/repo/src/main.go") {
		t.Error("source file should match")
	}
}

func TestWatcherDebouncesBatch(t *testing.T) {
	dir := t.TempDir()

	var mu sync.Mutex
	var batches [][]string
	done := make(chan struct{}, 1)

	config := DefaultConfig()
	config.BaseDir = dir
	config.Debounce = 50 * time.Millisecond

	w, err := New(config, func(paths []string) {
		mu.Lock()
		batches = append(batches, paths)
		mu.Unlock()
		select {
		case done <- struct{}{}:
		default:
		}
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	for _, name := range []string{"a.txt", "b.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for change batch")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(batches) == 0 || len(batches[0]) == 0 {
		t.Fatalf("batches = %v", batches)
	}
}

func TestWatcherIgnoredFileNoCallback(t *testing.T) {
	dir := t.TempDir()

	called := make(chan struct{}, 1)
	config := DefaultConfig()
	config.BaseDir = dir
	config.Debounce = 30 * time.Millisecond

	w, err := New(config, func(paths []string) {
		select {
		case called <- struct{}{}:
		default:
		}
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	if err := os.WriteFile(filepath.Join(dir, "debug.log"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case <-called:
		t.Error("ignored file should not trigger the callback")
	case <-time.After(200 * time.Millisecond):
	}
}
