// Package watch monitors a directory tree for file changes and
// triggers task runs, batching rapid changes with a debounce window.
package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
)

// Config controls what gets watched and how changes are batched.
type Config struct {
	Patterns       []string // glob patterns relative to BaseDir, empty means everything
	BaseDir        string
	Debounce       time.Duration
	Recursive      bool
	IgnorePatterns []string
	ClearScreen    bool
	RunInitial     bool
}

// DefaultConfig ignores build output, VCS metadata, and state
// directories.
func DefaultConfig() Config {
	return Config{
		Patterns:  []string{"**/*"},
		BaseDir:   ".",
		Debounce:  500 * time.Millisecond,
		Recursive: true,
		IgnorePatterns: []string{
			"target/**",
			".git/**",
			".doodoori/**",
			"node_modules/**",
			"*.log",
		},
	}
}

// ChangeCallback receives the batch of changed paths after the
// debounce window closes.
type ChangeCallback func(paths []string)

// Watcher monitors the configured tree for writes and creates.
type Watcher struct {
	config   Config
	watcher  *fsnotify.Watcher
	callback ChangeCallback

	mu      sync.Mutex
	pending map[string]struct{}
	timer   *time.Timer

	cancel context.CancelFunc
}

// New creates a watcher. Call Start to begin receiving callbacks.
func New(config Config, callback ChangeCallback) (*Watcher, error) {
	if config.BaseDir == "" {
		config.BaseDir = "."
	}
	if config.Debounce <= 0 {
		config.Debounce = 500 * time.Millisecond
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}

	return &Watcher{
		config:   config,
		watcher:  fw,
		callback: callback,
		pending:  make(map[string]struct{}),
	}, nil
}

// Start registers the watch directories and begins processing events.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.addDirs(); err != nil {
		w.watcher.Close()
		return err
	}

	ctx, w.cancel = context.WithCancel(ctx)
	go w.loop(ctx)
	return nil
}

// Stop stops watching. Pending debounced changes are dropped.
func (w *Watcher) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()
	w.watcher.Close()
}

func (w *Watcher) addDirs() error {
	if !w.config.Recursive {
		if err := w.watcher.Add(w.config.BaseDir); err != nil {
			return fmt.Errorf("watching %s: %w", w.config.BaseDir, err)
		}
		return nil
	}

	return filepath.Walk(w.config.BaseDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // unreadable entries are skipped
		}
		if !info.IsDir() {
			return nil
		}
		if rel := w.relPath(path); rel != "." && w.ignored(rel) {
			return filepath.SkipDir
		}
		return w.watcher.Add(path)
	})
}

func (w *Watcher) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case _, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
		return
	}

	// New subdirectories get watched as they appear.
	if event.Op&fsnotify.Create != 0 && w.config.Recursive {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if !w.ignored(w.relPath(event.Name)) {
				w.watcher.Add(event.Name)
			}
			return
		}
	}

	if !w.Matches(event.Name) {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	w.pending[event.Name] = struct{}{}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.config.Debounce, w.flush)
}

func (w *Watcher) flush() {
	w.mu.Lock()
	pending := w.pending
	w.pending = make(map[string]struct{})
	w.mu.Unlock()

	if w.callback == nil || len(pending) == 0 {
		return
	}

	paths := make([]string, 0, len(pending))
	for p := range pending {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	w.callback(paths)
}

// Matches reports whether a path passes the ignore list and matches a
// watch pattern. Ignores win over watch patterns.
func (w *Watcher) Matches(path string) bool {
	rel := w.relPath(path)

	if w.ignored(rel) {
		return false
	}

	if len(w.config.Patterns) == 0 {
		return true
	}
	for _, pattern := range w.config.Patterns {
		if ok, err := doublestar.Match(pattern, rel); err == nil && ok {
			return true
		}
	}
	return false
}

func (w *Watcher) ignored(rel string) bool {
	for _, pattern := range w.config.IgnorePatterns {
		if ok, err := doublestar.Match(pattern, rel); err == nil && ok {
			return true
		}
		// "*.log" style patterns apply to the basename anywhere in
		// the tree.
		if !strings.Contains(pattern, "/") {
			if ok, err := doublestar.Match(pattern, filepath.Base(rel)); err == nil && ok {
				return true
			}
		}
	}
	return false
}

func (w *Watcher) relPath(path string) string {
	rel, err := filepath.Rel(w.config.BaseDir, path)
	if err != nil {
		return path
	}
	return filepath.ToSlash(rel)
}
