// Package batch runs specs on cron schedules.
package batch

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler tracks scheduled entries and decides when each is due.
type Scheduler struct {
	entries map[string]Entry
	parser  cron.Parser

	mu      sync.RWMutex
	lastRun map[string]time.Time
	running map[string]bool
}

// NewScheduler validates the entries and builds a scheduler.
func NewScheduler(entries []Entry) (*Scheduler, error) {
	s := &Scheduler{
		entries: make(map[string]Entry),
		parser:  cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
		lastRun: make(map[string]time.Time),
		running: make(map[string]bool),
	}

	for _, entry := range entries {
		if err := entry.Validate(); err != nil {
			return nil, err
		}
		s.entries[entry.Name] = entry
	}
	return s, nil
}

// ParseCron parses a five-field cron expression.
func ParseCron(expr string) (cron.Schedule, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	return parser.Parse(expr)
}

// NextRun returns the next scheduled time for an entry, zero when
// unknown.
func (s *Scheduler) NextRun(name string) time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[name]
	if !ok {
		return time.Time{}
	}
	sched, err := s.parser.Parse(entry.Schedule)
	if err != nil {
		return time.Time{}
	}
	return sched.Next(time.Now())
}

// ShouldRun reports whether an entry is due and not already running.
func (s *Scheduler) ShouldRun(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[name]
	if !ok || s.running[name] {
		return false
	}

	sched, err := s.parser.Parse(entry.Schedule)
	if err != nil {
		return false
	}

	lastRun := s.lastRun[name]
	if lastRun.IsZero() {
		lastRun = time.Now().Add(-24 * time.Hour)
	}
	return time.Now().After(sched.Next(lastRun))
}

// MarkRunning marks an entry as currently running.
func (s *Scheduler) MarkRunning(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running[name] = true
}

// MarkComplete records a finished run.
func (s *Scheduler) MarkComplete(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running[name] = false
	s.lastRun[name] = time.Now()
}

// Entry returns the entry with the given name.
func (s *Scheduler) Entry(name string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[name]
	return entry, ok
}

// List returns all entry names.
func (s *Scheduler) List() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.entries))
	for name := range s.entries {
		names = append(names, name)
	}
	return names
}

// Start polls every minute and launches due entries via runFunc until
// the context is cancelled.
func (s *Scheduler) Start(ctx context.Context, runFunc func(Entry) error) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for name := range s.entries {
				if !s.ShouldRun(name) {
					continue
				}
				entry, _ := s.Entry(name)
				s.MarkRunning(name)
				go func(e Entry) {
					if err := runFunc(e); err != nil {
						fmt.Fprintf(os.Stderr, "batch %s failed: %v\n", e.Name, err)
					}
					s.MarkComplete(e.Name)
				}(entry)
			}
		}
	}
}
