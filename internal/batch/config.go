package batch

import (
	"fmt"

	"github.com/doodoori/doodoori-go/internal/config"
)

// Entry is one scheduled spec run.
type Entry struct {
	Name     string
	SpecFile string
	Schedule string // cron expression, five fields
	Enabled  bool
}

// Validate checks that the entry can be scheduled.
func (e *Entry) Validate() error {
	if e.Name == "" {
		return fmt.Errorf("batch name is required")
	}
	if e.SpecFile == "" {
		return fmt.Errorf("batch %s: spec file is required", e.Name)
	}
	if e.Schedule == "" {
		return fmt.Errorf("batch %s: schedule is required", e.Name)
	}
	if _, err := ParseCron(e.Schedule); err != nil {
		return fmt.Errorf("batch %s: invalid schedule: %w", e.Name, err)
	}
	return nil
}

// FromConfig converts the [[batch]] entries of doodoori.toml,
// dropping disabled ones.
func FromConfig(entries []config.BatchEntry) ([]Entry, error) {
	var out []Entry
	for _, e := range entries {
		if !e.Enabled {
			continue
		}
		entry := Entry{
			Name:     e.Name,
			SpecFile: e.SpecFile,
			Schedule: e.Schedule,
			Enabled:  true,
		}
		if err := entry.Validate(); err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, nil
}
