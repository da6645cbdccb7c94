// Package costs persists per-run spending history in SQLite and
// answers the summary queries the cost command and dashboard need.
package costs

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS cost_entries (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	task_id TEXT NOT NULL,
	recorded_at TIMESTAMP NOT NULL,
	day TEXT NOT NULL,
	model TEXT NOT NULL,
	input_tokens INTEGER NOT NULL DEFAULT 0,
	output_tokens INTEGER NOT NULL DEFAULT 0,
	cache_read_tokens INTEGER NOT NULL DEFAULT 0,
	cache_creation_tokens INTEGER NOT NULL DEFAULT 0,
	cost_usd REAL NOT NULL DEFAULT 0,
	status TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_cost_entries_task ON cost_entries(task_id);
CREATE INDEX IF NOT EXISTS idx_cost_entries_day ON cost_entries(day);
`

// Entry is one recorded run cost.
type Entry struct {
	ID                  int64     `json:"id" yaml:"id"`
	TaskID              string    `json:"task_id" yaml:"task_id"`
	RecordedAt          time.Time `json:"recorded_at" yaml:"recorded_at"`
	Model               string    `json:"model" yaml:"model"`
	InputTokens         int64     `json:"input_tokens" yaml:"input_tokens"`
	OutputTokens        int64     `json:"output_tokens" yaml:"output_tokens"`
	CacheReadTokens     int64     `json:"cache_read_tokens" yaml:"cache_read_tokens"`
	CacheCreationTokens int64     `json:"cache_creation_tokens" yaml:"cache_creation_tokens"`
	CostUSD             float64   `json:"cost_usd" yaml:"cost_usd"`
	Status              string    `json:"status" yaml:"status"`
	Description         string    `json:"description" yaml:"description"`
}

// DailySummary aggregates one day's entries.
type DailySummary struct {
	Date         string // YYYY-MM-DD
	TotalCostUSD float64
	InputTokens  int64
	OutputTokens int64
	TaskCount    int
	ByModel      map[string]float64
}

// Ledger provides SQLite-backed cost persistence.
type Ledger struct {
	db *sql.DB
}

// Open opens or creates the ledger database at the given path.
func Open(dbPath string) (*Ledger, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return &Ledger{db: db}, nil
}

// Close closes the database connection.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// Record appends an entry. A zero RecordedAt is filled with now.
func (l *Ledger) Record(entry Entry) error {
	if entry.RecordedAt.IsZero() {
		entry.RecordedAt = time.Now().UTC()
	}
	day := entry.RecordedAt.UTC().Format("2006-01-02")

	_, err := l.db.Exec(`
		INSERT INTO cost_entries
			(task_id, recorded_at, day, model, input_tokens, output_tokens,
			 cache_read_tokens, cache_creation_tokens, cost_usd, status, description)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		entry.TaskID,
		entry.RecordedAt,
		day,
		entry.Model,
		entry.InputTokens,
		entry.OutputTokens,
		entry.CacheReadTokens,
		entry.CacheCreationTokens,
		entry.CostUSD,
		entry.Status,
		entry.Description,
	)
	return err
}

const entryColumns = `id, task_id, recorded_at, model, input_tokens, output_tokens,
	cache_read_tokens, cache_creation_tokens, cost_usd, status, description`

func scanEntry(rows *sql.Rows) (Entry, error) {
	var e Entry
	err := rows.Scan(&e.ID, &e.TaskID, &e.RecordedAt, &e.Model,
		&e.InputTokens, &e.OutputTokens, &e.CacheReadTokens,
		&e.CacheCreationTokens, &e.CostUSD, &e.Status, &e.Description)
	return e, err
}

func (l *Ledger) queryEntries(query string, args ...any) ([]Entry, error) {
	rows, err := l.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// TaskEntries returns all entries for a task in recording order.
func (l *Ledger) TaskEntries(taskID string) ([]Entry, error) {
	return l.queryEntries(
		`SELECT `+entryColumns+` FROM cost_entries WHERE task_id = ? ORDER BY id`,
		taskID)
}

// TaskTotal returns the total cost recorded for a task.
func (l *Ledger) TaskTotal(taskID string) (float64, error) {
	var total float64
	err := l.db.QueryRow(
		`SELECT COALESCE(SUM(cost_usd), 0) FROM cost_entries WHERE task_id = ?`,
		taskID).Scan(&total)
	return total, err
}

// Recent returns the last limit entries, newest first. A limit of
// zero or less returns everything.
func (l *Ledger) Recent(limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = -1
	}
	return l.queryEntries(
		`SELECT `+entryColumns+` FROM cost_entries ORDER BY id DESC LIMIT ?`,
		limit)
}

// DailySummaries returns per-day aggregates for the last days days,
// newest first.
func (l *Ledger) DailySummaries(days int) ([]DailySummary, error) {
	rows, err := l.db.Query(`
		SELECT day, SUM(cost_usd), SUM(input_tokens), SUM(output_tokens), COUNT(*)
		FROM cost_entries
		GROUP BY day
		ORDER BY day DESC
		LIMIT ?
	`, days)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var summaries []DailySummary
	index := make(map[string]int)
	for rows.Next() {
		var s DailySummary
		if err := rows.Scan(&s.Date, &s.TotalCostUSD, &s.InputTokens,
			&s.OutputTokens, &s.TaskCount); err != nil {
			return nil, err
		}
		s.ByModel = make(map[string]float64)
		index[s.Date] = len(summaries)
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	modelRows, err := l.db.Query(`
		SELECT day, model, SUM(cost_usd) FROM cost_entries GROUP BY day, model
	`)
	if err != nil {
		return nil, err
	}
	defer modelRows.Close()

	for modelRows.Next() {
		var day, model string
		var cost float64
		if err := modelRows.Scan(&day, &model, &cost); err != nil {
			return nil, err
		}
		if i, ok := index[day]; ok {
			summaries[i].ByModel[model] = cost
		}
	}
	return summaries, modelRows.Err()
}

// MonthlyTotal returns the total cost for a calendar month.
func (l *Ledger) MonthlyTotal(year int, month time.Month) (float64, error) {
	prefix := fmt.Sprintf("%04d-%02d%%", year, int(month))
	var total float64
	err := l.db.QueryRow(
		`SELECT COALESCE(SUM(cost_usd), 0) FROM cost_entries WHERE day LIKE ?`,
		prefix).Scan(&total)
	return total, err
}

// TotalCost returns the all-time total.
func (l *Ledger) TotalCost() (float64, error) {
	var total float64
	err := l.db.QueryRow(
		`SELECT COALESCE(SUM(cost_usd), 0) FROM cost_entries`).Scan(&total)
	return total, err
}

// TotalTokens returns the all-time input and output token counts.
func (l *Ledger) TotalTokens() (input, output int64, err error) {
	err = l.db.QueryRow(`
		SELECT COALESCE(SUM(input_tokens), 0), COALESCE(SUM(output_tokens), 0)
		FROM cost_entries
	`).Scan(&input, &output)
	return input, output, err
}

// Clear removes all history.
func (l *Ledger) Clear() error {
	_, err := l.db.Exec(`DELETE FROM cost_entries`)
	return err
}
