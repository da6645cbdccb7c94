// Package tui renders the run dashboard: live iterations, task
// states, and cost history.
package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/doodoori/doodoori-go/internal/costs"
	"github.com/doodoori/doodoori-go/internal/loop"
	"github.com/doodoori/doodoori-go/internal/spec"
)

// TaskState is the display status of one spec task.
type TaskState string

const (
	TaskQueued    TaskState = "queued"
	TaskRunning   TaskState = "running"
	TaskCompleted TaskState = "completed"
	TaskFailed    TaskState = "failed"
)

// TaskView is one row on the tasks tab.
type TaskView struct {
	ID         string
	Priority   int
	DependsOn  []string
	State      TaskState
	Iterations int
	CostUSD    float64
}

// Model is the dashboard application model.
type Model struct {
	title     string
	tasks     []TaskView
	events    []string // recent loop output lines, newest last
	summaries []costs.DailySummary

	totalCost  float64
	iterations int
	maxWorkers int
	finished   bool
	status     loop.Status

	width       int
	height      int
	activeTab   int
	selectedRow int
	eventScroll int

	lastRefresh time.Time
}

// ModelConfig holds the initial dashboard data.
type ModelConfig struct {
	Spec       *spec.Spec
	MaxWorkers int
	Summaries  []costs.DailySummary
}

// NewModel builds the dashboard model from a parsed spec.
func NewModel(cfg ModelConfig) Model {
	m := Model{
		maxWorkers: cfg.MaxWorkers,
		summaries:  cfg.Summaries,
	}

	if cfg.Spec != nil {
		m.title = cfg.Spec.Title
		for _, task := range cfg.Spec.Tasks {
			m.tasks = append(m.tasks, TaskView{
				ID:        task.ID,
				Priority:  task.Priority,
				DependsOn: task.DependsOn,
				State:     TaskQueued,
			})
		}
		// Single-task specs still get one row.
		if len(m.tasks) == 0 {
			m.tasks = append(m.tasks, TaskView{ID: "main", Priority: 1, State: TaskQueued})
		}
	}

	return m
}

func (m Model) Init() tea.Cmd {
	return tickCmd()
}

// TickMsg triggers a periodic refresh.
type TickMsg time.Time

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// LoopEventMsg carries a loop engine event for a task.
type LoopEventMsg struct {
	TaskID string
	Event  loop.Event
}

// RunFinishedMsg is sent when the whole run ends.
type RunFinishedMsg struct {
	Status loop.Status
}

// CostsMsg refreshes the cost history tab.
type CostsMsg struct {
	Summaries []costs.DailySummary
}
