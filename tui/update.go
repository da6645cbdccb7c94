package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/doodoori/doodoori-go/internal/loop"
)

const tabCount = 3 // run, tasks, costs

// maxEventLines bounds the output buffer kept in memory.
const maxEventLines = 500

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "tab":
			m.activeTab = (m.activeTab + 1) % tabCount
			m.selectedRow = 0
		case "t":
			m.activeTab = 1
		case "c":
			m.activeTab = 2
		case "j", "down":
			if m.activeTab == 1 && m.selectedRow < len(m.tasks)-1 {
				m.selectedRow++
			}
			if m.activeTab == 0 {
				m.eventScroll++
			}
		case "k", "up":
			if m.selectedRow > 0 {
				m.selectedRow--
			}
			if m.activeTab == 0 && m.eventScroll > 0 {
				m.eventScroll--
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case TickMsg:
		m.lastRefresh = time.Time(msg)
		return m, tickCmd()

	case LoopEventMsg:
		m.applyLoopEvent(msg)

	case RunFinishedMsg:
		m.finished = true
		m.status = msg.Status

	case CostsMsg:
		m.summaries = msg.Summaries
	}

	return m, nil
}

func (m *Model) applyLoopEvent(msg LoopEventMsg) {
	task := m.taskView(msg.TaskID)

	switch msg.Event.Kind {
	case loop.EventIterationStarted:
		if task != nil {
			task.State = TaskRunning
		}
		m.iterations = msg.Event.Iteration + 1
		m.appendEvent(fmt.Sprintf("[%s] iteration %d started", msg.TaskID, msg.Event.Iteration+1))

	case loop.EventAgent:
		if msg.Event.Agent != nil && msg.Event.Agent.Text != "" {
			for _, line := range strings.Split(strings.TrimRight(msg.Event.Agent.Text, "\n"), "\n") {
				m.appendEvent(line)
			}
		}

	case loop.EventIterationCompleted:
		if task != nil {
			task.Iterations = msg.Event.Iteration + 1
			task.CostUSD += msg.Event.Usage.TotalCostUSD
		}
		m.totalCost += msg.Event.Usage.TotalCostUSD

	case loop.EventFinished:
		if task != nil {
			switch msg.Event.Status {
			case loop.StatusCompleted:
				task.State = TaskCompleted
			default:
				task.State = TaskFailed
			}
		}
		m.appendEvent(fmt.Sprintf("[%s] finished: %s", msg.TaskID, msg.Event.Status))
	}
}

func (m *Model) taskView(id string) *TaskView {
	for i := range m.tasks {
		if m.tasks[i].ID == id {
			return &m.tasks[i]
		}
	}
	return nil
}

func (m *Model) appendEvent(line string) {
	m.events = append(m.events, line)
	if len(m.events) > maxEventLines {
		m.events = m.events[len(m.events)-maxEventLines:]
	}
}

// CompletedCount returns how many tasks have finished successfully.
func (m Model) CompletedCount() int {
	count := 0
	for _, task := range m.tasks {
		if task.State == TaskCompleted {
			count++
		}
	}
	return count
}

// RunningCount returns how many tasks are currently running.
func (m Model) RunningCount() int {
	count := 0
	for _, task := range m.tasks {
		if task.State == TaskRunning {
			count++
		}
	}
	return count
}
