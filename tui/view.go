package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	headerStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("236")).
			Foreground(lipgloss.Color("255")).
			Padding(0, 1)

	sectionStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)

	tabActiveStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205")).
			Underline(true)

	tabInactiveStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("244"))

	runningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42"))

	queuedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("244"))

	failedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	completedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42"))

	dimmedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	selectedStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39"))

	statusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("236")).
			Foreground(lipgloss.Color("255"))
)

func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	var b strings.Builder

	title := m.title
	if title == "" {
		title = "doodoori"
	}
	header := fmt.Sprintf(" %s │ Running: %d/%d │ Completed: %d/%d │ Cost: $%.4f ",
		title, m.RunningCount(), m.maxWorkers, m.CompletedCount(), len(m.tasks), m.totalCost)
	b.WriteString(headerStyle.Width(m.width).Render(header))
	b.WriteString("\n")

	b.WriteString(m.renderTabs())
	b.WriteString("\n")

	var content string
	switch m.activeTab {
	case 0:
		content = m.renderRun()
	case 1:
		content = m.renderTasks()
	case 2:
		content = m.renderCosts()
	}
	b.WriteString(sectionStyle.Width(m.width - 2).Render(content))
	b.WriteString("\n")

	bar := " tab: switch │ j/k: scroll │ q: quit "
	if m.finished {
		bar = fmt.Sprintf(" run finished: %s │ q: quit ", m.status)
	}
	b.WriteString(statusBarStyle.Width(m.width).Render(bar))

	return b.String()
}

func (m Model) renderTabs() string {
	names := []string{"Run", "Tasks", "Costs"}
	parts := make([]string, len(names))
	for i, name := range names {
		label := fmt.Sprintf(" %s ", name)
		if i == m.activeTab {
			parts[i] = tabActiveStyle.Render(label)
		} else {
			parts[i] = tabInactiveStyle.Render(label)
		}
	}
	return strings.Join(parts, "│")
}

func (m Model) renderRun() string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Iteration %d\n\n", m.iterations))

	visible := m.height - 10
	if visible < 5 {
		visible = 5
	}

	start := len(m.events) - visible - m.eventScroll
	if start < 0 {
		start = 0
	}
	end := start + visible
	if end > len(m.events) {
		end = len(m.events)
	}

	if len(m.events) == 0 {
		b.WriteString(dimmedStyle.Render("Waiting for agent output..."))
		return b.String()
	}

	for _, line := range m.events[start:end] {
		if len(line) > m.width-6 && m.width > 6 {
			line = line[:m.width-6]
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) renderTasks() string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("%-20s %-10s %-9s %5s %10s  %s\n",
		"TASK", "STATE", "PRIORITY", "ITER", "COST", "DEPENDS ON"))

	for i, task := range m.tasks {
		line := fmt.Sprintf("%-20s %-10s %-9d %5d %10s  %s",
			task.ID,
			task.State,
			task.Priority,
			task.Iterations,
			fmt.Sprintf("$%.4f", task.CostUSD),
			strings.Join(task.DependsOn, ", "))

		style := stateStyle(task.State)
		if i == m.selectedRow && m.activeTab == 1 {
			style = selectedStyle
		}
		b.WriteString(style.Render(line))
		b.WriteString("\n")
	}
	return b.String()
}

func stateStyle(state TaskState) lipgloss.Style {
	switch state {
	case TaskRunning:
		return runningStyle
	case TaskCompleted:
		return completedStyle
	case TaskFailed:
		return failedStyle
	default:
		return queuedStyle
	}
}

func (m Model) renderCosts() string {
	if len(m.summaries) == 0 {
		return dimmedStyle.Render("No cost history yet.")
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("%-12s %10s %8s %12s %12s\n",
		"DATE", "COST", "TASKS", "INPUT TOK", "OUTPUT TOK"))

	for _, s := range m.summaries {
		b.WriteString(fmt.Sprintf("%-12s %10s %8d %12d %12d\n",
			s.Date,
			fmt.Sprintf("$%.4f", s.TotalCostUSD),
			s.TaskCount,
			s.InputTokens,
			s.OutputTokens))

		for model, cost := range s.ByModel {
			b.WriteString(dimmedStyle.Render(fmt.Sprintf("  %-10s %10s", model, fmt.Sprintf("$%.4f", cost))))
			b.WriteString("\n")
		}
	}
	return b.String()
}
