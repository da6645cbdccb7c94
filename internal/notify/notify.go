// Package notify reports run outcomes to Slack and the desktop.
package notify

import (
	"fmt"

	"github.com/doodoori/doodoori-go/internal/loop"
)

// Kind classifies a notification.
type Kind int

const (
	KindInfo Kind = iota
	KindSuccess
	KindWarning
	KindError
)

// Notification is one message to deliver.
type Notification struct {
	Title   string
	Message string
	Kind    Kind
	Event   string // started, completed, error, budget_exceeded, max_iterations
	TaskID  string
}

// Notifier delivers notifications.
type Notifier interface {
	Send(n Notification) error
}

// Multi fans a notification out to several notifiers. Delivery
// failures do not stop the remaining notifiers; the last error wins.
type Multi struct {
	notifiers []Notifier
}

func NewMulti(notifiers ...Notifier) *Multi {
	return &Multi{notifiers: notifiers}
}

func (m *Multi) Send(n Notification) error {
	var lastErr error
	for _, notifier := range m.notifiers {
		if err := notifier.Send(n); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// Noop discards notifications.
type Noop struct{}

func (Noop) Send(Notification) error { return nil }

// Filtered drops notifications whose event is not in the allow list.
// An empty list allows everything.
type Filtered struct {
	inner  Notifier
	events map[string]bool
}

func NewFiltered(inner Notifier, events []string) *Filtered {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		allowed[e] = true
	}
	return &Filtered{inner: inner, events: allowed}
}

func (f *Filtered) Send(n Notification) error {
	if len(f.events) > 0 && !f.events[n.Event] {
		return nil
	}
	return f.inner.Send(n)
}

// FromResult builds the notification for a finished loop run.
func FromResult(taskID string, result *loop.Result) Notification {
	n := Notification{TaskID: taskID}

	switch result.Status {
	case loop.StatusCompleted:
		n.Kind = KindSuccess
		n.Event = "completed"
		n.Title = "Task completed"
		n.Message = fmt.Sprintf("%s finished after %d iteration(s), $%.4f",
			taskID, result.Iterations, result.TotalUsage.TotalCostUSD)
	case loop.StatusBudgetExceeded:
		n.Kind = KindWarning
		n.Event = "budget_exceeded"
		n.Title = "Budget exceeded"
		n.Message = fmt.Sprintf("%s stopped at $%.4f after %d iteration(s)",
			taskID, result.TotalUsage.TotalCostUSD, result.Iterations)
	case loop.StatusMaxIterations:
		n.Kind = KindWarning
		n.Event = "max_iterations"
		n.Title = "Iteration limit reached"
		n.Message = fmt.Sprintf("%s did not complete within %d iteration(s)",
			taskID, result.Iterations)
	case loop.StatusError:
		n.Kind = KindError
		n.Event = "error"
		n.Title = "Task failed"
		n.Message = fmt.Sprintf("%s: %v", taskID, result.Err)
	default:
		n.Kind = KindInfo
		n.Event = "stopped"
		n.Title = "Task stopped"
		n.Message = fmt.Sprintf("%s was stopped after %d iteration(s)", taskID, result.Iterations)
	}
	return n
}
