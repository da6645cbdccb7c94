// Package loop drives the iteration loop: run the agent, check the
// output for the completion marker, and repeat until completion, the
// iteration cap, or the budget limit.
package loop

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/doodoori/doodoori-go/internal/claude"
	"github.com/doodoori/doodoori-go/internal/spec"
)

// CompletionStrategy decides whether an iteration's output signals
// that the task is done.
type CompletionStrategy interface {
	Complete(output string) bool
}

// Promise matches a literal marker string.
type Promise string

func (p Promise) Complete(output string) bool {
	return strings.Contains(output, string(p))
}

// AnyOf matches when any of the markers appears.
type AnyOf []string

func (a AnyOf) Complete(output string) bool {
	for _, marker := range a {
		if strings.Contains(output, marker) {
			return true
		}
	}
	return false
}

// Pattern matches a regular expression.
type Pattern struct {
	re *regexp.Regexp
}

func NewPattern(expr string) (Pattern, error) {
	re, err := regexp.Compile(expr)
	if err != nil {
		return Pattern{}, fmt.Errorf("compiling completion pattern: %w", err)
	}
	return Pattern{re: re}, nil
}

func (p Pattern) Complete(output string) bool {
	return p.re != nil && p.re.MatchString(output)
}

// Config controls a loop run.
type Config struct {
	MaxIterations int
	BudgetLimit   *float64 // USD, nil means unlimited
	Completion    CompletionStrategy
	Model         claude.Model
	WorkingDir    string
	SessionKey    string // derives a deterministic session id when set
	YoloMode      bool
	AllowedTools  string
	Executable    string
}

// DefaultConfig mirrors the spec-level defaults.
func DefaultConfig() Config {
	return Config{
		MaxIterations: spec.DefaultMaxIterations,
		Completion:    Promise(spec.DefaultCompletionPromise),
		Model:         claude.DefaultModel,
	}
}

// Status is the terminal state of a loop run.
type Status string

const (
	StatusCompleted      Status = "completed"
	StatusMaxIterations  Status = "max_iterations_reached"
	StatusBudgetExceeded Status = "budget_exceeded"
	StatusError          Status = "error"
	StatusStopped        Status = "stopped"
)

// EventKind classifies loop events.
type EventKind string

const (
	EventIterationStarted   EventKind = "iteration_started"
	EventAgent              EventKind = "agent"
	EventIterationCompleted EventKind = "iteration_completed"
	EventFinished           EventKind = "finished"
)

// Event is emitted on the events channel as the loop progresses.
type Event struct {
	Kind      EventKind
	Iteration int
	Agent     *claude.Event // set for EventAgent
	Usage     claude.Usage  // set for EventIterationCompleted and EventFinished
	Completed bool          // set for EventIterationCompleted
	Status    Status        // set for EventFinished
}

// Result is the outcome of a finished loop.
type Result struct {
	Status      Status
	Iterations  int
	TotalUsage  claude.Usage
	FinalOutput string
	Err         error // set when Status is StatusError
}

// Agent runs one iteration against the model.
type Agent interface {
	Run(ctx context.Context, prompt string, events chan<- claude.Event) (*claude.Result, error)
}

// Engine executes the loop. Safe for a single Run at a time.
type Engine struct {
	config Config
	agent  Agent
}

func New(config Config) *Engine {
	if config.Completion == nil {
		config.Completion = Promise(spec.DefaultCompletionPromise)
	}
	if config.MaxIterations <= 0 {
		config.MaxIterations = spec.DefaultMaxIterations
	}

	sessionID := ""
	if config.SessionKey != "" {
		sessionID = claude.SessionID(config.SessionKey)
	}
	runner := claude.NewRunner(claude.Config{
		Model:        config.Model,
		WorkingDir:   config.WorkingDir,
		SessionID:    sessionID,
		YoloMode:     config.YoloMode,
		AllowedTools: config.AllowedTools,
		Executable:   config.Executable,
	})

	return &Engine{config: config, agent: runner}
}

// NewWithAgent builds an engine around a caller-supplied agent.
func NewWithAgent(config Config, agent Agent) *Engine {
	e := New(config)
	e.agent = agent
	return e
}

// Run executes iterations until completion, the iteration cap, the
// budget limit, an error, or context cancellation. Events are sent to
// the events channel when non-nil; the channel is not closed.
func (e *Engine) Run(ctx context.Context, initialPrompt string, events chan<- Event) *Result {
	var (
		total       claude.Usage
		previous    string
		finalOutput string
		status      Status
		runErr      error
	)

	iteration := 0
	for iteration < e.config.MaxIterations {
		if e.config.BudgetLimit != nil && total.TotalCostUSD >= *e.config.BudgetLimit {
			status = StatusBudgetExceeded
			break
		}

		e.emit(events, Event{Kind: EventIterationStarted, Iteration: iteration})

		prompt := e.buildPrompt(initialPrompt, iteration, previous)
		result, err := e.runIteration(ctx, prompt, iteration, events)
		if err != nil {
			if ctx.Err() != nil {
				status = StatusStopped
			} else {
				status = StatusError
				runErr = err
			}
			break
		}

		completed := e.config.Completion.Complete(result.Output)
		e.emit(events, Event{
			Kind:      EventIterationCompleted,
			Iteration: iteration,
			Usage:     result.Usage,
			Completed: completed,
		})

		total.Add(result.Usage)
		previous = result.Output
		finalOutput = result.Output

		if completed {
			status = StatusCompleted
			break
		}
		iteration++
	}

	if status == "" {
		status = StatusMaxIterations
	}

	e.emit(events, Event{
		Kind:      EventFinished,
		Iteration: iteration,
		Usage:     total,
		Status:    status,
	})

	return &Result{
		Status:      status,
		Iterations:  iteration + 1,
		TotalUsage:  total,
		FinalOutput: finalOutput,
		Err:         runErr,
	}
}

func (e *Engine) runIteration(ctx context.Context, prompt string, iteration int, events chan<- Event) (*claude.Result, error) {
	var agentEvents chan claude.Event
	var wg sync.WaitGroup

	if events != nil {
		agentEvents = make(chan claude.Event, 64)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ev := range agentEvents {
				ev := ev
				e.emit(events, Event{Kind: EventAgent, Iteration: iteration, Agent: &ev})
			}
		}()
	}

	result, err := e.agent.Run(ctx, prompt, agentEvents)
	if agentEvents != nil {
		close(agentEvents)
		wg.Wait()
	}
	return result, err
}

func (e *Engine) emit(events chan<- Event, event Event) {
	if events != nil {
		events <- event
	}
}

// buildPrompt adds the completion instruction on the first iteration
// and a continuation preamble with the tail of the previous output on
// later ones.
func (e *Engine) buildPrompt(initialPrompt string, iteration int, previousOutput string) string {
	marker := e.promiseMarker()

	if iteration == 0 {
		return fmt.Sprintf(
			"%s\n\n---\n\nWhen you have completed the task, output the completion marker: %s\n\n"+
				"If you cannot complete the task, explain why and still output: %s",
			initialPrompt, marker, marker)
	}

	if previousOutput != "" {
		return fmt.Sprintf(
			"Continue from the previous attempt. The task is not yet complete.\n\n"+
				"Original task: %s\n\nPrevious output summary:\n%s\n\n"+
				"Please continue working on the task. When complete, output: %s",
			initialPrompt, tail(previousOutput, 2000), marker)
	}

	return fmt.Sprintf(
		"Continue working on the task. Original task: %s\n\nWhen complete, output: %s",
		initialPrompt, marker)
}

func (e *Engine) promiseMarker() string {
	if promise, ok := e.config.Completion.(Promise); ok {
		return string(promise)
	}
	return spec.DefaultCompletionPromise
}

// tail returns the last max bytes of output.
func tail(output string, max int) string {
	if len(output) <= max {
		return output
	}
	return output[len(output)-max:]
}
