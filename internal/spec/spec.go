// Package spec implements the task specification document format:
// parsing markdown spec files into a document model, validating the
// model, resolving effective values, and rendering it back to
// canonical markdown or an execution prompt.
package spec

import (
	"github.com/doodoori/doodoori-go/internal/claude"
)

// Defaults applied when a field is unset at every level of the
// fallback chain.
const (
	DefaultMaxIterations      = 50
	DefaultTaskMaxIterations  = 30
	DefaultCompletionPromise  = "<promise>COMPLETE</promise>"
	DefaultGlobalPromise      = "COMPLETE"
	DefaultMaxParallelWorkers = 3
)

// Spec is a parsed task specification document.
type Spec struct {
	// Title from the H1 heading (# Task: or # Spec:).
	Title string

	// Objective description.
	Objective string

	// Model to use. Nil falls back to global settings, then sonnet.
	Model *claude.Model

	// Requirements in document order.
	Requirements []Requirement

	// Constraints in document order.
	Constraints []string

	// CompletionCriteria text, empty when the section is absent.
	CompletionCriteria string

	// MaxIterations for the run loop.
	MaxIterations *int

	// CompletionPromise marker the agent must emit.
	CompletionPromise *string

	// GlobalSettings for multi-task specs, nil unless declared.
	GlobalSettings *GlobalSettings

	// Tasks in declaration order, for multi-task specs.
	Tasks []TaskSpec

	// Budget limit in USD.
	Budget *float64

	// RawContent is the original markdown, preserved verbatim.
	RawContent string
}

// New returns a Spec with the document-level defaults applied.
func New() *Spec {
	maxIter := DefaultMaxIterations
	promise := DefaultCompletionPromise
	return &Spec{
		MaxIterations:     &maxIter,
		CompletionPromise: &promise,
	}
}

// IsMultiTask reports whether the spec declares sub-tasks for
// parallel execution.
func (s *Spec) IsMultiTask() bool {
	return len(s.Tasks) > 0
}

// EffectiveModel resolves the model through the fallback chain:
// spec model, then global settings default_model, then sonnet.
func (s *Spec) EffectiveModel() claude.Model {
	if s.Model != nil {
		return *s.Model
	}
	if s.GlobalSettings != nil && s.GlobalSettings.DefaultModel != nil {
		return *s.GlobalSettings.DefaultModel
	}
	return claude.DefaultModel
}

// EffectiveMaxIterations resolves through the fallback chain:
// spec max_iterations, then 50.
func (s *Spec) EffectiveMaxIterations() int {
	if s.MaxIterations != nil {
		return *s.MaxIterations
	}
	return DefaultMaxIterations
}

// EffectiveCompletionPromise resolves through the fallback chain:
// spec completion_promise, then global settings completion_promise,
// then the literal default marker.
func (s *Spec) EffectiveCompletionPromise() string {
	if s.CompletionPromise != nil {
		return *s.CompletionPromise
	}
	if s.GlobalSettings != nil {
		return s.GlobalSettings.CompletionPromise
	}
	return DefaultCompletionPromise
}

// TaskIndex maps task ids to their position in Tasks. Built once
// after parsing; the first occurrence of a duplicated id wins.
// Shared by the validator and the scheduler.
func (s *Spec) TaskIndex() map[string]int {
	index := make(map[string]int, len(s.Tasks))
	for i, task := range s.Tasks {
		if _, ok := index[task.ID]; !ok {
			index[task.ID] = i
		}
	}
	return index
}

// Requirement is a single checkbox-trackable condition.
type Requirement struct {
	Description string
	Completed   bool
}

// NewRequirement returns an incomplete requirement.
func NewRequirement(description string) Requirement {
	return Requirement{Description: description}
}

// CompletedRequirement returns a requirement already checked off.
func CompletedRequirement(description string) Requirement {
	return Requirement{Description: description, Completed: true}
}

// GlobalSettings holds document-wide defaults for multi-task specs.
type GlobalSettings struct {
	DefaultModel       *claude.Model
	MaxParallelWorkers *int
	CompletionPromise  string
	MaxTotalUSD        *float64
}

// DefaultGlobalSettings returns the settings used when a Global
// Settings section is present but a key is not given.
func DefaultGlobalSettings() *GlobalSettings {
	model := claude.DefaultModel
	workers := DefaultMaxParallelWorkers
	return &GlobalSettings{
		DefaultModel:       &model,
		MaxParallelWorkers: &workers,
		CompletionPromise:  DefaultGlobalPromise,
	}
}

// TaskSpec is one named sub-task within a multi-task spec.
type TaskSpec struct {
	// ID from the H3 heading (### Task: name).
	ID string

	// Model override for this task.
	Model *claude.Model

	// Priority, lower runs first.
	Priority int

	// DependsOn lists task ids that must complete before this one.
	DependsOn []string

	// Description of the task.
	Description string

	// Requirements scoped to this task.
	Requirements []Requirement

	// CompletionCriteria text, empty when absent.
	CompletionCriteria string

	// MaxIterations override for this task.
	MaxIterations *int
}

// NewTask returns a TaskSpec with the task-level defaults applied.
func NewTask(id string) TaskSpec {
	maxIter := DefaultTaskMaxIterations
	return TaskSpec{
		ID:            id,
		Priority:      1,
		MaxIterations: &maxIter,
	}
}

// Independent reports whether the task has no dependencies.
func (t *TaskSpec) Independent() bool {
	return len(t.DependsOn) == 0
}

// EffectiveModel resolves the task model, falling back to the
// caller-supplied default (typically the spec's effective model).
func (t *TaskSpec) EffectiveModel(fallback claude.Model) claude.Model {
	if t.Model != nil {
		return *t.Model
	}
	return fallback
}

// EffectiveMaxIterations resolves through the fallback chain:
// task max_iterations, then 30.
func (t *TaskSpec) EffectiveMaxIterations() int {
	if t.MaxIterations != nil {
		return *t.MaxIterations
	}
	return DefaultTaskMaxIterations
}
