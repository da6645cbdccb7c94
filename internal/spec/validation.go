package spec

import (
	"fmt"
	"strings"
)

// Issue is a single validation finding, tagged with the field or
// task-qualified key it concerns.
type Issue struct {
	Field   string
	Message string
}

func (i Issue) String() string {
	return fmt.Sprintf("%s: %s", i.Field, i.Message)
}

// Result carries validation errors and warnings in discovery order.
type Result struct {
	Errors   []Issue
	Warnings []Issue
}

func (r *Result) addError(field, message string) {
	r.Errors = append(r.Errors, Issue{Field: field, Message: message})
}

func (r *Result) addWarning(field, message string) {
	r.Warnings = append(r.Warnings, Issue{Field: field, Message: message})
}

// Valid reports whether no errors were found. Warnings never block.
func (r *Result) Valid() bool {
	return len(r.Errors) == 0
}

// HasWarnings reports whether any warnings were found.
func (r *Result) HasWarnings() bool {
	return len(r.Warnings) > 0
}

// Validate checks a spec's structural and referential invariants.
// The spec is never modified; callers decide what to do with a
// non-conforming document.
func Validate(s *Spec) *Result {
	result := &Result{}

	if s.Title == "" {
		result.addError("title", "Title is required (use # Task: or # Spec:)")
	}
	if s.Objective == "" {
		result.addError("objective", "Objective section is required")
	}

	if len(s.Requirements) == 0 && len(s.Tasks) == 0 {
		result.addWarning("requirements",
			"No requirements specified. Consider adding requirements for clarity.")
	}
	if s.CompletionPromise == nil {
		result.addWarning("completion_promise",
			"No completion promise specified. Using default: "+DefaultCompletionPromise)
	}

	if s.MaxIterations != nil {
		switch {
		case *s.MaxIterations == 0:
			result.addError("max_iterations", "Max iterations must be greater than 0")
		case *s.MaxIterations > 200:
			result.addWarning("max_iterations",
				"Max iterations is very high (>200). This may be costly.")
		}
	}

	if s.Budget != nil && *s.Budget <= 0 {
		result.addError("budget", "Budget must be greater than 0")
	}

	if len(s.Tasks) > 0 {
		validateTasks(s, result)
	}

	return result
}

func validateTasks(s *Spec, result *Result) {
	index := s.TaskIndex()

	for i, task := range s.Tasks {
		if task.ID == "" {
			result.addError("task.id", "Task ID is required")
			continue
		}

		// Duplicate ids would make dependency resolution ambiguous;
		// the index keeps the first occurrence.
		if index[task.ID] != i {
			result.addError("task."+task.ID,
				fmt.Sprintf("Duplicate task ID: %s", task.ID))
		}

		for _, dep := range task.DependsOn {
			if _, ok := index[dep]; !ok {
				result.addError(
					fmt.Sprintf("task.%s.depends_on", task.ID),
					fmt.Sprintf("Unknown dependency: %s", dep))
			}
			if dep == task.ID {
				result.addError(
					fmt.Sprintf("task.%s.depends_on", task.ID),
					"Task cannot depend on itself")
			}
		}

		if task.Description == "" && len(task.Requirements) == 0 {
			result.addWarning("task."+task.ID,
				"Task has no description or requirements")
		}
	}

	if cycle := detectCycle(s.Tasks); cycle != nil {
		result.addError("tasks",
			"Circular dependency detected: "+strings.Join(cycle, " -> "))
	}
}

// detectCycle runs a depth-first search over the dependency graph
// with an explicit path stack. The first cycle found is returned as
// the path slice from the repeated id's first occurrence through the
// repeat; nil means the graph is acyclic. A global visited set keeps
// the traversal linear in tasks plus edges.
func detectCycle(tasks []TaskSpec) []string {
	graph := make(map[string][]string, len(tasks))
	for _, task := range tasks {
		graph[task.ID] = task.DependsOn
	}

	visited := make(map[string]bool, len(tasks))
	onPath := make(map[string]bool, len(tasks))
	var path []string

	var dfs func(id string) []string
	dfs = func(id string) []string {
		if onPath[id] {
			start := 0
			for i, n := range path {
				if n == id {
					start = i
					break
				}
			}
			cycle := append([]string(nil), path[start:]...)
			return append(cycle, id)
		}
		if visited[id] {
			return nil
		}

		visited[id] = true
		onPath[id] = true
		path = append(path, id)

		for _, dep := range graph[id] {
			if cycle := dfs(dep); cycle != nil {
				return cycle
			}
		}

		onPath[id] = false
		path = path[:len(path)-1]
		return nil
	}

	for _, task := range tasks {
		if cycle := dfs(task.ID); cycle != nil {
			return cycle
		}
	}
	return nil
}
