// Package scheduler orders a multi-task spec's tasks by dependency
// readiness and runs them with bounded parallelism.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/doodoori/doodoori-go/internal/spec"
)

// Scheduler tracks completion state over a spec's task graph.
type Scheduler struct {
	tasks      []spec.TaskSpec
	index      map[string]int      // task id -> position, first occurrence wins
	dependents map[string][]string // task id -> ids that depend on it

	mu        sync.Mutex
	completed map[string]bool
}

// New creates a scheduler over the spec's tasks.
func New(s *spec.Spec) *Scheduler {
	dependents := make(map[string][]string)
	for _, task := range s.Tasks {
		for _, dep := range task.DependsOn {
			dependents[dep] = append(dependents[dep], task.ID)
		}
	}

	return &Scheduler{
		tasks:      s.Tasks,
		index:      s.TaskIndex(),
		dependents: dependents,
		completed:  make(map[string]bool),
	}
}

// MarkCompleted records a finished task.
func (s *Scheduler) MarkCompleted(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completed[id] = true
}

// Done reports whether every task has completed.
func (s *Scheduler) Done() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.completed) >= len(s.index)
}

// Ready returns up to limit tasks that are ready to run: not yet
// completed, with every dependency completed. A limit of 0 means no
// limit. Lower priority values run first; ties go to the task that
// unblocks more downstream work, then declaration order.
func (s *Scheduler) Ready(limit int) []spec.TaskSpec {
	s.mu.Lock()
	completed := make(map[string]bool, len(s.completed))
	for id := range s.completed {
		completed[id] = true
	}
	s.mu.Unlock()

	var ready []spec.TaskSpec
	for i, task := range s.tasks {
		if s.index[task.ID] != i || completed[task.ID] {
			continue
		}
		if depsSatisfied(task, completed) {
			ready = append(ready, task)
		}
	}

	sort.SliceStable(ready, func(i, j int) bool {
		if ready[i].Priority != ready[j].Priority {
			return ready[i].Priority < ready[j].Priority
		}
		di, dj := s.dependencyDepth(ready[i].ID), s.dependencyDepth(ready[j].ID)
		if di != dj {
			return di > dj
		}
		return s.index[ready[i].ID] < s.index[ready[j].ID]
	})

	if limit > 0 && len(ready) > limit {
		ready = ready[:limit]
	}
	return ready
}

func depsSatisfied(task spec.TaskSpec, completed map[string]bool) bool {
	for _, dep := range task.DependsOn {
		if !completed[dep] {
			return false
		}
	}
	return true
}

// dependencyDepth returns how many tasks depend transitively on this
// task.
func (s *Scheduler) dependencyDepth(id string) int {
	visited := make(map[string]bool)
	return s.countDependents(id, visited)
}

func (s *Scheduler) countDependents(id string, visited map[string]bool) int {
	if visited[id] {
		return 0
	}
	visited[id] = true

	count := 0
	for _, dependent := range s.dependents[id] {
		count += 1 + s.countDependents(dependent, visited)
	}
	return count
}

// TopologicalSort returns the tasks in dependency order, declaration
// order breaking ties. A cycle is an error; the validator reports the
// offending path before execution normally gets this far.
func (s *Scheduler) TopologicalSort() ([]spec.TaskSpec, error) {
	inDegree := make(map[string]int, len(s.index))
	for id := range s.index {
		inDegree[id] = 0
	}
	for i, task := range s.tasks {
		if s.index[task.ID] != i {
			continue
		}
		for _, dep := range task.DependsOn {
			if _, ok := s.index[dep]; ok {
				inDegree[task.ID]++
			}
		}
	}

	var queue []string
	for i, task := range s.tasks {
		if s.index[task.ID] == i && inDegree[task.ID] == 0 {
			queue = append(queue, task.ID)
		}
	}

	var result []spec.TaskSpec
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		result = append(result, s.tasks[s.index[id]])

		for _, dependent := range s.dependents[id] {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
	}

	if len(result) != len(s.index) {
		return nil, fmt.Errorf("circular dependency among tasks")
	}
	return result, nil
}

// RunFunc executes one task to completion.
type RunFunc func(ctx context.Context, task spec.TaskSpec) error

// Run executes all tasks in dependency waves with at most workers
// running concurrently. The first task error cancels the remaining
// work in the current wave and stops the run.
func (s *Scheduler) Run(ctx context.Context, workers int, run RunFunc) error {
	if workers <= 0 {
		workers = spec.DefaultMaxParallelWorkers
	}

	for !s.Done() {
		ready := s.Ready(0)
		if len(ready) == 0 {
			return fmt.Errorf("no runnable tasks but %d remain unfinished",
				len(s.index)-s.completedCount())
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(workers)
		for _, task := range ready {
			task := task
			g.Go(func() error {
				if err := run(gctx, task); err != nil {
					return fmt.Errorf("task %s: %w", task.ID, err)
				}
				s.MarkCompleted(task.ID)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
	}
	return nil
}

func (s *Scheduler) completedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.completed)
}
