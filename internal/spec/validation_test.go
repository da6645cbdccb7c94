package spec

import (
	"strings"
	"testing"
)

func validSpec() *Spec {
	s := New()
	s.Title = "Test"
	s.Objective = "Do something"
	s.Requirements = []Requirement{NewRequirement("Req 1")}
	return s
}

func hasFieldError(result *Result, field string) bool {
	for _, issue := range result.Errors {
		if issue.Field == field {
			return true
		}
	}
	return false
}

func hasFieldWarning(result *Result, field string) bool {
	for _, issue := range result.Warnings {
		if issue.Field == field {
			return true
		}
	}
	return false
}

func TestValidateValidSpec(t *testing.T) {
	result := Validate(validSpec())
	if !result.Valid() {
		t.Errorf("expected valid, got errors: %v", result.Errors)
	}
}

func TestValidateMissingTitle(t *testing.T) {
	s := validSpec()
	s.Title = ""

	result := Validate(s)
	if result.Valid() {
		t.Fatal("expected invalid")
	}
	if !hasFieldError(result, "title") {
		t.Errorf("missing title error, got %v", result.Errors)
	}
}

func TestValidateMissingObjective(t *testing.T) {
	s := validSpec()
	s.Objective = ""

	result := Validate(s)
	if !hasFieldError(result, "objective") {
		t.Errorf("missing objective error, got %v", result.Errors)
	}
}

func TestValidateWarningNoRequirements(t *testing.T) {
	s := validSpec()
	s.Requirements = nil

	result := Validate(s)
	if !result.Valid() {
		t.Errorf("expected valid, got %v", result.Errors)
	}
	if !hasFieldWarning(result, "requirements") {
		t.Errorf("missing requirements warning, got %v", result.Warnings)
	}
}

func TestValidateWarningNoPromise(t *testing.T) {
	s := validSpec()
	s.CompletionPromise = nil

	result := Validate(s)
	if !hasFieldWarning(result, "completion_promise") {
		t.Errorf("missing promise warning, got %v", result.Warnings)
	}
}

func TestValidateMaxIterations(t *testing.T) {
	t.Run("zero is an error", func(t *testing.T) {
		s := validSpec()
		zero := 0
		s.MaxIterations = &zero

		result := Validate(s)
		if !hasFieldError(result, "max_iterations") {
			t.Errorf("expected error, got %v", result.Errors)
		}
	})

	t.Run("very high is a warning", func(t *testing.T) {
		s := validSpec()
		high := 500
		s.MaxIterations = &high

		result := Validate(s)
		if !result.Valid() {
			t.Errorf("expected valid, got %v", result.Errors)
		}
		if !hasFieldWarning(result, "max_iterations") {
			t.Errorf("expected warning, got %v", result.Warnings)
		}
	})
}

func TestValidateBudget(t *testing.T) {
	s := validSpec()
	budget := -1.0
	s.Budget = &budget

	result := Validate(s)
	if !hasFieldError(result, "budget") {
		t.Errorf("expected budget error, got %v", result.Errors)
	}
}

func TestValidateEmptyTaskID(t *testing.T) {
	s := validSpec()
	s.Tasks = []TaskSpec{NewTask("")}

	result := Validate(s)
	if !hasFieldError(result, "task.id") {
		t.Errorf("expected task.id error, got %v", result.Errors)
	}
}

func TestValidateUnknownDependency(t *testing.T) {
	s := validSpec()
	task := NewTask("task1")
	task.DependsOn = []string{"nonexistent"}
	s.Tasks = []TaskSpec{task}

	result := Validate(s)
	if result.Valid() {
		t.Fatal("expected invalid")
	}
	if !hasFieldError(result, "task.task1.depends_on") {
		t.Errorf("expected depends_on error, got %v", result.Errors)
	}
	found := false
	for _, issue := range result.Errors {
		if strings.Contains(issue.Message, "Unknown dependency: nonexistent") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected unknown dependency message, got %v", result.Errors)
	}
}

func TestValidateSelfDependency(t *testing.T) {
	s := validSpec()
	task := NewTask("task1")
	task.DependsOn = []string{"task1"}
	s.Tasks = []TaskSpec{task}

	result := Validate(s)
	if result.Valid() {
		t.Fatal("expected invalid")
	}
	if !hasFieldError(result, "task.task1.depends_on") {
		t.Errorf("expected self dependency error, got %v", result.Errors)
	}
}

func TestValidateCircularDependency(t *testing.T) {
	s := validSpec()
	task1 := NewTask("task1")
	task1.DependsOn = []string{"task2"}
	task2 := NewTask("task2")
	task2.DependsOn = []string{"task1"}
	s.Tasks = []TaskSpec{task1, task2}

	result := Validate(s)
	if result.Valid() {
		t.Fatal("expected invalid")
	}
	found := false
	for _, issue := range result.Errors {
		if strings.Contains(issue.Message, "Circular") {
			found = true
			if !strings.Contains(issue.Message, "task1 -> task2 -> task1") {
				t.Errorf("cycle order = %q", issue.Message)
			}
		}
	}
	if !found {
		t.Errorf("expected circular dependency error, got %v", result.Errors)
	}
}

func TestValidateLongerCycle(t *testing.T) {
	s := validSpec()
	a := NewTask("a")
	a.DependsOn = []string{"b"}
	b := NewTask("b")
	b.DependsOn = []string{"c"}
	c := NewTask("c")
	c.DependsOn = []string{"a"}
	s.Tasks = []TaskSpec{a, b, c}

	result := Validate(s)
	found := false
	for _, issue := range result.Errors {
		if strings.Contains(issue.Message, "a -> b -> c -> a") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected full cycle path, got %v", result.Errors)
	}
}

func TestValidateAcyclicDiamond(t *testing.T) {
	s := validSpec()
	top := NewTask("top")
	left := NewTask("left")
	left.DependsOn = []string{"top"}
	right := NewTask("right")
	right.DependsOn = []string{"top"}
	bottom := NewTask("bottom")
	bottom.DependsOn = []string{"left", "right"}
	for _, task := range []TaskSpec{top, left, right, bottom} {
		task.Description = "work"
		s.Tasks = append(s.Tasks, task)
	}

	result := Validate(s)
	if !result.Valid() {
		t.Errorf("diamond should be acyclic, got %v", result.Errors)
	}
}

func TestValidateDuplicateTaskID(t *testing.T) {
	s := validSpec()
	s.Tasks = []TaskSpec{NewTask("dup"), NewTask("dup")}

	result := Validate(s)
	if result.Valid() {
		t.Fatal("expected invalid")
	}
	if !hasFieldError(result, "task.dup") {
		t.Errorf("expected duplicate id error, got %v", result.Errors)
	}
}

func TestValidateTaskWithoutContent(t *testing.T) {
	s := validSpec()
	s.Tasks = []TaskSpec{NewTask("empty")}

	result := Validate(s)
	if !hasFieldWarning(result, "task.empty") {
		t.Errorf("expected warning, got %v", result.Warnings)
	}
}

func TestValidateParsedDocument(t *testing.T) {
	content := `# Task: End to End

## Objective
Parse then validate

## Requirements
- [ ] One
`

	result := Validate(Parse(content))
	if !result.Valid() {
		t.Errorf("expected valid, got %v", result.Errors)
	}
}
