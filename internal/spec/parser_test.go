package spec

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/doodoori/doodoori-go/internal/claude"
)

func TestParseSimpleSpec(t *testing.T) {
	content := `# Task: Build REST API

## Objective
Create a simple REST API for todos

## Model
sonnet

## Requirements
- [ ] GET /todos endpoint
- [x] POST /todos endpoint
- [ ] DELETE /todos endpoint

## Constraints
- Use Go
- Use net/http

## Completion Criteria
All endpoints working

## Max Iterations
30

## Completion Promise
<promise>DONE</promise>
`

	s := Parse(content)

	if s.Title != "Build REST API" {
		t.Errorf("title = %q", s.Title)
	}
	if s.Objective != "Create a simple REST API for todos" {
		t.Errorf("objective = %q", s.Objective)
	}
	if s.Model == nil || *s.Model != claude.ModelSonnet {
		t.Errorf("model = %v", s.Model)
	}
	if len(s.Requirements) != 3 {
		t.Fatalf("requirements = %d, want 3", len(s.Requirements))
	}
	if s.Requirements[0].Completed {
		t.Error("first requirement should be incomplete")
	}
	if !s.Requirements[1].Completed {
		t.Error("second requirement should be completed")
	}
	if s.Requirements[2].Completed {
		t.Error("third requirement should be incomplete")
	}
	if len(s.Constraints) != 2 {
		t.Errorf("constraints = %d, want 2", len(s.Constraints))
	}
	if s.CompletionCriteria != "All endpoints working" {
		t.Errorf("completion criteria = %q", s.CompletionCriteria)
	}
	if s.MaxIterations == nil || *s.MaxIterations != 30 {
		t.Errorf("max iterations = %v", s.MaxIterations)
	}
	if s.CompletionPromise == nil || !strings.Contains(*s.CompletionPromise, "DONE") {
		t.Errorf("completion promise = %v", s.CompletionPromise)
	}
	if s.RawContent != content {
		t.Error("raw content not preserved")
	}
}

func TestParseMultiTaskSpec(t *testing.T) {
	content := `# Spec: Full Stack App

## Objective
Build a full stack application

## Global Settings
default_model: sonnet
max_parallel_workers: 3
completion_promise: "COMPLETE"

## Tasks

### Task: backend
Backend implementation

### Task: frontend
Frontend implementation
`

	s := Parse(content)

	if s.Title != "Full Stack App" {
		t.Errorf("title = %q", s.Title)
	}
	if s.GlobalSettings == nil {
		t.Fatal("global settings missing")
	}
	if s.GlobalSettings.DefaultModel == nil || *s.GlobalSettings.DefaultModel != claude.ModelSonnet {
		t.Errorf("default model = %v", s.GlobalSettings.DefaultModel)
	}
	if s.GlobalSettings.MaxParallelWorkers == nil || *s.GlobalSettings.MaxParallelWorkers != 3 {
		t.Errorf("max parallel workers = %v", s.GlobalSettings.MaxParallelWorkers)
	}
	if s.GlobalSettings.CompletionPromise != "COMPLETE" {
		t.Errorf("completion promise = %q", s.GlobalSettings.CompletionPromise)
	}
	if len(s.Tasks) != 2 {
		t.Fatalf("tasks = %d, want 2", len(s.Tasks))
	}
	if s.Tasks[0].ID != "backend" || s.Tasks[1].ID != "frontend" {
		t.Errorf("task ids = %q, %q", s.Tasks[0].ID, s.Tasks[1].ID)
	}
	if !s.IsMultiTask() {
		t.Error("IsMultiTask should be true")
	}
}

func TestParseTaskFields(t *testing.T) {
	content := `# Spec: Pipeline

## Objective
Run the pipeline

## Tasks

### Task: extract

## Objective
Pull the raw data

## Requirements
- [ ] Connect to source
- [x] Define schema

## Model
haiku

## Max Iterations
10

### Task: transform

## Priority
2

## Depends_On
[extract]
`

	s := Parse(content)

	if len(s.Tasks) != 2 {
		t.Fatalf("tasks = %d, want 2", len(s.Tasks))
	}

	extract := s.Tasks[0]
	if extract.Description != "Pull the raw data" {
		t.Errorf("extract description = %q", extract.Description)
	}
	if len(extract.Requirements) != 2 {
		t.Errorf("extract requirements = %d", len(extract.Requirements))
	}
	if extract.Model == nil || *extract.Model != claude.ModelHaiku {
		t.Errorf("extract model = %v", extract.Model)
	}
	if extract.MaxIterations == nil || *extract.MaxIterations != 10 {
		t.Errorf("extract max iterations = %v", extract.MaxIterations)
	}

	transform := s.Tasks[1]
	if transform.Priority != 2 {
		t.Errorf("transform priority = %d", transform.Priority)
	}
	if len(transform.DependsOn) != 1 || transform.DependsOn[0] != "extract" {
		t.Errorf("transform depends_on = %v", transform.DependsOn)
	}
}

func TestParseDependsOnList(t *testing.T) {
	content := `# Spec: Deps

## Objective
Dependency list form

## Tasks

### Task: a

### Task: b

## Dependencies
- a
`

	s := Parse(content)
	if len(s.Tasks) != 2 {
		t.Fatalf("tasks = %d, want 2", len(s.Tasks))
	}
	if got := s.Tasks[1].DependsOn; len(got) != 1 || got[0] != "a" {
		t.Errorf("depends_on = %v", got)
	}
}

func TestParseRequirement(t *testing.T) {
	tests := []struct {
		input     string
		wantText  string
		completed bool
	}{
		{"[ ] Incomplete task", "Incomplete task", false},
		{"[x] Complete task", "Complete task", true},
		{"[X] Also complete", "Also complete", true},
		{"Plain task", "Plain task", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			req := parseRequirement(tt.input)
			if req.Description != tt.wantText {
				t.Errorf("description = %q, want %q", req.Description, tt.wantText)
			}
			if req.Completed != tt.completed {
				t.Errorf("completed = %v, want %v", req.Completed, tt.completed)
			}
		})
	}
}

func TestParseBudget(t *testing.T) {
	tests := []struct {
		name    string
		section string
		want    float64
	}{
		{"bare number", "15.00", 15.00},
		{"labeled", "max_total_usd: 25.50", 25.50},
		{"with currency", "max_total_usd: 10.00 USD", 10.00},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Parse("# Task: T\n\n## Budget\n" + tt.section + "\n")
			if s.Budget == nil || *s.Budget != tt.want {
				t.Errorf("budget = %v, want %v", s.Budget, tt.want)
			}
		})
	}

	t.Run("malformed", func(t *testing.T) {
		s := Parse("# Task: T\n\n## Budget\nplenty\n")
		if s.Budget != nil {
			t.Errorf("budget = %v, want nil", *s.Budget)
		}
	})
}

func TestParseMalformedValues(t *testing.T) {
	content := `# Task: Lenient

## Objective
Still parses

## Model
gpt4

## Max Iterations
many
`

	s := Parse(content)

	if s.Model != nil {
		t.Errorf("model = %v, want nil for unknown alias", *s.Model)
	}
	// Unparseable max iterations keeps the document default.
	if s.MaxIterations == nil || *s.MaxIterations != DefaultMaxIterations {
		t.Errorf("max iterations = %v", s.MaxIterations)
	}
}

func TestParseTitlePrefixes(t *testing.T) {
	tests := []struct {
		heading string
		want    string
	}{
		{"# Task: Build It", "Build It"},
		{"# Spec: Design It", "Design It"},
		{"# Just A Title", "Just A Title"},
	}

	for _, tt := range tests {
		s := Parse(tt.heading + "\n")
		if s.Title != tt.want {
			t.Errorf("Parse(%q).Title = %q, want %q", tt.heading, s.Title, tt.want)
		}
	}
}

func TestParseUnknownSectionIgnored(t *testing.T) {
	content := `# Task: T

## Objective
Do the thing

## Notes
These are ignored at document scope
`

	s := Parse(content)
	if s.Objective != "Do the thing" {
		t.Errorf("objective = %q", s.Objective)
	}
}

func TestGenerate(t *testing.T) {
	model := claude.ModelHaiku
	s := Generate("Build a todo app", &model)

	if s.Title != "Build a todo app" {
		t.Errorf("title = %q", s.Title)
	}
	if s.Objective != "Build a todo app" {
		t.Errorf("objective = %q", s.Objective)
	}
	if s.Model == nil || *s.Model != claude.ModelHaiku {
		t.Errorf("model = %v", s.Model)
	}
	if s.MaxIterations == nil || *s.MaxIterations != 50 {
		t.Errorf("max iterations = %v", s.MaxIterations)
	}
	if s.CompletionPromise == nil || *s.CompletionPromise != DefaultCompletionPromise {
		t.Errorf("completion promise = %v", s.CompletionPromise)
	}
}

func TestGenerateTruncatesTitle(t *testing.T) {
	long := strings.Repeat("x", 80) + "\nsecond line"
	s := Generate(long, nil)

	if len(s.Title) != 50 {
		t.Errorf("title length = %d, want 50", len(s.Title))
	}
	if s.Objective != long {
		t.Error("objective should keep the full description")
	}
}

func TestRoundTrip(t *testing.T) {
	model := claude.ModelSonnet
	maxIter := 40
	original := New()
	original.Title = "Roundtrip Test"
	original.Objective = "Test parsing roundtrip"
	original.Model = &model
	original.Requirements = []Requirement{NewRequirement("Requirement 1")}
	original.MaxIterations = &maxIter

	parsed := Parse(original.ToMarkdown())

	if parsed.Title != original.Title {
		t.Errorf("title = %q, want %q", parsed.Title, original.Title)
	}
	if parsed.Objective != original.Objective {
		t.Errorf("objective = %q, want %q", parsed.Objective, original.Objective)
	}
	if parsed.Model == nil || *parsed.Model != model {
		t.Errorf("model = %v", parsed.Model)
	}
	if len(parsed.Requirements) != len(original.Requirements) {
		t.Errorf("requirements = %d, want %d", len(parsed.Requirements), len(original.Requirements))
	}
	if parsed.MaxIterations == nil || *parsed.MaxIterations != maxIter {
		t.Errorf("max iterations = %v", parsed.MaxIterations)
	}
}

func TestParseFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "spec.md")
	content := "# Task: From File\n\n## Objective\nRead me\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	s, err := ParseFile(path)
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	if s.Title != "From File" {
		t.Errorf("title = %q", s.Title)
	}
}

func TestParseFileMissing(t *testing.T) {
	if _, err := ParseFile(filepath.Join(t.TempDir(), "nope.md")); err == nil {
		t.Error("expected error for missing file")
	}
}
