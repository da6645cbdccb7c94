package spec

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	gmtext "github.com/yuin/goldmark/text"

	"github.com/doodoori/doodoori-go/internal/claude"
)

// markdown is the shared goldmark instance. Parsing allocates its own
// context per call, so concurrent use is safe.
var markdown = goldmark.New()

// sectionKind identifies a recognized H2 section heading. The
// vocabulary is closed; anything else maps to sectionOther.
type sectionKind int

const (
	sectionNone sectionKind = iota
	sectionObjective
	sectionModel
	sectionRequirements
	sectionConstraints
	sectionCompletionCriteria
	sectionMaxIterations
	sectionCompletionPromise
	sectionBudget
	sectionGlobalSettings
	sectionTasks
	sectionDescription
	sectionPriority
	sectionDependsOn
	sectionOther
)

// sectionNames maps lowercased heading text to its kind. Never
// mutated after init.
var sectionNames = map[string]sectionKind{
	"objective":           sectionObjective,
	"model":               sectionModel,
	"requirements":        sectionRequirements,
	"constraints":         sectionConstraints,
	"completion criteria": sectionCompletionCriteria,
	"max iterations":      sectionMaxIterations,
	"completion promise":  sectionCompletionPromise,
	"budget":              sectionBudget,
	"global settings":     sectionGlobalSettings,
	"tasks":               sectionTasks,
	"description":         sectionDescription,
	"priority":            sectionPriority,
	"depends_on":          sectionDependsOn,
	"dependencies":        sectionDependsOn,
}

func classifySection(name string) sectionKind {
	if kind, ok := sectionNames[strings.ToLower(name)]; ok {
		return kind
	}
	return sectionOther
}

// ParseFile reads and parses a spec file.
func ParseFile(path string) (*Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading spec file %s: %w", path, err)
	}
	return Parse(string(data)), nil
}

// Parse converts markdown content into a Spec. Malformed field values
// are left at their defaults; structural problems are the validator's
// job, so Parse always produces a usable document.
func Parse(content string) *Spec {
	s := New()
	s.RawContent = content

	src := []byte(content)
	doc := markdown.Parser().Parse(gmtext.NewReader(src))

	st := &parseState{spec: s}
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		switch node := n.(type) {
		case *ast.Heading:
			st.flush()
			st.heading(node, src)
		case *ast.List:
			st.collectList(node, src)
		default:
			if st.section != sectionNone {
				st.lines = append(st.lines, blockLines(n, src)...)
			}
		}
	}
	st.flush()
	if st.task != nil {
		s.Tasks = append(s.Tasks, *st.task)
	}

	return s
}

// parseState carries the scan state: the active section scope, the
// task in progress, and the text and list-item accumulators.
type parseState struct {
	spec    *Spec
	section sectionKind
	task    *TaskSpec
	lines   []string
	items   []string
}

func (st *parseState) heading(node *ast.Heading, src []byte) {
	text := strings.TrimSpace(strings.Join(blockLines(node, src), " "))

	switch node.Level {
	case 1:
		// Title: "Task: Name" or "Spec: Name", label stripped.
		if rest, ok := strings.CutPrefix(text, "Task:"); ok {
			st.spec.Title = strings.TrimSpace(rest)
		} else if rest, ok := strings.CutPrefix(text, "Spec:"); ok {
			st.spec.Title = strings.TrimSpace(rest)
		} else {
			st.spec.Title = text
		}
		st.section = sectionNone
	case 2:
		st.section = classifySection(text)
	case 3:
		// Task definition: "Task: task-id".
		if id, ok := strings.CutPrefix(text, "Task:"); ok {
			if st.task != nil {
				st.spec.Tasks = append(st.spec.Tasks, *st.task)
			}
			task := NewTask(strings.TrimSpace(id))
			st.task = &task
		}
	}
}

func (st *parseState) collectList(list *ast.List, src []byte) {
	for item := list.FirstChild(); item != nil; item = item.NextSibling() {
		var itemLines []string
		var nested []*ast.List
		for child := item.FirstChild(); child != nil; child = child.NextSibling() {
			if sub, ok := child.(*ast.List); ok {
				nested = append(nested, sub)
				continue
			}
			itemLines = append(itemLines, blockLines(child, src)...)
		}
		st.items = append(st.items, strings.TrimSpace(strings.Join(itemLines, "\n")))
		for _, sub := range nested {
			st.collectList(sub, src)
		}
	}
}

// flush dispatches the accumulated section content and clears the
// accumulators. The section scope itself persists until the next
// heading of level <= 2.
func (st *parseState) flush() {
	st.processSection(strings.TrimSpace(strings.Join(st.lines, "\n")), st.items)
	st.lines = nil
	st.items = nil
}

func (st *parseState) processSection(body string, items []string) {
	spec, task := st.spec, st.task

	switch st.section {
	case sectionNone, sectionTasks, sectionOther:
		// No payload at this scope.
	case sectionObjective:
		if task != nil {
			task.Description = body
		} else {
			spec.Objective = body
		}
	case sectionModel:
		if model, err := claude.ParseModel(body); err == nil {
			if task != nil {
				task.Model = &model
			} else {
				spec.Model = &model
			}
		}
	case sectionRequirements:
		reqs := parseRequirements(items)
		if task != nil {
			task.Requirements = reqs
		} else {
			spec.Requirements = reqs
		}
	case sectionConstraints:
		spec.Constraints = nonEmpty(items)
	case sectionCompletionCriteria:
		if task != nil {
			task.CompletionCriteria = body
		} else {
			spec.CompletionCriteria = body
		}
	case sectionMaxIterations:
		if n, err := strconv.Atoi(body); err == nil && n >= 0 {
			if task != nil {
				task.MaxIterations = &n
			} else {
				spec.MaxIterations = &n
			}
		}
	case sectionCompletionPromise:
		if body != "" {
			spec.CompletionPromise = &body
		}
	case sectionBudget:
		// Accepts "max_total_usd: 15.00 USD" or a bare "15.00".
		parts := strings.Split(body, ":")
		value := strings.TrimSpace(parts[len(parts)-1])
		value = strings.TrimSpace(strings.TrimSuffix(value, "USD"))
		if budget, err := strconv.ParseFloat(value, 64); err == nil {
			spec.Budget = &budget
		}
	case sectionGlobalSettings:
		spec.GlobalSettings = parseGlobalSettings(body)
	case sectionDescription:
		if task != nil {
			task.Description = body
		}
	case sectionPriority:
		if task != nil {
			if n, err := strconv.Atoi(body); err == nil && n >= 0 {
				task.Priority = n
			}
		}
	case sectionDependsOn:
		if task != nil {
			task.DependsOn = parseDependsOn(body, items)
		}
	}
}

func parseRequirements(items []string) []Requirement {
	var reqs []Requirement
	for _, item := range items {
		if item == "" {
			continue
		}
		reqs = append(reqs, parseRequirement(item))
	}
	return reqs
}

// parseRequirement applies checkbox detection: "[ ]" is incomplete,
// "[x]" or "[X]" is completed, anything else is an incomplete
// requirement from the full item text.
func parseRequirement(text string) Requirement {
	text = strings.TrimSpace(text)
	if rest, ok := strings.CutPrefix(text, "[ ]"); ok {
		return NewRequirement(strings.TrimSpace(rest))
	}
	if rest, ok := strings.CutPrefix(text, "[x]"); ok {
		return CompletedRequirement(strings.TrimSpace(rest))
	}
	if rest, ok := strings.CutPrefix(text, "[X]"); ok {
		return CompletedRequirement(strings.TrimSpace(rest))
	}
	return NewRequirement(text)
}

// parseGlobalSettings reads line-oriented "key: value" pairs.
// Unrecognized keys are ignored.
func parseGlobalSettings(body string) *GlobalSettings {
	settings := DefaultGlobalSettings()

	for _, line := range strings.Split(body, "\n") {
		key, value, ok := strings.Cut(strings.TrimSpace(line), ":")
		if !ok {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)

		switch key {
		case "default_model":
			if model, err := claude.ParseModel(value); err == nil {
				settings.DefaultModel = &model
			}
		case "max_parallel_workers":
			if n, err := strconv.Atoi(value); err == nil && n >= 0 {
				settings.MaxParallelWorkers = &n
			}
		case "completion_promise":
			settings.CompletionPromise = strings.Trim(value, `"`)
		case "max_total_usd":
			if n, err := strconv.ParseFloat(value, 64); err == nil {
				settings.MaxTotalUSD = &n
			}
		}
	}

	return settings
}

// parseDependsOn accepts an inline bracketed list "[a, b]" or, when
// no bracket form is present, the section's list items verbatim.
func parseDependsOn(body string, items []string) []string {
	if strings.HasPrefix(body, "[") && strings.HasSuffix(body, "]") {
		var deps []string
		for _, part := range strings.Split(body[1:len(body)-1], ",") {
			if dep := strings.TrimSpace(part); dep != "" {
				deps = append(deps, dep)
			}
		}
		return deps
	}
	if len(items) > 0 {
		return append([]string(nil), items...)
	}
	return nil
}

func nonEmpty(items []string) []string {
	var out []string
	for _, item := range items {
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}

// blockLines returns the raw source lines of a block node, right
// trimmed. Raw text keeps inline HTML like the promise marker intact.
func blockLines(n ast.Node, src []byte) []string {
	segments := n.Lines()
	lines := make([]string, 0, segments.Len())
	for i := 0; i < segments.Len(); i++ {
		seg := segments.At(i)
		lines = append(lines, strings.TrimRight(string(seg.Value(src)), "\n\r \t"))
	}
	return lines
}

// Generate synthesizes a Spec from a free-text description. The first
// line, truncated to 50 characters, becomes the title.
func Generate(description string, model *claude.Model) *Spec {
	title, _, _ := strings.Cut(description, "\n")
	if runes := []rune(title); len(runes) > 50 {
		title = string(runes[:50])
	}

	s := New()
	s.Title = title
	s.Objective = description
	s.Model = model
	return s
}
