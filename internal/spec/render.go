package spec

import (
	"fmt"
	"strings"
)

// ToMarkdown renders the spec back to canonical markdown. Sections
// appear in a fixed order and unset fields are omitted; only the
// semantic round-trip is guaranteed, not byte identity with the
// original content.
func (s *Spec) ToMarkdown() string {
	var md strings.Builder

	fmt.Fprintf(&md, "# Task: %s\n\n", s.Title)
	fmt.Fprintf(&md, "## Objective\n%s\n\n", s.Objective)

	if s.Model != nil {
		fmt.Fprintf(&md, "## Model\n%s\n\n", *s.Model)
	}

	if len(s.Requirements) > 0 {
		md.WriteString("## Requirements\n")
		writeRequirements(&md, s.Requirements)
		md.WriteString("\n")
	}

	if len(s.Constraints) > 0 {
		md.WriteString("## Constraints\n")
		for _, constraint := range s.Constraints {
			fmt.Fprintf(&md, "- %s\n", constraint)
		}
		md.WriteString("\n")
	}

	if s.CompletionCriteria != "" {
		fmt.Fprintf(&md, "## Completion Criteria\n%s\n\n", s.CompletionCriteria)
	}

	if s.MaxIterations != nil {
		fmt.Fprintf(&md, "## Max Iterations\n%d\n\n", *s.MaxIterations)
	}

	if s.CompletionPromise != nil {
		fmt.Fprintf(&md, "## Completion Promise\n%s\n", *s.CompletionPromise)
	}

	return md.String()
}

// ToPrompt compiles the spec into the instruction prompt handed to
// the agent, ending with the completion marker it must emit.
func (s *Spec) ToPrompt() string {
	var prompt strings.Builder

	fmt.Fprintf(&prompt, "# Task: %s\n\n", s.Title)
	fmt.Fprintf(&prompt, "## Objective\n%s\n\n", s.Objective)

	if len(s.Requirements) > 0 {
		prompt.WriteString("## Requirements\n")
		writeRequirements(&prompt, s.Requirements)
		prompt.WriteString("\n")
	}

	if len(s.Constraints) > 0 {
		prompt.WriteString("## Constraints\n")
		for _, constraint := range s.Constraints {
			fmt.Fprintf(&prompt, "- %s\n", constraint)
		}
		prompt.WriteString("\n")
	}

	if s.CompletionCriteria != "" {
		fmt.Fprintf(&prompt, "## Completion Criteria\n%s\n\n", s.CompletionCriteria)
	}

	prompt.WriteString("---\n\n")
	fmt.Fprintf(&prompt,
		"When you have completed all requirements, output the completion marker: %s\n",
		s.EffectiveCompletionPromise())

	return prompt.String()
}

// ToPrompt compiles a single task into its own instruction prompt.
// The completion marker comes from the enclosing spec.
func (t *TaskSpec) ToPrompt(promise string) string {
	var prompt strings.Builder

	fmt.Fprintf(&prompt, "# Task: %s\n\n", t.ID)
	if t.Description != "" {
		fmt.Fprintf(&prompt, "## Objective\n%s\n\n", t.Description)
	}

	if len(t.Requirements) > 0 {
		prompt.WriteString("## Requirements\n")
		writeRequirements(&prompt, t.Requirements)
		prompt.WriteString("\n")
	}

	if t.CompletionCriteria != "" {
		fmt.Fprintf(&prompt, "## Completion Criteria\n%s\n\n", t.CompletionCriteria)
	}

	prompt.WriteString("---\n\n")
	fmt.Fprintf(&prompt,
		"When you have completed all requirements, output the completion marker: %s\n",
		promise)

	return prompt.String()
}

func writeRequirements(w *strings.Builder, reqs []Requirement) {
	for _, req := range reqs {
		checkbox := "[ ]"
		if req.Completed {
			checkbox = "[x]"
		}
		fmt.Fprintf(w, "- %s %s\n", checkbox, req.Description)
	}
}
