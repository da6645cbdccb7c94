// Package templates provides reusable task prompts with variable
// substitution, combining built-in templates with user and project
// YAML files.
package templates

import (
	"fmt"
	"strings"
)

// Category groups templates by what they do.
type Category string

const (
	CategoryScaffold Category = "scaffold"
	CategoryRefactor Category = "refactor"
	CategoryTest     Category = "test"
	CategoryFix      Category = "fix"
	CategoryDocs     Category = "docs"
	CategoryCustom   Category = "custom"
)

// Template is a named prompt with variable placeholders.
type Template struct {
	Name                 string     `yaml:"name"`
	Description          string     `yaml:"description"`
	Category             Category   `yaml:"category"`
	Prompt               string     `yaml:"prompt"`
	Variables            []Variable `yaml:"variables,omitempty"`
	DefaultModel         string     `yaml:"default_model,omitempty"`
	DefaultMaxIterations int        `yaml:"default_max_iterations,omitempty"`
	Tags                 []string   `yaml:"tags,omitempty"`
}

// Variable is a placeholder used in a template prompt as {name}.
type Variable struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Default     string `yaml:"default,omitempty"`
	Required    bool   `yaml:"required,omitempty"`
}

// Render substitutes the provided values into the prompt. Missing
// optional variables without defaults are left untouched.
func (t *Template) Render(values map[string]string) (string, error) {
	result := t.Prompt

	for _, v := range t.Variables {
		value, ok := values[v.Name]
		if !ok {
			if v.Default != "" {
				value = v.Default
			} else if v.Required {
				return "", fmt.Errorf("missing required variable: %s", v.Name)
			} else {
				continue
			}
		}
		result = strings.ReplaceAll(result, "{"+v.Name+"}", value)
	}

	return result, nil
}

// ValidateVariables checks that every required variable without a
// default has a value.
func (t *Template) ValidateVariables(values map[string]string) error {
	for _, v := range t.Variables {
		if v.Required && v.Default == "" {
			if _, ok := values[v.Name]; !ok {
				return fmt.Errorf("missing required variable: %s (use --var %s=<value>): %s",
					v.Name, v.Name, v.Description)
			}
		}
	}
	return nil
}

// HasTag reports whether the template carries the given tag.
func (t *Template) HasTag(tag string) bool {
	for _, candidate := range t.Tags {
		if candidate == tag {
			return true
		}
	}
	return false
}
