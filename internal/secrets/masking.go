// Package secrets filters sensitive values out of log and agent
// output before it reaches the terminal or notification channels.
package secrets

import (
	"fmt"
	"os"
	"regexp"
	"strings"
)

type pattern struct {
	re          *regexp.Regexp
	replacement string
}

// secretPatterns covers common credential shapes. Order matters: the
// anthropic prefix must match before the generic sk- prefix. Never
// mutated after init.
var secretPatterns = []pattern{
	{regexp.MustCompile(`sk-ant-[a-zA-Z0-9_-]{20,}`), "sk-ant-***"},
	{regexp.MustCompile(`sk-[a-zA-Z0-9_-]{20,}`), "sk-***"},
	{regexp.MustCompile(`ghp_[a-zA-Z0-9]{36,}`), "ghp_***"},
	{regexp.MustCompile(`gho_[a-zA-Z0-9]{36,}`), "gho_***"},
	{regexp.MustCompile(`ghu_[a-zA-Z0-9]{36,}`), "ghu_***"},
	{regexp.MustCompile(`AKIA[A-Z0-9]{16}`), "AKIA***"},
	{regexp.MustCompile(`(?i)(api[_-]?key|secret[_-]?key|access[_-]?token|auth[_-]?token)\s*[=:]\s*['"]?[a-zA-Z0-9_-]{20,}['"]?`), "${1}=***"},
	{regexp.MustCompile(`(?i)bearer\s+[a-zA-Z0-9_.=-]{20,}`), "Bearer ***"},
}

// sensitiveEnvVars are always checked; their current values are
// replaced with a ${NAME} placeholder wherever they appear.
var sensitiveEnvVars = []string{
	"ANTHROPIC_API_KEY",
	"OPENAI_API_KEY",
	"GITHUB_TOKEN",
	"GH_TOKEN",
	"AWS_ACCESS_KEY_ID",
	"AWS_SECRET_ACCESS_KEY",
	"DOCKER_PASSWORD",
	"NPM_TOKEN",
	"PYPI_TOKEN",
}

// Masker replaces sensitive data in text with placeholders.
type Masker struct {
	custom  []pattern
	envVars []string
}

func New() *Masker {
	return &Masker{}
}

// AddPattern registers an additional regex to mask.
func (m *Masker) AddPattern(expr, replacement string) error {
	re, err := regexp.Compile(expr)
	if err != nil {
		return fmt.Errorf("compiling mask pattern: %w", err)
	}
	m.custom = append(m.custom, pattern{re: re, replacement: replacement})
	return nil
}

// AddEnvVar registers an additional environment variable whose value
// should be masked.
func (m *Masker) AddEnvVar(name string) {
	m.envVars = append(m.envVars, name)
}

// Mask returns text with all recognized secrets replaced.
func (m *Masker) Mask(text string) string {
	for _, p := range secretPatterns {
		text = p.re.ReplaceAllString(text, p.replacement)
	}
	for _, p := range m.custom {
		text = p.re.ReplaceAllString(text, p.replacement)
	}
	for _, name := range m.allEnvVars() {
		value := os.Getenv(name)
		if value != "" && strings.Contains(text, value) {
			text = strings.ReplaceAll(text, value, "${"+name+"}")
		}
	}
	return text
}

// ContainsSecrets reports whether text holds any recognizable secret.
func (m *Masker) ContainsSecrets(text string) bool {
	for _, p := range secretPatterns {
		if p.re.MatchString(text) {
			return true
		}
	}
	for _, p := range m.custom {
		if p.re.MatchString(text) {
			return true
		}
	}
	for _, name := range m.allEnvVars() {
		value := os.Getenv(name)
		if value != "" && strings.Contains(text, value) {
			return true
		}
	}
	return false
}

func (m *Masker) allEnvVars() []string {
	if len(m.envVars) == 0 {
		return sensitiveEnvVars
	}
	all := make([]string, 0, len(sensitiveEnvVars)+len(m.envVars))
	all = append(all, sensitiveEnvVars...)
	all = append(all, m.envVars...)
	return all
}
