package templates

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Storage resolves templates from three layers: built-ins, the user
// directory (~/.doodoori/templates), and the project directory
// (.doodoori/templates). Later layers shadow earlier ones by name.
type Storage struct {
	builtin    map[string]Template
	userDir    string
	projectDir string
}

// NewStorage builds storage rooted at the standard locations,
// creating the user directory when missing.
func NewStorage() (*Storage, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	userDir := filepath.Join(home, ".doodoori", "templates")
	if err := os.MkdirAll(userDir, 0o755); err != nil {
		return nil, err
	}

	projectDir := filepath.Join(".doodoori", "templates")
	if _, err := os.Stat(projectDir); err != nil {
		projectDir = ""
	}

	return NewStorageAt(userDir, projectDir)
}

// NewStorageAt builds storage with explicit directories. An empty
// projectDir disables the project layer.
func NewStorageAt(userDir, projectDir string) (*Storage, error) {
	builtins, err := Builtin()
	if err != nil {
		return nil, fmt.Errorf("loading builtin templates: %w", err)
	}

	byName := make(map[string]Template, len(builtins))
	for _, t := range builtins {
		byName[t.Name] = t
	}

	return &Storage{
		builtin:    byName,
		userDir:    userDir,
		projectDir: projectDir,
	}, nil
}

// List returns all available templates. User and project templates
// shadow built-ins with the same name.
func (s *Storage) List() []Template {
	merged := make(map[string]Template, len(s.builtin))
	for name, t := range s.builtin {
		merged[name] = t
	}
	for name, t := range s.loadDir(s.userDir) {
		merged[name] = t
	}
	if s.projectDir != "" {
		for name, t := range s.loadDir(s.projectDir) {
			merged[name] = t
		}
	}

	templates := make([]Template, 0, len(merged))
	for _, t := range merged {
		templates = append(templates, t)
	}
	return templates
}

// Get returns the template with the given name, project layer first.
func (s *Storage) Get(name string) (Template, bool) {
	if s.projectDir != "" {
		if t, ok := s.loadDir(s.projectDir)[name]; ok {
			return t, true
		}
	}
	if t, ok := s.loadDir(s.userDir)[name]; ok {
		return t, true
	}
	t, ok := s.builtin[name]
	return t, ok
}

// ByCategory returns the templates in a category.
func (s *Storage) ByCategory(category Category) []Template {
	var out []Template
	for _, t := range s.List() {
		if t.Category == category {
			out = append(out, t)
		}
	}
	return out
}

// ByTag returns the templates carrying a tag.
func (s *Storage) ByTag(tag string) []Template {
	var out []Template
	for _, t := range s.List() {
		if t.HasTag(tag) {
			out = append(out, t)
		}
	}
	return out
}

// SaveUser writes a template to the user directory as <name>.yaml.
func (s *Storage) SaveUser(t Template) error {
	if t.Name == "" {
		return fmt.Errorf("template name is required")
	}
	data, err := yaml.Marshal(t)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(s.userDir, t.Name+".yaml"), data, 0o644)
}

// DeleteUser removes a template from the user directory.
func (s *Storage) DeleteUser(name string) error {
	path := filepath.Join(s.userDir, name+".yaml")
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("template not found: %s", name)
	}
	return os.Remove(path)
}

// loadDir reads every *.yaml / *.yml template in dir. Unparseable
// files are skipped.
func (s *Storage) loadDir(dir string) map[string]Template {
	templates := make(map[string]Template)
	if dir == "" {
		return templates
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return templates
	}

	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			continue
		}
		var t Template
		if err := yaml.Unmarshal(data, &t); err != nil || t.Name == "" {
			fmt.Fprintf(os.Stderr, "skipping template %s: %v\n", name, err)
			continue
		}
		templates[t.Name] = t
	}
	return templates
}
