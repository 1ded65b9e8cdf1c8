// Package template stores named directive-string templates and
// expands `{placeholder}` substitutions into launchable batches. A set
// of built-in environments ships with the server; additional templates
// load from yaml files and reload on change.
package template

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"overture/internal/logging"
)

// Template is one named, ordered list of directive strings.
type Template struct {
	Name        string   `yaml:"name" json:"name"`
	Description string   `yaml:"description" json:"description,omitempty"`
	Directives  []string `yaml:"directives" json:"directives"`
	Builtin     bool     `yaml:"-" json:"builtin"`
}

// UnknownTemplateError reports an expansion request for a template the
// store does not hold.
type UnknownTemplateError struct {
	Name string
}

func (e *UnknownTemplateError) Error() string {
	return fmt.Sprintf("unknown template %q", e.Name)
}

// MissingSubstitutionError reports a placeholder with neither a
// supplied value nor a default.
type MissingSubstitutionError struct {
	Template string
	Key      string
}

func (e *MissingSubstitutionError) Error() string {
	return fmt.Sprintf("template %q: no value for placeholder %q", e.Template, e.Key)
}

// Placeholders are `{key}` or `{key:default}`.
var placeholderPattern = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)(?::([^{}]*))?\}`)

// Store holds templates by name. Built-ins are seeded at construction;
// LoadDir merges file-backed templates over them.
type Store struct {
	logger *logging.Logger

	mu        sync.RWMutex
	builtins  map[string]Template
	fromFiles map[string]Template
}

func NewStore(logger *logging.Logger) *Store {
	s := &Store{
		logger:    logger,
		builtins:  make(map[string]Template),
		fromFiles: make(map[string]Template),
	}
	for _, t := range builtinTemplates() {
		t.Builtin = true
		s.builtins[t.Name] = t
	}
	return s
}

// List returns every template sorted by name. File-backed templates
// shadow built-ins of the same name.
func (s *Store) List() []Template {
	s.mu.RLock()
	defer s.mu.RUnlock()

	merged := make(map[string]Template, len(s.builtins)+len(s.fromFiles))
	for name, t := range s.builtins {
		merged[name] = t
	}
	for name, t := range s.fromFiles {
		merged[name] = t
	}

	out := make([]Template, 0, len(merged))
	for _, t := range merged {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s *Store) Get(name string) (Template, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if t, ok := s.fromFiles[name]; ok {
		return t, true
	}
	t, ok := s.builtins[name]
	return t, ok
}

// Expand interpolates the named template's placeholders and returns
// the directive strings ready to launch.
func (s *Store) Expand(name string, values map[string]string) ([]string, error) {
	t, ok := s.Get(name)
	if !ok {
		return nil, &UnknownTemplateError{Name: name}
	}

	out := make([]string, 0, len(t.Directives))
	for _, raw := range t.Directives {
		var missing *MissingSubstitutionError
		expanded := placeholderPattern.ReplaceAllStringFunc(raw, func(match string) string {
			groups := placeholderPattern.FindStringSubmatch(match)
			key := groups[1]
			if value, ok := values[key]; ok {
				return value
			}
			// A default is present whenever the match carries a colon.
			if strings.Contains(match, ":") {
				return groups[2]
			}
			if missing == nil {
				missing = &MissingSubstitutionError{Template: name, Key: key}
			}
			return match
		})
		if missing != nil {
			return nil, missing
		}
		out = append(out, expanded)
	}
	return out, nil
}

// LoadDir replaces the file-backed template set from every yaml file
// in dir. A missing dir leaves only the built-ins. Files that fail to
// parse are skipped with a warning so one bad file cannot take down
// the rest.
func (s *Store) LoadDir(dir string) error {
	if dir == "" {
		return nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	loaded := make(map[string]Template)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		t, err := loadFile(path)
		if err != nil {
			s.logger.Warn("skipping template file", map[string]string{
				"path":  path,
				"error": err.Error(),
			})
			continue
		}
		loaded[t.Name] = t
	}

	s.mu.Lock()
	s.fromFiles = loaded
	s.mu.Unlock()

	s.logger.Info("templates loaded", map[string]string{
		"dir":   dir,
		"count": fmt.Sprintf("%d", len(loaded)),
	})
	return nil
}

func loadFile(path string) (Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Template{}, err
	}
	var t Template
	if err := yaml.Unmarshal(data, &t); err != nil {
		return Template{}, err
	}
	if t.Name == "" {
		t.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if len(t.Directives) == 0 {
		return Template{}, fmt.Errorf("template %q has no directives", t.Name)
	}
	return t, nil
}

func builtinTemplates() []Template {
	return []Template{
		{
			Name:        "textual_dev",
			Description: "Single app development with live reload and console",
			Directives: []string{
				"APP#green=textual serve {app_name}.py --port {port:8000}",
				"CONSOLE#blue+1=textual console",
				"DEV+2=textual run --dev {app_name}.py",
				"BROWSER+3=xdg-open http://localhost:{port:8000}",
			},
		},
		{
			Name:        "full_stack",
			Description: "Complete stack with database, multiple services, and monitoring",
			Directives: []string{
				"DB#blue|silent=mongod --quiet --dbpath /tmp/textual_db",
				"REDIS#red|silent=redis-server --port 6380",
				"API#green+2=textual serve api_tester.py --port 8001",
				"MONITOR#yellow+API=textual serve process_monitor.py --port 8002",
				"FILE_BROWSER#cyan+API=textual serve file_browser.py --port 8003",
				"DASHBOARD+5=xdg-open http://localhost:8001",
			},
		},
		{
			Name:        "testing_pipeline",
			Description: "Automated testing workflow with linting, typing, and coverage",
			Directives: []string{
				"LINT#yellow=ruff check {package:.}",
				"TYPE#blue+LINT=mypy {package:.}",
				"TEST#green+TYPE=pytest tests/ -v",
				"COVERAGE+TEST=coverage report --show-missing",
				"CLEANUP+COVERAGE|end=echo 'Testing pipeline completed successfully'",
			},
		},
		{
			Name:        "development_stack",
			Description: "Multi-service development environment with coordination",
			Directives: []string{
				"API#green=textual serve api_tester.py --port 8001",
				"FILE_MGR#cyan+1=textual serve file_browser.py --port 8002",
				"PROC_MON#yellow+1=textual serve process_monitor.py --port 8003",
				"GATEWAY+3=echo 'All services running - API:8001 Files:8002 Monitor:8003'",
			},
		},
	}
}
