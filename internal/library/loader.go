package library

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
	"go.starlark.net/syntax"
)

// Loader scans a directory for .star files and loads each one as a library
// named after the file.
type Loader struct {
	dir         string
	predeclared starlark.StringDict
	logger      *slog.Logger
}

// NewLoader creates a loader for dir. predeclared is what library code sees
// besides the Starlark universe, typically the frame module.
// If logger is nil, a discard logger is used.
func NewLoader(dir string, predeclared starlark.StringDict, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Loader{dir: dir, predeclared: predeclared, logger: logger}
}

// Dir returns the directory the loader scans.
func (l *Loader) Dir() string { return l.dir }

// LoadedModule is a library loaded from a .star file.
type LoadedModule struct {
	// Name is derived from the filename, e.g. "geo" from "geo.star".
	Name string

	// Path is the path to the .star file.
	Path string

	// Exports contains the public globals (names not starting with _).
	Exports starlark.StringDict
}

// Module returns the library as a Starlark module value.
func (m *LoadedModule) Module() *starlarkstruct.Module {
	return &starlarkstruct.Module{Name: m.Name, Members: m.Exports}
}

// Load loads every .star file in the directory, sorted by name.
// A missing directory yields no modules.
func (l *Loader) Load() ([]*LoadedModule, error) {
	info, err := os.Stat(l.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to access library directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("library path is not a directory: %s", l.dir)
	}

	files, err := filepath.Glob(filepath.Join(l.dir, "*.star"))
	if err != nil {
		return nil, fmt.Errorf("failed to scan library directory: %w", err)
	}
	sort.Strings(files)

	modules := make([]*LoadedModule, 0, len(files))
	for _, file := range files {
		m, err := l.loadFile(file)
		if err != nil {
			return nil, err
		}
		l.logger.Debug("loaded library", slog.String("name", m.Name), slog.Int("exports", len(m.Exports)))
		modules = append(modules, m)
	}
	return modules, nil
}

var fileOptions = &syntax.FileOptions{Set: true, TopLevelControl: true, GlobalReassign: true}

func (l *Loader) loadFile(path string) (*LoadedModule, error) {
	content, err := os.ReadFile(path) //nolint:gosec // path comes from a glob inside the library directory
	if err != nil {
		return nil, &LoadError{File: path, Message: fmt.Sprintf("failed to read file: %v", err)}
	}

	name := strings.TrimSuffix(filepath.Base(path), ".star")
	if err := ValidateName(name); err != nil {
		return nil, &LoadError{File: path, Message: err.Error()}
	}

	thread := &starlark.Thread{
		Name:  "library:" + name,
		Print: func(_ *starlark.Thread, msg string) { l.logger.Debug("library output", slog.String("library", name), slog.String("msg", msg)) },
	}
	globals, err := starlark.ExecFileOptions(fileOptions, thread, path, content, l.predeclared)
	if err != nil {
		return nil, &LoadError{File: path, Message: fmt.Sprintf("starlark execution error: %v", err)}
	}

	exports := make(starlark.StringDict, len(globals))
	for k, v := range globals {
		if !strings.HasPrefix(k, "_") {
			exports[k] = v
		}
	}
	return &LoadedModule{Name: name, Path: path, Exports: exports}, nil
}

// ValidateName checks that name is a valid Starlark identifier.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("name cannot be empty")
	}
	for i, r := range name {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && r >= '0' && r <= '9':
		case i == 0:
			return fmt.Errorf("name must start with a letter or underscore: %s", name)
		default:
			return fmt.Errorf("name contains invalid character: %s", name)
		}
	}
	return nil
}

// LoadError reports a .star file that could not be loaded.
type LoadError struct {
	File    string
	Message string
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("%s: %s", filepath.Base(e.File), e.Message)
}
