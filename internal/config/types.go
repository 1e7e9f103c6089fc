// Package config loads leapask configuration. Values are layered: defaults,
// then leapask.yaml, then LEAPASK_* environment variables, then explicitly
// set command-line flags.
package config

import (
	"fmt"
	"strings"

	"github.com/leapstack-labs/leapask/pkg/adapter"
	"github.com/leapstack-labs/leapask/pkg/core"
	"github.com/leapstack-labs/leapask/pkg/source"
)

// Config is the full leapask configuration.
type Config struct {
	// DirectSQL lets generated code query the sources with execute_sql_query.
	DirectSQL bool `koanf:"direct_sql"`
	// CustomLibraries extends the library allow-list.
	CustomLibraries []string `koanf:"custom_whitelisted_dependencies"`
	// MaxRetries is the maximum number of executions per request.
	MaxRetries      int    `koanf:"max_retries"`
	ErrorCorrection bool   `koanf:"use_error_correction_framework"`
	SaveCharts      bool   `koanf:"save_charts"`
	ChartsDir       string `koanf:"save_charts_path"`

	// LibrariesDir holds custom library modules, one .star file each.
	LibrariesDir string `koanf:"libraries_dir"`
	// SkillsDir holds .star files whose public functions become skills.
	SkillsDir string `koanf:"skills_dir"`
	// AuditPath is the SQLite execution log. Empty disables auditing.
	AuditPath string `koanf:"audit_path"`

	Verbose      bool   `koanf:"verbose"`
	OutputFormat string `koanf:"output"`

	Connections map[string]*ConnectionConfig `koanf:"connections"`
	Sources     []SourceConfig               `koanf:"sources"`

	// ConfigFile is the file the configuration was read from, if any.
	ConfigFile string `koanf:"-"`
	// ProjectRoot is the directory relative paths are resolved against.
	ProjectRoot string `koanf:"-"`
}

// ConnectionConfig is a named database connection shared by sources.
type ConnectionConfig struct {
	Type     string            `koanf:"type"`
	Path     string            `koanf:"path"`
	Host     string            `koanf:"host"`
	Port     int               `koanf:"port"`
	Database string            `koanf:"database"`
	User     string            `koanf:"user"`
	Password string            `koanf:"password"`
	Schema   string            `koanf:"schema"`
	Options  map[string]string `koanf:"options"`
	// Params holds adapter-specific settings such as DuckDB extensions.
	Params map[string]any `koanf:"params"`
}

// SourceConfig is one data source, in the order generated code sees it.
type SourceConfig struct {
	Name string `koanf:"name"`
	// Table defaults to Name.
	Table string `koanf:"table"`
	// CSV loads the source from a file. With a connection the file is
	// loaded into Table on that connection, so SQL queries can read it.
	CSV        string `koanf:"csv"`
	Connection string `koanf:"connection"`
}

// AdapterConfig converts c for the adapter registry.
func (c *ConnectionConfig) AdapterConfig() core.AdapterConfig {
	return core.AdapterConfig{
		Type:     strings.ToLower(c.Type),
		Path:     c.Path,
		Host:     c.Host,
		Port:     c.Port,
		Database: c.Database,
		Username: c.User,
		Password: c.Password,
		Schema:   c.Schema,
		Options:  c.Options,
		Params:   c.Params,
	}
}

// Validate checks the configuration for mistakes that would only surface
// once a source is opened or code runs.
func (c *Config) Validate() error {
	if c.MaxRetries < 1 {
		return fmt.Errorf("max_retries must be at least 1, got %d", c.MaxRetries)
	}
	if !validFormats[c.OutputFormat] {
		return fmt.Errorf("unknown output format %q (want auto, table, json, yaml or md)", c.OutputFormat)
	}

	for name, conn := range c.Connections {
		if conn == nil || conn.Type == "" {
			return fmt.Errorf("connection %s: type is required", name)
		}
		if !adapter.IsRegistered(strings.ToLower(conn.Type)) {
			return fmt.Errorf("connection %s: %w", name, &adapter.UnknownAdapterError{
				Type:      conn.Type,
				Available: adapter.ListAdapters(),
			})
		}
	}

	seen := make(map[string]bool, len(c.Sources))
	for i, s := range c.Sources {
		if s.Name == "" {
			return fmt.Errorf("sources[%d]: name is required", i)
		}
		key := strings.ToLower(s.Name)
		if seen[key] {
			return fmt.Errorf("source %s is defined twice", s.Name)
		}
		seen[key] = true

		switch {
		case s.CSV == "" && s.Connection == "":
			return fmt.Errorf("source %s: either csv or connection is required", s.Name)
		case s.Connection != "" && c.Connections[s.Connection] == nil:
			return fmt.Errorf("source %s: unknown connection %q", s.Name, s.Connection)
		}
	}
	return nil
}

// SourceSpecs returns the source specs to open, in configuration order.
func (c *Config) SourceSpecs() []source.Spec {
	specs := make([]source.Spec, 0, len(c.Sources))
	for _, s := range c.Sources {
		spec := source.Spec{Name: s.Name, Table: s.Table, CSV: s.CSV}
		if conn := c.Connections[s.Connection]; conn != nil {
			spec.Adapter = conn.AdapterConfig()
		}
		specs = append(specs, spec)
	}
	return specs
}

var validFormats = map[string]bool{
	"auto":  true,
	"table": true,
	"json":  true,
	"yaml":  true,
	"md":    true,
}
