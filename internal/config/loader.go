package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// Config file names, in lookup order.
const (
	FileName    = "leapask.yaml"
	FileNameAlt = "leapask.yml"
)

// EnvPrefix prefixes environment variables: LEAPASK_MAX_RETRIES sets max_retries.
const EnvPrefix = "LEAPASK_"

// Defaults.
const (
	DefaultMaxRetries   = 3
	DefaultChartsDir    = "exports/charts"
	DefaultLibrariesDir = "libraries"
	DefaultSkillsDir    = "skills"
	DefaultAuditPath    = ".leapask/audit.db"
	DefaultOutput       = "auto"
)

// flagKeys maps flag names whose config key is not the snake_case flag name.
var flagKeys = map[string]string{
	"error-correction": "use_error_correction_framework",
	"charts-dir":       "save_charts_path",
	"library":          "custom_whitelisted_dependencies",
	"audit":            "audit_path",
}

// Load reads configuration. cfgFile may be empty, in which case leapask.yaml
// is looked up in the working directory. Only flags that were explicitly set
// override other layers; flags may be nil.
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(map[string]any{
		"direct_sql":                     false,
		"max_retries":                    DefaultMaxRetries,
		"use_error_correction_framework": true,
		"save_charts":                    false,
		"save_charts_path":               DefaultChartsDir,
		"libraries_dir":                  DefaultLibrariesDir,
		"skills_dir":                     DefaultSkillsDir,
		"audit_path":                     DefaultAuditPath,
		"verbose":                        false,
		"output":                         DefaultOutput,
	}, "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	used := findConfigFile(cfgFile)
	if cfgFile != "" && used == "" {
		return nil, fmt.Errorf("config file %s not found", cfgFile)
	}
	if used != "" {
		if err := k.Load(file.Provider(used), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", used, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			if !f.Changed {
				return "", nil
			}
			key, ok := flagKeys[f.Name]
			if !ok {
				key = strings.ReplaceAll(f.Name, "-", "_")
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	cfg.ConfigFile = used
	cfg.ProjectRoot = projectRoot(used)
	cfg.resolvePaths()
	cfg.expandEnvVars()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// findConfigFile returns explicit if it exists, else the first default name
// found in the working directory, else "".
func findConfigFile(explicit string) string {
	if explicit != "" {
		if _, err := os.Stat(explicit); err == nil {
			return explicit
		}
		return ""
	}
	for _, name := range []string{FileName, FileNameAlt} {
		if _, err := os.Stat(name); err == nil {
			return name
		}
	}
	return ""
}

func projectRoot(cfgFile string) string {
	if cfgFile != "" {
		if abs, err := filepath.Abs(cfgFile); err == nil {
			return filepath.Dir(abs)
		}
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return cwd
}

// resolvePaths anchors relative paths at the project root.
func (c *Config) resolvePaths() {
	c.ChartsDir = resolvePathRelativeTo(c.ChartsDir, c.ProjectRoot)
	c.LibrariesDir = resolvePathRelativeTo(c.LibrariesDir, c.ProjectRoot)
	c.SkillsDir = resolvePathRelativeTo(c.SkillsDir, c.ProjectRoot)
	if c.AuditPath != ":memory:" {
		c.AuditPath = resolvePathRelativeTo(c.AuditPath, c.ProjectRoot)
	}
	for i := range c.Sources {
		c.Sources[i].CSV = resolvePathRelativeTo(c.Sources[i].CSV, c.ProjectRoot)
	}
	for _, conn := range c.Connections {
		if conn != nil && conn.Path != "" && conn.Path != ":memory:" {
			conn.Path = resolvePathRelativeTo(conn.Path, c.ProjectRoot)
		}
	}
}

func resolvePathRelativeTo(path, baseDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnv replaces ${VAR} with the value of VAR. Unset variables are left
// as written so the failure names them.
func expandEnv(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if val, ok := os.LookupEnv(match[2 : len(match)-1]); ok {
			return val
		}
		return match
	})
}

// expandEnvVars expands ${VAR} in connection credentials.
func (c *Config) expandEnvVars() {
	for _, conn := range c.Connections {
		if conn == nil {
			continue
		}
		conn.Host = expandEnv(conn.Host)
		conn.Database = expandEnv(conn.Database)
		conn.User = expandEnv(conn.User)
		conn.Password = expandEnv(conn.Password)
		conn.Path = expandEnv(conn.Path)
	}
}
