package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	// Register adapters so connection types validate.
	_ "github.com/leapstack-labs/leapask/pkg/adapters/duckdb"
	_ "github.com/leapstack-labs/leapask/pkg/adapters/postgres"
	_ "github.com/leapstack-labs/leapask/pkg/adapters/sqlite"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.Empty(t, cfg.ConfigFile)
	assert.False(t, cfg.DirectSQL)
	assert.Equal(t, DefaultMaxRetries, cfg.MaxRetries)
	assert.True(t, cfg.ErrorCorrection)
	assert.False(t, cfg.SaveCharts)
	assert.Equal(t, filepath.Join(cfg.ProjectRoot, DefaultChartsDir), cfg.ChartsDir)
	assert.Equal(t, filepath.Join(cfg.ProjectRoot, DefaultSkillsDir), cfg.SkillsDir)
	assert.Equal(t, DefaultOutput, cfg.OutputFormat)
	assert.Empty(t, cfg.Sources)
}

func TestLoad_File(t *testing.T) {
	t.Setenv("WAREHOUSE_PASSWORD", "s3cret")
	path := writeConfig(t, `
direct_sql: true
custom_whitelisted_dependencies: [geo]
max_retries: 5
use_error_correction_framework: false
save_charts: true
save_charts_path: out/charts
connections:
  warehouse:
    type: postgres
    host: db.internal
    port: 5432
    database: sales
    user: analyst
    password: ${WAREHOUSE_PASSWORD}
  local:
    type: duckdb
    path: data/local.duckdb
    params:
      extensions: [httpfs]
sources:
  - name: orders
    connection: warehouse
  - name: customers
    table: crm_customers
    connection: warehouse
  - name: targets
    csv: data/targets.csv
`)
	cfg, err := Load(path, nil)
	require.NoError(t, err)
	root := filepath.Dir(path)

	assert.Equal(t, path, cfg.ConfigFile)
	assert.Equal(t, root, cfg.ProjectRoot)
	assert.True(t, cfg.DirectSQL)
	assert.Equal(t, []string{"geo"}, cfg.CustomLibraries)
	assert.Equal(t, 5, cfg.MaxRetries)
	assert.False(t, cfg.ErrorCorrection)
	assert.True(t, cfg.SaveCharts)
	assert.Equal(t, filepath.Join(root, "out/charts"), cfg.ChartsDir)

	require.Contains(t, cfg.Connections, "warehouse")
	assert.Equal(t, "s3cret", cfg.Connections["warehouse"].Password)
	assert.Equal(t, filepath.Join(root, "data/local.duckdb"), cfg.Connections["local"].Path)
	assert.Equal(t, []any{"httpfs"}, cfg.Connections["local"].Params["extensions"])

	specs := cfg.SourceSpecs()
	require.Len(t, specs, 3)
	assert.Equal(t, "orders", specs[0].Name)
	assert.Equal(t, "postgres", specs[0].Adapter.Type)
	assert.Equal(t, "analyst", specs[0].Adapter.Username)
	assert.Equal(t, "crm_customers", specs[1].Table)
	assert.True(t, specs[0].Adapter.SameConnection(specs[1].Adapter))
	assert.Equal(t, filepath.Join(root, "data/targets.csv"), specs[2].CSV)
	assert.Empty(t, specs[2].Adapter.Type)
}

func TestLoad_Precedence(t *testing.T) {
	path := writeConfig(t, "max_retries: 5\noutput: table\n")

	t.Run("env overrides file", func(t *testing.T) {
		t.Setenv("LEAPASK_MAX_RETRIES", "7")
		cfg, err := Load(path, nil)
		require.NoError(t, err)
		assert.Equal(t, 7, cfg.MaxRetries)
		assert.Equal(t, "table", cfg.OutputFormat)
	})

	t.Run("changed flags override env", func(t *testing.T) {
		t.Setenv("LEAPASK_MAX_RETRIES", "7")
		flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
		flags.Int("max-retries", 3, "")
		flags.Bool("error-correction", true, "")
		flags.String("output", "auto", "")
		require.NoError(t, flags.Parse([]string{"--max-retries=2", "--error-correction=false"}))

		cfg, err := Load(path, flags)
		require.NoError(t, err)
		assert.Equal(t, 2, cfg.MaxRetries)
		assert.False(t, cfg.ErrorCorrection)
		assert.Equal(t, "table", cfg.OutputFormat, "unchanged flags keep lower layers")
	})
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), nil)
	assert.ErrorContains(t, err, "not found")
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			MaxRetries:   3,
			OutputFormat: "auto",
			Connections:  map[string]*ConnectionConfig{"db": {Type: "sqlite"}},
			Sources:      []SourceConfig{{Name: "orders", Connection: "db"}},
		}
	}

	tests := []struct {
		name   string
		modify func(c *Config)
		want   string
	}{
		{name: "valid", modify: func(*Config) {}},
		{name: "zero retries", modify: func(c *Config) { c.MaxRetries = 0 }, want: "max_retries must be at least 1"},
		{name: "unknown format", modify: func(c *Config) { c.OutputFormat = "xml" }, want: "unknown output format"},
		{name: "connection without type", modify: func(c *Config) { c.Connections["db"].Type = "" }, want: "type is required"},
		{name: "unknown adapter", modify: func(c *Config) { c.Connections["db"].Type = "mysql" }, want: "unknown adapter type"},
		{name: "unnamed source", modify: func(c *Config) { c.Sources[0].Name = "" }, want: "sources[0]: name is required"},
		{
			name:   "duplicate source",
			modify: func(c *Config) { c.Sources = append(c.Sources, SourceConfig{Name: "Orders", Connection: "db"}) },
			want:   "defined twice",
		},
		{name: "csv loaded into a connection", modify: func(c *Config) { c.Sources[0].CSV = "x.csv" }},
		{name: "neither", modify: func(c *Config) { c.Sources[0].Connection = "" }, want: "either csv or connection"},
		{name: "unknown connection", modify: func(c *Config) { c.Sources[0].Connection = "other" }, want: `unknown connection "other"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.modify(c)
			err := c.Validate()
			if tt.want == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("LEAPASK_TEST_USER", "ada")
	assert.Equal(t, "ada@host", expandEnv("${LEAPASK_TEST_USER}@host"))
	assert.Equal(t, "${LEAPASK_TEST_UNSET}", expandEnv("${LEAPASK_TEST_UNSET}"))
	assert.Equal(t, "plain", expandEnv("plain"))
}
