package library

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/leapstack-labs/leapask/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.starlark.net/starlark"
)

func TestRegistry_Builtins(t *testing.T) {
	r := NewRegistry()
	assert.Equal(t, []string{"json", "math", "stats", "time"}, r.Names())

	sqrt, ok := r.Member("math", "sqrt")
	require.True(t, ok)
	assert.Equal(t, "builtin_function_or_method", sqrt.Type())

	// a symbol the module lacks falls back to the module itself
	m, ok := r.Member("stats", "stats")
	require.True(t, ok)
	assert.Same(t, StatsModule, m)

	_, ok = r.Member("geo", "area")
	assert.False(t, ok)
}

func TestRegistry_ReplaceCustom(t *testing.T) {
	r := NewRegistry()
	first := []*LoadedModule{
		{Name: "geo", Exports: starlark.StringDict{"pi": starlark.Float(3.14)}},
		{Name: "math", Exports: starlark.StringDict{}},
	}
	conflicts := r.ReplaceCustom(first)
	assert.Equal(t, []string{"math"}, conflicts)

	_, ok := r.Member("geo", "pi")
	require.True(t, ok)

	r.ReplaceCustom([]*LoadedModule{{Name: "units", Exports: starlark.StringDict{}}})
	_, ok = r.Module("geo")
	assert.False(t, ok, "modules from a previous load are removed")
	_, ok = r.Module("units")
	assert.True(t, ok)
	sqrt, _ := r.Member("math", "sqrt")
	assert.NotNil(t, sqrt, "built-in math survives reloads")
}

func callStats(t *testing.T, name string, args ...starlark.Value) (starlark.Value, error) {
	t.Helper()
	fn, ok := StatsModule.Members[name].(starlark.Callable)
	require.True(t, ok, "stats.%s", name)
	return starlark.Call(&starlark.Thread{}, fn, args, nil)
}

func TestStats(t *testing.T) {
	values := starlark.NewList([]starlark.Value{
		starlark.MakeInt(4), starlark.None, starlark.Float(1), starlark.MakeInt(3), starlark.MakeInt(2),
	})

	tests := []struct {
		fn   string
		want float64
	}{
		{"sum", 10},
		{"mean", 2.5},
		{"median", 2.5},
		{"variance", 5.0 / 3.0},
	}
	for _, tt := range tests {
		t.Run(tt.fn, func(t *testing.T) {
			got, err := callStats(t, tt.fn, values)
			require.NoError(t, err)
			f, ok := starlark.AsFloat(got)
			require.True(t, ok)
			assert.InDelta(t, tt.want, f, 1e-9)
		})
	}

	t.Run("quantile", func(t *testing.T) {
		got, err := callStats(t, "quantile", values, starlark.Float(0.25))
		require.NoError(t, err)
		assert.Equal(t, starlark.Float(1.75), got)

		_, err = callStats(t, "quantile", values, starlark.Float(2))
		assert.ErrorContains(t, err, "between 0 and 1")
	})

	t.Run("errors", func(t *testing.T) {
		_, err := callStats(t, "mean", starlark.NewList(nil))
		assert.ErrorContains(t, err, "no values")

		_, err = callStats(t, "stdev", starlark.NewList([]starlark.Value{starlark.MakeInt(1)}))
		assert.ErrorContains(t, err, "at least two")

		_, err = callStats(t, "sum", starlark.NewList([]starlark.Value{starlark.String("x")}))
		assert.ErrorContains(t, err, "want numbers, got string")
	})
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
}

func TestLoader(t *testing.T) {
	t.Run("missing directory", func(t *testing.T) {
		modules, err := NewLoader(filepath.Join(t.TempDir(), "nope"), nil, nil).Load()
		require.NoError(t, err)
		assert.Empty(t, modules)
	})

	t.Run("loads public globals", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "geo.star", `
_R = 6371

def circumference():
    return 2 * 3.14159 * _R

UNIT = "km"
`)
		writeFile(t, dir, "notes.txt", "ignored")

		modules, err := NewLoader(dir, nil, testutil.NewTestLogger(t)).Load()
		require.NoError(t, err)
		require.Len(t, modules, 1)

		geo := modules[0]
		assert.Equal(t, "geo", geo.Name)
		assert.Contains(t, geo.Exports, "circumference")
		assert.Contains(t, geo.Exports, "UNIT")
		assert.NotContains(t, geo.Exports, "_R")
	})

	t.Run("predeclared names are visible", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "scaled.star", "FACTOR = base * 2\n")

		modules, err := NewLoader(dir, starlark.StringDict{"base": starlark.MakeInt(21)}, nil).Load()
		require.NoError(t, err)
		assert.Equal(t, starlark.MakeInt(42), modules[0].Exports["FACTOR"])
	})

	t.Run("execution error", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "broken.star", "x = 1 // 0\n")

		_, err := NewLoader(dir, nil, nil).Load()
		var loadErr *LoadError
		require.ErrorAs(t, err, &loadErr)
		assert.Contains(t, loadErr.Error(), "broken.star")
	})

	t.Run("invalid name", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "1geo.star", "x = 1\n")

		_, err := NewLoader(dir, nil, nil).Load()
		assert.ErrorContains(t, err, "must start with a letter")
	})
}

func TestValidateName(t *testing.T) {
	tests := []struct {
		name    string
		wantErr bool
	}{
		{"geo", false},
		{"_private", false},
		{"geo2", false},
		{"", true},
		{"2geo", true},
		{"geo-tools", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateName(tt.name)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestWatch(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var reloads atomic.Int32
	require.NoError(t, Watch(ctx, []string{dir, filepath.Join(dir, "missing")}, func() { reloads.Add(1) }, testutil.NewTestLogger(t)))

	writeFile(t, dir, "geo.star", "x = 1\n")
	writeFile(t, dir, "geo.star", "x = 2\n")
	writeFile(t, dir, "notes.txt", "ignored")

	assert.Eventually(t, func() bool { return reloads.Load() >= 1 }, 2*time.Second, 20*time.Millisecond)
}
