// Package charts provides the chart library: chart values built from tables
// and saved as Vega-Lite JSON or SVG under a single directory.
package charts

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/leapstack-labs/leapask/pkg/frame"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

// ModuleName is the library root generated code loads charts from.
const ModuleName = "chart"

// Mark is the kind of chart.
type Mark string

const (
	MarkBar  Mark = "bar"
	MarkLine Mark = "line"
)

// Chart is a single-series chart of y against x.
type Chart struct {
	Mark   Mark
	Title  string
	X, Y   string
	Labels []string
	Values []float64
}

// Charts saves charts under one directory and remembers what it wrote.
type Charts struct {
	dir    string
	mu     sync.Mutex
	paths  []string
	logger *slog.Logger
}

// New creates a chart library writing under dir.
// If logger is nil, a discard logger is used.
func New(dir string, logger *slog.Logger) *Charts {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Charts{dir: dir, logger: logger}
}

// Dir returns the directory charts are written to.
func (c *Charts) Dir() string { return c.dir }

// Written returns the paths saved since the last Reset, in order.
func (c *Charts) Written() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.paths...)
}

// Reset forgets the saved paths.
func (c *Charts) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paths = nil
}

// Module returns the chart Starlark module: chart.bar, chart.line and chart.save.
func (c *Charts) Module() *starlarkstruct.Module {
	return &starlarkstruct.Module{
		Name: ModuleName,
		Members: starlark.StringDict{
			"bar":  starlark.NewBuiltin("bar", build(MarkBar)),
			"line": starlark.NewBuiltin("line", build(MarkLine)),
			"save": starlark.NewBuiltin("save", c.save),
		},
	}
}

func build(mark Mark) func(*starlark.Thread, *starlark.Builtin, starlark.Tuple, []starlark.Tuple) (starlark.Value, error) {
	return func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var tv *frame.TableValue
		var x, y, title string
		if err := starlark.UnpackArgs(b.Name(), args, kwargs, "table", &tv, "x", &x, "y", &y, "title?", &title); err != nil {
			return nil, err
		}
		ch, err := FromTable(mark, tv.Table(), x, y)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", b.Name(), err)
		}
		ch.Title = title
		return &Value{chart: ch}, nil
	}
}

// FromTable builds a chart from columns x and y of t. Rows with a nil y are
// skipped.
func FromTable(mark Mark, t *frame.Table, x, y string) (*Chart, error) {
	xs, err := t.Column(x)
	if err != nil {
		return nil, err
	}
	ys, err := t.Column(y)
	if err != nil {
		return nil, err
	}
	ch := &Chart{Mark: mark, X: x, Y: y}
	for i := range ys {
		if ys[i] == nil {
			continue
		}
		f, ok := toFloat(ys[i])
		if !ok {
			return nil, fmt.Errorf("column %q is not numeric: %v", y, ys[i])
		}
		ch.Labels = append(ch.Labels, label(xs[i]))
		ch.Values = append(ch.Values, f)
	}
	return ch, nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func label(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func (c *Charts) save(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var v *Value
	var path string
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "chart", &v, "path", &path); err != nil {
		return nil, err
	}
	written, err := c.Save(v.chart, path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}
	return starlark.String(written), nil
}

// Save writes ch to path and returns the path written. A .json path gets a
// Vega-Lite spec, anything else an SVG. A path outside the charts directory
// is replaced by its base name inside it.
func (c *Charts) Save(ch *Chart, path string) (string, error) {
	target, err := c.confine(path)
	if err != nil {
		return "", err
	}

	var data []byte
	if strings.EqualFold(filepath.Ext(target), ".json") {
		data, err = VegaLite(ch)
		if err != nil {
			return "", err
		}
	} else {
		if !strings.EqualFold(filepath.Ext(target), ".svg") {
			target = strings.TrimSuffix(target, filepath.Ext(target)) + ".svg"
		}
		data = []byte(SVG(ch))
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
		return "", fmt.Errorf("failed to create charts directory: %w", err)
	}
	if err := os.WriteFile(target, data, 0o600); err != nil {
		return "", fmt.Errorf("failed to write chart: %w", err)
	}
	c.logger.Debug("saved chart", slog.String("path", target), slog.String("mark", string(ch.Mark)))

	c.mu.Lock()
	c.paths = append(c.paths, target)
	c.mu.Unlock()
	return target, nil
}

func (c *Charts) confine(path string) (string, error) {
	dir, err := filepath.Abs(c.dir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve charts directory: %w", err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve chart path: %w", err)
	}
	if rel, err := filepath.Rel(dir, abs); err == nil && rel != "." && !strings.HasPrefix(rel, "..") {
		return filepath.Join(c.dir, rel), nil
	}
	base := filepath.Base(path)
	if base == "." || base == string(filepath.Separator) || base == ".." {
		return "", fmt.Errorf("invalid chart path %q", path)
	}
	c.logger.Debug("chart path outside charts directory", slog.String("path", path), slog.String("dir", c.dir))
	return filepath.Join(c.dir, base), nil
}

// Value is a chart as seen by Starlark.
type Value struct {
	chart *Chart
}

var (
	_ starlark.Value    = (*Value)(nil)
	_ starlark.HasAttrs = (*Value)(nil)
)

// Chart returns the underlying chart.
func (v *Value) Chart() *Chart { return v.chart }

func (v *Value) String() string {
	return fmt.Sprintf("<chart %s %s by %s>", v.chart.Mark, v.chart.Y, v.chart.X)
}

// Type implements starlark.Value.
func (v *Value) Type() string { return "chart" }

// Freeze implements starlark.Value. Charts are immutable.
func (v *Value) Freeze() {}

// Truth implements starlark.Value.
func (v *Value) Truth() starlark.Bool { return true }

// Hash implements starlark.Value.
func (v *Value) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: chart") }

// Attr implements starlark.HasAttrs.
func (v *Value) Attr(name string) (starlark.Value, error) {
	switch name {
	case "mark":
		return starlark.String(v.chart.Mark), nil
	case "title":
		return starlark.String(v.chart.Title), nil
	case "x":
		return starlark.String(v.chart.X), nil
	case "y":
		return starlark.String(v.chart.Y), nil
	}
	return nil, nil
}

// AttrNames implements starlark.HasAttrs.
func (v *Value) AttrNames() []string { return []string{"mark", "title", "x", "y"} }
