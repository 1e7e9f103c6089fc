// Package output renders command results for terminals and scripts.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/leapstack-labs/leapask/pkg/frame"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"
)

// Mode selects the output format.
type Mode string

// Output modes.
const (
	ModeAuto     Mode = "auto"
	ModeTable    Mode = "table"
	ModeJSON     Mode = "json"
	ModeYAML     Mode = "yaml"
	ModeMarkdown Mode = "md"
)

// Renderer writes results in the selected mode.
type Renderer struct {
	out    io.Writer
	errOut io.Writer
	mode   Mode
	isTTY  bool
}

// NewRenderer creates a renderer, detecting whether out is a terminal.
func NewRenderer(out, errOut io.Writer, mode Mode) *Renderer {
	tty := false
	if f, ok := out.(*os.File); ok {
		tty = term.IsTerminal(int(f.Fd()))
	}
	return NewRendererWithTTY(out, errOut, tty, mode)
}

// NewRendererWithTTY creates a renderer with an explicit terminal state.
func NewRendererWithTTY(out, errOut io.Writer, isTTY bool, mode Mode) *Renderer {
	if mode == "" {
		mode = ModeAuto
	}
	return &Renderer{out: out, errOut: errOut, mode: mode, isTTY: isTTY}
}

// EffectiveMode resolves auto: tables on a terminal, markdown otherwise.
func (r *Renderer) EffectiveMode() Mode {
	if r.mode != ModeAuto {
		return r.mode
	}
	if r.isTTY {
		return ModeTable
	}
	return ModeMarkdown
}

// IsTTY reports whether output goes to a terminal.
func (r *Renderer) IsTTY() bool { return r.isTTY }

// Writer returns the output writer.
func (r *Renderer) Writer() io.Writer { return r.out }

// Println writes a line to the output.
func (r *Renderer) Println(a ...any) {
	_, _ = fmt.Fprintln(r.out, a...)
}

// Warnf writes a formatted line to the error output.
func (r *Renderer) Warnf(format string, a ...any) {
	_, _ = fmt.Fprintf(r.errOut, format+"\n", a...)
}

// Encode writes v as JSON or YAML when that mode is selected and reports
// whether it did.
func (r *Renderer) Encode(v any) (bool, error) {
	switch r.EffectiveMode() {
	case ModeJSON:
		enc := json.NewEncoder(r.out)
		enc.SetIndent("", "  ")
		return true, enc.Encode(v)
	case ModeYAML:
		enc := yaml.NewEncoder(r.out)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return true, err
		}
		return true, enc.Close()
	}
	return false, nil
}

// Table renders rows under header.
func (r *Renderer) Table(header []string, rows [][]any) error {
	if ok, err := r.Encode(records(header, rows)); ok {
		return err
	}

	t := table.NewWriter()
	t.SetOutputMirror(r.out)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(toRow(header))
	for _, row := range rows {
		out := make(table.Row, len(row))
		for i, v := range row {
			out[i] = FormatValue(v)
		}
		t.AppendRow(out)
	}

	if r.EffectiveMode() == ModeMarkdown {
		t.RenderMarkdown()
	} else {
		t.Render()
	}
	return nil
}

// Value renders an execution result: tables as tables, maps as key/value
// rows followed by the tables they hold, anything else as a single line.
func (r *Renderer) Value(v any) error {
	switch v := v.(type) {
	case *frame.Table:
		if ok, err := r.Encode(Plain(v)); ok {
			return err
		}
		return r.Frame(v)
	case map[string]any:
		if ok, err := r.Encode(Plain(v)); ok {
			return err
		}
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var rows [][]any
		var tables []string
		for _, k := range keys {
			if _, ok := v[k].(*frame.Table); ok {
				tables = append(tables, k)
				continue
			}
			rows = append(rows, []any{k, v[k]})
		}
		if len(rows) > 0 {
			if err := r.Table([]string{"key", "value"}, rows); err != nil {
				return err
			}
		}
		for _, k := range tables {
			r.Println(k + ":")
			if err := r.Frame(v[k].(*frame.Table)); err != nil {
				return err
			}
		}
		return nil
	default:
		if ok, err := r.Encode(Plain(v)); ok {
			return err
		}
		r.Println(FormatValue(v))
		return nil
	}
}

// Frame renders a frame table.
func (r *Renderer) Frame(t *frame.Table) error {
	cols, rows := frameRows(t)
	if err := r.Table(cols, rows); err != nil {
		return err
	}
	if m := r.EffectiveMode(); m == ModeTable || m == ModeMarkdown {
		r.Println(fmt.Sprintf("(%d rows)", t.Len()))
	}
	return nil
}

// FormatValue renders a cell for display.
func FormatValue(v any) string {
	if v == nil {
		return "NULL"
	}
	return fmt.Sprintf("%v", v)
}

func toRow(values []string) table.Row {
	row := make(table.Row, len(values))
	for i, v := range values {
		row[i] = v
	}
	return row
}

func records(header []string, rows [][]any) []map[string]any {
	out := make([]map[string]any, len(rows))
	for i, row := range rows {
		rec := make(map[string]any, len(header))
		for j, h := range header {
			if j < len(row) {
				rec[h] = row[j]
			}
		}
		out[i] = rec
	}
	return out
}

// Plain converts v for JSON or YAML encoding: tables, including those nested
// in maps and lists, become lists of records.
func Plain(v any) any {
	switch v := v.(type) {
	case *frame.Table:
		return records(frameRows(v))
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, x := range v {
			out[k] = Plain(x)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, x := range v {
			out[i] = Plain(x)
		}
		return out
	}
	return v
}

func frameRows(t *frame.Table) ([]string, [][]any) {
	cols := t.Columns()
	rows := make([][]any, t.Len())
	for i := range rows {
		row := make([]any, len(cols))
		for j, c := range cols {
			row[j], _ = t.Value(i, c)
		}
		rows[i] = row
	}
	return cols, rows
}
