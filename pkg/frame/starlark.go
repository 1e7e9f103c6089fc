package frame

import (
	"fmt"
	"sort"
	"strings"
	"time"

	startime "go.starlark.net/lib/time"
	"go.starlark.net/starlark"
)

// CellToStarlark converts a table cell to a Starlark value.
func CellToStarlark(v any) starlark.Value {
	switch val := v.(type) {
	case nil:
		return starlark.None
	case bool:
		return starlark.Bool(val)
	case int64:
		return starlark.MakeInt64(val)
	case float64:
		return starlark.Float(val)
	case string:
		return starlark.String(val)
	case time.Time:
		return startime.Time(val)
	default:
		return starlark.String(fmt.Sprint(val))
	}
}

// StarlarkToCell converts a scalar Starlark value to a table cell.
func StarlarkToCell(v starlark.Value) (any, error) {
	switch val := v.(type) {
	case starlark.NoneType:
		return nil, nil
	case starlark.Bool:
		return bool(val), nil
	case starlark.Int:
		if i, ok := val.Int64(); ok {
			return i, nil
		}
		return val.Float(), nil
	case starlark.Float:
		return float64(val), nil
	case starlark.String:
		return string(val), nil
	case startime.Time:
		return time.Time(val), nil
	}
	return nil, fmt.Errorf("cannot store %s in a table cell", v.Type())
}

// TableValue exposes a Table to Starlark code.
//
// t["col"] yields a column, t[["a", "b"]] a projection, len(t) the row count,
// and iterating yields rows.
type TableValue struct {
	t *Table
}

var (
	_ starlark.Mapping  = (*TableValue)(nil)
	_ starlark.Sequence = (*TableValue)(nil)
	_ starlark.HasAttrs = (*TableValue)(nil)
)

// NewTableValue wraps t.
func NewTableValue(t *Table) *TableValue {
	return &TableValue{t: t}
}

// Table returns the wrapped table.
func (v *TableValue) Table() *Table { return v.t }

func (v *TableValue) String() string {
	return fmt.Sprintf("<table rows=%d columns=[%s]>", v.t.Len(), strings.Join(v.t.columns, ", "))
}

// Type implements starlark.Value.
func (v *TableValue) Type() string { return "table" }

// Freeze implements starlark.Value. Tables are immutable.
func (v *TableValue) Freeze() {}

// Truth implements starlark.Value.
func (v *TableValue) Truth() starlark.Bool { return v.t.Len() > 0 }

// Hash implements starlark.Value.
func (v *TableValue) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: table") }

// Len implements starlark.Sequence.
func (v *TableValue) Len() int { return v.t.Len() }

// Iterate implements starlark.Iterable.
func (v *TableValue) Iterate() starlark.Iterator {
	return &indexIterator{n: v.t.Len(), at: func(i int) starlark.Value { return &RowValue{t: v.t, i: i} }}
}

// Get implements starlark.Mapping.
func (v *TableValue) Get(k starlark.Value) (starlark.Value, bool, error) {
	switch key := k.(type) {
	case starlark.String:
		values, err := v.t.Column(string(key))
		if err != nil {
			return nil, false, err
		}
		return &SeriesValue{name: string(key), values: values}, true, nil
	case *starlark.List, starlark.Tuple:
		cols, err := stringList(k)
		if err != nil {
			return nil, false, err
		}
		t, err := v.t.Select(cols...)
		if err != nil {
			return nil, false, err
		}
		return NewTableValue(t), true, nil
	}
	return nil, false, fmt.Errorf("table index must be a column name or list of names, got %s", k.Type())
}

// Attr implements starlark.HasAttrs.
func (v *TableValue) Attr(name string) (starlark.Value, error) {
	switch name {
	case "columns":
		return stringsToList(v.t.columns), nil
	case "shape":
		return starlark.Tuple{starlark.MakeInt(v.t.Len()), starlark.MakeInt(len(v.t.columns))}, nil
	}
	if m, ok := tableMethods[name]; ok {
		return starlark.NewBuiltin(name, m).BindReceiver(v), nil
	}
	return nil, nil
}

// AttrNames implements starlark.HasAttrs.
func (v *TableValue) AttrNames() []string {
	names := []string{"columns", "shape"}
	for name := range tableMethods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type builtinFn = func(*starlark.Thread, *starlark.Builtin, starlark.Tuple, []starlark.Tuple) (starlark.Value, error)

var tableMethods map[string]builtinFn

func init() {
	tableMethods = map[string]builtinFn{
		"assign":          tableAssign,
		"count":           tableCount,
		"drop_duplicates": tableDropDuplicates,
		"filter":          tableFilter,
		"groupby":         tableGroupBy,
		"head":            tableHead,
		"merge":           tableMerge,
		"nunique":         tableNUnique,
		"records":         tableRecords,
		"select":          tableSelect,
		"sort_values":     tableSortValues,
		"unique":          tableUnique,
	}
}

func receiverTable(b *starlark.Builtin) *Table {
	return b.Receiver().(*TableValue).t
}

func tableHead(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	n := 5
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "n?", &n); err != nil {
		return nil, err
	}
	return NewTableValue(receiverTable(b).Head(n)), nil
}

func tableCount(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackArgs(b.Name(), args, kwargs); err != nil {
		return nil, err
	}
	return starlark.MakeInt(receiverTable(b).Len()), nil
}

func tableFilter(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var fn starlark.Callable
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "fn", &fn); err != nil {
		return nil, err
	}
	t := receiverTable(b)
	out, err := t.FilterRows(func(i int) (bool, error) {
		res, err := starlark.Call(thread, fn, starlark.Tuple{&RowValue{t: t, i: i}}, nil)
		if err != nil {
			return false, err
		}
		return bool(res.Truth()), nil
	})
	if err != nil {
		return nil, err
	}
	return NewTableValue(out), nil
}

func tableAssign(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name string
	var fn starlark.Callable
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "name", &name, "fn", &fn); err != nil {
		return nil, err
	}
	t := receiverTable(b)
	values := make([]any, t.Len())
	for i := range values {
		res, err := starlark.Call(thread, fn, starlark.Tuple{&RowValue{t: t, i: i}}, nil)
		if err != nil {
			return nil, err
		}
		cell, err := StarlarkToCell(res)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", b.Name(), err)
		}
		values[i] = cell
	}
	out, err := t.WithColumn(name, values)
	if err != nil {
		return nil, err
	}
	return NewTableValue(out), nil
}

func tableSelect(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if len(kwargs) > 0 {
		return nil, fmt.Errorf("%s: unexpected keyword arguments", b.Name())
	}
	cols, err := stringList(args)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}
	out, err := receiverTable(b).Select(cols...)
	if err != nil {
		return nil, err
	}
	return NewTableValue(out), nil
}

func tableMerge(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var right *TableValue
	var on, leftOn, rightOn starlark.Value = starlark.None, starlark.None, starlark.None
	how := string(InnerJoin)
	if err := starlark.UnpackArgs(b.Name(), args, kwargs,
		"right", &right, "on?", &on, "how?", &how, "left_on?", &leftOn, "right_on?", &rightOn); err != nil {
		return nil, err
	}
	return merge(b.Name(), receiverTable(b), right.t, on, leftOn, rightOn, how)
}

func merge(fnname string, left, right *Table, on, leftOn, rightOn starlark.Value, how string) (starlark.Value, error) {
	opts := MergeOptions{How: JoinKind(how)}
	var err error
	if opts.On, err = optionalStrings(on); err != nil {
		return nil, fmt.Errorf("%s: on: %w", fnname, err)
	}
	if opts.LeftOn, err = optionalStrings(leftOn); err != nil {
		return nil, fmt.Errorf("%s: left_on: %w", fnname, err)
	}
	if opts.RightOn, err = optionalStrings(rightOn); err != nil {
		return nil, fmt.Errorf("%s: right_on: %w", fnname, err)
	}
	out, err := Merge(left, right, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fnname, err)
	}
	return NewTableValue(out), nil
}

func tableSortValues(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var by starlark.Value
	ascending := true
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "by", &by, "ascending?", &ascending); err != nil {
		return nil, err
	}
	cols, err := stringList(by)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}
	out, err := receiverTable(b).SortBy(cols, !ascending)
	if err != nil {
		return nil, err
	}
	return NewTableValue(out), nil
}

func tableDropDuplicates(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var subset starlark.Value = starlark.None
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "subset?", &subset); err != nil {
		return nil, err
	}
	cols, err := optionalStrings(subset)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}
	out, err := receiverTable(b).DropDuplicates(cols...)
	if err != nil {
		return nil, err
	}
	return NewTableValue(out), nil
}

func tableUnique(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var col string
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "column", &col); err != nil {
		return nil, err
	}
	values, err := receiverTable(b).Unique(col)
	if err != nil {
		return nil, err
	}
	return cellsToList(values), nil
}

func tableNUnique(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var col string
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "column", &col); err != nil {
		return nil, err
	}
	n, err := receiverTable(b).NUnique(col)
	if err != nil {
		return nil, err
	}
	return starlark.MakeInt(n), nil
}

func tableRecords(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackArgs(b.Name(), args, kwargs); err != nil {
		return nil, err
	}
	t := receiverTable(b)
	out := make([]starlark.Value, t.Len())
	for i := range out {
		d := starlark.NewDict(len(t.columns))
		for c, name := range t.columns {
			if err := d.SetKey(starlark.String(name), CellToStarlark(t.rows[i][c])); err != nil {
				return nil, err
			}
		}
		out[i] = d
	}
	return starlark.NewList(out), nil
}

func tableGroupBy(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var by starlark.Value
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "by", &by); err != nil {
		return nil, err
	}
	keys, err := stringList(by)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}
	t := receiverTable(b)
	if _, err := columnIndexes(t, keys); err != nil {
		return nil, err
	}
	return &GroupByValue{t: t, keys: keys}, nil
}

// GroupByValue is the result of table.groupby(keys).
type GroupByValue struct {
	t    *Table
	keys []string
}

var _ starlark.HasAttrs = (*GroupByValue)(nil)

func (g *GroupByValue) String() string {
	return fmt.Sprintf("<groupby [%s]>", strings.Join(g.keys, ", "))
}

// Type implements starlark.Value.
func (g *GroupByValue) Type() string { return "groupby" }

// Freeze implements starlark.Value.
func (g *GroupByValue) Freeze() {}

// Truth implements starlark.Value.
func (g *GroupByValue) Truth() starlark.Bool { return true }

// Hash implements starlark.Value.
func (g *GroupByValue) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: groupby") }

var groupReductions = []string{AggCount, AggFirst, AggMax, AggMean, AggMin, AggNUnique, AggSum}

// Attr implements starlark.HasAttrs.
func (g *GroupByValue) Attr(name string) (starlark.Value, error) {
	switch name {
	case "agg":
		return starlark.NewBuiltin(name, g.agg), nil
	case AggSize:
		return starlark.NewBuiltin(name, g.size), nil
	}
	for _, fn := range groupReductions {
		if fn == name {
			return starlark.NewBuiltin(name, g.reduce), nil
		}
	}
	return nil, nil
}

// AttrNames implements starlark.HasAttrs.
func (g *GroupByValue) AttrNames() []string {
	return append([]string{"agg", AggSize}, groupReductions...)
}

// agg takes keyword arguments of the form out=("column", "func").
func (g *GroupByValue) agg(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if len(args) > 0 {
		return nil, fmt.Errorf("%s: use keyword arguments, e.g. total=(\"amount\", \"sum\")", b.Name())
	}
	aggs := make([]Aggregation, 0, len(kwargs))
	for _, kv := range kwargs {
		name := string(kv[0].(starlark.String))
		spec, err := stringList(kv[1])
		if err != nil || len(spec) != 2 {
			return nil, fmt.Errorf("%s: %s must be a (column, func) pair", b.Name(), name)
		}
		aggs = append(aggs, Aggregation{Column: spec[0], Func: spec[1], As: name})
	}
	out, err := g.t.GroupBy(g.keys, aggs)
	if err != nil {
		return nil, err
	}
	return NewTableValue(out), nil
}

func (g *GroupByValue) size(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackArgs(b.Name(), args, kwargs); err != nil {
		return nil, err
	}
	out, err := g.t.GroupBy(g.keys, []Aggregation{{Func: AggSize}})
	if err != nil {
		return nil, err
	}
	return NewTableValue(out), nil
}

func (g *GroupByValue) reduce(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var col string
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "column", &col); err != nil {
		return nil, err
	}
	out, err := g.t.GroupBy(g.keys, []Aggregation{{Column: col, Func: b.Name()}})
	if err != nil {
		return nil, err
	}
	return NewTableValue(out), nil
}

// SeriesValue is a single column of a table.
type SeriesValue struct {
	name   string
	values []any
}

var (
	_ starlark.Indexable = (*SeriesValue)(nil)
	_ starlark.Iterable  = (*SeriesValue)(nil)
	_ starlark.HasAttrs  = (*SeriesValue)(nil)
)

// NewSeriesValue creates a named column value.
func NewSeriesValue(name string, values []any) *SeriesValue {
	return &SeriesValue{name: name, values: values}
}

// Values returns the column cells.
func (s *SeriesValue) Values() []any { return s.values }

func (s *SeriesValue) String() string {
	return fmt.Sprintf("<series %s len=%d>", s.name, len(s.values))
}

// Type implements starlark.Value.
func (s *SeriesValue) Type() string { return "series" }

// Freeze implements starlark.Value.
func (s *SeriesValue) Freeze() {}

// Truth implements starlark.Value.
func (s *SeriesValue) Truth() starlark.Bool { return len(s.values) > 0 }

// Hash implements starlark.Value.
func (s *SeriesValue) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: series") }

// Len implements starlark.Indexable.
func (s *SeriesValue) Len() int { return len(s.values) }

// Index implements starlark.Indexable.
func (s *SeriesValue) Index(i int) starlark.Value { return CellToStarlark(s.values[i]) }

// Iterate implements starlark.Iterable.
func (s *SeriesValue) Iterate() starlark.Iterator {
	return &indexIterator{n: len(s.values), at: s.Index}
}

var seriesReductions = []string{AggCount, AggMax, AggMean, AggMin, AggNUnique, AggSum}

// Attr implements starlark.HasAttrs.
func (s *SeriesValue) Attr(name string) (starlark.Value, error) {
	switch name {
	case "name":
		return starlark.String(s.name), nil
	case "unique":
		return starlark.NewBuiltin(name, s.unique), nil
	case "tolist":
		return starlark.NewBuiltin(name, s.tolist), nil
	case "value_counts":
		return starlark.NewBuiltin(name, s.valueCounts), nil
	}
	for _, fn := range seriesReductions {
		if fn == name {
			return starlark.NewBuiltin(name, s.reduce), nil
		}
	}
	return nil, nil
}

// AttrNames implements starlark.HasAttrs.
func (s *SeriesValue) AttrNames() []string {
	return append([]string{"name", "tolist", "unique", "value_counts"}, seriesReductions...)
}

func (s *SeriesValue) reduce(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackArgs(b.Name(), args, kwargs); err != nil {
		return nil, err
	}
	v, err := Reduce(b.Name(), s.values)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}
	return CellToStarlark(v), nil
}

func (s *SeriesValue) unique(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackArgs(b.Name(), args, kwargs); err != nil {
		return nil, err
	}
	return cellsToList(uniqueValues(s.values)), nil
}

func (s *SeriesValue) tolist(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackArgs(b.Name(), args, kwargs); err != nil {
		return nil, err
	}
	return cellsToList(s.values), nil
}

func (s *SeriesValue) valueCounts(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackArgs(b.Name(), args, kwargs); err != nil {
		return nil, err
	}
	counts := make(map[string]int)
	var order []any
	for _, v := range s.values {
		if v == nil {
			continue
		}
		k := Key(v)
		if counts[k] == 0 {
			order = append(order, v)
		}
		counts[k]++
	}
	sort.SliceStable(order, func(a, b int) bool { return counts[Key(order[a])] > counts[Key(order[b])] })
	d := starlark.NewDict(len(order))
	for _, v := range order {
		if err := d.SetKey(CellToStarlark(v), starlark.MakeInt(counts[Key(v)])); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// RowValue is one row of a table, indexed by column name.
type RowValue struct {
	t *Table
	i int
}

var (
	_ starlark.Mapping  = (*RowValue)(nil)
	_ starlark.HasAttrs = (*RowValue)(nil)
)

func (r *RowValue) String() string {
	parts := make([]string, len(r.t.columns))
	for c, name := range r.t.columns {
		parts[c] = fmt.Sprintf("%q: %s", name, CellToStarlark(r.t.rows[r.i][c]).String())
	}
	return "row({" + strings.Join(parts, ", ") + "})"
}

// Type implements starlark.Value.
func (r *RowValue) Type() string { return "row" }

// Freeze implements starlark.Value.
func (r *RowValue) Freeze() {}

// Truth implements starlark.Value.
func (r *RowValue) Truth() starlark.Bool { return true }

// Hash implements starlark.Value.
func (r *RowValue) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: row") }

// Get implements starlark.Mapping.
func (r *RowValue) Get(k starlark.Value) (starlark.Value, bool, error) {
	name, ok := starlark.AsString(k)
	if !ok {
		return nil, false, fmt.Errorf("row index must be a column name, got %s", k.Type())
	}
	v, err := r.t.Value(r.i, name)
	if err != nil {
		return nil, false, err
	}
	return CellToStarlark(v), true, nil
}

// Attr implements starlark.HasAttrs.
func (r *RowValue) Attr(name string) (starlark.Value, error) {
	switch name {
	case "get":
		return starlark.NewBuiltin(name, r.get), nil
	case "keys":
		return starlark.NewBuiltin(name, func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			if err := starlark.UnpackArgs(b.Name(), args, kwargs); err != nil {
				return nil, err
			}
			return stringsToList(r.t.columns), nil
		}), nil
	}
	return nil, nil
}

// AttrNames implements starlark.HasAttrs.
func (r *RowValue) AttrNames() []string { return []string{"get", "keys"} }

func (r *RowValue) get(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name string
	var dflt starlark.Value = starlark.None
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "column", &name, "default?", &dflt); err != nil {
		return nil, err
	}
	if !r.t.HasColumn(name) {
		return dflt, nil
	}
	v, _ := r.t.Value(r.i, name)
	return CellToStarlark(v), nil
}

type indexIterator struct {
	n, i int
	at   func(int) starlark.Value
}

func (it *indexIterator) Next(p *starlark.Value) bool {
	if it.i >= it.n {
		return false
	}
	*p = it.at(it.i)
	it.i++
	return true
}

func (it *indexIterator) Done() {}

func cellsToList(values []any) *starlark.List {
	out := make([]starlark.Value, len(values))
	for i, v := range values {
		out[i] = CellToStarlark(v)
	}
	return starlark.NewList(out)
}

func stringsToList(values []string) *starlark.List {
	out := make([]starlark.Value, len(values))
	for i, v := range values {
		out[i] = starlark.String(v)
	}
	return starlark.NewList(out)
}

// stringList accepts a string or an iterable of strings.
func stringList(v starlark.Value) ([]string, error) {
	if s, ok := starlark.AsString(v); ok {
		return []string{s}, nil
	}
	iter, ok := v.(starlark.Iterable)
	if !ok {
		return nil, fmt.Errorf("want string or list of strings, got %s", v.Type())
	}
	it := iter.Iterate()
	defer it.Done()
	var out []string
	var item starlark.Value
	for it.Next(&item) {
		s, ok := starlark.AsString(item)
		if !ok {
			return nil, fmt.Errorf("want string, got %s", item.Type())
		}
		out = append(out, s)
	}
	return out, nil
}

func optionalStrings(v starlark.Value) ([]string, error) {
	if v == nil || v == starlark.None {
		return nil, nil
	}
	return stringList(v)
}
