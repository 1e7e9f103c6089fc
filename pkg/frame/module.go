package frame

import (
	"fmt"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

// ModuleName is the name generated code uses to reach the frame module.
const ModuleName = "frame"

// Module is the frame Starlark module: frame.DataFrame, frame.concat and frame.merge.
var Module = &starlarkstruct.Module{
	Name: ModuleName,
	Members: starlark.StringDict{
		"DataFrame": starlark.NewBuiltin("DataFrame", dataFrame),
		"concat":    starlark.NewBuiltin("concat", concat),
		"merge":     starlark.NewBuiltin("merge", mergeBuiltin),
	},
}

// dataFrame builds a table from {"col": [values]} or [{"col": value}, ...].
func dataFrame(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var data starlark.Value
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "data", &data); err != nil {
		return nil, err
	}
	var t *Table
	var err error
	if d, ok := data.(*starlark.Dict); ok {
		t, err = fromDict(d)
	} else {
		t, err = fromRecordList(data)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}
	return NewTableValue(t), nil
}

// fromDict keeps the dict's key order as the column order.
func fromDict(d *starlark.Dict) (*Table, error) {
	order := make([]string, 0, d.Len())
	data := make(map[string]any, d.Len())
	for _, item := range d.Items() {
		name, ok := starlark.AsString(item[0])
		if !ok {
			return nil, fmt.Errorf("column names must be strings, got %s", item[0].Type())
		}
		values, err := ToGo(item[1])
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", name, err)
		}
		order = append(order, name)
		data[name] = values
	}
	return fromColumns(data, order)
}

func fromRecordList(v starlark.Value) (*Table, error) {
	if tv, ok := v.(*TableValue); ok {
		return tv.t, nil
	}
	goVal, err := ToGo(v)
	if err != nil {
		return nil, err
	}
	list, ok := goVal.([]any)
	if !ok {
		return nil, fmt.Errorf("want dict of columns or list of dicts, got %s", v.Type())
	}
	records := make([]map[string]any, len(list))
	for i, item := range list {
		rec, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("record %d is %T, want dict", i, item)
		}
		records[i] = rec
	}
	return FromRecords(records)
}

func fromColumns(data map[string]any, order []string) (*Table, error) {
	n := -1
	cols := make([][]any, len(order))
	for i, name := range order {
		values, ok := data[name].([]any)
		if !ok {
			return nil, fmt.Errorf("column %q must be a list", name)
		}
		if n >= 0 && len(values) != n {
			return nil, fmt.Errorf("column %q has %d values, expected %d", name, len(values), n)
		}
		n = len(values)
		cols[i] = values
	}
	if n < 0 {
		n = 0
	}
	rows := make([][]any, n)
	for r := range rows {
		row := make([]any, len(order))
		for c := range order {
			row[c] = cols[c][r]
		}
		rows[r] = row
	}
	return New(order, rows)
}

func concat(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var tables starlark.Iterable
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "tables", &tables); err != nil {
		return nil, err
	}
	var list []*Table
	it := tables.Iterate()
	defer it.Done()
	var item starlark.Value
	for it.Next(&item) {
		switch tv := item.(type) {
		case *TableValue:
			list = append(list, tv.t)
		case starlark.NoneType:
			// Sources that were not loaded contribute nothing.
		default:
			return nil, fmt.Errorf("%s: want table, got %s", b.Name(), item.Type())
		}
	}
	out, err := Concat(list...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}
	return NewTableValue(out), nil
}

func mergeBuiltin(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var left, right *TableValue
	var on, leftOn, rightOn starlark.Value = starlark.None, starlark.None, starlark.None
	how := string(InnerJoin)
	if err := starlark.UnpackArgs(b.Name(), args, kwargs,
		"left", &left, "right", &right, "on?", &on, "how?", &how, "left_on?", &leftOn, "right_on?", &rightOn); err != nil {
		return nil, err
	}
	return merge(b.Name(), left.t, right.t, on, leftOn, rightOn, how)
}
