package frame

import (
	"fmt"
	"time"

	startime "go.starlark.net/lib/time"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

// ToStarlark converts a Go value to a Starlark value.
// Supported types: the cell types, *Table, []string, []any, map[string]any.
func ToStarlark(v any) (starlark.Value, error) {
	switch val := v.(type) {
	case *Table:
		return NewTableValue(val), nil

	case []string:
		return stringsToList(val), nil

	case []any:
		list := make([]starlark.Value, len(val))
		for i, item := range val {
			sv, err := ToStarlark(item)
			if err != nil {
				return nil, fmt.Errorf("list index %d: %w", i, err)
			}
			list[i] = sv
		}
		return starlark.NewList(list), nil

	case map[string]any:
		dict := starlark.NewDict(len(val))
		for k, item := range val {
			sv, err := ToStarlark(item)
			if err != nil {
				return nil, fmt.Errorf("dict key %q: %w", k, err)
			}
			if err := dict.SetKey(starlark.String(k), sv); err != nil {
				return nil, fmt.Errorf("dict setkey %q: %w", k, err)
			}
		}
		return dict, nil
	}

	cell, err := Normalize(v)
	if err != nil {
		return nil, err
	}
	return CellToStarlark(cell), nil
}

// ToGo converts a Starlark value back to a Go value.
// Returns: nil, string, int64, float64, bool, time.Time, *Table, []any or map[string]any.
// Dict keys that are not strings are rendered with their Starlark representation.
func ToGo(v starlark.Value) (any, error) {
	switch val := v.(type) {
	case starlark.NoneType:
		return nil, nil

	case starlark.String:
		return string(val), nil

	case starlark.Int:
		i64, ok := val.Int64()
		if !ok {
			// Fallback for very large integers - convert to string
			return val.String(), nil
		}
		return i64, nil

	case starlark.Float:
		return float64(val), nil

	case starlark.Bool:
		return bool(val), nil

	case startime.Time:
		return time.Time(val), nil

	case *TableValue:
		return val.t, nil

	case *SeriesValue:
		return append([]any(nil), val.values...), nil

	case *RowValue:
		rec := make(map[string]any, len(val.t.columns))
		for c, name := range val.t.columns {
			rec[name] = val.t.rows[val.i][c]
		}
		return rec, nil

	case *starlark.List:
		return iterableToGo(val, val.Len())

	case starlark.Tuple:
		return iterableToGo(val, val.Len())

	case *starlark.Set:
		return iterableToGo(val, val.Len())

	case *starlark.Dict:
		result := make(map[string]any, val.Len())
		for _, item := range val.Items() {
			key, ok := starlark.AsString(item[0])
			if !ok {
				key = item[0].String()
			}
			gv, err := ToGo(item[1])
			if err != nil {
				return nil, fmt.Errorf("dict key %q: %w", key, err)
			}
			result[key] = gv
		}
		return result, nil

	case *starlarkstruct.Struct:
		result := make(map[string]any)
		for _, name := range val.AttrNames() {
			attr, err := val.Attr(name)
			if err != nil {
				return nil, err
			}
			gv, err := ToGo(attr)
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", name, err)
			}
			result[name] = gv
		}
		return result, nil

	default:
		// Try to get a string representation
		return val.String(), nil
	}
}

func iterableToGo(v starlark.Iterable, n int) ([]any, error) {
	result := make([]any, 0, n)
	it := v.Iterate()
	defer it.Done()
	var item starlark.Value
	for i := 0; it.Next(&item); i++ {
		gv, err := ToGo(item)
		if err != nil {
			return nil, fmt.Errorf("index %d: %w", i, err)
		}
		result = append(result, gv)
	}
	return result, nil
}
