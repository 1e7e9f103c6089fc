package frame

import (
	"fmt"

	"github.com/leapstack-labs/leapask/pkg/core"
)

// Where keeps the rows matching every predicate. Predicates naming unknown
// columns are an error; an empty predicate list returns t unchanged.
func (t *Table) Where(preds []core.FilterPredicate) (*Table, error) {
	if len(preds) == 0 {
		return t, nil
	}
	cols := make([]int, len(preds))
	for i, p := range preds {
		c, ok := t.index[p.Column]
		if !ok {
			return nil, &ColumnError{Column: p.Column, Available: t.columns}
		}
		if !p.Op.Valid() {
			return nil, fmt.Errorf("unsupported comparator %q", p.Op)
		}
		cols[i] = c
	}
	return t.FilterRows(func(r int) (bool, error) {
		for i, p := range preds {
			ok, err := Match(p, t.rows[r][cols[i]])
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	})
}

// Match evaluates a single predicate against a cell value.
func Match(p core.FilterPredicate, v any) (bool, error) {
	switch p.Op {
	case core.OpIs:
		return Equal(v, p.Value), nil
	case core.OpIsNot:
		return !Equal(v, p.Value), nil
	case core.OpIn, core.OpNotIn:
		list, ok := p.Value.([]any)
		if !ok {
			return false, fmt.Errorf("%s requires a list value, got %T", p.Op, p.Value)
		}
		found := false
		for _, item := range list {
			if Equal(v, item) {
				found = true
				break
			}
		}
		return found == (p.Op == core.OpIn), nil
	case core.OpEq:
		return Equal(v, p.Value), nil
	case core.OpNeq:
		return !Equal(v, p.Value), nil
	}

	// Ordering None fails in generated code, so it fails here too.
	if v == nil || p.Value == nil {
		return false, fmt.Errorf("cannot order %s with %s", typeName(v), typeName(p.Value))
	}
	c, ok := compare(v, p.Value)
	if !ok {
		return false, fmt.Errorf("cannot compare %s with %s", typeName(v), typeName(p.Value))
	}
	switch p.Op {
	case core.OpLt:
		return c < 0, nil
	case core.OpLte:
		return c <= 0, nil
	case core.OpGt:
		return c > 0, nil
	case core.OpGte:
		return c >= 0, nil
	}
	return false, fmt.Errorf("unsupported comparator %q", p.Op)
}

func typeName(v any) string {
	if v == nil {
		return "None"
	}
	return fmt.Sprintf("%T", v)
}
