package frame

import (
	"fmt"
	"math"
	"sort"
)

// JoinKind selects merge semantics.
type JoinKind string

// JoinKind values.
const (
	InnerJoin JoinKind = "inner"
	LeftJoin  JoinKind = "left"
)

// MergeOptions configures Merge. When On is set it is used for both sides.
type MergeOptions struct {
	On      []string
	LeftOn  []string
	RightOn []string
	How     JoinKind
}

// Merge joins two tables on key columns. Non-key columns present on both
// sides are suffixed with _x and _y. Row order follows the left table.
func Merge(left, right *Table, opts MergeOptions) (*Table, error) {
	leftOn, rightOn := opts.LeftOn, opts.RightOn
	if len(opts.On) > 0 {
		leftOn, rightOn = opts.On, opts.On
	}
	if len(leftOn) == 0 {
		leftOn = commonColumns(left, right)
		rightOn = leftOn
	}
	if len(leftOn) == 0 || len(leftOn) != len(rightOn) {
		return nil, fmt.Errorf("merge requires the same number of key columns on both sides")
	}
	how := opts.How
	if how == "" {
		how = InnerJoin
	}
	if how != InnerJoin && how != LeftJoin {
		return nil, fmt.Errorf("unsupported merge kind %q", how)
	}

	li, err := columnIndexes(left, leftOn)
	if err != nil {
		return nil, err
	}
	ri, err := columnIndexes(right, rightOn)
	if err != nil {
		return nil, err
	}

	sharedKeys := make(map[string]bool)
	for i := range leftOn {
		if leftOn[i] == rightOn[i] {
			sharedKeys[rightOn[i]] = true
		}
	}

	// Output schema: all left columns, then right columns except shared keys.
	var cols []string
	var rightKeep []int
	for _, c := range left.columns {
		if right.HasColumn(c) && !sharedKeys[c] {
			cols = append(cols, c+"_x")
		} else {
			cols = append(cols, c)
		}
	}
	for j, c := range right.columns {
		if sharedKeys[c] {
			continue
		}
		rightKeep = append(rightKeep, j)
		if left.HasColumn(c) {
			cols = append(cols, c+"_y")
		} else {
			cols = append(cols, c)
		}
	}

	lookup := make(map[string][]int)
	for r, row := range right.rows {
		if hasNil(row, ri) {
			continue
		}
		k := rowKey(row, ri)
		lookup[k] = append(lookup[k], r)
	}

	var rows [][]any
	for _, lrow := range left.rows {
		var matches []int
		if !hasNil(lrow, li) {
			matches = lookup[rowKey(lrow, li)]
		}
		if len(matches) == 0 && how == LeftJoin {
			cells := append([]any(nil), lrow...)
			cells = append(cells, make([]any, len(rightKeep))...)
			rows = append(rows, cells)
			continue
		}
		for _, r := range matches {
			cells := append([]any(nil), lrow...)
			for _, j := range rightKeep {
				cells = append(cells, right.rows[r][j])
			}
			rows = append(rows, cells)
		}
	}
	return New(cols, rows)
}

// Concat stacks tables vertically. The result has the union of all columns in
// first-seen order; missing cells are nil.
func Concat(tables ...*Table) (*Table, error) {
	var cols []string
	seen := make(map[string]bool)
	for _, t := range tables {
		for _, c := range t.columns {
			if !seen[c] {
				seen[c] = true
				cols = append(cols, c)
			}
		}
	}
	var rows [][]any
	for _, t := range tables {
		for _, row := range t.rows {
			cells := make([]any, len(cols))
			for c, name := range cols {
				if j, ok := t.index[name]; ok {
					cells[c] = row[j]
				}
			}
			rows = append(rows, cells)
		}
	}
	return New(cols, rows)
}

// Aggregation names supported by GroupBy and column reductions.
const (
	AggCount   = "count"
	AggSize    = "size"
	AggSum     = "sum"
	AggMean    = "mean"
	AggMin     = "min"
	AggMax     = "max"
	AggNUnique = "nunique"
	AggFirst   = "first"
)

// Aggregation describes one output column of a grouped aggregate.
type Aggregation struct {
	Column string
	Func   string
	As     string
}

// GroupBy groups rows by key columns and computes the aggregations. Groups are
// ordered by key, matching sorted group output.
func (t *Table) GroupBy(keys []string, aggs []Aggregation) (*Table, error) {
	ki, err := columnIndexes(t, keys)
	if err != nil {
		return nil, err
	}
	type group struct {
		key  []any
		rows [][]any
	}
	groups := make(map[string]*group)
	var order []string
	for _, row := range t.rows {
		k := rowKey(row, ki)
		g, ok := groups[k]
		if !ok {
			key := make([]any, len(ki))
			for i, j := range ki {
				key[i] = row[j]
			}
			g = &group{key: key}
			groups[k] = g
			order = append(order, k)
		}
		g.rows = append(g.rows, row)
	}
	sort.SliceStable(order, func(a, b int) bool {
		ka, kb := groups[order[a]].key, groups[order[b]].key
		for i := range ka {
			if c := Compare(ka[i], kb[i]); c != 0 {
				return c < 0
			}
		}
		return false
	})

	cols := append([]string(nil), keys...)
	aggIdx := make([]int, len(aggs))
	for i, a := range aggs {
		name := a.As
		if name == "" {
			name = a.Column
			if a.Func == AggSize {
				name = "size"
			}
		}
		cols = append(cols, name)
		if a.Func == AggSize {
			aggIdx[i] = -1
			continue
		}
		j, ok := t.index[a.Column]
		if !ok {
			return nil, &ColumnError{Column: a.Column, Available: t.columns}
		}
		aggIdx[i] = j
	}

	rows := make([][]any, 0, len(order))
	for _, k := range order {
		g := groups[k]
		cells := append([]any(nil), g.key...)
		for i, a := range aggs {
			var values []any
			if aggIdx[i] >= 0 {
				values = make([]any, len(g.rows))
				for r, row := range g.rows {
					values[r] = row[aggIdx[i]]
				}
			} else {
				values = make([]any, len(g.rows))
			}
			v, err := Reduce(a.Func, values)
			if err != nil {
				return nil, fmt.Errorf("aggregate %s(%s): %w", a.Func, a.Column, err)
			}
			cells = append(cells, v)
		}
		rows = append(rows, cells)
	}
	return New(cols, rows)
}

// Reduce applies a named aggregation to a list of cells. Nil values are
// skipped except by size.
func Reduce(fn string, values []any) (any, error) {
	switch fn {
	case AggSize:
		return int64(len(values)), nil
	case AggCount:
		n := int64(0)
		for _, v := range values {
			if v != nil {
				n++
			}
		}
		return n, nil
	case AggNUnique:
		n := int64(0)
		for _, v := range uniqueValues(values) {
			if v != nil {
				n++
			}
		}
		return n, nil
	case AggFirst:
		for _, v := range values {
			if v != nil {
				return v, nil
			}
		}
		return nil, nil
	case AggMin, AggMax:
		var best any
		for _, v := range values {
			if v == nil {
				continue
			}
			if best == nil {
				best = v
				continue
			}
			c, ok := compare(v, best)
			if !ok {
				return nil, fmt.Errorf("cannot compare %T with %T", v, best)
			}
			if (fn == AggMin && c < 0) || (fn == AggMax && c > 0) {
				best = v
			}
		}
		return best, nil
	case AggSum, AggMean:
		var isum int64
		var fsum float64
		allInt := true
		n := 0
		for _, v := range values {
			switch val := v.(type) {
			case nil:
				continue
			case int64:
				isum += val
				fsum += float64(val)
			case float64:
				allInt = false
				fsum += val
			case bool:
				isum += int64(boolInt(val))
				fsum += float64(boolInt(val))
			default:
				return nil, fmt.Errorf("cannot %s values of type %T", fn, v)
			}
			n++
		}
		if fn == AggSum {
			if allInt {
				return isum, nil
			}
			return fsum, nil
		}
		if n == 0 {
			return math.NaN(), nil
		}
		return fsum / float64(n), nil
	}
	return nil, fmt.Errorf("unknown aggregation %q", fn)
}

func columnIndexes(t *Table, cols []string) ([]int, error) {
	idx := make([]int, len(cols))
	for i, c := range cols {
		j, ok := t.index[c]
		if !ok {
			return nil, &ColumnError{Column: c, Available: t.columns}
		}
		idx[i] = j
	}
	return idx, nil
}

func commonColumns(a, b *Table) []string {
	var out []string
	for _, c := range a.columns {
		if b.HasColumn(c) {
			out = append(out, c)
		}
	}
	return out
}

func hasNil(row []any, idx []int) bool {
	for _, j := range idx {
		if row[j] == nil {
			return true
		}
	}
	return false
}
