package core

import (
	"fmt"
	"sort"
	"strings"
)

// Comparator is one of the fixed symbolic comparison operators used in
// pushdown predicates.
type Comparator string

// Comparator values.
const (
	OpEq    Comparator = "="
	OpNeq   Comparator = "!="
	OpLt    Comparator = "<"
	OpLte   Comparator = "<="
	OpGt    Comparator = ">"
	OpGte   Comparator = ">="
	OpIs    Comparator = "is"
	OpIsNot Comparator = "is not"
	OpIn    Comparator = "in"
	OpNotIn Comparator = "not in"
)

// Valid reports whether c is part of the comparator vocabulary.
func (c Comparator) Valid() bool {
	switch c {
	case OpEq, OpNeq, OpLt, OpLte, OpGt, OpGte, OpIs, OpIsNot, OpIn, OpNotIn:
		return true
	}
	return false
}

// FilterPredicate is a single column comparison, e.g. price > 10.
// Value is a Go literal (nil, bool, int64, float64, string) or a []any
// of literals for the in/not in comparators.
type FilterPredicate struct {
	Column string
	Op     Comparator
	Value  any
}

func (p FilterPredicate) String() string {
	return fmt.Sprintf("%s %s %s", p.Column, p.Op, FormatLiteral(p.Value))
}

// Predicates groups pushdown predicates by data source index.
type Predicates map[int][]FilterPredicate

// For returns the predicates for source index i (nil when none).
func (p Predicates) For(i int) []FilterPredicate {
	if p == nil {
		return nil
	}
	return p[i]
}

// Indexes returns the source indexes that carry predicates, sorted.
func (p Predicates) Indexes() []int {
	out := make([]int, 0, len(p))
	for i := range p {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}

// FormatLiteral renders a predicate value the way it appears in code.
func FormatLiteral(v any) string {
	switch val := v.(type) {
	case nil:
		return "None"
	case string:
		return fmt.Sprintf("%q", val)
	case bool:
		if val {
			return "True"
		}
		return "False"
	case []any:
		parts := make([]string, len(val))
		for i, item := range val {
			parts[i] = FormatLiteral(item)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	default:
		return fmt.Sprintf("%v", val)
	}
}
