package source

import (
	"fmt"
	"strings"

	"github.com/leapstack-labs/leapask/pkg/adapter"
	"github.com/leapstack-labs/leapask/pkg/core"
)

// A pushed predicate may keep rows the generated code would drop, since the
// code still applies its own filter to what it receives. It must never drop
// a row the code would keep or fail on.

// valueClass groups values that compare with each other the same way in SQL
// and in generated code.
type valueClass int

const (
	classUnknown valueClass = iota
	classNumber
	classText
	classBool
)

// Declared types by class, keyed by the type name without its arguments.
// Types that scan into strings, such as NUMERIC and HUGEINT, and blank-padded
// CHAR are left out.
var (
	numberTypes = map[string]bool{
		"INTEGER": true, "INT": true, "INT2": true, "INT4": true, "INT8": true,
		"BIGINT": true, "SMALLINT": true, "TINYINT": true, "MEDIUMINT": true,
		"UBIGINT": true, "UINTEGER": true, "USMALLINT": true, "UTINYINT": true,
		"REAL": true, "FLOAT": true, "FLOAT4": true, "FLOAT8": true,
		"DOUBLE": true, "DOUBLE PRECISION": true,
	}
	textTypes = map[string]bool{
		"TEXT": true, "VARCHAR": true, "CHARACTER VARYING": true, "STRING": true, "CLOB": true,
	}
	boolTypes = map[string]bool{"BOOLEAN": true, "BOOL": true}
)

// typeofNames are the SQLite typeof() results of each class.
var typeofNames = map[valueClass]string{
	classNumber: "'integer', 'real'",
	classText:   "'text'",
}

func columnClass(col *core.Column, d *adapter.Dialect) valueClass {
	if col == nil {
		return classUnknown
	}
	t := strings.ToUpper(strings.TrimSpace(col.Type))
	if i := strings.IndexByte(t, '('); i >= 0 {
		t = strings.TrimSpace(t[:i])
	}
	switch {
	case numberTypes[t]:
		return classNumber
	case textTypes[t]:
		return classText
	case boolTypes[t] && !d.DynamicTypes:
		return classBool
	}
	return classUnknown
}

func literalClass(v any) valueClass {
	switch v.(type) {
	case int, int64, float64:
		return classNumber
	case string:
		return classText
	case bool:
		return classBool
	}
	return classUnknown
}

// operand returns the column operand that compares with v in SQL the way the
// generated code compares them, or false when there is none.
func operand(d *adapter.Dialect, name string, class valueClass, v any) (string, bool) {
	if class == classUnknown || literalClass(v) != class {
		return "", false
	}
	if class != classText {
		return name, true
	}
	if d.BinaryCollation == "" {
		return "", false
	}
	return name + " COLLATE " + d.BinaryCollation, true
}

// renderPredicate renders p as a SQL condition on a column described by col,
// which is nil when unknown. It reports false when p cannot be pushed.
func renderPredicate(d *adapter.Dialect, p core.FilterPredicate, col *core.Column) (string, bool, error) {
	if !p.Op.Valid() {
		return "", false, fmt.Errorf("unsupported comparator %q", p.Op)
	}
	name := d.QuoteIdentifier(p.Column)
	class := columnClass(col, d)

	switch p.Op {
	case core.OpIs, core.OpEq:
		if p.Value == nil {
			return name + " IS NULL", true, nil
		}
		// SQL equality never rejects a row generated code calls equal.
		lit, err := d.QuoteLiteral(p.Value)
		if err != nil {
			return "", false, err
		}
		return name + " = " + lit, true, nil

	case core.OpIsNot, core.OpNeq:
		if p.Value == nil {
			return name + " IS NOT NULL", true, nil
		}
		lit, err := d.QuoteLiteral(p.Value)
		if err != nil {
			return "", false, err
		}
		lhs, ok := operand(d, name, class, p.Value)
		if !ok {
			return "", false, nil
		}
		return fmt.Sprintf("(%s <> %s OR %s IS NULL)", lhs, lit, name), true, nil

	case core.OpIn, core.OpNotIn:
		list, ok := p.Value.([]any)
		if !ok {
			return "", false, fmt.Errorf("%s requires a list value, got %T", p.Op, p.Value)
		}
		var items []string
		hasNil := false
		for _, v := range list {
			if v == nil {
				hasNil = true
				continue
			}
			lit, err := d.QuoteLiteral(v)
			if err != nil {
				return "", false, err
			}
			items = append(items, lit)
		}
		if p.Op == core.OpIn {
			return renderIn(name, items, hasNil), true, nil
		}
		return renderNotIn(d, name, class, list, items, hasNil)
	}

	if p.Value == nil || class == classBool {
		return "", false, nil
	}
	lit, err := d.QuoteLiteral(p.Value)
	if err != nil {
		return "", false, err
	}
	lhs, ok := operand(d, name, class, p.Value)
	if !ok {
		return "", false, nil
	}
	cond := fmt.Sprintf("%s %s %s", lhs, p.Op, lit)

	// Rows the generated code cannot order, NULL or of another type, are
	// kept so the code fails on them as it would unfiltered.
	switch {
	case d.DynamicTypes:
		return fmt.Sprintf("(%s OR typeof(%s) NOT IN (%s))", cond, name, typeofNames[class]), true, nil
	case col.Nullable:
		return fmt.Sprintf("(%s OR %s IS NULL)", cond, name), true, nil
	}
	return cond, true, nil
}

func renderIn(name string, items []string, hasNil bool) string {
	var conds []string
	if len(items) > 0 {
		conds = append(conds, fmt.Sprintf("%s IN (%s)", name, strings.Join(items, ", ")))
	}
	if hasNil {
		conds = append(conds, name+" IS NULL")
	}
	switch len(conds) {
	case 0:
		return "FALSE"
	case 1:
		return conds[0]
	}
	return "(" + strings.Join(conds, " OR ") + ")"
}

func renderNotIn(d *adapter.Dialect, name string, class valueClass, list []any, items []string, hasNil bool) (string, bool, error) {
	lhs := name
	for _, v := range list {
		if v == nil {
			continue
		}
		op, ok := operand(d, name, class, v)
		if !ok {
			return "", false, nil
		}
		lhs = op
	}
	switch {
	case len(items) == 0 && hasNil:
		return name + " IS NOT NULL", true, nil
	case len(items) == 0:
		return "TRUE", true, nil
	case hasNil:
		// a NULL cell is in the list and NOT IN drops it
		return fmt.Sprintf("%s NOT IN (%s)", lhs, strings.Join(items, ", ")), true, nil
	}
	return fmt.Sprintf("(%s NOT IN (%s) OR %s IS NULL)", lhs, strings.Join(items, ", "), name), true, nil
}
