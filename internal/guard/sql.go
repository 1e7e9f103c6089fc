package guard

import (
	"fmt"
	"slices"

	"github.com/leapstack-labs/leapask/internal/sqlscan"
	"github.com/leapstack-labs/leapask/pkg/core"
	"go.starlark.net/syntax"
)

// checkQueries scans every string assigned to a SQL-named variable and
// rejects the file when a query references tables that are not configured
// sources or cannot be read.
func (s *Sanitizer) checkQueries(f *syntax.File) error {
	var tables []string
	var unreadable error
	syntax.Walk(f, func(n syntax.Node) bool {
		if unreadable != nil {
			return false
		}
		assign, ok := n.(*syntax.AssignStmt)
		if !ok || assign.Op != syntax.EQ {
			return true
		}
		id, ok := assign.LHS.(*syntax.Ident)
		if !ok || !core.IsSQLVariable(id.Name) {
			return true
		}
		query, ok := stringConstant(assign.RHS)
		if !ok {
			return true
		}
		bad, err := sqlscan.Unauthorized(query, s.sources, s.dialect)
		if err != nil {
			unreadable = fmt.Errorf("%s: %w", id.Name, err)
			return false
		}
		for _, t := range bad {
			if !slices.Contains(tables, t) {
				tables = append(tables, t)
			}
		}
		return true
	})
	if unreadable != nil {
		return &core.MaliciousQueryError{Reason: unreadable.Error()}
	}
	if len(tables) > 0 {
		slices.Sort(tables)
		return &core.MaliciousQueryError{Tables: tables}
	}
	return nil
}

// stringConstant folds a string literal, or a concatenation or parenthesis of
// string literals, into its value.
func stringConstant(e syntax.Expr) (string, bool) {
	switch e := e.(type) {
	case *syntax.Literal:
		s, ok := e.Value.(string)
		return s, ok && e.Token == syntax.STRING
	case *syntax.ParenExpr:
		return stringConstant(e.X)
	case *syntax.BinaryExpr:
		if e.Op != syntax.PLUS {
			return "", false
		}
		x, ok := stringConstant(e.X)
		if !ok {
			return "", false
		}
		y, ok := stringConstant(e.Y)
		return x + y, ok
	}
	return "", false
}
