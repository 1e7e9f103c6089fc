package analysis

import (
	"sort"

	"github.com/leapstack-labs/leapask/pkg/core"
	"go.starlark.net/syntax"
)

// SourceFilter holds the predicates found for one source.
type SourceFilter struct {
	// Predicates are the column comparisons traced to the source, in order.
	Predicates []core.FilterPredicate
	// Safe is set when applying Predicates at the source cannot change the
	// result: the source is used exactly once, as the receiver of a filter
	// whose condition is a conjunction of column-literal comparisons.
	Safe bool
}

// Filters are the predicates extracted from one code unit, by source index.
type Filters struct {
	Sources map[int]SourceFilter
}

// Pushdown returns the predicates of safe sources only. Every other source
// must be materialized unfiltered.
func (f *Filters) Pushdown() core.Predicates {
	out := make(core.Predicates)
	for i, sf := range f.Sources {
		if sf.Safe && len(sf.Predicates) > 0 {
			out[i] = append([]core.FilterPredicate(nil), sf.Predicates...)
		}
	}
	return out
}

// Indexes returns the source indexes with predicates, sorted.
func (f *Filters) Indexes() []int {
	out := make([]int, 0, len(f.Sources))
	for i := range f.Sources {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}

// ExtractFilters finds the column comparisons in src and the source each one
// applies to. n is the number of configured sources, used to normalize
// negative indexes. It parses src itself; a parse failure is returned as
// *core.ExtractionError. The result depends only on src and n.
func ExtractFilters(src string, n int) (*Filters, error) {
	f, err := fileOptions.Parse("filters.star", src, 0)
	if err != nil {
		return nil, &core.ExtractionError{Err: err}
	}

	x := newExtractor(f, n)
	result := &Filters{Sources: make(map[int]SourceFilter)}

	advisory := make(map[int][]core.FilterPredicate)
	syntax.Walk(f, func(node syntax.Node) bool {
		cmp, ok := node.(*syntax.BinaryExpr)
		if !ok {
			return true
		}
		operand, pred, ok := columnComparison(cmp)
		if !ok {
			return true
		}
		start, _ := cmp.Span()
		i := x.source(operand.X, start, 0)
		advisory[i] = append(advisory[i], pred)
		return true
	})

	for i, preds := range advisory {
		result.Sources[i] = SourceFilter{Predicates: preds}
	}
	for i := 0; i < n; i++ {
		if preds, ok := x.pushable(i); ok {
			result.Sources[i] = SourceFilter{Predicates: preds, Safe: true}
		}
	}
	return result, nil
}

// fileOptions matches the dialect generated code runs with.
var fileOptions = &syntax.FileOptions{Set: true, TopLevelControl: true, GlobalReassign: true}

type assignment struct {
	pos syntax.Position
	rhs syntax.Expr
}

// lambdaCall is a lambda passed to a method call, with the method's receiver.
type lambdaCall struct {
	lambda   *syntax.LambdaExpr
	receiver syntax.Expr
	method   string
}

type extractor struct {
	n       int
	usage   *usage
	assigns map[string][]assignment
	lambdas []lambdaCall
}

func newExtractor(f *syntax.File, n int) *extractor {
	x := &extractor{
		n:       n,
		usage:   analyzeUsage(f, n),
		assigns: make(map[string][]assignment),
	}
	syntax.Walk(f, func(node syntax.Node) bool {
		switch node := node.(type) {
		case *syntax.AssignStmt:
			if id, ok := node.LHS.(*syntax.Ident); ok && node.Op == syntax.EQ {
				start, _ := node.Span()
				x.assigns[id.Name] = append(x.assigns[id.Name], assignment{pos: start, rhs: node.RHS})
			}
		case *syntax.CallExpr:
			dot, ok := node.Fn.(*syntax.DotExpr)
			if !ok {
				break
			}
			for _, arg := range node.Args {
				if lambda, ok := arg.(*syntax.LambdaExpr); ok {
					x.lambdas = append(x.lambdas, lambdaCall{lambda: lambda, receiver: dot.X, method: dot.Name.Name})
				}
			}
		}
		return true
	})
	return x
}

const maxTraceDepth = 16

// source traces e, used at pos, back to a source index. Anything that cannot
// be traced belongs to source 0.
func (x *extractor) source(e syntax.Expr, pos syntax.Position, depth int) int {
	if depth > maxTraceDepth {
		return 0
	}
	switch e := e.(type) {
	case *syntax.IndexExpr:
		if id, ok := e.X.(*syntax.Ident); ok && x.usage.aliases[id.Name] {
			if i, ok := intLiteral(e.Y); ok {
				if i < 0 {
					i += x.n
				}
				return max(i, 0)
			}
			return 0
		}
		return x.source(e.X, pos, depth+1)
	case *syntax.Ident:
		if lc := x.enclosingLambda(e.Name, pos); lc != nil {
			start, _ := lc.lambda.Span()
			return x.source(lc.receiver, start, depth+1)
		}
		if a := x.assignmentBefore(e.Name, pos); a != nil {
			return x.source(a.rhs, a.pos, depth+1)
		}
	case *syntax.CallExpr:
		if dot, ok := e.Fn.(*syntax.DotExpr); ok {
			return x.source(dot.X, pos, depth+1)
		}
	case *syntax.DotExpr:
		return x.source(e.X, pos, depth+1)
	case *syntax.ParenExpr:
		return x.source(e.X, pos, depth+1)
	}
	return 0
}

// enclosingLambda returns the innermost traced lambda around pos that has
// a parameter called name.
func (x *extractor) enclosingLambda(name string, pos syntax.Position) *lambdaCall {
	var best *lambdaCall
	var bestStart syntax.Position
	for i := range x.lambdas {
		lc := &x.lambdas[i]
		if !contains(lc.lambda, pos) || !hasParam(lc.lambda, name) {
			continue
		}
		start, _ := lc.lambda.Span()
		if best == nil || before(bestStart, start) {
			best, bestStart = lc, start
		}
	}
	return best
}

func hasParam(lambda *syntax.LambdaExpr, name string) bool {
	for _, p := range paramIdents(lambda.Params) {
		if p.Name == name {
			return true
		}
	}
	return false
}

// assignmentBefore returns the last assignment to name that starts before pos.
func (x *extractor) assignmentBefore(name string, pos syntax.Position) *assignment {
	var best *assignment
	for i := range x.assigns[name] {
		a := &x.assigns[name][i]
		if before(a.pos, pos) && (best == nil || before(best.pos, a.pos)) {
			best = a
		}
	}
	return best
}

// pushable returns the predicates of source i when its only use is
// dfs[i].filter(lambda r: <conjunction of r["col"] <op> literal>).
func (x *extractor) pushable(i int) ([]core.FilterPredicate, bool) {
	if x.usage.all || len(x.usage.refs[i]) != 1 {
		return nil, false
	}
	ref := x.usage.refs[i][0]
	for _, lc := range x.lambdas {
		if lc.receiver != syntax.Expr(ref) || lc.method != "filter" {
			continue
		}
		params := paramIdents(lc.lambda.Params)
		if len(params) != 1 || len(lc.lambda.Params) != 1 {
			return nil, false
		}
		return conjunction(lc.lambda.Body, params[0].Name)
	}
	return nil, false
}

// conjunction returns the predicates of e when e is an `and` chain of
// comparisons between param["col"] and literals.
func conjunction(e syntax.Expr, param string) ([]core.FilterPredicate, bool) {
	switch e := e.(type) {
	case *syntax.ParenExpr:
		return conjunction(e.X, param)
	case *syntax.BinaryExpr:
		if e.Op == syntax.AND {
			left, ok := conjunction(e.X, param)
			if !ok {
				return nil, false
			}
			right, ok := conjunction(e.Y, param)
			if !ok {
				return nil, false
			}
			return append(left, right...), true
		}
		operand, pred, ok := columnComparison(e)
		if !ok {
			return nil, false
		}
		if id, ok := operand.X.(*syntax.Ident); !ok || id.Name != param {
			return nil, false
		}
		return []core.FilterPredicate{pred}, true
	}
	return nil, false
}

var comparators = map[syntax.Token]core.Comparator{
	syntax.EQL:    core.OpEq,
	syntax.NEQ:    core.OpNeq,
	syntax.LT:     core.OpLt,
	syntax.LE:     core.OpLte,
	syntax.GT:     core.OpGt,
	syntax.GE:     core.OpGte,
	syntax.IN:     core.OpIn,
	syntax.NOT_IN: core.OpNotIn,
}

var flipped = map[core.Comparator]core.Comparator{
	core.OpLt: core.OpGt, core.OpGt: core.OpLt,
	core.OpLte: core.OpGte, core.OpGte: core.OpLte,
	core.OpEq: core.OpEq, core.OpNeq: core.OpNeq,
}

// columnComparison matches X["col"] <op> literal, or literal <op> X["col"]
// for the symmetric and ordering comparators. It returns the subscript and
// the predicate with the column on the left.
func columnComparison(e *syntax.BinaryExpr) (*syntax.IndexExpr, core.FilterPredicate, bool) {
	op, ok := comparators[e.Op]
	if !ok {
		return nil, core.FilterPredicate{}, false
	}
	if col, sub, ok := columnKey(e.X); ok {
		if v, ok := comparisonValue(op, e.Y); ok {
			return sub, core.FilterPredicate{Column: col, Op: op, Value: v}, true
		}
		return nil, core.FilterPredicate{}, false
	}
	if col, sub, ok := columnKey(e.Y); ok {
		rev, ok := flipped[op]
		if !ok {
			return nil, core.FilterPredicate{}, false
		}
		if v, ok := literalValue(e.X); ok {
			return sub, core.FilterPredicate{Column: col, Op: rev, Value: v}, true
		}
	}
	return nil, core.FilterPredicate{}, false
}

// columnKey matches X["col"] and returns the key and the subscript.
func columnKey(e syntax.Expr) (string, *syntax.IndexExpr, bool) {
	if p, ok := e.(*syntax.ParenExpr); ok {
		return columnKey(p.X)
	}
	sub, ok := e.(*syntax.IndexExpr)
	if !ok {
		return "", nil, false
	}
	lit, ok := sub.Y.(*syntax.Literal)
	if !ok || lit.Token != syntax.STRING {
		return "", nil, false
	}
	col, _ := lit.Value.(string)
	return col, sub, true
}

func comparisonValue(op core.Comparator, e syntax.Expr) (any, bool) {
	if op == core.OpIn || op == core.OpNotIn {
		for {
			p, ok := e.(*syntax.ParenExpr)
			if !ok {
				break
			}
			e = p.X
		}
		var list []syntax.Expr
		switch e := e.(type) {
		case *syntax.ListExpr:
			list = e.List
		case *syntax.TupleExpr:
			list = e.List
		default:
			return nil, false
		}
		values := make([]any, 0, len(list))
		for _, item := range list {
			v, ok := literalValue(item)
			if !ok {
				return nil, false
			}
			values = append(values, v)
		}
		return values, true
	}
	return literalValue(e)
}

// literalValue converts a scalar literal expression into a predicate value.
func literalValue(e syntax.Expr) (any, bool) {
	switch e := e.(type) {
	case *syntax.Literal:
		switch v := e.Value.(type) {
		case int64:
			return v, true
		case float64:
			return v, true
		case string:
			if e.Token == syntax.STRING {
				return v, true
			}
		}
	case *syntax.Ident:
		switch e.Name {
		case "None":
			return nil, true
		case "True":
			return true, true
		case "False":
			return false, true
		}
	case *syntax.UnaryExpr:
		if e.Op != syntax.MINUS {
			break
		}
		v, ok := literalValue(e.X)
		if !ok {
			break
		}
		switch v := v.(type) {
		case int64:
			return -v, true
		case float64:
			return -v, true
		}
	case *syntax.ParenExpr:
		return literalValue(e.X)
	}
	return nil, false
}
