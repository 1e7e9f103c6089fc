// Package analysis inspects generated code before it runs: which data
// sources it needs and which row filters can be applied at the source.
// Nothing here executes code or changes it.
package analysis

import (
	"github.com/leapstack-labs/leapask/pkg/core"
	"go.starlark.net/syntax"
)

// usage describes how code refers to the data binding.
type usage struct {
	// aliases are the names the data binding is known by: the binding itself
	// and the parameters of local functions it is passed to.
	aliases map[string]bool
	// refs holds the dfs[i] expressions per normalized source index.
	refs map[int][]*syntax.IndexExpr
	// all is set when some use may touch any source.
	all bool
}

func analyzeUsage(f *syntax.File, n int) *usage {
	u := &usage{
		aliases: map[string]bool{core.DataBinding: true},
		refs:    make(map[int][]*syntax.IndexExpr),
	}
	defs := localFunctions(f)
	u.followAliases(f, defs)

	handled := make(map[*syntax.Ident]bool)
	markTargets := func(e syntax.Expr) {
		for _, id := range targetIdents(e) {
			handled[id] = true
		}
	}

	syntax.Walk(f, func(node syntax.Node) bool {
		switch node := node.(type) {
		case *syntax.DefStmt:
			for _, id := range paramIdents(node.Params) {
				handled[id] = true
			}
		case *syntax.LambdaExpr:
			for _, id := range paramIdents(node.Params) {
				handled[id] = true
			}
		case *syntax.AssignStmt:
			markTargets(node.LHS)
		case *syntax.ForStmt:
			markTargets(node.Vars)
		case *syntax.ForClause:
			markTargets(node.Vars)
		case *syntax.CallExpr:
			for _, id := range u.aliasArgs(node, defs) {
				handled[id] = true
			}
		case *syntax.IndexExpr:
			id, ok := node.X.(*syntax.Ident)
			if !ok || !u.aliases[id.Name] {
				break
			}
			i, ok := intLiteral(node.Y)
			if !ok {
				break
			}
			handled[id] = true
			if i < 0 {
				i += n
			}
			if i >= 0 && i < n {
				u.refs[i] = append(u.refs[i], node)
			}
		case *syntax.Ident:
			if u.aliases[node.Name] && !handled[node] {
				u.all = true
			}
		}
		return true
	})
	return u
}

// followAliases adds the parameters that receive an alias positionally in a
// call of a local function, until no more are found.
func (u *usage) followAliases(f *syntax.File, defs map[string]*syntax.DefStmt) {
	for changed := true; changed; {
		changed = false
		syntax.Walk(f, func(node syntax.Node) bool {
			call, ok := node.(*syntax.CallExpr)
			if !ok {
				return true
			}
			def := calledDef(call, defs)
			if def == nil {
				return true
			}
			params := paramIdents(def.Params)
			for j, arg := range call.Args {
				id, ok := arg.(*syntax.Ident)
				if !ok || !u.aliases[id.Name] || j >= len(params) {
					continue
				}
				if !u.aliases[params[j].Name] {
					u.aliases[params[j].Name] = true
					changed = true
				}
			}
			return true
		})
	}
}

// aliasArgs returns the alias identifiers passed positionally to a local function.
func (u *usage) aliasArgs(call *syntax.CallExpr, defs map[string]*syntax.DefStmt) []*syntax.Ident {
	def := calledDef(call, defs)
	if def == nil {
		return nil
	}
	params := paramIdents(def.Params)
	var out []*syntax.Ident
	for j, arg := range call.Args {
		if id, ok := arg.(*syntax.Ident); ok && u.aliases[id.Name] && j < len(params) {
			out = append(out, id)
		}
	}
	return out
}

func localFunctions(f *syntax.File) map[string]*syntax.DefStmt {
	defs := make(map[string]*syntax.DefStmt)
	syntax.Walk(f, func(node syntax.Node) bool {
		if def, ok := node.(*syntax.DefStmt); ok {
			defs[def.Name.Name] = def
		}
		return true
	})
	return defs
}

func calledDef(call *syntax.CallExpr, defs map[string]*syntax.DefStmt) *syntax.DefStmt {
	fn, ok := call.Fn.(*syntax.Ident)
	if !ok {
		return nil
	}
	return defs[fn.Name]
}

// paramIdents returns the identifiers of positional and defaulted
// parameters in order. *args and **kwargs end the positional list.
func paramIdents(params []syntax.Expr) []*syntax.Ident {
	var out []*syntax.Ident
	for _, p := range params {
		switch p := p.(type) {
		case *syntax.Ident:
			out = append(out, p)
		case *syntax.BinaryExpr:
			if id, ok := p.X.(*syntax.Ident); ok && p.Op == syntax.EQ {
				out = append(out, id)
			}
		default:
			return out
		}
	}
	return out
}

func targetIdents(e syntax.Expr) []*syntax.Ident {
	switch e := e.(type) {
	case *syntax.Ident:
		return []*syntax.Ident{e}
	case *syntax.ParenExpr:
		return targetIdents(e.X)
	case *syntax.TupleExpr:
		var out []*syntax.Ident
		for _, x := range e.List {
			out = append(out, targetIdents(x)...)
		}
		return out
	case *syntax.ListExpr:
		var out []*syntax.Ident
		for _, x := range e.List {
			out = append(out, targetIdents(x)...)
		}
		return out
	}
	return nil
}

// intLiteral returns the value of an integer literal, possibly negated.
func intLiteral(e syntax.Expr) (int, bool) {
	switch e := e.(type) {
	case *syntax.Literal:
		if v, ok := e.Value.(int64); ok && e.Token == syntax.INT {
			return int(v), true
		}
	case *syntax.UnaryExpr:
		if e.Op == syntax.MINUS {
			if v, ok := intLiteral(e.X); ok {
				return -v, true
			}
		}
	case *syntax.ParenExpr:
		return intLiteral(e.X)
	}
	return 0, false
}

// before reports whether position a comes before b.
func before(a, b syntax.Position) bool {
	if a.Line != b.Line {
		return a.Line < b.Line
	}
	return a.Col < b.Col
}

// contains reports whether p lies within n's span.
func contains(n syntax.Node, p syntax.Position) bool {
	start, end := n.Span()
	return !before(p, start) && before(p, end)
}
