package guard

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/leapstack-labs/leapask/pkg/core"
	"go.starlark.net/syntax"
)

// CodeUnit is one attempt's generated code and everything derived from it.
type CodeUnit struct {
	// Raw is the code as received.
	Raw string
	// File is the parse of Raw.
	File *syntax.File
	// Text is the sanitized code, the text that runs.
	Text string
	// Sanitized is the parse of Text.
	Sanitized *syntax.File
	// Dependencies are the allow-listed library symbols the code loads.
	Dependencies []core.Dependency
	// Drops lists the statements removed from Raw.
	Drops []Drop
	// Predicates are the pushdown predicates per source, set after filter extraction.
	Predicates core.Predicates
}

// Drop records a statement removed by the sanitizer.
type Drop struct {
	Line   int
	Reason string
}

// Drop reasons.
const (
	ReasonRebindsData   = "rebinds " + core.DataBinding
	ReasonReflection    = "uses reflection"
	ReasonExport        = "exports data"
	ReasonRedefinesSQL  = "redefines " + core.SQLFunction
	ReasonResolvedLoad  = "load bound by the host"
	ReasonBuiltinImport = "load of a builtin"
)

// Options configures a Sanitizer.
type Options struct {
	// Libraries are allow-listed library roots in addition to core.DefaultLibraries.
	Libraries []string
	// DirectSQL enables the raw-SQL function and query table authorization.
	DirectSQL bool
	// Sources are the configured source names queries may reference.
	Sources []string
	// Dialect is the adapter type queries run on. Queries are checked under
	// every known dialect when it is empty.
	Dialect string
}

// Sanitizer produces CodeUnits from generated code. It holds no per-call
// state and may be shared.
type Sanitizer struct {
	libraries []string
	directSQL bool
	sources   []string
	dialect   string
	logger    *slog.Logger
}

// NewSanitizer creates a Sanitizer.
// If logger is nil, a discard logger is used.
func NewSanitizer(opts Options, logger *slog.Logger) *Sanitizer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	libs := slices.Clone(core.DefaultLibraries)
	for _, l := range opts.Libraries {
		if !slices.Contains(libs, l) {
			libs = append(libs, l)
		}
	}
	return &Sanitizer{
		libraries: libs,
		directSQL: opts.DirectSQL,
		sources:   slices.Clone(opts.Sources),
		dialect:   opts.Dialect,
		logger:    logger,
	}
}

// Libraries returns the allow-listed library roots.
func (s *Sanitizer) Libraries() []string {
	return slices.Clone(s.libraries)
}

// Allowed reports whether root is an allow-listed library root.
func (s *Sanitizer) Allowed(root string) bool {
	return slices.Contains(s.libraries, root)
}

// Sanitize parses src and returns the code unit to execute.
//
// Errors are *core.SyntaxError, *core.DisallowedImportError or, in direct-SQL
// mode, *core.MaliciousQueryError.
func (s *Sanitizer) Sanitize(src string) (*CodeUnit, error) {
	f, err := Parse(src)
	if err != nil {
		return nil, err
	}
	unit := &CodeUnit{Raw: src, File: f}

	if s.directSQL {
		if err := s.checkQueries(f); err != nil {
			return nil, err
		}
	}

	ed := newEditor(src)
	drop := func(stmt syntax.Stmt, reason string) {
		start, _ := stmt.Span()
		unit.Drops = append(unit.Drops, Drop{Line: int(start.Line), Reason: reason})
		s.logger.Debug("dropped statement", slog.Int("line", int(start.Line)), slog.String("reason", reason))
		ed.blank(stmt)
	}

	compute := false
	for _, stmt := range f.Stmts {
		switch st := stmt.(type) {
		case *syntax.LoadStmt:
			deps, reason, err := s.resolveLoad(st)
			if err != nil {
				return nil, err
			}
			unit.Dependencies = append(unit.Dependencies, deps...)
			if reason != "" {
				drop(st, reason)
			}
			continue
		case *syntax.DefStmt:
			if st.Name.Name == core.ComputeFunction {
				// Defaults run when the def executes, outside the body.
				if reason := unsafeParams(st.Params); reason != "" {
					drop(st, reason)
					continue
				}
				compute = true
				for _, inner := range st.Body {
					if reason := s.unsafe(inner); reason != "" {
						drop(inner, reason)
					}
				}
				continue
			}
		}
		if reason := s.unsafe(stmt); reason != "" {
			drop(stmt, reason)
		}
	}

	text := ed.apply()
	if compute && !callsCompute(f) {
		if !strings.HasSuffix(text, "\n") {
			text += "\n"
		}
		text += fmt.Sprintf("%s = %s(%s)\n", core.ResultBinding, core.ComputeFunction, core.DataBinding)
	}

	sanitized, err := Parse(text)
	if err != nil {
		return nil, err
	}
	unit.Text = text
	unit.Sanitized = sanitized
	return unit, nil
}

// unsafe returns why stmt must be dropped, or "".
func (s *Sanitizer) unsafe(stmt syntax.Stmt) string {
	bound := boundNames(stmt)
	switch {
	case slices.Contains(bound, core.DataBinding):
		return ReasonRebindsData
	case usesReflection(stmt):
		return ReasonReflection
	case usesExport(stmt):
		return ReasonExport
	case s.directSQL && slices.Contains(bound, core.SQLFunction):
		return ReasonRedefinesSQL
	}
	return ""
}

// unsafeParams returns why a parameter default must not run, or "".
func unsafeParams(params []syntax.Expr) string {
	for _, p := range params {
		switch {
		case usesReflection(p):
			return ReasonReflection
		case usesExport(p):
			return ReasonExport
		}
	}
	return ""
}

// boundNames returns the names stmt binds in its own scope: assignment and
// loop targets and function names. Nested function bodies have their own
// scope and are not searched.
func boundNames(stmt syntax.Stmt) []string {
	var names []string
	syntax.Walk(stmt, func(n syntax.Node) bool {
		switch n := n.(type) {
		case *syntax.AssignStmt:
			names = appendTargets(names, n.LHS)
		case *syntax.ForStmt:
			names = appendTargets(names, n.Vars)
		case *syntax.DefStmt:
			names = append(names, n.Name.Name)
			return false
		case *syntax.LambdaExpr, *syntax.Comprehension:
			return false
		}
		return true
	})
	return names
}

func appendTargets(names []string, target syntax.Expr) []string {
	switch t := target.(type) {
	case *syntax.Ident:
		names = append(names, t.Name)
	case *syntax.ParenExpr:
		names = appendTargets(names, t.X)
	case *syntax.TupleExpr:
		for _, x := range t.List {
			names = appendTargets(names, x)
		}
	case *syntax.ListExpr:
		for _, x := range t.List {
			names = appendTargets(names, x)
		}
	}
	return names
}

func usesReflection(root syntax.Node) bool {
	found := false
	syntax.Walk(root, func(n syntax.Node) bool {
		if found {
			return false
		}
		switch n := n.(type) {
		case *syntax.Ident:
			found = slices.Contains(core.ReflectionTokens, n.Name)
		case *syntax.DotExpr:
			found = slices.Contains(core.ReflectionTokens, n.Name.Name)
		case *syntax.Literal:
			if str, ok := n.Value.(string); ok {
				for _, tok := range core.ReflectionTokens {
					if strings.Contains(str, tok) {
						found = true
					}
				}
			}
		}
		return !found
	})
	return found
}

// usesExport reports whether root references an export method as an attribute.
func usesExport(root syntax.Node) bool {
	found := false
	syntax.Walk(root, func(n syntax.Node) bool {
		if dot, ok := n.(*syntax.DotExpr); ok && slices.Contains(core.ExportMethods, dot.Name.Name) {
			found = true
		}
		return !found
	})
	return found
}

// callsCompute reports whether a top-level assignment already takes its
// value from a call of the compute function.
func callsCompute(f *syntax.File) bool {
	for _, stmt := range f.Stmts {
		assign, ok := stmt.(*syntax.AssignStmt)
		if !ok {
			continue
		}
		call, ok := assign.RHS.(*syntax.CallExpr)
		if !ok {
			continue
		}
		if id, ok := call.Fn.(*syntax.Ident); ok && id.Name == core.ComputeFunction {
			return true
		}
	}
	return false
}
