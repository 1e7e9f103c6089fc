// Package starlark builds the closed global table generated code runs
// against and executes sanitized code in it.
package starlark

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/leapstack-labs/leapask/internal/analysis"
	"github.com/leapstack-labs/leapask/internal/guard"
	"github.com/leapstack-labs/leapask/internal/skills"
	"github.com/leapstack-labs/leapask/pkg/core"
	"github.com/leapstack-labs/leapask/pkg/frame"
	"github.com/leapstack-labs/leapask/pkg/source"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// Libraries resolves installed library modules.
type Libraries interface {
	// Module returns the whole module installed under name.
	Module(name string) (starlark.Value, bool)
	// Member returns symbol of the named module, or the module itself when it
	// has no such member.
	Member(name, symbol string) (starlark.Value, bool)
}

// Skills resolves skills called by generated code.
type Skills interface {
	Get(name string) (*skills.Skill, bool)
	MarkUsed(name string)
}

// ExecutionContext is the global table for one attempt. Nothing outside
// Predeclared and the Starlark universe is reachable from generated code,
// and every universe name outside the safe set is shadowed.
type ExecutionContext struct {
	// Predeclared holds every name bound for the attempt.
	Predeclared starlark.StringDict

	// Tables are the materialized sources by index; nil where the source
	// was not required.
	Tables []*frame.Table

	// Skills are the skills bound because the code calls them, sorted.
	Skills []string
}

// Bind adds name to the context, replacing any previous binding.
func (ec *ExecutionContext) Bind(name string, v starlark.Value) {
	ec.Predeclared[name] = v
}

// Materialized returns the indexes of the sources that were loaded.
func (ec *ExecutionContext) Materialized() []int {
	var out []int
	for i, t := range ec.Tables {
		if t != nil {
			out = append(out, i)
		}
	}
	return out
}

// BuilderOptions configures a Builder.
type BuilderOptions struct {
	// DirectSQL binds execute_sql_query and requires every source to share
	// one SQL connection.
	DirectSQL bool

	// Libraries resolves dependency records to modules.
	Libraries Libraries

	// Skills resolves called skills. May be nil.
	Skills Skills
}

// Builder assembles execution contexts.
type Builder struct {
	opts   BuilderOptions
	logger *slog.Logger
}

// NewBuilder creates a builder.
// If logger is nil, a discard logger is used.
func NewBuilder(opts BuilderOptions, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Builder{opts: opts, logger: logger}
}

// Build creates the context for unit over sources. Only the sources the code
// needs are materialized; those with safe pushdown predicates in unit are
// narrowed first.
func (b *Builder) Build(ctx context.Context, unit *guard.CodeUnit, sources []source.DataSource) (*ExecutionContext, error) {
	var sqlSources []source.SQLSource
	if b.opts.DirectSQL {
		var err error
		if sqlSources, err = directSQLSources(sources); err != nil {
			return nil, err
		}
	}

	ec := &ExecutionContext{
		Predeclared: universe(),
		Tables:      make([]*frame.Table, len(sources)),
	}

	required := analysis.RequiredSources(unit.Sanitized, len(sources))
	dfs := make([]starlark.Value, len(sources))
	for i, s := range sources {
		if !required[i] {
			dfs[i] = starlark.None
			continue
		}
		t, err := b.materialize(ctx, s, unit.Predicates.For(i))
		if err != nil {
			return nil, err
		}
		ec.Tables[i] = t
		dfs[i] = frame.NewTableValue(t)
	}
	list := starlark.NewList(dfs)
	list.Freeze()

	ec.Bind(core.FrameModule, frame.Module)
	ec.Bind(core.DataBinding, list)

	for _, dep := range unit.Dependencies {
		v, ok := b.lookupLibrary(dep.Root(), dep.Symbol)
		if !ok {
			return nil, &core.ExecutionError{Err: fmt.Errorf("library %q is allowed but not installed", dep.Root())}
		}
		ec.Bind(dep.Alias, v)
	}

	ec.Skills = b.bindSkills(ec, unit.Sanitized)

	if b.opts.DirectSQL {
		ec.Bind(core.SQLFunction, sqlQueryBuiltin(ctx, sqlSources, source.Authorized(sources), b.logger))
	}

	b.logger.Debug("built execution context",
		slog.Any("materialized", ec.Materialized()),
		slog.Int("dependencies", len(unit.Dependencies)),
		slog.Any("skills", ec.Skills))
	return ec, nil
}

func (b *Builder) lookupLibrary(root, symbol string) (starlark.Value, bool) {
	if b.opts.Libraries == nil {
		return nil, false
	}
	return b.opts.Libraries.Member(root, symbol)
}

// materialize loads s with preds applied, falling back to the unfiltered
// source when the filtered load fails.
func (b *Builder) materialize(ctx context.Context, s source.DataSource, preds []core.FilterPredicate) (*frame.Table, error) {
	s.ApplyFilters(preds)
	t, err := s.Materialize(ctx)
	if err == nil {
		return t, nil
	}
	if len(preds) == 0 {
		return nil, fmt.Errorf("failed to materialize source %s: %w", s.Name(), err)
	}

	b.logger.Warn("filtered load failed, loading source unfiltered",
		slog.String("source", s.Name()),
		slog.String("error", err.Error()))
	s.ApplyFilters(nil)
	t, err = s.Materialize(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to materialize source %s: %w", s.Name(), err)
	}
	return t, nil
}

// bindSkills binds every skill the code calls by plain name.
func (b *Builder) bindSkills(ec *ExecutionContext, f *syntax.File) []string {
	if b.opts.Skills == nil {
		return nil
	}
	called := make(map[string]bool)
	syntax.Walk(f, func(n syntax.Node) bool {
		if call, ok := n.(*syntax.CallExpr); ok {
			if id, ok := call.Fn.(*syntax.Ident); ok {
				called[id.Name] = true
			}
		}
		return true
	})

	var bound []string
	for name := range called {
		s, ok := b.opts.Skills.Get(name)
		if !ok {
			continue
		}
		ec.Bind(name, s.Fn)
		b.opts.Skills.MarkUsed(name)
		bound = append(bound, name)
	}
	sort.Strings(bound)
	return bound
}

// directSQLSources checks that every source is a SQL source on one shared
// connection.
func directSQLSources(sources []source.DataSource) ([]source.SQLSource, error) {
	if len(sources) == 0 {
		return nil, &core.InvalidConfigurationError{Reason: "direct SQL requires at least one source"}
	}
	out := make([]source.SQLSource, len(sources))
	for i, s := range sources {
		sql, ok := s.(source.SQLSource)
		if !ok {
			return nil, &core.InvalidConfigurationError{Reason: fmt.Sprintf("direct SQL requires SQL sources, %s is not one", s.Name())}
		}
		out[i] = sql
	}
	for i := 1; i < len(out); i++ {
		if out[i].Kind() != out[0].Kind() {
			return nil, &core.InvalidConfigurationError{Reason: fmt.Sprintf(
				"direct SQL requires one connector, %s uses %s and %s uses %s",
				out[0].Name(), out[0].Kind(), out[i].Name(), out[i].Kind())}
		}
	}
	for i := range out {
		for j := i + 1; j < len(out); j++ {
			if !out[i].Equals(out[j]) {
				return nil, &core.InvalidConfigurationError{Reason: fmt.Sprintf(
					"direct SQL requires one connection, %s and %s differ", out[i].Name(), out[j].Name())}
			}
		}
	}
	return out, nil
}
