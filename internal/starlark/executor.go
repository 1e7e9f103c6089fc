package starlark

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/leapstack-labs/leapask/internal/guard"
	"github.com/leapstack-labs/leapask/pkg/core"
	"github.com/leapstack-labs/leapask/pkg/frame"
	"go.starlark.net/resolve"
	"go.starlark.net/starlark"
)

// Outcome is a successful execution.
type Outcome struct {
	// Value is the result converted to Go: *frame.Table, []any,
	// map[string]any or a scalar.
	Value any

	// Raw is the result as Starlark left it.
	Raw starlark.Value

	// Healed lists the library roots bound after the first run failed on
	// them, sorted.
	Healed []string
}

// Executor runs sanitized code against an execution context.
type Executor struct {
	libraries Libraries
	allowed   func(root string) bool
	logger    *slog.Logger
}

// NewExecutor creates an executor. allowed reports whether a library root is
// on the allow-list; only such roots are bound when code uses a library
// without loading it.
// If logger is nil, a discard logger is used.
func NewExecutor(libraries Libraries, allowed func(root string) bool, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if allowed == nil {
		allowed = func(string) bool { return false }
	}
	return &Executor{libraries: libraries, allowed: allowed, logger: logger}
}

// Run executes unit.Text once in ec and returns the result binding.
//
// When the run fails to resolve names that are allowed, installed library
// roots, they are bound and the code runs one more time. That re-run does
// not count as a retry.
func (e *Executor) Run(ctx context.Context, unit *guard.CodeUnit, ec *ExecutionContext) (*Outcome, error) {
	var healed []string
	for {
		globals, err := e.exec(ctx, unit.Text, ec)
		if err == nil {
			return e.outcome(globals, healed)
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("execution cancelled: %w", ctx.Err())
		}
		if healed == nil {
			if roots := e.heal(err, ec); len(roots) > 0 {
				e.logger.Debug("bound missing libraries, running again", slog.Any("libraries", roots))
				healed = roots
				continue
			}
		}
		return nil, classify(err)
	}
}

func (e *Executor) exec(ctx context.Context, src string, ec *ExecutionContext) (starlark.StringDict, error) {
	thread, stop := newThread(ctx, guard.Filename, e.logger)
	defer stop()
	return starlark.ExecFileOptions(guard.FileOptions, thread, guard.Filename, src, ec.Predeclared)
}

func (e *Executor) outcome(globals starlark.StringDict, healed []string) (*Outcome, error) {
	raw, ok := globals[core.ResultBinding]
	if !ok {
		return nil, &core.NoResultError{Name: core.ResultBinding}
	}
	v, err := frame.ToGo(raw)
	if err != nil {
		return nil, &core.ExecutionError{Err: fmt.Errorf("failed to convert result: %w", err)}
	}
	return &Outcome{Value: v, Raw: raw, Healed: healed}, nil
}

// heal binds every undefined name in err that is an allowed, installed
// library root and returns the names bound.
func (e *Executor) heal(err error, ec *ExecutionContext) []string {
	var list resolve.ErrorList
	if e.libraries == nil || !errors.As(err, &list) {
		return nil
	}
	var roots []string
	for _, re := range list {
		name, ok := undefinedName(re.Msg)
		if !ok || !e.allowed(name) {
			continue
		}
		if _, bound := ec.Predeclared[name]; bound {
			continue
		}
		module, ok := e.libraries.Module(name)
		if !ok {
			continue
		}
		ec.Bind(name, module)
		roots = append(roots, name)
	}
	sort.Strings(roots)
	return roots
}

// undefinedName extracts X from the resolver message "undefined: X", which
// may carry a "(did you mean ...)" suffix.
func undefinedName(msg string) (string, bool) {
	rest, ok := strings.CutPrefix(msg, "undefined: ")
	if !ok {
		return "", false
	}
	name, _, _ := strings.Cut(rest, " ")
	return name, name != ""
}

// classify maps a failed run to the error the retry loop sees. A query that
// touched unauthorized tables stays a policy violation.
func classify(err error) error {
	var mq *core.MaliciousQueryError
	if errors.As(err, &mq) {
		return mq
	}
	var evalErr *starlark.EvalError
	if errors.As(err, &evalErr) {
		return &core.ExecutionError{Err: evalErr, Backtrace: evalErr.Backtrace()}
	}
	var execErr *core.ExecutionError
	if errors.As(err, &execErr) {
		return execErr
	}
	return &core.ExecutionError{Err: err}
}
