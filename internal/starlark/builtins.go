package starlark

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/leapstack-labs/leapask/internal/sqlscan"
	"github.com/leapstack-labs/leapask/pkg/core"
	"github.com/leapstack-labs/leapask/pkg/frame"
	"github.com/leapstack-labs/leapask/pkg/source"
	"go.starlark.net/starlark"
)

// universe returns the safe builtins plus a denying stand-in for every other
// name in the Starlark universe. Predeclared names shadow the universe, so
// code calling a denied builtin fails at call time with "not permitted".
func universe() starlark.StringDict {
	out := make(starlark.StringDict, len(starlark.Universe))
	for name, v := range starlark.Universe {
		if core.IsSafeBuiltin(name) {
			out[name] = v
			continue
		}
		out[name] = denied(name)
	}
	return out
}

func denied(name string) *starlark.Builtin {
	return starlark.NewBuiltin(name, func(*starlark.Thread, *starlark.Builtin, starlark.Tuple, []starlark.Tuple) (starlark.Value, error) {
		return nil, fmt.Errorf("%s is not permitted", name)
	})
}

// sqlQueryBuiltin returns execute_sql_query(sql). Every call re-checks the
// referenced tables against allowed and runs on the first source's
// connection, which all sources share.
func sqlQueryBuiltin(ctx context.Context, sources []source.SQLSource, allowed []string, logger *slog.Logger) *starlark.Builtin {
	return starlark.NewBuiltin(core.SQLFunction, func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var sql string
		if err := starlark.UnpackArgs(b.Name(), args, kwargs, "sql", &sql); err != nil {
			return nil, err
		}
		bad, err := sqlscan.Unauthorized(sql, allowed, sources[0].Kind())
		if err != nil {
			return nil, &core.MaliciousQueryError{Reason: err.Error()}
		}
		if len(bad) > 0 {
			return nil, &core.MaliciousQueryError{Tables: bad}
		}

		logger.Debug("running generated SQL", slog.String("sql", sql))
		t, err := sources[0].QueryTable(ctx, sql)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", b.Name(), err)
		}
		return frame.NewTableValue(t), nil
	})
}
