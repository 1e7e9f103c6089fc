package starlark

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/leapstack-labs/leapask/internal/guard"
	"github.com/leapstack-labs/leapask/internal/library"
	"github.com/leapstack-labs/leapask/internal/testutil"
	"github.com/leapstack-labs/leapask/pkg/core"
	"github.com/leapstack-labs/leapask/pkg/frame"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// run sanitizes src, builds a context over the sales fixtures and executes it.
func run(t *testing.T, ctx context.Context, src string) (*Outcome, error) {
	t.Helper()
	sanitizer := guard.NewSanitizer(guard.Options{}, testutil.NewTestLogger(t))
	unit, err := sanitizer.Sanitize(src)
	require.NoError(t, err)

	libs := library.NewRegistry()
	ec, err := NewBuilder(BuilderOptions{Libraries: libs}, testutil.NewTestLogger(t)).
		Build(ctx, unit, testutil.DataSources(testutil.SalesSources()))
	require.NoError(t, err)

	return NewExecutor(libs, sanitizer.Allowed, testutil.NewTestLogger(t)).Run(ctx, unit, ec)
}

func TestRun_Results(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want any
	}{
		{
			name: "appended compute call",
			src:  "def analyze_data(dfs):\n    return len(dfs[1])\n",
			want: int64(5),
		},
		{
			name: "explicit result",
			src:  "result = {\"type\": \"string\", \"value\": \"ok\"}\n",
			want: map[string]any{"type": "string", "value": "ok"},
		},
		{
			name: "list",
			src:  "result = [x * 2 for x in range(3)]\n",
			want: []any{int64(0), int64(2), int64(4)},
		},
		{
			name: "none",
			src:  "result = None\n",
			want: nil,
		},
		{
			name: "loaded library",
			src:  "load(\"math\", \"floor\")\nresult = floor(2.7)\n",
			want: int64(2),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := run(t, context.Background(), tt.src)
			require.NoError(t, err)
			assert.Equal(t, tt.want, out.Value)
			assert.Empty(t, out.Healed)
		})
	}
}

func TestRun_TableResult(t *testing.T) {
	src := `load("frame", "DataFrame")

def analyze_data(dfs):
    shipped = dfs[0].filter(lambda r: r["status"] == "shipped")
    return DataFrame({"orders": [len(shipped)]})
`
	out, err := run(t, context.Background(), src)
	require.NoError(t, err)
	tbl, ok := out.Value.(*frame.Table)
	require.True(t, ok, "got %T", out.Value)
	assert.Equal(t, []string{"orders"}, tbl.Columns())
	v, err := tbl.Value(0, "orders")
	require.NoError(t, err)
	assert.Equal(t, int64(3), v)
}

func TestRun_NoResult(t *testing.T) {
	_, err := run(t, context.Background(), "x = 1\n")
	var nr *core.NoResultError
	require.ErrorAs(t, err, &nr)
	assert.Equal(t, core.ResultBinding, nr.Name)
	assert.True(t, core.RetryEligible(err))
}

func TestRun_Failures(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{
			name: "while loop",
			src:  "x = 0\nwhile x < 3:\n    x += 1\nresult = x\n",
			want: "while",
		},
		{
			name: "recursion",
			src:  "def f(n):\n    return f(n - 1)\nresult = f(3)\n",
			want: "recursive",
		},
		{
			name: "denied builtin",
			src:  "result = getattr(dfs, \"append\")\n",
			want: "getattr is not permitted",
		},
		{
			name: "runtime error",
			src:  "def analyze_data(dfs):\n    return dfs[0][\"missing\"]\n",
			want: "missing",
		},
		{
			name: "library not on the allow-list",
			src:  "result = os.getcwd()\n",
			want: "undefined: os",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, context.Background(), tt.src)
			require.Error(t, err)
			assert.ErrorIs(t, err, core.ErrExecution)
			assert.Contains(t, err.Error(), tt.want)
			assert.True(t, core.RetryEligible(err))
		})
	}
}

func TestRun_Backtrace(t *testing.T) {
	_, err := run(t, context.Background(), "def analyze_data(dfs):\n    return 1 // 0\n")
	var execErr *core.ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Contains(t, execErr.Backtrace, "analyze_data")
	assert.Contains(t, execErr.Backtrace, guard.Filename+":2")
}

func TestRun_SelfHeal(t *testing.T) {
	t.Run("binds a missing allowed library", func(t *testing.T) {
		out, err := run(t, context.Background(), "result = math.floor(2.7) + stats.sum([1, 2])\n")
		require.NoError(t, err)
		assert.Equal(t, 5.0, out.Value)
		assert.Equal(t, []string{"math", "stats"}, out.Healed)
	})

	t.Run("runs again only once", func(t *testing.T) {
		_, err := run(t, context.Background(), "result = math.floor(2.7) + undefined_thing\n")
		require.Error(t, err)
		assert.ErrorIs(t, err, core.ErrExecution)
		assert.Contains(t, err.Error(), "undefined: undefined_thing")
	})
}

func TestRun_PrintGoesToLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	unit, err := guard.NewSanitizer(guard.Options{}, nil).Sanitize("print(\"hello from code\")\nresult = 1\n")
	require.NoError(t, err)
	ec, err := NewBuilder(BuilderOptions{Libraries: library.NewRegistry()}, nil).Build(context.Background(), unit, nil)
	require.NoError(t, err)

	_, err = NewExecutor(nil, nil, logger).Run(context.Background(), unit, ec)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "hello from code")
}

func TestRun_Cancelled(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := run(t, ctx, "n = 0\nfor i in range(1 << 40):\n    n += 1\nresult = n\n")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, core.KindUnknown, core.Kind(err))
}

func TestUndefinedName(t *testing.T) {
	tests := []struct {
		msg  string
		want string
		ok   bool
	}{
		{"undefined: math", "math", true},
		{"undefined: mth (did you mean math?)", "mth", true},
		{"cannot reassign global x", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			got, ok := undefinedName(tt.msg)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
