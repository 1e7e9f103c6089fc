package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/leapstack-labs/leapask/internal/audit"
	clitest "github.com/leapstack-labs/leapask/internal/cli/testutil"
	"github.com/leapstack-labs/leapask/internal/config"
	"github.com/leapstack-labs/leapask/internal/engine"
	"github.com/leapstack-labs/leapask/internal/testutil"
	_ "github.com/leapstack-labs/leapask/pkg/adapters/sqlite"
	"github.com/leapstack-labs/leapask/pkg/core"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const shippedProgram = `def analyze_data(dfs):
    shipped = dfs[0].filter(lambda r: r["status"] == "shipped")
    return {"type": "number", "value": len(shipped)}
`

type cmdResult struct {
	out    string
	errOut string
	err    error
}

// execute runs cmd in the project at dir with the given output mode.
func execute(t *testing.T, dir, mode string, cmd *cobra.Command, args ...string) cmdResult {
	t.Helper()
	t.Chdir(dir)

	cfg, err := config.Load("", nil)
	require.NoError(t, err)
	cfg.OutputFormat = mode

	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	cmd.SetContext(WithConfig(context.Background(), cfg, testutil.NewTestLogger(t)))

	err = cmd.Execute()
	return cmdResult{out: out.String(), errOut: errOut.String(), err: err}
}

func TestCommandMetadata(t *testing.T) {
	tests := []struct {
		cmd   *cobra.Command
		use   string
		flags []string
	}{
		{NewRunCommand(), "run FILE", []string{"prompt-id", "interactive", "repair-cmd", "no-audit"}},
		{NewCheckCommand(), "check FILE", nil},
		{NewREPLCommand(), "repl", []string{"watch"}},
		{NewSourcesCommand(), "sources", []string{"count", "columns"}},
		{NewHistoryCommand(), "history [PROMPT_ID]", []string{"limit", "code"}},
	}
	for _, tt := range tests {
		t.Run(tt.use, func(t *testing.T) {
			assert.Equal(t, tt.use, tt.cmd.Use)
			assert.NotEmpty(t, tt.cmd.Short, "Short should not be empty")
			assert.NotEmpty(t, tt.cmd.Long, "Long should not be empty")
			for _, flag := range tt.flags {
				assert.NotNil(t, tt.cmd.Flags().Lookup(flag), "flag %q should exist", flag)
			}
		})
	}
}

func TestRunCommand_JSON(t *testing.T) {
	dir := clitest.SetupTestProject(t)
	path := clitest.WriteProgram(t, dir, "answer.star", shippedProgram)

	res := execute(t, dir, "json", NewRunCommand(), path, "--prompt-id", "p1")
	require.NoError(t, res.err, res.errOut)

	var summary map[string]any
	require.NoError(t, json.Unmarshal([]byte(res.out), &summary))
	assert.Equal(t, "p1", summary["prompt_id"])
	assert.Equal(t, float64(1), summary["attempts"])
	assert.Equal(t, map[string]any{"type": "number", "value": float64(2)}, summary["value"])
}

func TestRunCommand_TableValue(t *testing.T) {
	dir := clitest.SetupTestProject(t)
	path := clitest.WriteProgram(t, dir, "answer.star", `def analyze_data(dfs):
    return {"type": "dataframe", "value": dfs[0].filter(lambda r: r["customer"] == "ada")}
`)

	res := execute(t, dir, "md", NewRunCommand(), path)
	require.NoError(t, res.err, res.errOut)
	assert.Contains(t, res.out, "| type |")
	clitest.AssertNoANSI(t, res.out)
}

func TestRunCommand_Stdin(t *testing.T) {
	dir := clitest.SetupTestProject(t)
	cmd := NewRunCommand()
	cmd.SetIn(strings.NewReader(shippedProgram))

	res := execute(t, dir, "json", cmd, "-", "--no-audit")
	require.NoError(t, res.err, res.errOut)
	assert.Contains(t, res.out, `"attempts": 1`)

	_, err := os.Stat(filepath.Join(dir, ".leapask", "audit.db"))
	assert.True(t, os.IsNotExist(err), "audit log should not be created")
}

func TestRunCommand_Skill(t *testing.T) {
	dir := clitest.SetupTestProject(t)
	path := clitest.WriteProgram(t, dir, "answer.star", `def analyze_data(dfs):
    return {"type": "number", "value": total_quantity(dfs[1])}
`)

	res := execute(t, dir, "json", NewRunCommand(), path)
	require.NoError(t, res.err, res.errOut)
	assert.Contains(t, res.out, `"total_quantity"`)
	assert.Contains(t, res.out, `"value": 9`)
}

func TestRunCommand_RepairCmd(t *testing.T) {
	dir := clitest.SetupTestProject(t)
	path := clitest.WriteProgram(t, dir, "broken.star", `def analyze_data(dfs):
    return {"type": "number", "value": len(shiped)}
`)

	res := execute(t, dir, "json", NewRunCommand(), path, "--prompt-id", "p2", "--repair-cmd", "sed 's/shiped/dfs[0]/'")
	require.NoError(t, res.err, res.errOut)
	assert.Contains(t, res.out, `"attempts": 2`)
	assert.Contains(t, res.out, `"value": 3`)

	store, err := audit.Open(filepath.Join(dir, ".leapask", "audit.db"), nil)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	execs, err := store.ByPrompt(context.Background(), "p2")
	require.NoError(t, err)
	require.Len(t, execs, 2)
	assert.Equal(t, audit.StatusFailed, execs[0].Status)
	assert.Equal(t, audit.StatusSucceeded, execs[1].Status)
}

func TestRunCommand_Errors(t *testing.T) {
	dir := clitest.SetupTestProject(t)
	path := clitest.WriteProgram(t, dir, "broken.star", "result = (\n")

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{name: "syntax error", args: []string{path}, wantErr: "syntax"},
		{name: "missing file", args: []string{filepath.Join(dir, "nope.star")}, wantErr: "failed to read"},
		{name: "exclusive repairers", args: []string{path, "--interactive", "--repair-cmd", "cat"}, wantErr: "mutually exclusive"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := execute(t, dir, "json", NewRunCommand(), tt.args...)
			require.Error(t, res.err)
			assert.Contains(t, strings.ToLower(res.err.Error()), tt.wantErr)
		})
	}
}

func TestCheckCommand(t *testing.T) {
	dir := clitest.SetupTestProject(t)
	path := clitest.WriteProgram(t, dir, "answer.star", `dfs = []
def analyze_data(dfs):
    shipped = dfs[0].filter(lambda r: r["status"] == "shipped")
    return {"type": "number", "value": len(shipped)}
`)

	res := execute(t, dir, "json", NewCheckCommand(), path)
	require.NoError(t, res.err, res.errOut)

	var report checkReport
	require.NoError(t, json.Unmarshal([]byte(res.out), &report))
	require.Len(t, report.Drops, 1)
	assert.Equal(t, 1, report.Drops[0].Line)
	assert.Equal(t, []string{"orders"}, report.Required)
	assert.Contains(t, report.Pushdown["orders"], "status")
	assert.NotContains(t, report.Code, "dfs = []")
}

func TestSourcesCommand(t *testing.T) {
	dir := clitest.SetupTestProject(t)

	res := execute(t, dir, "json", NewSourcesCommand())
	require.NoError(t, res.err, res.errOut)
	assert.Contains(t, res.out, `"name": "orders"`)
	assert.NotContains(t, res.out, `"rows"`)

	res = execute(t, dir, "json", NewSourcesCommand(), "--count")
	require.NoError(t, res.err, res.errOut)

	var infos []sourceInfo
	require.NoError(t, json.Unmarshal([]byte(res.out), &infos))
	require.Len(t, infos, 2)
	assert.Equal(t, "order_details", infos[1].Name)
	require.NotNil(t, infos[0].Rows)
	assert.Equal(t, 3, *infos[0].Rows)
	assert.Equal(t, 4, *infos[1].Rows)
}

func TestSourcesCommand_Columns(t *testing.T) {
	dir := clitest.SetupTestProject(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "leapask.yaml"), []byte(`max_retries: 2
audit_path: .leapask/audit.db
connections:
  shop:
    type: sqlite
    path: shop.db
sources:
  - name: orders
    table: main.orders
    csv: data/orders.csv
    connection: shop
  - name: order_details
    csv: data/order_details.csv
`), 0o600))

	res := execute(t, dir, "json", NewSourcesCommand(), "--count", "--columns")
	require.NoError(t, res.err, res.errOut)

	var infos []sourceInfo
	require.NoError(t, json.Unmarshal([]byte(res.out), &infos))
	require.Len(t, infos, 2)

	tests := []struct {
		name    string
		info    sourceInfo
		kind    string
		rows    int
		columns []string
	}{
		{"csv loaded into a schema-qualified table", infos[0], "sqlite", 3, []string{"order_id TEXT", "customer TEXT", "status TEXT"}},
		{"csv held in memory", infos[1], "memory", 4, []string{"order_id", "product_id", "quantity"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.kind, tt.info.Kind)
			require.NotNil(t, tt.info.Rows)
			assert.Equal(t, tt.rows, *tt.info.Rows)
			names := make([]string, len(tt.info.Columns))
			for i, c := range tt.info.Columns {
				names[i] = c.String()
			}
			assert.Equal(t, tt.columns, names)
		})
	}
	assert.Equal(t, "main.orders", infos[0].Table)

	res = execute(t, dir, "md", NewSourcesCommand(), "--columns")
	require.NoError(t, res.err, res.errOut)
	assert.Contains(t, res.out, "order_id TEXT, customer TEXT, status TEXT")
	assert.NotContains(t, res.out, "| rows |")
}

func TestHistoryCommand(t *testing.T) {
	dir := clitest.SetupTestProject(t)
	path := clitest.WriteProgram(t, dir, "answer.star", shippedProgram)

	res := execute(t, dir, "json", NewRunCommand(), path, "--prompt-id", "p3")
	require.NoError(t, res.err, res.errOut)

	res = execute(t, dir, "json", NewHistoryCommand())
	require.NoError(t, res.err, res.errOut)
	assert.Contains(t, res.out, `"prompt_id": "p3"`)
	assert.Contains(t, res.out, `"status": "succeeded"`)

	res = execute(t, dir, "json", NewHistoryCommand(), "p3", "--code")
	require.NoError(t, res.err, res.errOut)
	assert.Contains(t, res.out, "result = analyze_data(dfs)")

	res = execute(t, dir, "json", NewHistoryCommand(), "--code")
	require.Error(t, res.err)
}

func TestHistoryCommand_Table(t *testing.T) {
	dir := clitest.SetupTestProject(t)
	path := clitest.WriteProgram(t, dir, "answer.star", `def analyze_data(dfs):
    return {"type": "number", "value": len(dfs[0]) // 0}
`)

	res := execute(t, dir, "json", NewRunCommand(), path, "--prompt-id", "p4", "--output-type", "number")
	require.Error(t, res.err)

	res = execute(t, dir, "md", NewHistoryCommand(), "p4")
	require.NoError(t, res.err, res.errOut)
	assert.Contains(t, res.out, "| Failed |")
	assert.Contains(t, res.out, "| Execution |")
	clitest.AssertNoANSI(t, res.out)
}

func TestKindLabel(t *testing.T) {
	c := cases.Title(language.English)
	tests := []struct {
		kind string
		want string
	}{
		{"execution", "Execution"},
		{"invalid_output_type", "Invalid Output Type"},
		{"malicious_query", "Malicious Query"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			assert.Equal(t, tt.want, kindLabel(c, tt.kind))
		})
	}
}

func TestCommandRepairer(t *testing.T) {
	var stderr bytes.Buffer
	r := &commandRepairer{
		command: `echo "$LEAPASK_ERROR_KIND $LEAPASK_ATTEMPT $LEAPASK_PROMPT_ID" >&2; tr a-z A-Z`,
		stderr:  &stderr,
	}

	fixed, err := r.Repair(context.Background(), engine.RepairRequest{
		Code:     "result = x\n",
		Err:      &core.ExecutionError{Err: assert.AnError},
		Kind:     core.KindExecution,
		Attempt:  2,
		PromptID: "p1",
	})
	require.NoError(t, err)
	assert.Equal(t, "RESULT = X\n", fixed)
	assert.Equal(t, "execution 2 p1\n", stderr.String())

	r.command = "true"
	_, err = r.Repair(context.Background(), engine.RepairRequest{Code: "x", Err: assert.AnError})
	assert.ErrorContains(t, err, "no code")

	r.command = "exit 3"
	_, err = r.Repair(context.Background(), engine.RepairRequest{Code: "x", Err: assert.AnError})
	assert.ErrorContains(t, err, "repair command failed")
}

func TestAuthorizedTables(t *testing.T) {
	cfg := &config.Config{Sources: []config.SourceConfig{
		{Name: "orders", Connection: "db"},
		{Name: "lines", Table: "order_lines", Connection: "db"},
		{Name: "Products", Table: "products", Connection: "db"},
	}}
	assert.Equal(t, []string{"orders", "lines", "Products", "order_lines"}, authorizedTables(cfg))
}
