package commands

import (
	"fmt"
	"os"

	"github.com/chzyer/readline"
	"github.com/leapstack-labs/leapask/internal/cli/output"
	"github.com/leapstack-labs/leapask/internal/engine"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// RunOptions holds options for the run command.
type RunOptions struct {
	PromptID    string
	Interactive bool
	RepairCmd   string
	NoAudit     bool
	OutputType  string
}

// NewRunCommand creates the run command.
func NewRunCommand() *cobra.Command {
	opts := &RunOptions{}

	cmd := &cobra.Command{
		Use:   "run FILE",
		Short: "Execute generated code against the configured sources",
		Long: `Sanitize and execute a generated Starlark program against the configured
data sources, printing the value bound to result.

Failed attempts are repaired, up to max_retries executions, when error
correction is enabled and a repairer is available: --repair-cmd runs a
program that reads the failed code on stdin and prints corrected code, and
--interactive asks for corrected code on the terminal.

Use - as FILE to read the code from stdin.`,
		Example: `  # Run a program
  leapask run answer.star

  # Repair failures with an external program
  leapask run answer.star --repair-cmd ./fix-with-llm.sh

  # Type fixes yourself
  leapask run answer.star --interactive

  # Require a numeric answer, repairing code that returns anything else
  leapask run answer.star --output-type number --repair-cmd ./fix-with-llm.sh

  # Machine-readable output
  leapask run answer.star -o json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd, args[0], opts)
		},
	}

	cmd.Flags().StringVar(&opts.PromptID, "prompt-id", "", "Identifier for charts and the audit log (default: generated)")
	cmd.Flags().BoolVar(&opts.Interactive, "interactive", false, "Ask for corrected code on the terminal when an attempt fails")
	cmd.Flags().StringVar(&opts.RepairCmd, "repair-cmd", "", "Shell command that repairs failed code")
	cmd.Flags().BoolVar(&opts.NoAudit, "no-audit", false, "Do not record attempts in the audit log")
	cmd.Flags().StringVar(&opts.OutputType, "output-type", "", "Required result type: number, string, dataframe or plot")

	return cmd
}

// runSummary is the machine-readable run output.
type runSummary struct {
	PromptID string   `json:"prompt_id" yaml:"prompt_id"`
	Attempts int      `json:"attempts" yaml:"attempts"`
	Skills   []string `json:"skills,omitempty" yaml:"skills,omitempty"`
	Charts   []string `json:"charts,omitempty" yaml:"charts,omitempty"`
	Healed   []string `json:"healed,omitempty" yaml:"healed,omitempty"`
	Value    any      `json:"value" yaml:"value"`
}

func runRun(cmd *cobra.Command, path string, opts *RunOptions) error {
	if opts.Interactive && opts.RepairCmd != "" {
		return fmt.Errorf("--interactive and --repair-cmd are mutually exclusive")
	}

	cmdCtx, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	code, err := readCode(cmd, path)
	if err != nil {
		return err
	}

	var repairer engine.Repairer
	switch {
	case opts.RepairCmd != "":
		repairer = &commandRepairer{command: opts.RepairCmd, stderr: cmd.ErrOrStderr()}
	case opts.Interactive:
		if path == "-" || !term.IsTerminal(int(os.Stdin.Fd())) {
			return fmt.Errorf("--interactive needs a terminal on stdin")
		}
		rl, err := readline.NewEx(&readline.Config{Prompt: "fix> ", InterruptPrompt: "^C"})
		if err != nil {
			return fmt.Errorf("failed to initialize prompt: %w", err)
		}
		defer func() { _ = rl.Close() }()
		repairer = &promptRepairer{rl: rl, out: cmd.ErrOrStderr()}
	}

	rt, err := OpenRuntime(cmd.Context(), cmdCtx.Cfg, RuntimeOptions{Repairer: repairer, NoAudit: opts.NoAudit}, cmdCtx.Logger)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	res, err := rt.Engine.Execute(cmd.Context(), engine.Request{Code: code, PromptID: opts.PromptID, OutputType: opts.OutputType})
	if err != nil {
		return err
	}
	return renderResult(cmdCtx.Renderer, res)
}

func renderResult(r *output.Renderer, res *engine.Result) error {
	summary := runSummary{
		PromptID: res.PromptID,
		Attempts: res.Attempts,
		Skills:   res.Skills,
		Charts:   res.Charts,
		Healed:   res.Healed,
		Value:    output.Plain(res.Value),
	}
	if ok, err := r.Encode(summary); ok {
		return err
	}

	if err := r.Value(res.Value); err != nil {
		return err
	}
	if res.Attempts > 1 {
		r.Warnf("succeeded after %d attempts", res.Attempts)
	}
	for _, c := range res.Charts {
		r.Warnf("chart saved: %s", c)
	}
	return nil
}
