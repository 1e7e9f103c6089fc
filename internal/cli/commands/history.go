package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/leapstack-labs/leapask/internal/audit"
	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// HistoryOptions holds options for the history command.
type HistoryOptions struct {
	Limit int
	Code  bool
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand() *cobra.Command {
	opts := &HistoryOptions{}

	cmd := &cobra.Command{
		Use:   "history [PROMPT_ID]",
		Short: "Show recorded execution attempts",
		Long: `Show attempts recorded in the audit log, newest first.

With a prompt ID, show every attempt of that prompt in order. With --code,
print the code of its last attempt instead.`,
		Example: `  leapask history
  leapask history 4f0c...
  leapask history 4f0c... --code > fixed.star`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			promptID := ""
			if len(args) == 1 {
				promptID = args[0]
			}
			return runHistory(cmd, promptID, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 20, "Number of attempts to show")
	cmd.Flags().BoolVar(&opts.Code, "code", false, "Print the code of the prompt's last attempt")
	return cmd
}

type historyRow struct {
	PromptID string    `json:"prompt_id" yaml:"prompt_id"`
	Attempt  int       `json:"attempt" yaml:"attempt"`
	Status   string    `json:"status" yaml:"status"`
	Kind     string    `json:"kind,omitempty" yaml:"kind,omitempty"`
	Error    string    `json:"error,omitempty" yaml:"error,omitempty"`
	Skills   []string  `json:"skills,omitempty" yaml:"skills,omitempty"`
	Duration string    `json:"duration" yaml:"duration"`
	Created  time.Time `json:"created_at" yaml:"created_at"`
}

func runHistory(cmd *cobra.Command, promptID string, opts *HistoryOptions) error {
	cmdCtx, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	if cmdCtx.Cfg.AuditPath == "" {
		return fmt.Errorf("no audit log configured")
	}
	if opts.Code && promptID == "" {
		return fmt.Errorf("--code needs a prompt ID")
	}

	store, err := audit.Open(cmdCtx.Cfg.AuditPath, cmdCtx.Logger)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	ctx := cmd.Context()
	r := cmdCtx.Renderer

	if opts.Code {
		code, err := store.LastCode(ctx, promptID)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprint(r.Writer(), code)
		return nil
	}

	var execs []*audit.Execution
	if promptID != "" {
		execs, err = store.ByPrompt(ctx, promptID)
	} else {
		execs, err = store.Recent(ctx, opts.Limit)
	}
	if err != nil {
		return err
	}

	out := make([]historyRow, len(execs))
	for i, e := range execs {
		out[i] = historyRow{
			PromptID: e.PromptID,
			Attempt:  e.Attempt,
			Status:   string(e.Status),
			Kind:     e.Kind,
			Error:    e.Error,
			Skills:   e.Skills,
			Duration: e.Duration.String(),
			Created:  e.Created,
		}
	}
	if ok, err := r.Encode(out); ok {
		return err
	}
	if len(out) == 0 {
		r.Println("No executions recorded.")
		return nil
	}

	titleCaser := cases.Title(language.English)
	rows := make([][]any, len(out))
	for i, h := range out {
		rows[i] = []any{
			h.Created.Local().Format(time.DateTime),
			h.PromptID,
			h.Attempt,
			titleCaser.String(h.Status),
			kindLabel(titleCaser, h.Kind),
			truncate(h.Error, 60),
			strings.Join(h.Skills, ","),
			h.Duration,
		}
	}
	return r.Table([]string{"time", "prompt", "attempt", "status", "kind", "error", "skills", "duration"}, rows)
}

// kindLabel renders a failure kind such as "invalid_output_type" for a table.
func kindLabel(c cases.Caser, kind string) string {
	return c.String(strings.ReplaceAll(kind, "_", " "))
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
