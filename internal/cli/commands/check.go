package commands

import (
	"strings"

	"github.com/leapstack-labs/leapask/internal/analysis"
	"github.com/leapstack-labs/leapask/internal/config"
	"github.com/leapstack-labs/leapask/internal/guard"
	"github.com/spf13/cobra"
)

// NewCheckCommand creates the check command.
func NewCheckCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check FILE",
		Short: "Sanitize generated code without running it",
		Long: `Parse and sanitize a generated program, then report what the engine would
do with it: the statements it removes, the library symbols it loads, the
filters it pushes down to each source and the sources it materializes.

No source is opened and nothing is executed. Use - as FILE to read stdin.`,
		Example: `  leapask check answer.star
  leapask check answer.star -o json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd, args[0])
		},
	}
	return cmd
}

type checkReport struct {
	Drops        []checkDrop       `json:"drops" yaml:"drops"`
	Dependencies []string          `json:"dependencies" yaml:"dependencies"`
	Pushdown     map[string]string `json:"pushdown" yaml:"pushdown"`
	Required     []string          `json:"required_sources" yaml:"required_sources"`
	Code         string            `json:"code" yaml:"code"`
}

type checkDrop struct {
	Line   int    `json:"line" yaml:"line"`
	Reason string `json:"reason" yaml:"reason"`
}

func runCheck(cmd *cobra.Command, path string) error {
	cmdCtx, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	code, err := readCode(cmd, path)
	if err != nil {
		return err
	}

	cfg := cmdCtx.Cfg
	sanitizer := guard.NewSanitizer(guard.Options{
		Libraries: cfg.CustomLibraries,
		DirectSQL: cfg.DirectSQL,
		Sources:   authorizedTables(cfg),
	}, cmdCtx.Logger)

	unit, err := sanitizer.Sanitize(code)
	if err != nil {
		return err
	}
	filters, err := analysis.ExtractFilters(unit.Text, len(cfg.Sources))
	if err != nil {
		return err
	}
	pushdown := filters.Pushdown()
	required := analysis.RequiredSources(unit.Sanitized, len(cfg.Sources))

	report := checkReport{
		Drops:        make([]checkDrop, len(unit.Drops)),
		Dependencies: make([]string, len(unit.Dependencies)),
		Pushdown:     map[string]string{},
		Code:         unit.Text,
	}
	for i, d := range unit.Drops {
		report.Drops[i] = checkDrop{Line: d.Line, Reason: d.Reason}
	}
	for i, d := range unit.Dependencies {
		report.Dependencies[i] = d.Module + "." + d.Symbol
	}
	for i, src := range cfg.Sources {
		if preds := pushdown.For(i); len(preds) > 0 {
			parts := make([]string, len(preds))
			for j, p := range preds {
				parts[j] = p.String()
			}
			report.Pushdown[src.Name] = strings.Join(parts, " AND ")
		}
		if i < len(required) && required[i] {
			report.Required = append(report.Required, src.Name)
		}
	}

	r := cmdCtx.Renderer
	if ok, err := r.Encode(report); ok {
		return err
	}

	if len(report.Drops) > 0 {
		rows := make([][]any, len(report.Drops))
		for i, d := range report.Drops {
			rows[i] = []any{d.Line, d.Reason}
		}
		if err := r.Table([]string{"line", "removed"}, rows); err != nil {
			return err
		}
	}

	rows := make([][]any, 0, len(cfg.Sources))
	for i, src := range cfg.Sources {
		rows = append(rows, []any{i, src.Name, i < len(required) && required[i], report.Pushdown[src.Name]})
	}
	if len(rows) > 0 {
		if err := r.Table([]string{"index", "source", "materialized", "pushdown"}, rows); err != nil {
			return err
		}
	}
	if len(report.Dependencies) > 0 {
		r.Println("loads: " + strings.Join(report.Dependencies, ", "))
	}
	return nil
}

// authorizedTables mirrors source.Authorized for configured, unopened sources.
func authorizedTables(cfg *config.Config) []string {
	out := make([]string, 0, len(cfg.Sources))
	for _, s := range cfg.Sources {
		out = append(out, s.Name)
	}
	for _, s := range cfg.Sources {
		if s.Table != "" && !strings.EqualFold(s.Table, s.Name) {
			out = append(out, s.Table)
		}
	}
	return out
}
