package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"

	"github.com/chzyer/readline"
	"github.com/leapstack-labs/leapask/internal/engine"
	"github.com/leapstack-labs/leapask/internal/library"
	"github.com/leapstack-labs/leapask/pkg/source"
	"github.com/spf13/cobra"
)

const (
	replPrompt     = "leapask> "
	replContPrompt = "   ...> "
)

// NewREPLCommand creates the repl command.
func NewREPLCommand() *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "repl",
		Short: "Run generated code interactively",
		Long: `Start an interactive session against the configured sources.

Type or paste a program and end it with a line containing only "." to run
it. When error correction is enabled, failed attempts ask for corrected code
at the same prompt. Lines starting with "." are commands; type .help to list
them.

With --watch the library and skill directories are reloaded whenever a
.star file in them changes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runREPL(cmd, watch)
		},
	}
	cmd.Flags().BoolVar(&watch, "watch", true, "Reload libraries and skills when their files change")
	return cmd
}

type replSession struct {
	rt  *Runtime
	rl  *readline.Instance
	out io.Writer
	err io.Writer
	// mu serializes executions with reloads from the watcher.
	mu sync.Mutex
}

func runREPL(cmd *cobra.Command, watch bool) error {
	cmdCtx, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	historyFile := ""
	if cmdCtx.Cfg.AuditPath != "" && cmdCtx.Cfg.AuditPath != ":memory:" {
		historyFile = filepath.Join(filepath.Dir(cmdCtx.Cfg.AuditPath), "repl_history")
	}
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          replPrompt,
		HistoryFile:     historyFile,
		AutoComplete:    replCompleter(),
		InterruptPrompt: "^C",
		EOFPrompt:       ".quit",
	})
	if err != nil {
		return fmt.Errorf("failed to initialize REPL: %w", err)
	}
	defer func() { _ = rl.Close() }()

	s := &replSession{rl: rl, out: cmd.OutOrStdout(), err: cmd.ErrOrStderr()}
	rt, err := OpenRuntime(ctx, cmdCtx.Cfg, RuntimeOptions{Repairer: &promptRepairer{rl: rl, out: s.err}}, cmdCtx.Logger)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()
	s.rt = rt

	if watch {
		dirs := []string{cmdCtx.Cfg.LibrariesDir, cmdCtx.Cfg.SkillsDir}
		if err := library.Watch(ctx, dirs, s.reload, cmdCtx.Logger); err != nil {
			cmdCtx.Logger.Warn("file watching disabled", "error", err)
		}
	}

	_, _ = fmt.Fprintf(s.out, "leapask REPL (%d sources)\n", len(rt.Sources))
	_, _ = fmt.Fprintln(s.out, `End a program with a line containing only ".", type .help for commands`)
	_, _ = fmt.Fprintln(s.out)

	var buf strings.Builder
	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			buf.Reset()
			rl.SetPrompt(replPrompt)
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		if buf.Len() == 0 && strings.HasPrefix(strings.TrimSpace(line), ".") && line != blockEnd {
			if quit := s.dotCommand(strings.TrimSpace(line)); quit {
				return nil
			}
			continue
		}

		if line != blockEnd {
			buf.WriteString(line)
			buf.WriteByte('\n')
			rl.SetPrompt(replContPrompt)
			continue
		}
		rl.SetPrompt(replPrompt)

		code := buf.String()
		buf.Reset()
		if strings.TrimSpace(code) == "" {
			continue
		}
		s.execute(ctx, cmdCtx, code)
		_, _ = fmt.Fprintln(s.out)
	}
}

func (s *replSession) execute(ctx context.Context, cmdCtx *CommandContext, code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.rl.SetPrompt(replPrompt)

	res, err := s.rt.Engine.Execute(ctx, engine.Request{Code: code})
	if err != nil {
		_, _ = fmt.Fprintf(s.err, "Error: %v\n", err)
		return
	}
	if err := renderResult(cmdCtx.Renderer, res); err != nil {
		_, _ = fmt.Fprintf(s.err, "Error: %v\n", err)
	}
}

func (s *replSession) reload() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.rt.Reload(); err != nil {
		_, _ = fmt.Fprintf(s.err, "\nreload failed: %v\n", err)
		return
	}
	s.rl.Refresh()
}

// dotCommand runs a REPL command and reports whether the session should end.
func (s *replSession) dotCommand(line string) bool {
	parts := strings.Fields(line)
	switch strings.ToLower(parts[0]) {
	case ".quit", ".exit":
		return true
	case ".help":
		printREPLHelp(s.out)
	case ".sources":
		for i, name := range source.Names(s.rt.Sources) {
			_, _ = fmt.Fprintf(s.out, "dfs[%d]  %s\n", i, name)
		}
	case ".libraries":
		_, _ = fmt.Fprintln(s.out, strings.Join(s.rt.Engine.Libraries(), "\n"))
	case ".skills":
		if desc := s.rt.Skills.Describe(); desc != "" {
			_, _ = fmt.Fprintln(s.out, desc)
		} else {
			_, _ = fmt.Fprintln(s.out, "No skills loaded.")
		}
	case ".reload":
		s.reload()
		_, _ = fmt.Fprintln(s.out, "reloaded")
	default:
		_, _ = fmt.Fprintf(s.err, "Unknown command: %s (type .help for commands)\n", parts[0])
	}
	return false
}

func printREPLHelp(w io.Writer) {
	help := `
Commands:
  .help           Show this help message
  .sources        List the sources in dfs order
  .libraries      List allow-listed library roots
  .skills         Describe loaded skills
  .reload         Reload libraries and skills from disk
  .quit / .exit   Exit the REPL

Tips:
  - A program ends with a line containing only "."
  - The program must define analyze_data(dfs) or bind result
  - Ctrl-C discards the program being typed
`
	_, _ = fmt.Fprintln(w, help)
}

func replCompleter() *readline.PrefixCompleter {
	return readline.NewPrefixCompleter(
		readline.PcItem(".help"),
		readline.PcItem(".sources"),
		readline.PcItem(".libraries"),
		readline.PcItem(".skills"),
		readline.PcItem(".reload"),
		readline.PcItem(".quit"),
		readline.PcItem(".exit"),
	)
}
