package commands

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/leapstack-labs/leapask/internal/engine"
)

var errRepairAborted = errors.New("repair aborted")

// blockEnd ends a multi-line code block typed at a prompt.
const blockEnd = "."

// promptRepairer asks the operator for corrected code on the terminal.
type promptRepairer struct {
	rl  *readline.Instance
	out io.Writer
}

func (p *promptRepairer) Repair(_ context.Context, req engine.RepairRequest) (string, error) {
	_, _ = fmt.Fprintf(p.out, "\nattempt %d failed (%s): %v\n", req.Attempt, req.Kind, req.Err)
	_, _ = fmt.Fprintf(p.out, "enter corrected code, end with a line containing only %q; an empty first line gives up\n", blockEnd)

	code, err := readBlock(p.rl, "fix> ", "...> ")
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(code) == "" {
		return "", errRepairAborted
	}
	return code, nil
}

// readBlock reads lines until blockEnd, or until an empty first line.
func readBlock(rl *readline.Instance, prompt, cont string) (string, error) {
	rl.SetPrompt(prompt)

	var b strings.Builder
	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
			return "", errRepairAborted
		}
		if err != nil {
			return "", err
		}
		if line == blockEnd || (b.Len() == 0 && strings.TrimSpace(line) == "") {
			return b.String(), nil
		}
		b.WriteString(line)
		b.WriteByte('\n')
		rl.SetPrompt(cont)
	}
}

// commandRepairer runs an external program to repair code. The failed code
// is written to its stdin and the corrected code read from its stdout; the
// failure is described in LEAPASK_* environment variables.
type commandRepairer struct {
	command string
	stderr  io.Writer
}

func (c *commandRepairer) Repair(ctx context.Context, req engine.RepairRequest) (string, error) {
	cmd := exec.CommandContext(ctx, "sh", "-c", c.command) //nolint:gosec // operator-configured
	cmd.Stdin = strings.NewReader(req.Code)
	cmd.Stderr = c.stderr
	cmd.Env = append(os.Environ(),
		"LEAPASK_PROMPT_ID="+req.PromptID,
		"LEAPASK_ATTEMPT="+strconv.Itoa(req.Attempt),
		"LEAPASK_ERROR_KIND="+string(req.Kind),
		"LEAPASK_ERROR="+req.Err.Error(),
	)

	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("repair command failed: %w", err)
	}
	if strings.TrimSpace(out.String()) == "" {
		return "", fmt.Errorf("repair command returned no code")
	}
	return out.String(), nil
}
