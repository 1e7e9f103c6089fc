package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/leapstack-labs/leapask/internal/audit"
	"github.com/leapstack-labs/leapask/internal/cli/output"
	"github.com/leapstack-labs/leapask/internal/config"
	"github.com/leapstack-labs/leapask/internal/engine"
	"github.com/leapstack-labs/leapask/internal/library"
	"github.com/leapstack-labs/leapask/internal/skills"
	"github.com/leapstack-labs/leapask/pkg/core"
	"github.com/leapstack-labs/leapask/pkg/frame"
	"github.com/leapstack-labs/leapask/pkg/source"
	"github.com/spf13/cobra"
	"go.starlark.net/starlark"
)

type configKey struct{}

type loggerKey struct{}

// WithConfig returns ctx carrying cfg and logger for commands.
func WithConfig(ctx context.Context, cfg *config.Config, logger *slog.Logger) context.Context {
	ctx = context.WithValue(ctx, configKey{}, cfg)
	return context.WithValue(ctx, loggerKey{}, logger)
}

// CommandContext holds what every command needs.
type CommandContext struct {
	Cfg      *config.Config
	Logger   *slog.Logger
	Renderer *output.Renderer
}

// NewCommandContext reads the config and logger stored on cmd's context.
func NewCommandContext(cmd *cobra.Command) (*CommandContext, error) {
	ctx := cmd.Context()
	cfg, ok := ctx.Value(configKey{}).(*config.Config)
	if !ok {
		return nil, fmt.Errorf("configuration not loaded")
	}
	logger, ok := ctx.Value(loggerKey{}).(*slog.Logger)
	if !ok {
		logger = slog.New(slog.DiscardHandler)
	}
	return &CommandContext{
		Cfg:      cfg,
		Logger:   logger,
		Renderer: output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), output.Mode(cfg.OutputFormat)),
	}, nil
}

// Runtime is everything an execution needs, opened from configuration.
type Runtime struct {
	Engine    *engine.Engine
	Sources   []source.DataSource
	Libraries *library.Registry
	Skills    *skills.Registry
	Audit     *audit.Store

	cfg    *config.Config
	pool   *source.Pool
	logger *slog.Logger
}

// RuntimeOptions tune OpenRuntime.
type RuntimeOptions struct {
	Repairer engine.Repairer
	// NoAudit skips the execution log even when one is configured.
	NoAudit bool
}

// OpenRuntime opens the configured sources, loads libraries and skills from
// disk and builds the engine. Close releases everything it opened.
func OpenRuntime(ctx context.Context, cfg *config.Config, opts RuntimeOptions, logger *slog.Logger) (*Runtime, error) {
	rt := &Runtime{
		Libraries: library.NewRegistry(),
		Skills:    skills.NewRegistry(),
		cfg:       cfg,
		pool:      source.NewPool(logger),
		logger:    logger,
	}

	sources, err := rt.pool.OpenAll(ctx, cfg.SourceSpecs())
	if err != nil {
		return nil, err
	}
	rt.Sources = sources

	if err := rt.Reload(); err != nil {
		_ = rt.Close()
		return nil, err
	}

	var observer engine.Observer
	if cfg.AuditPath != "" && !opts.NoAudit {
		if err := ensureParentDir(cfg.AuditPath); err != nil {
			_ = rt.Close()
			return nil, err
		}
		store, err := audit.Open(cfg.AuditPath, logger)
		if err != nil {
			_ = rt.Close()
			return nil, err
		}
		rt.Audit = store
		observer = engine.AuditObserver(store, logger)
	}

	rt.Engine, err = engine.New(engine.Config{
		Sources:         sources,
		DirectSQL:       cfg.DirectSQL,
		CustomLibraries: cfg.CustomLibraries,
		MaxRetries:      cfg.MaxRetries,
		ErrorCorrection: cfg.ErrorCorrection,
		SaveCharts:      cfg.SaveCharts,
		ChartsDir:       cfg.ChartsDir,
		Libraries:       rt.Libraries,
		Skills:          rt.Skills,
		Repairer:        opts.Repairer,
		Observer:        observer,
		Logger:          logger,
	})
	if err != nil {
		_ = rt.Close()
		return nil, err
	}
	return rt, nil
}

// Reload loads custom libraries and skills from their directories again.
func (rt *Runtime) Reload() error {
	modules, err := library.NewLoader(rt.cfg.LibrariesDir, hostPredeclared(nil), rt.logger).Load()
	if err != nil {
		return err
	}
	if conflicts := rt.Libraries.ReplaceCustom(modules); len(conflicts) > 0 {
		rt.logger.Warn("custom libraries shadow built-in ones and were skipped", slog.Any("libraries", conflicts))
	}

	loaded, err := skills.LoadDir(rt.cfg.SkillsDir, hostPredeclared(rt.Libraries))
	if err != nil {
		return err
	}
	if err := rt.Skills.Replace(loaded); err != nil {
		return err
	}
	rt.logger.Debug("loaded extensions",
		slog.Int("libraries", len(modules)),
		slog.Int("skills", len(loaded)))
	return nil
}

// Close releases the sources and the audit store.
func (rt *Runtime) Close() error {
	var errs []error
	if rt.Audit != nil {
		errs = append(errs, rt.Audit.Close())
	}
	errs = append(errs, rt.pool.Close())
	return errors.Join(errs...)
}

// hostPredeclared is what library and skill files see: the frame module and,
// for skills, every installed library by name.
func hostPredeclared(libs *library.Registry) starlark.StringDict {
	out := starlark.StringDict{core.FrameModule: frame.Module}
	if libs == nil {
		return out
	}
	for _, name := range libs.Names() {
		if m, ok := libs.Module(name); ok {
			out[name] = m
		}
	}
	return out
}

func ensureParentDir(path string) error {
	if path == ":memory:" {
		return nil
	}
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	return nil
}

// readCode reads generated code from path, or stdin when path is "-".
func readCode(cmd *cobra.Command, path string) (string, error) {
	if path == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("failed to read stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return string(data), nil
}
