// Package engine runs generated code against data sources with bounded
// repair. Each attempt sanitizes the code, extracts pushdown filters,
// builds a minimal execution context and executes it; eligible failures are
// handed to a Repairer and the repaired code starts over.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/leapstack-labs/leapask/internal/analysis"
	"github.com/leapstack-labs/leapask/internal/charts"
	"github.com/leapstack-labs/leapask/internal/guard"
	"github.com/leapstack-labs/leapask/internal/library"
	"github.com/leapstack-labs/leapask/internal/skills"
	starctx "github.com/leapstack-labs/leapask/internal/starlark"
	"github.com/leapstack-labs/leapask/pkg/core"
	"github.com/leapstack-labs/leapask/pkg/source"
)

// Defaults for Config.
const (
	DefaultMaxRetries = 3
	DefaultChartsDir  = "exports/charts"
)

// Config holds engine configuration.
type Config struct {
	// Sources are the data sources code computes over, in dfs order.
	Sources []source.DataSource
	// DirectSQL binds execute_sql_query and authorizes query tables.
	DirectSQL bool
	// CustomLibraries are allow-listed library roots beyond the built-in set.
	CustomLibraries []string
	// MaxRetries is the maximum number of executions per request, including
	// the first. Zero means DefaultMaxRetries.
	MaxRetries int
	// ErrorCorrection enables repair of failed attempts.
	ErrorCorrection bool
	// SaveCharts rewrites chart save paths to ChartsDir/<prompt id>.
	SaveCharts bool
	// ChartsDir is where charts are written. Empty means DefaultChartsDir.
	ChartsDir string
	// Libraries are the installed libraries. Nil means the built-in set.
	Libraries *library.Registry
	// Skills are the callable skills. Nil means none.
	Skills *skills.Registry
	// Repairer fixes failed code. Without one, failures are returned as is.
	Repairer Repairer
	// Observer is told about every attempt. Optional.
	Observer Observer
	// Logger is the structured logger (optional, uses discard if nil).
	Logger *slog.Logger
}

// Request is one piece of generated code to run.
type Request struct {
	Code string
	// PromptID names the request in charts and the audit log. Generated
	// when empty.
	PromptID string
	// OutputType is the type the result must declare and hold: number,
	// string, dataframe or plot. Empty accepts any result.
	OutputType string
}

// Result is a successful execution.
type Result struct {
	// Value is the result binding converted to Go.
	Value any
	// Code is the sanitized code that produced Value.
	Code string
	// Skills are the skills the code called.
	Skills []string
	// Attempts is the number of executions it took, starting at 1.
	Attempts int
	PromptID string
	// Charts are the chart files the successful attempt wrote.
	Charts []string
	// Healed are the library roots bound after the code used them without
	// loading them.
	Healed []string
}

// Engine runs requests. Calls to Execute are serialized.
type Engine struct {
	mu sync.Mutex

	cfg       Config
	sanitizer *guard.Sanitizer
	builder   *starctx.Builder
	executor  *starctx.Executor
	charts    *charts.Charts
	logger    *slog.Logger
}

// New creates an engine.
func New(cfg Config) (*Engine, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if cfg.MaxRetries < 0 {
		return nil, fmt.Errorf("max retries must not be negative, got %d", cfg.MaxRetries)
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.ChartsDir == "" {
		cfg.ChartsDir = DefaultChartsDir
	}
	if cfg.Libraries == nil {
		cfg.Libraries = library.NewRegistry()
	}

	chartLib := charts.New(cfg.ChartsDir, logger)
	cfg.Libraries.Register(charts.ModuleName, chartLib.Module())

	sanitizer := guard.NewSanitizer(guard.Options{
		Libraries: cfg.CustomLibraries,
		DirectSQL: cfg.DirectSQL,
		Sources:   source.Authorized(cfg.Sources),
		Dialect:   sqlDialect(cfg.Sources),
	}, logger)

	opts := starctx.BuilderOptions{DirectSQL: cfg.DirectSQL, Libraries: cfg.Libraries}
	if cfg.Skills != nil {
		opts.Skills = cfg.Skills
	}

	logger.Debug("initializing engine",
		slog.Int("sources", len(cfg.Sources)),
		slog.Bool("direct_sql", cfg.DirectSQL),
		slog.Int("max_retries", cfg.MaxRetries),
		slog.Any("libraries", sanitizer.Libraries()))

	return &Engine{
		cfg:       cfg,
		sanitizer: sanitizer,
		builder:   starctx.NewBuilder(opts, logger),
		executor:  starctx.NewExecutor(cfg.Libraries, sanitizer.Allowed, logger),
		charts:    chartLib,
		logger:    logger,
	}, nil
}

// Libraries returns the allow-listed library roots.
func (e *Engine) Libraries() []string {
	return e.sanitizer.Libraries()
}

// Sources returns the configured sources.
func (e *Engine) Sources() []source.DataSource {
	return e.cfg.Sources
}

// Execute runs req, repairing eligible failures until an attempt succeeds or
// MaxRetries executions have run. The last failure is returned unchanged.
// Unauthorized queries and invalid configurations are never repaired.
func (e *Engine) Execute(ctx context.Context, req Request) (*Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if req.OutputType != "" && outputChecks[req.OutputType] == nil {
		return nil, &core.InvalidConfigurationError{
			Reason: fmt.Sprintf("unknown output type %q (want one of %s)", req.OutputType, strings.Join(OutputTypes(), ", ")),
		}
	}

	promptID := req.PromptID
	if promptID == "" {
		promptID = uuid.NewString()
	}
	log := e.logger.With(slog.String("prompt_id", promptID))

	code := req.Code
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("execution cancelled: %w", err)
		}

		start := time.Now()
		res, ran, err := e.attempt(ctx, code, promptID, req.OutputType)
		e.observe(ctx, Attempt{
			PromptID: promptID,
			Number:   attempt,
			Code:     ran,
			Result:   res,
			Err:      err,
			Duration: time.Since(start),
		})

		if err == nil {
			res.Attempts = attempt
			log.Info("execution succeeded", slog.Int("attempts", attempt))
			return res, nil
		}

		kind := core.Kind(err)
		log.Warn("attempt failed", slog.Int("attempt", attempt), slog.String("kind", string(kind)), slog.String("error", err.Error()))

		if !core.RetryEligible(err) || !e.cfg.ErrorCorrection || e.cfg.Repairer == nil || attempt >= e.cfg.MaxRetries {
			return nil, err
		}

		fixed, repairErr := e.cfg.Repairer.Repair(ctx, RepairRequest{
			Code:     ran,
			Err:      err,
			Kind:     kind,
			Attempt:  attempt,
			PromptID: promptID,
		})
		if repairErr != nil {
			return nil, &RepairError{Err: err, Cause: repairErr}
		}
		code = fixed
	}
}

// attempt runs code once. It returns the code that ran, which is the
// sanitized text once sanitization succeeded.
func (e *Engine) attempt(ctx context.Context, code, promptID, outputType string) (*Result, string, error) {
	e.charts.Reset()

	if e.cfg.SaveCharts {
		rewritten, err := guard.RewriteChartPaths(code, e.cfg.ChartsDir, promptID)
		if err != nil {
			return nil, code, err
		}
		code = rewritten
	}

	unit, err := e.sanitizer.Sanitize(code)
	if err != nil {
		return nil, code, err
	}

	filters, err := analysis.ExtractFilters(unit.Text, len(e.cfg.Sources))
	if err != nil {
		return nil, unit.Text, err
	}
	unit.Predicates = filters.Pushdown()

	ec, err := e.builder.Build(ctx, unit, e.cfg.Sources)
	if err != nil {
		return nil, unit.Text, err
	}

	out, err := e.executor.Run(ctx, unit, ec)
	if err != nil {
		return nil, unit.Text, err
	}
	if err := checkOutputType(outputType, out.Value); err != nil {
		return nil, unit.Text, err
	}

	return &Result{
		Value:    out.Value,
		Code:     unit.Text,
		Skills:   ec.Skills,
		PromptID: promptID,
		Charts:   e.charts.Written(),
		Healed:   out.Healed,
	}, unit.Text, nil
}

// sqlDialect returns the adapter type of the first SQL source, or "".
func sqlDialect(sources []source.DataSource) string {
	for _, s := range sources {
		if sql, ok := s.(source.SQLSource); ok {
			return sql.Kind()
		}
	}
	return ""
}

func (e *Engine) observe(ctx context.Context, a Attempt) {
	if e.cfg.Observer == nil {
		return
	}
	e.cfg.Observer.ObserveAttempt(ctx, a)
}
