package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/leapstack-labs/leapask/internal/audit"
	"github.com/leapstack-labs/leapask/pkg/core"
)

// Attempt is one execution of a request.
type Attempt struct {
	PromptID string
	Number   int
	// Code is the code that ran.
	Code     string
	Result   *Result
	Err      error
	Duration time.Duration
}

// Observer is told about every attempt as it finishes.
type Observer interface {
	ObserveAttempt(ctx context.Context, a Attempt)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, a Attempt)

// ObserveAttempt implements Observer.
func (f ObserverFunc) ObserveAttempt(ctx context.Context, a Attempt) { f(ctx, a) }

// AuditObserver records every attempt in store. Recording failures are
// logged and do not affect execution.
func AuditObserver(store *audit.Store, logger *slog.Logger) Observer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return ObserverFunc(func(ctx context.Context, a Attempt) {
		exec := &audit.Execution{
			PromptID: a.PromptID,
			Attempt:  a.Number,
			Code:     a.Code,
			Status:   audit.StatusSucceeded,
			Duration: a.Duration,
		}
		if a.Result != nil {
			exec.Skills = a.Result.Skills
		}
		if a.Err != nil {
			exec.Status = audit.StatusFailed
			exec.Kind = string(core.Kind(a.Err))
			exec.Error = a.Err.Error()
		}
		if err := store.Record(context.WithoutCancel(ctx), exec); err != nil {
			logger.Warn("failed to record execution",
				slog.String("prompt_id", a.PromptID),
				slog.Int("attempt", a.Number),
				slog.String("error", err.Error()))
		}
	})
}
