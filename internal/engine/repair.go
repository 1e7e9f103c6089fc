package engine

import (
	"context"
	"fmt"

	"github.com/leapstack-labs/leapask/pkg/core"
)

// RepairRequest describes a failed attempt.
type RepairRequest struct {
	// Code is the code that failed, sanitized when it got that far.
	Code string
	Err  error
	Kind core.FailureKind
	// Attempt is the number of the failed attempt, starting at 1.
	Attempt  int
	PromptID string
}

// Repairer produces corrected code for a failed attempt. Implementations
// usually ask a language model to fix the code given the error.
type Repairer interface {
	Repair(ctx context.Context, req RepairRequest) (string, error)
}

// RepairFunc adapts a function to Repairer.
type RepairFunc func(ctx context.Context, req RepairRequest) (string, error)

// Repair implements Repairer.
func (f RepairFunc) Repair(ctx context.Context, req RepairRequest) (string, error) {
	return f(ctx, req)
}

// RepairError is returned when the repairer fails. Err is the attempt
// failure that was being repaired.
type RepairError struct {
	Err   error
	Cause error
}

func (e *RepairError) Error() string {
	return fmt.Sprintf("repair failed: %v (while repairing: %v)", e.Cause, e.Err)
}

// Unwrap returns the attempt failure so the error classifies as it.
func (e *RepairError) Unwrap() error { return e.Err }
