package core

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for each failure kind. Typed errors below match them via errors.Is.
var (
	ErrSyntax               = errors.New("syntax error")
	ErrDisallowedImport     = errors.New("disallowed import")
	ErrMaliciousQuery       = errors.New("malicious query")
	ErrInvalidConfiguration = errors.New("invalid configuration")
	ErrNoResult             = errors.New("no result found")
	ErrExecution            = errors.New("execution failed")
	ErrExtraction           = errors.New("filter extraction failed")
	ErrInvalidOutputType    = errors.New("invalid output type")
)

// FailureKind names a class of pipeline failure.
type FailureKind string

// FailureKind values.
const (
	KindSyntax               FailureKind = "syntax"
	KindDisallowedImport     FailureKind = "disallowed_import"
	KindMaliciousQuery       FailureKind = "malicious_query"
	KindInvalidConfiguration FailureKind = "invalid_configuration"
	KindNoResult             FailureKind = "no_result"
	KindExecution            FailureKind = "execution"
	KindExtraction           FailureKind = "extraction"
	KindInvalidOutputType    FailureKind = "invalid_output_type"
	KindUnknown              FailureKind = "unknown"
)

// SyntaxError is raised when generated code does not parse.
type SyntaxError struct {
	Line int
	Col  int
	Msg  string
}

func (e *SyntaxError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("syntax error at %d:%d: %s", e.Line, e.Col, e.Msg)
	}
	return "syntax error: " + e.Msg
}

// Is matches ErrSyntax.
func (e *SyntaxError) Is(target error) bool { return target == ErrSyntax }

// DisallowedImportError is raised when code loads a module outside the allow-list.
type DisallowedImportError struct {
	Module string
}

func (e *DisallowedImportError) Error() string {
	return fmt.Sprintf("generated code requested a non whitelisted dependency: %s", e.Module)
}

// Is matches ErrDisallowedImport.
func (e *DisallowedImportError) Is(target error) bool { return target == ErrDisallowedImport }

// MaliciousQueryError is raised in direct-SQL mode when a query references
// tables that are not configured sources, or cannot be read well enough to
// tell which tables it references.
type MaliciousQueryError struct {
	Tables []string
	// Reason is set when the query was rejected unread.
	Reason string
}

func (e *MaliciousQueryError) Error() string {
	if len(e.Tables) == 0 && e.Reason != "" {
		return "query rejected: " + e.Reason
	}
	return fmt.Sprintf("query uses unauthorized tables: %s", strings.Join(e.Tables, ", "))
}

// Is matches ErrMaliciousQuery.
func (e *MaliciousQueryError) Is(target error) bool { return target == ErrMaliciousQuery }

// InvalidConfigurationError is raised before execution when the configured
// sources cannot support the requested mode.
type InvalidConfigurationError struct {
	Reason string
}

func (e *InvalidConfigurationError) Error() string {
	return "invalid configuration: " + e.Reason
}

// Is matches ErrInvalidConfiguration.
func (e *InvalidConfigurationError) Is(target error) bool { return target == ErrInvalidConfiguration }

// NoResultError is raised when code ran but never bound the result name.
type NoResultError struct {
	Name string
}

func (e *NoResultError) Error() string {
	return fmt.Sprintf("no result returned: code did not assign %q", e.Name)
}

// Is matches ErrNoResult.
func (e *NoResultError) Is(target error) bool { return target == ErrNoResult }

// ExecutionError wraps a runtime failure of generated code.
type ExecutionError struct {
	Err       error
	Backtrace string
}

func (e *ExecutionError) Error() string {
	return "execution failed: " + e.Err.Error()
}

// Unwrap returns the underlying runtime error.
func (e *ExecutionError) Unwrap() error { return e.Err }

// Is matches ErrExecution.
func (e *ExecutionError) Is(target error) bool { return target == ErrExecution }

// ExtractionError is raised when filter extraction cannot parse its input.
type ExtractionError struct {
	Err error
}

func (e *ExtractionError) Error() string {
	return "filter extraction failed: " + e.Err.Error()
}

// Unwrap returns the underlying parse error.
func (e *ExtractionError) Unwrap() error { return e.Err }

// Is matches ErrExtraction.
func (e *ExtractionError) Is(target error) bool { return target == ErrExtraction }

// InvalidOutputTypeError is raised when the result does not have the output
// type the request asked for.
type InvalidOutputTypeError struct {
	Want string
	// Got is the type the result declared, or a description of what it was.
	Got    string
	Reason string
}

func (e *InvalidOutputTypeError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("result is not of type %s: %s", e.Want, e.Reason)
	}
	return fmt.Sprintf("result is of type %s, expected %s", e.Got, e.Want)
}

// Is matches ErrInvalidOutputType.
func (e *InvalidOutputTypeError) Is(target error) bool { return target == ErrInvalidOutputType }

// Kind classifies err into a FailureKind, looking through wrapping.
func Kind(err error) FailureKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrMaliciousQuery):
		return KindMaliciousQuery
	case errors.Is(err, ErrInvalidConfiguration):
		return KindInvalidConfiguration
	case errors.Is(err, ErrSyntax):
		return KindSyntax
	case errors.Is(err, ErrDisallowedImport):
		return KindDisallowedImport
	case errors.Is(err, ErrNoResult):
		return KindNoResult
	case errors.Is(err, ErrExtraction):
		return KindExtraction
	case errors.Is(err, ErrInvalidOutputType):
		return KindInvalidOutputType
	case errors.Is(err, ErrExecution):
		return KindExecution
	}
	return KindUnknown
}

// RetryEligible reports whether a failure may be handed to a repairer.
// Policy violations bypass the retry loop.
func RetryEligible(err error) bool {
	switch Kind(err) {
	case KindMaliciousQuery, KindInvalidConfiguration, KindUnknown, "":
		return false
	}
	return true
}
