// Package errors provides centralized error definitions for fanout.
//
// Two classes of failure exist in the planning pipeline:
//
//   - Input validation failures. These are reported as [*ValidationError]
//     before any computation begins and identify the offending field and
//     value. They are never retryable.
//   - Infrastructure failures during coordinated execution, reported as
//     [*CoordinatorError] or [*ExecutorError].
//
// Domain rejections (a cyclic graph, too few tasks, a low score) are not
// errors at all; they are well-formed results that callers branch on.
//
// # Usage
//
//	err := errors.NewValidationError("duplicate task id").
//	    WithField("tasks[3].id").
//	    WithValue("build")
//
//	if errors.Is(err, errors.ErrInvalidInput) { ... }
//
//	var vErr *errors.ValidationError
//	if errors.As(err, &vErr) {
//	    fmt.Println(vErr.Field)
//	}
package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Re-export standard library functions so callers only import this package.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Severity represents the severity level of an error.
type Severity int

const (
	// SeverityDebug is for errors that are useful for debugging but not critical.
	SeverityDebug Severity = iota
	// SeverityInfo is for informational errors that don't indicate a problem.
	SeverityInfo
	// SeverityWarning is for errors that might indicate a problem but aren't critical.
	SeverityWarning
	// SeverityError is for errors that indicate a real problem.
	SeverityError
	// SeverityCritical is for errors that require immediate attention.
	SeverityCritical
)

// String returns the string representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

// Planning sentinel errors
var (
	// ErrInvalidInput indicates that input validation failed.
	ErrInvalidInput = New("invalid input")
	// ErrDependencyCycle indicates a circular dependency between tasks or batches.
	ErrDependencyCycle = New("dependency cycle detected")
	// ErrPlanInvalid indicates that a batch plan cannot be executed.
	ErrPlanInvalid = New("plan is invalid")
)

// Execution sentinel errors
var (
	// ErrTaskFailed indicates that a task execution failed.
	ErrTaskFailed = New("task failed")
	// ErrTaskSkipped indicates a task was not dispatched because a batch it
	// depends on failed.
	ErrTaskSkipped = New("task skipped")
	// ErrExecutorUnavailable indicates the task executor could not be reached.
	ErrExecutorUnavailable = New("executor unavailable")
	// ErrTimeout indicates that an operation timed out.
	ErrTimeout = New("operation timed out")
	// ErrCanceled indicates that an operation was canceled.
	ErrCanceled = New("operation canceled")
)

// -----------------------------------------------------------------------------
// Base Error Interface
// -----------------------------------------------------------------------------

// FanoutError is the base interface for all fanout errors.
type FanoutError interface {
	error

	// Unwrap returns the underlying error, if any.
	Unwrap() error

	// Severity returns the severity level of this error.
	Severity() Severity

	// IsRetryable returns true if the error is transient and the operation
	// may succeed on retry.
	IsRetryable() bool

	// IsUserFacing returns true if the error message is safe to display
	// to end users.
	IsUserFacing() bool
}

// baseError provides common functionality for all error types.
type baseError struct {
	message    string
	cause      error
	severity   Severity
	retryable  bool
	userFacing bool
}

func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

func (e *baseError) Unwrap() error { return e.cause }

func (e *baseError) Is(target error) bool {
	if e.cause != nil {
		return errors.Is(e.cause, target)
	}
	return false
}

func (e *baseError) Severity() Severity { return e.severity }

func (e *baseError) IsRetryable() bool { return e.retryable }

func (e *baseError) IsUserFacing() bool { return e.userFacing }

// formatWithContext renders "<kind> [k=v, ...]: message: cause".
func formatWithContext(kind string, parts []string, message string, cause error) string {
	prefix := kind
	if len(parts) > 0 {
		prefix = fmt.Sprintf("%s [%s]", kind, strings.Join(parts, ", "))
	}
	if cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, message, cause)
	}
	return fmt.Sprintf("%s: %s", prefix, message)
}

// -----------------------------------------------------------------------------
// ValidationError
// -----------------------------------------------------------------------------

// ValidationError represents invalid input. Field uses a path notation that
// points at the offending value, e.g. "tasks[2].dependsOn" or
// "reports[0].percentComplete".
//
// Example:
//
//	err := errors.NewValidationError("must be between 0 and 100").
//	    WithField("reports[1].percentComplete").
//	    WithValue(140)
type ValidationError struct {
	baseError
	Field string
	Value any
}

// NewValidationError creates a new ValidationError.
func NewValidationError(message string) *ValidationError {
	return &ValidationError{
		baseError: baseError{
			message:    message,
			severity:   SeverityWarning,
			retryable:  false,
			userFacing: true,
		},
	}
}

// Invalidf is shorthand for a ValidationError with a field and value.
func Invalidf(field string, value any, format string, args ...any) *ValidationError {
	return NewValidationError(fmt.Sprintf(format, args...)).WithField(field).WithValue(value)
}

// WithField adds a field path to the error context.
func (e *ValidationError) WithField(field string) *ValidationError {
	e.Field = field
	return e
}

// WithValue adds the invalid value to the error context.
func (e *ValidationError) WithValue(value any) *ValidationError {
	e.Value = value
	return e
}

// WithCause adds a cause to the error.
func (e *ValidationError) WithCause(cause error) *ValidationError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *ValidationError) Error() string {
	var parts []string
	if e.Field != "" {
		parts = append(parts, fmt.Sprintf("field=%s", e.Field))
	}
	if e.Value != nil {
		parts = append(parts, fmt.Sprintf("value=%v", e.Value))
	}
	return formatWithContext("validation error", parts, e.message, e.cause)
}

// Is matches any *ValidationError and ErrInvalidInput.
func (e *ValidationError) Is(target error) bool {
	if _, ok := target.(*ValidationError); ok {
		return true
	}
	if target == ErrInvalidInput {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// CoordinatorError
// -----------------------------------------------------------------------------

// CoordinatorError represents a failure of the coordination run itself, as
// opposed to an individual task failure (which is recorded in its result).
//
// Example:
//
//	err := errors.NewCoordinatorError("batch cannot start", errors.ErrPlanInvalid).
//	    WithBatchID("batch-3")
type CoordinatorError struct {
	baseError
	RunID   string
	BatchID string
	TaskID  string
}

// NewCoordinatorError creates a new CoordinatorError.
func NewCoordinatorError(message string, cause error) *CoordinatorError {
	return &CoordinatorError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityError,
			userFacing: true,
		},
	}
}

// WithRunID adds the coordination run ID to the error context.
func (e *CoordinatorError) WithRunID(id string) *CoordinatorError {
	e.RunID = id
	return e
}

// WithBatchID adds a batch ID to the error context.
func (e *CoordinatorError) WithBatchID(id string) *CoordinatorError {
	e.BatchID = id
	return e
}

// WithTaskID adds a task ID to the error context.
func (e *CoordinatorError) WithTaskID(id string) *CoordinatorError {
	e.TaskID = id
	return e
}

// Error returns the formatted error message.
func (e *CoordinatorError) Error() string {
	var parts []string
	if e.RunID != "" {
		parts = append(parts, fmt.Sprintf("run=%s", e.RunID))
	}
	if e.BatchID != "" {
		parts = append(parts, fmt.Sprintf("batch=%s", e.BatchID))
	}
	if e.TaskID != "" {
		parts = append(parts, fmt.Sprintf("task=%s", e.TaskID))
	}
	return formatWithContext("coordinator error", parts, e.message, e.cause)
}

// Is matches any *CoordinatorError or the wrapped cause.
func (e *CoordinatorError) Is(target error) bool {
	if _, ok := target.(*CoordinatorError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// ExecutorError
// -----------------------------------------------------------------------------

// ExecutorError reports that an executor could not produce a result for a
// task (transport failure, timeout). Executor errors are retryable by default.
type ExecutorError struct {
	baseError
	AgentID string
	TaskID  string
}

// NewExecutorError creates a new ExecutorError.
func NewExecutorError(message string, cause error) *ExecutorError {
	return &ExecutorError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityError,
			retryable:  true,
			userFacing: true,
		},
	}
}

// WithAgentID adds an agent ID to the error context.
func (e *ExecutorError) WithAgentID(id string) *ExecutorError {
	e.AgentID = id
	return e
}

// WithTaskID adds a task ID to the error context.
func (e *ExecutorError) WithTaskID(id string) *ExecutorError {
	e.TaskID = id
	return e
}

// WithRetryable sets whether the error is retryable.
func (e *ExecutorError) WithRetryable(r bool) *ExecutorError {
	e.retryable = r
	return e
}

// Error returns the formatted error message.
func (e *ExecutorError) Error() string {
	var parts []string
	if e.AgentID != "" {
		parts = append(parts, fmt.Sprintf("agent=%s", e.AgentID))
	}
	if e.TaskID != "" {
		parts = append(parts, fmt.Sprintf("task=%s", e.TaskID))
	}
	return formatWithContext("executor error", parts, e.message, e.cause)
}

// Is matches any *ExecutorError or the wrapped cause.
func (e *ExecutorError) Is(target error) bool {
	if _, ok := target.(*ExecutorError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// NotFoundError / TimeoutError
// -----------------------------------------------------------------------------

// NotFoundError represents a resource that could not be found.
type NotFoundError struct {
	baseError
	ResourceType string
	ResourceID   string
}

// NewNotFoundError creates a new NotFoundError.
func NewNotFoundError(resourceType, resourceID string) *NotFoundError {
	return &NotFoundError{
		baseError: baseError{
			message:    fmt.Sprintf("%s not found", resourceType),
			severity:   SeverityWarning,
			userFacing: true,
		},
		ResourceType: resourceType,
		ResourceID:   resourceID,
	}
}

// Error returns the formatted error message.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s '%s' not found", e.ResourceType, e.ResourceID)
}

// Is matches any *NotFoundError.
func (e *NotFoundError) Is(target error) bool {
	_, ok := target.(*NotFoundError)
	return ok
}

// TimeoutError represents an operation that timed out.
type TimeoutError struct {
	baseError
	Operation string
	Duration  time.Duration
}

// NewTimeoutError creates a new TimeoutError.
func NewTimeoutError(operation string, duration time.Duration) *TimeoutError {
	return &TimeoutError{
		baseError: baseError{
			message:    operation,
			severity:   SeverityWarning,
			retryable:  true,
			userFacing: true,
		},
		Operation: operation,
		Duration:  duration,
	}
}

// WithCause adds a cause to the error.
func (e *TimeoutError) WithCause(cause error) *TimeoutError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *TimeoutError) Error() string {
	base := fmt.Sprintf("timeout error: %s (timeout: %s)", e.Operation, e.Duration)
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", base, e.cause)
	}
	return base
}

// Is matches any *TimeoutError and ErrTimeout.
func (e *TimeoutError) Is(target error) bool {
	if _, ok := target.(*TimeoutError); ok {
		return true
	}
	if target == ErrTimeout {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Error Classification Helpers
// -----------------------------------------------------------------------------

// IsRetryable returns true if the error represents a transient condition
// that may succeed on retry.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var fe FanoutError
	if As(err, &fe) {
		return fe.IsRetryable()
	}
	return Is(err, ErrTimeout)
}

// IsUserFacing returns true if the error message is safe to display to end users.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	var fe FanoutError
	if As(err, &fe) {
		return fe.IsUserFacing()
	}
	return false
}

// IsValidation reports whether err is an input validation failure.
func IsValidation(err error) bool {
	var v *ValidationError
	return As(err, &v)
}

// GetSeverity returns the severity level of the error.
// Returns SeverityError for errors that don't implement FanoutError.
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityDebug
	}
	var fe FanoutError
	if As(err, &fe) {
		return fe.Severity()
	}
	return SeverityError
}

// Wrap wraps an error with additional context message.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with a formatted context message.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
