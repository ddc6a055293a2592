package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorType defines the category of error for handling and response mapping.
type ErrorType string

const (
	// Business validation failures, rejected before any side effect.
	ErrorTypeValidation ErrorType = "VALIDATION"
	// Conflicts with current hierarchy or engine state.
	ErrorTypeConflict ErrorType = "CONFLICT"
	// Failures of the persistence API round trip.
	ErrorTypeExternal ErrorType = "EXTERNAL"
	// Local safety-net timer fired before the call resolved.
	ErrorTypeTimeout ErrorType = "TIMEOUT"
	// Deliberate abort; a normal completion path, not a fault.
	ErrorTypeCancelled ErrorType = "CANCELLED"
	// Unexpected engine faults.
	ErrorTypeInternal ErrorType = "INTERNAL"
)

// EngineError is the single error type used across the engine. It carries the
// classification needed by the HTTP layer plus enough operation context to log
// usefully without re-deriving it at every call site.
type EngineError struct {
	Type      ErrorType `json:"type"`
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Operation string    `json:"operation,omitempty"` // operation kind that failed
	Path      string    `json:"path,omitempty"`      // category path involved
	Retryable bool      `json:"retryable"`
	Cause     error     `json:"-"`
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Type, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Type, e.Code, e.Message)
}

// Unwrap allows errors.Is and errors.As to reach the underlying cause.
func (e *EngineError) Unwrap() error {
	return e.Cause
}

// WithOperation attaches the operation kind that raised the error.
func (e *EngineError) WithOperation(op string) *EngineError {
	e.Operation = op
	return e
}

// WithPath attaches the category path the error refers to.
func (e *EngineError) WithPath(path string) *EngineError {
	e.Path = path
	return e
}

// WithCause attaches the underlying cause.
func (e *EngineError) WithCause(cause error) *EngineError {
	e.Cause = cause
	return e
}

// ============================================================================
// CONSTRUCTORS
// ============================================================================

// InvalidName rejects an empty or whitespace-only category name.
func InvalidName(name string) *EngineError {
	return &EngineError{
		Type:    ErrorTypeValidation,
		Code:    CodeInvalidName,
		Message: fmt.Sprintf("category name %q is empty or whitespace", name),
	}
}

// InvalidCommand rejects a command that failed struct validation before any
// guard or network call ran.
func InvalidCommand(cause error) *EngineError {
	return &EngineError{
		Type:    ErrorTypeValidation,
		Code:    CodeInvalidCommand,
		Message: "command rejected by validation",
		Cause:   cause,
	}
}

// DecisionRequired rejects creating a subcategory under a populated parent
// until the caller chooses between the create-empty and create-and-transfer
// sub-flows.
func DecisionRequired(parent string) *EngineError {
	return &EngineError{
		Type:    ErrorTypeValidation,
		Code:    CodeDecisionRequired,
		Message: fmt.Sprintf("parent %q already has concepts; choose create empty or create and transfer", parent),
		Path:    parent,
	}
}

// DuplicatePath rejects a target path that already exists in the hierarchy.
func DuplicatePath(path string) *EngineError {
	return &EngineError{
		Type:    ErrorTypeConflict,
		Code:    CodeDuplicatePath,
		Message: fmt.Sprintf("category %q already exists", path),
		Path:    path,
	}
}

// CyclicMove rejects moving a category into itself or one of its descendants.
func CyclicMove(dragged, target string) *EngineError {
	return &EngineError{
		Type:    ErrorTypeConflict,
		Code:    CodeCyclicMove,
		Message: fmt.Sprintf("cannot move %q under its own subtree %q", dragged, target),
		Path:    dragged,
	}
}

// OperationInProgress rejects a new mutation while another is still running.
func OperationInProgress(running string) *EngineError {
	return &EngineError{
		Type:      ErrorTypeConflict,
		Code:      CodeOperationInProgress,
		Message:   fmt.Sprintf("a %s operation is already in progress", running),
		Operation: running,
		Retryable: true,
	}
}

// NetworkFailure wraps a transport-level failure of the persistence API call.
func NetworkFailure(cause error) *EngineError {
	return &EngineError{
		Type:      ErrorTypeExternal,
		Code:      CodeNetworkFailure,
		Message:   "persistence API unreachable",
		Retryable: true,
		Cause:     cause,
	}
}

// ServerRejected wraps a non-2xx response from the persistence API.
func ServerRejected(status int, body string) *EngineError {
	return &EngineError{
		Type:    ErrorTypeExternal,
		Code:    CodeServerRejected,
		Message: fmt.Sprintf("persistence API rejected the request with status %d: %s", status, body),
	}
}

// Timeout marks an operation that outlived its client-side safety timer.
func Timeout(op string) *EngineError {
	return &EngineError{
		Type:      ErrorTypeTimeout,
		Code:      CodeTimeout,
		Message:   fmt.Sprintf("%s operation timed out", op),
		Operation: op,
		Retryable: true,
	}
}

// Cancelled marks a deliberate abort of an in-flight operation.
func Cancelled(op string) *EngineError {
	return &EngineError{
		Type:      ErrorTypeCancelled,
		Code:      CodeCancelled,
		Message:   fmt.Sprintf("%s operation cancelled", op),
		Operation: op,
	}
}

// Internal wraps an unexpected engine fault.
func Internal(msg string, cause error) *EngineError {
	return &EngineError{
		Type:    ErrorTypeInternal,
		Code:    CodeInternal,
		Message: msg,
		Cause:   cause,
	}
}

// ============================================================================
// PREDICATES
// ============================================================================

// TypeOf returns the error type, or ErrorTypeInternal for foreign errors.
func TypeOf(err error) ErrorType {
	var e *EngineError
	if stderrors.As(err, &e) {
		return e.Type
	}
	return ErrorTypeInternal
}

// CodeOf returns the error code, or CodeInternal for foreign errors.
func CodeOf(err error) ErrorCode {
	var e *EngineError
	if stderrors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// IsValidation reports whether err is a pre-flight validation rejection.
func IsValidation(err error) bool {
	return TypeOf(err) == ErrorTypeValidation
}

// IsConflict reports whether err is a hierarchy or lock conflict.
func IsConflict(err error) bool {
	return TypeOf(err) == ErrorTypeConflict
}

// IsTimeout reports whether err is a client-side timeout.
func IsTimeout(err error) bool {
	return TypeOf(err) == ErrorTypeTimeout
}

// IsCancelled reports whether err marks a deliberate abort.
func IsCancelled(err error) bool {
	return TypeOf(err) == ErrorTypeCancelled
}

// IsRetryable reports whether the failed operation may be retried as-is.
func IsRetryable(err error) bool {
	var e *EngineError
	if stderrors.As(err, &e) {
		return e.Retryable
	}
	return false
}
