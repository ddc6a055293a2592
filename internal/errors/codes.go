// Package errors provides the typed error system for the category engine.
// Every failure an operation can surface is classified here so that callers
// (HTTP layer, CLI, tests) can branch on type and code instead of string
// matching.
package errors

// ErrorCode represents a unique error code for a specific failure scenario.
type ErrorCode string

const (
	// Pre-flight validation codes. These are raised before any lock is taken
	// or network call issued, and are always recoverable locally.
	CodeInvalidName         ErrorCode = "INVALID_NAME"
	CodeInvalidCommand      ErrorCode = "INVALID_COMMAND"
	CodeDecisionRequired    ErrorCode = "DECISION_REQUIRED"
	CodeDuplicatePath       ErrorCode = "DUPLICATE_PATH"
	CodeCyclicMove          ErrorCode = "CYCLIC_MOVE"
	CodeOperationInProgress ErrorCode = "OPERATION_IN_PROGRESS"

	// In-flight codes. Raised after the lock was acquired; the lock is always
	// released before these are surfaced.
	CodeNetworkFailure ErrorCode = "NETWORK_FAILURE"
	CodeServerRejected ErrorCode = "SERVER_REJECTED"
	CodeTimeout        ErrorCode = "TIMEOUT"

	// Cancelled marks a deliberate abort. It is carried on the finalized
	// operation for observability but is never surfaced to callers as an
	// error.
	CodeCancelled ErrorCode = "CANCELLED"

	// Internal engine faults.
	CodeInternal ErrorCode = "INTERNAL"
)
