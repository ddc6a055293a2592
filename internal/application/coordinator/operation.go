// Package coordinator executes structural category mutations: it owns the
// operation lifecycle state machine, the mutual-exclusion lock that keeps at
// most one mutation in flight, and the cancellation tokens that make hung
// network calls recoverable.
package coordinator

import (
	"time"

	"github.com/google/uuid"
)

// Kind identifies the type of structural mutation.
type Kind string

const (
	KindCreate   Kind = "create"
	KindRename   Kind = "rename"
	KindMove     Kind = "move"
	KindTransfer Kind = "transfer"
)

// Status is the lifecycle state of an operation. An operation is created
// Running (validation happens before it exists) and finalized exactly once.
type Status string

const (
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusTimedOut  Status = "timed_out"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether the status is a final state.
func (s Status) Terminal() bool {
	return s != StatusRunning
}

// Operation is one in-flight structural mutation. At most one operation may
// be Running at any time; the lock enforces that, this type just records it.
type Operation struct {
	ID         string    `json:"id"`
	Kind       Kind      `json:"kind"`
	Status     Status    `json:"status"`
	TargetPath string    `json:"targetPath"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt,omitempty"`

	token *Token
	err   error
}

func newOperation(kind Kind, targetPath string, token *Token) *Operation {
	return &Operation{
		ID:         uuid.NewString(),
		Kind:       kind,
		Status:     StatusRunning,
		TargetPath: targetPath,
		StartedAt:  time.Now(),
		token:      token,
	}
}

// finalize moves the operation to a terminal status. Later calls are ignored
// so a late completion can never overwrite a timeout or cancellation verdict.
// Once the operation has been published to other goroutines the caller must
// hold the same lock those readers take.
func (o *Operation) finalize(status Status, err error) {
	if o.Status.Terminal() {
		return
	}
	o.Status = status
	o.err = err
	o.FinishedAt = time.Now()
}

// Err returns the failure recorded at finalization, nil for succeeded and
// cancelled operations.
func (o *Operation) Err() error {
	return o.err
}

// Duration returns how long the operation ran, up to now if still running.
func (o *Operation) Duration() time.Duration {
	if o.FinishedAt.IsZero() {
		return time.Since(o.StartedAt)
	}
	return o.FinishedAt.Sub(o.StartedAt)
}
