package coordinator

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InvalidationReason records why a token stopped being valid.
type InvalidationReason string

const (
	// ReasonNone means the token is still valid.
	ReasonNone InvalidationReason = ""
	// ReasonCancelled means the user (or a reset) aborted the operation.
	ReasonCancelled InvalidationReason = "cancelled"
	// ReasonSuperseded means a newer operation replaced this one.
	ReasonSuperseded InvalidationReason = "superseded"
	// ReasonTimedOut means the client-side safety timer fired.
	ReasonTimedOut InvalidationReason = "timed_out"
)

// Token is the cancellation handle owned by exactly one operation. Its
// context aborts the operation's network calls on invalidation, and Valid is
// the pure check the coordinator uses to decide whether a response that did
// arrive is still relevant. A response observed under an invalidated token is
// always discarded, even if the underlying request eventually resolved.
type Token struct {
	id     string
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	reason InvalidationReason
}

// Context returns the context network calls must run under.
func (t *Token) Context() context.Context {
	return t.ctx
}

// Valid reports whether results observed under this token may still be
// applied.
func (t *Token) Valid() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.reason == ReasonNone
}

// Reason returns why the token was invalidated, or ReasonNone.
func (t *Token) Reason() InvalidationReason {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.reason
}

// invalidate marks the token dead and aborts its context. The first reason
// wins; later invalidations are no-ops.
func (t *Token) invalidate(reason InvalidationReason) {
	t.mu.Lock()
	if t.reason == ReasonNone {
		t.reason = reason
	}
	t.mu.Unlock()
	t.cancel()
}

// CancellationManager owns at most one live token. Beginning a new operation
// supersedes the previous token; cancel and reset invalidate without creating
// a replacement.
type CancellationManager struct {
	mu      sync.Mutex
	current *Token
}

// NewCancellationManager returns a manager with no live token.
func NewCancellationManager() *CancellationManager {
	return &CancellationManager{}
}

// Begin invalidates any existing token and issues a fresh one whose context
// expires after timeout. The caller owns retiring the token when its
// operation finishes.
func (m *CancellationManager) Begin(parent context.Context, timeout time.Duration) *Token {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil {
		m.current.invalidate(ReasonSuperseded)
	}

	ctx, cancel := context.WithTimeout(parent, timeout)
	token := &Token{
		id:     uuid.NewString(),
		ctx:    ctx,
		cancel: cancel,
	}
	m.current = token
	return token
}

// Cancel invalidates the current token without creating a new one. Safe to
// call when no operation is in flight.
func (m *CancellationManager) Cancel() {
	m.invalidateCurrent(ReasonCancelled)
}

// Expire invalidates the current token because its safety timer fired.
func (m *CancellationManager) Expire() {
	m.invalidateCurrent(ReasonTimedOut)
}

// Retire releases the token bookkeeping once its operation reached a
// terminal state. The token's context is always cancelled here so its timer
// resources are freed.
func (m *CancellationManager) Retire(token *Token) {
	m.mu.Lock()
	defer m.mu.Unlock()
	token.cancel()
	if m.current == token {
		m.current = nil
	}
}

// Live reports whether a valid token currently exists.
func (m *CancellationManager) Live() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current != nil && m.current.Valid()
}

func (m *CancellationManager) invalidateCurrent(reason InvalidationReason) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != nil {
		m.current.invalidate(reason)
	}
}
