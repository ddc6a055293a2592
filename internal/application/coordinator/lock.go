package coordinator

import "sync"

// OperationLock is the mutual-exclusion guard for structural mutations. One
// kind-flag at most is set while an operation runs; Busy is the single
// authoritative predicate. Cancellation clears the flag unconditionally via
// ForceRelease, which is accepted regardless of state.
type OperationLock struct {
	mu      sync.Mutex
	running Kind // zero value means idle
}

// NewOperationLock returns an idle lock.
func NewOperationLock() *OperationLock {
	return &OperationLock{}
}

// TryAcquire claims the lock for kind. It returns false without blocking if
// any operation is already running, including one of the same kind.
func (l *OperationLock) TryAcquire(kind Kind) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running != "" {
		return false
	}
	l.running = kind
	return true
}

// Release clears the flag after a completed operation.
func (l *OperationLock) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.running = ""
}

// ForceRelease clears the flag on cancellation. Identical to Release today;
// kept separate so cancel paths read as unconditional.
func (l *OperationLock) ForceRelease() {
	l.Release()
}

// Busy reports whether any structural mutation is in flight.
func (l *OperationLock) Busy() bool {
	return l.Running() != ""
}

// Running returns the kind currently holding the lock, or "" when idle.
func (l *OperationLock) Running() Kind {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

// IsCreating reports whether a create operation holds the lock.
func (l *OperationLock) IsCreating() bool { return l.Running() == KindCreate }

// IsRenaming reports whether a rename operation holds the lock.
func (l *OperationLock) IsRenaming() bool { return l.Running() == KindRename }

// IsMoving reports whether a move operation holds the lock.
func (l *OperationLock) IsMoving() bool { return l.Running() == KindMove }

// IsTransferring reports whether a transfer operation holds the lock.
func (l *OperationLock) IsTransferring() bool { return l.Running() == KindTransfer }
