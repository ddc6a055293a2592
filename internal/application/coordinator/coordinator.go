package coordinator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"conceptdeck-engine/internal/application/commands"
	"conceptdeck-engine/internal/application/ports"
	"conceptdeck-engine/internal/config"
	"conceptdeck-engine/internal/domain/category"
	"conceptdeck-engine/internal/domain/concept"
	appErrors "conceptdeck-engine/internal/errors"
)

// Coordinator executes structural category mutations against the persistence
// API. It is the engine's state machine: an intent is validated, acquires the
// operation lock, runs its network calls under a cancellation token and a
// bounded timeout, and on success triggers a refresh and reselects the
// resulting path. Failures release the lock and surface a typed error without
// refreshing, so the caller's dialog state survives for a retry.
type Coordinator struct {
	store     ports.PersistenceAPI
	publisher ports.EventPublisher
	metrics   ports.OperationMetrics
	logger    *zap.Logger
	validate  *validator.Validate
	tracer    trace.Tracer

	lock    *OperationLock
	cancels *CancellationManager

	// transitionMu serializes lock and token state changes so that
	// cancellation clears both in one step; no reader can observe flags and
	// token disagreeing.
	transitionMu sync.Mutex

	stateMu            sync.RWMutex
	timeouts           config.OperationTimeouts
	conceptsByCategory map[string][]*concept.Concept
	hierarchy          map[string]*category.Node
	selectedPath       string
	lastOp             *Operation
}

// New wires a coordinator. publisher and metrics may be nil, in which case
// no-op implementations are used.
func New(store ports.PersistenceAPI, publisher ports.EventPublisher, metrics ports.OperationMetrics, timeouts config.OperationTimeouts, logger *zap.Logger) *Coordinator {
	if publisher == nil {
		publisher = noopPublisher{}
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Coordinator{
		store:              store,
		publisher:          publisher,
		metrics:            metrics,
		logger:             logger,
		validate:           validator.New(),
		tracer:             otel.Tracer("conceptdeck-engine/coordinator"),
		lock:               NewOperationLock(),
		cancels:            NewCancellationManager(),
		timeouts:           timeouts,
		conceptsByCategory: map[string][]*concept.Concept{},
		hierarchy:          map[string]*category.Node{},
	}
}

// ============================================================================
// SNAPSHOT ACCESSORS
// ============================================================================

// Hierarchy returns the current category tree keyed by top-level name. The
// returned nodes are rebuilt wholesale on every refresh and must be treated
// as read-only.
func (c *Coordinator) Hierarchy() map[string]*category.Node {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	snapshot := make(map[string]*category.Node, len(c.hierarchy))
	for name, node := range c.hierarchy {
		snapshot[name] = node
	}
	return snapshot
}

// ConceptsByCategory returns the flat mapping the hierarchy derives from.
func (c *Coordinator) ConceptsByCategory() map[string][]*concept.Concept {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	snapshot := make(map[string][]*concept.Concept, len(c.conceptsByCategory))
	for path, concepts := range c.conceptsByCategory {
		snapshot[path] = concepts
	}
	return snapshot
}

// SelectedPath returns the path reselected by the most recent successful
// operation.
func (c *Coordinator) SelectedPath() string {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.selectedPath
}

// Busy reports whether a structural mutation is in flight.
func (c *Coordinator) Busy() bool { return c.lock.Busy() }

// IsCreating reports whether a create operation is running.
func (c *Coordinator) IsCreating() bool { return c.lock.IsCreating() }

// IsRenaming reports whether a rename operation is running.
func (c *Coordinator) IsRenaming() bool { return c.lock.IsRenaming() }

// IsMoving reports whether a move operation is running.
func (c *Coordinator) IsMoving() bool { return c.lock.IsMoving() }

// IsTransferring reports whether a transfer operation is running.
func (c *Coordinator) IsTransferring() bool { return c.lock.IsTransferring() }

// OperationSnapshot is the externally visible view of an operation.
type OperationSnapshot struct {
	ID         string    `json:"id"`
	Kind       Kind      `json:"kind"`
	Status     Status    `json:"status"`
	TargetPath string    `json:"targetPath"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// LastOperation returns a snapshot of the most recent operation, or nil if
// none has run yet.
func (c *Coordinator) LastOperation() *OperationSnapshot {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	if c.lastOp == nil {
		return nil
	}
	snap := &OperationSnapshot{
		ID:         c.lastOp.ID,
		Kind:       c.lastOp.Kind,
		Status:     c.lastOp.Status,
		TargetPath: c.lastOp.TargetPath,
		StartedAt:  c.lastOp.StartedAt,
		FinishedAt: c.lastOp.FinishedAt,
	}
	if err := c.lastOp.Err(); err != nil {
		snap.Error = err.Error()
	}
	return snap
}

// SetTimeouts swaps the safety timers, used by config hot reload. Running
// operations keep the deadlines they started with.
func (c *Coordinator) SetTimeouts(t config.OperationTimeouts) {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	c.timeouts = t
}

func (c *Coordinator) currentTimeouts() config.OperationTimeouts {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.timeouts
}

// ============================================================================
// REFRESH
// ============================================================================

// Refresh fetches the flat mapping from the persistence API and rebuilds the
// hierarchy. It is read-only with respect to the server and therefore not
// subject to the operation lock.
func (c *Coordinator) Refresh(ctx context.Context) error {
	data, err := c.store.FetchConceptsByCategory(ctx)
	if err != nil {
		return err
	}
	c.applyRefresh(data)
	return nil
}

func (c *Coordinator) applyRefresh(data map[string][]*concept.Concept) {
	tree := category.BuildHierarchy(data)

	c.stateMu.Lock()
	c.conceptsByCategory = data
	c.hierarchy = tree
	c.stateMu.Unlock()

	c.metrics.HierarchyRebuilt(len(tree), category.TotalConcepts(data))
	c.publish(ports.Event{Type: ports.EventHierarchyRefresh})
	c.logger.Debug("hierarchy rebuilt",
		zap.Int("roots", len(tree)),
		zap.Int("concepts", category.TotalConcepts(data)))
}

// ============================================================================
// INTENTS
// ============================================================================

// CreateCategory creates a subcategory (or root category) named cmd.Name.
// When the parent already holds real concepts the caller must have chosen a
// sub-flow: create empty (a placeholder keeps the path visible) or create and
// transfer selected concepts into it.
func (c *Coordinator) CreateCategory(ctx context.Context, cmd commands.CreateCategoryCommand) (*OperationSnapshot, error) {
	if err := c.validate.Struct(cmd); err != nil {
		return nil, appErrors.InvalidCommand(err)
	}

	guard := c.guard()
	if err := guard.CheckCreate(cmd.ParentPath, cmd.Name); err != nil {
		return nil, err
	}
	newPath := category.ChildPath(cmd.ParentPath, cmd.Name)

	mode := cmd.Mode
	if mode == "" {
		if len(c.realConceptsAt(cmd.ParentPath)) > 0 {
			return nil, appErrors.DecisionRequired(cmd.ParentPath)
		}
		mode = commands.CreateModeEmpty
	}
	if mode == commands.CreateModeTransfer && len(cmd.ConceptIDs) == 0 {
		return nil, appErrors.InvalidCommand(errors.New("transfer mode requires conceptIds"))
	}

	timeoutKind := KindCreate
	if mode == commands.CreateModeTransfer {
		timeoutKind = KindTransfer
	}

	return c.run(ctx, KindCreate, timeoutKind, newPath, func(opCtx context.Context) error {
		if mode == commands.CreateModeEmpty {
			_, err := c.store.CreateConcept(opCtx, concept.NewPlaceholder(newPath))
			return err
		}
		return c.transferConcepts(opCtx, cmd.ConceptIDs, newPath)
	})
}

// RenameCategory replaces the last segment of cmd.Path. The persistence API
// re-paths the entire subtree in one structural call, so no concept is ever
// observable under a path that exists under neither the old nor new name.
func (c *Coordinator) RenameCategory(ctx context.Context, cmd commands.RenameCategoryCommand) (*OperationSnapshot, error) {
	if err := c.validate.Struct(cmd); err != nil {
		return nil, appErrors.InvalidCommand(err)
	}

	if err := c.guard().CheckRename(cmd.Path, cmd.NewName); err != nil {
		return nil, err
	}
	newPath := category.WithRenamedLastSegment(cmd.Path, cmd.NewName)

	return c.run(ctx, KindRename, KindRename, newPath, func(opCtx context.Context) error {
		return c.store.RenameCategory(opCtx, category.Split(cmd.Path), strings.TrimSpace(cmd.NewName))
	})
}

// MoveCategory relocates the cmd.Path subtree under cmd.NewParentPath, or to
// the root when the new parent is empty. Cyclic moves are rejected before any
// network call.
func (c *Coordinator) MoveCategory(ctx context.Context, cmd commands.MoveCategoryCommand) (*OperationSnapshot, error) {
	if err := c.validate.Struct(cmd); err != nil {
		return nil, appErrors.InvalidCommand(err)
	}

	if err := c.guard().CheckMove(cmd.Path, cmd.NewParentPath); err != nil {
		return nil, err
	}
	newPath := category.ChildPath(cmd.NewParentPath, category.LastSegment(cmd.Path))

	return c.run(ctx, KindMove, KindMove, newPath, func(opCtx context.Context) error {
		var newParent []string
		if strings.TrimSpace(cmd.NewParentPath) != "" {
			newParent = category.Split(cmd.NewParentPath)
		}
		return c.store.MoveCategory(opCtx, category.Split(cmd.Path), newParent)
	})
}

// TransferConcepts re-files a specific set of concepts under the destination
// path, which may be brand new.
func (c *Coordinator) TransferConcepts(ctx context.Context, cmd commands.TransferConceptsCommand) (*OperationSnapshot, error) {
	if err := c.validate.Struct(cmd); err != nil {
		return nil, appErrors.InvalidCommand(err)
	}

	if err := c.guard().CheckTransfer(cmd.DestinationPath); err != nil {
		return nil, err
	}

	return c.run(ctx, KindTransfer, KindTransfer, cmd.DestinationPath, func(opCtx context.Context) error {
		return c.transferConcepts(opCtx, cmd.ConceptIDs, cmd.DestinationPath)
	})
}

// Cancel aborts the in-flight operation. It is always accepted, even while
// busy: the lock flags and the token are invalidated together under the
// transition mutex, so no observer can see a half-cancelled state. The
// abandoned network call unwinds on its own and its result is discarded.
func (c *Coordinator) Cancel() {
	c.transitionMu.Lock()
	c.lock.ForceRelease()
	c.cancels.Cancel()
	c.transitionMu.Unlock()

	c.logger.Info("cancellation requested")
}

// ============================================================================
// OPERATION LIFECYCLE
// ============================================================================

// run executes one operation: acquire the lock, start the token, invoke the
// call, conclude. timeoutKind selects the per-kind timer and usually equals
// kind; create-and-transfer borrows the transfer timer since it is transfer
// work under a create intent.
func (c *Coordinator) run(ctx context.Context, kind, timeoutKind Kind, targetPath string, call func(context.Context) error) (*OperationSnapshot, error) {
	timeouts := c.currentTimeouts()

	c.transitionMu.Lock()
	if !c.lock.TryAcquire(kind) {
		running := c.lock.Running()
		c.transitionMu.Unlock()
		return nil, appErrors.OperationInProgress(string(running))
	}
	// The outer net bounds the whole lifecycle; the kind timeout nests inside.
	outerCtx, cancelOuter := context.WithTimeout(ctx, timeouts.Outer)
	token := c.cancels.Begin(outerCtx, timeouts.ForKind(string(timeoutKind)))
	op := newOperation(kind, targetPath, token)
	c.setLastOp(op)
	c.transitionMu.Unlock()

	defer cancelOuter()
	defer c.cancels.Retire(token)

	c.metrics.OperationStarted(string(kind))
	c.publish(ports.Event{Type: ports.EventOperationStarted, Kind: string(kind), Path: targetPath, Status: string(StatusRunning)})
	c.logger.Info("operation started",
		zap.String("operationId", op.ID),
		zap.String("kind", string(kind)),
		zap.String("targetPath", targetPath))

	opCtx, span := c.tracer.Start(token.Context(), "category."+string(kind),
		trace.WithAttributes(attribute.String("category.path", targetPath)))
	err := call(opCtx)

	snapshot, surfaced := c.conclude(op, token, err)

	if surfaced != nil {
		span.SetStatus(codes.Error, surfaced.Error())
	}
	span.SetAttributes(attribute.String("operation.status", string(snapshot.Status)))
	span.End()

	return snapshot, surfaced
}

// conclude finalizes the operation: classify the outcome, release the lock
// where the cancel path has not already done so, refresh and reselect on
// success, and emit telemetry. Results observed under an invalidated token
// are discarded unconditionally.
func (c *Coordinator) conclude(op *Operation, token *Token, err error) (*OperationSnapshot, error) {
	var status Status
	var surfaced error
	releaseLock := true

	reason := token.Reason()
	ctxErr := token.Context().Err()

	switch {
	case reason == ReasonCancelled || reason == ReasonSuperseded:
		// Cancel already cleared the lock flags; do not touch the lock again,
		// a newer operation may own it by now.
		status = StatusCancelled
		releaseLock = false
	case reason == ReasonTimedOut || errors.Is(ctxErr, context.DeadlineExceeded) ||
		errors.Is(err, context.DeadlineExceeded) || appErrors.IsTimeout(err):
		// Invalidate so a response that eventually lands is discarded.
		token.invalidate(ReasonTimedOut)
		status = StatusTimedOut
		surfaced = appErrors.Timeout(string(op.Kind)).WithPath(op.TargetPath)
	case errors.Is(err, context.Canceled) || appErrors.IsCancelled(err):
		// The caller's own context went away without an explicit Cancel.
		token.invalidate(ReasonCancelled)
		status = StatusCancelled
	case err != nil:
		status = StatusFailed
		surfaced = err
	default:
		status = StatusSucceeded
	}

	if status == StatusSucceeded {
		status, surfaced = c.applySuccess(op, token)
	}

	c.transitionMu.Lock()
	// The operation was published via setLastOp under stateMu, so the same
	// lock must guard its finalization against concurrent status polls.
	c.stateMu.Lock()
	op.finalize(status, surfaced)
	c.stateMu.Unlock()
	// Release only if no newer operation claimed the lock after a cancel
	// already force-released it on this operation's behalf.
	if releaseLock && c.isCurrent(op) {
		c.lock.Release()
	}
	c.transitionMu.Unlock()

	c.metrics.OperationFinished(string(op.Kind), string(status), op.Duration())
	c.publish(ports.Event{
		Type:    ports.EventOperationFinished,
		Kind:    string(op.Kind),
		Path:    op.TargetPath,
		Status:  string(status),
		Message: errMessage(surfaced),
	})

	logFields := []zap.Field{
		zap.String("operationId", op.ID),
		zap.String("kind", string(op.Kind)),
		zap.String("status", string(status)),
		zap.Duration("duration", op.Duration()),
	}
	if surfaced != nil {
		c.logger.Warn("operation finished", append(logFields, zap.Error(surfaced))...)
	} else {
		c.logger.Info("operation finished", logFields...)
	}

	return c.snapshotOf(op), surfaced
}

// applySuccess runs the refresh-then-reselect postcondition. The refresh is a
// side effect of the operation and therefore still subject to the token: a
// cancellation racing the response must suppress it.
func (c *Coordinator) applySuccess(op *Operation, token *Token) (Status, error) {
	if !token.Valid() {
		return StatusCancelled, nil
	}

	data, err := c.store.FetchConceptsByCategory(token.Context())
	if err != nil {
		if errors.Is(err, context.Canceled) || appErrors.IsCancelled(err) || !token.Valid() {
			return StatusCancelled, nil
		}
		if errors.Is(err, context.DeadlineExceeded) || appErrors.IsTimeout(err) {
			token.invalidate(ReasonTimedOut)
			return StatusTimedOut, appErrors.Timeout(string(op.Kind)).WithPath(op.TargetPath)
		}
		// The mutation landed but the refresh did not; surface the refresh
		// failure so the caller retries the fetch, not the mutation.
		return StatusFailed, err
	}

	if !token.Valid() {
		// Cancelled between response arrival and application: discard.
		return StatusCancelled, nil
	}

	c.applyRefresh(data)

	c.stateMu.Lock()
	c.selectedPath = op.TargetPath
	c.stateMu.Unlock()

	return StatusSucceeded, nil
}

// ============================================================================
// HELPERS
// ============================================================================

func (c *Coordinator) transferConcepts(ctx context.Context, conceptIDs []string, destination string) error {
	for _, id := range conceptIDs {
		if err := c.store.UpdateConceptCategory(ctx, id, destination); err != nil {
			return err
		}
	}
	return nil
}

func (c *Coordinator) guard() *category.ConflictGuard {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return category.NewGuard(category.Paths(c.conceptsByCategory))
}

// realConceptsAt returns the non-placeholder concepts filed directly at path.
// Placeholders do not force the create sub-flow decision; they exist to be
// superseded.
func (c *Coordinator) realConceptsAt(path string) []*concept.Concept {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	var real []*concept.Concept
	for _, cpt := range c.conceptsByCategory[path] {
		if !cpt.IsPlaceholder {
			real = append(real, cpt)
		}
	}
	return real
}

func (c *Coordinator) setLastOp(op *Operation) {
	c.stateMu.Lock()
	c.lastOp = op
	c.stateMu.Unlock()
}

func (c *Coordinator) isCurrent(op *Operation) bool {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.lastOp == op
}

func (c *Coordinator) snapshotOf(op *Operation) *OperationSnapshot {
	snap := &OperationSnapshot{
		ID:         op.ID,
		Kind:       op.Kind,
		Status:     op.Status,
		TargetPath: op.TargetPath,
		StartedAt:  op.StartedAt,
		FinishedAt: op.FinishedAt,
	}
	if err := op.Err(); err != nil {
		snap.Error = err.Error()
	}
	return snap
}

func (c *Coordinator) publish(event ports.Event) {
	event.At = time.Now()
	c.publisher.Publish(event)
}

func errMessage(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

type noopPublisher struct{}

func (noopPublisher) Publish(ports.Event) {}

type noopMetrics struct{}

func (noopMetrics) OperationStarted(string)                         {}
func (noopMetrics) OperationFinished(string, string, time.Duration) {}
func (noopMetrics) HierarchyRebuilt(int, int)                       {}
func (noopMetrics) APICall(string, string, time.Duration)           {}
