package coordinator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"conceptdeck-engine/internal/application/commands"
	"conceptdeck-engine/internal/application/ports"
	"conceptdeck-engine/internal/config"
	"conceptdeck-engine/internal/domain/category"
	"conceptdeck-engine/internal/domain/concept"
	appErrors "conceptdeck-engine/internal/errors"
)

// fakeStore implements ports.PersistenceAPI in memory with knobs for latency,
// failure injection, and context misbehavior (to simulate hung requests whose
// responses arrive after the client gave up).
type fakeStore struct {
	mu   sync.Mutex
	data map[string][]*concept.Concept

	delay         time.Duration
	ignoreContext bool
	failWith      error

	fetchCalls  int
	renameCalls int
	moveCalls   int
	updateCalls int
	created     []*concept.Concept
}

func newFakeStore(data map[string][]*concept.Concept) *fakeStore {
	if data == nil {
		data = map[string][]*concept.Concept{}
	}
	return &fakeStore{data: data}
}

func (s *fakeStore) wait(ctx context.Context) error {
	if s.delay == 0 {
		return nil
	}
	if s.ignoreContext {
		// A hung request that resolves long after the caller stopped caring.
		time.Sleep(s.delay)
		return nil
	}
	select {
	case <-time.After(s.delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *fakeStore) FetchConceptsByCategory(ctx context.Context) (map[string][]*concept.Concept, error) {
	s.mu.Lock()
	s.fetchCalls++
	s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := make(map[string][]*concept.Concept, len(s.data))
	for path, concepts := range s.data {
		copied := make([]*concept.Concept, len(concepts))
		copy(copied, concepts)
		snapshot[path] = copied
	}
	return snapshot, nil
}

func (s *fakeStore) RenameCategory(ctx context.Context, categoryPath []string, newName string) error {
	s.mu.Lock()
	s.renameCalls++
	s.mu.Unlock()
	if err := s.wait(ctx); err != nil {
		return err
	}
	if s.failWith != nil {
		return s.failWith
	}

	old := category.Join(categoryPath)
	renamed := category.WithRenamedLastSegment(old, newName)

	s.mu.Lock()
	defer s.mu.Unlock()
	updated := map[string][]*concept.Concept{}
	for path, concepts := range s.data {
		next := category.Rebase(path, old, renamed)
		for _, c := range concepts {
			c.Recategorize(next)
		}
		updated[next] = concepts
	}
	s.data = updated
	return nil
}

func (s *fakeStore) MoveCategory(ctx context.Context, categoryPath []string, newParentPath []string) error {
	s.mu.Lock()
	s.moveCalls++
	s.mu.Unlock()
	if err := s.wait(ctx); err != nil {
		return err
	}
	if s.failWith != nil {
		return s.failWith
	}

	old := category.Join(categoryPath)
	target := category.ChildPath(category.Join(newParentPath), category.LastSegment(old))

	s.mu.Lock()
	defer s.mu.Unlock()
	updated := map[string][]*concept.Concept{}
	for path, concepts := range s.data {
		next := category.Rebase(path, old, target)
		for _, c := range concepts {
			c.Recategorize(next)
		}
		updated[next] = concepts
	}
	s.data = updated
	return nil
}

func (s *fakeStore) CreateConcept(ctx context.Context, c *concept.Concept) (*concept.Concept, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	if s.failWith != nil {
		return nil, s.failWith
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.created = append(s.created, c)
	s.data[c.Category] = append(s.data[c.Category], c)
	return c, nil
}

func (s *fakeStore) UpdateConceptCategory(ctx context.Context, conceptID, newCategory string) error {
	s.mu.Lock()
	s.updateCalls++
	s.mu.Unlock()
	if err := s.wait(ctx); err != nil {
		return err
	}
	if s.failWith != nil {
		return s.failWith
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for path, concepts := range s.data {
		for i, c := range concepts {
			if c.ID == conceptID {
				s.data[path] = append(concepts[:i:i], concepts[i+1:]...)
				c.Recategorize(newCategory)
				s.data[newCategory] = append(s.data[newCategory], c)
				return nil
			}
		}
	}
	return appErrors.ServerRejected(404, "concept not found")
}

func mustConcept(t *testing.T, title, path string) *concept.Concept {
	t.Helper()
	c, err := concept.New(title, path, "")
	require.NoError(t, err)
	return c
}

func newTestCoordinator(t *testing.T, store *fakeStore) *Coordinator {
	t.Helper()
	coord := New(store, nil, nil, config.Default().Timeouts, zap.NewNop())
	require.NoError(t, coord.Refresh(context.Background()))
	return coord
}

func shortTimeouts() config.OperationTimeouts {
	return config.OperationTimeouts{
		Create:   30 * time.Millisecond,
		Rename:   30 * time.Millisecond,
		Move:     30 * time.Millisecond,
		Transfer: 30 * time.Millisecond,
		Outer:    80 * time.Millisecond,
	}
}

func TestCoordinator_CreateCategory_EmptyMode(t *testing.T) {
	store := newFakeStore(map[string][]*concept.Concept{
		"Backend": {mustConcept(t, "caching", "Backend")},
	})
	coord := newTestCoordinator(t, store)

	op, err := coord.CreateCategory(context.Background(), commands.CreateCategoryCommand{
		ParentPath: "Backend",
		Name:       "Databases",
		Mode:       commands.CreateModeEmpty,
	})

	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, op.Status)
	assert.Equal(t, "Backend > Databases", op.TargetPath)
	assert.Equal(t, "Backend > Databases", coord.SelectedPath())
	assert.False(t, coord.Busy())

	// The placeholder keeps the new empty category visible.
	require.Len(t, store.created, 1)
	assert.True(t, store.created[0].IsPlaceholder)
	assert.Equal(t, "Backend > Databases", store.created[0].Category)

	tree := coord.Hierarchy()
	require.Contains(t, tree, "Backend")
	assert.Contains(t, tree["Backend"].Subcategories, "Databases")
}

func TestCoordinator_CreateCategory_RequiresDecisionForPopulatedParent(t *testing.T) {
	store := newFakeStore(map[string][]*concept.Concept{
		"Backend": {mustConcept(t, "caching", "Backend")},
	})
	coord := newTestCoordinator(t, store)
	fetchesBefore := store.fetchCalls

	_, err := coord.CreateCategory(context.Background(), commands.CreateCategoryCommand{
		ParentPath: "Backend",
		Name:       "Databases",
	})

	assert.Equal(t, appErrors.CodeDecisionRequired, appErrors.CodeOf(err))
	assert.False(t, coord.Busy(), "a rejected intent must not take the lock")
	assert.Equal(t, fetchesBefore, store.fetchCalls, "no refresh on rejection")
	assert.Empty(t, store.created)
}

func TestCoordinator_CreateCategory_TransferMode(t *testing.T) {
	c1 := mustConcept(t, "btree", "Backend")
	c2 := mustConcept(t, "lsm", "Backend")
	store := newFakeStore(map[string][]*concept.Concept{
		"Backend": {c1, c2},
	})
	coord := newTestCoordinator(t, store)

	op, err := coord.CreateCategory(context.Background(), commands.CreateCategoryCommand{
		ParentPath: "Backend",
		Name:       "Databases",
		Mode:       commands.CreateModeTransfer,
		ConceptIDs: []string{c1.ID, c2.ID},
	})

	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, op.Status)
	assert.Equal(t, "Backend > Databases", c1.Category)
	assert.Equal(t, "Backend > Databases", c2.Category)
	assert.Equal(t, 2, store.updateCalls)
	assert.Empty(t, store.created, "transfer mode must not create a placeholder")
}

func TestCoordinator_RenameCategory_RepathsSubtree(t *testing.T) {
	c2 := mustConcept(t, "indexes", "Backend > DB")
	store := newFakeStore(map[string][]*concept.Concept{
		"Backend > DB": {c2},
	})
	coord := newTestCoordinator(t, store)

	op, err := coord.RenameCategory(context.Background(), commands.RenameCategoryCommand{
		Path:    "Backend > DB",
		NewName: "Storage",
	})

	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, op.Status)
	assert.Equal(t, "Backend > Storage", coord.SelectedPath())

	// No concept may remain under the old path after a rename.
	assert.Equal(t, "Backend > Storage", c2.Category)
	data := coord.ConceptsByCategory()
	assert.NotContains(t, data, "Backend > DB")
	require.Contains(t, data, "Backend > Storage")
	assert.Len(t, data["Backend > Storage"], 1)
}

func TestCoordinator_RenameCategory_RejectsUnchangedName(t *testing.T) {
	store := newFakeStore(map[string][]*concept.Concept{
		"Backend > DB": {mustConcept(t, "indexes", "Backend > DB")},
	})
	coord := newTestCoordinator(t, store)

	_, err := coord.RenameCategory(context.Background(), commands.RenameCategoryCommand{
		Path:    "Backend > DB",
		NewName: "DB",
	})

	assert.Equal(t, appErrors.CodeInvalidName, appErrors.CodeOf(err))
	assert.Zero(t, store.renameCalls)
}

func TestCoordinator_MoveCategory_CyclicRejectedWithoutNetwork(t *testing.T) {
	store := newFakeStore(map[string][]*concept.Concept{
		"A > B":     {mustConcept(t, "one", "A > B")},
		"A > B > C": {mustConcept(t, "two", "A > B > C")},
	})
	coord := newTestCoordinator(t, store)

	_, err := coord.MoveCategory(context.Background(), commands.MoveCategoryCommand{
		Path:          "A > B",
		NewParentPath: "A > B > C",
	})

	assert.Equal(t, appErrors.CodeCyclicMove, appErrors.CodeOf(err))
	assert.Zero(t, store.moveCalls, "cyclic move must be rejected before any network call")
	assert.False(t, coord.Busy())
}

func TestCoordinator_MoveCategory_Success(t *testing.T) {
	c := mustConcept(t, "tls", "Networking > Security")
	store := newFakeStore(map[string][]*concept.Concept{
		"Networking > Security": {c},
		"Backend":               {mustConcept(t, "caching", "Backend")},
	})
	coord := newTestCoordinator(t, store)

	op, err := coord.MoveCategory(context.Background(), commands.MoveCategoryCommand{
		Path:          "Networking > Security",
		NewParentPath: "Backend",
	})

	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, op.Status)
	assert.Equal(t, "Backend > Security", coord.SelectedPath())
	assert.Equal(t, "Backend > Security", c.Category)
}

func TestCoordinator_OperationInProgress(t *testing.T) {
	store := newFakeStore(map[string][]*concept.Concept{
		"A > B": {mustConcept(t, "one", "A > B")},
	})
	store.delay = 200 * time.Millisecond
	coord := newTestCoordinator(t, store)

	done := make(chan struct{})
	go func() {
		defer close(done)
		coord.MoveCategory(context.Background(), commands.MoveCategoryCommand{Path: "A > B"})
	}()

	require.Eventually(t, coord.Busy, time.Second, time.Millisecond)
	require.True(t, coord.IsMoving())

	_, err := coord.CreateCategory(context.Background(), commands.CreateCategoryCommand{Name: "X"})

	assert.Equal(t, appErrors.CodeOperationInProgress, appErrors.CodeOf(err))
	assert.False(t, coord.IsCreating(), "the refused create must not set its flag")
	<-done
}

func TestCoordinator_Timeout(t *testing.T) {
	store := newFakeStore(map[string][]*concept.Concept{
		"A": {mustConcept(t, "one", "A")},
	})
	store.delay = 500 * time.Millisecond
	coord := newTestCoordinator(t, store)
	coord.SetTimeouts(shortTimeouts())
	fetchesBefore := store.fetchCalls

	op, err := coord.RenameCategory(context.Background(), commands.RenameCategoryCommand{
		Path:    "A",
		NewName: "B",
	})

	require.Error(t, err)
	assert.True(t, appErrors.IsTimeout(err))
	assert.Equal(t, StatusTimedOut, op.Status)
	assert.False(t, coord.Busy(), "timeout must release the lock")
	assert.Equal(t, fetchesBefore, store.fetchCalls, "a timed-out operation must not refresh")
}

func TestCoordinator_LateResponseDiscarded(t *testing.T) {
	store := newFakeStore(map[string][]*concept.Concept{
		"A": {mustConcept(t, "one", "A")},
	})
	// The request hangs past the deadline and then "succeeds" anyway.
	store.delay = 150 * time.Millisecond
	store.ignoreContext = true
	coord := newTestCoordinator(t, store)
	coord.SetTimeouts(shortTimeouts())
	fetchesBefore := store.fetchCalls
	selectedBefore := coord.SelectedPath()

	op, err := coord.RenameCategory(context.Background(), commands.RenameCategoryCommand{
		Path:    "A",
		NewName: "B",
	})

	// The server-side rename landed, but the client saw a timeout first: the
	// late success must produce no observable refresh or selection change.
	require.Error(t, err)
	assert.Equal(t, StatusTimedOut, op.Status)
	assert.Equal(t, fetchesBefore, store.fetchCalls)
	assert.Equal(t, selectedBefore, coord.SelectedPath())
	assert.Contains(t, coord.Hierarchy(), "A", "stale hierarchy stays until the next explicit refresh")
}

func TestCoordinator_CancelMidFlight(t *testing.T) {
	store := newFakeStore(map[string][]*concept.Concept{
		"A > B": {mustConcept(t, "one", "A > B")},
	})
	store.delay = time.Second
	coord := newTestCoordinator(t, store)
	fetchesBefore := store.fetchCalls

	type result struct {
		op  *OperationSnapshot
		err error
	}
	results := make(chan result, 1)
	go func() {
		op, err := coord.MoveCategory(context.Background(), commands.MoveCategoryCommand{Path: "A > B"})
		results <- result{op, err}
	}()

	require.Eventually(t, coord.Busy, time.Second, time.Millisecond)
	coord.Cancel()

	// Cancellation clears the flags synchronously, before the network call
	// has unwound.
	assert.False(t, coord.Busy())
	assert.False(t, coord.IsMoving())

	res := <-results
	assert.NoError(t, res.err, "cancellation is a normal path, not a fault")
	assert.Equal(t, StatusCancelled, res.op.Status)
	assert.Equal(t, fetchesBefore, store.fetchCalls, "a cancelled operation must not refresh")
}

func TestCoordinator_CancelWhileIdle(t *testing.T) {
	coord := newTestCoordinator(t, newFakeStore(nil))

	coord.Cancel()

	assert.False(t, coord.Busy())
}

func TestCoordinator_FailurePreservesState(t *testing.T) {
	store := newFakeStore(map[string][]*concept.Concept{
		"A": {mustConcept(t, "one", "A")},
	})
	store.failWith = appErrors.ServerRejected(500, "boom")
	coord := newTestCoordinator(t, store)
	fetchesBefore := store.fetchCalls
	selectedBefore := coord.SelectedPath()

	op, err := coord.RenameCategory(context.Background(), commands.RenameCategoryCommand{
		Path:    "A",
		NewName: "B",
	})

	require.Error(t, err)
	assert.Equal(t, appErrors.CodeServerRejected, appErrors.CodeOf(err))
	assert.Equal(t, StatusFailed, op.Status)
	assert.False(t, coord.Busy(), "failure must release the lock")
	// No refresh: the caller's dialog state survives for a retry.
	assert.Equal(t, fetchesBefore, store.fetchCalls)
	assert.Equal(t, selectedBefore, coord.SelectedPath())
}

func TestCoordinator_TransferConcepts(t *testing.T) {
	c1 := mustConcept(t, "one", "A")
	c2 := mustConcept(t, "two", "A")
	c3 := mustConcept(t, "three", "A")
	store := newFakeStore(map[string][]*concept.Concept{
		"A": {c1, c2, c3},
	})
	coord := newTestCoordinator(t, store)

	op, err := coord.TransferConcepts(context.Background(), commands.TransferConceptsCommand{
		ConceptIDs:      []string{c1.ID, c3.ID},
		DestinationPath: "B",
	})

	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, op.Status)
	assert.Equal(t, "B", coord.SelectedPath())
	assert.Equal(t, "B", c1.Category)
	assert.Equal(t, "A", c2.Category, "unselected concepts stay put")
	assert.Equal(t, "B", c3.Category)
}

func TestCoordinator_EventsPublished(t *testing.T) {
	var mu sync.Mutex
	var events []ports.Event
	publisher := publisherFunc(func(e ports.Event) {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
	})

	store := newFakeStore(map[string][]*concept.Concept{
		"A": {mustConcept(t, "one", "A")},
	})
	coord := New(store, publisher, nil, config.Default().Timeouts, zap.NewNop())
	require.NoError(t, coord.Refresh(context.Background()))

	_, err := coord.RenameCategory(context.Background(), commands.RenameCategoryCommand{
		Path:    "A",
		NewName: "B",
	})
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	var types []string
	for _, e := range events {
		types = append(types, e.Type)
	}
	assert.Contains(t, types, ports.EventOperationStarted)
	assert.Contains(t, types, ports.EventOperationFinished)
	assert.Contains(t, types, ports.EventHierarchyRefresh)
}

type publisherFunc func(ports.Event)

func (f publisherFunc) Publish(e ports.Event) { f(e) }

func TestCoordinator_LastOperationPolledDuringFlight(t *testing.T) {
	store := newFakeStore(map[string][]*concept.Concept{
		"A": {mustConcept(t, "one", "A")},
	})
	store.delay = 50 * time.Millisecond
	coord := newTestCoordinator(t, store)

	// A status poller hammers the read path while the operation finalizes;
	// run with -race to check the finalization write is synchronized.
	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			if snap := coord.LastOperation(); snap != nil && snap.Status.Terminal() {
				assert.NotZero(t, snap.FinishedAt, "terminal snapshot must carry its finish time")
			}
			coord.Busy()
		}
	}()

	op, err := coord.RenameCategory(context.Background(), commands.RenameCategoryCommand{
		Path:    "A",
		NewName: "B",
	})
	close(stop)
	wg.Wait()

	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, op.Status)

	snap := coord.LastOperation()
	require.NotNil(t, snap)
	assert.Equal(t, StatusSucceeded, snap.Status)
}

func TestCoordinator_CreateTransferModeUsesTransferTimeout(t *testing.T) {
	c1 := mustConcept(t, "btree", "Backend")
	store := newFakeStore(map[string][]*concept.Concept{
		"Backend": {c1},
	})
	store.delay = 60 * time.Millisecond
	coord := newTestCoordinator(t, store)
	// Create timer shorter than the store delay, transfer timer longer: the
	// create-and-transfer sub-flow is transfer work and must get the
	// transfer timer.
	coord.SetTimeouts(config.OperationTimeouts{
		Create:   20 * time.Millisecond,
		Rename:   20 * time.Millisecond,
		Move:     20 * time.Millisecond,
		Transfer: 250 * time.Millisecond,
		Outer:    500 * time.Millisecond,
	})

	op, err := coord.CreateCategory(context.Background(), commands.CreateCategoryCommand{
		ParentPath: "Backend",
		Name:       "Databases",
		Mode:       commands.CreateModeTransfer,
		ConceptIDs: []string{c1.ID},
	})

	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, op.Status)
	assert.Equal(t, "Backend > Databases", c1.Category)
}

func TestCoordinator_LastOperationSnapshot(t *testing.T) {
	store := newFakeStore(map[string][]*concept.Concept{
		"A": {mustConcept(t, "one", "A")},
	})
	coord := newTestCoordinator(t, store)

	assert.Nil(t, coord.LastOperation())

	_, err := coord.RenameCategory(context.Background(), commands.RenameCategoryCommand{
		Path:    "A",
		NewName: "B",
	})
	require.NoError(t, err)

	snap := coord.LastOperation()
	require.NotNil(t, snap)
	assert.Equal(t, KindRename, snap.Kind)
	assert.Equal(t, StatusSucceeded, snap.Status)
	assert.Equal(t, "B", snap.TargetPath)
	assert.False(t, snap.FinishedAt.IsZero())
}
