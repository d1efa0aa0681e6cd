package approval_test

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"social-poster/approval"
	"social-poster/database"
	"social-poster/models"
)

type fakeMessenger struct {
	mu      sync.Mutex
	sendErr error
	nextID  int
	edits   []string
}

func (f *fakeMessenger) SendApproval(itemID int64, preview string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return "", f.sendErr
	}
	f.nextID++
	return fmt.Sprintf("msg-%d", f.nextID), nil
}

func (f *fakeMessenger) Edit(handle, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits = append(f.edits, text)
	return nil
}

func (f *fakeMessenger) editCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.edits)
}

func setup(t *testing.T, cfg *models.Config) (*database.Store, *fakeMessenger, *approval.Orchestrator) {
	t.Helper()
	db, err := database.InitDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	store := database.NewStore(db)
	msgr := &fakeMessenger{}
	return store, msgr, approval.NewOrchestrator(store, msgr, cfg)
}

func newItem(t *testing.T, store *database.Store) int64 {
	t.Helper()
	id, err := store.CreateItem(database.CreateItemInput{Topic: "t", Summary: "s"}, []string{"announce"})
	require.NoError(t, err)
	return id
}

func TestManualApprove(t *testing.T) {
	cfg := &models.Config{AutoApprove: false}
	store, msgr, orch := setup(t, cfg)
	id := newItem(t, store)

	var approved, rejected atomic.Int32
	require.NoError(t, orch.RequestApproval(id,
		func(int64) { approved.Add(1) },
		func(int64) { rejected.Add(1) },
	))
	assert.Equal(t, 1, orch.Outstanding())

	require.NoError(t, orch.Resolve("msg-1", approval.DecisionApprove, "reviewer"))

	assert.Equal(t, int32(1), approved.Load())
	assert.Zero(t, rejected.Load())
	assert.Zero(t, orch.Outstanding())

	item, err := store.GetItem(id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, item.Status)
	assert.Equal(t, "reviewer", item.ApprovedBy)
	assert.Equal(t, models.ApprovalManual, item.ApprovalKind)
	assert.Equal(t, 1, msgr.editCount())
}

func TestManualReject(t *testing.T) {
	cfg := &models.Config{AutoApprove: false}
	store, _, orch := setup(t, cfg)
	id := newItem(t, store)

	var approved, rejected atomic.Int32
	require.NoError(t, orch.RequestApproval(id,
		func(int64) { approved.Add(1) },
		func(int64) { rejected.Add(1) },
	))
	require.NoError(t, orch.Resolve("msg-1", approval.DecisionReject, "reviewer"))

	assert.Zero(t, approved.Load())
	assert.Equal(t, int32(1), rejected.Load())

	item, err := store.GetItem(id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, item.Status)
	assert.NotEmpty(t, item.RejectionReason)
}

func TestAutoApproveFiresAfterTimeout(t *testing.T) {
	cfg := &models.Config{AutoApprove: true, ApprovalTimeout: 20 * time.Millisecond}
	store, _, orch := setup(t, cfg)
	id := newItem(t, store)

	done := make(chan int64, 1)
	require.NoError(t, orch.RequestApproval(id,
		func(itemID int64) { done <- itemID },
		func(int64) { t.Error("rejected continuation must not run") },
	))

	select {
	case got := <-done:
		assert.Equal(t, id, got)
	case <-time.After(2 * time.Second):
		t.Fatal("auto-approval never fired")
	}

	item, err := store.GetItem(id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAutoApproved, item.Status)
	assert.Equal(t, models.ApprovalTimeout, item.ApprovalKind)
	assert.Equal(t, "system", item.ApprovedBy)
	assert.Zero(t, orch.Outstanding())
}

func TestConcurrentDecisionAndTimeoutRunExactlyOneContinuation(t *testing.T) {
	// Fire the manual decision and the timer path concurrently for the
	// same handle, many times over; the continuation must run once per
	// item, every time.
	cfg := &models.Config{AutoApprove: false}
	store, _, orch := setup(t, cfg)

	for i := 0; i < 50; i++ {
		id := newItem(t, store)
		var continuations atomic.Int32
		require.NoError(t, orch.RequestApproval(id,
			func(int64) { continuations.Add(1) },
			func(int64) { continuations.Add(1) },
		))
		handle := fmt.Sprintf("msg-%d", i+1)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = orch.Resolve(handle, approval.DecisionApprove, "reviewer")
		}()
		go func() {
			defer wg.Done()
			_ = orch.Resolve(handle, approval.DecisionAuto, "system")
		}()
		wg.Wait()

		assert.Equal(t, int32(1), continuations.Load(), "iteration %d", i)

		item, err := store.GetItem(id)
		require.NoError(t, err)
		assert.Contains(t, []models.ItemStatus{models.StatusApproved, models.StatusAutoApproved}, item.Status)
	}
	assert.Zero(t, orch.Outstanding())
}

func TestLateDecisionIsDropped(t *testing.T) {
	cfg := &models.Config{AutoApprove: false}
	store, msgr, orch := setup(t, cfg)
	id := newItem(t, store)

	var approved atomic.Int32
	require.NoError(t, orch.RequestApproval(id,
		func(int64) { approved.Add(1) },
		func(int64) {},
	))
	require.NoError(t, orch.Resolve("msg-1", approval.DecisionApprove, "reviewer"))

	trailBefore, err := store.AuditTrail(id)
	require.NoError(t, err)

	// The second click: no error, no continuation, no new audit entry,
	// no message edit.
	require.NoError(t, orch.Resolve("msg-1", approval.DecisionReject, "reviewer"))
	assert.Equal(t, int32(1), approved.Load())
	assert.Equal(t, 1, msgr.editCount())

	trailAfter, err := store.AuditTrail(id)
	require.NoError(t, err)
	assert.Len(t, trailAfter, len(trailBefore))

	item, err := store.GetItem(id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, item.Status)
}

func TestSendFailureLeavesItemPending(t *testing.T) {
	cfg := &models.Config{AutoApprove: true, ApprovalTimeout: time.Minute}
	store, msgr, orch := setup(t, cfg)
	msgr.sendErr = fmt.Errorf("gateway down")
	id := newItem(t, store)

	err := orch.RequestApproval(id, func(int64) {}, func(int64) {})
	assert.Error(t, err)
	assert.Zero(t, orch.Outstanding())

	item, err := store.GetItem(id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, item.Status)
}

func TestManualWinCancelsTimer(t *testing.T) {
	cfg := &models.Config{AutoApprove: true, ApprovalTimeout: 30 * time.Millisecond}
	store, _, orch := setup(t, cfg)
	id := newItem(t, store)

	var approved atomic.Int32
	require.NoError(t, orch.RequestApproval(id,
		func(int64) { approved.Add(1) },
		func(int64) {},
	))
	require.NoError(t, orch.Resolve("msg-1", approval.DecisionApprove, "reviewer"))

	// Give a not-cancelled timer every chance to misfire.
	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, int32(1), approved.Load())

	item, err := store.GetItem(id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, item.Status)
	assert.Equal(t, models.ApprovalManual, item.ApprovalKind)
}

func TestBuildPreview(t *testing.T) {
	cfg := &models.Config{
		AutoApprove:     true,
		ApprovalTimeout: 5 * time.Minute,
		EnabledChannels: []string{"announce", "micro"},
	}
	item := &models.Item{
		ID:       7,
		Topic:    "Launch day",
		Summary:  "We shipped.",
		Link:     "https://example.com",
		VideoURL: "https://example.com/v.mp4",
		Priority: models.PriorityHigh,
	}

	preview := approval.BuildPreview(item, cfg)
	assert.Contains(t, preview, "Launch day")
	assert.Contains(t, preview, "We shipped.")
	assert.Contains(t, preview, "https://example.com")
	assert.Contains(t, preview, "manual posting required")
	assert.Contains(t, preview, "HIGH")
	assert.Contains(t, preview, "announce, micro")
	assert.Contains(t, preview, "5m0s")
}
