package poster_test

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"social-poster/database"
	"social-poster/models"
	"social-poster/platforms"
	"social-poster/poster"
)

type fakeChannel struct {
	name   string
	spec   platforms.Spec
	result platforms.Result
	panics bool
	calls  atomic.Int32

	started chan struct{} // closed on first Post, when set
	release chan struct{} // Post blocks on this, when set
	once    sync.Once
}

func (f *fakeChannel) Name() string {
	return f.name
}

func (f *fakeChannel) Spec() platforms.Spec {
	return f.spec
}

func (f *fakeChannel) Post(text, imageURL, link string) platforms.Result {
	f.calls.Add(1)
	if f.started != nil {
		f.once.Do(func() { close(f.started) })
	}
	if f.release != nil {
		<-f.release
	}
	if f.panics {
		panic("adapter exploded")
	}
	r := f.result
	r.Channel = f.name
	return r
}

type fakeReporter struct {
	mu            sync.Mutex
	summaries     [][]platforms.Result
	channelFails  []string
	totalFailures int
	crashes       int
}

func (f *fakeReporter) Summary(item *models.Item, results []platforms.Result) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.summaries = append(f.summaries, results)
}

func (f *fakeReporter) ChannelFailed(itemID int64, channel, errMsg string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.channelFails = append(f.channelFails, channel)
}

func (f *fakeReporter) TotalFailure(itemID int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.totalFailures++
}

func (f *fakeReporter) Crashed(itemID int64, errMsg string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.crashes++
}

func ok(name string) *fakeChannel {
	return &fakeChannel{
		name:   name,
		spec:   platforms.Spec{MaxLength: 2000, Links: platforms.LinkInline},
		result: platforms.Result{Success: true, ExternalID: name + "-1", ExternalURL: "https://" + name + "/1"},
	}
}

func failing(name string) *fakeChannel {
	return &fakeChannel{
		name:   name,
		spec:   platforms.Spec{MaxLength: 2000, Links: platforms.LinkInline},
		result: platforms.Result{Error: "rate limited"},
	}
}

func setup(t *testing.T, channels []platforms.Channel, input database.CreateItemInput) (*database.Store, *fakeReporter, *poster.Dispatcher, int64) {
	t.Helper()
	db, err := database.InitDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	store := database.NewStore(db)

	if input.Topic == "" {
		input.Topic = "topic"
		input.Summary = "summary"
	}
	id, err := store.CreateItem(input, platforms.Names(channels))
	require.NoError(t, err)
	require.NoError(t, store.Transition(id, models.StatusApproved, database.TransitionMeta{
		ApprovedBy: "reviewer", ApprovalKind: models.ApprovalManual,
	}))

	reporter := &fakeReporter{}
	cfg := &models.Config{InterChannelDelay: 0}
	return store, reporter, poster.NewDispatcher(store, channels, reporter, cfg), id
}

func TestDispatchAllPublished(t *testing.T) {
	a, b := ok("a"), ok("b")
	store, reporter, d, id := setup(t, []platforms.Channel{a, b}, database.CreateItemInput{})

	d.Dispatch(id)

	item, err := store.GetItem(id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, item.Status)
	assert.NotEmpty(t, item.CompletedAt)

	attempts, err := store.ChannelAttempts(id)
	require.NoError(t, err)
	for _, attempt := range attempts {
		assert.Equal(t, models.AttemptPublished, attempt.Status)
		assert.NotEmpty(t, attempt.ExternalID)
	}

	require.Len(t, reporter.summaries, 1)
	assert.Zero(t, reporter.totalFailures)
	assert.Empty(t, reporter.channelFails)
}

func TestDispatchPartialFailure(t *testing.T) {
	a, b, c := ok("a"), failing("b"), ok("c")
	store, reporter, d, id := setup(t, []platforms.Channel{a, b, c}, database.CreateItemInput{})

	d.Dispatch(id)

	item, err := store.GetItem(id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPartialFailure, item.Status)

	require.Len(t, reporter.summaries, 1, "exactly one per-item summary")
	assert.Len(t, reporter.summaries[0], 3, "summary lists every channel")
	assert.Zero(t, reporter.totalFailures, "no total-failure alert on partial failure")
	assert.Equal(t, []string{"b"}, reporter.channelFails)

	attempts, err := store.ChannelAttempts(id)
	require.NoError(t, err)
	byChannel := map[string]models.ChannelAttempt{}
	for _, attempt := range attempts {
		byChannel[attempt.Channel] = attempt
	}
	assert.Equal(t, models.AttemptPublished, byChannel["a"].Status)
	assert.Equal(t, models.AttemptFailed, byChannel["b"].Status)
	assert.Equal(t, 1, byChannel["b"].RetryCount)
	assert.Equal(t, models.AttemptPublished, byChannel["c"].Status)
}

func TestDispatchTotalFailure(t *testing.T) {
	a, b := failing("a"), failing("b")
	store, reporter, d, id := setup(t, []platforms.Channel{a, b}, database.CreateItemInput{})

	d.Dispatch(id)

	item, err := store.GetItem(id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, item.Status)
	assert.NotEmpty(t, item.CompletedAt)

	assert.Equal(t, 1, reporter.totalFailures)
	require.Len(t, reporter.summaries, 1)
}

func TestDispatchSkipsMediaChannelsWithoutImage(t *testing.T) {
	a := ok("a")
	a.spec.RequiresImage = true
	b := ok("b")
	b.spec.RequiresImage = true
	store, reporter, d, id := setup(t, []platforms.Channel{a, b}, database.CreateItemInput{})

	d.Dispatch(id)

	// Skips are excluded from the denominator: not a failure.
	item, err := store.GetItem(id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, item.Status)
	assert.Zero(t, reporter.totalFailures)

	attempts, err := store.ChannelAttempts(id)
	require.NoError(t, err)
	for _, attempt := range attempts {
		assert.Equal(t, models.AttemptSkipped, attempt.Status)
		assert.Contains(t, attempt.ErrorMessage, "requires media")
	}
	assert.Zero(t, a.calls.Load())
	assert.Zero(t, b.calls.Load())

	require.Len(t, reporter.summaries, 1)
	for _, r := range reporter.summaries[0] {
		assert.True(t, r.Skipped, "summary results carry the skip marker")
		assert.False(t, r.Success)
	}
}

func TestDispatchMediaChannelPostsWithImage(t *testing.T) {
	a := ok("a")
	a.spec.RequiresImage = true
	store, _, d, id := setup(t, []platforms.Channel{a}, database.CreateItemInput{
		Topic: "topic", Summary: "summary", ImageURL: "https://img/1.jpg",
	})

	d.Dispatch(id)

	item, err := store.GetItem(id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, item.Status)
	assert.Equal(t, int32(1), a.calls.Load())
}

func TestDispatchPanicContainedToOneChannel(t *testing.T) {
	a := ok("a")
	b := failing("b")
	b.panics = true
	c := ok("c")
	store, reporter, d, id := setup(t, []platforms.Channel{a, b, c}, database.CreateItemInput{})

	d.Dispatch(id)

	item, err := store.GetItem(id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPartialFailure, item.Status)
	assert.Equal(t, int32(1), c.calls.Load(), "siblings still run after a panic")

	attempts, err := store.ChannelAttempts(id)
	require.NoError(t, err)
	for _, attempt := range attempts {
		if attempt.Channel == "b" {
			assert.Equal(t, models.AttemptFailed, attempt.Status)
			assert.Contains(t, attempt.ErrorMessage, "adapter exploded")
		}
	}
	assert.Equal(t, []string{"b"}, reporter.channelFails)
}

func TestConcurrentDispatchIsNoop(t *testing.T) {
	a := ok("a")
	a.started = make(chan struct{})
	a.release = make(chan struct{})
	store, reporter, d, id := setup(t, []platforms.Channel{a}, database.CreateItemInput{})

	done := make(chan struct{})
	go func() {
		d.Dispatch(id)
		close(done)
	}()
	<-a.started

	// Second trigger while the first is mid-flight: logged no-op.
	d.Dispatch(id)
	assert.Equal(t, int32(1), a.calls.Load())

	close(a.release)
	<-done

	item, err := store.GetItem(id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, item.Status)
	assert.Equal(t, int32(1), a.calls.Load(), "no duplicate channel calls")
	assert.Len(t, reporter.summaries, 1)
	assert.Zero(t, reporter.crashes)
}

func TestDispatchReleasesGuardAfterFailure(t *testing.T) {
	a := failing("a")
	store, _, d, id := setup(t, []platforms.Channel{a}, database.CreateItemInput{})

	d.Dispatch(id)

	// The guard slot is free again: a second dispatch is not silently
	// swallowed by the in-flight set (it fails on the state machine
	// instead, since failed is terminal).
	d.Dispatch(id)

	item, err := store.GetItem(id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, item.Status)
	assert.Equal(t, int32(1), a.calls.Load())
}

func TestProcessPendingDispatchesApprovedItems(t *testing.T) {
	a := ok("a")
	store, _, d, id := setup(t, []platforms.Channel{a}, database.CreateItemInput{})

	d.ProcessPending()

	item, err := store.GetItem(id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, item.Status)
	assert.Equal(t, int32(1), a.calls.Load())
}

func TestProcessPendingHonorsNotBefore(t *testing.T) {
	a := ok("a")
	store, _, d, id := setup(t, []platforms.Channel{a}, database.CreateItemInput{
		Topic: "topic", Summary: "summary",
		ScheduledFor: time.Now().UTC().Add(time.Hour).Format(time.RFC3339),
	})

	d.ProcessPending()

	item, err := store.GetItem(id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, item.Status, "not yet eligible")
	assert.Zero(t, a.calls.Load())
}

func TestDispatchChannelAddedAfterCreationIsIgnored(t *testing.T) {
	a := ok("a")
	store, _, _, id := setup(t, []platforms.Channel{a}, database.CreateItemInput{})

	// Simulate a channel enabled after the item was created: present in
	// the dispatcher, absent from the attempt rows.
	late := ok("late")
	d := poster.NewDispatcher(store, []platforms.Channel{a, late}, &fakeReporter{}, &models.Config{})

	d.Dispatch(id)

	assert.Zero(t, late.calls.Load(), "no retroactive attempts")
	attempts, err := store.ChannelAttempts(id)
	require.NoError(t, err)
	assert.Len(t, attempts, 1)
}
