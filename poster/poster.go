// Package poster is the dispatch engine: it fans one approved item out to
// every enabled publishing channel, records per-channel outcomes, and
// derives the item's aggregate status.
package poster

import (
	"fmt"
	"log"
	"sync"
	"time"

	"social-poster/database"
	"social-poster/models"
	"social-poster/platforms"
)

// Reporter receives dispatch outcomes for operator-facing notification.
// All calls are fire-and-forget from the dispatcher's point of view.
type Reporter interface {
	// Summary is sent once per dispatched item, whatever the outcome.
	Summary(item *models.Item, results []platforms.Result)
	// ChannelFailed fires for each channel that failed.
	ChannelFailed(itemID int64, channel, errMsg string)
	// TotalFailure fires when no channel published at all.
	TotalFailure(itemID int64)
	// Crashed fires when dispatch itself aborted on a storage error.
	Crashed(itemID int64, errMsg string)
}

// Dispatcher guarantees at-most-one concurrent dispatch per item within
// this process and contains each channel's failures to that channel.
type Dispatcher struct {
	store    *database.Store
	channels []platforms.Channel
	reporter Reporter
	cfg      *models.Config

	mu       sync.Mutex
	inflight map[int64]struct{}
}

// NewDispatcher builds a dispatcher over the given channel adapters,
// which are attempted in slice order.
func NewDispatcher(store *database.Store, channels []platforms.Channel, reporter Reporter, cfg *models.Config) *Dispatcher {
	return &Dispatcher{
		store:    store,
		channels: channels,
		reporter: reporter,
		cfg:      cfg,
		inflight: make(map[int64]struct{}),
	}
}

// tryAcquire atomically checks and inserts the item into the in-flight
// set. The lock covers only the check-and-mutate, never any I/O.
func (d *Dispatcher) tryAcquire(itemID int64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, busy := d.inflight[itemID]; busy {
		return false
	}
	d.inflight[itemID] = struct{}{}
	return true
}

func (d *Dispatcher) release(itemID int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.inflight, itemID)
}

// Dispatch drives one approved item through every enabled channel. A
// concurrent call for the same item is a logged no-op, which is what
// makes overlapping scheduler fires and approval continuations safe.
func (d *Dispatcher) Dispatch(itemID int64) {
	if !d.tryAcquire(itemID) {
		log.Printf("Item #%d already being dispatched, skipping", itemID)
		return
	}
	defer d.release(itemID)

	if err := d.dispatch(itemID); err != nil {
		log.Printf("Dispatch of item #%d aborted: %v", itemID, err)
		// Best effort: move the item to failed so it is not silently
		// stuck in posting. Invalid-transition errors here just mean we
		// never reached posting.
		if terr := d.store.Transition(itemID, models.StatusFailed, database.TransitionMeta{
			ErrorMessage: err.Error(),
		}); terr != nil {
			log.Printf("Could not mark item #%d failed: %v", itemID, terr)
		}
		d.reporter.Crashed(itemID, err.Error())
	}
}

func (d *Dispatcher) dispatch(itemID int64) error {
	item, err := d.store.GetItem(itemID)
	if err != nil {
		return fmt.Errorf("failed to load item: %w", err)
	}

	if err := d.store.Transition(itemID, models.StatusPosting, database.TransitionMeta{}); err != nil {
		return fmt.Errorf("failed to enter posting: %w", err)
	}

	attempts, err := d.store.ChannelAttempts(itemID)
	if err != nil {
		return fmt.Errorf("failed to load attempts: %w", err)
	}
	// Attempt rows are snapshotted at creation time; channels enabled
	// afterwards never publish old items retroactively.
	attemptFor := make(map[string]models.ChannelAttempt, len(attempts))
	for _, a := range attempts {
		attemptFor[a.Channel] = a
	}

	var results []platforms.Result
	published, failed := 0, 0

	for _, channel := range d.channels {
		name := channel.Name()
		attempt, ok := attemptFor[name]
		if !ok {
			continue
		}
		if attempt.Status == models.AttemptPublished {
			// Re-dispatch after a partial failure; this channel is done.
			published++
			results = append(results, platforms.Result{
				Success: true, Channel: name,
				ExternalID: attempt.ExternalID, ExternalURL: attempt.ExternalURL,
			})
			continue
		}

		spec := channel.Spec()
		if spec.RequiresImage && item.ImageURL == "" {
			msg := "channel requires media and no image is available"
			if err := d.store.RecordChannelOutcome(itemID, name, models.AttemptSkipped, "", "", msg); err != nil {
				return fmt.Errorf("failed to record skip for %s: %w", name, err)
			}
			results = append(results, platforms.Result{Channel: name, Skipped: true, Error: msg})
			log.Printf("  - %s: skipped (%s)", name, msg)
			continue
		}

		text := platforms.BuildText(item, spec)
		log.Printf("Posting item #%d to %s...", itemID, name)
		if err := d.store.RecordChannelOutcome(itemID, name, models.AttemptPosting, "", "", ""); err != nil {
			return fmt.Errorf("failed to mark %s posting: %w", name, err)
		}

		result := post(channel, text, item.ImageURL, item.Link)
		results = append(results, result)

		if result.Success {
			published++
			if err := d.store.RecordChannelOutcome(itemID, name, models.AttemptPublished,
				result.ExternalID, result.ExternalURL, ""); err != nil {
				return fmt.Errorf("failed to record publish for %s: %w", name, err)
			}
			log.Printf("  ✓ %s: %s", name, firstNonEmpty(result.ExternalURL, result.ExternalID))
		} else {
			failed++
			if err := d.store.RecordChannelOutcome(itemID, name, models.AttemptFailed,
				"", "", result.Error); err != nil {
				return fmt.Errorf("failed to record failure for %s: %w", name, err)
			}
			log.Printf("  ✗ %s: %s", name, result.Error)
			d.reporter.ChannelFailed(itemID, name, result.Error)
		}

		// Politeness throttle between channels, not a correctness need.
		if d.cfg.InterChannelDelay > 0 {
			time.Sleep(d.cfg.InterChannelDelay)
		}
	}

	// Skipped attempts are excluded from both sides of the ratio: an item
	// whose only channels required missing media is not a failure.
	var aggregate models.ItemStatus
	switch {
	case failed == 0:
		aggregate = models.StatusCompleted
	case published == 0:
		aggregate = models.StatusFailed
	default:
		aggregate = models.StatusPartialFailure
	}

	meta := database.TransitionMeta{}
	if aggregate == models.StatusFailed {
		meta.ErrorMessage = "all channels failed"
	}
	if err := d.store.Transition(itemID, aggregate, meta); err != nil {
		return fmt.Errorf("failed to record aggregate status: %w", err)
	}
	log.Printf("Item #%d %s: %d published, %d failed of %d channels",
		itemID, aggregate, published, failed, len(results))

	if aggregate == models.StatusFailed {
		d.reporter.TotalFailure(itemID)
	}
	d.reporter.Summary(item, results)
	return nil
}

// post invokes the adapter with panic containment: a misbehaving channel
// is recorded as failed and never aborts its siblings.
func post(c platforms.Channel, text, imageURL, link string) (result platforms.Result) {
	defer func() {
		if r := recover(); r != nil {
			result = platforms.Result{
				Channel: c.Name(),
				Error:   fmt.Sprintf("unexpected error: %v", r),
			}
		}
	}()
	return c.Post(text, imageURL, link)
}

// ProcessPending scans for approved-but-undispatched items and drives
// each through Dispatch. Safe to call from overlapping cadences.
func (d *Dispatcher) ProcessPending() {
	items, err := d.store.ApprovedReady(time.Now())
	if err != nil {
		log.Printf("Failed to scan for approved items: %v", err)
		return
	}
	if len(items) > 0 {
		log.Printf("Found %d approved items to dispatch", len(items))
	}
	for _, item := range items {
		d.Dispatch(item.ID)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
