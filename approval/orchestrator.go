// Package approval owns the human-in-the-loop decision flow: it presents
// a pending item through the notification channel, arms an auto-approval
// timer, and resolves the race between the human decision and the timer
// so that exactly one continuation ever runs per item.
package approval

import (
	"fmt"
	"log"
	"sync"
	"time"

	"social-poster/database"
	"social-poster/models"
)

// Decision is one of the three ways an approval request can resolve.
type Decision int

const (
	DecisionApprove Decision = iota + 1
	DecisionReject
	DecisionAuto
)

// Continuation runs after a decision wins; invoked outside any lock.
type Continuation func(itemID int64)

// Messenger is the outbound notification channel. Send returns the handle
// later used to correlate the incoming decision with the request.
type Messenger interface {
	SendApproval(itemID int64, preview string) (handle string, err error)
	Edit(handle, text string) error
}

type pendingApproval struct {
	itemID     int64
	onApproved Continuation
	onRejected Continuation
	armedAt    time.Time
	timer      *time.Timer
}

// Orchestrator tracks outstanding approval requests. The pending table is
// process-lifetime only; entries are removed the instant a decision is
// made, and that removal is the race-resolution mechanism.
type Orchestrator struct {
	store *database.Store
	msgr  Messenger
	cfg   *models.Config

	mu      sync.Mutex
	pending map[string]*pendingApproval
}

// NewOrchestrator wires the orchestrator to its store and messenger.
func NewOrchestrator(store *database.Store, msgr Messenger, cfg *models.Config) *Orchestrator {
	return &Orchestrator{
		store:   store,
		msgr:    msgr,
		cfg:     cfg,
		pending: make(map[string]*pendingApproval),
	}
}

// RequestApproval sends the item preview with approve/reject buttons,
// registers the pending entry and arms the auto-approval timer. On send
// failure the item stays pending for a later retry; this component does
// not retry on its own.
func (o *Orchestrator) RequestApproval(itemID int64, onApproved, onRejected Continuation) error {
	item, err := o.store.GetItem(itemID)
	if err != nil {
		return fmt.Errorf("failed to load item %d for approval: %w", itemID, err)
	}

	preview := BuildPreview(item, o.cfg)
	handle, err := o.msgr.SendApproval(itemID, preview)
	if err != nil {
		return fmt.Errorf("failed to send approval request for item %d: %w", itemID, err)
	}

	// Register and arm atomically: the entry is in the table before the
	// timer can possibly observe its absence.
	o.mu.Lock()
	p := &pendingApproval{
		itemID:     itemID,
		onApproved: onApproved,
		onRejected: onRejected,
		armedAt:    time.Now(),
	}
	o.pending[handle] = p
	if o.cfg.AutoApprove {
		p.timer = time.AfterFunc(o.cfg.ApprovalTimeout, func() {
			if err := o.Resolve(handle, DecisionAuto, "system"); err != nil {
				log.Printf("Auto-approval of item %d failed: %v", itemID, err)
			}
		})
	}
	o.mu.Unlock()

	log.Printf("Approval requested for item #%d (handle %s)", itemID, handle)
	return nil
}

// take performs the atomic remove-if-present that decides the race.
// Whoever gets the entry owns the decision; everyone else is a no-op.
func (o *Orchestrator) take(handle string) (*pendingApproval, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	p, ok := o.pending[handle]
	if ok {
		delete(o.pending, handle)
	}
	return p, ok
}

// Resolve applies a decision for the given handle. Duplicate or late
// decisions (second click, timeout race lost, at-least-once redelivery)
// are dropped silently with a log note.
func (o *Orchestrator) Resolve(handle string, decision Decision, decidedBy string) error {
	p, ok := o.take(handle)
	if !ok {
		log.Printf("Decision for handle %s dropped: already resolved", handle)
		return nil
	}

	// Cancel the timer on a manual win. Losing the cancellation race is
	// benign: the fired timer finds the entry gone and gives up above.
	if decision != DecisionAuto && p.timer != nil {
		p.timer.Stop()
	}

	switch decision {
	case DecisionApprove:
		err := o.store.Transition(p.itemID, models.StatusApproved, database.TransitionMeta{
			ApprovedBy:   decidedBy,
			ApprovalKind: models.ApprovalManual,
		})
		if err != nil {
			return fmt.Errorf("failed to approve item %d: %w", p.itemID, err)
		}
		o.edit(handle, fmt.Sprintf("✅ **Approved** — item #%d is being posted...", p.itemID))
		log.Printf("Item #%d manually approved by %s", p.itemID, decidedBy)
		p.onApproved(p.itemID)

	case DecisionReject:
		err := o.store.Transition(p.itemID, models.StatusRejected, database.TransitionMeta{
			ApprovedBy:      decidedBy,
			RejectionReason: "Manually rejected via Discord",
		})
		if err != nil {
			return fmt.Errorf("failed to reject item %d: %w", p.itemID, err)
		}
		o.edit(handle, fmt.Sprintf("❌ **Rejected** — item #%d will not be posted.", p.itemID))
		log.Printf("Item #%d rejected by %s", p.itemID, decidedBy)
		p.onRejected(p.itemID)

	case DecisionAuto:
		err := o.store.Transition(p.itemID, models.StatusAutoApproved, database.TransitionMeta{
			ApprovedBy:   decidedBy,
			ApprovalKind: models.ApprovalTimeout,
		})
		if err != nil {
			return fmt.Errorf("failed to auto-approve item %d: %w", p.itemID, err)
		}
		o.edit(handle, fmt.Sprintf("⚠️ **Auto-Approved** (timeout) — item #%d is being posted...", p.itemID))
		log.Printf("Item #%d auto-approved after timeout", p.itemID)
		p.onApproved(p.itemID)

	default:
		return fmt.Errorf("unknown decision %d for handle %s", decision, handle)
	}
	return nil
}

// Outstanding reports how many approval requests are still unresolved.
func (o *Orchestrator) Outstanding() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.pending)
}

func (o *Orchestrator) edit(handle, text string) {
	if err := o.msgr.Edit(handle, text); err != nil {
		log.Printf("Failed to edit approval message %s: %v", handle, err)
	}
}
