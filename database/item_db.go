package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"social-poster/models"
)

// ErrInvalidTransition is returned when a requested status change is not
// reachable from the item's current status. This signals a programming
// contract violation, not a user error.
var ErrInvalidTransition = fmt.Errorf("invalid status transition")

// ErrItemNotFound is returned when no item exists for the given ID.
var ErrItemNotFound = fmt.Errorf("item not found")

// validTransitions enumerates every edge of the item state machine.
var validTransitions = map[models.ItemStatus][]models.ItemStatus{
	models.StatusPending:      {models.StatusApproved, models.StatusAutoApproved, models.StatusRejected},
	models.StatusApproved:     {models.StatusPosting},
	models.StatusAutoApproved: {models.StatusPosting},
	models.StatusPosting:      {models.StatusCompleted, models.StatusPartialFailure, models.StatusFailed},
}

// Store owns all persistence for items, channel attempts and the audit
// log. Every mutating method runs in a single transaction so a failing
// call leaves no partial state behind.
type Store struct {
	db *sql.DB
}

// NewStore wraps an initialized database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle for shutdown.
func (s *Store) DB() *sql.DB {
	return s.db
}

func nowUTC() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// TransitionMeta carries the decision context recorded with a transition.
type TransitionMeta struct {
	ApprovedBy      string
	ApprovalKind    models.ApprovalKind
	RejectionReason string
	ErrorMessage    string
}

// CreateItemInput holds the caller-supplied fields for a new item.
type CreateItemInput struct {
	Topic        string
	Summary      string
	FullContent  string
	Link         string
	ImageURL     string
	VideoURL     string
	Priority     models.Priority
	Source       string
	Tags         []string
	ScheduledFor string
	RequestID    string
}

// CreateItem inserts a new pending item, one pending channel attempt per
// enabled channel, and the "created" audit entry. Channels enabled after
// creation never get a retroactive attempt row.
func (s *Store) CreateItem(in CreateItemInput, channels []string) (int64, error) {
	now := nowUTC()
	if in.Priority == "" {
		in.Priority = models.PriorityNormal
	}
	if in.Source == "" {
		in.Source = "webhook"
	}
	tagsJSON, err := json.Marshal(in.Tags)
	if err != nil {
		return 0, fmt.Errorf("failed to encode tags: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`
        INSERT INTO items
            (topic, summary, full_content, link, image_url, video_url,
             status, priority, source, tags, scheduled_for, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, 'pending', ?, ?, ?, ?, ?, ?)`,
		in.Topic, in.Summary, in.FullContent, in.Link, in.ImageURL, in.VideoURL,
		in.Priority, in.Source, string(tagsJSON), in.ScheduledFor, now, now,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert item: %w", err)
	}
	itemID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get item id: %w", err)
	}

	for _, channel := range channels {
		_, err := tx.Exec(`
            INSERT INTO channel_attempts (item_id, channel, status, created_at, updated_at)
            VALUES (?, ?, 'pending', ?, ?)`,
			itemID, channel, now, now,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to insert attempt for channel %s: %w", channel, err)
		}
	}

	details, _ := json.Marshal(map[string]any{
		"source":     in.Source,
		"channels":   channels,
		"priority":   in.Priority,
		"request_id": in.RequestID,
	})
	if err := appendAudit(tx, itemID, "created", string(details), now); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit item creation: %w", err)
	}
	return itemID, nil
}

// GetItem fetches a single item by ID.
func (s *Store) GetItem(id int64) (*models.Item, error) {
	row := s.db.QueryRow(`SELECT `+itemColumns+` FROM items WHERE id = ?`, id)
	item, err := scanItem(row)
	if err == sql.ErrNoRows {
		return nil, ErrItemNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get item %d: %w", id, err)
	}
	return item, nil
}

// Transition moves an item to newStatus after validating the edge against
// the state machine, stamps approval/completion timestamps, and appends
// one audit entry with the full decision context.
func (s *Store) Transition(id int64, newStatus models.ItemStatus, meta TransitionMeta) error {
	now := nowUTC()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var current models.ItemStatus
	err = tx.QueryRow(`SELECT status FROM items WHERE id = ?`, id).Scan(&current)
	if err == sql.ErrNoRows {
		return ErrItemNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to read status of item %d: %w", id, err)
	}

	if !transitionAllowed(current, newStatus) {
		return fmt.Errorf("%w: %s -> %s (item %d)", ErrInvalidTransition, current, newStatus, id)
	}

	fields := "status = ?, updated_at = ?"
	values := []any{newStatus, now}

	if meta.ApprovedBy != "" {
		fields += ", approved_by = ?"
		values = append(values, meta.ApprovedBy)
	}
	if meta.ApprovalKind != "" {
		fields += ", approval_type = ?, approved_at = ?"
		values = append(values, meta.ApprovalKind, now)
	}
	if meta.RejectionReason != "" {
		fields += ", rejection_reason = ?"
		values = append(values, meta.RejectionReason)
	}
	if meta.ErrorMessage != "" {
		fields += ", error_message = ?"
		values = append(values, meta.ErrorMessage)
	}
	switch newStatus {
	case models.StatusCompleted, models.StatusPartialFailure, models.StatusFailed:
		fields += ", completed_at = ?"
		values = append(values, now)
	}
	values = append(values, id)

	if _, err := tx.Exec(`UPDATE items SET `+fields+` WHERE id = ?`, values...); err != nil {
		return fmt.Errorf("failed to update item %d: %w", id, err)
	}

	details, _ := json.Marshal(map[string]any{
		"approved_by":      meta.ApprovedBy,
		"approval_type":    meta.ApprovalKind,
		"rejection_reason": meta.RejectionReason,
		"error":            meta.ErrorMessage,
	})
	if err := appendAudit(tx, id, string(newStatus), string(details), now); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transition of item %d: %w", id, err)
	}
	return nil
}

func transitionAllowed(from, to models.ItemStatus) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// RecordChannelOutcome updates the matching channel attempt, bumps the
// retry counter on failure, and appends a "channel_<status>" audit entry.
func (s *Store) RecordChannelOutcome(itemID int64, channel string, status models.AttemptStatus, externalID, externalURL, errMsg string) error {
	now := nowUTC()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	fields := "status = ?, updated_at = ?"
	values := []any{status, now}

	if externalID != "" {
		fields += ", external_post_id = ?"
		values = append(values, externalID)
	}
	if externalURL != "" {
		fields += ", external_url = ?"
		values = append(values, externalURL)
	}
	if status == models.AttemptPublished {
		fields += ", posted_at = ?"
		values = append(values, now)
	}
	if errMsg != "" {
		fields += ", error_message = ?"
		values = append(values, errMsg)
	}
	// The counter tracks failures, not error messages; a failure recorded
	// without one still counts.
	if status == models.AttemptFailed {
		fields += ", retry_count = retry_count + 1"
	}
	values = append(values, itemID, channel)

	res, err := tx.Exec(`UPDATE channel_attempts SET `+fields+` WHERE item_id = ? AND channel = ?`, values...)
	if err != nil {
		return fmt.Errorf("failed to update attempt %s for item %d: %w", channel, itemID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("no attempt row for item %d channel %s", itemID, channel)
	}

	details, _ := json.Marshal(map[string]any{
		"channel":          channel,
		"external_post_id": externalID,
		"error":            errMsg,
	})
	if err := appendAudit(tx, itemID, "channel_"+string(status), string(details), now); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit channel outcome for item %d: %w", itemID, err)
	}
	return nil
}

// ApprovedReady returns items approved (either kind) whose not-before time
// has passed, ordered high → normal → low priority, oldest first within a
// tier. This ordering is the scan's only fairness guarantee.
func (s *Store) ApprovedReady(now time.Time) ([]models.Item, error) {
	rows, err := s.db.Query(`
        SELECT `+itemColumns+` FROM items
        WHERE status IN ('approved', 'auto_approved')
        AND (scheduled_for = '' OR scheduled_for <= ?)
        ORDER BY
            CASE priority
                WHEN 'high' THEN 1
                WHEN 'normal' THEN 2
                WHEN 'low' THEN 3
            END,
            created_at ASC`,
		now.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query approved items: %w", err)
	}
	defer rows.Close()
	return scanItems(rows)
}

// PendingApproval returns items still waiting for a decision, oldest
// first, so a restarted process can re-request approval.
func (s *Store) PendingApproval() ([]models.Item, error) {
	rows, err := s.db.Query(`SELECT ` + itemColumns + ` FROM items WHERE status = 'pending' ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending items: %w", err)
	}
	defer rows.Close()
	return scanItems(rows)
}

// ChannelAttempts returns every attempt row for an item.
func (s *Store) ChannelAttempts(itemID int64) ([]models.ChannelAttempt, error) {
	rows, err := s.db.Query(`
        SELECT id, item_id, channel, status, external_post_id, external_url,
               posted_at, error_message, retry_count, created_at, updated_at
        FROM channel_attempts WHERE item_id = ?`, itemID)
	if err != nil {
		return nil, fmt.Errorf("failed to query attempts for item %d: %w", itemID, err)
	}
	defer rows.Close()

	var attempts []models.ChannelAttempt
	for rows.Next() {
		var a models.ChannelAttempt
		if err := rows.Scan(&a.ID, &a.ItemID, &a.Channel, &a.Status, &a.ExternalID,
			&a.ExternalURL, &a.PostedAt, &a.ErrorMessage, &a.RetryCount,
			&a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan attempt: %w", err)
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

const itemColumns = `id, topic, summary, full_content, link, image_url, video_url,
    status, priority, approved_by, approved_at, approval_type, rejection_reason,
    source, tags, created_at, updated_at, scheduled_for, completed_at, error_message`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (*models.Item, error) {
	var it models.Item
	err := row.Scan(&it.ID, &it.Topic, &it.Summary, &it.FullContent, &it.Link,
		&it.ImageURL, &it.VideoURL, &it.Status, &it.Priority, &it.ApprovedBy,
		&it.ApprovedAt, &it.ApprovalKind, &it.RejectionReason, &it.Source,
		&it.Tags, &it.CreatedAt, &it.UpdatedAt, &it.ScheduledFor,
		&it.CompletedAt, &it.ErrorMessage)
	if err != nil {
		return nil, err
	}
	return &it, nil
}

func scanItems(rows *sql.Rows) ([]models.Item, error) {
	var items []models.Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		items = append(items, *it)
	}
	return items, rows.Err()
}

func appendAudit(tx *sql.Tx, itemID int64, action, details, timestamp string) error {
	_, err := tx.Exec(`
        INSERT INTO audit_log (item_id, action, details, timestamp)
        VALUES (?, ?, ?, ?)`,
		itemID, action, details, timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to append audit entry %q for item %d: %w", action, itemID, err)
	}
	return nil
}

// AuditTrail returns the complete audit history for an item, oldest first.
func (s *Store) AuditTrail(itemID int64) ([]models.AuditEntry, error) {
	rows, err := s.db.Query(`
        SELECT id, item_id, action, details, timestamp
        FROM audit_log WHERE item_id = ? ORDER BY id ASC`, itemID)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit trail for item %d: %w", itemID, err)
	}
	defer rows.Close()

	var entries []models.AuditEntry
	for rows.Next() {
		var e models.AuditEntry
		if err := rows.Scan(&e.ID, &e.ItemID, &e.Action, &e.Details, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
