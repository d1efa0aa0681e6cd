package models

// ItemStatus tracks an item through the publishing lifecycle.
//
//	pending → {approved, auto_approved} → posting → {completed, partial_failure, failed}
//	pending → rejected (terminal)
type ItemStatus string

const (
	StatusPending        ItemStatus = "pending"
	StatusApproved       ItemStatus = "approved"
	StatusAutoApproved   ItemStatus = "auto_approved"
	StatusRejected       ItemStatus = "rejected"
	StatusPosting        ItemStatus = "posting"
	StatusCompleted      ItemStatus = "completed"
	StatusPartialFailure ItemStatus = "partial_failure"
	StatusFailed         ItemStatus = "failed"
)

// AttemptStatus tracks a single channel's attempt for one item.
type AttemptStatus string

const (
	AttemptPending   AttemptStatus = "pending"
	AttemptPosting   AttemptStatus = "posting"
	AttemptPublished AttemptStatus = "published"
	AttemptFailed    AttemptStatus = "failed"
	AttemptSkipped   AttemptStatus = "skipped"
)

// Priority orders items within the approved-ready scan.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
	PriorityLow    Priority = "low"
)

// ApprovalKind records how an approval decision was made.
type ApprovalKind string

const (
	ApprovalManual  ApprovalKind = "manual"
	ApprovalTimeout ApprovalKind = "timeout"
)

// Item is one unit of content awaiting publication across channels.
type Item struct {
	ID          int64  `db:"id"`
	Topic       string `db:"topic"`
	Summary     string `db:"summary"`
	FullContent string `db:"full_content"`
	Link        string `db:"link"`
	ImageURL    string `db:"image_url"`
	VideoURL    string `db:"video_url"` // video is never dispatched, manual only

	Status   ItemStatus `db:"status"`
	Priority Priority   `db:"priority"`

	ApprovedBy      string       `db:"approved_by"`
	ApprovedAt      string       `db:"approved_at"`
	ApprovalKind    ApprovalKind `db:"approval_type"`
	RejectionReason string       `db:"rejection_reason"`

	Source string `db:"source"`
	Tags   string `db:"tags"` // JSON array

	CreatedAt    string `db:"created_at"`
	UpdatedAt    string `db:"updated_at"`
	ScheduledFor string `db:"scheduled_for"` // not-before; empty means dispatch anytime
	CompletedAt  string `db:"completed_at"`

	ErrorMessage string `db:"error_message"`
}

// ChannelAttempt is one row per (item, channel) pair, created with the item.
type ChannelAttempt struct {
	ID           int64         `db:"id"`
	ItemID       int64         `db:"item_id"`
	Channel      string        `db:"channel"`
	Status       AttemptStatus `db:"status"`
	ExternalID   string        `db:"external_post_id"`
	ExternalURL  string        `db:"external_url"`
	PostedAt     string        `db:"posted_at"`
	ErrorMessage string        `db:"error_message"`
	RetryCount   int           `db:"retry_count"`
	CreatedAt    string        `db:"created_at"`
	UpdatedAt    string        `db:"updated_at"`
}

// AuditEntry is append-only; once written it is never updated or deleted
// (beyond age-based pruning by maintenance).
type AuditEntry struct {
	ID        int64  `db:"id"`
	ItemID    int64  `db:"item_id"`
	Action    string `db:"action"`
	Details   string `db:"details"` // JSON with extra context
	Timestamp string `db:"timestamp"`
}

// ItemWithAttempts bundles an item with its per-channel attempt rows.
type ItemWithAttempts struct {
	Item
	Attempts []ChannelAttempt `json:"attempts"`
}

// Stats is the aggregate snapshot served by the health endpoint.
type Stats struct {
	TotalItems int                       `json:"total_items"`
	ByStatus   map[string]int            `json:"by_status"`
	ByChannel  map[string]map[string]int `json:"by_channel"`
}
