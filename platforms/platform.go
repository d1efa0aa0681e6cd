// Package platforms defines the publishing channel boundary: the adapter
// interface every channel implements, the per-channel text specs, and the
// registry that builds enabled adapters from configuration.
package platforms

// Result is the structured outcome of one publishing attempt. Ordinary
// failures (auth expiry, rate limits, rejected content) come back here,
// never as a panic; the dispatcher tolerates panics anyway.
type Result struct {
	Success     bool
	Channel     string
	ExternalID  string
	ExternalURL string
	Error       string
	// Skipped marks a channel that was never attempted (missing media);
	// distinct from a failure in summaries and aggregation.
	Skipped bool
}

// LinkMode is a channel's fixed policy for handling an item's link.
type LinkMode int

const (
	// LinkInline appends the full link to the text.
	LinkInline LinkMode = iota
	// LinkReference replaces the link with a "link in bio" style marker,
	// for channels whose captions do not support clickable links.
	LinkReference
	// LinkNone ignores the link entirely.
	LinkNone
)

// Spec describes a channel's fixed formatting constraints.
type Spec struct {
	// MaxLength is the hard character (rune) limit for the channel.
	MaxLength int
	// Links is the channel's link policy.
	Links LinkMode
	// IncludeBody appends the item's long-form body when it fits.
	IncludeBody bool
	// RequiresImage marks media-first channels; dispatch skips them when
	// the item carries no image reference.
	RequiresImage bool
}

// Channel is one independent publishing destination.
type Channel interface {
	// Name identifies the channel in configuration and attempt rows.
	Name() string
	// Spec returns the channel's formatting constraints.
	Spec() Spec
	// Post attempts to publish. imageURL and link may be empty.
	Post(text, imageURL, link string) Result
}
