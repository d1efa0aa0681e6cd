package platforms

import "social-poster/models"

// BuildText renders an item into channel-shaped text. The output never
// exceeds the spec's rune limit, and when the link policy is inline the
// full link survives truncation untouched.
func BuildText(item *models.Item, spec Spec) string {
	body := item.Topic + "\n\n" + item.Summary
	if spec.IncludeBody && item.FullContent != "" {
		body += "\n\n" + item.FullContent
	}

	suffix := ""
	if item.Link != "" {
		switch spec.Links {
		case LinkInline:
			suffix = "\n\n🔗 " + item.Link
		case LinkReference:
			suffix = "\n\n🔗 Link in bio"
		}
	}

	budget := spec.MaxLength - len([]rune(suffix))
	if budget < 0 {
		// A link longer than the whole limit; nothing sensible fits, so
		// ship the truncated link alone.
		return truncate(item.Link, spec.MaxLength)
	}
	return truncate(body, budget) + suffix
}

// truncate cuts text to max runes, ellipsizing when anything is dropped.
func truncate(text string, max int) string {
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	if max <= 3 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}
