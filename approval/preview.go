package approval

import (
	"fmt"
	"strings"

	"social-poster/models"
)

// BuildPreview renders the approval request shown to the reviewer.
func BuildPreview(item *models.Item, cfg *models.Config) string {
	var b strings.Builder

	b.WriteString("🚀 **New Post Ready for Approval**\n\n")
	fmt.Fprintf(&b, "📝 **Topic:** %s\n\n", item.Topic)
	fmt.Fprintf(&b, "📄 **Summary:**\n%s\n", excerpt(item.Summary, 500))

	if item.Link != "" {
		fmt.Fprintf(&b, "\n🔗 **Link:** %s\n", item.Link)
	}
	if item.ImageURL != "" {
		fmt.Fprintf(&b, "🖼 **Image:** %s\n", excerpt(item.ImageURL, 80))
	}
	if item.VideoURL != "" {
		b.WriteString("🎬 **Video:** (manual posting required)\n")
	}

	fmt.Fprintf(&b, "\n📊 **Priority:** %s\n", strings.ToUpper(string(item.Priority)))
	fmt.Fprintf(&b, "📡 **Channels:** %s\n", strings.Join(cfg.EnabledChannels, ", "))

	if cfg.AutoApprove {
		fmt.Fprintf(&b, "\n⏱ Auto-approval in **%s**", cfg.ApprovalTimeout)
	}
	return b.String()
}

func excerpt(text string, max int) string {
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max]) + "..."
}
