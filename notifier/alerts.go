package notifier

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"social-poster/models"
	"social-poster/platforms"
)

const (
	ColorInfo  = 0x00ff00 // Green
	ColorWarn  = 0xffff00 // Yellow
	ColorError = 0xff0000 // Red
)

// alert sends an embed to the admin channel. Delivery is fire-and-forget:
// a failed send is logged and dropped.
func (n *Notifier) alert(level, title, details string) {
	if n.cfg.Discord.AdminChannelID == "" {
		log.Printf("[%s] %s: %s", level, title, details)
		return
	}

	var color int
	switch level {
	case "WARN":
		color = ColorWarn
	case "ERROR", "CRITICAL":
		color = ColorError
	default:
		color = ColorInfo
	}

	embed := &discordgo.MessageEmbed{
		Title:     title,
		Color:     color,
		Timestamp: time.Now().Format(time.RFC3339),
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Level", Value: level, Inline: true},
			{Name: "Details", Value: details},
		},
	}

	if _, err := n.session.ChannelMessageSendEmbed(n.cfg.Discord.AdminChannelID, embed); err != nil {
		log.Printf("Error sending alert to Discord: %v", err)
	}
}

// Summary posts the per-item result rollup to the approval channel, one
// line per channel attempt.
func (n *Notifier) Summary(item *models.Item, results []platforms.Result) {
	if _, err := n.session.ChannelMessageSend(n.cfg.Discord.ApprovalChannelID, summaryText(item, results)); err != nil {
		log.Printf("Error sending summary for item %d: %v", item.ID, err)
	}
}

func summaryText(item *models.Item, results []platforms.Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📊 **Post #%d Results:**\n", item.ID)
	for _, r := range results {
		emoji := "❌"
		switch {
		case r.Success:
			emoji = "✅"
		case r.Skipped:
			emoji = "⏭"
		}
		fmt.Fprintf(&b, "%s %s\n", emoji, capitalize(r.Channel))
		if r.ExternalURL != "" {
			fmt.Fprintf(&b, "   %s\n", r.ExternalURL)
		}
	}
	return b.String()
}

// ChannelFailed alerts on a single channel failure.
func (n *Notifier) ChannelFailed(itemID int64, channel, errMsg string) {
	n.alert("ERROR",
		fmt.Sprintf("Post #%d Failed on %s", itemID, capitalize(channel)),
		fmt.Sprintf("Channel: %s\nError: %s", channel, errMsg))
}

// TotalFailure alerts when every channel failed; distinct from and in
// addition to the routine summary.
func (n *Notifier) TotalFailure(itemID int64) {
	n.alert("CRITICAL",
		fmt.Sprintf("🚨 Post #%d FAILED on ALL Channels", itemID),
		"No channel was able to publish this post. Check logs.")
}

// Crashed alerts when dispatch aborted on a storage error.
func (n *Notifier) Crashed(itemID int64, errMsg string) {
	n.alert("CRITICAL", fmt.Sprintf("Post #%d Crashed", itemID), errMsg)
}

// Health mirrors the periodic health snapshot to the admin channel.
func (n *Notifier) Health(stats *models.Stats) {
	n.alert("INFO", "Health check OK",
		fmt.Sprintf("Total posts: %d\nPending: %d",
			stats.TotalItems, stats.ByStatus[string(models.StatusPending)]))
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
