package platforms

import (
	"fmt"

	"github.com/bwmarrin/discordgo"
)

// DiscordChannel publishes items as announcements to a Discord channel.
type DiscordChannel struct {
	name      string
	session   *discordgo.Session
	channelID string
}

// NewDiscordChannel builds an announce adapter bound to one channel ID.
func NewDiscordChannel(name string, session *discordgo.Session, channelID string) *DiscordChannel {
	return &DiscordChannel{name: name, session: session, channelID: channelID}
}

func (d *DiscordChannel) Name() string {
	return d.name
}

func (d *DiscordChannel) Spec() Spec {
	// Discord's message limit, link inline, long-form body welcome.
	return Spec{MaxLength: 2000, Links: LinkInline, IncludeBody: true}
}

func (d *DiscordChannel) Post(text, imageURL, link string) Result {
	send := &discordgo.MessageSend{Content: text}
	if imageURL != "" {
		send.Embed = &discordgo.MessageEmbed{
			Image: &discordgo.MessageEmbedImage{URL: imageURL},
		}
	}

	msg, err := d.session.ChannelMessageSendComplex(d.channelID, send)
	if err != nil {
		return Result{
			Channel: d.name,
			Error:   fmt.Sprintf("discord send failed: %v", err),
		}
	}

	result := Result{Success: true, Channel: d.name, ExternalID: msg.ID}
	if msg.GuildID != "" {
		result.ExternalURL = fmt.Sprintf("https://discord.com/channels/%s/%s/%s",
			msg.GuildID, d.channelID, msg.ID)
	}
	return result
}
