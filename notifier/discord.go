// Package notifier is the Discord surface of the service: approval
// previews with decision buttons, decision interaction handling, and the
// operator alert channel.
package notifier

import (
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/bwmarrin/discordgo"

	"social-poster/approval"
	"social-poster/models"
)

// Notifier sends approval requests and alerts through Discord. It
// implements approval.Messenger and poster.Reporter.
type Notifier struct {
	session *discordgo.Session
	cfg     *models.Config
}

// New builds a Notifier over an open Discord session.
func New(session *discordgo.Session, cfg *models.Config) *Notifier {
	return &Notifier{session: session, cfg: cfg}
}

// SendApproval posts the preview with Approve/Reject buttons and returns
// the message ID as the approval handle.
func (n *Notifier) SendApproval(itemID int64, preview string) (string, error) {
	components := []discordgo.MessageComponent{
		discordgo.ActionsRow{
			Components: []discordgo.MessageComponent{
				discordgo.Button{
					Label:    "✅ Approve & Post",
					Style:    discordgo.SuccessButton,
					CustomID: fmt.Sprintf("approve:%d", itemID),
				},
				discordgo.Button{
					Label:    "❌ Reject",
					Style:    discordgo.DangerButton,
					CustomID: fmt.Sprintf("reject:%d", itemID),
				},
			},
		},
	}
	if n.cfg.AutoApprove {
		components = append(components, discordgo.ActionsRow{
			Components: []discordgo.MessageComponent{
				discordgo.Button{
					Label:    fmt.Sprintf("⏱ Auto-posts in %s", n.cfg.ApprovalTimeout),
					Style:    discordgo.SecondaryButton,
					CustomID: fmt.Sprintf("info:%d", itemID),
					Disabled: true,
				},
			},
		})
	}

	msg, err := n.session.ChannelMessageSendComplex(n.cfg.Discord.ApprovalChannelID, &discordgo.MessageSend{
		Content:    preview,
		Components: components,
	})
	if err != nil {
		return "", fmt.Errorf("failed to send approval message: %w", err)
	}
	return msg.ID, nil
}

// Edit rewrites a previously sent approval message and strips its
// buttons so a resolved request can no longer be clicked.
func (n *Notifier) Edit(handle, text string) error {
	empty := []discordgo.MessageComponent{}
	_, err := n.session.ChannelMessageEditComplex(&discordgo.MessageEdit{
		Channel:    n.cfg.Discord.ApprovalChannelID,
		ID:         handle,
		Content:    &text,
		Components: &empty,
	})
	if err != nil {
		return fmt.Errorf("failed to edit message %s: %w", handle, err)
	}
	return nil
}

// InteractionHandler routes button presses to the orchestrator. Duplicate
// deliveries are harmless: Resolve drops decisions for handles it no
// longer tracks.
func InteractionHandler(orch *approval.Orchestrator) func(s *discordgo.Session, i *discordgo.InteractionCreate) {
	return func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		if i.Type != discordgo.InteractionMessageComponent {
			return
		}

		customID := i.MessageComponentData().CustomID
		action, itemID, ok := parseCustomID(customID)
		if !ok {
			log.Printf("Ignoring malformed component ID %q", customID)
			return
		}

		var decision approval.Decision
		switch action {
		case "approve":
			decision = approval.DecisionApprove
		case "reject":
			decision = approval.DecisionReject
		default:
			return
		}

		// Acknowledge immediately; the edit in Resolve carries the
		// visible feedback.
		if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseDeferredMessageUpdate,
		}); err != nil {
			log.Printf("Failed to ack interaction for item %d: %v", itemID, err)
		}

		handle := i.Message.ID
		decidedBy := interactionUser(i)
		// Dispatch continuations can block on network calls; keep the
		// gateway handler free.
		go func() {
			if err := orch.Resolve(handle, decision, decidedBy); err != nil {
				log.Printf("Failed to resolve decision for item %d: %v", itemID, err)
			}
		}()
	}
}

func parseCustomID(customID string) (action string, itemID int64, ok bool) {
	parts := strings.SplitN(customID, ":", 2)
	if len(parts) != 2 {
		return "", 0, false
	}
	id, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return "", 0, false
	}
	return parts[0], id, true
}

func interactionUser(i *discordgo.InteractionCreate) string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.Username
	}
	if i.User != nil {
		return i.User.Username
	}
	return "unknown"
}
