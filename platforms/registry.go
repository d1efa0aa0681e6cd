package platforms

import (
	"fmt"
	"log"
	"sort"

	"github.com/bwmarrin/discordgo"

	"social-poster/models"
)

// Build constructs the enabled channel adapters from configuration, in a
// stable dispatch order. Channels with incomplete configuration are
// logged and left out rather than failing startup.
func Build(cfg *models.Config, session *discordgo.Session) []Channel {
	names := make([]string, 0, len(cfg.Channels))
	for name := range cfg.Channels {
		names = append(names, name)
	}
	sort.Strings(names)

	var channels []Channel
	for _, name := range names {
		cc := cfg.Channels[name]
		adapter, err := build(name, cc, session)
		if err != nil {
			log.Printf("Channel %s disabled: %v", name, err)
			continue
		}
		if cfg.DryRun {
			adapter = &DryRunChannel{Wrapped: adapter}
		}
		channels = append(channels, adapter)
	}
	return channels
}

func build(name string, cc models.ChannelConfig, session *discordgo.Session) (Channel, error) {
	switch cc.Kind {
	case "discord":
		if cc.ChannelID == "" {
			return nil, fmt.Errorf("missing channel_id")
		}
		if session == nil {
			return nil, fmt.Errorf("no discord session")
		}
		return NewDiscordChannel(name, session, cc.ChannelID), nil
	case "webhook":
		if cc.Endpoint == "" {
			return nil, fmt.Errorf("missing endpoint")
		}
		return NewWebhookChannel(name, cc.Endpoint, cc.Secret), nil
	default:
		return nil, fmt.Errorf("unknown channel kind %q", cc.Kind)
	}
}

// Names returns the channel names in dispatch order.
func Names(channels []Channel) []string {
	names := make([]string, len(channels))
	for i, c := range channels {
		names[i] = c.Name()
	}
	return names
}

// DryRunChannel wraps an adapter so nothing reaches the outside world.
// Outcomes are recorded as published with a sentinel external ID.
type DryRunChannel struct {
	Wrapped Channel
}

func (d *DryRunChannel) Name() string {
	return d.Wrapped.Name()
}

func (d *DryRunChannel) Spec() Spec {
	return d.Wrapped.Spec()
}

func (d *DryRunChannel) Post(text, imageURL, link string) Result {
	log.Printf("DRY RUN: would post %d chars to %s", len([]rune(text)), d.Wrapped.Name())
	return Result{Success: true, Channel: d.Wrapped.Name(), ExternalID: "dry-run"}
}
