package models

import "time"

// Config is the explicit configuration value passed to every component at
// construction. Nothing outside the config package reads viper directly,
// so tests can run multiple independent instances in parallel.
type Config struct {
	DBPath string `mapstructure:"db_path"`

	Discord DiscordConfig `mapstructure:"discord"`

	// Channels enabled at startup, in dispatch order. Derived from the
	// per-channel configuration, not set directly.
	EnabledChannels []string `mapstructure:"-"`

	Channels map[string]ChannelConfig `mapstructure:"channels"`

	// Webhook ingress.
	WebhookSecret string `mapstructure:"webhook_secret"`
	WebhookPort   int    `mapstructure:"webhook_port"`

	// Scheduling. PostTimes are "HH:MM" clock times.
	PostTimes       []string      `mapstructure:"post_times"`
	ScanInterval    time.Duration `mapstructure:"scan_interval"`
	HealthInterval  time.Duration `mapstructure:"health_interval"`
	MaintenanceTime string        `mapstructure:"maintenance_time"`
	AuditRetention  time.Duration `mapstructure:"audit_retention"`

	// Approval.
	ApprovalTimeout time.Duration `mapstructure:"approval_timeout"`
	AutoApprove     bool          `mapstructure:"auto_approve"`

	// Dispatch.
	InterChannelDelay time.Duration `mapstructure:"inter_channel_delay"`
	DryRun            bool          `mapstructure:"dry_run"`
}

// DiscordConfig holds the bot credentials and the two channels the bot
// talks to: approvals (previews + buttons) and admin (alerts, health).
type DiscordConfig struct {
	BotToken          string `mapstructure:"bot_token"`
	ApprovalChannelID string `mapstructure:"approval_channel_id"`
	AdminChannelID    string `mapstructure:"admin_channel_id"`
}

// ChannelConfig configures one publishing channel adapter.
type ChannelConfig struct {
	// Kind selects the adapter implementation: "discord" posts to a
	// Discord channel, "webhook" POSTs signed JSON to an endpoint.
	Kind string `mapstructure:"kind"`

	// Discord adapter.
	ChannelID string `mapstructure:"channel_id"`

	// Webhook adapter.
	Endpoint string `mapstructure:"endpoint"`
	Secret   string `mapstructure:"secret"`
}
