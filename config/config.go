// Package config loads the service configuration from .env, config.yaml
// and environment variables into one explicit Config value. Nothing else
// in the service reads viper directly.
package config

import (
	"fmt"
	"log"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"social-poster/models"
)

const defaultWebhookSecret = "change-me-please"

// Load reads configuration in order: .env file, config.yaml, environment
// variables. Environment variables override file settings.
func Load() (*models.Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, skipping.")
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Println("Config file not found, using environment variables and defaults.")
		} else {
			return nil, fmt.Errorf("fatal error reading config file: %w", err)
		}
	}

	var cfg models.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("db_path", "data/posts.db")
	v.SetDefault("webhook_secret", defaultWebhookSecret)
	v.SetDefault("webhook_port", 5123)
	v.SetDefault("post_times", []string{"09:00", "13:00", "18:00"})
	v.SetDefault("scan_interval", "5m")
	v.SetDefault("health_interval", "30m")
	v.SetDefault("maintenance_time", "02:00")
	v.SetDefault("audit_retention", "2160h") // 90 days
	v.SetDefault("approval_timeout", "5m")
	v.SetDefault("auto_approve", true)
	v.SetDefault("inter_channel_delay", "2s")
	v.SetDefault("dry_run", false)
}

// Validate returns the list of configuration problems. Problems naming a
// missing credential are fatal; the rest are warnings.
func Validate(cfg *models.Config) []string {
	var problems []string

	if cfg.Discord.BotToken == "" {
		problems = append(problems, "discord.bot_token is missing")
	}
	if cfg.Discord.ApprovalChannelID == "" {
		problems = append(problems, "discord.approval_channel_id is missing")
	}
	if cfg.WebhookSecret == defaultWebhookSecret {
		problems = append(problems, "webhook_secret is still the default value")
	}
	if len(cfg.Channels) == 0 {
		problems = append(problems, "no publishing channels configured")
	}
	if len(cfg.PostTimes) == 0 {
		problems = append(problems, "no post_times configured")
	}
	return problems
}
