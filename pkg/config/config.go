// Package config loads cardbot's process configuration from the environment.
// It is read once at startup and treated as read-only afterwards.
package config

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
)

// Config is the full process configuration.
type Config struct {
	Lark     LarkConfig
	Cards    CardConfig
	Bot      BotConfig
	Monitor  MonitorConfig
	Schedule ScheduleConfig
	Tracing  TracingConfig

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// LarkConfig holds open-platform credentials. Values are passed through unvalidated.
type LarkConfig struct {
	AppID             string `env:"APP_ID"`
	AppSecret         string `env:"APP_SECRET"`
	BaseDomain        string `env:"BASE_DOMAIN" envDefault:"https://open.feishu.cn"`
	VerificationToken string `env:"VERIFICATION_TOKEN"`
	EncryptKey        string `env:"ENCRYPT_KEY"`
}

// CardConfig holds card template ids configured in the card builder.
type CardConfig struct {
	Welcome   string `env:"WELCOME_CARD_ID"`
	Alarm     string `env:"ALARM_CARD_ID"`
	Resolved  string `env:"RESOLVED_CARD_ID"`
	Approving string `env:"APPROVING_CARD_ID"`
	Approved  string `env:"APPROVED_CARD_ID"`
}

// BotConfig selects the bot family and where its profile comes from.
type BotConfig struct {
	Family      string `env:"BOT_FAMILY" envDefault:"alarm"`
	ProfilesDir string `env:"PROFILES_DIR"`
	// OutboundBuffer bounds the fire-and-forget send queue.
	OutboundBuffer int `env:"OUTBOUND_BUFFER" envDefault:"100"`
}

// MonitorConfig controls the local monitor server. Empty Addr disables it.
type MonitorConfig struct {
	Addr string `env:"MONITOR_ADDR"`
	// APIKey, when set, is required on every route except /api/health.
	APIKey string `env:"MONITOR_API_KEY"`
}

// ScheduleConfig drives cron-triggered alarm cards.
type ScheduleConfig struct {
	AlarmCron string   `env:"ALARM_SCHEDULE"`
	ChatIDs   []string `env:"ALARM_CHAT_IDS" envSeparator:","`
}

// TracingConfig enables OpenTelemetry export when Endpoint is set.
type TracingConfig struct {
	Endpoint string `env:"OTEL_ENDPOINT"`
	Enabled  bool   `env:"OTEL_ENABLED" envDefault:"true"`
}

// Load parses the environment into a Config.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.Bot.Family = NormalizeFamily(cfg.Bot.Family)
	if cfg.Bot.OutboundBuffer <= 0 {
		cfg.Bot.OutboundBuffer = 100
	}
	cfg.Schedule.ChatIDs = compact(cfg.Schedule.ChatIDs)
	return &cfg, nil
}

// NormalizeFamily folds a bot family name to the form profiles are
// registered under.
func NormalizeFamily(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// SetFamily overrides the configured family when name is not blank.
func (c *Config) SetFamily(name string) {
	if f := NormalizeFamily(name); f != "" {
		c.Bot.Family = f
	}
}

// Validate reports missing values the long-connection transport cannot start without.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Lark.AppID) == "" || strings.TrimSpace(c.Lark.AppSecret) == "" {
		return fmt.Errorf("APP_ID and APP_SECRET are required")
	}
	return nil
}

func compact(in []string) []string {
	out := in[:0]
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
