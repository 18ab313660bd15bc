package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

// Config is the process-wide configuration, built once at startup and passed
// by reference into each component's constructor.
type Config struct {
	AppEnv    string `env:"APP_ENV" default:"development"`
	Port      string `env:"PORT" default:"8080"`
	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"text"`

	// RedisURL switches session/QR/contact storage to Redis when set.
	// Empty means in-memory storage.
	RedisURL string `env:"REDIS_URL"`

	// ScanBaseURL prefixes issued QR code scan links.
	ScanBaseURL string `env:"SCAN_BASE_URL" default:"https://ding.app/scan"`

	// EstimatedResponseSeconds is reported to visitors after a scan.
	EstimatedResponseSeconds int `env:"ESTIMATED_RESPONSE_SECONDS" default:"30"`

	// PendingSessionTTL bounds how long a session may stay pending before
	// the expiry sweeper declines it.
	PendingSessionTTL time.Duration `env:"PENDING_SESSION_TTL" default:"30s"`

	// NotifyChannelTimeout bounds each notification channel's delivery attempt.
	NotifyChannelTimeout time.Duration `env:"NOTIFY_CHANNEL_TIMEOUT" default:"5s"`

	// HeartbeatInterval drives owner-sink and relay liveness heartbeats.
	HeartbeatInterval time.Duration `env:"HEARTBEAT_INTERVAL" default:"30s"`

	// RelaySendBuffer is the per-peer outbound queue size. A peer whose
	// queue overflows is evicted.
	RelaySendBuffer int `env:"RELAY_SEND_BUFFER" default:"32"`

	// RelayMaxClientsPerGroup caps participants per video session group.
	RelayMaxClientsPerGroup int `env:"RELAY_MAX_CLIENTS_PER_GROUP" default:"2"`

	// SMS channel (Twilio). All three must be set together to enable SMS.
	TwilioAccountSID  string `env:"TWILIO_ACCOUNT_SID"`
	TwilioAuthToken   string `env:"TWILIO_AUTH_TOKEN"`
	TwilioFromNumber  string `env:"TWILIO_FROM_NUMBER"`
	SMSDefaultTargets string `env:"SMS_DEFAULT_RECIPIENTS"` // comma-separated

	// Chat webhook channel (Teams-style). Owner contacts may override.
	WebhookDefaultURL string `env:"WEBHOOK_DEFAULT_URL"`
}

// Load reads the environment (and an optional .env file) into a validated Config.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	if cfg.PendingSessionTTL <= 0 {
		return fmt.Errorf("PENDING_SESSION_TTL must be positive, got %v", cfg.PendingSessionTTL)
	}
	if cfg.NotifyChannelTimeout <= 0 {
		return fmt.Errorf("NOTIFY_CHANNEL_TIMEOUT must be positive, got %v", cfg.NotifyChannelTimeout)
	}
	if cfg.RelaySendBuffer < 1 {
		return fmt.Errorf("RELAY_SEND_BUFFER must be at least 1, got %d", cfg.RelaySendBuffer)
	}
	if cfg.RelayMaxClientsPerGroup < 2 {
		return fmt.Errorf("RELAY_MAX_CLIENTS_PER_GROUP must be at least 2, got %d", cfg.RelayMaxClientsPerGroup)
	}

	// Twilio settings are all-or-nothing
	twilioSet := 0
	for _, v := range []string{cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioFromNumber} {
		if v != "" {
			twilioSet++
		}
	}
	if twilioSet != 0 && twilioSet != 3 {
		return fmt.Errorf("TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN and TWILIO_FROM_NUMBER must be set together")
	}

	return nil
}

// SMSEnabled reports whether the SMS channel is fully configured.
func (c *Config) SMSEnabled() bool {
	return c.TwilioAccountSID != "" && c.TwilioAuthToken != "" && c.TwilioFromNumber != ""
}
