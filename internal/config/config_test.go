package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.AppEnv)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 30*time.Second, cfg.PendingSessionTTL)
	assert.Equal(t, 5*time.Second, cfg.NotifyChannelTimeout)
	assert.Equal(t, 32, cfg.RelaySendBuffer)
	assert.Equal(t, 2, cfg.RelayMaxClientsPerGroup)
	assert.Equal(t, 30, cfg.EstimatedResponseSeconds)
	assert.False(t, cfg.SMSEnabled())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PENDING_SESSION_TTL", "45s")
	t.Setenv("RELAY_SEND_BUFFER", "64")
	t.Setenv("LOG_FORMAT", "json")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 45*time.Second, cfg.PendingSessionTTL)
	assert.Equal(t, 64, cfg.RelaySendBuffer)
	assert.Equal(t, "json", cfg.LogFormat)
}

func TestLoad_PartialTwilioRejected(t *testing.T) {
	t.Setenv("TWILIO_ACCOUNT_SID", "AC123")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TWILIO_ACCOUNT_SID")
}

func TestLoad_FullTwilioEnablesSMS(t *testing.T) {
	t.Setenv("TWILIO_ACCOUNT_SID", "AC123")
	t.Setenv("TWILIO_AUTH_TOKEN", "secret")
	t.Setenv("TWILIO_FROM_NUMBER", "+15550100")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.SMSEnabled())
}

func TestLoad_InvalidDurations(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"zero ttl", "PENDING_SESSION_TTL", "0s"},
		{"negative channel timeout", "NOTIFY_CHANNEL_TIMEOUT", "-1s"},
		{"zero send buffer", "RELAY_SEND_BUFFER", "0"},
		{"single-client group", "RELAY_MAX_CLIENTS_PER_GROUP", "1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
