package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{
		"PORT", "STORE", "MONGO_DB", "REDIS_ADDR", "MQTT_BROKER",
		"LOCATION_PROMPT_INTERVAL", "DRIVER_PROMPT_INTERVAL", "LOCATION_HISTORY_LIMIT",
		"RATE_LIMIT_PER_MINUTE",
	} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, StoreMongo, cfg.Store)
	assert.Equal(t, "fleet", cfg.MongoDB)
	assert.Equal(t, 4*time.Second, cfg.LocationPromptInterval)
	assert.Equal(t, 2*time.Second, cfg.DriverPromptInterval)
	assert.Equal(t, 1000, cfg.LocationHistoryLimit)
	assert.Equal(t, 300, cfg.RateLimitPerMinute)
	assert.Empty(t, cfg.RedisAddr)
	assert.Empty(t, cfg.MQTTBroker)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "5000")
	t.Setenv("STORE", "memory")
	t.Setenv("LOCATION_PROMPT_INTERVAL", "8s")
	t.Setenv("DRIVER_PROMPT_INTERVAL", "500ms")
	t.Setenv("LOCATION_HISTORY_LIMIT", "0")
	t.Setenv("REDIS_ADDR", "localhost:6379")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "5000", cfg.Port)
	assert.Equal(t, StoreMemory, cfg.Store)
	assert.Equal(t, 8*time.Second, cfg.LocationPromptInterval)
	assert.Equal(t, 500*time.Millisecond, cfg.DriverPromptInterval)
	assert.Equal(t, 0, cfg.LocationHistoryLimit)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name, key, value string
	}{
		{"bad duration", "LOCATION_PROMPT_INTERVAL", "soon"},
		{"zero duration", "DRIVER_PROMPT_INTERVAL", "0s"},
		{"bad int", "LOCATION_HISTORY_LIMIT", "many"},
		{"negative history", "LOCATION_HISTORY_LIMIT", "-5"},
		{"unknown store", "STORE", "postgres"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
