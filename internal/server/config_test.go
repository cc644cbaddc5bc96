package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConfigDefaults(t *testing.T) {
	cfg := NewConfig()

	assert.Equal(t, ":8080", cfg.Port)
	assert.EqualValues(t, 4096, cfg.MaxMessageSize)
	assert.Equal(t, 20, cfg.RateLimit.Burst)
	assert.Equal(t, time.Second, cfg.RateLimit.RefillInterval)
}

func TestSetConfigSanitizesInvalidValues(t *testing.T) {
	SetConfig(&Config{
		Port:           "",
		MaxMessageSize: -1,
		RateLimit:      RateLimitConfig{Burst: 0, RefillInterval: 0},
	})
	t.Cleanup(func() { SetConfig(nil) })

	cfg := currentConfig()
	assert.Equal(t, ":8080", cfg.Port)
	assert.EqualValues(t, 4096, cfg.MaxMessageSize)
	assert.Equal(t, 20, cfg.RateLimit.Burst)
	assert.Equal(t, time.Second, cfg.RateLimit.RefillInterval)
}

func TestNewConfigFromEnv(t *testing.T) {
	t.Setenv("CHATRELAY_PORT", ":9999")
	t.Setenv("CHATRELAY_ALLOWED_ORIGINS", "http://a.test, http://b.test")
	t.Setenv("CHATRELAY_MAX_MESSAGE_SIZE", "1024")
	t.Setenv("CHATRELAY_RATE_LIMIT_BURST", "7")
	t.Setenv("CHATRELAY_RATE_LIMIT_INTERVAL_SECONDS", "3")

	cfg := NewConfigFromEnv()
	assert.Equal(t, ":9999", cfg.Port)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.AllowedOrigins)
	assert.EqualValues(t, 1024, cfg.MaxMessageSize)
	assert.Equal(t, 7, cfg.RateLimit.Burst)
	assert.Equal(t, 3*time.Second, cfg.RateLimit.RefillInterval)
}

func TestNewConfigFromEnvIgnoresGarbage(t *testing.T) {
	t.Setenv("CHATRELAY_MAX_MESSAGE_SIZE", "not-a-number")
	t.Setenv("CHATRELAY_RATE_LIMIT_BURST", "-5")

	cfg := NewConfigFromEnv()
	assert.EqualValues(t, 4096, cfg.MaxMessageSize)
	assert.Equal(t, 20, cfg.RateLimit.Burst)
}

func TestRateLimiterRefills(t *testing.T) {
	rl := newRateLimiter(2, 20*time.Millisecond)

	assert.True(t, rl.allow())
	assert.True(t, rl.allow())
	assert.False(t, rl.allow())

	time.Sleep(30 * time.Millisecond)
	assert.True(t, rl.allow())
}
