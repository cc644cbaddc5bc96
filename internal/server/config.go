// Package server provides runtime configuration with environment loading,
// validation, and sane defaults.
package server

import (
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateLimitConfig bounds how many inbound events a single connection may send:
// Burst events, refilled over RefillInterval. Typing indicators are chatty, so
// the defaults are generous.
type RateLimitConfig struct {
	Burst          int
	RefillInterval time.Duration
}

// Config holds the relay's runtime settings.
type Config struct {
	Port           string
	AllowedOrigins []string
	MaxMessageSize int64
	RateLimit      RateLimitConfig
}

var (
	configMu        sync.RWMutex
	activeConfig    Config
	allowedOrigins  map[string]struct{}
	allowAllOrigins bool
)

func init() {
	SetConfig(nil)
}

func defaultConfig() Config {
	return Config{
		Port:           ":8080",
		AllowedOrigins: []string{"http://localhost:8080"},
		MaxMessageSize: 4096,
		RateLimit: RateLimitConfig{
			Burst:          20,
			RefillInterval: time.Second,
		},
	}
}

func sanitizeConfig(cfg Config) Config {
	if cfg.Port == "" {
		cfg.Port = ":8080"
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = 4096
	}
	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = 20
	}
	if cfg.RateLimit.RefillInterval <= 0 {
		cfg.RateLimit.RefillInterval = time.Second
	}

	normalized, allowAll := normalizeOrigins(cfg.AllowedOrigins)
	cfg.AllowedOrigins = normalized

	configMu.Lock()
	defer configMu.Unlock()

	activeConfig = cfg
	allowAllOrigins = allowAll
	allowedOrigins = make(map[string]struct{}, len(normalized))
	for _, origin := range normalized {
		allowedOrigins[origin] = struct{}{}
	}

	return cfg
}

// SetConfig applies the provided configuration process-wide. Passing nil
// resets to defaults.
func SetConfig(cfg *Config) {
	if cfg == nil {
		sanitizeConfig(defaultConfig())
		return
	}

	sanitizeConfig(Config{
		Port:           cfg.Port,
		AllowedOrigins: append([]string(nil), cfg.AllowedOrigins...),
		MaxMessageSize: cfg.MaxMessageSize,
		RateLimit:      cfg.RateLimit,
	})
}

func currentConfig() Config {
	configMu.RLock()
	defer configMu.RUnlock()

	cfg := activeConfig
	cfg.AllowedOrigins = append([]string(nil), cfg.AllowedOrigins...)
	return cfg
}

// NewConfig returns a Config populated with defaults.
func NewConfig() *Config {
	cfg := defaultConfig()
	return &cfg
}

// NewConfigFromEnv builds a Config from CHATRELAY_* environment variables,
// falling back to defaults for anything unset or unparseable.
func NewConfigFromEnv() *Config {
	cfg := defaultConfig()

	if port := os.Getenv("CHATRELAY_PORT"); port != "" {
		cfg.Port = port
	}
	if origins := os.Getenv("CHATRELAY_ALLOWED_ORIGINS"); origins != "" {
		cfg.AllowedOrigins = splitOrigins(origins)
	}
	if raw := os.Getenv("CHATRELAY_MAX_MESSAGE_SIZE"); raw != "" {
		if size, err := strconv.ParseInt(raw, 10, 64); err == nil && size > 0 {
			cfg.MaxMessageSize = size
		}
	}
	if raw := os.Getenv("CHATRELAY_RATE_LIMIT_BURST"); raw != "" {
		if burst, err := strconv.Atoi(raw); err == nil && burst > 0 {
			cfg.RateLimit.Burst = burst
		}
	}
	if raw := os.Getenv("CHATRELAY_RATE_LIMIT_INTERVAL_SECONDS"); raw != "" {
		if seconds, err := strconv.Atoi(raw); err == nil && seconds > 0 {
			cfg.RateLimit.RefillInterval = time.Duration(seconds) * time.Second
		}
	}

	return &cfg
}

func splitOrigins(origins string) []string {
	parts := strings.Split(origins, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
