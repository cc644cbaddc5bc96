package server

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func configureOrigins(t *testing.T, origins ...string) {
	t.Helper()
	cfg := NewConfig()
	cfg.AllowedOrigins = origins
	SetConfig(cfg)
	t.Cleanup(func() { SetConfig(nil) })
}

func TestOriginAllowListMatchesCaseInsensitively(t *testing.T) {
	configureOrigins(t, "http://Example.COM")

	r := httptest.NewRequest("GET", "/ws", nil)
	r.Header.Set("Origin", "http://example.com")
	assert.True(t, isOriginAllowed(r))
}

func TestOriginOutsideAllowListIsBlocked(t *testing.T) {
	configureOrigins(t, "http://allowed.test")

	r := httptest.NewRequest("GET", "/ws", nil)
	r.Header.Set("Origin", "http://blocked.test")
	assert.False(t, isOriginAllowed(r))
}

func TestMissingOriginIsBlocked(t *testing.T) {
	configureOrigins(t, "http://allowed.test")

	r := httptest.NewRequest("GET", "/ws", nil)
	assert.False(t, isOriginAllowed(r))
}

func TestWildcardAllowsAnyOrigin(t *testing.T) {
	configureOrigins(t, "*")

	r := httptest.NewRequest("GET", "/ws", nil)
	r.Header.Set("Origin", "http://anything.example")
	assert.True(t, isOriginAllowed(r))
}

func TestInvalidConfiguredOriginsAreIgnored(t *testing.T) {
	normalized, allowAll := normalizeOrigins([]string{"http://ok.test", "not a url", "", "  "})
	assert.False(t, allowAll)
	assert.Equal(t, []string{"http://ok.test"}, normalized)
}
