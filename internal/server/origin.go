// Package server normalizes and validates HTTP origins for WebSocket
// upgrades against the configured allow-list.
package server

import (
	"log"
	"net/http"
	"net/url"
	"strings"
)

func normalizeOrigins(origins []string) ([]string, bool) {
	if len(origins) == 0 {
		return nil, false
	}

	normalized := make([]string, 0, len(origins))
	allowAll := false

	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		if trimmed == "*" {
			allowAll = true
			continue
		}

		n, ok := normalizeOrigin(trimmed)
		if !ok {
			log.Printf("Ignoring invalid origin in configuration: %q", origin)
			continue
		}
		normalized = append(normalized, n)
	}

	return normalized, allowAll
}

// normalizeOrigin reduces an origin to lowercase scheme://host so that
// comparisons ignore case and path noise.
func normalizeOrigin(origin string) (string, bool) {
	parsed, err := url.Parse(origin)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "", false
	}
	return strings.ToLower(parsed.Scheme) + "://" + strings.ToLower(parsed.Host), true
}

func isOriginAllowed(r *http.Request) bool {
	header := r.Header.Get("Origin")
	if header == "" {
		return false
	}

	normalized, ok := normalizeOrigin(header)
	if !ok {
		return false
	}

	configMu.RLock()
	defer configMu.RUnlock()

	if allowAllOrigins {
		return true
	}
	_, exists := allowedOrigins[normalized]
	return exists
}

func checkOrigin(r *http.Request) bool {
	if isOriginAllowed(r) {
		return true
	}
	log.Printf("Blocked WebSocket connection from disallowed origin: %q", r.Header.Get("Origin"))
	return false
}
