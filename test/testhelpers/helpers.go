// Package testhelpers provides shared utilities for the relay's integration
// tests: starting a relay over httptest, dialing WebSocket clients with an
// allowed origin, and reading or denying protocol frames with deadlines.
package testhelpers

import (
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nkov/chatrelay/internal/server"
)

// Frame is a decoded protocol frame as seen by a test client.
type Frame struct {
	Event   string          `json:"event"`
	ChatID  string          `json:"chatId"`
	Message json.RawMessage `json:"message"`
}

// StartRelay boots a hub and an httptest server with the relay routes,
// configures the test server's URL as an allowed origin, and registers
// cleanup. It returns the hub, the WebSocket URL to dial, and the origin
// value clients must present.
func StartRelay(t *testing.T) (*server.Hub, string, string) {
	t.Helper()

	hub := server.NewHub()
	ts := httptest.NewServer(server.SetupRoutes(hub))

	cfg := server.NewConfig()
	cfg.AllowedOrigins = append([]string{ts.URL}, cfg.AllowedOrigins...)
	server.SetConfig(cfg)

	t.Cleanup(func() {
		_ = hub.Shutdown(2 * time.Second)
		ts.Close()
		server.SetConfig(nil)
	})

	u, err := url.Parse(ts.URL)
	if err != nil {
		t.Fatalf("Failed to parse test server URL: %v", err)
	}
	u.Scheme = "ws"
	u.Path = "/ws"
	return hub, u.String(), ts.URL
}

// Dial opens a WebSocket connection to the relay using origin as the Origin
// header. The connection is closed on test cleanup.
func Dial(t *testing.T, wsURL, origin string) *websocket.Conn {
	t.Helper()

	header := http.Header{}
	if origin != "" {
		header.Set("Origin", origin)
	}

	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	if err != nil {
		t.Fatalf("Failed to dial %s: %v", wsURL, err)
	}
	t.Cleanup(func() {
		_ = conn.Close()
		_ = resp.Body.Close()
	})
	return conn
}

// SendEvent writes v as a JSON text frame.
func SendEvent(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()

	payload, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("Failed to marshal event: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		t.Fatalf("Failed to send event: %v", err)
	}
}

// ReadFrame reads one frame within the timeout and decodes it.
func ReadFrame(t *testing.T, conn *websocket.Conn, timeout time.Duration) Frame {
	t.Helper()

	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		t.Fatalf("Failed to set read deadline: %v", err)
	}
	_, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("Failed to read frame: %v", err)
	}

	var frame Frame
	if err := json.Unmarshal(payload, &frame); err != nil {
		t.Fatalf("Failed to decode frame %s: %v", payload, err)
	}
	return frame
}

// ExpectEvent reads one frame and fails unless its event name matches.
func ExpectEvent(t *testing.T, conn *websocket.Conn, event string) Frame {
	t.Helper()

	frame := ReadFrame(t, conn, time.Second)
	if frame.Event != event {
		t.Fatalf("Expected %q event, got %q", event, frame.Event)
	}
	return frame
}

// ExpectNoFrame fails if the connection delivers anything within the timeout.
func ExpectNoFrame(t *testing.T, conn *websocket.Conn, timeout time.Duration) {
	t.Helper()

	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		t.Fatalf("Failed to set read deadline: %v", err)
	}
	_, payload, err := conn.ReadMessage()
	if err == nil {
		t.Fatalf("Expected no frame, but received %s", payload)
	}
	if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
		return
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return
	}
	t.Fatalf("Unexpected error while waiting for silence: %v", err)
}

// WaitForMembers polls the registry until the room has want members or the
// deadline passes. Join and disconnect have no wire-level acknowledgment, so
// tests synchronize on registry state instead of sleeping.
func WaitForMembers(t *testing.T, hub *server.Hub, room string, want int) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(hub.Registry().MembersOf(room)) == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Room %q never reached %d member(s)", room, want)
}
