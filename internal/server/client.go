// Package server manages individual WebSocket connections: read/write pumps,
// per-connection rate limiting, and lifecycle state.
package server

import (
	"errors"
	"io"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a frame to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong from the peer.
	pongWait = 60 * time.Second

	// Ping period; must be less than pongWait.
	pingPeriod = 54 * time.Second

	// Outgoing frames queued per connection before the hub evicts it.
	sendBuffer = 256
)

// Client is one connection to the relay. It starts unbound; a setup event
// binds it to a user identity, after which it may join rooms and route
// events. The identity field is written and read only on the owning read
// pump, so it needs no lock. The closed flag is guarded by the hub's mutex.
type Client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	hub  *Hub
	addr string

	identity string
	closed   bool

	maxMessageSize int64
	limiter        *rateLimiter
	rateLimit      RateLimitConfig
}

// NewClient wraps an upgraded WebSocket connection. The connection
// participates in nothing until the hub registers it and the client sends
// setup.
func NewClient(conn *websocket.Conn, hub *Hub, addr string) *Client {
	cfg := currentConfig()
	if conn != nil {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}

	return &Client{
		id:             uuid.NewString(),
		conn:           conn,
		send:           make(chan []byte, sendBuffer),
		hub:            hub,
		addr:           addr,
		maxMessageSize: cfg.MaxMessageSize,
		limiter:        newRateLimiter(cfg.RateLimit.Burst, cfg.RateLimit.RefillInterval),
		rateLimit:      cfg.RateLimit,
	}
}

// ID returns the connection's unique identifier, used in logs and
// diagnostics.
func (c *Client) ID() string {
	return c.id
}

// Identity returns the bound user identity, or the empty string while the
// connection is unbound.
func (c *Client) Identity() string {
	return c.identity
}

func (c *Client) configureRead() {
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		log.Printf("Error setting read deadline for client %s: %v", c.id, err)
	}
	c.conn.SetPongHandler(func(string) error {
		if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			log.Printf("Error extending read deadline for client %s: %v", c.id, err)
		}
		return nil
	})
}

// logReadError classifies a read failure so that ordinary disconnects stay
// quiet in the logs.
func (c *Client) logReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		log.Printf("Client %s sent a frame over the %d byte limit", c.id, c.maxMessageSize)
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure):
		log.Printf("Client %s disconnected: %v", c.id, err)
	case errors.Is(err, io.EOF) || isExpectedCloseError(err):
		log.Printf("Client %s connection closed: %v", c.id, err)
	default:
		log.Printf("WebSocket read error from client %s: %v", c.id, err)
	}
}

// handleFrame decodes one inbound frame and hands it to the hub. Protocol
// errors of any kind are logged and dropped; the connection stays open and
// keeps processing subsequent events.
func (c *Client) handleFrame(raw []byte) {
	env, err := decodeEnvelope(raw)
	if err != nil {
		log.Printf("Dropping frame from client %s: %v", c.id, err)
		return
	}

	if err := c.hub.Dispatch(c, env); err != nil {
		log.Printf("Dropping %s event from client %s: %v", env.Event, c.id, err)
	}
}

// readPump reads frames until the connection fails or closes, then runs the
// disconnection reconciliation exactly once. Events are dispatched inline so
// a single connection's events are processed in arrival order.
func (c *Client) readPump() {
	defer func() {
		c.hub.Disconnect(c)
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			log.Printf("Error closing connection for client %s: %v", c.id, err)
		}
	}()

	c.configureRead()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			c.logReadError(err)
			return
		}

		if c.limiter != nil && !c.limiter.allow() {
			log.Printf("Rate limit exceeded for client %s (%d events per %s); event discarded",
				c.id, c.rateLimit.Burst, c.rateLimit.RefillInterval)
			continue
		}

		c.handleFrame(raw)
	}
}

// writePump drains the send channel onto the wire and keeps the connection
// alive with pings. It exits when the send channel is closed by the hub or
// when a write fails.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			log.Printf("Error closing connection for client %s: %v", c.id, err)
		}
	}()

	for {
		select {
		case payload, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Printf("Error setting write deadline for client %s: %v", c.id, err)
				return
			}
			if !ok {
				if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil && !isExpectedCloseError(err) {
					log.Printf("Error writing close frame to client %s: %v", c.id, err)
				}
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				log.Printf("Error writing to client %s: %v", c.id, err)
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Printf("Error setting write deadline for ping to client %s: %v", c.id, err)
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// isExpectedCloseError reports whether an error is part of ordinary
// connection teardown.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "use of closed network connection") ||
		strings.Contains(msg, "websocket: close sent") ||
		strings.Contains(msg, "broken pipe")
}
