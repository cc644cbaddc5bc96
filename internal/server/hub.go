// Package server coordinates connection lifecycle, identity binding, and
// room-scoped event routing for the relay via the Hub type.
package server

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"
)

// Hub owns the set of live client connections and the room membership
// registry, and routes every inbound event to its fan-out targets. Routing
// runs on the calling client's read pump; the Hub never holds a lock across a
// network send.
type Hub struct {
	registry *Registry
	clients  map[*Client]bool
	mu       sync.RWMutex
	wg       sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewHub creates a Hub with an empty registry, ready to accept connections.
func NewHub() *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		registry: NewRegistry(),
		clients:  make(map[*Client]bool),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Registry exposes the hub's membership registry for stats and tests.
func (h *Hub) Registry() *Registry {
	return h.registry
}

// Register adds a freshly upgraded connection to the hub and starts its
// read/write pumps. Connections arriving after shutdown began are closed
// immediately.
func (h *Hub) Register(c *Client) {
	if c == nil {
		log.Printf("Ignoring nil client registration")
		return
	}

	select {
	case <-h.ctx.Done():
		log.Printf("Rejecting client %s from %s: hub is shutting down", c.id, c.addr)
		if c.conn != nil {
			_ = c.conn.Close()
		}
		return
	default:
	}

	h.mu.Lock()
	h.clients[c] = true
	total := len(h.clients)
	h.mu.Unlock()
	log.Printf("Client %s connected from %s. Total clients: %d", c.id, c.addr, total)

	h.wg.Add(2)
	go func() {
		defer h.wg.Done()
		c.writePump()
	}()
	go func() {
		defer h.wg.Done()
		c.readPump()
	}()
}

// Dispatch routes one inbound event for the given client. It is called from
// the client's read pump, so events from a single connection are handled in
// arrival order. A returned error is always a recoverable protocol error.
func (h *Hub) Dispatch(c *Client, env *Envelope) error {
	switch env.Event {
	case EventSetup:
		return h.setup(c, env.UserID)
	case EventJoinChat:
		return h.joinChat(c, env.ChatID)
	case EventTyping:
		return h.presence(c, env.ChatID, EventTyping)
	case EventStopTyping:
		return h.presence(c, env.ChatID, EventStopTyping)
	case EventNewMessage:
		return h.newMessage(c, env)
	default:
		return fmt.Errorf("unknown event %q", env.Event)
	}
}

// setup binds the connection to its verified user identity and enrolls it in
// its personal room. The identity arrives pre-verified from the upstream auth
// surface; the relay only insists it is non-empty. Binding twice is a
// protocol error and leaves the original binding untouched.
func (h *Hub) setup(c *Client, userID string) error {
	if userID == "" {
		return ErrEmptyIdentity
	}
	if c.identity != "" {
		return fmt.Errorf("%w (bound to %q, setup %q ignored)", ErrAlreadyBound, c.identity, userID)
	}

	c.identity = userID
	h.registry.Join(c, userID)
	h.safeSend(c, encodeOutbound(EventConnected, "", nil))
	log.Printf("Client %s bound to user %q", c.id, userID)
	return nil
}

func (h *Hub) joinChat(c *Client, chatID string) error {
	if c.identity == "" {
		return ErrNotBound
	}
	if chatID == "" {
		return ErrMissingChat
	}

	h.registry.Join(c, chatID)
	log.Printf("User %q joined room %q", c.identity, chatID)
	return nil
}

// presence relays a typing or stopTyping signal to every member of the chat
// room except the sender: the source of a presence signal never receives its
// own echo. The sender must have joined the room first.
func (h *Hub) presence(c *Client, chatID, event string) error {
	if c.identity == "" {
		return ErrNotBound
	}
	if chatID == "" {
		return ErrMissingChat
	}
	if !h.registry.Joined(c, chatID) {
		return fmt.Errorf("%s for room %q the sender has not joined", event, chatID)
	}

	h.broadcast(chatID, encodeOutbound(event, chatID, nil), c)
	return nil
}

// newMessage fans a message out to the personal room of every chat
// participant except the sender. The payload is forwarded byte-for-byte as
// received. Participants with no live connection are skipped silently; there
// is no queuing and no retry.
func (h *Hub) newMessage(c *Client, env *Envelope) error {
	if c.identity == "" {
		return ErrNotBound
	}

	info, err := routingInfo(env.Message)
	if err != nil {
		return err
	}

	payload := encodeOutbound(EventMessageReceived, "", env.Message)
	for _, user := range info.Chat.Users {
		if user.ID == "" || user.ID == info.Sender.ID {
			continue
		}
		h.broadcast(user.ID, payload, nil)
	}
	return nil
}

// broadcast delivers payload to every current member of the room, skipping
// except when set. Membership is snapshotted once; clients that disconnect
// after the snapshot fail the per-client liveness check and are dropped.
func (h *Hub) broadcast(room string, payload []byte, except *Client) {
	if payload == nil {
		return
	}

	var failed []*Client
	for _, member := range h.registry.MembersOf(room) {
		if member == except {
			continue
		}
		if !h.safeSend(member, payload) {
			failed = append(failed, member)
		}
	}
	h.evict(failed)
}

// safeSend queues payload on the client's send channel without blocking.
// It returns false when the client is gone or its buffer is full; either way
// the caller treats the delivery as dropped.
func (h *Hub) safeSend(c *Client, payload []byte) bool {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic in safeSend: %v", r)
		}
	}()

	h.mu.RLock()
	defer h.mu.RUnlock()

	if _, live := h.clients[c]; !live || c.closed {
		return false
	}

	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// evict removes clients whose send buffers overflowed. Their pumps notice the
// closed send channel and tear the connection down.
func (h *Hub) evict(stalled []*Client) {
	if len(stalled) == 0 {
		return
	}

	h.mu.Lock()
	var channels []chan []byte
	var removed []*Client
	for _, c := range stalled {
		if _, live := h.clients[c]; live {
			delete(h.clients, c)
			c.closed = true
			channels = append(channels, c.send)
			removed = append(removed, c)
			log.Printf("Client %s from %s evicted: send buffer full", c.id, c.addr)
		}
	}
	h.mu.Unlock()

	for _, c := range removed {
		h.registry.LeaveAll(c)
	}
	for _, ch := range channels {
		close(ch)
	}
}

// Disconnect reconciles membership state after a connection is gone, whatever
// the cause: client close, network failure, or eviction. It runs at most once
// per client, works even when setup never completed, and once it returns the
// client is absent from every room snapshot taken afterwards.
func (h *Hub) Disconnect(c *Client) {
	h.mu.Lock()
	if _, live := h.clients[c]; !live {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	c.closed = true
	total := len(h.clients)
	h.mu.Unlock()

	left := h.registry.LeaveAll(c)
	close(c.send)
	log.Printf("Client %s disconnected, left %d room(s). Total clients: %d", c.id, len(left), total)
}

// shutdownClients closes every live connection so the read pumps unwind
// through Disconnect.
func (h *Hub) shutdownClients() {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		if c.conn != nil {
			if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
				log.Printf("Error closing connection for client %s: %v", c.id, err)
			}
		}
	}

	log.Printf("Closed %d client connections", len(clients))
}

// Shutdown stops accepting new connections, closes the existing ones, and
// waits for all pump goroutines to finish or for the timeout to pass.
func (h *Hub) Shutdown(timeout time.Duration) error {
	log.Println("Initiating hub shutdown...")

	h.cancel()
	h.shutdownClients()

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("Hub shutdown completed")
		return nil
	case <-time.After(timeout):
		log.Println("Hub shutdown timed out; some connections may still be draining")
		return context.DeadlineExceeded
	}
}
