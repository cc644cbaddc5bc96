// Package server defines the wire protocol spoken over the WebSocket: a JSON
// envelope tagged by an "event" field, with a payload shape that depends on
// the event kind.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Inbound event names. These are the contract with clients.
const (
	EventSetup      = "setup"
	EventJoinChat   = "joinChat"
	EventTyping     = "typing"
	EventStopTyping = "stopTyping"
	EventNewMessage = "newMessage"
)

// Outbound event names.
const (
	EventConnected       = "connected"
	EventMessageReceived = "messageReceived"
)

// Protocol errors. All of them are recoverable: the offending event is
// dropped, logged, and the connection keeps processing subsequent events.
var (
	ErrNotBound      = errors.New("connection has not completed setup")
	ErrAlreadyBound  = errors.New("connection already completed setup")
	ErrEmptyIdentity = errors.New("setup requires a non-empty user id")
	ErrMissingChat   = errors.New("event requires a chat id")
	ErrNoRecipients  = errors.New("message chat has no users")
)

// Envelope is the inbound wire frame. Which fields are meaningful depends on
// Event: setup carries UserID, joinChat/typing/stopTyping carry ChatID, and
// newMessage carries Message. Message is kept as raw bytes so the relay can
// forward it without touching fields it does not understand.
type Envelope struct {
	Event   string          `json:"event"`
	UserID  string          `json:"userId,omitempty"`
	ChatID  string          `json:"chatId,omitempty"`
	Message json.RawMessage `json:"message,omitempty"`
}

func decodeEnvelope(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("malformed event: %w", err)
	}
	if env.Event == "" {
		return nil, errors.New("event field missing or empty")
	}
	return &env, nil
}

// userRef is how chat participants and senders are identified inside a
// message payload, mirroring the upstream record store's document ids.
type userRef struct {
	ID string `json:"_id"`
}

// messageRouting is the slice of a newMessage payload the router needs: the
// target chat's participant list and the sending user. Everything else in the
// payload is opaque and passes through unchanged.
type messageRouting struct {
	Chat struct {
		Users []userRef `json:"users"`
	} `json:"chat"`
	Sender userRef `json:"sender"`
}

func routingInfo(raw json.RawMessage) (*messageRouting, error) {
	var info messageRouting
	if err := json.Unmarshal(raw, &info); err != nil {
		return nil, fmt.Errorf("malformed message payload: %w", err)
	}
	if len(info.Chat.Users) == 0 {
		return nil, ErrNoRecipients
	}
	return &info, nil
}

// outbound mirrors Envelope for frames the relay emits.
type outbound struct {
	Event   string          `json:"event"`
	ChatID  string          `json:"chatId,omitempty"`
	Message json.RawMessage `json:"message,omitempty"`
}

// encodeOutbound builds an outbound frame. Message, when set, came from a
// decoded inbound frame and is therefore valid JSON, so marshalling cannot
// fail in practice; a nil return is still handled by the send path.
func encodeOutbound(event, chatID string, message json.RawMessage) []byte {
	payload, err := json.Marshal(outbound{Event: event, ChatID: chatID, Message: message})
	if err != nil {
		return nil
	}
	return payload
}
