// Package server implements a single-process, best-effort WebSocket message
// relay. Clients bind a verified user identity, join chat rooms, and exchange
// typing-presence and message events; the hub fans each event out to the
// right rooms and reconciles membership when connections drop.
package server
