// Package server tracks which connections belong to which broadcast rooms.
// The Registry is the only shared mutable state in the relay; every membership
// mutation and read goes through its mutex, and the mutex is never held across
// a network send.
package server

import "sync"

// Registry maintains the many-to-many relation between clients and rooms as
// reverse lookups in both directions, so that join, broadcast, and leave all
// stay cheap. A room exists exactly as long as it has members.
type Registry struct {
	mu     sync.RWMutex
	rooms  map[string]map[*Client]struct{}
	joined map[*Client]map[string]struct{}
}

// NewRegistry creates an empty membership registry. The registry's lifetime is
// owned by whoever constructs it (the Hub); there is no package-level instance.
func NewRegistry() *Registry {
	return &Registry{
		rooms:  make(map[string]map[*Client]struct{}),
		joined: make(map[*Client]map[string]struct{}),
	}
}

// Join adds the client to the named room. Joining a room the client already
// belongs to changes nothing.
func (r *Registry) Join(c *Client, room string) {
	if c == nil || room == "" {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.rooms[room]
	if !ok {
		members = make(map[*Client]struct{})
		r.rooms[room] = members
	}
	members[c] = struct{}{}

	joined, ok := r.joined[c]
	if !ok {
		joined = make(map[string]struct{})
		r.joined[c] = joined
	}
	joined[room] = struct{}{}
}

// Joined reports whether the client is currently a member of the named room.
func (r *Registry) Joined(c *Client, room string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.joined[c][room]
	return ok
}

// LeaveAll removes the client from every room it belongs to and forgets the
// client entirely. It returns the names of the rooms that were left, and is
// safe to call for a client that never joined anything.
func (r *Registry) LeaveAll(c *Client) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	joined, ok := r.joined[c]
	if !ok {
		return nil
	}

	left := make([]string, 0, len(joined))
	for room := range joined {
		left = append(left, room)
		members := r.rooms[room]
		delete(members, c)
		if len(members) == 0 {
			delete(r.rooms, room)
		}
	}
	delete(r.joined, c)
	return left
}

// MembersOf returns a snapshot of the room's current members. The snapshot
// reflects every join and leave that completed before the call; callers use it
// for a single fan-out and must not cache it beyond that.
func (r *Registry) MembersOf(room string) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := r.rooms[room]
	if len(members) == 0 {
		return nil
	}

	snapshot := make([]*Client, 0, len(members))
	for c := range members {
		snapshot = append(snapshot, c)
	}
	return snapshot
}

// Stats returns the number of active rooms and total memberships, for the
// health endpoint.
func (r *Registry) Stats() (rooms, memberships int) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rooms = len(r.rooms)
	for _, members := range r.rooms {
		memberships += len(members)
	}
	return rooms, memberships
}
