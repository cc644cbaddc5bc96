package server

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJoinIsIdempotent(t *testing.T) {
	r := NewRegistry()
	c := NewClient(nil, NewHub(), "test")

	r.Join(c, "room1")
	r.Join(c, "room1")

	members := r.MembersOf("room1")
	require.Len(t, members, 1)
	assert.Same(t, c, members[0])
	assert.True(t, r.Joined(c, "room1"))
}

func TestLeaveAllRemovesEveryMembership(t *testing.T) {
	r := NewRegistry()
	h := NewHub()
	c := NewClient(nil, h, "test")
	other := NewClient(nil, h, "test")

	r.Join(c, "x")
	r.Join(c, "y")
	r.Join(other, "x")

	left := r.LeaveAll(c)
	assert.ElementsMatch(t, []string{"x", "y"}, left)

	assert.False(t, r.Joined(c, "x"))
	assert.False(t, r.Joined(c, "y"))
	for _, member := range r.MembersOf("x") {
		assert.NotSame(t, c, member)
	}
	assert.Empty(t, r.MembersOf("y"))

	// The other client's membership is untouched.
	assert.True(t, r.Joined(other, "x"))
}

func TestLeaveAllWithoutAnyJoins(t *testing.T) {
	r := NewRegistry()
	c := NewClient(nil, NewHub(), "test")

	assert.Nil(t, r.LeaveAll(c))
	assert.Nil(t, r.LeaveAll(c))
}

func TestMembersOfReturnsSnapshot(t *testing.T) {
	r := NewRegistry()
	h := NewHub()
	a := NewClient(nil, h, "test")
	b := NewClient(nil, h, "test")

	r.Join(a, "room1")
	snapshot := r.MembersOf("room1")
	r.Join(b, "room1")

	assert.Len(t, snapshot, 1)
	assert.Len(t, r.MembersOf("room1"), 2)
}

func TestConcurrentJoinsAllSucceed(t *testing.T) {
	r := NewRegistry()
	h := NewHub()

	const n = 32
	clients := make([]*Client, n)
	for i := range clients {
		clients[i] = NewClient(nil, h, "test")
	}

	var wg sync.WaitGroup
	for _, c := range clients {
		wg.Add(1)
		go func(c *Client) {
			defer wg.Done()
			r.Join(c, "room1")
		}(c)
	}
	wg.Wait()

	assert.Len(t, r.MembersOf("room1"), n)
}

func TestConcurrentJoinsAndLeaves(t *testing.T) {
	r := NewRegistry()
	h := NewHub()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		c := NewClient(nil, h, "test")
		room := fmt.Sprintf("room%d", i%4)
		wg.Add(1)
		go func(c *Client, room string) {
			defer wg.Done()
			r.Join(c, room)
			r.MembersOf(room)
			r.LeaveAll(c)
		}(c, room)
	}
	wg.Wait()

	rooms, memberships := r.Stats()
	assert.Zero(t, rooms)
	assert.Zero(t, memberships)
}

func TestStatsCountsRoomsAndMemberships(t *testing.T) {
	r := NewRegistry()
	h := NewHub()
	a := NewClient(nil, h, "test")
	b := NewClient(nil, h, "test")

	r.Join(a, "u1")
	r.Join(a, "c1")
	r.Join(b, "c1")

	rooms, memberships := r.Stats()
	assert.Equal(t, 2, rooms)
	assert.Equal(t, 3, memberships)
}
