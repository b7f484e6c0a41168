package hub

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reoanrudo/air-guitar-05/domain"
)

type mockConn struct {
	id   string
	role domain.Role
	room string

	mu       sync.Mutex
	received [][]byte
	closed   bool
}

func (m *mockConn) ID() string        { return m.id }
func (m *mockConn) Role() domain.Role { return m.role }
func (m *mockConn) Room() string      { return m.room }

func (m *mockConn) Classify(role domain.Role, room string) error {
	m.role = role
	m.room = room
	return nil
}

func (m *mockConn) Send(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.received = append(m.received, data)
	return nil
}

func (m *mockConn) Close(reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func controller(id, room string) *mockConn {
	return &mockConn{id: id, role: domain.RoleController, room: room}
}

func display(id, room string) *mockConn {
	return &mockConn{id: id, role: domain.RoleDisplay, room: room}
}

func TestHub_PeersStrict(t *testing.T) {
	tests := []struct {
		name      string
		setup     func(*Hub) domain.Connection
		wantPeers []string
	}{
		{
			name: "controller finds its display",
			setup: func(h *Hub) domain.Connection {
				c := controller("c1", "AAAA")
				d := display("d1", "AAAA")
				h.Register(c)
				h.Register(d)
				return c
			},
			wantPeers: []string{"d1"},
		},
		{
			name: "no cross-room delivery",
			setup: func(h *Hub) domain.Connection {
				c := controller("c1", "AAAA")
				h.Register(c)
				h.Register(display("d1", "BBBB"))
				return c
			},
			wantPeers: []string{},
		},
		{
			name: "alone in room",
			setup: func(h *Hub) domain.Connection {
				c := controller("c1", "AAAA")
				h.Register(c)
				return c
			},
			wantPeers: []string{},
		},
		{
			name: "same role is never a peer",
			setup: func(h *Hub) domain.Connection {
				d1 := display("d1", "AAAA")
				h.Register(d1)
				h.Register(controller("c1", "AAAA"))
				return d1
			},
			wantPeers: []string{"c1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := New(ModeStrict)
			conn := tt.setup(h)

			peers := h.Peers(conn)

			ids := make([]string, 0, len(peers))
			for _, p := range peers {
				ids = append(ids, p.ID())
			}
			assert.ElementsMatch(t, tt.wantPeers, ids)
		})
	}
}

func TestHub_PeersBroadcast(t *testing.T) {
	h := New(ModeBroadcast)
	c1 := controller("c1", "")
	c2 := controller("c2", "")
	d1 := display("d1", "")
	d2 := display("d2", "")
	for _, conn := range []domain.Connection{c1, c2, d1, d2} {
		require.Nil(t, h.Register(conn))
	}

	peers := h.Peers(c1)

	ids := make([]string, 0, len(peers))
	for _, p := range peers {
		ids = append(ids, p.ID())
	}
	assert.ElementsMatch(t, []string{"d1", "d2"}, ids, "all displays, no controllers")
}

func TestHub_EvictOldOnReconnect(t *testing.T) {
	h := New(ModeStrict)
	old := controller("old", "AAAA")
	h.Register(old)

	replacement := controller("new", "AAAA")
	evicted := h.Register(replacement)

	require.NotNil(t, evicted)
	assert.Equal(t, "old", evicted.ID())

	d := display("d1", "AAAA")
	h.Register(d)
	peers := h.Peers(d)
	require.Len(t, peers, 1)
	assert.Equal(t, "new", peers[0].ID(), "replacement is the sole occupant")
}

func TestHub_UnregisterIdempotent(t *testing.T) {
	h := New(ModeStrict)
	c := controller("c1", "AAAA")
	h.Register(c)

	h.Unregister(c)
	h.Unregister(c)

	rooms, clients := h.Stats()
	assert.Equal(t, 0, rooms)
	assert.Equal(t, 0, clients)
}

func TestHub_UnregisterStaleConnKeepsReplacement(t *testing.T) {
	h := New(ModeStrict)
	old := controller("c1", "AAAA")
	h.Register(old)
	replacement := controller("c1", "AAAA")
	h.Register(replacement)

	// The evicted connection tears down after its replacement registered;
	// its unregister must not remove the new occupant.
	h.Unregister(old)

	d := display("d1", "AAAA")
	h.Register(d)
	peers := h.Peers(d)
	require.Len(t, peers, 1)
	assert.Same(t, replacement, peers[0])
}

func TestHub_UnclassifiedIgnored(t *testing.T) {
	h := New(ModeStrict)
	u := &mockConn{id: "u1"}

	assert.Nil(t, h.Register(u))
	assert.Empty(t, h.Peers(u))

	rooms, clients := h.Stats()
	assert.Equal(t, 0, rooms)
	assert.Equal(t, 0, clients)
}

func TestHub_Stats(t *testing.T) {
	tests := []struct {
		name        string
		setup       func(*Hub)
		wantRooms   int
		wantClients int
	}{
		{
			name:        "empty hub",
			setup:       func(h *Hub) {},
			wantRooms:   0,
			wantClients: 0,
		},
		{
			name: "one pair",
			setup: func(h *Hub) {
				h.Register(controller("c1", "AAAA"))
				h.Register(display("d1", "AAAA"))
			},
			wantRooms:   1,
			wantClients: 2,
		},
		{
			name: "two rooms",
			setup: func(h *Hub) {
				h.Register(controller("c1", "AAAA"))
				h.Register(display("d1", "AAAA"))
				h.Register(controller("c2", "BBBB"))
			},
			wantRooms:   2,
			wantClients: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := New(ModeStrict)
			tt.setup(h)

			rooms, clients := h.Stats()

			assert.Equal(t, tt.wantRooms, rooms)
			assert.Equal(t, tt.wantClients, clients)
		})
	}
}

func TestHub_RoomCleanup(t *testing.T) {
	h := New(ModeStrict)
	c := controller("c1", "AAAA")

	h.Register(c)
	rooms, _ := h.Stats()
	require.Equal(t, 1, rooms)

	h.Unregister(c)
	rooms, clients := h.Stats()
	assert.Equal(t, 0, rooms)
	assert.Equal(t, 0, clients)
}
