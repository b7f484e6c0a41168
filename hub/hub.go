package hub

import (
	"log/slog"
	"sync"

	"github.com/reoanrudo/air-guitar-05/domain"
)

// Mode selects how peers are resolved.
type Mode int

const (
	// ModeStrict pairs exactly one controller with one display per room.
	ModeStrict Mode = iota
	// ModeBroadcast ignores rooms and routes to every opposite-role connection.
	ModeBroadcast
)

func ParseMode(s string) (Mode, bool) {
	switch s {
	case "strict", "":
		return ModeStrict, true
	case "broadcast":
		return ModeBroadcast, true
	default:
		return ModeStrict, false
	}
}

func (m Mode) String() string {
	if m == ModeBroadcast {
		return "broadcast"
	}
	return "strict"
}

// broadcastRoom is the implicit grouping key when rooms are ignored.
const broadcastRoom = "*"

type room struct {
	// One slot per role in strict mode; a set per role in broadcast mode.
	byRole map[domain.Role]map[string]domain.Connection
	mu     sync.RWMutex
}

func newRoom() *room {
	return &room{byRole: map[domain.Role]map[string]domain.Connection{
		domain.RoleController: make(map[string]domain.Connection),
		domain.RoleDisplay:    make(map[string]domain.Connection),
	}}
}

// Hub is the connection registry shared by all connection goroutines.
type Hub struct {
	mode  Mode
	rooms map[string]*room
	mu    sync.RWMutex
}

func New(mode Mode) *Hub {
	return &Hub{
		mode:  mode,
		rooms: make(map[string]*room),
	}
}

func (h *Hub) Mode() Mode { return h.mode }

func (h *Hub) roomKey(conn domain.Connection) string {
	if h.mode == ModeBroadcast {
		return broadcastRoom
	}
	return conn.Room()
}

// Register stores a classified connection. In strict mode a connection that
// claims an occupied (room, role) slot displaces the previous holder, which
// is returned so the coordinator can close it. Reconnecting clients are the
// common case, so evict-old beats reject-new.
func (h *Hub) Register(conn domain.Connection) (evicted domain.Connection) {
	if conn.Role() == domain.RoleUnclassified {
		return nil
	}
	key := h.roomKey(conn)

	h.mu.Lock()
	r, exists := h.rooms[key]
	if !exists {
		r = newRoom()
		h.rooms[key] = r
	}
	h.mu.Unlock()

	r.mu.Lock()
	slot := r.byRole[conn.Role()]
	if h.mode == ModeStrict {
		for id, old := range slot {
			evicted = old
			delete(slot, id)
		}
	}
	slot[conn.ID()] = conn
	count := len(r.byRole[domain.RoleController]) + len(r.byRole[domain.RoleDisplay])
	r.mu.Unlock()

	slog.Info("client registered",
		"room", key, "clientId", conn.ID(), "role", conn.Role(), "clients", count)
	if evicted != nil {
		slog.Info("client evicted by reconnect",
			"room", key, "clientId", evicted.ID(), "role", evicted.Role())
	}
	return evicted
}

// Unregister removes the connection. Idempotent; a no-op if the connection
// was never registered or was already displaced by a newer one.
func (h *Hub) Unregister(conn domain.Connection) {
	if conn.Role() == domain.RoleUnclassified {
		return
	}
	key := h.roomKey(conn)

	h.mu.RLock()
	r, exists := h.rooms[key]
	h.mu.RUnlock()
	if !exists {
		return
	}

	r.mu.Lock()
	slot, ok := r.byRole[conn.Role()]
	if !ok {
		r.mu.Unlock()
		return
	}
	if current, present := slot[conn.ID()]; !present || current != conn {
		r.mu.Unlock()
		return
	}
	delete(slot, conn.ID())
	count := len(r.byRole[domain.RoleController]) + len(r.byRole[domain.RoleDisplay])
	r.mu.Unlock()

	slog.Info("client unregistered",
		"room", key, "clientId", conn.ID(), "role", conn.Role(), "clients", count)

	if count == 0 {
		h.mu.Lock()
		delete(h.rooms, key)
		h.mu.Unlock()
		slog.Info("room removed", "room", key)
	}
}

// Peers resolves the destination set for traffic from conn: the opposite-role
// connection in the same room (strict), or all opposite-role connections
// (broadcast). Empty when no peer is present.
func (h *Hub) Peers(conn domain.Connection) []domain.Connection {
	opposite := conn.Role().Opposite()
	if opposite == domain.RoleUnclassified {
		return nil
	}

	h.mu.RLock()
	r, exists := h.rooms[h.roomKey(conn)]
	h.mu.RUnlock()
	if !exists {
		return nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	peers := make([]domain.Connection, 0, len(r.byRole[opposite]))
	for _, peer := range r.byRole[opposite] {
		peers = append(peers, peer)
	}
	return peers
}

func (h *Hub) Stats() (rooms, clients int) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	rooms = len(h.rooms)
	for _, r := range h.rooms {
		r.mu.RLock()
		clients += len(r.byRole[domain.RoleController]) + len(r.byRole[domain.RoleDisplay])
		r.mu.RUnlock()
	}
	return rooms, clients
}
