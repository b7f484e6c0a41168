package protocol

import (
	"encoding/json"
	"log/slog"

	"github.com/reoanrudo/air-guitar-05/domain"
)

// Handler routes decoded envelopes: control-plane types are answered or
// applied locally, data-plane types are forwarded to the peer set.
// requireRoom is set in strict-pairing mode, where a registration without a
// usable room code cannot claim a slot.
type Handler struct {
	registry    domain.Registry
	requireRoom bool
}

func NewHandler(registry domain.Registry, requireRoom bool) *Handler {
	return &Handler{registry: registry, requireRoom: requireRoom}
}

// Handle processes one inbound frame. Decode errors drop the frame and keep
// the connection open; nothing here may fail the source connection.
func (h *Handler) Handle(conn domain.Connection, data []byte) {
	env, err := Decode(data)
	if err != nil {
		slog.Warn("dropping invalid frame", "clientId", conn.ID(), "error", err)
		return
	}

	switch env.Type {
	case TypePing:
		h.reply(conn, Envelope{Type: TypePong, Payload: env.Payload})
	case TypeReady:
		// READY doubles as an app-level heartbeat; echo it back.
		h.reply(conn, Envelope{Type: TypeReady, Payload: env.Payload})
	case TypeRegister, TypeHello:
		h.handleRegister(conn, env)
	case TypePong, TypeID:
		// Nothing to do beyond the activity touch the adapter already did.
	default:
		h.forward(conn, env)
	}
}

// handleRegister classifies the connection from the registration payload and
// claims its (room, role) slot. A connection classified at upgrade time from
// query parameters re-registering is tolerated; a conflicting re-registration
// is logged and ignored.
func (h *Handler) handleRegister(conn domain.Connection, env Envelope) {
	var p RegisterPayload
	if len(env.Payload) > 0 {
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			slog.Warn("bad registration payload", "clientId", conn.ID(), "error", err)
			return
		}
	}

	if conn.Role() == domain.RoleUnclassified {
		role, ok := domain.ParseRole(p.Role)
		if !ok {
			slog.Warn("registration without usable role", "clientId", conn.ID(), "role", p.Role)
			return
		}
		room := NormalizeRoom(p.Room)
		if h.requireRoom && room == "" {
			// Classifying here would seal the empty room key and pair
			// strangers; leave the connection unclassified so a later
			// registration can still supply a valid code.
			slog.Warn("registration without usable room code",
				"clientId", conn.ID(), "room", p.Room)
			return
		}
		if err := conn.Classify(role, room); err != nil {
			slog.Warn("classification race", "clientId", conn.ID(), "error", err)
			return
		}
		if evicted := h.registry.Register(conn); evicted != nil {
			evicted.Close(domain.ReasonEvicted)
		}
	}

	h.ack(conn)
}

// Ack confirms identity to the client after registration.
func (h *Handler) ack(conn domain.Connection) {
	payload, _ := json.Marshal(IDPayload{ID: conn.ID()})
	h.reply(conn, Envelope{Type: TypeID, Payload: payload})
}

func (h *Handler) reply(conn domain.Connection, env Envelope) {
	data, err := Encode(env)
	if err != nil {
		slog.Warn("encode reply failed", "clientId", conn.ID(), "error", err)
		return
	}
	if err := conn.Send(data); err != nil {
		slog.Warn("reply send failed", "clientId", conn.ID(), "error", err)
	}
}

// forward delivers a data-plane envelope to every live peer, annotated with
// the sender's id. Best-effort: a full or closed destination is skipped and
// the source keeps running. No peer present means the message is dropped.
func (h *Handler) forward(conn domain.Connection, env Envelope) {
	if conn.Role() == domain.RoleUnclassified {
		slog.Warn("dropping frame from unclassified connection",
			"clientId", conn.ID(), "type", env.Type)
		return
	}

	env.SenderID = conn.ID()
	data, err := Encode(env)
	if err != nil {
		slog.Warn("encode forward failed", "clientId", conn.ID(), "error", err)
		return
	}

	for _, peer := range h.registry.Peers(conn) {
		if err := peer.Send(data); err != nil {
			slog.Warn("peer send failed, skipping",
				"clientId", conn.ID(), "peerId", peer.ID(), "error", err)
		}
	}
}
