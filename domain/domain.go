package domain

import "errors"

// Role classifies a connection as the input side (phone) or the rendering side (PC).
type Role string

const (
	RoleController   Role = "controller"
	RoleDisplay      Role = "display"
	RoleUnclassified Role = ""
)

// Opposite returns the peer role a connection's traffic is routed to.
func (r Role) Opposite() Role {
	switch r {
	case RoleController:
		return RoleDisplay
	case RoleDisplay:
		return RoleController
	default:
		return RoleUnclassified
	}
}

// ParseRole maps connect-time query values to a role. The mobile app
// identifies itself as "mobile"; the PC client as "display".
func ParseRole(s string) (Role, bool) {
	switch s {
	case "mobile", "controller", "phone":
		return RoleController, true
	case "display", "pc", "desktop":
		return RoleDisplay, true
	default:
		return RoleUnclassified, false
	}
}

var (
	// ErrAlreadyClassified is returned when a second classification is
	// attempted on a connection whose role is already set.
	ErrAlreadyClassified = errors.New("connection already classified")
	// ErrSendBufferFull is returned by Send when the outbound queue is full.
	ErrSendBufferFull = errors.New("send buffer full")
	// ErrConnClosed is returned by Send once the connection has entered
	// teardown.
	ErrConnClosed = errors.New("connection closed")
)

// Close reasons surfaced to the client and the logs on teardown.
const (
	ReasonHeartbeatTimeout      = "HeartbeatTimeout"
	ReasonClassificationTimeout = "ClassificationTimeout"
	ReasonEvicted               = "Evicted"
	ReasonSocketClosed          = "SocketClosed"
)

type Connection interface {
	ID() string
	Role() Role
	Room() string
	// Classify sets role and room exactly once for the connection lifetime.
	Classify(role Role, room string) error
	Send(data []byte) error
	// Close tears the connection down, reporting reason to the client.
	Close(reason string) error
}

// Registry tracks live classified connections and resolves peer sets.
type Registry interface {
	// Register stores the connection and returns the connection it displaced,
	// if the (room, role) slot was already occupied.
	Register(conn Connection) (evicted Connection)
	Unregister(conn Connection)
	Peers(conn Connection) []Connection
	Stats() (rooms, clients int)
}

type MessageHandler interface {
	Handle(conn Connection, data []byte)
}
