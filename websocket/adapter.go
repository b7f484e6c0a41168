package websocket

import (
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/reoanrudo/air-guitar-05/domain"
	"github.com/reoanrudo/air-guitar-05/heartbeat"
	"github.com/reoanrudo/air-guitar-05/protocol"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBufferSize = 256
)

// Options carries the tunables the coordinator owns per connection.
type Options struct {
	HeartbeatInterval time.Duration
	HeartbeatTimeout  time.Duration
	ClassifyGrace     time.Duration
}

const defaultClassifyGrace = 30 * time.Second

// Conn adapts a gorilla websocket connection to domain.Connection and walks
// it through connecting -> classifying -> active -> closing -> closed.
type Conn struct {
	id       string
	ws       *websocket.Conn
	send     chan []byte
	registry domain.Registry
	handler  domain.MessageHandler
	monitor  *heartbeat.Monitor

	mu   sync.Mutex
	role domain.Role
	room string

	graceTimer *time.Timer
	closeOnce  sync.Once
	closed     chan struct{}
}

func NewConn(id string, ws *websocket.Conn, registry domain.Registry, handler domain.MessageHandler, opts Options) *Conn {
	return &Conn{
		id:       id,
		ws:       ws,
		send:     make(chan []byte, sendBufferSize),
		registry: registry,
		handler:  handler,
		monitor:  heartbeat.NewMonitor(opts.HeartbeatInterval, opts.HeartbeatTimeout),
		closed:   make(chan struct{}),
	}
}

func (c *Conn) ID() string { return c.id }

func (c *Conn) Role() domain.Role {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.role
}

func (c *Conn) Room() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.room
}

// Classify sets role and room exactly once. The role is immutable afterwards;
// later registrations for an already classified connection are rejected.
func (c *Conn) Classify(role domain.Role, room string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.role != domain.RoleUnclassified {
		return domain.ErrAlreadyClassified
	}
	c.role = role
	c.room = room
	if c.graceTimer != nil {
		c.graceTimer.Stop()
		c.graceTimer = nil
	}
	return nil
}

// Send queues data without blocking the caller's read loop. A full buffer
// means the peer is too slow; the frame is refused rather than buffered
// unboundedly.
func (c *Conn) Send(data []byte) error {
	select {
	case <-c.closed:
		return domain.ErrConnClosed
	default:
	}
	select {
	case c.send <- data:
		return nil
	default:
		return domain.ErrSendBufferFull
	}
}

func (c *Conn) Close(reason string) error {
	c.teardown(reason)
	return nil
}

// Start begins the connection lifecycle. A role/room pair already extracted
// from the upgrade request classifies immediately; otherwise the connection
// sits in the classifying state until a registration envelope arrives or the
// grace period ends.
func (c *Conn) Start(role domain.Role, room string, grace time.Duration) {
	c.greet()

	if role != domain.RoleUnclassified {
		if err := c.Classify(role, room); err == nil {
			if evicted := c.registry.Register(c); evicted != nil {
				evicted.Close(domain.ReasonEvicted)
			}
		}
	} else {
		if grace <= 0 {
			grace = defaultClassifyGrace
		}
		c.mu.Lock()
		c.graceTimer = time.AfterFunc(grace, func() {
			// Re-check under the role lock: the timer may race a
			// registration that landed just before Stop.
			if c.Role() != domain.RoleUnclassified {
				return
			}
			slog.Warn("client never identified itself", "clientId", c.id)
			c.teardown(domain.ReasonClassificationTimeout)
		})
		c.mu.Unlock()
	}

	c.monitor.Start(func() {
		slog.Warn("heartbeat timeout", "clientId", c.id,
			"lastSeen", c.monitor.LastSeen())
		c.teardown(domain.ReasonHeartbeatTimeout)
	})

	go c.writePump()
	go c.readPump()
}

// greet sends the role-agnostic id envelope right after accept, so clients
// learn their connection identifier before classifying.
func (c *Conn) greet() {
	payload, _ := json.Marshal(protocol.IDPayload{ID: c.id})
	if data, err := protocol.Encode(protocol.Envelope{Type: protocol.TypeID, Payload: payload}); err == nil {
		c.Send(data)
	}
}

// teardown is the single closing transition: unregister, stop timers, close
// the socket. Every trigger funnels here and it runs at most once.
func (c *Conn) teardown(reason string) {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.mu.Lock()
		if c.graceTimer != nil {
			c.graceTimer.Stop()
			c.graceTimer = nil
		}
		c.mu.Unlock()
		c.monitor.Stop()
		c.registry.Unregister(c)
		c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason),
			time.Now().Add(writeWait))
		c.ws.Close()
		slog.Info("connection closed", "clientId", c.id, "reason", reason)
	})
}

func (c *Conn) readPump() {
	defer c.teardown(domain.ReasonSocketClosed)

	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		c.monitor.Touch()
		return nil
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Error("read error", "clientId", c.id, "error", err)
			}
			return
		}

		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		c.monitor.Touch()
		c.handler.Handle(c, data)
	}
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case <-c.closed:
			return
		case message := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// mobileSignatures are the user-agent substrings that default-classify a
// headerless client as the controller side. Explicit registration always
// overrides this heuristic.
var mobileSignatures = []string{"mobile", "android", "iphone", "ipad", "mobi", "okhttp"}

// InferRole guesses a role from the User-Agent for broadcast mode, where
// clients may connect without query parameters or a registration message.
func InferRole(userAgent string) domain.Role {
	ua := strings.ToLower(userAgent)
	for _, sig := range mobileSignatures {
		if strings.Contains(ua, sig) {
			return domain.RoleController
		}
	}
	return domain.RoleDisplay
}
