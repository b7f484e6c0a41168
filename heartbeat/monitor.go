// Package heartbeat detects silent connections at the application level.
// The WebSocket adapter additionally runs transport-level ping/pong; this
// monitor covers clients whose stacks swallow control frames and instead
// send PING/READY envelopes as text.
package heartbeat

import (
	"sync"
	"time"
)

const (
	DefaultInterval = 15 * time.Second
	DefaultTimeout  = 30 * time.Second
)

// Monitor tracks one connection's last inbound activity. It only signals
// staleness; closing the socket is the coordinator's job.
type Monitor struct {
	interval time.Duration
	timeout  time.Duration

	mu       sync.Mutex
	lastSeen time.Time

	done      chan struct{}
	stopOnce  sync.Once
	staleOnce sync.Once
}

func NewMonitor(interval, timeout time.Duration) *Monitor {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Monitor{
		interval: interval,
		timeout:  timeout,
		lastSeen: time.Now(),
		done:     make(chan struct{}),
	}
}

// Touch records inbound activity. Called from the read loop for every frame,
// concurrently with the check ticker.
func (m *Monitor) Touch() {
	m.mu.Lock()
	m.lastSeen = time.Now()
	m.mu.Unlock()
}

func (m *Monitor) LastSeen() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastSeen
}

// Start runs the staleness check until Stop. onStale fires at most once,
// and never after Stop has returned.
func (m *Monitor) Start(onStale func()) {
	go func() {
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-m.done:
				return
			case <-ticker.C:
				if time.Since(m.LastSeen()) > m.timeout {
					m.staleOnce.Do(onStale)
					return
				}
			}
		}
	}()
}

// Stop cancels the check. Safe to call more than once. Any onStale callback
// already in flight completes; none starts afterwards.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() {
		// Claim staleOnce so a tick racing with Stop cannot fire onStale
		// against a connection that is already being torn down.
		m.staleOnce.Do(func() {})
		close(m.done)
	})
}
