package heartbeat

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMonitor_StaleAfterSilence(t *testing.T) {
	m := NewMonitor(10*time.Millisecond, 25*time.Millisecond)
	defer m.Stop()

	var fired atomic.Int32
	m.Start(func() { fired.Add(1) })

	assert.Eventually(t, func() bool { return fired.Load() == 1 },
		500*time.Millisecond, 5*time.Millisecond)

	// The check loop exits after signaling; the callback never repeats.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), fired.Load())
}

func TestMonitor_TouchKeepsAlive(t *testing.T) {
	m := NewMonitor(10*time.Millisecond, 40*time.Millisecond)
	defer m.Stop()

	var fired atomic.Int32
	m.Start(func() { fired.Add(1) })

	deadline := time.Now().Add(150 * time.Millisecond)
	for time.Now().Before(deadline) {
		m.Touch()
		time.Sleep(5 * time.Millisecond)
	}

	assert.Equal(t, int32(0), fired.Load(), "active connection must not go stale")
}

func TestMonitor_StopPreventsCallback(t *testing.T) {
	m := NewMonitor(10*time.Millisecond, 20*time.Millisecond)

	var fired atomic.Int32
	m.Start(func() { fired.Add(1) })
	m.Stop()

	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, int32(0), fired.Load(), "no staleness signal after Stop")
}

func TestMonitor_StopIdempotent(t *testing.T) {
	m := NewMonitor(10*time.Millisecond, 20*time.Millisecond)
	m.Start(func() {})

	assert.NotPanics(t, func() {
		m.Stop()
		m.Stop()
	})
}

func TestMonitor_TouchAdvancesLastSeen(t *testing.T) {
	m := NewMonitor(time.Second, time.Second)
	defer m.Stop()

	before := m.LastSeen()
	time.Sleep(2 * time.Millisecond)
	m.Touch()

	assert.True(t, m.LastSeen().After(before))
}
