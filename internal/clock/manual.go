package clock

import (
	"sync"
	"time"

	"voicecoach/internal/ports"
)

// Manual records every scheduled callback and runs them only when told to.
// Tests use it to drive backoff, watchdog and ticker behavior.
type Manual struct {
	mu      sync.Mutex
	delays  []time.Duration
	pending []*manualTimer
}

type manualTimer struct {
	owner *Manual
	delay time.Duration
	fn    func()
}

func (t *manualTimer) Stop() bool {
	return t.owner.remove(t)
}

func (m *Manual) AfterFunc(d time.Duration, fn func()) ports.Timer {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := &manualTimer{owner: m, delay: d, fn: fn}
	m.delays = append(m.delays, d)
	m.pending = append(m.pending, t)
	return t
}

// Delays returns every delay requested so far, in order.
func (m *Manual) Delays() []time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]time.Duration(nil), m.delays...)
}

// Pending returns the delays of timers that have neither fired nor stopped.
func (m *Manual) Pending() []time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]time.Duration, 0, len(m.pending))
	for _, t := range m.pending {
		out = append(out, t.delay)
	}
	return out
}

// Fire runs the oldest pending timer scheduled with delay d.
func (m *Manual) Fire(d time.Duration) bool {
	m.mu.Lock()
	var target *manualTimer
	for i, t := range m.pending {
		if t.delay == d {
			target = t
			m.pending = append(m.pending[:i], m.pending[i+1:]...)
			break
		}
	}
	m.mu.Unlock()

	if target == nil {
		return false
	}
	target.fn()
	return true
}

// FireNext runs the oldest pending timer regardless of delay.
func (m *Manual) FireNext() bool {
	m.mu.Lock()
	if len(m.pending) == 0 {
		m.mu.Unlock()
		return false
	}
	target := m.pending[0]
	m.pending = m.pending[1:]
	m.mu.Unlock()

	target.fn()
	return true
}

func (m *Manual) remove(target *manualTimer) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, t := range m.pending {
		if t == target {
			m.pending = append(m.pending[:i], m.pending[i+1:]...)
			return true
		}
	}
	return false
}
