package channel

import "time"

const (
	DefaultBaseDelay = 500 * time.Millisecond
	DefaultMaxDelay  = 4 * time.Second
)

// Backoff yields doubling delays for consecutive failures, capped at max.
type Backoff struct {
	base     time.Duration
	max      time.Duration
	failures int
}

func NewBackoff(base, max time.Duration) *Backoff {
	if base <= 0 {
		base = DefaultBaseDelay
	}
	if max < base {
		max = base
	}
	return &Backoff{base: base, max: max}
}

// Next returns the delay before the next attempt and counts one failure.
func (b *Backoff) Next() time.Duration {
	delay := b.max
	if b.failures < 32 {
		if d := b.base << b.failures; d > 0 && d < b.max {
			delay = d
		}
	}
	b.failures++
	return delay
}

func (b *Backoff) Reset() {
	b.failures = 0
}

func (b *Backoff) Failures() int {
	return b.failures
}
