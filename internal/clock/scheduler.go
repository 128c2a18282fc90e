package clock

import (
	"time"

	"voicecoach/internal/ports"
)

// Real schedules callbacks on the runtime timer wheel.
type Real struct{}

func (Real) AfterFunc(d time.Duration, fn func()) ports.Timer {
	return time.AfterFunc(d, fn)
}
