package ports

import (
	"context"
	"errors"
	"time"

	"voicecoach/internal/domain"
	"voicecoach/internal/protocol"
)

var (
	// ErrPermissionDenied is returned when the platform refuses device access.
	ErrPermissionDenied = errors.New("microphone permission denied")
	// ErrNoDevice is returned when no input device is present.
	ErrNoDevice = errors.New("no microphone device found")
)

// BlockFunc receives one fixed-size block of float samples in [-1, 1]
// captured at sampleRate.
type BlockFunc func(block []float32, sampleRate int)

// AudioStream is a live, open input stream.
type AudioStream interface {
	SampleRate() int
	// Tap registers fn for every captured block. The returned func
	// disconnects the tap; it is safe to call more than once.
	Tap(fn BlockFunc) (untap func())
	// Close releases every underlying device handle.
	Close() error
}

// AudioDevice creates live input streams.
type AudioDevice interface {
	// Available reports whether the capture capability exists at all.
	Available() error
	Open(ctx context.Context, blockSize int) (AudioStream, error)
}

// Timer is a pending scheduled callback.
type Timer interface {
	Stop() bool
}

// Scheduler runs callbacks after a delay.
type Scheduler interface {
	AfterFunc(d time.Duration, fn func()) Timer
}

// CaptureListener receives Capture Device Adapter output.
type CaptureListener interface {
	CaptureStatusChanged(status domain.CaptureStatus, detail string)
	CaptureElapsed(seconds int)
	AudioChunk(chunk domain.AudioChunk)
	Levels(buckets []float64)
}

// ChannelHandler receives Duplex Session Channel output.
type ChannelHandler interface {
	ConnectionStatusChanged(status domain.ConnectionStatus)
	Inbound(msg protocol.Inbound)
}

// Channel is the outbound half of the duplex session channel.
type Channel interface {
	Open()
	Status() domain.ConnectionStatus
	WaitConnected(ctx context.Context) error
	// Send reports whether msg was written to a connected transport.
	Send(msg protocol.Outbound) bool
	Close() error
}

// EventSink emits orchestrator state to the UI.
type EventSink interface {
	StateChanged(state domain.SessionState)
	Levels(buckets []float64)
	Notice(code domain.ErrorCode, detail string)
	BackendHealth(online bool)
}

// Capture is the control surface of the capture device adapter.
type Capture interface {
	SetListener(l CaptureListener)
	Start(ctx context.Context) error
	Stop() error
	Reset() error
	SetFromFile(path string) error
	SourceFile() string
	Status() (domain.CaptureStatus, string)
	Close() error
}

// Clipboard writes text to the system clipboard.
type Clipboard interface {
	SetText(ctx context.Context, text string) error
}
