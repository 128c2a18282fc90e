package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"voicecoach/internal/audio"
	"voicecoach/internal/domain"
	"voicecoach/internal/metrics"
	"voicecoach/internal/ports"
)

var ErrClosed = errors.New("capture adapter closed")

const (
	defaultBlockSize      = 4096
	defaultRequestTimeout = 10 * time.Second
	defaultBuckets        = 20
)

// Config controls device requests and chunking.
type Config struct {
	Origin         string
	BlockSize      int
	RequestTimeout time.Duration
	Buckets        int
}

// Adapter owns the live device stream and the CaptureStatus state machine.
//
// Listener callbacks run while the adapter lock is held, so a listener
// must never call back into the adapter.
type Adapter struct {
	device  ports.AudioDevice
	sched   ports.Scheduler
	metrics *metrics.Metrics
	log     zerolog.Logger
	cfg     Config

	mu         sync.Mutex
	listener   ports.CaptureListener
	status     domain.CaptureStatus
	detail     string
	attempt    uint64
	cancelOpen context.CancelFunc
	watchdog   ports.Timer
	ticker     ports.Timer
	stream     ports.AudioStream
	untap      func()
	emitter    *Emitter
	elapsed    int
	source     *audio.FileSource
	closed     bool
}

// NewAdapter evaluates the capture preconditions once. A failure makes the
// adapter unsupported for its whole lifetime.
func NewAdapter(device ports.AudioDevice, sched ports.Scheduler, m *metrics.Metrics, log zerolog.Logger, cfg Config) *Adapter {
	if cfg.BlockSize <= 0 {
		cfg.BlockSize = defaultBlockSize
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if cfg.Buckets < 0 {
		cfg.Buckets = 0
	} else if cfg.Buckets == 0 {
		cfg.Buckets = defaultBuckets
	}

	a := &Adapter{
		device:   device,
		sched:    sched,
		metrics:  m,
		log:      log.With().Str("component", "capture_adapter").Logger(),
		cfg:      cfg,
		listener: nopListener{},
		status:   domain.CaptureIdle,
	}

	if err := Preconditions(cfg.Origin, device); err != nil {
		a.status = domain.CaptureUnsupported
		a.detail = err.Error()
		a.log.Warn().Err(err).Msg("live capture unavailable")
	}
	return a
}

// SetListener replaces the status and chunk receiver, including for a
// stream that is already recording.
func (a *Adapter) SetListener(l ports.CaptureListener) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if l == nil {
		l = nopListener{}
	}
	a.listener = l
	if a.emitter != nil {
		a.emitter.SetSink(l)
	}
}

func (a *Adapter) Status() (domain.CaptureStatus, string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status, a.detail
}

// Elapsed returns the whole seconds recorded since the last start.
func (a *Adapter) Elapsed() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.elapsed
}

// SourceFile returns the path stored by SetFromFile, if any.
func (a *Adapter) SourceFile() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.source == nil {
		return ""
	}
	return a.source.Path
}

// Start requests the device. It returns once the request is in flight; the
// outcome arrives as a status change.
func (a *Adapter) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return ErrClosed
	}
	switch a.status {
	case domain.CaptureUnsupported:
		return fmt.Errorf("%w: %s", ErrUnsupported, a.detail)
	case domain.CaptureRecording, domain.CaptureRequesting:
		return nil
	}

	a.source = nil
	a.attempt++
	attempt := a.attempt
	a.elapsed = 0

	openCtx, cancel := context.WithCancel(ctx)
	a.cancelOpen = cancel
	a.watchdog = a.sched.AfterFunc(a.cfg.RequestTimeout, func() {
		a.requestTimedOut(attempt)
	})
	a.setStatus(domain.CaptureRequesting, "")

	go a.open(openCtx, attempt)
	return nil
}

func (a *Adapter) open(ctx context.Context, attempt uint64) {
	stream, err := a.device.Open(ctx, a.cfg.BlockSize)

	a.mu.Lock()
	defer a.mu.Unlock()

	if attempt != a.attempt || a.status != domain.CaptureRequesting {
		if stream != nil {
			if closeErr := stream.Close(); closeErr != nil {
				a.log.Warn().Err(closeErr).Msg("failed to release late stream")
			}
		}
		return
	}
	a.stopRequest()

	if err != nil {
		status := domain.CaptureError
		if errors.Is(err, ports.ErrPermissionDenied) {
			status = domain.CaptureDenied
		}
		a.log.Warn().Err(err).Str("status", string(status)).Msg("device request failed")
		a.setStatus(status, err.Error())
		return
	}

	a.stream = stream
	a.emitter = NewEmitter(a.listener, a.cfg.Buckets, a.metrics, a.log)
	a.setStatus(domain.CaptureRecording, "")
	a.emitter.Activate()
	a.untap = stream.Tap(a.emitter.HandleBlock)
	a.log.Info().Int("sample_rate", stream.SampleRate()).Msg("capture started")
	a.scheduleTick(attempt)
}

func (a *Adapter) requestTimedOut(attempt uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if attempt != a.attempt || a.status != domain.CaptureRequesting {
		return
	}
	a.attempt++
	a.stopRequest()
	a.log.Warn().Dur("timeout", a.cfg.RequestTimeout).Msg("device request timed out")
	a.setStatus(domain.CaptureError, "timed out waiting for microphone access")
}

func (a *Adapter) scheduleTick(attempt uint64) {
	a.ticker = a.sched.AfterFunc(time.Second, func() {
		a.tick(attempt)
	})
}

func (a *Adapter) tick(attempt uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if attempt != a.attempt || a.status != domain.CaptureRecording {
		return
	}
	a.elapsed++
	a.listener.CaptureElapsed(a.elapsed)
	a.scheduleTick(attempt)
}

// Stop releases the device and returns to idle. It is safe from any state;
// an unsupported adapter stays unsupported.
func (a *Adapter) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.status == domain.CaptureUnsupported {
		return nil
	}
	a.attempt++
	err := a.release()
	if a.status != domain.CaptureIdle || a.detail != "" {
		a.setStatus(domain.CaptureIdle, "")
	}
	return err
}

// Reset stops capture, forgets any file source and zeroes elapsed time.
func (a *Adapter) Reset() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.attempt++
	err := a.release()
	a.source = nil
	a.elapsed = 0
	a.listener.CaptureElapsed(0)
	if a.status == domain.CaptureUnsupported {
		return err
	}
	a.setStatus(domain.CaptureIdle, "")
	return err
}

// SetFromFile substitutes a recording on disk for live capture.
func (a *Adapter) SetFromFile(path string) error {
	src, err := audio.InspectFile(path)
	if err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return ErrClosed
	}
	a.attempt++
	releaseErr := a.release()
	a.source = &src
	a.elapsed = int(src.Duration / time.Second)
	a.log.Info().Str("file", src.Name).Str("format", src.Format).Dur("duration", src.Duration).Msg("recording loaded")

	// The upload path stays open even when live capture never can.
	if a.status != domain.CaptureUnsupported {
		a.setStatus(domain.CaptureUploading, "")
	}
	return releaseErr
}

// Close releases every device handle. The adapter cannot be started again.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return nil
	}
	a.closed = true
	a.attempt++
	return a.release()
}

func (a *Adapter) release() error {
	if a.untap != nil {
		a.untap()
		a.untap = nil
	}
	if a.emitter != nil {
		a.emitter.Deactivate()
		a.emitter = nil
	}
	a.stopRequest()
	if a.ticker != nil {
		a.ticker.Stop()
		a.ticker = nil
	}
	if a.stream == nil {
		return nil
	}
	err := a.stream.Close()
	a.stream = nil
	if err != nil {
		a.log.Warn().Err(err).Msg("failed to release capture stream")
		return fmt.Errorf("failed to release capture stream: %w", err)
	}
	return nil
}

func (a *Adapter) stopRequest() {
	if a.watchdog != nil {
		a.watchdog.Stop()
		a.watchdog = nil
	}
	if a.cancelOpen != nil {
		a.cancelOpen()
		a.cancelOpen = nil
	}
}

func (a *Adapter) setStatus(status domain.CaptureStatus, detail string) {
	a.status = status
	a.detail = detail
	a.listener.CaptureStatusChanged(status, detail)
}

type nopListener struct{}

func (nopListener) CaptureStatusChanged(domain.CaptureStatus, string) {}
func (nopListener) CaptureElapsed(int)                                {}
func (nopListener) AudioChunk(domain.AudioChunk)                      {}
func (nopListener) Levels([]float64)                                  {}
