package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"voicecoach/internal/backend"
	"voicecoach/internal/domain"
	"voicecoach/internal/metrics"
	"voicecoach/internal/ports"
	"voicecoach/internal/protocol"
)

var (
	ErrNoActiveSession = errors.New("no active practice session")
	ErrNoSourceFile    = errors.New("no recording loaded")
	ErrClosed          = errors.New("orchestrator closed")
)

// Coach is the request/response side of the backend.
type Coach interface {
	Transcribe(ctx context.Context, path string) (backend.Transcription, error)
	Critique(ctx context.Context, in backend.CritiqueRequest) (backend.Critique, error)
	GenerateDrills(ctx context.Context, in backend.DrillRequest) ([]backend.Drill, error)
}

// Config controls session timing.
type Config struct {
	StartTimeout   time.Duration
	RequestTimeout time.Duration
	Buckets        int
}

// Orchestrator owns SessionState. It composes the capture adapter and the
// session channel and is the only writer of state; every change is pushed
// to the EventSink as a full snapshot.
//
// The orchestrator lock is never held while calling into the capture
// adapter or the channel.
type Orchestrator struct {
	capture  ports.Capture
	channel  ports.Channel
	coach    Coach
	fillers  FillerCounter
	exporter transcriptExporter
	events   ports.EventSink
	sched    ports.Scheduler
	metrics  *metrics.Metrics
	log      zerolog.Logger
	cfg      Config
	newID    func() string

	mu         sync.Mutex
	state      domain.SessionState
	ticker     ports.Timer
	sessionGen uint64
	starting   bool
	closed     bool
}

func NewOrchestrator(
	capture ports.Capture,
	channel ports.Channel,
	coach Coach,
	fillers FillerCounter,
	clipboard ports.Clipboard,
	events ports.EventSink,
	sched ports.Scheduler,
	m *metrics.Metrics,
	log zerolog.Logger,
	cfg Config,
) *Orchestrator {
	if cfg.StartTimeout <= 0 {
		cfg.StartTimeout = 5 * time.Second
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}
	if cfg.Buckets < 0 {
		cfg.Buckets = 0
	}

	captureStatus, captureDetail := capture.Status()
	o := &Orchestrator{
		capture:  capture,
		channel:  channel,
		coach:    coach,
		fillers:  fillers,
		exporter: newTranscriptExporter(clipboard, events),
		events:   events,
		sched:    sched,
		metrics:  m,
		log:      log.With().Str("component", "orchestrator").Logger(),
		cfg:      cfg,
		newID:    uuid.NewString,
		state: domain.SessionState{
			Capture:      captureStatus,
			CaptureError: captureDetail,
			Connection:   channel.Status(),
			Phase:        domain.PhaseReady,
			SourceFile:   capture.SourceFile(),
		},
	}
	capture.SetListener(o)
	return o
}

// State returns a snapshot of the current SessionState.
func (o *Orchestrator) State() domain.SessionState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshot()
}

// StartSession ensures the channel is connected and announces a new
// session. A channel that cannot connect in time produces a notice, not an
// error; capture and upload stay usable without a session.
func (o *Orchestrator) StartSession(ctx context.Context) (domain.SessionState, error) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return domain.SessionState{}, ErrClosed
	}
	if o.state.Active() || o.starting {
		state := o.snapshot()
		o.mu.Unlock()
		return state, nil
	}
	o.starting = true
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		o.starting = false
		o.mu.Unlock()
	}()

	o.channel.Open()
	waitCtx, cancel := context.WithTimeout(ctx, o.cfg.StartTimeout)
	err := o.channel.WaitConnected(waitCtx)
	cancel()
	if err != nil {
		o.log.Warn().Err(err).Dur("timeout", o.cfg.StartTimeout).Msg("session channel not connected")
		o.events.Notice(domain.ErrorCodeChannel, "Could not reach the practice server. You can still record and upload.")
		return o.State(), nil
	}

	id := o.newID()
	if !o.channel.Send(protocol.SessionStart(id)) {
		o.log.Warn().Str("session_id", id).Msg("session_start was not delivered")
		o.events.Notice(domain.ErrorCodeSession, "Could not start the session. Try again.")
		return o.State(), nil
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return o.snapshot(), ErrClosed
	}
	o.sessionGen++
	o.state.SessionID = id
	o.state.Phase = domain.PhaseInProgress
	o.state.Transcript = ""
	o.state.Confidence = nil
	o.state.ElapsedSeconds = 0
	o.state.Metrics = ComputeMetrics("", 0, o.fillers)
	o.scheduleTick(o.sessionGen)
	o.log.Info().Str("session_id", id).Msg("session started")
	o.emitState()
	return o.snapshot(), nil
}

// EndSession announces the end of the active session. It does not stop
// capture; the transcript stays visible until the next session starts.
func (o *Orchestrator) EndSession() (domain.SessionState, error) {
	o.mu.Lock()
	if !o.state.Active() {
		o.mu.Unlock()
		return o.State(), ErrNoActiveSession
	}
	id := o.state.SessionID
	elapsed := o.state.ElapsedSeconds
	summary := o.state.Metrics
	o.endLocked()
	o.emitState()
	state := o.snapshot()
	o.mu.Unlock()

	o.events.Levels(make([]float64, o.cfg.Buckets))
	if !o.channel.Send(protocol.SessionEnd(id, elapsed, summary)) {
		o.log.Warn().Str("session_id", id).Msg("session_end was not delivered")
	}
	o.log.Info().Str("session_id", id).Int("elapsed_sec", elapsed).Int("words", summary.Words).Msg("session ended")
	return state, nil
}

func (o *Orchestrator) endLocked() {
	o.sessionGen++
	if o.ticker != nil {
		o.ticker.Stop()
		o.ticker = nil
	}
	o.state.SessionID = ""
	o.state.Phase = domain.PhaseReady
}

func (o *Orchestrator) scheduleTick(gen uint64) {
	o.ticker = o.sched.AfterFunc(time.Second, func() {
		o.tick(gen)
	})
}

func (o *Orchestrator) tick(gen uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if gen != o.sessionGen || !o.state.Active() {
		return
	}
	o.state.ElapsedSeconds++
	o.recompute()
	o.emitState()
	o.scheduleTick(gen)
}

func (o *Orchestrator) StartCapture(ctx context.Context) error {
	if err := o.capture.Start(ctx); err != nil {
		o.events.Notice(domain.ErrorCodeCapture, err.Error())
		return err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state.SourceFile != "" {
		o.state.SourceFile = ""
		o.emitState()
	}
	return nil
}

func (o *Orchestrator) StopCapture() error {
	if err := o.capture.Stop(); err != nil {
		o.events.Notice(domain.ErrorCodeCapture, err.Error())
		return err
	}
	return nil
}

// ResetCapture stops capture and discards any loaded recording.
func (o *Orchestrator) ResetCapture() error {
	err := o.capture.Reset()
	if err != nil {
		o.events.Notice(domain.ErrorCodeCapture, err.Error())
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.state.SourceFile = ""
	o.state.CaptureElapsed = 0
	o.emitState()
	return err
}

// SetFromFile loads a recording from disk in place of live capture.
func (o *Orchestrator) SetFromFile(path string) error {
	if err := o.capture.SetFromFile(path); err != nil {
		o.events.Notice(domain.ErrorCodeUpload, fmt.Sprintf("Could not use that recording: %v", err))
		return err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.state.SourceFile = path
	o.emitState()
	return nil
}

// UploadFile transcribes the loaded recording in one request and applies
// the result as the transcript.
func (o *Orchestrator) UploadFile(ctx context.Context) (domain.SessionState, error) {
	path := o.capture.SourceFile()
	if path == "" {
		return o.State(), ErrNoSourceFile
	}

	reqCtx, cancel := context.WithTimeout(ctx, o.cfg.RequestTimeout)
	defer cancel()
	result, err := o.coach.Transcribe(reqCtx, path)
	if err != nil {
		o.log.Warn().Err(err).Str("file", path).Msg("upload transcription failed")
		o.events.Notice(domain.ErrorCodeUpload, "Transcription failed. Check the server and try again.")
		return o.State(), err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	o.state.Transcript = strings.TrimSpace(result.Text)
	o.state.Confidence = nil
	if result.DurationSec > 0 {
		o.state.ElapsedSeconds = int(math.Round(result.DurationSec))
	}
	o.recompute()
	o.emitState()
	return o.snapshot(), nil
}

// RequestCritique asks the coaching backend to grade the current transcript.
func (o *Orchestrator) RequestCritique(ctx context.Context, cefr string, skill string) (backend.Critique, error) {
	state := o.State()
	if strings.TrimSpace(state.Transcript) == "" {
		return backend.Critique{}, ErrEmptyTranscript
	}

	reqCtx, cancel := context.WithTimeout(ctx, o.cfg.RequestTimeout)
	defer cancel()
	critique, err := o.coach.Critique(reqCtx, backend.CritiqueRequest{
		Transcript: state.Transcript,
		Metrics:    state.Metrics,
		CEFR:       cefr,
		Skill:      skill,
	})
	if err != nil {
		o.log.Warn().Err(err).Msg("critique failed")
		o.events.Notice(domain.ErrorCodeCritique, "Feedback is unavailable right now.")
		return backend.Critique{}, err
	}
	return critique, nil
}

func (o *Orchestrator) GenerateDrills(ctx context.Context, in backend.DrillRequest) ([]backend.Drill, error) {
	reqCtx, cancel := context.WithTimeout(ctx, o.cfg.RequestTimeout)
	defer cancel()
	drills, err := o.coach.GenerateDrills(reqCtx, in)
	if err != nil {
		o.log.Warn().Err(err).Str("skill", in.Skill).Msg("drill generation failed")
		o.events.Notice(domain.ErrorCodeCritique, "Drills are unavailable right now.")
		return nil, err
	}
	return drills, nil
}

// CopyTranscript puts the current transcript on the clipboard.
func (o *Orchestrator) CopyTranscript(ctx context.Context) error {
	return o.exporter.Export(ctx, o.State().Transcript)
}

// Close ends any active session and releases the device and the channel.
func (o *Orchestrator) Close() error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	o.closed = true
	id := o.state.SessionID
	elapsed := o.state.ElapsedSeconds
	summary := o.state.Metrics
	if id != "" {
		o.endLocked()
	}
	o.mu.Unlock()

	if id != "" {
		o.channel.Send(protocol.SessionEnd(id, elapsed, summary))
	}
	return errors.Join(o.capture.Close(), o.channel.Close())
}

// CaptureStatusChanged runs under the capture adapter lock.
func (o *Orchestrator) CaptureStatusChanged(status domain.CaptureStatus, detail string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.state.Capture = status
	o.state.CaptureError = detail
	o.emitState()
}

func (o *Orchestrator) CaptureElapsed(seconds int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.state.CaptureElapsed = seconds
	o.emitState()
}

// AudioChunk forwards a chunk while a session is active. Chunks produced
// while the channel is down are dropped.
func (o *Orchestrator) AudioChunk(chunk domain.AudioChunk) {
	o.mu.Lock()
	active := o.state.Active()
	o.mu.Unlock()
	if !active {
		return
	}

	if o.channel.Send(protocol.PCMChunk(chunk)) {
		o.metrics.RecordChunkSent()
		return
	}
	o.metrics.RecordChunkDropped()
}

func (o *Orchestrator) Levels(buckets []float64) {
	o.events.Levels(buckets)
}

func (o *Orchestrator) ConnectionStatusChanged(status domain.ConnectionStatus) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.state.Connection = status
	o.emitState()
}

// Inbound applies backend pushes in arrival order.
func (o *Orchestrator) Inbound(msg protocol.Inbound) {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch {
	case msg.Transcription != nil:
		o.state.Transcript = msg.Transcription.Text
		o.state.Confidence = msg.Transcription.Confidence
		o.recompute()
	case msg.SessionStatus != nil:
		phase := MapBackendStatus(msg.SessionStatus.Status)
		// A late push from an ended session cannot reopen it.
		if !o.state.Active() {
			phase = domain.PhaseReady
		}
		o.log.Debug().Str("status", msg.SessionStatus.Status).Str("phase", string(phase)).Msg("backend session status")
		o.state.Phase = phase
	default:
		return
	}
	o.emitState()
}

func (o *Orchestrator) recompute() {
	o.state.Metrics = ComputeMetrics(o.state.Transcript, o.state.ElapsedSeconds, o.fillers)
}

func (o *Orchestrator) snapshot() domain.SessionState {
	state := o.state
	if state.Confidence != nil {
		c := *state.Confidence
		state.Confidence = &c
	}
	return state
}

func (o *Orchestrator) emitState() {
	o.events.StateChanged(o.snapshot())
}
