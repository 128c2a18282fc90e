package usecase

import (
	"context"
	"sync"

	"voicecoach/internal/backend"
	"voicecoach/internal/domain"
	"voicecoach/internal/ports"
	"voicecoach/internal/protocol"
)

type fakeCapture struct {
	mu sync.Mutex

	listener ports.CaptureListener
	status   domain.CaptureStatus
	detail   string
	source   string

	startErr error
	fileErr  error
	closeErr error

	starts int
	stops  int
	resets int
	closes int
}

func newFakeCapture() *fakeCapture {
	return &fakeCapture{status: domain.CaptureIdle}
}

func (f *fakeCapture) SetListener(l ports.CaptureListener) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listener = l
}

func (f *fakeCapture) Start(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	if f.startErr != nil {
		return f.startErr
	}
	f.source = ""
	f.setStatus(domain.CaptureRecording, "")
	return nil
}

func (f *fakeCapture) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	f.setStatus(domain.CaptureIdle, "")
	return nil
}

func (f *fakeCapture) Reset() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets++
	f.source = ""
	f.listener.CaptureElapsed(0)
	f.setStatus(domain.CaptureIdle, "")
	return nil
}

func (f *fakeCapture) SetFromFile(path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fileErr != nil {
		return f.fileErr
	}
	f.source = path
	f.setStatus(domain.CaptureUploading, "")
	return nil
}

func (f *fakeCapture) SourceFile() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.source
}

func (f *fakeCapture) Status() (domain.CaptureStatus, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status, f.detail
}

func (f *fakeCapture) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	return f.closeErr
}

// emit pushes a status change as the adapter would from its own goroutine.
func (f *fakeCapture) emit(status domain.CaptureStatus, detail string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setStatus(status, detail)
}

func (f *fakeCapture) setStatus(status domain.CaptureStatus, detail string) {
	f.status = status
	f.detail = detail
	if f.listener != nil {
		f.listener.CaptureStatusChanged(status, detail)
	}
}

type fakeChannel struct {
	mu sync.Mutex

	status    domain.ConnectionStatus
	waitErr   error
	connected bool
	sendFails map[string]bool

	opens  int
	closes int
	sent   []protocol.Outbound
}

func newFakeChannel(connected bool) *fakeChannel {
	status := domain.ConnectionDisconnected
	if connected {
		status = domain.ConnectionConnected
	}
	return &fakeChannel{status: status, connected: connected, sendFails: map[string]bool{}}
}

func (f *fakeChannel) Open() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opens++
}

func (f *fakeChannel) Status() domain.ConnectionStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func (f *fakeChannel) WaitConnected(ctx context.Context) error {
	f.mu.Lock()
	err := f.waitErr
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return ctx.Err()
}

func (f *fakeChannel) Send(msg protocol.Outbound) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected || f.sendFails[msg.Type] {
		return false
	}
	f.sent = append(f.sent, msg)
	return true
}

func (f *fakeChannel) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	return nil
}

func (f *fakeChannel) setConnected(connected bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = connected
}

func (f *fakeChannel) snapshotSent() []protocol.Outbound {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]protocol.Outbound, len(f.sent))
	copy(out, f.sent)
	return out
}

func (f *fakeChannel) sentTypes() []string {
	sent := f.snapshotSent()
	out := make([]string, 0, len(sent))
	for _, msg := range sent {
		out = append(out, msg.Type)
	}
	return out
}

type fakeCoach struct {
	mu sync.Mutex

	transcription backend.Transcription
	transcribeErr error
	critique      backend.Critique
	critiqueErr   error
	drills        []backend.Drill
	drillsErr     error

	uploaded  []string
	critiques []backend.CritiqueRequest
}

func (f *fakeCoach) Transcribe(_ context.Context, path string) (backend.Transcription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploaded = append(f.uploaded, path)
	return f.transcription, f.transcribeErr
}

func (f *fakeCoach) Critique(_ context.Context, in backend.CritiqueRequest) (backend.Critique, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.critiques = append(f.critiques, in)
	return f.critique, f.critiqueErr
}

func (f *fakeCoach) GenerateDrills(_ context.Context, _ backend.DrillRequest) ([]backend.Drill, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.drills, f.drillsErr
}

type fakeClipboard struct {
	lastText string
	err      error
}

func (f *fakeClipboard) SetText(_ context.Context, text string) error {
	f.lastText = text
	return f.err
}

type fakeEventSink struct {
	mu sync.Mutex

	states  []domain.SessionState
	levels  [][]float64
	notices []noticeEvent
	health  []bool
}

type noticeEvent struct {
	code   domain.ErrorCode
	detail string
}

func (f *fakeEventSink) StateChanged(state domain.SessionState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states = append(f.states, state)
}

func (f *fakeEventSink) Levels(buckets []float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.levels = append(f.levels, buckets)
}

func (f *fakeEventSink) Notice(code domain.ErrorCode, detail string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notices = append(f.notices, noticeEvent{code: code, detail: detail})
}

func (f *fakeEventSink) BackendHealth(online bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.health = append(f.health, online)
}

func (f *fakeEventSink) snapshotNotices() []noticeEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]noticeEvent, len(f.notices))
	copy(out, f.notices)
	return out
}

func (f *fakeEventSink) snapshotHealth() []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]bool(nil), f.health...)
}

func (f *fakeEventSink) lastState() domain.SessionState {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.states) == 0 {
		return domain.SessionState{}
	}
	return f.states[len(f.states)-1]
}

func (f *fakeEventSink) lastLevels() []float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.levels) == 0 {
		return nil
	}
	return f.levels[len(f.levels)-1]
}
