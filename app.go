package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bep/debounce"
	"github.com/wailsapp/wails/v2/pkg/runtime"

	"voicecoach/internal/backend"
	"voicecoach/internal/bootstrap"
	"voicecoach/internal/domain"
	"voicecoach/internal/usecase"
)

const (
	eventState  = "voicecoach:state"
	eventLevels = "voicecoach:levels"
	eventNotice = "voicecoach:notice"
	eventHealth = "voicecoach:health"

	levelsInterval = 50 * time.Millisecond
)

// emitFunc matches runtime.EventsEmit.
type emitFunc func(ctx context.Context, eventName string, optionalData ...interface{})

// App is the Wails application root.
type App struct {
	ctx  context.Context
	emit emitFunc

	services *bootstrap.Services
	orch     *usecase.Orchestrator
	bootErr  error

	now         func() time.Time
	levelsMu    sync.Mutex
	levels      []float64
	levelsDirty bool
	levelsSent  time.Time
	levelsFlush func(f func())
}

func NewApp() *App {
	return &App{
		emit:        runtime.EventsEmit,
		now:         time.Now,
		levelsFlush: debounce.New(levelsInterval),
	}
}

func (a *App) startup(ctx context.Context) {
	a.ctx = ctx

	services, err := bootstrap.Build(a, &wailsClipboard{}, bootstrap.Options{})
	if err != nil {
		a.bootErr = err
		a.Notice(domain.ErrorCodeStartup, err.Error())
		return
	}

	a.services = services
	a.orch = services.Orchestrator
	services.Health.Start()
	a.StateChanged(a.orch.State())
}

func (a *App) shutdown(context.Context) {
	if a.services == nil {
		return
	}
	if err := a.services.Close(); err != nil {
		a.services.Log.Warn().Err(err).Msg("shutdown was not clean")
	}
}

// StartCapture requests the microphone.
func (a *App) StartCapture() (domain.SessionState, error) {
	if err := a.requireReady(); err != nil {
		return domain.SessionState{}, err
	}
	err := a.orch.StartCapture(a.ctx)
	return a.orch.State(), err
}

// StopCapture releases the microphone.
func (a *App) StopCapture() (domain.SessionState, error) {
	if err := a.requireReady(); err != nil {
		return domain.SessionState{}, err
	}
	err := a.orch.StopCapture()
	return a.orch.State(), err
}

// ResetCapture stops capture and discards any loaded recording.
func (a *App) ResetCapture() (domain.SessionState, error) {
	if err := a.requireReady(); err != nil {
		return domain.SessionState{}, err
	}
	err := a.orch.ResetCapture()
	return a.orch.State(), err
}

// ChooseFile opens a file dialog and loads the selected recording.
func (a *App) ChooseFile() (domain.SessionState, error) {
	if err := a.requireReady(); err != nil {
		return domain.SessionState{}, err
	}
	path, err := runtime.OpenFileDialog(a.ctx, runtime.OpenDialogOptions{
		Title: "Choose a recording",
		Filters: []runtime.FileFilter{
			{DisplayName: "Audio (*.wav;*.webm;*.mp3;*.m4a;*.ogg)", Pattern: "*.wav;*.webm;*.mp3;*.m4a;*.ogg"},
		},
	})
	if err != nil {
		return a.orch.State(), err
	}
	if path == "" {
		return a.orch.State(), nil
	}
	return a.SetFromFile(path)
}

// SetFromFile loads a recording from disk in place of live capture.
func (a *App) SetFromFile(path string) (domain.SessionState, error) {
	if err := a.requireReady(); err != nil {
		return domain.SessionState{}, err
	}
	err := a.orch.SetFromFile(path)
	return a.orch.State(), err
}

// UploadRecording transcribes the loaded recording.
func (a *App) UploadRecording() (domain.SessionState, error) {
	if err := a.requireReady(); err != nil {
		return domain.SessionState{}, err
	}
	return a.orch.UploadFile(a.ctx)
}

// StartSession opens a practice session on the backend.
func (a *App) StartSession() (domain.SessionState, error) {
	if err := a.requireReady(); err != nil {
		return domain.SessionState{}, err
	}
	return a.orch.StartSession(a.ctx)
}

// EndSession closes the active practice session.
func (a *App) EndSession() (domain.SessionState, error) {
	if err := a.requireReady(); err != nil {
		return domain.SessionState{}, err
	}
	return a.orch.EndSession()
}

// GetState returns the current session state.
func (a *App) GetState() domain.SessionState {
	if a.orch == nil {
		state := domain.SessionState{
			Capture:    domain.CaptureIdle,
			Connection: domain.ConnectionDisconnected,
			Phase:      domain.PhaseReady,
		}
		if a.bootErr != nil {
			state.Capture = domain.CaptureUnsupported
			state.CaptureError = a.bootErr.Error()
		}
		return state
	}
	return a.orch.State()
}

// RequestCritique grades the current transcript.
func (a *App) RequestCritique(cefr string, skill string) (backend.Critique, error) {
	if err := a.requireReady(); err != nil {
		return backend.Critique{}, err
	}
	return a.orch.RequestCritique(a.ctx, cefr, skill)
}

// GenerateDrills asks the coach for practice drills.
func (a *App) GenerateDrills(skill string, cefr string, topic string, count int) ([]backend.Drill, error) {
	if err := a.requireReady(); err != nil {
		return nil, err
	}
	return a.orch.GenerateDrills(a.ctx, backend.DrillRequest{Skill: skill, CEFR: cefr, Topic: topic, Count: count})
}

// CopyTranscript puts the transcript on the clipboard.
func (a *App) CopyTranscript() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.orch.CopyTranscript(a.ctx)
}

// GetRuntimeInfo returns non-sensitive config for the UI.
func (a *App) GetRuntimeInfo() map[string]string {
	if a.bootErr != nil {
		return map[string]string{"error": a.bootErr.Error()}
	}
	if a.services == nil {
		return map[string]string{}
	}

	cfg := a.services.Config
	info := map[string]string{
		"backend":      cfg.Backend.BaseURL,
		"audioBackend": cfg.Audio.Backend,
		"audioInput":   cfg.Audio.InputDevice,
		"lexiconFile":  cfg.Session.LexiconFile,
		"origin":       cfg.Frontend.Origin,
	}
	if guidance := domain.CaptureGuidance(a.orch.State().Capture); guidance != "" {
		info["captureGuidance"] = guidance
	}
	return info
}

func (a *App) requireReady() error {
	if a.bootErr != nil {
		return a.bootErr
	}
	if a.orch == nil {
		return fmt.Errorf("application is not initialized")
	}
	return nil
}

// StateChanged emits the full session state with inline capture guidance.
func (a *App) StateChanged(state domain.SessionState) {
	if a.ctx == nil {
		return
	}
	a.emit(a.ctx, eventState, statePayload{
		SessionState: state,
		Guidance:     domain.CaptureGuidance(state.Capture),
	})
}

// Levels emits visualization buckets at most once per levelsInterval. The
// last buckets of a burst are flushed once calls go quiet.
func (a *App) Levels(buckets []float64) {
	if a.ctx == nil {
		return
	}
	a.levelsMu.Lock()
	a.levels = append(a.levels[:0], buckets...)
	a.levelsDirty = true
	latest := a.takeLevelsLocked(false)
	a.levelsMu.Unlock()

	if latest != nil {
		a.emit(a.ctx, eventLevels, latest)
	}
	a.levelsFlush(a.flushLevels)
}

func (a *App) flushLevels() {
	a.levelsMu.Lock()
	latest := a.takeLevelsLocked(true)
	a.levelsMu.Unlock()

	if latest != nil {
		a.emit(a.ctx, eventLevels, latest)
	}
}

// takeLevelsLocked returns a copy of unsent buckets when they are due.
func (a *App) takeLevelsLocked(force bool) []float64 {
	if !a.levelsDirty {
		return nil
	}
	now := a.clock()
	if !force && now.Sub(a.levelsSent) < levelsInterval {
		return nil
	}
	a.levelsSent = now
	a.levelsDirty = false
	return append([]float64(nil), a.levels...)
}

func (a *App) clock() time.Time {
	if a.now == nil {
		return time.Now()
	}
	return a.now()
}

// Notice emits a toast to the UI.
func (a *App) Notice(code domain.ErrorCode, detail string) {
	if a.ctx == nil {
		return
	}
	a.emit(a.ctx, eventNotice, map[string]string{
		"code":    string(code),
		"message": noticeMessage(code, detail),
		"detail":  detail,
	})
}

// BackendHealth emits the online/offline indicator.
func (a *App) BackendHealth(online bool) {
	if a.ctx == nil {
		return
	}
	a.emit(a.ctx, eventHealth, map[string]bool{"online": online})
}

type statePayload struct {
	domain.SessionState
	Guidance string `json:"guidance,omitempty"`
}

func noticeMessage(code domain.ErrorCode, detail string) string {
	switch code {
	case domain.ErrorCodeStartup:
		return "Startup failed"
	case domain.ErrorCodeCapture:
		return "Microphone issue"
	case domain.ErrorCodeChannel:
		return "Practice server unreachable"
	case domain.ErrorCodeSession:
		return "Session issue"
	case domain.ErrorCodeUpload:
		return "Upload failed"
	case domain.ErrorCodeCritique:
		return "Coaching unavailable"
	case domain.ErrorCodeClipboard:
		return "Clipboard write failed"
	case domain.ErrorCodeUnavailable:
		return "Backend offline"
	default:
		if detail == "" {
			return "Unknown error"
		}
		return detail
	}
}

type wailsClipboard struct{}

func (c *wailsClipboard) SetText(ctx context.Context, text string) error {
	return runtime.ClipboardSetText(ctx, text)
}
