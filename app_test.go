package main

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bep/debounce"

	"voicecoach/internal/domain"
)

func TestNoticeMessage(t *testing.T) {
	t.Parallel()

	cases := map[domain.ErrorCode]string{
		domain.ErrorCodeStartup:     "Startup failed",
		domain.ErrorCodeCapture:     "Microphone issue",
		domain.ErrorCodeChannel:     "Practice server unreachable",
		domain.ErrorCodeSession:     "Session issue",
		domain.ErrorCodeUpload:      "Upload failed",
		domain.ErrorCodeCritique:    "Coaching unavailable",
		domain.ErrorCodeClipboard:   "Clipboard write failed",
		domain.ErrorCodeUnavailable: "Backend offline",
	}
	for code, want := range cases {
		code := code
		want := want
		t.Run(string(code), func(t *testing.T) {
			t.Parallel()
			if got := noticeMessage(code, "ignored"); got != want {
				t.Fatalf("unexpected message: %q", got)
			}
		})
	}

	if got := noticeMessage("unknown", "detail"); got != "detail" {
		t.Fatalf("expected detail fallback, got %q", got)
	}
	if got := noticeMessage("unknown", ""); got != "Unknown error" {
		t.Fatalf("expected unknown fallback, got %q", got)
	}
}

func TestRequireReady(t *testing.T) {
	t.Parallel()

	app := &App{}
	if err := app.requireReady(); err == nil {
		t.Fatalf("expected uninitialized error")
	}

	bootErr := errors.New("boot")
	app.bootErr = bootErr
	if err := app.requireReady(); !errors.Is(err, bootErr) {
		t.Fatalf("expected boot error, got %v", err)
	}
	if _, err := app.StartSession(); !errors.Is(err, bootErr) {
		t.Fatalf("expected boot error from bound method, got %v", err)
	}
}

func TestGetStateWhenNotInitialized(t *testing.T) {
	t.Parallel()

	app := &App{}
	state := app.GetState()
	if state.Capture != domain.CaptureIdle || state.Active() || state.Phase != domain.PhaseReady {
		t.Fatalf("unexpected state: %+v", state)
	}

	app.bootErr = errors.New("boot")
	state = app.GetState()
	if state.Capture != domain.CaptureUnsupported || state.CaptureError != "boot" {
		t.Fatalf("unexpected boot state: %+v", state)
	}
	if info := app.GetRuntimeInfo(); info["error"] != "boot" {
		t.Fatalf("unexpected runtime info: %v", info)
	}
}

func TestEventsAreEmittedWithPayloads(t *testing.T) {
	t.Parallel()

	rec := &emitRecorder{}
	app := &App{ctx: context.Background(), emit: rec.emit, levelsFlush: func(f func()) { f() }}

	app.StateChanged(domain.SessionState{Capture: domain.CaptureDenied})
	app.Notice(domain.ErrorCodeChannel, "dial tcp: refused")
	app.BackendHealth(false)
	app.Levels([]float64{0.25, 0.5})

	events := rec.snapshot()
	if len(events) != 4 {
		t.Fatalf("expected 4 events, got %d", len(events))
	}

	state, ok := events[0].data.(statePayload)
	if events[0].name != eventState || !ok {
		t.Fatalf("unexpected state event: %+v", events[0])
	}
	if state.Guidance != domain.CaptureGuidance(domain.CaptureDenied) {
		t.Fatalf("expected denied guidance, got %q", state.Guidance)
	}

	notice := events[1].data.(map[string]string)
	if events[1].name != eventNotice || notice["code"] != "channel" || notice["message"] != "Practice server unreachable" {
		t.Fatalf("unexpected notice event: %+v", events[1])
	}

	if events[2].name != eventHealth || events[2].data.(map[string]bool)["online"] {
		t.Fatalf("unexpected health event: %+v", events[2])
	}

	levels := events[3].data.([]float64)
	if events[3].name != eventLevels || len(levels) != 2 || levels[1] != 0.5 {
		t.Fatalf("unexpected levels event: %+v", events[3])
	}
}

func TestLevelsKeepFlowingDuringSteadyCapture(t *testing.T) {
	t.Parallel()

	rec := &emitRecorder{}
	app := &App{ctx: context.Background(), emit: rec.emit, now: time.Now, levelsFlush: debounce.New(levelsInterval)}

	start := time.Now()
	last := 0.0
	for i := 1; time.Since(start) < 300*time.Millisecond; i++ {
		last = float64(i)
		app.Levels([]float64{last})
		time.Sleep(5 * time.Millisecond)
	}
	elapsed := time.Since(start)

	during := len(rec.levels())
	if during < 3 {
		t.Fatalf("expected levels to be emitted while calls keep arriving, got %d", during)
	}
	if limit := 2*int(elapsed/levelsInterval) + 2; during > limit {
		t.Fatalf("expected at most %d emits in %s, got %d", limit, elapsed, during)
	}

	deadline := time.Now().Add(time.Second)
	for {
		got := rec.levels()
		if got[len(got)-1][0] == last {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected the final buckets to be flushed, last emitted %v", got[len(got)-1])
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestLevelsThrottleWithinInterval(t *testing.T) {
	t.Parallel()

	rec := &emitRecorder{}
	now := time.Unix(0, 0)
	var flush func()
	app := &App{
		ctx:         context.Background(),
		emit:        rec.emit,
		now:         func() time.Time { return now },
		levelsFlush: func(f func()) { flush = f },
	}

	app.Levels([]float64{1})
	now = now.Add(10 * time.Millisecond)
	app.Levels([]float64{2})
	now = now.Add(10 * time.Millisecond)
	app.Levels([]float64{3})
	if got := rec.levels(); len(got) != 1 || got[0][0] != 1 {
		t.Fatalf("expected only the leading buckets inside one interval, got %v", got)
	}

	now = now.Add(levelsInterval)
	app.Levels([]float64{4})
	if got := rec.levels(); len(got) != 2 || got[1][0] != 4 {
		t.Fatalf("expected an emit once the interval passed, got %v", got)
	}

	now = now.Add(time.Millisecond)
	app.Levels([]float64{5})
	flush()
	flush()
	if got := rec.levels(); len(got) != 3 || got[2][0] != 5 {
		t.Fatalf("expected a single trailing flush of the latest buckets, got %v", got)
	}
}

func TestEventsBeforeStartupAreDropped(t *testing.T) {
	t.Parallel()

	rec := &emitRecorder{}
	app := &App{emit: rec.emit, levelsFlush: func(f func()) { f() }}
	app.StateChanged(domain.SessionState{})
	app.Notice(domain.ErrorCodeStartup, "x")
	app.BackendHealth(true)
	app.Levels([]float64{1})

	if got := rec.snapshot(); len(got) != 0 {
		t.Fatalf("expected no events before startup, got %d", len(got))
	}
}

type emitted struct {
	name string
	data interface{}
}

type emitRecorder struct {
	mu     sync.Mutex
	events []emitted
}

func (r *emitRecorder) emit(_ context.Context, name string, data ...interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var payload interface{}
	if len(data) > 0 {
		payload = data[0]
	}
	r.events = append(r.events, emitted{name: name, data: payload})
}

func (r *emitRecorder) levels() [][]float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out [][]float64
	for _, e := range r.events {
		if e.name == eventLevels {
			out = append(out, e.data.([]float64))
		}
	}
	return out
}

func (r *emitRecorder) snapshot() []emitted {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]emitted(nil), r.events...)
}
