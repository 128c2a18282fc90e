package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"voicecoach/internal/backend"
	"voicecoach/internal/clock"
)

type scriptedChecker struct {
	mu      sync.Mutex
	results []error
	calls   int
}

func (s *scriptedChecker) Health(ctx context.Context) (backend.Health, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := ctx.Deadline(); !ok {
		return backend.Health{}, errors.New("health check without deadline")
	}
	var err error
	if s.calls < len(s.results) {
		err = s.results[s.calls]
	}
	s.calls++
	if err != nil {
		return backend.Health{}, err
	}
	return backend.Health{Status: "healthy", STTReady: true}, nil
}

func TestHealthPollerReportsTransitionsOnly(t *testing.T) {
	t.Parallel()

	down := errors.New("connection refused")
	checker := &scriptedChecker{results: []error{nil, nil, down, down, nil}}
	events := &fakeEventSink{}
	sched := &clock.Manual{}
	poller := NewHealthPoller(checker, events, sched, zerolog.Nop(), 10*time.Second)

	if _, known := poller.Online(); known {
		t.Fatalf("expected unknown health before first poll")
	}

	poller.Start()
	poller.Start()
	if pending := sched.Pending(); len(pending) != 1 || pending[0] != 0 {
		t.Fatalf("expected one immediate poll, got %v", pending)
	}
	if !sched.Fire(0) {
		t.Fatalf("expected immediate poll")
	}
	for i := 0; i < 4; i++ {
		if !sched.Fire(10 * time.Second) {
			t.Fatalf("expected poll %d to be scheduled", i+2)
		}
	}

	got := events.snapshotHealth()
	want := []bool{true, false, true}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
	if online, known := poller.Online(); !online || !known {
		t.Fatalf("expected online, got online=%v known=%v", online, known)
	}
}

func TestHealthPollerUnhealthyStatusIsOffline(t *testing.T) {
	t.Parallel()

	events := &fakeEventSink{}
	sched := &clock.Manual{}
	poller := NewHealthPoller(healthFunc(func(context.Context) (backend.Health, error) {
		return backend.Health{Status: "degraded"}, nil
	}), events, sched, zerolog.Nop(), time.Second)

	poller.Start()
	sched.Fire(0)
	if got := events.snapshotHealth(); len(got) != 1 || got[0] {
		t.Fatalf("expected offline, got %v", got)
	}
}

func TestHealthPollerStopCancelsPendingPoll(t *testing.T) {
	t.Parallel()

	checker := &scriptedChecker{}
	sched := &clock.Manual{}
	poller := NewHealthPoller(checker, &fakeEventSink{}, sched, zerolog.Nop(), time.Second)

	poller.Start()
	sched.Fire(0)
	poller.Stop()

	if pending := sched.Pending(); len(pending) != 0 {
		t.Fatalf("expected no pending polls, got %v", pending)
	}
	if checker.calls != 1 {
		t.Fatalf("expected one health call, got %d", checker.calls)
	}
}

type healthFunc func(ctx context.Context) (backend.Health, error)

func (f healthFunc) Health(ctx context.Context) (backend.Health, error) {
	return f(ctx)
}
