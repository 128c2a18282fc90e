package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"voicecoach/internal/backend"
	"voicecoach/internal/ports"
)

// HealthChecker reports backend availability.
type HealthChecker interface {
	Health(ctx context.Context) (backend.Health, error)
}

// HealthPoller polls the backend on a fixed interval and reports online
// transitions. Failures never affect capture or channel state.
type HealthPoller struct {
	checker  HealthChecker
	events   ports.EventSink
	sched    ports.Scheduler
	log      zerolog.Logger
	interval time.Duration
	timeout  time.Duration

	mu      sync.Mutex
	running bool
	gen     uint64
	timer   ports.Timer
	known   bool
	online  bool
}

func NewHealthPoller(checker HealthChecker, events ports.EventSink, sched ports.Scheduler, log zerolog.Logger, interval time.Duration) *HealthPoller {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	timeout := interval / 2
	if timeout > 5*time.Second {
		timeout = 5 * time.Second
	}
	return &HealthPoller{
		checker:  checker,
		events:   events,
		sched:    sched,
		log:      log.With().Str("component", "health_poller").Logger(),
		interval: interval,
		timeout:  timeout,
	}
}

// Start polls immediately and then every interval until Stop.
func (p *HealthPoller) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return
	}
	p.running = true
	p.gen++
	p.schedule(0, p.gen)
}

func (p *HealthPoller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.running = false
	p.gen++
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
}

// Online returns the last observed availability and whether any poll has
// completed yet.
func (p *HealthPoller) Online() (online bool, known bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.online, p.known
}

func (p *HealthPoller) schedule(delay time.Duration, gen uint64) {
	p.timer = p.sched.AfterFunc(delay, func() {
		p.poll(gen)
	})
}

func (p *HealthPoller) poll(gen uint64) {
	p.mu.Lock()
	if !p.running || gen != p.gen {
		p.mu.Unlock()
		return
	}
	p.timer = nil
	p.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	health, err := p.checker.Health(ctx)
	cancel()
	online := err == nil && health.Online()

	p.mu.Lock()
	if !p.running || gen != p.gen {
		p.mu.Unlock()
		return
	}
	changed := !p.known || p.online != online
	p.known = true
	p.online = online
	p.schedule(p.interval, gen)
	p.mu.Unlock()

	if !changed {
		return
	}
	if online {
		p.log.Info().Str("status", health.Status).Bool("stt_ready", health.STTReady).Msg("backend online")
	} else {
		p.log.Warn().Err(err).Str("status", health.Status).Msg("backend offline")
	}
	p.events.BackendHealth(online)
}
