package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Metrics holds the capture and channel counters. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	ChunksEmitted    prometheus.Counter
	ChunksSent       prometheus.Counter
	ChunksDropped    prometheus.Counter
	Reconnects       prometheus.Counter
	InboundErrors    prometheus.Counter
	EmitterErrors    prometheus.Counter
	ChunkSize        prometheus.Histogram
	ConnectionStatus *prometheus.GaugeVec
}

// NewMetrics creates the counters on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		ChunksEmitted: factory.NewCounter(prometheus.CounterOpts{
			Name: "voicecoach_chunks_emitted_total",
			Help: "Total number of PCM chunks produced by the chunk emitter",
		}),
		ChunksSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "voicecoach_chunks_sent_total",
			Help: "Total number of PCM chunks handed to a connected channel",
		}),
		ChunksDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "voicecoach_chunks_dropped_total",
			Help: "Total number of PCM chunks dropped while the channel was not connected",
		}),
		Reconnects: factory.NewCounter(prometheus.CounterOpts{
			Name: "voicecoach_channel_reconnects_total",
			Help: "Total number of scheduled channel reconnect attempts",
		}),
		InboundErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "voicecoach_inbound_errors_total",
			Help: "Total number of malformed inbound channel messages",
		}),
		EmitterErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "voicecoach_emitter_errors_total",
			Help: "Total number of swallowed per-chunk emitter failures",
		}),
		ChunkSize: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "voicecoach_chunk_size_bytes",
			Help:    "Size of emitted PCM chunks in bytes",
			Buckets: prometheus.ExponentialBuckets(256, 2, 8), // 256B to 32KB
		}),
		ConnectionStatus: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "voicecoach_channel_status",
			Help: "1 for the current channel connection status, 0 otherwise",
		}, []string{"status"}),
	}
}

// RecordChunkEmitted records one chunk leaving the emitter.
func (m *Metrics) RecordChunkEmitted(sizeBytes int) {
	if m == nil {
		return
	}
	m.ChunksEmitted.Inc()
	m.ChunkSize.Observe(float64(sizeBytes))
}

func (m *Metrics) RecordChunkSent() {
	if m == nil {
		return
	}
	m.ChunksSent.Inc()
}

func (m *Metrics) RecordChunkDropped() {
	if m == nil {
		return
	}
	m.ChunksDropped.Inc()
}

func (m *Metrics) RecordReconnect() {
	if m == nil {
		return
	}
	m.Reconnects.Inc()
}

func (m *Metrics) RecordInboundError() {
	if m == nil {
		return
	}
	m.InboundErrors.Inc()
}

func (m *Metrics) RecordEmitterError() {
	if m == nil {
		return
	}
	m.EmitterErrors.Inc()
}

// SetConnectionStatus flips the status gauge to the given value.
func (m *Metrics) SetConnectionStatus(current string, all ...string) {
	if m == nil {
		return
	}
	for _, status := range all {
		m.ConnectionStatus.WithLabelValues(status).Set(0)
	}
	m.ConnectionStatus.WithLabelValues(current).Set(1)
}

// Handler exposes the dedicated registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve runs a /metrics listener on bind until ctx is done.
func (m *Metrics) Serve(ctx context.Context, bind string, log zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	srv := &http.Server{
		Addr:              bind,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("bind", bind).Msg("metrics listener started")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
