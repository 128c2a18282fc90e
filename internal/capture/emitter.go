package capture

import (
	"fmt"
	"sync/atomic"

	"github.com/rs/zerolog"

	"voicecoach/internal/audio"
	"voicecoach/internal/domain"
	"voicecoach/internal/metrics"
)

// ChunkSink receives emitter output.
type ChunkSink interface {
	AudioChunk(chunk domain.AudioChunk)
	Levels(buckets []float64)
}

// Emitter turns captured float blocks into PCM chunks. It only forwards
// blocks between Activate and Deactivate.
type Emitter struct {
	sink    atomic.Pointer[sinkRef]
	buckets int
	metrics *metrics.Metrics
	log     zerolog.Logger

	active atomic.Bool
}

func NewEmitter(sink ChunkSink, buckets int, m *metrics.Metrics, log zerolog.Logger) *Emitter {
	e := &Emitter{
		buckets: buckets,
		metrics: m,
		log:     log.With().Str("component", "chunk_emitter").Logger(),
	}
	e.SetSink(sink)
	return e
}

type sinkRef struct{ ChunkSink }

// SetSink swaps the receiver; blocks already being handled finish on the old one.
func (e *Emitter) SetSink(sink ChunkSink) {
	e.sink.Store(&sinkRef{sink})
}

func (e *Emitter) Activate() {
	e.active.Store(true)
}

func (e *Emitter) Deactivate() {
	e.active.Store(false)
}

func (e *Emitter) Active() bool {
	return e.active.Load()
}

// HandleBlock is registered as the stream's block callback.
func (e *Emitter) HandleBlock(block []float32, sampleRate int) {
	if !e.active.Load() {
		return
	}
	e.emit(block, sampleRate)
	if e.buckets > 0 {
		e.visualize(block)
	}
}

func (e *Emitter) emit(block []float32, sampleRate int) {
	defer func() {
		if r := recover(); r != nil {
			e.metrics.RecordEmitterError()
			e.log.Warn().Interface("panic", r).Msg("chunk emission failed")
		}
	}()

	if sampleRate <= 0 {
		e.metrics.RecordEmitterError()
		e.log.Warn().Err(fmt.Errorf("invalid sample rate %d", sampleRate)).Msg("chunk dropped")
		return
	}

	pcm := audio.Convert(block, sampleRate)
	if len(pcm) == 0 {
		return
	}
	chunk := domain.AudioChunk(audio.PCM16LE(pcm))
	e.sink.Load().AudioChunk(chunk)
	e.metrics.RecordChunkEmitted(len(chunk))
}

func (e *Emitter) visualize(block []float32) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Debug().Interface("panic", r).Msg("level computation failed")
		}
	}()

	levels := audio.Buckets(block, e.buckets)
	if levels == nil {
		return
	}
	e.sink.Load().Levels(levels)
}
