package protocol

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"voicecoach/internal/domain"
)

// Message types carried over the duplex channel.
const (
	TypeSessionStart  = "session_start"
	TypeSessionEnd    = "session_end"
	TypeSessionStatus = "session_status"
	TypePCMChunk      = "pcm_chunk"
	TypeTranscription = "transcription"
)

// ErrUnknownType is returned for inbound envelopes with an unrecognized type.
var ErrUnknownType = errors.New("unknown message type")

// Envelope is the wire shape of every message.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Outbound is a message ready to be written to the channel.
type Outbound struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// SessionStartData opens a practice session on the backend.
type SessionStartData struct {
	SessionID  string `json:"session_id"`
	SampleRate int    `json:"sample_rate"`
	Encoding   string `json:"encoding"`
}

// SessionEndData closes a practice session on the backend.
type SessionEndData struct {
	SessionID      string                `json:"session_id"`
	ElapsedSeconds int                   `json:"elapsed_sec"`
	Metrics        domain.DerivedMetrics `json:"metrics"`
}

// PCMChunkData carries one base64 encoded AudioChunk.
type PCMChunkData struct {
	Chunk string `json:"chunk"`
}

// Transcription is the latest full partial transcript.
type Transcription struct {
	Text       string   `json:"text"`
	Confidence *float64 `json:"confidence,omitempty"`
	Partial    bool     `json:"partial,omitempty"`
}

// SessionStatus is a free-form status push.
type SessionStatus struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// Inbound is a decoded inbound message; exactly one payload field is set.
type Inbound struct {
	Type          string
	Transcription *Transcription
	SessionStatus *SessionStatus
}

func SessionStart(sessionID string) Outbound {
	return Outbound{Type: TypeSessionStart, Data: SessionStartData{
		SessionID:  sessionID,
		SampleRate: domain.TargetSampleRate,
		Encoding:   "pcm_s16le",
	}}
}

func SessionEnd(sessionID string, elapsed int, metrics domain.DerivedMetrics) Outbound {
	return Outbound{Type: TypeSessionEnd, Data: SessionEndData{
		SessionID:      sessionID,
		ElapsedSeconds: elapsed,
		Metrics:        metrics,
	}}
}

func StatusUpdate(status string) Outbound {
	return Outbound{Type: TypeSessionStatus, Data: SessionStatus{Status: status}}
}

func PCMChunk(chunk domain.AudioChunk) Outbound {
	return Outbound{Type: TypePCMChunk, Data: PCMChunkData{Chunk: base64.StdEncoding.EncodeToString(chunk)}}
}

// Encode marshals an outbound message.
func Encode(msg Outbound) ([]byte, error) {
	if msg.Type == "" {
		return nil, errors.New("outbound message has no type")
	}
	return json.Marshal(msg)
}

// DecodeInbound parses one inbound frame.
func DecodeInbound(payload []byte) (Inbound, error) {
	var env Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return Inbound{}, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeTranscription:
		var t Transcription
		if err := decodeData(env.Data, &t); err != nil {
			return Inbound{}, fmt.Errorf("invalid transcription: %w", err)
		}
		return Inbound{Type: env.Type, Transcription: &t}, nil
	case TypeSessionStatus:
		var s SessionStatus
		if err := decodeData(env.Data, &s); err != nil {
			return Inbound{}, fmt.Errorf("invalid session_status: %w", err)
		}
		return Inbound{Type: env.Type, SessionStatus: &s}, nil
	default:
		return Inbound{}, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
}

func decodeData(data json.RawMessage, target any) error {
	if len(data) == 0 || string(data) == "null" {
		return errors.New("missing data")
	}
	return json.Unmarshal(data, target)
}
