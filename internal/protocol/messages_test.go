package protocol

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestDecodeInboundTranscription(t *testing.T) {
	t.Parallel()

	msg, err := DecodeInbound([]byte(`{"type":"transcription","data":{"text":"hello there","confidence":0.7,"partial":true}}`))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if msg.Transcription == nil || msg.Transcription.Text != "hello there" {
		t.Fatalf("unexpected transcription: %+v", msg.Transcription)
	}
	if msg.Transcription.Confidence == nil || *msg.Transcription.Confidence != 0.7 {
		t.Fatalf("unexpected confidence: %v", msg.Transcription.Confidence)
	}
	if msg.SessionStatus != nil {
		t.Fatalf("expected only one payload")
	}
}

func TestDecodeInboundTranscriptionWithoutConfidence(t *testing.T) {
	t.Parallel()

	msg, err := DecodeInbound([]byte(`{"type":"transcription","data":{"text":""}}`))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if msg.Transcription.Confidence != nil {
		t.Fatalf("expected nil confidence")
	}
}

func TestDecodeInboundSessionStatus(t *testing.T) {
	t.Parallel()

	msg, err := DecodeInbound([]byte(`{"type":"session_status","data":{"status":"started","message":"Session started successfully"}}`))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if msg.SessionStatus == nil || msg.SessionStatus.Status != "started" {
		t.Fatalf("unexpected status: %+v", msg.SessionStatus)
	}
}

func TestDecodeInboundRejectsMalformedPayloads(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"not json":     `{{{`,
		"missing data": `{"type":"transcription"}`,
		"null data":    `{"type":"session_status","data":null}`,
		"bad data":     `{"type":"transcription","data":{"text":5}}`,
	}
	for name, payload := range cases {
		payload := payload
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			if _, err := DecodeInbound([]byte(payload)); err == nil {
				t.Fatalf("expected error for %q", payload)
			}
		})
	}
}

func TestDecodeInboundUnknownType(t *testing.T) {
	t.Parallel()

	_, err := DecodeInbound([]byte(`{"type":"pong","data":{}}`))
	if !errors.Is(err, ErrUnknownType) {
		t.Fatalf("expected ErrUnknownType, got %v", err)
	}
}

func TestPCMChunkEncodesBase64(t *testing.T) {
	t.Parallel()

	payload, err := Encode(PCMChunk([]byte{0x01, 0x00, 0xff, 0x7f}))
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	var env struct {
		Type string `json:"type"`
		Data struct {
			Chunk string `json:"chunk"`
		} `json:"data"`
	}
	if err := json.Unmarshal(payload, &env); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if env.Type != TypePCMChunk {
		t.Fatalf("unexpected type: %q", env.Type)
	}
	raw, err := base64.StdEncoding.DecodeString(env.Data.Chunk)
	if err != nil {
		t.Fatalf("chunk is not base64: %v", err)
	}
	if len(raw) != 4 || raw[3] != 0x7f {
		t.Fatalf("unexpected chunk bytes: %v", raw)
	}
}

func TestSessionStartCarriesAudioFormat(t *testing.T) {
	t.Parallel()

	payload, err := Encode(SessionStart("abc"))
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	text := string(payload)
	for _, want := range []string{`"type":"session_start"`, `"session_id":"abc"`, `"sample_rate":16000`} {
		if !strings.Contains(text, want) {
			t.Fatalf("expected %s in %s", want, text)
		}
	}
}

func TestEncodeRequiresType(t *testing.T) {
	t.Parallel()

	if _, err := Encode(Outbound{}); err == nil {
		t.Fatalf("expected error for empty type")
	}
}
