package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"voicecoach/internal/domain"
)

// Config locates the backend REST API.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client is the explicit handle for backend REST calls.
type Client struct {
	baseURL *url.URL
	apiKey  string
	http    *http.Client
}

// Health is the /health response.
type Health struct {
	Status   string `json:"status"`
	Database bool   `json:"database"`
	LLM      bool   `json:"llm"`
	STTReady bool   `json:"stt_ready"`
}

// Online reports whether the backend considers itself healthy.
func (h Health) Online() bool {
	return strings.EqualFold(h.Status, "healthy") || strings.EqualFold(h.Status, "ok")
}

// Transcription is the one-shot /asr response.
type Transcription struct {
	Text        string  `json:"text"`
	DurationSec float64 `json:"duration_sec"`
}

// CritiqueRequest is sent to the coaching endpoint.
type CritiqueRequest struct {
	Transcript string                `json:"transcript"`
	Metrics    domain.DerivedMetrics `json:"metrics"`
	CEFR       string                `json:"cefr"`
	Skill      string                `json:"skill"`
}

// Critique is the coaching endpoint's structured feedback.
type Critique struct {
	Score         float64  `json:"score"`
	Feedback      []string `json:"feedback"`
	NextDrillHint string   `json:"next_drill_hint,omitempty"`
}

// DrillRequest asks the coaching endpoint for practice drills.
type DrillRequest struct {
	Skill string `json:"skill"`
	CEFR  string `json:"cefr"`
	Topic string `json:"topic,omitempty"`
	Count int    `json:"count"`
}

// Drill is one generated practice prompt.
type Drill struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Type   string `json:"type"`
	Prompt string `json:"prompt"`
}

// StatusError reports a non-2xx backend response.
type StatusError struct {
	StatusCode int
	Detail     string
}

func (e *StatusError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("backend returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("backend returned status %d: %s", e.StatusCode, e.Detail)
}

func New(cfg Config, httpClient *http.Client) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("backend base URL is empty")
	}
	parsed, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("invalid backend base URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("unsupported backend scheme %q", parsed.Scheme)
	}

	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{baseURL: parsed, apiKey: strings.TrimSpace(cfg.APIKey), http: httpClient}, nil
}

func (c *Client) Health(ctx context.Context) (Health, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/health", nil)
	if err != nil {
		return Health{}, err
	}
	var out Health
	if err := c.do(req, &out); err != nil {
		return Health{}, fmt.Errorf("health check failed: %w", err)
	}
	return out, nil
}

// Transcribe uploads a recording as multipart field "file".
func (c *Client) Transcribe(ctx context.Context, path string) (Transcription, error) {
	f, err := os.Open(path)
	if err != nil {
		return Transcription{}, fmt.Errorf("failed to open recording: %w", err)
	}
	defer f.Close()

	body, writer := io.Pipe()
	form := multipart.NewWriter(writer)
	go func() {
		part, err := form.CreateFormFile("file", filepath.Base(path))
		if err == nil {
			_, err = io.Copy(part, f)
		}
		if err == nil {
			err = form.Close()
		}
		_ = writer.CloseWithError(err)
	}()

	req, err := c.newRequest(ctx, http.MethodPost, "/asr", body)
	if err != nil {
		_ = body.Close()
		return Transcription{}, err
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	var out Transcription
	if err := c.do(req, &out); err != nil {
		_ = body.Close()
		return Transcription{}, fmt.Errorf("transcription upload failed: %w", err)
	}
	return out, nil
}

func (c *Client) Critique(ctx context.Context, in CritiqueRequest) (Critique, error) {
	payload, err := json.Marshal(in)
	if err != nil {
		return Critique{}, fmt.Errorf("failed to encode critique request: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, "/llm/critique", bytes.NewReader(payload))
	if err != nil {
		return Critique{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	var out Critique
	if err := c.do(req, &out); err != nil {
		return Critique{}, fmt.Errorf("critique request failed: %w", err)
	}
	return out, nil
}

func (c *Client) GenerateDrills(ctx context.Context, in DrillRequest) ([]Drill, error) {
	if in.Count <= 0 {
		in.Count = 3
	}
	payload, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("failed to encode drill request: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, "/llm/generate-drills", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	var out struct {
		Drills []Drill `json:"drills"`
	}
	if err := c.do(req, &out); err != nil {
		return nil, fmt.Errorf("drill generation failed: %w", err)
	}
	return out.Drills, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	endpoint := c.baseURL.JoinPath(path)
	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{StatusCode: resp.StatusCode, Detail: errorDetail(data)}
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("invalid response body: %w", err)
	}
	return nil
}

func errorDetail(data []byte) string {
	var body struct {
		Detail  any    `json:"detail"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &body); err == nil {
		switch detail := body.Detail.(type) {
		case string:
			if detail != "" {
				return detail
			}
		case nil:
		default:
			if encoded, err := json.Marshal(detail); err == nil {
				return string(encoded)
			}
		}
		if body.Message != "" {
			return body.Message
		}
	}
	return strings.TrimSpace(string(data))
}
