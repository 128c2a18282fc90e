package domain

// CaptureStatus models the microphone capture lifecycle.
type CaptureStatus string

const (
	CaptureIdle        CaptureStatus = "idle"
	CaptureRequesting  CaptureStatus = "requesting"
	CaptureRecording   CaptureStatus = "recording"
	CaptureDenied      CaptureStatus = "denied"
	CaptureUnsupported CaptureStatus = "unsupported"
	CaptureError       CaptureStatus = "error"
	CaptureUploading   CaptureStatus = "uploading"
)

// ConnectionStatus models the duplex channel lifecycle.
type ConnectionStatus string

const (
	ConnectionConnecting   ConnectionStatus = "connecting"
	ConnectionConnected    ConnectionStatus = "connected"
	ConnectionDisconnected ConnectionStatus = "disconnected"
	ConnectionError        ConnectionStatus = "error"
)

// SessionPhase is the local reading of the backend's session_status pushes.
type SessionPhase string

const (
	PhaseReady      SessionPhase = "ready"
	PhaseInProgress SessionPhase = "in_progress"
	PhaseListening  SessionPhase = "listening"
)

// ErrorCode identifies user-facing notices.
type ErrorCode string

const (
	ErrorCodeStartup     ErrorCode = "startup"
	ErrorCodeCapture     ErrorCode = "capture"
	ErrorCodeChannel     ErrorCode = "channel"
	ErrorCodeSession     ErrorCode = "session"
	ErrorCodeUpload      ErrorCode = "upload"
	ErrorCodeCritique    ErrorCode = "critique"
	ErrorCodeClipboard   ErrorCode = "clipboard"
	ErrorCodeUnavailable ErrorCode = "backend_unavailable"
)

// AudioChunk holds mono signed 16-bit little-endian PCM at TargetSampleRate.
type AudioChunk []byte

// TargetSampleRate is the rate the transcription backend expects.
const TargetSampleRate = 16000

// DerivedMetrics is a pure function of transcript and elapsed seconds.
type DerivedMetrics struct {
	Words               int `json:"words"`
	WordsPerMinute      int `json:"wordsPerMinute"`
	FillerCount         int `json:"fillerCount"`
	FillerRatePerMinute int `json:"fillerRatePerMinute"`
}

// SessionState is the single view handed to the presentation layer.
type SessionState struct {
	SessionID      string           `json:"sessionId,omitempty"`
	Capture        CaptureStatus    `json:"capture"`
	CaptureError   string           `json:"captureError,omitempty"`
	CaptureElapsed int              `json:"captureElapsed"`
	Connection     ConnectionStatus `json:"connection"`
	Phase          SessionPhase     `json:"phase"`
	Transcript     string           `json:"transcript"`
	Confidence     *float64         `json:"confidence,omitempty"`
	ElapsedSeconds int              `json:"elapsedSeconds"`
	Metrics        DerivedMetrics   `json:"derivedMetrics"`
	SourceFile     string           `json:"sourceFile,omitempty"`
}

// Active reports whether a practice session is open.
func (s SessionState) Active() bool {
	return s.SessionID != ""
}

// CaptureGuidance returns the inline message shown for a capture status.
func CaptureGuidance(status CaptureStatus) string {
	switch status {
	case CaptureDenied:
		return "Allow microphone access and retry, or upload a recording instead."
	case CaptureUnsupported:
		return "Live capture is not available here. Use a secure origin or upload a recording."
	case CaptureError:
		return "No working microphone was found. Check the device and retry, or upload a recording."
	case CaptureRequesting:
		return "Waiting for microphone access..."
	case CaptureRecording:
		return "Recording"
	case CaptureUploading:
		return "Recording loaded from file"
	default:
		return ""
	}
}
