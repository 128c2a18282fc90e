package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// DefaultFile selects the platform log location.
const DefaultFile = "default"

// Options controls where log output goes.
type Options struct {
	Level string
	// File is an append-only log file. Empty disables file output;
	// DefaultFile selects DefaultPath().
	File    string
	Console io.Writer
}

// New creates a logger writing to the console and, optionally, a file.
// The returned close func releases the file.
func New(opts Options) (zerolog.Logger, func() error, error) {
	level := zerolog.InfoLevel
	if raw := strings.TrimSpace(opts.Level); raw != "" {
		parsed, err := zerolog.ParseLevel(strings.ToLower(raw))
		if err != nil {
			return zerolog.Nop(), nil, fmt.Errorf("invalid log level %q: %w", raw, err)
		}
		level = parsed
	}

	console := opts.Console
	if console == nil {
		console = os.Stderr
	}
	writers := []io.Writer{zerolog.ConsoleWriter{Out: console, TimeFormat: time.RFC3339}}
	closeFn := func() error { return nil }

	path := strings.TrimSpace(opts.File)
	if path == DefaultFile {
		path = DefaultPath()
	}
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return zerolog.Nop(), nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		logFile, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return zerolog.Nop(), nil, fmt.Errorf("failed to open log file: %w", err)
		}
		writers = append(writers, logFile)
		closeFn = logFile.Close
	}

	multi := zerolog.MultiLevelWriter(writers...)
	return zerolog.New(multi).Level(level).With().Timestamp().Str("app", "voicecoach").Logger(), closeFn, nil
}

// DefaultPath returns the platform-specific log file path.
func DefaultPath() string {
	var base string

	switch runtime.GOOS {
	case "darwin":
		base = filepath.Join(os.Getenv("HOME"), "Library", "Logs")
	case "windows":
		base = os.Getenv("LOCALAPPDATA")
	default:
		if xdg := os.Getenv("XDG_STATE_HOME"); xdg != "" {
			base = xdg
		} else {
			base = filepath.Join(os.Getenv("HOME"), ".local", "state")
		}
	}

	return filepath.Join(base, "voicecoach", "voicecoach.log")
}
