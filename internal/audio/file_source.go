package audio

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-audio/wav"
)

// FileSource is a pre-recorded clip that substitutes for live capture.
type FileSource struct {
	Path       string
	Name       string
	Format     string
	SampleRate int
	Channels   int
	Duration   time.Duration
}

var supportedFormats = map[string]bool{
	"wav":  true,
	"webm": true,
	"mp3":  true,
	"m4a":  true,
	"ogg":  true,
	"flac": true,
}

// ErrUnsupportedFormat is returned for files the backend cannot ingest.
var ErrUnsupportedFormat = errors.New("unsupported audio format")

// InspectFile validates a recording on disk. WAV headers are decoded for
// rate, channels and duration; other formats are passed through as-is.
func InspectFile(path string) (FileSource, error) {
	info, err := os.Stat(path)
	if err != nil {
		return FileSource{}, fmt.Errorf("failed to stat recording: %w", err)
	}
	if info.IsDir() {
		return FileSource{}, fmt.Errorf("recording %q is a directory", path)
	}

	format := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if !supportedFormats[format] {
		return FileSource{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}

	src := FileSource{Path: path, Name: filepath.Base(path), Format: format}
	if format != "wav" {
		return src, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return FileSource{}, fmt.Errorf("failed to open recording: %w", err)
	}
	defer f.Close()

	decoder := wav.NewDecoder(f)
	if !decoder.IsValidFile() {
		return FileSource{}, fmt.Errorf("recording %q is not a valid wav file", src.Name)
	}
	duration, err := decoder.Duration()
	if err != nil {
		return FileSource{}, fmt.Errorf("failed to read wav duration: %w", err)
	}

	src.SampleRate = int(decoder.SampleRate)
	src.Channels = int(decoder.NumChans)
	src.Duration = duration
	return src, nil
}
