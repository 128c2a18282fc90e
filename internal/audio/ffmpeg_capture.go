package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"voicecoach/internal/ports"
)

// FFMPEGConfig describes how ffmpeg should capture the microphone.
type FFMPEGConfig struct {
	Command     string
	InputFormat string
	InputDevice string
	SampleRate  int
}

// FFMPEGDevice captures microphone audio as mono float32 through ffmpeg.
type FFMPEGDevice struct {
	cfg FFMPEGConfig
	log zerolog.Logger
}

func NewFFMPEGDevice(cfg FFMPEGConfig, log zerolog.Logger) *FFMPEGDevice {
	if cfg.Command == "" {
		cfg.Command = "ffmpeg"
	}
	if cfg.InputFormat == "" {
		cfg.InputFormat = "pulse"
	}
	if cfg.InputDevice == "" {
		cfg.InputDevice = "default"
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 48000
	}
	return &FFMPEGDevice{cfg: cfg, log: log.With().Str("component", "ffmpeg_capture").Logger()}
}

func (d *FFMPEGDevice) Available() error {
	if _, err := exec.LookPath(d.cfg.Command); err != nil {
		return fmt.Errorf("capture command %q not found: %w", d.cfg.Command, err)
	}
	return nil
}

func (d *FFMPEGDevice) Open(ctx context.Context, blockSize int) (ports.AudioStream, error) {
	if blockSize <= 0 {
		blockSize = 4096
	}

	args := []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "warning",
		"-f", d.cfg.InputFormat,
		"-i", d.cfg.InputDevice,
		"-ac", "1",
		"-ar", strconv.Itoa(d.cfg.SampleRate),
		"-f", "f32le",
		"-",
	}

	// The process outlives the request context; Close ends it.
	cmd := exec.Command(d.cfg.Command, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create ffmpeg stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
		close(waitErr)
	}()

	select {
	case err := <-waitErr:
		return nil, classifyStartErr(err, stringsTrimSpaceSafe(stderr.String()))
	case <-ctx.Done():
		_ = cmd.Process.Kill()
		<-waitErr
		return nil, ctx.Err()
	case <-time.After(250 * time.Millisecond):
	}

	return &ffmpegStream{
		stdout:     stdout,
		stderr:     &stderr,
		process:    cmd.Process,
		waitErr:    waitErr,
		sampleRate: d.cfg.SampleRate,
		blockSize:  blockSize,
		taps:       newTapSet(),
		log:        d.log,
	}, nil
}

func classifyStartErr(err error, stderr string) error {
	lower := strings.ToLower(stderr)
	switch {
	case strings.Contains(lower, "permission denied"):
		return fmt.Errorf("%w: %s", ports.ErrPermissionDenied, stderr)
	case strings.Contains(lower, "no such file or directory"),
		strings.Contains(lower, "no such device"),
		strings.Contains(lower, "cannot open"):
		return fmt.Errorf("%w: %s", ports.ErrNoDevice, stderr)
	case err != nil:
		return fmt.Errorf("ffmpeg exited before capture started: %w: %s", err, stderr)
	default:
		return errors.New("ffmpeg exited before capture started")
	}
}

type ffmpegStream struct {
	stdout io.ReadCloser
	stderr *bytes.Buffer

	process *os.Process
	waitErr <-chan error

	sampleRate int
	blockSize  int
	taps       *tapSet
	log        zerolog.Logger

	startOnce sync.Once
	stopOnce  sync.Once
	stopErr   error
}

func (s *ffmpegStream) SampleRate() int {
	return s.sampleRate
}

func (s *ffmpegStream) Tap(fn ports.BlockFunc) func() {
	untap := s.taps.add(fn)
	s.startOnce.Do(func() {
		go s.readLoop()
	})
	return untap
}

func (s *ffmpegStream) readLoop() {
	raw := make([]byte, s.blockSize*4)
	for {
		n, err := io.ReadFull(s.stdout, raw)
		if n >= 4 {
			block := make([]float32, n/4)
			for i := range block {
				block[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
			}
			s.taps.dispatch(block, s.sampleRate)
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, os.ErrClosed) {
				s.log.Warn().Err(err).Msg("capture read failed")
			}
			return
		}
	}
}

func (s *ffmpegStream) Close() error {
	s.stopOnce.Do(func() {
		s.taps.clear()
		if s.process != nil {
			_ = s.process.Signal(os.Interrupt)
		}

		select {
		case err, ok := <-s.waitErr:
			if ok {
				s.stopErr = normalizeStopErr(err)
			}
		case <-time.After(1200 * time.Millisecond):
			if s.process != nil {
				_ = s.process.Kill()
			}
			err, ok := <-s.waitErr
			if ok {
				s.stopErr = normalizeStopErr(err)
			}
		}

		if closeErr := s.stdout.Close(); closeErr != nil && !errors.Is(closeErr, os.ErrClosed) {
			if s.stopErr == nil {
				s.stopErr = closeErr
			}
		}

		if s.stopErr != nil && s.stderr != nil && s.stderr.Len() > 0 {
			s.stopErr = fmt.Errorf("%w: %s", s.stopErr, stringsTrimSpaceSafe(s.stderr.String()))
		}
	})

	return s.stopErr
}

func normalizeStopErr(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}

func stringsTrimSpaceSafe(input string) string {
	if input == "" {
		return input
	}
	return string(bytes.TrimSpace([]byte(input)))
}
