package audio

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"
	"github.com/rs/zerolog"

	"voicecoach/internal/ports"
)

// PortAudioDevice captures mono float32 audio at the device's native rate.
type PortAudioDevice struct {
	deviceName string
	log        zerolog.Logger

	initOnce sync.Once
	initErr  error
}

func NewPortAudioDevice(deviceName string, log zerolog.Logger) *PortAudioDevice {
	return &PortAudioDevice{
		deviceName: deviceName,
		log:        log.With().Str("component", "portaudio_capture").Logger(),
	}
}

func (d *PortAudioDevice) init() error {
	d.initOnce.Do(func() {
		if err := portaudio.Initialize(); err != nil {
			d.initErr = fmt.Errorf("failed to initialize PortAudio: %w", err)
		}
	})
	return d.initErr
}

// Available reports whether PortAudio loaded and exposes any input device.
func (d *PortAudioDevice) Available() error {
	if err := d.init(); err != nil {
		return err
	}
	devices, err := portaudio.Devices()
	if err != nil {
		return fmt.Errorf("failed to enumerate devices: %w", err)
	}
	for _, dev := range devices {
		if dev.MaxInputChannels > 0 {
			return nil
		}
	}
	return ports.ErrNoDevice
}

func (d *PortAudioDevice) Open(ctx context.Context, blockSize int) (ports.AudioStream, error) {
	if err := d.init(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if blockSize <= 0 {
		blockSize = 4096
	}

	device, err := d.findDevice()
	if err != nil {
		return nil, err
	}

	buffer := make([]float32, blockSize)
	stream, err := portaudio.OpenStream(portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   device,
			Channels: 1,
			Latency:  device.DefaultLowInputLatency,
		},
		SampleRate:      device.DefaultSampleRate,
		FramesPerBuffer: len(buffer),
	}, buffer)
	if err != nil {
		return nil, classifyPortAudioErr("failed to open audio stream", err)
	}

	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return nil, classifyPortAudioErr("failed to start audio stream", err)
	}

	return &portAudioStream{
		stream:     stream,
		buffer:     buffer,
		sampleRate: int(device.DefaultSampleRate),
		taps:       newTapSet(),
		done:       make(chan struct{}),
		log:        d.log,
	}, nil
}

// Close terminates PortAudio.
func (d *PortAudioDevice) Close() error {
	if d.init() != nil {
		return nil
	}
	return portaudio.Terminate()
}

func (d *PortAudioDevice) findDevice() (*portaudio.DeviceInfo, error) {
	if d.deviceName == "" || d.deviceName == "default" {
		device, err := portaudio.DefaultInputDevice()
		if err != nil || device == nil {
			return nil, fmt.Errorf("%w: %v", ports.ErrNoDevice, err)
		}
		return device, nil
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate devices: %w", err)
	}
	for _, dev := range devices {
		if dev.Name == d.deviceName && dev.MaxInputChannels > 0 {
			return dev, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ports.ErrNoDevice, d.deviceName)
}

func classifyPortAudioErr(prefix string, err error) error {
	switch {
	case errors.Is(err, portaudio.InvalidDevice), errors.Is(err, portaudio.DeviceUnavailable):
		return fmt.Errorf("%s: %w: %v", prefix, ports.ErrNoDevice, err)
	case strings.Contains(strings.ToLower(err.Error()), "permission"):
		return fmt.Errorf("%s: %w: %v", prefix, ports.ErrPermissionDenied, err)
	default:
		return fmt.Errorf("%s: %w", prefix, err)
	}
}

type portAudioStream struct {
	stream     *portaudio.Stream
	buffer     []float32
	sampleRate int
	taps       *tapSet
	log        zerolog.Logger

	startOnce sync.Once
	started   bool
	done      chan struct{}

	mu      sync.Mutex
	closed  bool
	stopErr error
}

func (s *portAudioStream) SampleRate() int {
	return s.sampleRate
}

func (s *portAudioStream) Tap(fn ports.BlockFunc) func() {
	untap := s.taps.add(fn)
	s.startOnce.Do(func() {
		s.mu.Lock()
		s.started = true
		s.mu.Unlock()
		go s.readLoop()
	})
	return untap
}

func (s *portAudioStream) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *portAudioStream) readLoop() {
	defer close(s.done)
	for !s.isClosed() {
		if err := s.stream.Read(); err != nil {
			if s.isClosed() {
				return
			}
			if errors.Is(err, portaudio.InputOverflowed) {
				s.log.Debug().Err(err).Msg("input overflowed")
				continue
			}
			s.log.Warn().Err(err).Msg("capture read failed")
			return
		}
		block := make([]float32, len(s.buffer))
		copy(block, s.buffer)
		s.taps.dispatch(block, s.sampleRate)
	}
}

func (s *portAudioStream) Close() error {
	s.mu.Lock()
	if s.closed {
		err := s.stopErr
		s.mu.Unlock()
		return err
	}
	s.closed = true
	started := s.started
	s.mu.Unlock()

	s.taps.clear()
	stopErr := s.stream.Stop()
	if started {
		select {
		case <-s.done:
		case <-time.After(time.Second):
			s.log.Warn().Msg("capture read loop did not exit")
		}
	}
	if err := s.stream.Close(); err != nil && stopErr == nil {
		stopErr = err
	}

	s.mu.Lock()
	s.stopErr = stopErr
	s.mu.Unlock()
	return stopErr
}
