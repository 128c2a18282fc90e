package bootstrap

import (
	"context"
	"errors"
	"io"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"voicecoach/internal/audio"
	"voicecoach/internal/backend"
	"voicecoach/internal/capture"
	"voicecoach/internal/channel"
	"voicecoach/internal/clock"
	"voicecoach/internal/config"
	"voicecoach/internal/lexicon"
	"voicecoach/internal/logging"
	"voicecoach/internal/metrics"
	"voicecoach/internal/ports"
	"voicecoach/internal/usecase"
)

// Options overrides parts of the runtime graph.
type Options struct {
	ConfigPath string
	// EnvFile defaults to ".env" in the working directory.
	EnvFile string
	// Device replaces the configured capture backend.
	Device  ports.AudioDevice
	Console io.Writer
}

// Services is the assembled runtime graph.
type Services struct {
	Config       config.Config
	Log          zerolog.Logger
	Metrics      *metrics.Metrics
	Orchestrator *usecase.Orchestrator
	Health       *usecase.HealthPoller

	closers []func() error
}

// Build wires all dependencies for the current runtime.
func Build(events ports.EventSink, clipboard ports.Clipboard, opts Options) (*Services, error) {
	envFile := opts.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	cfg, err := config.LoadWithEnvFile(opts.ConfigPath, envFile)
	if err != nil {
		return nil, err
	}

	log, closeLog, err := logging.New(logging.Options{
		Level:   cfg.Telemetry.LogLevel,
		File:    cfg.Telemetry.LogFile,
		Console: opts.Console,
	})
	if err != nil {
		return nil, err
	}
	s := &Services{Config: cfg, Log: log, closers: []func() error{closeLog}}

	fillers, err := lexicon.Load(cfg.Session.LexiconFile, cfg.Session.ExtraFillers)
	if err != nil {
		_ = s.Close()
		return nil, err
	}

	client, err := backend.New(backend.Config{
		BaseURL: cfg.Backend.BaseURL,
		APIKey:  cfg.Backend.APIKey,
		Timeout: cfg.Backend.RequestTimeout(),
	}, nil)
	if err != nil {
		_ = s.Close()
		return nil, err
	}

	wsURL, err := channel.BuildURL(cfg.Backend.BaseURL, cfg.Backend.WSPath)
	if err != nil {
		_ = s.Close()
		return nil, err
	}

	s.Metrics = metrics.NewMetrics()
	if bind := cfg.Telemetry.MetricsBind; bind != "" {
		ctx, cancel := context.WithCancel(context.Background())
		s.closers = append(s.closers, func() error { cancel(); return nil })
		go func() {
			if err := s.Metrics.Serve(ctx, bind, log); err != nil {
				log.Warn().Err(err).Str("bind", bind).Msg("metrics listener stopped")
			}
		}()
	}

	device := opts.Device
	if device == nil {
		device = newDevice(cfg.Audio, log, s)
	}

	sched := clock.Real{}
	adapter := capture.NewAdapter(device, sched, s.Metrics, log, capture.Config{
		Origin:         cfg.Frontend.Origin,
		BlockSize:      cfg.Audio.BlockSize,
		RequestTimeout: cfg.Session.CaptureTimeout(),
		Buckets:        cfg.Audio.Buckets,
	})

	ch := channel.New(channel.Config{
		URL:          wsURL,
		APIKey:       cfg.Backend.APIKey,
		BaseDelay:    cfg.Channel.BaseDelay(),
		MaxDelay:     cfg.Channel.MaxDelay(),
		DialTimeout:  cfg.Channel.DialTimeout(),
		WriteTimeout: cfg.Channel.WriteTimeout(),
	}, channel.WebsocketDialer{Dialer: &websocket.Dialer{
		HandshakeTimeout: cfg.Channel.DialTimeout(),
	}}, sched, nil, s.Metrics, log)

	s.Orchestrator = usecase.NewOrchestrator(adapter, ch, client, fillers, clipboard, events, sched, s.Metrics, log, usecase.Config{
		StartTimeout:   cfg.Session.StartTimeout(),
		RequestTimeout: cfg.Backend.RequestTimeout(),
		Buckets:        cfg.Audio.Buckets,
	})
	ch.SetHandler(s.Orchestrator)

	s.Health = usecase.NewHealthPoller(client, events, sched, log, cfg.Backend.HealthInterval())

	log.Info().
		Str("backend", cfg.Backend.BaseURL).
		Str("audio_backend", cfg.Audio.Backend).
		Int("fillers", len(fillers.Terms())).
		Msg("services ready")
	return s, nil
}

func newDevice(cfg config.AudioConfig, log zerolog.Logger, s *Services) ports.AudioDevice {
	if cfg.Backend == config.AudioBackendFFMPEG {
		return audio.NewFFMPEGDevice(audio.FFMPEGConfig{
			Command:     cfg.FFMPEGCommand,
			InputFormat: cfg.InputFormat,
			InputDevice: cfg.InputDevice,
			SampleRate:  cfg.SampleRate,
		}, log)
	}
	device := audio.NewPortAudioDevice(cfg.InputDevice, log)
	s.closers = append(s.closers, device.Close)
	return device
}

// Close stops polling, ends any session and releases every resource.
func (s *Services) Close() error {
	if s == nil {
		return nil
	}
	var errs []error
	if s.Health != nil {
		s.Health.Stop()
	}
	if s.Orchestrator != nil {
		errs = append(errs, s.Orchestrator.Close())
	}
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i]())
	}
	s.closers = nil
	return errors.Join(errs...)
}
