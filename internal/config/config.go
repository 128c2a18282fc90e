package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/samber/lo"
	"gopkg.in/yaml.v3"
)

// Config stores runtime configuration for the practice client.
type Config struct {
	Backend   BackendConfig   `yaml:"backend"`
	Audio     AudioConfig     `yaml:"audio"`
	Channel   ChannelConfig   `yaml:"channel"`
	Session   SessionConfig   `yaml:"session"`
	Frontend  FrontendConfig  `yaml:"frontend"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

type BackendConfig struct {
	BaseURL          string `yaml:"base_url"`
	WSPath           string `yaml:"ws_path"`
	APIKey           string `yaml:"api_key"`
	HealthIntervalMS int    `yaml:"health_interval_ms"`
	RequestTimeoutMS int    `yaml:"request_timeout_ms"`
}

type AudioConfig struct {
	Backend       string `yaml:"backend"`
	FFMPEGCommand string `yaml:"ffmpeg_command"`
	InputFormat   string `yaml:"input_format"`
	InputDevice   string `yaml:"input_device"`
	SampleRate    int    `yaml:"sample_rate"`
	BlockSize     int    `yaml:"block_size"`
	Buckets       int    `yaml:"buckets"`
}

type ChannelConfig struct {
	BaseDelayMS    int `yaml:"base_delay_ms"`
	MaxDelayMS     int `yaml:"max_delay_ms"`
	DialTimeoutMS  int `yaml:"dial_timeout_ms"`
	WriteTimeoutMS int `yaml:"write_timeout_ms"`
}

type SessionConfig struct {
	LexiconFile      string   `yaml:"lexicon_file"`
	ExtraFillers     []string `yaml:"extra_fillers"`
	StartTimeoutMS   int      `yaml:"start_timeout_ms"`
	CaptureTimeoutMS int      `yaml:"capture_timeout_ms"`
}

type FrontendConfig struct {
	Origin string `yaml:"origin"`
}

type TelemetryConfig struct {
	LogLevel    string `yaml:"log_level"`
	LogFile     string `yaml:"log_file"`
	MetricsBind string `yaml:"metrics_bind"`
}

const (
	AudioBackendPortAudio = "portaudio"
	AudioBackendFFMPEG    = "ffmpeg"
)

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Backend: BackendConfig{
			BaseURL:          "http://localhost:8000",
			WSPath:           "/ws",
			HealthIntervalMS: 15000,
			RequestTimeoutMS: 60000,
		},
		Audio: AudioConfig{
			Backend:       AudioBackendPortAudio,
			FFMPEGCommand: "ffmpeg",
			InputFormat:   "pulse",
			InputDevice:   "default",
			SampleRate:    48000,
			BlockSize:     4096,
			Buckets:       20,
		},
		Channel: ChannelConfig{
			BaseDelayMS:    500,
			MaxDelayMS:     4000,
			DialTimeoutMS:  5000,
			WriteTimeoutMS: 2000,
		},
		Session: SessionConfig{
			StartTimeoutMS:   5000,
			CaptureTimeoutMS: 10000,
		},
		Frontend: FrontendConfig{
			Origin: "wails://wails",
		},
		Telemetry: TelemetryConfig{
			LogLevel: "info",
		},
	}
}

// Load resolves configuration from defaults, an optional YAML file, a .env
// file in the working directory and VOICECOACH_* environment variables.
func Load(path string) (Config, error) {
	return LoadWithEnvFile(path, ".env")
}

// LoadWithEnvFile is Load with an explicit dotenv path. Real environment
// variables win over dotenv values; a missing dotenv file is ignored.
func LoadWithEnvFile(path string, envFile string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	dotenv := map[string]string{}
	if envFile != "" {
		values, err := godotenv.Read(envFile)
		switch {
		case err == nil:
			dotenv = values
		case errors.Is(err, os.ErrNotExist):
		default:
			return cfg, fmt.Errorf("failed to read %s: %w", envFile, err)
		}
	}

	applyEnvOverrides(&cfg, envLookup(dotenv))
	applyFallbacks(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

type lookupFunc func(key string) (string, bool)

func envLookup(dotenv map[string]string) lookupFunc {
	return func(key string) (string, bool) {
		if value, ok := os.LookupEnv(key); ok {
			return value, true
		}
		value, ok := dotenv[key]
		return value, ok
	}
}

func applyEnvOverrides(cfg *Config, lookup lookupFunc) {
	overrideString(lookup, &cfg.Backend.BaseURL, "VOICECOACH_BACKEND_URL")
	overrideString(lookup, &cfg.Backend.WSPath, "VOICECOACH_BACKEND_WS_PATH")
	overrideString(lookup, &cfg.Backend.APIKey, "VOICECOACH_API_KEY")
	overrideInt(lookup, &cfg.Backend.HealthIntervalMS, "VOICECOACH_HEALTH_INTERVAL_MS")
	overrideInt(lookup, &cfg.Backend.RequestTimeoutMS, "VOICECOACH_REQUEST_TIMEOUT_MS")
	overrideString(lookup, &cfg.Audio.Backend, "VOICECOACH_AUDIO_BACKEND")
	overrideString(lookup, &cfg.Audio.FFMPEGCommand, "VOICECOACH_FFMPEG_COMMAND")
	overrideString(lookup, &cfg.Audio.InputFormat, "VOICECOACH_AUDIO_INPUT_FORMAT")
	overrideString(lookup, &cfg.Audio.InputDevice, "VOICECOACH_AUDIO_INPUT_DEVICE")
	overrideInt(lookup, &cfg.Audio.SampleRate, "VOICECOACH_AUDIO_SAMPLE_RATE")
	overrideInt(lookup, &cfg.Audio.BlockSize, "VOICECOACH_AUDIO_BLOCK_SIZE")
	overrideInt(lookup, &cfg.Audio.Buckets, "VOICECOACH_AUDIO_BUCKETS")
	overrideInt(lookup, &cfg.Channel.BaseDelayMS, "VOICECOACH_CHANNEL_BASE_DELAY_MS")
	overrideInt(lookup, &cfg.Channel.MaxDelayMS, "VOICECOACH_CHANNEL_MAX_DELAY_MS")
	overrideInt(lookup, &cfg.Channel.DialTimeoutMS, "VOICECOACH_CHANNEL_DIAL_TIMEOUT_MS")
	overrideInt(lookup, &cfg.Channel.WriteTimeoutMS, "VOICECOACH_CHANNEL_WRITE_TIMEOUT_MS")
	overrideString(lookup, &cfg.Session.LexiconFile, "VOICECOACH_LEXICON_FILE")
	overrideStringSlice(lookup, &cfg.Session.ExtraFillers, "VOICECOACH_EXTRA_FILLERS")
	overrideInt(lookup, &cfg.Session.StartTimeoutMS, "VOICECOACH_SESSION_START_TIMEOUT_MS")
	overrideInt(lookup, &cfg.Session.CaptureTimeoutMS, "VOICECOACH_CAPTURE_TIMEOUT_MS")
	overrideString(lookup, &cfg.Frontend.Origin, "VOICECOACH_FRONTEND_ORIGIN")
	overrideString(lookup, &cfg.Telemetry.LogLevel, "VOICECOACH_LOG_LEVEL")
	overrideString(lookup, &cfg.Telemetry.LogFile, "VOICECOACH_LOG_FILE")
	overrideString(lookup, &cfg.Telemetry.MetricsBind, "VOICECOACH_METRICS_BIND")
}

// applyFallbacks replaces out-of-range numbers with defaults.
func applyFallbacks(cfg *Config) {
	def := Default()
	positive := func(target *int, fallback int) {
		if *target <= 0 {
			*target = fallback
		}
	}
	positive(&cfg.Backend.HealthIntervalMS, def.Backend.HealthIntervalMS)
	positive(&cfg.Backend.RequestTimeoutMS, def.Backend.RequestTimeoutMS)
	positive(&cfg.Audio.SampleRate, def.Audio.SampleRate)
	positive(&cfg.Channel.BaseDelayMS, def.Channel.BaseDelayMS)
	positive(&cfg.Channel.MaxDelayMS, def.Channel.MaxDelayMS)
	positive(&cfg.Channel.DialTimeoutMS, def.Channel.DialTimeoutMS)
	positive(&cfg.Channel.WriteTimeoutMS, def.Channel.WriteTimeoutMS)
	positive(&cfg.Session.StartTimeoutMS, def.Session.StartTimeoutMS)
	positive(&cfg.Session.CaptureTimeoutMS, def.Session.CaptureTimeoutMS)
	if cfg.Audio.BlockSize < 256 {
		cfg.Audio.BlockSize = def.Audio.BlockSize
	}
	if cfg.Audio.Buckets < 0 {
		cfg.Audio.Buckets = 0
	}
	cfg.Audio.Backend = strings.ToLower(strings.TrimSpace(cfg.Audio.Backend))
	cfg.Session.ExtraFillers = lo.Uniq(lo.Compact(lo.Map(cfg.Session.ExtraFillers, func(word string, _ int) string {
		return strings.ToLower(strings.TrimSpace(word))
	})))
}

func validate(cfg Config) error {
	base, err := url.Parse(strings.TrimSpace(cfg.Backend.BaseURL))
	if err != nil || base.Host == "" {
		return fmt.Errorf("backend.base_url %q is not a valid URL", cfg.Backend.BaseURL)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return fmt.Errorf("backend.base_url must use http or https, got %q", base.Scheme)
	}
	if !lo.Contains([]string{AudioBackendPortAudio, AudioBackendFFMPEG}, cfg.Audio.Backend) {
		return fmt.Errorf("audio.backend must be %q or %q, got %q", AudioBackendPortAudio, AudioBackendFFMPEG, cfg.Audio.Backend)
	}
	if cfg.Channel.MaxDelayMS < cfg.Channel.BaseDelayMS {
		return errors.New("channel.max_delay_ms must not be smaller than channel.base_delay_ms")
	}
	if strings.TrimSpace(cfg.Frontend.Origin) == "" {
		return errors.New("frontend.origin must not be empty")
	}
	return nil
}

func overrideString(lookup lookupFunc, target *string, envKey string) {
	if value, ok := lookup(envKey); ok && strings.TrimSpace(value) != "" {
		*target = strings.TrimSpace(value)
	}
}

func overrideInt(lookup lookupFunc, target *int, envKey string) {
	if value, ok := lookup(envKey); ok {
		if parsed, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(lookup lookupFunc, target *[]string, envKey string) {
	if value, ok := lookup(envKey); ok {
		parts := lo.Compact(lo.Map(strings.Split(value, ","), func(part string, _ int) string {
			return strings.TrimSpace(part)
		}))
		if len(parts) > 0 {
			*target = parts
		}
	}
}

func millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

func (c BackendConfig) HealthInterval() time.Duration { return millis(c.HealthIntervalMS) }
func (c BackendConfig) RequestTimeout() time.Duration { return millis(c.RequestTimeoutMS) }
func (c ChannelConfig) BaseDelay() time.Duration      { return millis(c.BaseDelayMS) }
func (c ChannelConfig) MaxDelay() time.Duration       { return millis(c.MaxDelayMS) }
func (c ChannelConfig) DialTimeout() time.Duration    { return millis(c.DialTimeoutMS) }
func (c ChannelConfig) WriteTimeout() time.Duration   { return millis(c.WriteTimeoutMS) }
func (c SessionConfig) StartTimeout() time.Duration   { return millis(c.StartTimeoutMS) }
func (c SessionConfig) CaptureTimeout() time.Duration { return millis(c.CaptureTimeoutMS) }
