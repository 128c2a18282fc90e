package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadWithEnvFile("", "")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Backend.BaseURL != "http://localhost:8000" || cfg.Backend.WSPath != "/ws" {
		t.Fatalf("unexpected backend defaults: %+v", cfg.Backend)
	}
	if cfg.Audio.Backend != AudioBackendPortAudio || cfg.Audio.BlockSize != 4096 || cfg.Audio.Buckets != 20 {
		t.Fatalf("unexpected audio defaults: %+v", cfg.Audio)
	}
	if cfg.Channel.BaseDelay() != 500*time.Millisecond || cfg.Channel.MaxDelay() != 4*time.Second {
		t.Fatalf("unexpected channel defaults: %+v", cfg.Channel)
	}
	if cfg.Session.CaptureTimeout() != 10*time.Second || cfg.Session.StartTimeout() != 5*time.Second {
		t.Fatalf("unexpected session defaults: %+v", cfg.Session)
	}
	if cfg.Frontend.Origin != "wails://wails" || cfg.Telemetry.LogLevel != "info" {
		t.Fatalf("unexpected frontend/telemetry defaults: %+v %+v", cfg.Frontend, cfg.Telemetry)
	}
}

func TestLoadYAMLThenEnvOverrides(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "voicecoach.yaml")
	writeFile(t, path, strings.Join([]string{
		"backend:",
		"  base_url: https://coach.example.com",
		"  api_key: from-yaml",
		"audio:",
		"  backend: FFMPEG",
		"  input_format: alsa",
		"channel:",
		"  base_delay_ms: 250",
		"  max_delay_ms: 2000",
		"session:",
		"  extra_fillers: [\" So \", \"so\", \"\", \"right\"]",
		"telemetry:",
		"  metrics_bind: 127.0.0.1:9464",
	}, "\n"))

	t.Setenv("VOICECOACH_API_KEY", "from-env")
	t.Setenv("VOICECOACH_AUDIO_INPUT_DEVICE", "hw:1")
	t.Setenv("VOICECOACH_AUDIO_BLOCK_SIZE", "2048")

	cfg, err := LoadWithEnvFile(path, "")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Backend.BaseURL != "https://coach.example.com" || cfg.Backend.APIKey != "from-env" {
		t.Fatalf("unexpected backend config: %+v", cfg.Backend)
	}
	if cfg.Audio.Backend != AudioBackendFFMPEG || cfg.Audio.InputFormat != "alsa" || cfg.Audio.InputDevice != "hw:1" || cfg.Audio.BlockSize != 2048 {
		t.Fatalf("unexpected audio config: %+v", cfg.Audio)
	}
	if cfg.Channel.BaseDelay() != 250*time.Millisecond || cfg.Channel.MaxDelay() != 2*time.Second {
		t.Fatalf("unexpected channel config: %+v", cfg.Channel)
	}
	if got := strings.Join(cfg.Session.ExtraFillers, ","); got != "so,right" {
		t.Fatalf("unexpected extra fillers: %q", got)
	}
	if cfg.Telemetry.MetricsBind != "127.0.0.1:9464" {
		t.Fatalf("unexpected telemetry config: %+v", cfg.Telemetry)
	}
}

func TestLoadDotEnvLosesToRealEnvironment(t *testing.T) {
	clearEnv(t)
	envFile := filepath.Join(t.TempDir(), ".env")
	writeFile(t, envFile, "VOICECOACH_API_KEY=dotenv-key\nVOICECOACH_LOG_LEVEL=debug\nVOICECOACH_EXTRA_FILLERS=so, right\n")
	t.Setenv("VOICECOACH_LOG_LEVEL", "warn")

	cfg, err := LoadWithEnvFile("", envFile)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Backend.APIKey != "dotenv-key" {
		t.Fatalf("expected dotenv api key, got %q", cfg.Backend.APIKey)
	}
	if cfg.Telemetry.LogLevel != "warn" {
		t.Fatalf("expected environment to win, got %q", cfg.Telemetry.LogLevel)
	}
	if got := strings.Join(cfg.Session.ExtraFillers, ","); got != "so,right" {
		t.Fatalf("unexpected extra fillers: %q", got)
	}
}

func TestLoadMissingDotEnvIsIgnored(t *testing.T) {
	clearEnv(t)
	if _, err := LoadWithEnvFile("", filepath.Join(t.TempDir(), ".env")); err != nil {
		t.Fatalf("expected missing dotenv to be ignored, got %v", err)
	}
}

func TestLoadInvalidNumericValuesFallback(t *testing.T) {
	clearEnv(t)
	t.Setenv("VOICECOACH_AUDIO_SAMPLE_RATE", "bad")
	t.Setenv("VOICECOACH_AUDIO_BLOCK_SIZE", "5")
	t.Setenv("VOICECOACH_AUDIO_BUCKETS", "-3")
	t.Setenv("VOICECOACH_CHANNEL_DIAL_TIMEOUT_MS", "0")
	t.Setenv("VOICECOACH_HEALTH_INTERVAL_MS", "-1")

	cfg, err := LoadWithEnvFile("", "")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Audio.SampleRate != 48000 {
		t.Fatalf("expected default sample rate, got %d", cfg.Audio.SampleRate)
	}
	if cfg.Audio.BlockSize != 4096 {
		t.Fatalf("expected block size fallback, got %d", cfg.Audio.BlockSize)
	}
	if cfg.Audio.Buckets != 0 {
		t.Fatalf("expected buckets clamped to 0, got %d", cfg.Audio.Buckets)
	}
	if cfg.Channel.DialTimeout() != 5*time.Second || cfg.Backend.HealthInterval() != 15*time.Second {
		t.Fatalf("expected duration fallbacks, got %+v %+v", cfg.Channel, cfg.Backend)
	}
}

func TestLoadValidation(t *testing.T) {
	cases := map[string]string{
		"VOICECOACH_BACKEND_URL":          "ftp://coach.example.com",
		"VOICECOACH_AUDIO_BACKEND":        "alsa",
		"VOICECOACH_CHANNEL_MAX_DELAY_MS": "100",
	}
	for key, value := range cases {
		key, value := key, value
		t.Run(key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(key, value)
			if _, err := LoadWithEnvFile("", ""); err == nil {
				t.Fatalf("expected validation error for %s=%s", key, value)
			}
		})
	}
}

func TestLoadMissingOrBrokenFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	if _, err := LoadWithEnvFile(filepath.Join(dir, "missing.yaml"), ""); err == nil {
		t.Fatalf("expected missing file error")
	}

	broken := filepath.Join(dir, "broken.yaml")
	writeFile(t, broken, "backend: [not, a, map\n")
	if _, err := LoadWithEnvFile(broken, ""); err == nil {
		t.Fatalf("expected parse error")
	}
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, kv := range os.Environ() {
		key, _, _ := strings.Cut(kv, "=")
		if strings.HasPrefix(key, "VOICECOACH_") {
			t.Setenv(key, "")
			os.Unsetenv(key)
		}
	}
}

func writeFile(t *testing.T, path string, contents string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write failed: %v", err)
	}
}
