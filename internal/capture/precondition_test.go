package capture

import (
	"errors"
	"testing"

	"voicecoach/internal/ports"
)

func TestCheckSecureOrigin(t *testing.T) {
	t.Parallel()

	tests := []struct {
		origin string
		secure bool
	}{
		{origin: "https://coach.example.com", secure: true},
		{origin: "wss://coach.example.com/ws", secure: true},
		{origin: "wails://wails", secure: true},
		{origin: "http://localhost:34115", secure: true},
		{origin: "http://wails.localhost", secure: true},
		{origin: "http://127.0.0.1:5173", secure: true},
		{origin: "http://[::1]:8080", secure: true},
		{origin: "http://coach.example.com", secure: false},
		{origin: "http://192.168.1.20:3000", secure: false},
		{origin: "", secure: false},
		{origin: "::not a url", secure: false},
	}

	for _, tc := range tests {
		err := CheckSecureOrigin(tc.origin)
		if tc.secure && err != nil {
			t.Fatalf("expected %q to be secure, got %v", tc.origin, err)
		}
		if !tc.secure && !errors.Is(err, ErrInsecureContext) {
			t.Fatalf("expected %q to be insecure, got %v", tc.origin, err)
		}
	}
}

func TestPreconditions(t *testing.T) {
	t.Parallel()

	if err := Preconditions("wails://wails", newFakeDevice(16000)); err != nil {
		t.Fatalf("expected preconditions to pass: %v", err)
	}

	err := Preconditions("http://coach.example.com", newFakeDevice(16000))
	if !errors.Is(err, ErrUnsupported) || !errors.Is(err, ErrInsecureContext) {
		t.Fatalf("expected unsupported insecure context, got %v", err)
	}

	missing := newFakeDevice(16000)
	missing.availErr = ports.ErrNoDevice
	err = Preconditions("wails://wails", missing)
	if !errors.Is(err, ErrUnsupported) || !errors.Is(err, ports.ErrNoDevice) {
		t.Fatalf("expected unsupported without capability, got %v", err)
	}

	if err := Preconditions("wails://wails", nil); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("expected unsupported without a backend, got %v", err)
	}
}
