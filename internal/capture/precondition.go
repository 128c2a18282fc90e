package capture

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"voicecoach/internal/ports"
)

var (
	ErrUnsupported     = errors.New("live capture is not supported")
	ErrInsecureContext = errors.New("live capture requires a secure origin")
)

var secureSchemes = map[string]bool{
	"https": true,
	"wss":   true,
	"wails": true,
}

// CheckSecureOrigin accepts secure transports and loopback hosts.
func CheckSecureOrigin(origin string) error {
	origin = strings.TrimSpace(origin)
	if origin == "" {
		return fmt.Errorf("%w: no origin configured", ErrInsecureContext)
	}
	u, err := url.Parse(origin)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInsecureContext, err)
	}
	if secureSchemes[strings.ToLower(u.Scheme)] {
		return nil
	}
	if isLoopbackHost(u.Hostname()) {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrInsecureContext, origin)
}

func isLoopbackHost(host string) bool {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// Preconditions runs every check that must pass before a device request.
func Preconditions(origin string, device ports.AudioDevice) error {
	if err := CheckSecureOrigin(origin); err != nil {
		return fmt.Errorf("%w: %w", ErrUnsupported, err)
	}
	if device == nil {
		return fmt.Errorf("%w: no capture backend", ErrUnsupported)
	}
	if err := device.Available(); err != nil {
		return fmt.Errorf("%w: %w", ErrUnsupported, err)
	}
	return nil
}
