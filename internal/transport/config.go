package transport

import (
	"fmt"
	"os"
	"strings"
	"time"
)

const (
	KindWebSocket = "websocket"
	KindInflux    = "influx"

	DefaultURL              = "ws://localhost:8080"
	defaultWriteTimeout     = 10 * time.Second
	defaultHandshakeTimeout = 5 * time.Second
)

// Config selects and configures the outbound transport.
type Config struct {
	Kind             string
	URL              string
	WriteTimeout     time.Duration
	HandshakeTimeout time.Duration
}

// FromEnv reads TRANSPORT, WS_URL, WS_WRITE_TIMEOUT and WS_HANDSHAKE_TIMEOUT.
func FromEnv() (Config, error) {
	cfg := Config{
		Kind:             strings.ToLower(strings.TrimSpace(os.Getenv("TRANSPORT"))),
		URL:              strings.TrimSpace(os.Getenv("WS_URL")),
		WriteTimeout:     defaultWriteTimeout,
		HandshakeTimeout: defaultHandshakeTimeout,
	}
	if cfg.Kind == "" {
		cfg.Kind = KindWebSocket
	}
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}

	switch cfg.Kind {
	case KindWebSocket, KindInflux:
	default:
		return Config{}, fmt.Errorf("unsupported TRANSPORT %q (want %s or %s)", cfg.Kind, KindWebSocket, KindInflux)
	}

	if raw := os.Getenv("WS_WRITE_TIMEOUT"); raw != "" {
		dur, err := time.ParseDuration(raw)
		if err != nil || dur <= 0 {
			return Config{}, fmt.Errorf("invalid WS_WRITE_TIMEOUT %q", raw)
		}
		cfg.WriteTimeout = dur
	}
	if raw := os.Getenv("WS_HANDSHAKE_TIMEOUT"); raw != "" {
		dur, err := time.ParseDuration(raw)
		if err != nil || dur <= 0 {
			return Config{}, fmt.Errorf("invalid WS_HANDSHAKE_TIMEOUT %q", raw)
		}
		cfg.HandshakeTimeout = dur
	}
	return cfg, nil
}
