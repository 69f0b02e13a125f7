package transport

import (
	"context"
	"errors"

	"github.com/Resanso/minerva-ericsson/apps/scadasim/internal/telemetry"
)

var (
	// ErrNotConnected is returned by Send before Connect succeeds or after Close.
	ErrNotConnected = errors.New("transport not connected")
	// ErrEncode marks a message that could not be serialized. The connection is still usable.
	ErrEncode = errors.New("encode message")
)

// Transport delivers telemetry messages to a remote listener.
type Transport interface {
	Connect(ctx context.Context) error
	Send(ctx context.Context, msg telemetry.Message) error
	Close() error
}
