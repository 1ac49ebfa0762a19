// Package sink holds the telemetry transports the scheduler publishes to.
package sink

import (
	"context"

	"vrheadset-sim/internal/telemetry"
)

// Sink accepts one packet per call and must not retain it.
type Sink interface {
	Send(ctx context.Context, p telemetry.Packet) error
}

// StatusWriter receives periodic status rows.
type StatusWriter interface {
	WriteStatus(telemetry.StatusRow) error
}

// Optional: sinks may report connection state
type readier interface {
	Ready() bool
}
