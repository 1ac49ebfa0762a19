package sink

import (
	"context"
	"errors"
	"fmt"
	"io"

	"vrheadset-sim/internal/telemetry"
)

// MultiSink fans packets and status rows out to several sinks.
type MultiSink struct {
	sinks []Sink
}

// NewMultiSink creates a new MultiSink.
func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

// Len returns the number of wrapped sinks.
func (m *MultiSink) Len() int { return len(m.sinks) }

// Send delivers p to every ready sink. All sinks are tried; the errors of
// the ones that failed are joined.
func (m *MultiSink) Send(ctx context.Context, p telemetry.Packet) error {
	var errs []error
	for i, s := range m.sinks {
		if r, ok := s.(readier); ok && !r.Ready() {
			continue
		}
		if err := s.Send(ctx, p); err != nil {
			errs = append(errs, fmt.Errorf("sink %d (%T): %w", i, s, err))
		}
	}
	return errors.Join(errs...)
}

// Ready reports whether at least one sink can accept packets.
func (m *MultiSink) Ready() bool {
	for _, s := range m.sinks {
		if r, ok := s.(readier); !ok || r.Ready() {
			return true
		}
	}
	return false
}

// WriteStatus forwards the row to every sink that accepts status rows.
func (m *MultiSink) WriteStatus(row telemetry.StatusRow) error {
	var errs []error
	for _, s := range m.sinks {
		if sw, ok := s.(StatusWriter); ok {
			errs = append(errs, sw.WriteStatus(row))
		}
	}
	return errors.Join(errs...)
}

// Close closes every sink that holds resources.
func (m *MultiSink) Close() error {
	var errs []error
	for _, s := range m.sinks {
		if c, ok := s.(io.Closer); ok {
			errs = append(errs, c.Close())
		}
	}
	return errors.Join(errs...)
}
