package sink

import (
	"context"
	"time"

	"vrheadset-sim/internal/logging"
	"vrheadset-sim/internal/telemetry"

	"go.uber.org/zap"
)

// RetrySink retries a failed Send with linear backoff before giving up. The
// scheduler never retries; wrap a broker sink in this to get retries.
type RetrySink struct {
	next     Sink
	attempts int
	backoff  time.Duration
	sleep    func(time.Duration)
}

// NewRetrySink retries up to attempts extra times, sleeping backoff·n
// before the n-th retry.
func NewRetrySink(next Sink, attempts int, backoff time.Duration) *RetrySink {
	return &RetrySink{next: next, attempts: attempts, backoff: backoff, sleep: time.Sleep}
}

// Send tries next until it succeeds, the attempts are used up or ctx ends.
func (r *RetrySink) Send(ctx context.Context, p telemetry.Packet) error {
	err := r.next.Send(ctx, p)
	for i := 1; err != nil && i <= r.attempts; i++ {
		if ctx.Err() != nil {
			return err
		}
		logging.FromContext(ctx).Debug("retrying telemetry send",
			zap.Int("attempt", i), zap.Uint32("frame_id", p.FrameID), zap.Error(err))
		r.sleep(r.backoff * time.Duration(i))
		err = r.next.Send(ctx, p)
	}
	return err
}

// Ready passes through the wrapped sink's readiness.
func (r *RetrySink) Ready() bool {
	if rd, ok := r.next.(readier); ok {
		return rd.Ready()
	}
	return true
}

// WriteStatus passes status rows through.
func (r *RetrySink) WriteStatus(row telemetry.StatusRow) error {
	if sw, ok := r.next.(StatusWriter); ok {
		return sw.WriteStatus(row)
	}
	return nil
}

// Close closes the wrapped sink.
func (r *RetrySink) Close() error {
	if c, ok := r.next.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}
