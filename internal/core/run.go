package core

import (
	"context"
	"fmt"
	"time"

	"vrheadset-sim/internal/logging"
	"vrheadset-sim/internal/telemetry"

	"go.uber.org/zap"
)

// StatusWriter receives the periodic status row.
type StatusWriter interface {
	WriteStatus(telemetry.StatusRow) error
}

// Fault is a scripted injection applied before a tick.
type Fault interface {
	Apply(ctx context.Context, s *Scheduler) error
}

// FaultSource yields the faults due before the given tick.
type FaultSource interface {
	Due(tick uint64) []Fault
}

// Runner is the host loop: it owns the Scheduler, calls Tick until the
// context is done or a limit is reached, and publishes status.
type Runner struct {
	sched       *Scheduler
	clock       Clock
	deviceID    string
	duration    time.Duration
	maxTicks    uint64
	statusEvery uint64
	writers     []StatusWriter
	faults      FaultSource
}

// RunnerOption customizes a Runner.
type RunnerOption func(*Runner)

// WithDuration stops the run after d of clock time. Zero runs unbounded.
func WithDuration(d time.Duration) RunnerOption { return func(r *Runner) { r.duration = d } }

// WithMaxTicks stops the run after n ticks.
func WithMaxTicks(n uint64) RunnerOption { return func(r *Runner) { r.maxTicks = n } }

// WithStatusEvery publishes status every n ticks. Zero disables it.
func WithStatusEvery(n uint64) RunnerOption { return func(r *Runner) { r.statusEvery = n } }

// WithStatusWriters adds status row consumers.
func WithStatusWriters(w ...StatusWriter) RunnerOption {
	return func(r *Runner) { r.writers = append(r.writers, w...) }
}

// WithFaults attaches a fault script.
func WithFaults(f FaultSource) RunnerOption { return func(r *Runner) { r.faults = f } }

// WithDeviceID tags status rows.
func WithDeviceID(id string) RunnerOption { return func(r *Runner) { r.deviceID = id } }

// NewRunner returns a runner for s using the scheduler's clock.
func NewRunner(s *Scheduler, opts ...RunnerOption) *Runner {
	r := &Runner{sched: s, clock: s.clock}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Run ticks until ctx is done, the duration elapses or the tick limit is
// hit, then shuts the system down.
func (r *Runner) Run(ctx context.Context) error {
	log := logging.FromContext(ctx)
	log.Info("starting main loop",
		zap.Duration("duration", r.duration),
		zap.Uint64("max_ticks", r.maxTicks))
	start := r.clock.Now()

	for {
		select {
		case <-ctx.Done():
			log.Info("stop requested", zap.Uint64("tick", r.sched.CurrentTick()))
			return r.stop(ctx)
		default:
		}
		tick := r.sched.CurrentTick()
		if r.maxTicks > 0 && tick >= r.maxTicks {
			return r.stop(ctx)
		}
		if r.duration > 0 && r.clock.Now().Sub(start) >= r.duration {
			return r.stop(ctx)
		}

		if r.faults != nil {
			for _, f := range r.faults.Due(tick + 1) {
				if err := f.Apply(ctx, r.sched); err != nil {
					log.Warn("fault injection failed", zap.Uint64("tick", tick+1), zap.Error(err))
				}
			}
		}

		r.sched.Tick(ctx)

		if r.statusEvery > 0 && (tick+1)%r.statusEvery == 0 {
			r.publish(ctx, tick+1)
		}
	}
}

func (r *Runner) stop(ctx context.Context) error {
	if tick := r.sched.CurrentTick(); r.statusEvery > 0 && tick%r.statusEvery != 0 {
		r.publish(ctx, tick)
	}
	if err := r.sched.Shutdown(context.WithoutCancel(ctx)); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logging.FromContext(ctx).Info("main loop stopped")
	return nil
}

// StatusRow builds the status row for the current tick.
func (r *Runner) StatusRow(tick uint64) telemetry.StatusRow {
	return BuildStatusRow(r.deviceID, tick, r.sched, r.clock.Now())
}

// BuildStatusRow snapshots s into a status row.
func BuildStatusRow(deviceID string, tick uint64, s *Scheduler, ts time.Time) telemetry.StatusRow {
	st := s.Status()
	stats := s.Stats()
	return telemetry.StatusRow{
		DeviceID:         deviceID,
		Tick:             tick,
		State:            st.State.String(),
		ErrorCount:       st.ErrorCount,
		ResetCount:       st.ResetCount,
		UptimeMS:         st.UptimeMS,
		SensorSamples:    stats.SensorSamples,
		TelemetrySent:    stats.TelemetrySent,
		TelemetryFailed:  stats.TelemetryFailed,
		TelemetryDropped: stats.TelemetryDropped,
		WatchdogFeeds:    stats.WatchdogFeeds,
		Voltage:          s.Voltage(),
		Current:          s.Current(),
		Timestamp:        ts.UTC(),
	}
}

func (r *Runner) publish(ctx context.Context, tick uint64) {
	if r.statusEvery == 0 {
		return
	}
	log := logging.FromContext(ctx)
	st := r.sched.Status()
	log.Info(fmt.Sprintf("Loop %d: %s", tick, st))
	row := r.StatusRow(tick)
	for _, w := range r.writers {
		if err := w.WriteStatus(row); err != nil {
			log.Warn("status write failed", zap.Error(err))
		}
	}
}
