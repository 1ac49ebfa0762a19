package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"vrheadset-sim/internal/telemetry"

	"github.com/stretchr/testify/require"
)

type memStatusWriter struct {
	mu   sync.Mutex
	rows []telemetry.StatusRow
	err  error
}

func (w *memStatusWriter) WriteStatus(r telemetry.StatusRow) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.rows = append(w.rows, r)
	return w.err
}

type faultFunc func(ctx context.Context, s *Scheduler) error

func (f faultFunc) Apply(ctx context.Context, s *Scheduler) error { return f(ctx, s) }

type tickFaults map[uint64][]Fault

func (t tickFaults) Due(tick uint64) []Fault { return t[tick] }

func TestRunnerMaxTicks(t *testing.T) {
	s, _ := newTestScheduler(testConfig(), &recordingSink{})
	initialized(t, s)
	w := &memStatusWriter{}
	r := NewRunner(s, WithMaxTicks(2500), WithStatusEvery(1000), WithStatusWriters(w), WithDeviceID("hs-1"))

	require.NoError(t, r.Run(context.Background()))
	require.EqualValues(t, 2500, s.CurrentTick())
	require.Equal(t, StateShutdown, s.Status().State)

	require.Len(t, w.rows, 3)
	require.EqualValues(t, 1000, w.rows[0].Tick)
	require.EqualValues(t, 2000, w.rows[1].Tick)
	require.EqualValues(t, 2500, w.rows[2].Tick)
	require.Equal(t, "hs-1", w.rows[0].DeviceID)
	require.Equal(t, "READY", w.rows[0].State)
	require.EqualValues(t, 1000, w.rows[0].SensorSamples)
	require.Equal(t, 3.3, w.rows[0].Voltage)
}

func TestRunnerDurationUsesClock(t *testing.T) {
	cfg := testConfig()
	cfg.IdleYieldUS = 1000
	s, _ := newTestScheduler(cfg, &recordingSink{})
	initialized(t, s)

	r := NewRunner(s, WithDuration(50*time.Millisecond))
	require.NoError(t, r.Run(context.Background()))
	require.EqualValues(t, 50, s.CurrentTick())
}

func TestRunnerStopsOnCancel(t *testing.T) {
	s, _ := newTestScheduler(testConfig(), &recordingSink{})
	initialized(t, s)

	ctx, cancel := context.WithCancel(context.Background())
	var once sync.Once
	faults := faultSourceFunc(func(tick uint64) []Fault {
		if tick == 300 {
			once.Do(cancel)
		}
		return nil
	})
	r := NewRunner(s, WithFaults(faults))
	require.NoError(t, r.Run(ctx))
	require.EqualValues(t, 300, s.CurrentTick())
	require.Equal(t, StateShutdown, s.Status().State)
}

type faultSourceFunc func(tick uint64) []Fault

func (f faultSourceFunc) Due(tick uint64) []Fault { return f(tick) }

func TestRunnerAppliesFaultsBeforeTick(t *testing.T) {
	s, _ := newTestScheduler(testConfig(), &recordingSink{})
	initialized(t, s)

	var seen uint64
	faults := tickFaults{
		10: {faultFunc(func(_ context.Context, s *Scheduler) error {
			seen = s.CurrentTick()
			s.SetSupply(2.8, 0.5)
			return nil
		})},
		12: {faultFunc(func(_ context.Context, s *Scheduler) error {
			s.SetSupply(3.3, 0.5)
			return errors.New("ignored")
		})},
	}
	r := NewRunner(s, WithMaxTicks(20), WithFaults(faults))
	require.NoError(t, r.Run(context.Background()))
	require.EqualValues(t, 9, seen)
	require.EqualValues(t, 2, s.Status().ErrorCount, "ticks 10 and 11 ran at low voltage")
}

func TestRunnerStatusWriterErrorsDoNotStop(t *testing.T) {
	s, _ := newTestScheduler(testConfig(), &recordingSink{})
	initialized(t, s)
	w := &memStatusWriter{err: errors.New("disk full")}
	r := NewRunner(s, WithMaxTicks(100), WithStatusEvery(10), WithStatusWriters(w))
	require.NoError(t, r.Run(context.Background()))
	require.Len(t, w.rows, 10)
}

func TestBuildStatusRow(t *testing.T) {
	s, clk := newTestScheduler(testConfig(), &recordingSink{})
	initialized(t, s)
	for i := 0; i < 32; i++ {
		s.Tick(context.Background())
	}
	row := BuildStatusRow("dev", s.CurrentTick(), s, clk.Now())
	require.EqualValues(t, 32, row.UptimeMS)
	require.EqualValues(t, 2, row.TelemetrySent)
	require.Equal(t, clk.Now().UTC(), row.Timestamp)
}
