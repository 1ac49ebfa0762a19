// Tick scheduler driving sensors, telemetry, watchdog and power
package core

import (
	"context"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"vrheadset-sim/internal/config"
	"vrheadset-sim/internal/logging"
	"vrheadset-sim/internal/telemetry"

	"go.uber.org/zap"
)

// Sink accepts one packet per call and must not retain it.
type Sink interface {
	Send(ctx context.Context, p telemetry.Packet) error
}

// Readier is implemented by sinks that track their own connection state.
// A sink that is not ready has its packets dropped, not failed.
type Readier interface {
	Ready() bool
}

// Interval converts a rate to a tick interval with integer millisecond
// division. Rates above 1000 Hz give 0: the action fires every tick.
func Interval(rateHz uint32) uint64 {
	if rateHz == 0 {
		return 0
	}
	return uint64(1000 / rateHz)
}

// due reports whether an action last run at last is due at tick.
func due(tick, last, interval uint64) bool {
	return tick-last >= interval
}

// Stats are monotonically increasing scheduler counters.
type Stats struct {
	Ticks            uint64 `json:"ticks"`
	SensorSamples    uint64 `json:"sensor_samples"`
	TelemetrySent    uint64 `json:"telemetry_sent"`
	TelemetryFailed  uint64 `json:"telemetry_failed"`
	TelemetryDropped uint64 `json:"telemetry_dropped"`
	WatchdogFeeds    uint64 `json:"watchdog_feeds"`
	WatchdogExpiries uint64 `json:"watchdog_expiries"`
	Sleeps           uint64 `json:"sleeps"`
}

type counters struct {
	sensorSamples    atomic.Uint64
	telemetrySent    atomic.Uint64
	telemetryFailed  atomic.Uint64
	telemetryDropped atomic.Uint64
	watchdogFeeds    atomic.Uint64
	watchdogExpiries atomic.Uint64
	sleeps           atomic.Uint64
}

// Scheduler advances the logical tick and fans out due work in a fixed
// order. Tick, Initialize and Reset are serialized; the accessors are safe
// from any goroutine.
type Scheduler struct {
	loop sync.Mutex

	sensorHz    uint32
	telemetryHz atomic.Uint32
	powerSave   bool
	sleepLevel  uint8
	idleYield   time.Duration

	machine  *Machine
	watchdog *Watchdog
	power    *Power
	sensors  *SensorBank
	synth    *telemetry.Synthesizer
	sink     Sink
	clock    Clock
	rng      *rand.Rand
	log      *zap.Logger

	tick          atomic.Uint64
	lastSensor    uint64
	lastTelemetry uint64
	latest        atomic.Pointer[telemetry.Packet]
	stats         counters

	failSends  atomic.Int64
	starveFeed atomic.Int64
}

// Option customizes a Scheduler.
type Option func(*Scheduler)

// WithClock replaces the system clock.
func WithClock(c Clock) Option { return func(s *Scheduler) { s.clock = c } }

// WithRand injects the generator used for self-test and sensor noise.
func WithRand(r *rand.Rand) Option { return func(s *Scheduler) { s.rng = r } }

// WithObserver registers a state machine observer.
func WithObserver(o Observer) Option {
	return func(s *Scheduler) { s.machine.AddObserver(o) }
}

// WithLogger sets the scheduler logger.
func WithLogger(l *zap.Logger) Option { return func(s *Scheduler) { s.log = l } }

// NewScheduler wires the core components from cfg. sink may be nil, in
// which case every telemetry slot counts as dropped.
func NewScheduler(cfg *config.Config, sink Sink, opts ...Option) *Scheduler {
	s := &Scheduler{
		sensorHz:   cfg.SensorRateHz,
		powerSave:  cfg.Power.SaveEnabled,
		sleepLevel: cfg.Power.SleepLevel,
		idleYield:  time.Duration(cfg.IdleYieldUS) * time.Microsecond,
		sink:       sink,
		clock:      SystemClock{},
		log:        zap.NewNop(),
		machine:    NewMachine(nil),
		watchdog:   NewWatchdog(cfg.Watchdog.Enabled, cfg.Watchdog.TimeoutMS),
	}
	s.telemetryHz.Store(cfg.TelemetryRateHz)
	for _, o := range opts {
		o(s)
	}
	if s.rng == nil {
		seed := cfg.Sensors.Seed
		if seed == 0 {
			seed = time.Now().UnixNano()
		}
		s.rng = rand.New(rand.NewSource(seed))
	}
	s.machine.log = s.log
	s.power = NewPower(s.clock, time.Duration(cfg.Power.SleepDurationMS)*time.Millisecond)
	s.sensors = NewSensorBank(s.clock, s.rng, cfg.Sensors.SelfTestFailureRate, cfg.Sensors.CalibrationFailureRate)
	s.synth = telemetry.NewSynthesizer(telemetry.DefaultDelta, s.rng, cfg.Sensors.NoiseLevel)
	p := telemetry.InitialPacket()
	s.latest.Store(&p)
	return s
}

// Initialize brings up power, sensors, watchdog and telemetry, and moves
// Init → Ready when the self-test passes. A failed self-test is reported as
// sensor-init-failed and leaves the system in Init.
func (s *Scheduler) Initialize(ctx context.Context) error {
	s.loop.Lock()
	defer s.loop.Unlock()
	return s.initializeLocked(ctx)
}

func (s *Scheduler) initializeLocked(ctx context.Context) error {
	log := logging.FromContext(ctx)
	s.power.Reinit()
	s.sensors.Clear()
	s.watchdog.Feed(s.tick.Load())
	s.machine.RecordWatchdogFeed(s.tick.Load())

	sensorsOK := true
	var initErr error
	if err := s.sensors.SelfTest(ctx); err != nil {
		if ctx.Err() != nil {
			return err
		}
		log.Warn("sensor self-test failed", zap.Error(err))
		s.machine.Report(KindSensorInitFailed)
		sensorsOK = false
		initErr = err
	} else if err := s.sensors.Calibrate(ctx); err != nil {
		if ctx.Err() != nil {
			return err
		}
		log.Warn("sensor calibration failed", zap.Error(err))
		s.machine.Report(KindSensorCalibrationFailed)
	}

	commReady := s.sinkReady()
	if !commReady {
		log.Warn("telemetry sink not ready; packets will be dropped")
	}
	if err := s.machine.MarkInitialized(sensorsOK, commReady); err != nil {
		return err
	}
	log.Info("system initialized",
		zap.Uint32("sensor_hz", s.sensorHz),
		zap.Uint32("telemetry_hz", s.telemetryHz.Load()),
		zap.Bool("watchdog", s.watchdog.Armed()),
		zap.Bool("power_save", s.powerSave),
		zap.Stringer("state", s.machine.State()))
	return initErr
}

// Reset performs an explicit system reset from Error or Init, then
// initialization runs again.
func (s *Scheduler) Reset(ctx context.Context) error {
	s.loop.Lock()
	defer s.loop.Unlock()
	if err := s.machine.Reset(); err != nil {
		return err
	}
	logging.FromContext(ctx).Info("system reset", zap.Uint32("reset_count", s.machine.Snapshot().ResetCount))
	return s.initializeLocked(ctx)
}

// Shutdown moves the system to Shutdown. Further ticks are no-ops.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.loop.Lock()
	defer s.loop.Unlock()
	if err := s.machine.Shutdown(); err != nil {
		return err
	}
	logging.FromContext(ctx).Info("system shutdown", zap.Uint64("uptime_ms", s.tick.Load()))
	return nil
}

// Tick runs one logical tick and then yields for the idle period.
func (s *Scheduler) Tick(ctx context.Context) {
	s.step(ctx)
	if s.idleYield > 0 {
		s.clock.Sleep(s.idleYield)
	}
}

func (s *Scheduler) step(ctx context.Context) {
	s.loop.Lock()
	defer s.loop.Unlock()
	if s.machine.State() == StateShutdown {
		return
	}
	log := logging.FromContext(ctx)

	tick := s.tick.Add(1)
	s.machine.AdvanceUptime(tick)

	if s.machine.CheckTickGuard() {
		log.Error("error count past tick guard, forcing error state", zap.Uint64("tick", tick))
	}
	if s.power.LowVoltage() {
		s.machine.Report(KindPowerLow)
	}

	if due(tick, s.lastSensor, Interval(s.sensorHz)) {
		s.sample()
		s.lastSensor = tick
	}

	if due(tick, s.lastTelemetry, Interval(s.telemetryHz.Load())) {
		s.dispatch(ctx, tick)
		s.lastTelemetry = tick
	}

	if s.watchdog.Armed() {
		if s.starveFeed.Load() > 0 {
			s.starveFeed.Add(-1)
		} else if due(tick, s.watchdog.LastFed(), s.watchdog.FeedInterval()) {
			s.watchdog.Feed(tick)
			s.machine.RecordWatchdogFeed(tick)
			s.stats.watchdogFeeds.Add(1)
		}
		if s.watchdog.CheckExpired(tick) {
			log.Warn("watchdog expired", zap.Uint64("tick", tick), zap.Uint64("last_fed", s.watchdog.LastFed()))
			s.stats.watchdogExpiries.Add(1)
			s.machine.Report(KindWatchdogTimeout)
		}
	}

	if s.powerSave && s.power.Active() {
		if s.power.EnterSleep(s.sleepLevel) {
			s.stats.sleeps.Add(1)
			log.Debug("sleep", zap.Uint8("level", s.sleepLevel))
		}
	}
}

func (s *Scheduler) sample() {
	smp := s.synth.Next()
	p := telemetry.Assemble(smp, uint64(s.clock.Now().UnixMicro()))
	s.latest.Store(&p)
	s.sensors.Record(p.HeadPosition.X)
	s.stats.sensorSamples.Add(1)
}

func (s *Scheduler) dispatch(ctx context.Context, tick uint64) {
	if !s.machine.Snapshot().CommunicationReady || !s.sinkReady() {
		s.stats.telemetryDropped.Add(1)
		return
	}
	p := *s.latest.Load()
	var err error
	if s.failSends.Load() > 0 {
		s.failSends.Add(-1)
		err = ErrInjectedFailure
	} else {
		err = s.sink.Send(ctx, p)
	}
	if err != nil {
		s.stats.telemetryFailed.Add(1)
		logging.FromContext(ctx).Warn("telemetry send failed",
			zap.Uint64("tick", tick),
			zap.Uint32("frame_id", p.FrameID),
			zap.Error(err))
		s.machine.Report(KindCommTimeout)
		return
	}
	s.stats.telemetrySent.Add(1)
}

func (s *Scheduler) sinkReady() bool {
	if s.sink == nil {
		return false
	}
	if r, ok := s.sink.(Readier); ok {
		return r.Ready()
	}
	return true
}

// Status returns a snapshot of the system status.
func (s *Scheduler) Status() Status { return s.machine.Snapshot() }

// Machine exposes the state machine for fault reporting by the host.
func (s *Scheduler) Machine() *Machine { return s.machine }

// CurrentTick returns the tick counter.
func (s *Scheduler) CurrentTick() uint64 { return s.tick.Load() }

// Latest returns the most recently assembled packet.
func (s *Scheduler) Latest() telemetry.Packet { return *s.latest.Load() }

// History returns the last 32 head x samples, oldest first.
func (s *Scheduler) History() []float64 { return s.sensors.History() }

// Stats returns the scheduler counters.
func (s *Scheduler) Stats() Stats {
	return Stats{
		Ticks:            s.tick.Load(),
		SensorSamples:    s.stats.sensorSamples.Load(),
		TelemetrySent:    s.stats.telemetrySent.Load(),
		TelemetryFailed:  s.stats.telemetryFailed.Load(),
		TelemetryDropped: s.stats.telemetryDropped.Load(),
		WatchdogFeeds:    s.stats.watchdogFeeds.Load(),
		WatchdogExpiries: s.stats.watchdogExpiries.Load(),
		Sleeps:           s.stats.sleeps.Load(),
	}
}

// TelemetryRate returns the current telemetry rate in Hz.
func (s *Scheduler) TelemetryRate() uint32 { return s.telemetryHz.Load() }

// SetTelemetryRate changes the telemetry rate from the next tick on.
func (s *Scheduler) SetTelemetryRate(hz uint32) error {
	if hz == 0 {
		return ErrInvalidRate
	}
	s.telemetryHz.Store(hz)
	s.log.Info("telemetry rate set", zap.Uint32("hz", hz))
	return nil
}

// WatchdogDisable disarms the watchdog.
func (s *Scheduler) WatchdogDisable() {
	s.watchdog.Disable()
	s.log.Info("watchdog disabled")
}

// WatchdogArmed reports whether the watchdog is armed.
func (s *Scheduler) WatchdogArmed() bool { return s.watchdog.Armed() }

// RequestSleep flags the power policy; with power save enabled the next
// tick pauses.
func (s *Scheduler) RequestSleep() { s.power.RequestSleep() }

// WakeUp clears the sleep flag.
func (s *Scheduler) WakeUp() { s.power.WakeUp() }

// SetSupply injects simulated supply readings.
func (s *Scheduler) SetSupply(voltage, current float64) { s.power.SetSupply(voltage, current) }

// Voltage returns the simulated rail voltage.
func (s *Scheduler) Voltage() float64 { return s.power.Voltage() }

// Current returns the simulated rail current.
func (s *Scheduler) Current() float64 { return s.power.Current() }

// InjectSinkFailures makes the next n telemetry sends fail without calling
// the sink.
func (s *Scheduler) InjectSinkFailures(n int) {
	if n > 0 {
		s.failSends.Add(int64(n))
	}
}

// StarveWatchdog skips watchdog feeding for the next n ticks.
func (s *Scheduler) StarveWatchdog(n int) {
	if n > 0 {
		s.starveFeed.Add(int64(n))
	}
}

// Report funnels a host-detected fault into the state machine.
func (s *Scheduler) Report(kind ErrorKind) Status { return s.machine.Report(kind) }
