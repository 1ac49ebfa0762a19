package scenario

import (
	"context"
	"math/rand"
	"strings"
	"sync"
	"testing"
	"time"

	"vrheadset-sim/internal/config"
	"vrheadset-sim/internal/core"
	"vrheadset-sim/internal/telemetry"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type countingSink struct{ n int }

func (s *countingSink) Send(context.Context, telemetry.Packet) error {
	s.n++
	return nil
}

func newScheduler(t *testing.T) (*core.Scheduler, *countingSink) {
	t.Helper()
	cfg := config.Defaults()
	cfg.Sensors.SelfTestFailureRate = 0
	sink := &countingSink{}
	s := core.NewScheduler(cfg, sink,
		core.WithClock(&fakeClock{now: time.Unix(0, 0)}),
		core.WithRand(rand.New(rand.NewSource(7))))
	if err := s.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	return s, sink
}

func run(t *testing.T, s *core.Scheduler, sc *Scenario, ticks uint64) {
	t.Helper()
	r := core.NewRunner(s, core.WithMaxTicks(ticks), core.WithFaults(sc))
	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
}

func TestLoadScenario(t *testing.T) {
	sc, err := Load("testdata/simple.yaml")
	if err != nil {
		t.Fatalf("load scenario: %v", err)
	}
	if sc.Name != "example" || sc.Description != "basic test scenario" {
		t.Fatalf("unexpected header %q %q", sc.Name, sc.Description)
	}
	if len(sc.Steps) != 3 {
		t.Fatalf("expected 3 steps, got %d", len(sc.Steps))
	}
	if sc.Steps[0].AtTick != 10 || sc.Steps[0].Action != ActionSetSupply || sc.Steps[0].Voltage != 2.8 {
		t.Fatalf("steps not sorted by tick: %+v", sc.Steps[0])
	}
	if got := len(sc.Due(20)); got != 2 {
		t.Fatalf("expected 2 steps at tick 20, got %d", got)
	}
	if got := len(sc.Due(11)); got != 0 {
		t.Fatalf("expected no steps at tick 11, got %d", got)
	}
}

func TestLoadRejectsBadSteps(t *testing.T) {
	_, err := Load("testdata/bad.yaml")
	if err == nil {
		t.Fatalf("expected validation error")
	}
	for _, want := range []string{"step 0", "at_tick", "explode", "gremlins"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q missing %q", err, want)
		}
	}
	if _, err := Load("testdata/missing.yaml"); err == nil {
		t.Fatalf("expected read error")
	}
}

func TestBuiltInsValidate(t *testing.T) {
	for name, sc := range BuiltIn() {
		sc := sc
		if sc.Description == "" {
			t.Errorf("%s missing description", name)
		}
		if err := sc.Validate(); err != nil {
			t.Errorf("%s: %v", name, err)
		}
	}
}

func TestLowVoltageArc(t *testing.T) {
	s, _ := newScheduler(t)
	sc := BuiltIn()["low-voltage"]

	run(t, s, &Scenario{Steps: sc.Steps[:1]}, 510)
	st := s.Status()
	if st.State != core.StateShutdown {
		t.Fatalf("runner should shut down, got %s", st.State)
	}
	if st.ErrorCount < 5 {
		t.Fatalf("expected power-low escalation, got %d errors", st.ErrorCount)
	}
}

func TestLowVoltageRecovery(t *testing.T) {
	s, _ := newScheduler(t)
	sc := BuiltIn()["low-voltage"]
	ctx := context.Background()
	for tick := uint64(1); tick <= 1700; tick++ {
		for _, f := range sc.Due(tick) {
			if err := f.Apply(ctx, s); err != nil {
				t.Fatalf("tick %d: %v", tick, err)
			}
		}
		s.Tick(ctx)
		if tick == 504 && s.Status().State != core.StateError {
			t.Fatalf("expected ERROR at tick 504, got %s", s.Status().State)
		}
	}
	st := s.Status()
	if st.State != core.StateReady || st.ResetCount != 1 || st.ErrorCount != 0 {
		t.Fatalf("expected recovery to READY, got %+v", st)
	}
	if s.Voltage() != 3.3 {
		t.Fatalf("expected nominal voltage, got %.2f", s.Voltage())
	}
}

func TestLinkLossArc(t *testing.T) {
	s, sink := newScheduler(t)
	ctx := context.Background()
	sc := BuiltIn()["link-loss"]
	for tick := uint64(1); tick <= 1000; tick++ {
		for _, f := range sc.Due(tick) {
			if err := f.Apply(ctx, s); err != nil {
				t.Fatalf("tick %d: %v", tick, err)
			}
		}
		s.Tick(ctx)
	}
	if s.Status().State != core.StateError {
		t.Fatalf("expected ERROR after link loss, got %s", s.Status().State)
	}
	if got := s.Stats().TelemetryFailed; got != 10 {
		t.Fatalf("expected 10 failed sends, got %d", got)
	}
	if sink.n == 0 {
		t.Fatalf("expected sends before and after the outage")
	}
}

func TestStepApplyActions(t *testing.T) {
	s, _ := newScheduler(t)
	ctx := context.Background()

	if err := (Step{Action: ActionSetTelemetryRate, RateHz: 90}).Apply(ctx, s); err != nil {
		t.Fatalf("set rate: %v", err)
	}
	if s.TelemetryRate() != 90 {
		t.Fatalf("expected 90 Hz, got %d", s.TelemetryRate())
	}
	if err := (Step{Action: ActionReport, Kind: "memory-alloc-failed"}).Apply(ctx, s); err != nil {
		t.Fatalf("report: %v", err)
	}
	if s.Status().ErrorCount != 1 {
		t.Fatalf("expected 1 error, got %d", s.Status().ErrorCount)
	}
	if err := (Step{Action: ActionReset}).Apply(ctx, s); err == nil {
		t.Fatalf("reset from READY should fail")
	}
	if err := (Step{Action: "bogus"}).Apply(ctx, s); err == nil {
		t.Fatalf("expected unknown action error")
	}
	if err := (Step{Action: ActionSetSupply, Voltage: 2.5, Current: 0.9}).Apply(ctx, s); err != nil {
		t.Fatalf("set supply: %v", err)
	}
	if s.Voltage() != 2.5 || s.Current() != 0.9 {
		t.Fatalf("supply not applied")
	}
}
