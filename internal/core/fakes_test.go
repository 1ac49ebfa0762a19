package core

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"vrheadset-sim/internal/config"
	"vrheadset-sim/internal/telemetry"
)

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	slept  time.Duration
	sleeps int
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.slept += d
	c.sleeps++
	c.mu.Unlock()
}

func (c *fakeClock) Slept() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.slept
}

type recordingSink struct {
	mu      sync.Mutex
	packets []telemetry.Packet
	err     error
	notRdy  bool
}

func (s *recordingSink) Send(_ context.Context, p telemetry.Packet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.packets = append(s.packets, p)
	return nil
}

func (s *recordingSink) Ready() bool { return !s.notRdy }

func (s *recordingSink) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.packets)
}

var errBrokerDown = errors.New("broker down")

type recordingObserver struct {
	mu          sync.Mutex
	transitions [][2]State
	kinds       []ErrorKind
}

func (o *recordingObserver) StateChanged(from, to State, _ Status) {
	o.mu.Lock()
	o.transitions = append(o.transitions, [2]State{from, to})
	o.mu.Unlock()
}

func (o *recordingObserver) ErrorReported(kind ErrorKind, _ Status) {
	o.mu.Lock()
	o.kinds = append(o.kinds, kind)
	o.mu.Unlock()
}

func testConfig() *config.Config {
	cfg := config.Defaults()
	cfg.Sensors.SelfTestFailureRate = 0
	return cfg
}

func newTestScheduler(cfg *config.Config, sink Sink, opts ...Option) (*Scheduler, *fakeClock) {
	clk := newFakeClock()
	base := []Option{WithClock(clk), WithRand(rand.New(rand.NewSource(42)))}
	return NewScheduler(cfg, sink, append(base, opts...)...), clk
}
