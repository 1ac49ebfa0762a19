package core

import (
	"sync"
	"time"
)

const (
	nominalVoltage = 3.3
	nominalCurrent = 0.5
	lowVoltage     = 3.0
)

// Power simulates the supply rail and the sleep policy.
type Power struct {
	mu            sync.Mutex
	voltage       float64
	current       float64
	active        bool
	sleepDuration time.Duration
	clock         Clock
}

// NewPower returns a power policy at nominal supply. The sleep pause is
// sleepDuration regardless of level.
func NewPower(clock Clock, sleepDuration time.Duration) *Power {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Power{
		voltage:       nominalVoltage,
		current:       nominalCurrent,
		sleepDuration: sleepDuration,
		clock:         clock,
	}
}

// EnterSleep pauses for the sleep duration with the active flag set, then
// clears it. Level 0 is a no-op. It reports whether a pause happened.
func (p *Power) EnterSleep(level uint8) bool {
	if level == 0 {
		return false
	}
	p.mu.Lock()
	p.active = true
	d := p.sleepDuration
	p.mu.Unlock()

	p.clock.Sleep(d)

	p.mu.Lock()
	p.active = false
	p.mu.Unlock()
	return true
}

// RequestSleep sets the active flag; the next tick's power gate sleeps.
func (p *Power) RequestSleep() {
	p.mu.Lock()
	p.active = true
	p.mu.Unlock()
}

// WakeUp clears the active flag.
func (p *Power) WakeUp() {
	p.mu.Lock()
	p.active = false
	p.mu.Unlock()
}

// Active reports the sleep flag.
func (p *Power) Active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

// SetSupply injects simulated rail readings.
func (p *Power) SetSupply(voltage, current float64) {
	p.mu.Lock()
	p.voltage = voltage
	p.current = current
	p.mu.Unlock()
}

// Reinit restores nominal supply and clears the sleep flag.
func (p *Power) Reinit() {
	p.SetSupply(nominalVoltage, nominalCurrent)
	p.WakeUp()
}

func (p *Power) Voltage() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.voltage
}

func (p *Power) Current() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// LowVoltage reports voltage below 3.0 V.
func (p *Power) LowVoltage() bool {
	return p.Voltage() < lowVoltage
}
