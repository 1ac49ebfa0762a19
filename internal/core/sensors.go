package core

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"
)

const (
	historySize = 32

	selfTestIterations    = 10
	selfTestStep          = 10 * time.Millisecond
	selfTestCheckpoint    = 5
	calibrationIterations = 100
	calibrationStep       = time.Millisecond
)

// SensorBank simulates sensor bring-up and keeps a short history of head x.
type SensorBank struct {
	clock           Clock
	rng             *rand.Rand
	selfTestFailure float64
	calibFailure    float64

	mu      sync.Mutex
	history [historySize]float64
	idx     int
}

// NewSensorBank returns a bank whose self-test and calibration fail with the
// given probabilities, drawn from rng.
func NewSensorBank(clock Clock, rng *rand.Rand, selfTestFailure, calibrationFailure float64) *SensorBank {
	return &SensorBank{clock: clock, rng: rng, selfTestFailure: selfTestFailure, calibFailure: calibrationFailure}
}

// SelfTest runs ten 10 ms probes; the sixth may fail.
func (b *SensorBank) SelfTest(ctx context.Context) error {
	for i := 0; i < selfTestIterations; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		b.clock.Sleep(selfTestStep)
		if i == selfTestCheckpoint && b.rng.Float64() < b.selfTestFailure {
			return fmt.Errorf("%w at iteration %d", ErrSelfTestFailed, i)
		}
	}
	return nil
}

// Calibrate collects one hundred 1 ms samples.
func (b *SensorBank) Calibrate(ctx context.Context) error {
	for i := 0; i < calibrationIterations; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		b.clock.Sleep(calibrationStep)
	}
	if b.calibFailure > 0 && b.rng.Float64() < b.calibFailure {
		return ErrCalibrationFailed
	}
	return nil
}

// Record appends a head x sample to the ring.
func (b *SensorBank) Record(x float64) {
	b.mu.Lock()
	b.history[b.idx] = x
	b.idx = (b.idx + 1) % historySize
	b.mu.Unlock()
}

// Clear zeroes the ring.
func (b *SensorBank) Clear() {
	b.mu.Lock()
	b.history = [historySize]float64{}
	b.idx = 0
	b.mu.Unlock()
}

// History returns the ring oldest first.
func (b *SensorBank) History() []float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]float64, 0, historySize)
	out = append(out, b.history[b.idx:]...)
	return append(out, b.history[:b.idx]...)
}
