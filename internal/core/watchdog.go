package core

import "sync"

// Watchdog tracks the last-fed tick against a timeout in ticks (ms).
type Watchdog struct {
	mu      sync.Mutex
	enabled bool
	timeout uint64
	lastFed uint64
	latched bool
}

// NewWatchdog returns a watchdog fed at tick 0. It is armed when enabled and
// timeoutMS > 0.
func NewWatchdog(enabled bool, timeoutMS uint32) *Watchdog {
	return &Watchdog{enabled: enabled, timeout: uint64(timeoutMS)}
}

// Armed reports whether expiry checks are live.
func (w *Watchdog) Armed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.armedLocked()
}

func (w *Watchdog) armedLocked() bool { return w.enabled && w.timeout > 0 }

// FeedInterval is the feed cadence: half the timeout, leaving one missed
// feed of slack before expiry.
func (w *Watchdog) FeedInterval() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.timeout / 2
}

// Feed records tick as the last feed and clears a latched expiry.
func (w *Watchdog) Feed(tick uint64) {
	w.mu.Lock()
	w.lastFed = tick
	w.latched = false
	w.mu.Unlock()
}

// LastFed returns the tick of the last feed.
func (w *Watchdog) LastFed() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastFed
}

// expired reports whether tick − lastFed ≥ timeout. A disarmed watchdog
// never expires.
func (w *Watchdog) expired(tick uint64) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.expiredLocked(tick)
}

func (w *Watchdog) expiredLocked(tick uint64) bool {
	return w.armedLocked() && tick >= w.lastFed && tick-w.lastFed >= w.timeout
}

// CheckExpired is expired latched per episode: it returns true on the first
// expired check after a feed and false until the next feed.
func (w *Watchdog) CheckExpired(tick uint64) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.latched || !w.expiredLocked(tick) {
		return false
	}
	w.latched = true
	return true
}

// Disable disarms the watchdog.
func (w *Watchdog) Disable() {
	w.mu.Lock()
	w.enabled = false
	w.mu.Unlock()
}
