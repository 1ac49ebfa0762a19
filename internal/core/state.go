package core

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// State is the system state.
type State int

const (
	StateInit State = iota
	StateReady
	StateTracking
	StateError
	StateSleep
	StateShutdown
)

var stateNames = [...]string{"INIT", "READY", "TRACKING", "ERROR", "SLEEP", "SHUTDOWN"}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// AllStates lists every declared state in enum order.
var AllStates = []State{StateInit, StateReady, StateTracking, StateError, StateSleep, StateShutdown}

// Escalation thresholds. The report path checks reportThreshold on every
// report; the tick path checks tickThreshold once per tick. Both stay.
const (
	reportThreshold = 5
	tickThreshold   = 10
)

// transitions is the complete transition table. Tracking and Sleep are
// declared but nothing targets them. Shutdown is terminal.
var transitions = map[State][]State{
	StateInit:     {StateReady, StateError, StateShutdown},
	StateReady:    {StateError, StateShutdown},
	StateTracking: {StateError},
	StateError:    {StateInit, StateShutdown},
	StateSleep:    {StateError},
	StateShutdown: nil,
}

// CanTransition reports whether from → to is in the transition table.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Status is a point-in-time copy of the system status.
type Status struct {
	State              State
	UptimeMS           uint64
	LastWatchdogFeed   uint64
	ErrorCount         uint32
	ResetCount         uint32
	SensorsInitialized bool
	CommunicationReady bool
}

func (st Status) String() string {
	return fmt.Sprintf("State=%s, Errors=%d, Uptime=%d ms", st.State, st.ErrorCount, st.UptimeMS)
}

// Observer receives state machine events. Callbacks run on the reporting
// goroutine after the status lock is released.
type Observer interface {
	StateChanged(from, to State, st Status)
	ErrorReported(kind ErrorKind, st Status)
}

type event struct {
	changed  bool
	from, to State
	reported bool
	kind     ErrorKind
	st       Status
}

// Machine owns the system status. All mutation goes through its methods.
type Machine struct {
	mu        sync.Mutex
	st        Status
	observers []Observer
	log       *zap.Logger
}

// NewMachine returns a machine in Init.
func NewMachine(log *zap.Logger, observers ...Observer) *Machine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Machine{st: Status{State: StateInit}, observers: observers, log: log}
}

// AddObserver registers o for subsequent events.
func (m *Machine) AddObserver(o Observer) {
	m.mu.Lock()
	m.observers = append(m.observers, o)
	m.mu.Unlock()
}

// Snapshot returns a copy of the status.
func (m *Machine) Snapshot() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.State
}

// transitionLocked moves to the target state if the table allows it.
func (m *Machine) transitionLocked(to State, evs []event) ([]event, bool) {
	from := m.st.State
	if from == to || !CanTransition(from, to) {
		return evs, false
	}
	m.st.State = to
	m.log.Info("state changed", zap.Stringer("from", from), zap.Stringer("to", to))
	return append(evs, event{changed: true, from: from, to: to, st: m.st}), true
}

func (m *Machine) notify(evs []event) {
	if len(evs) == 0 {
		return
	}
	m.mu.Lock()
	obs := append([]Observer(nil), m.observers...)
	m.mu.Unlock()
	for _, e := range evs {
		for _, o := range obs {
			if e.changed {
				o.StateChanged(e.from, e.to, e.st)
			}
			if e.reported {
				o.ErrorReported(e.kind, e.st)
			}
		}
	}
}

// Report records one fault. The counter always increments; reaching the
// report threshold forces Error.
func (m *Machine) Report(kind ErrorKind) Status {
	m.mu.Lock()
	m.st.ErrorCount++
	m.log.Warn("error reported",
		zap.Stringer("kind", kind),
		zap.String("code", fmt.Sprintf("0x%02X", uint8(kind))),
		zap.Uint32("count", m.st.ErrorCount))
	evs := []event{{reported: true, kind: kind, st: m.st}}
	if m.st.ErrorCount >= reportThreshold && m.st.State != StateError {
		var ok bool
		if evs, ok = m.transitionLocked(StateError, evs); ok {
			m.log.Error("too many errors, entering error state", zap.Uint32("count", m.st.ErrorCount))
		}
	}
	st := m.st
	m.mu.Unlock()
	m.notify(evs)
	return st
}

// CheckTickGuard forces Error when the count has reached the tick threshold.
// It reports true when it changed the state.
func (m *Machine) CheckTickGuard() bool {
	m.mu.Lock()
	var evs []event
	changed := false
	if m.st.ErrorCount >= tickThreshold && m.st.State != StateError {
		evs, changed = m.transitionLocked(StateError, evs)
	}
	m.mu.Unlock()
	m.notify(evs)
	return changed
}

// MarkInitialized records the outcome of initialization. Init moves to Ready
// only when the sensors came up.
func (m *Machine) MarkInitialized(sensorsOK, commReady bool) error {
	m.mu.Lock()
	if m.st.State != StateInit {
		from := m.st.State
		m.mu.Unlock()
		return fmt.Errorf("%w: initialize from %s", ErrInvalidTransition, from)
	}
	m.st.SensorsInitialized = sensorsOK
	m.st.CommunicationReady = commReady
	var evs []event
	if sensorsOK {
		evs, _ = m.transitionLocked(StateReady, evs)
	}
	m.mu.Unlock()
	m.notify(evs)
	return nil
}

// Reset moves Error → Init, zeroes the error count and bumps the reset count.
// Init is also accepted so a failed self-test can be retried; the state
// stays Init and no transition is emitted.
func (m *Machine) Reset() error {
	m.mu.Lock()
	if m.st.State != StateError && m.st.State != StateInit {
		from := m.st.State
		m.mu.Unlock()
		return fmt.Errorf("%w: reset from %s", ErrInvalidTransition, from)
	}
	m.st.ErrorCount = 0
	m.st.ResetCount++
	m.st.SensorsInitialized = false
	m.st.CommunicationReady = false
	evs, _ := m.transitionLocked(StateInit, nil)
	m.mu.Unlock()
	m.notify(evs)
	return nil
}

// Shutdown moves to the terminal Shutdown state.
func (m *Machine) Shutdown() error {
	m.mu.Lock()
	from := m.st.State
	evs, ok := m.transitionLocked(StateShutdown, nil)
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: shutdown from %s", ErrInvalidTransition, from)
	}
	m.notify(evs)
	return nil
}

// AdvanceUptime sets the uptime to the current tick.
func (m *Machine) AdvanceUptime(tick uint64) {
	m.mu.Lock()
	m.st.UptimeMS = tick
	m.mu.Unlock()
}

// RecordWatchdogFeed stores the tick of the last feed.
func (m *Machine) RecordWatchdogFeed(tick uint64) {
	m.mu.Lock()
	m.st.LastWatchdogFeed = tick
	m.mu.Unlock()
}
