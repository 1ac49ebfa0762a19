// Package scenario scripts fault injections against a running headset core.
package scenario

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"

	"vrheadset-sim/internal/core"
	"vrheadset-sim/internal/logging"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Actions understood by Step.
const (
	ActionSetSupply        = "set_supply"
	ActionFailSink         = "fail_sink"
	ActionReport           = "report"
	ActionRequestSleep     = "request_sleep"
	ActionWake             = "wake"
	ActionReset            = "reset"
	ActionStarveWatchdog   = "starve_watchdog"
	ActionSetTelemetryRate = "set_telemetry_rate"
)

// Scenario is an ordered list of injections keyed by tick.
type Scenario struct {
	Name        string `yaml:"name,omitempty"`
	Description string `yaml:"description,omitempty"`
	Steps       []Step `yaml:"steps"`
}

// Step is one injection applied just before tick AtTick runs.
type Step struct {
	AtTick  uint64  `yaml:"at_tick"`
	Action  string  `yaml:"action"`
	Voltage float64 `yaml:"voltage,omitempty"`
	Current float64 `yaml:"current,omitempty"`
	Kind    string  `yaml:"kind,omitempty"`
	Count   int     `yaml:"count,omitempty"`
	RateHz  uint32  `yaml:"rate_hz,omitempty"`
}

// Load reads a YAML scenario definition from disk.
func Load(path string) (*Scenario, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	var s Scenario
	if err := yaml.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks every step and sorts the steps by tick.
func (s *Scenario) Validate() error {
	var errs []error
	for i, st := range s.Steps {
		if err := st.validate(); err != nil {
			errs = append(errs, fmt.Errorf("step %d: %w", i, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid scenario %q: %w", s.Name, errors.Join(errs...))
	}
	sort.SliceStable(s.Steps, func(i, j int) bool { return s.Steps[i].AtTick < s.Steps[j].AtTick })
	return nil
}

func (st Step) validate() error {
	if st.AtTick == 0 {
		return errors.New("at_tick must be at least 1")
	}
	switch st.Action {
	case ActionSetSupply:
		if st.Voltage <= 0 {
			return errors.New("set_supply needs a positive voltage")
		}
	case ActionFailSink, ActionStarveWatchdog:
		if st.Count < 1 {
			return fmt.Errorf("%s needs count >= 1", st.Action)
		}
	case ActionReport:
		if _, err := core.ParseErrorKind(st.Kind); err != nil {
			return err
		}
	case ActionSetTelemetryRate:
		if st.RateHz == 0 {
			return errors.New("set_telemetry_rate needs rate_hz >= 1")
		}
	case ActionRequestSleep, ActionWake, ActionReset:
	default:
		return fmt.Errorf("unknown action %q", st.Action)
	}
	return nil
}

// Due returns the steps scheduled for tick.
func (s *Scenario) Due(tick uint64) []core.Fault {
	var out []core.Fault
	for _, st := range s.Steps {
		if st.AtTick == tick {
			out = append(out, st)
		}
	}
	return out
}

// Apply performs the injection.
func (st Step) Apply(ctx context.Context, s *core.Scheduler) error {
	logging.FromContext(ctx).Info("scenario step",
		zap.Uint64("at_tick", st.AtTick), zap.String("action", st.Action))
	switch st.Action {
	case ActionSetSupply:
		s.SetSupply(st.Voltage, st.Current)
	case ActionFailSink:
		s.InjectSinkFailures(st.Count)
	case ActionReport:
		kind, err := core.ParseErrorKind(st.Kind)
		if err != nil {
			return err
		}
		s.Report(kind)
	case ActionRequestSleep:
		s.RequestSleep()
	case ActionWake:
		s.WakeUp()
	case ActionReset:
		return s.Reset(ctx)
	case ActionStarveWatchdog:
		s.StarveWatchdog(st.Count)
	case ActionSetTelemetryRate:
		return s.SetTelemetryRate(st.RateHz)
	default:
		return fmt.Errorf("unknown action %q", st.Action)
	}
	return nil
}
