package core

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies a fault reported to the state machine. Values match
// the device error codes.
type ErrorKind uint8

const (
	KindSensorInitFailed        ErrorKind = 0x01
	KindCommTimeout             ErrorKind = 0x02
	KindWatchdogTimeout         ErrorKind = 0x03
	KindPowerLow                ErrorKind = 0x04
	KindSensorCalibrationFailed ErrorKind = 0x05
	KindMemoryAllocFailed       ErrorKind = 0x06
)

var kindNames = map[ErrorKind]string{
	KindSensorInitFailed:        "sensor-init-failed",
	KindCommTimeout:             "comm-timeout",
	KindWatchdogTimeout:         "watchdog-timeout",
	KindPowerLow:                "power-low",
	KindSensorCalibrationFailed: "sensor-calibration-failed",
	KindMemoryAllocFailed:       "memory-alloc-failed",
}

func (k ErrorKind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return fmt.Sprintf("unknown(0x%02X)", uint8(k))
}

// ParseErrorKind resolves a kind by name, e.g. "power-low".
func ParseErrorKind(s string) (ErrorKind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for k, n := range kindNames {
		if n == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown error kind %q", s)
}

var (
	ErrSelfTestFailed    = errors.New("sensor self-test failed")
	ErrCalibrationFailed = errors.New("sensor calibration failed")
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrNotConnected      = errors.New("telemetry sink not connected")
	ErrInvalidRate       = errors.New("rate must be at least 1 Hz")
	ErrInjectedFailure   = errors.New("injected sink failure")
)
