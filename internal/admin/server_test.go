package admin

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"vrheadset-sim/internal/core"
	"vrheadset-sim/internal/telemetry"
)

type fakeController struct {
	st       core.Status
	rate     uint32
	sleeping bool
	armed    bool
	resets   int
	reported []core.ErrorKind
}

func newFakeController() *fakeController {
	return &fakeController{st: core.Status{State: core.StateReady, UptimeMS: 1234}, rate: 60, armed: true}
}

func (f *fakeController) Status() core.Status      { return f.st }
func (f *fakeController) CurrentTick() uint64      { return f.st.UptimeMS }
func (f *fakeController) Latest() telemetry.Packet { return telemetry.InitialPacket() }
func (f *fakeController) History() []float64       { return []float64{0.1, 0.2} }
func (f *fakeController) Stats() core.Stats        { return core.Stats{Ticks: 1234, TelemetrySent: 74} }
func (f *fakeController) TelemetryRate() uint32    { return f.rate }
func (f *fakeController) SetTelemetryRate(hz uint32) error {
	if hz == 0 {
		return core.ErrInvalidRate
	}
	f.rate = hz
	return nil
}
func (f *fakeController) Reset(context.Context) error {
	if f.st.State != core.StateError {
		return core.ErrInvalidTransition
	}
	f.resets++
	f.st = core.Status{State: core.StateReady, ResetCount: uint32(f.resets)}
	return nil
}
func (f *fakeController) RequestSleep()       { f.sleeping = true }
func (f *fakeController) WakeUp()             { f.sleeping = false }
func (f *fakeController) WatchdogDisable()    { f.armed = false }
func (f *fakeController) WatchdogArmed() bool { return f.armed }
func (f *fakeController) Voltage() float64    { return 3.3 }
func (f *fakeController) Current() float64    { return 0.5 }
func (f *fakeController) Report(kind core.ErrorKind) core.Status {
	f.reported = append(f.reported, kind)
	f.st.ErrorCount++
	return f.st
}

func do(t *testing.T, s *Server, method, target string) (*http.Response, []byte) {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	resp, err := s.App().Test(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, target, err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	return resp, body
}

func TestHandleStatus(t *testing.T) {
	s := NewServer(newFakeController(), nil)
	resp, body := do(t, s, http.MethodGet, "/status")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var st StatusResponse
	if err := json.Unmarshal(body, &st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st.State != "READY" || st.UptimeMS != 1234 || st.TelemetryRateHz != 60 || st.Stats.TelemetrySent != 74 {
		t.Errorf("unexpected status: %+v", st)
	}
	if st.Voltage != 3.3 || !st.WatchdogArmed {
		t.Errorf("unexpected power/watchdog fields: %+v", st)
	}
}

func TestHandleHealth(t *testing.T) {
	ctl := newFakeController()
	s := NewServer(ctl, nil)
	if resp, _ := do(t, s, http.MethodGet, "/healthz"); resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200 when ready, got %d", resp.StatusCode)
	}
	ctl.st.State = core.StateError
	if resp, _ := do(t, s, http.MethodGet, "/healthz"); resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected 503 in error, got %d", resp.StatusCode)
	}
}

func TestHandlePacketAndHistory(t *testing.T) {
	s := NewServer(newFakeController(), nil)
	_, body := do(t, s, http.MethodGet, "/packet")
	var p telemetry.Packet
	if err := json.Unmarshal(body, &p); err != nil {
		t.Fatalf("decode packet: %v", err)
	}
	if p.HeadPosition.Y != 1.7 || p.BatteryLevel != 100 {
		t.Errorf("unexpected packet: %+v", p)
	}
	_, body = do(t, s, http.MethodGet, "/history")
	var h struct {
		HeadX []float64 `json:"head_x"`
	}
	if err := json.Unmarshal(body, &h); err != nil || len(h.HeadX) != 2 {
		t.Errorf("unexpected history %s: %v", body, err)
	}
}

func TestHandleReset(t *testing.T) {
	ctl := newFakeController()
	s := NewServer(ctl, nil)
	if resp, _ := do(t, s, http.MethodPost, "/reset"); resp.StatusCode != http.StatusConflict {
		t.Errorf("reset outside error: expected 409, got %d", resp.StatusCode)
	}
	ctl.st.State = core.StateError
	resp, body := do(t, s, http.MethodPost, "/reset")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
	}
	if ctl.resets != 1 || ctl.st.State != core.StateReady {
		t.Errorf("reset not applied: %+v", ctl.st)
	}
}

func TestHandleSleepWake(t *testing.T) {
	ctl := newFakeController()
	s := NewServer(ctl, nil)
	if resp, _ := do(t, s, http.MethodPost, "/sleep"); resp.StatusCode != http.StatusNoContent || !ctl.sleeping {
		t.Errorf("sleep not requested")
	}
	if resp, _ := do(t, s, http.MethodPost, "/wake"); resp.StatusCode != http.StatusNoContent || ctl.sleeping {
		t.Errorf("wake not applied")
	}
}

func TestHandleTelemetryRate(t *testing.T) {
	ctl := newFakeController()
	s := NewServer(ctl, nil)
	cases := []struct {
		query string
		code  int
		rate  uint32
	}{
		{"hz=90", http.StatusOK, 90},
		{"hz=0", http.StatusBadRequest, 90},
		{"hz=abc", http.StatusBadRequest, 90},
		{"", http.StatusBadRequest, 90},
		{"hz=1000", http.StatusOK, 1000},
	}
	for _, tc := range cases {
		resp, _ := do(t, s, http.MethodPost, "/telemetry-rate?"+tc.query)
		if resp.StatusCode != tc.code {
			t.Errorf("%q: expected %d, got %d", tc.query, tc.code, resp.StatusCode)
		}
		if ctl.rate != tc.rate {
			t.Errorf("%q: expected rate %d, got %d", tc.query, tc.rate, ctl.rate)
		}
	}
}

func TestHandleWatchdogDisable(t *testing.T) {
	ctl := newFakeController()
	s := NewServer(ctl, nil)
	do(t, s, http.MethodPost, "/watchdog/disable")
	if ctl.armed {
		t.Errorf("watchdog still armed")
	}
}

func TestHandleReport(t *testing.T) {
	ctl := newFakeController()
	s := NewServer(ctl, nil)
	resp, _ := do(t, s, http.MethodPost, "/errors/power-low")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if len(ctl.reported) != 1 || ctl.reported[0] != core.KindPowerLow {
		t.Errorf("unexpected reports: %v", ctl.reported)
	}
	if resp, _ := do(t, s, http.MethodPost, "/errors/bogus"); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown kind, got %d", resp.StatusCode)
	}
}
