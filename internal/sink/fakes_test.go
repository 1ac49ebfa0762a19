package sink

import (
	"context"
	"errors"
	"sync"
	"time"

	"vrheadset-sim/internal/telemetry"

	tea "github.com/charmbracelet/bubbletea"
)

var errDown = errors.New("backend down")

func testPacket(frame uint32) telemetry.Packet {
	p := telemetry.InitialPacket()
	p.FrameID = frame
	p.TimestampUS = 1_700_000_000_000_000 + uint64(frame)*1000
	p.CPUUsage = 45.125
	p.Temperature = 47.5
	return p
}

type recordingSink struct {
	mu       sync.Mutex
	packets  []telemetry.Packet
	statuses []telemetry.StatusRow
	failN    int
	err      error
	notRdy   bool
	closed   bool
}

func (s *recordingSink) Send(_ context.Context, p telemetry.Packet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failN > 0 {
		s.failN--
		return errDown
	}
	if s.err != nil {
		return s.err
	}
	s.packets = append(s.packets, p)
	return nil
}

func (s *recordingSink) Ready() bool { return !s.notRdy }

func (s *recordingSink) WriteStatus(row telemetry.StatusRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses = append(s.statuses, row)
	return nil
}

func (s *recordingSink) Close() error {
	s.closed = true
	return nil
}

// plainSink implements only Send.
type plainSink struct{ n int }

func (s *plainSink) Send(context.Context, telemetry.Packet) error {
	s.n++
	return nil
}

type fakeProgram struct{ msgs []tea.Msg }

func (f *fakeProgram) Send(msg tea.Msg) { f.msgs = append(f.msgs, msg) }

type fakeToken struct {
	err  error
	done chan struct{}
}

func newFakeToken(err error) *fakeToken {
	t := &fakeToken{err: err, done: make(chan struct{})}
	close(t.done)
	return t
}

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{}          { return t.done }
func (t *fakeToken) Error() error                   { return t.err }
