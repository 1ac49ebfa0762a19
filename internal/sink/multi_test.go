package sink

import (
	"context"
	"errors"
	"testing"

	"vrheadset-sim/internal/telemetry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMultiSinkSendsToAll(t *testing.T) {
	a, b := &recordingSink{}, &plainSink{}
	m := NewMultiSink(a, b)
	require.NoError(t, m.Send(context.Background(), testPacket(1)))
	assert.Len(t, a.packets, 1)
	assert.Equal(t, 1, b.n)
}

func TestMultiSinkJoinsErrors(t *testing.T) {
	ok := &recordingSink{}
	bad1 := &recordingSink{err: errDown}
	bad2 := &recordingSink{err: errors.New("disk full")}
	m := NewMultiSink(bad1, ok, bad2)
	err := m.Send(context.Background(), testPacket(1))
	require.Error(t, err)
	assert.ErrorIs(t, err, errDown)
	assert.Contains(t, err.Error(), "disk full")
	assert.Len(t, ok.packets, 1, "healthy sink still receives the packet")
}

func TestMultiSinkSkipsUnready(t *testing.T) {
	down := &recordingSink{notRdy: true}
	up := &recordingSink{}
	m := NewMultiSink(down, up)
	require.True(t, m.Ready())
	require.NoError(t, m.Send(context.Background(), testPacket(1)))
	assert.Empty(t, down.packets)
	assert.Len(t, up.packets, 1)

	up.notRdy = true
	assert.False(t, m.Ready())
	assert.True(t, NewMultiSink(down, &plainSink{}).Ready(), "sinks without Ready count as ready")
	assert.False(t, NewMultiSink().Ready())
}

func TestMultiSinkStatusAndClose(t *testing.T) {
	a, b := &recordingSink{}, &recordingSink{}
	m := NewMultiSink(a, &plainSink{}, b)
	require.NoError(t, m.WriteStatus(telemetry.StatusRow{State: "READY"}))
	assert.Len(t, a.statuses, 1)
	assert.Len(t, b.statuses, 1)
	require.NoError(t, m.Close())
	assert.True(t, a.closed)
	assert.True(t, b.closed)
}
