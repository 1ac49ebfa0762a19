package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"vrheadset-sim/internal/telemetry"
)

// JSONStdoutSink prints packets and status rows as JSON lines.
type JSONStdoutSink struct {
	mu  sync.Mutex
	out io.Writer
}

// NewJSONStdoutSink creates a JSONStdoutSink writing to os.Stdout.
func NewJSONStdoutSink() *JSONStdoutSink {
	return &JSONStdoutSink{out: os.Stdout}
}

// Send outputs a packet in wire format.
func (w *JSONStdoutSink) Send(_ context.Context, p telemetry.Packet) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	_, err = fmt.Fprintln(w.out, string(data))
	return err
}

// WriteStatus outputs a status row in JSON format.
func (w *JSONStdoutSink) WriteStatus(row telemetry.StatusRow) error {
	data, err := json.Marshal(row)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	_, err = fmt.Fprintln(w.out, string(data))
	return err
}
