package sink

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"sync"

	"vrheadset-sim/internal/telemetry"
)

// FileSink writes packets and status rows to JSONL files.
type FileSink struct {
	mu         sync.Mutex
	packetFile *os.File
	statusFile *os.File
	packetEnc  *json.Encoder
	statusEnc  *json.Encoder
}

// NewFileSink creates a FileSink. statusPath may be empty to skip the status log.
func NewFileSink(packetPath, statusPath string) (*FileSink, error) {
	pf, err := os.Create(packetPath)
	if err != nil {
		return nil, err
	}
	fs := &FileSink{packetFile: pf, packetEnc: json.NewEncoder(pf)}
	if statusPath != "" {
		sf, err := os.Create(statusPath)
		if err != nil {
			pf.Close()
			return nil, err
		}
		fs.statusFile = sf
		fs.statusEnc = json.NewEncoder(sf)
	}
	return fs, nil
}

// Send logs a single packet.
func (f *FileSink) Send(_ context.Context, p telemetry.Packet) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.packetEnc.Encode(p)
}

// WriteStatus logs a status row, if enabled.
func (f *FileSink) WriteStatus(row telemetry.StatusRow) error {
	if f.statusEnc == nil {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statusEnc.Encode(row)
}

// Close closes any underlying files.
func (f *FileSink) Close() error {
	var errs []error
	if f.packetFile != nil {
		errs = append(errs, f.packetFile.Close())
	}
	if f.statusFile != nil {
		errs = append(errs, f.statusFile.Close())
	}
	return errors.Join(errs...)
}
