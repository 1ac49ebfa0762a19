package sink

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"time"

	"vrheadset-sim/internal/telemetry"
)

// ReplayLog replays packets from r to s. A speed >0 scales the recorded
// inter-packet gaps; if speed <= 0, no artificial delay is inserted.
func ReplayLog(ctx context.Context, r io.Reader, s Sink, speed float64) (int, error) {
	dec := json.NewDecoder(r)
	var prev uint64
	n := 0
	for {
		var p telemetry.Packet
		if err := dec.Decode(&p); err != nil {
			if errors.Is(err, io.EOF) {
				return n, nil
			}
			return n, err
		}
		if prev != 0 && speed > 0 && p.TimestampUS > prev {
			diff := time.Duration(p.TimestampUS-prev) * time.Microsecond
			if speed != 1 {
				diff = time.Duration(float64(diff) / speed)
			}
			select {
			case <-time.After(diff):
			case <-ctx.Done():
				return n, ctx.Err()
			}
		}
		if err := s.Send(ctx, p); err != nil {
			return n, err
		}
		n++
		prev = p.TimestampUS
	}
}

// ReplayLogFile opens a file and replays its packets.
func ReplayLogFile(ctx context.Context, path string, s Sink, speed float64) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return ReplayLog(ctx, f, s, speed)
}
