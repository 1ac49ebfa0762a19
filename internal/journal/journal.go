// Package journal records state machine transitions and error reports in
// Postgres.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"vrheadset-sim/internal/core"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

const (
	eventStateChanged  = "state_changed"
	eventErrorReported = "error_reported"
	writeTimeout       = 5 * time.Second
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS headset_events (
  id BIGSERIAL PRIMARY KEY,
  session_id UUID NOT NULL,
  device_id TEXT NOT NULL,
  event TEXT NOT NULL,
  from_state TEXT,
  to_state TEXT,
  error_kind TEXT,
  error_count INTEGER NOT NULL,
  uptime_ms BIGINT NOT NULL,
  created_at TIMESTAMPTZ NOT NULL
)`

const insertSQL = `INSERT INTO headset_events (session_id, device_id, event, from_state, to_state, error_kind, error_count, uptime_ms, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

type entry struct {
	event     string
	from, to  sql.NullString
	kind      sql.NullString
	errors    uint32
	uptimeMS  uint64
	createdAt time.Time
}

// Journal is a core.Observer that writes events asynchronously. Callbacks
// never block the control loop: when the buffer is full the event is
// dropped and counted.
type Journal struct {
	db        *sql.DB
	sessionID uuid.UUID
	deviceID  string
	log       *zap.Logger
	now       func() time.Time

	mu      sync.RWMutex
	closed  bool
	events  chan entry
	wg      sync.WaitGroup
	dropped atomic.Uint64
	written atomic.Uint64
}

// Open connects to Postgres, creates the events table and starts the writer.
func Open(ctx context.Context, dsn, deviceID string, buffer int, log *zap.Logger) (*Journal, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if err := EnsureSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return New(db, deviceID, buffer, log), nil
}

// EnsureSchema creates the events table if it does not exist.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create headset_events: %w", err)
	}
	return nil
}

// New starts a journal on an open database. The journal owns db.
func New(db *sql.DB, deviceID string, buffer int, log *zap.Logger) *Journal {
	if buffer < 1 {
		buffer = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	j := &Journal{
		db:        db,
		sessionID: uuid.New(),
		deviceID:  deviceID,
		log:       log,
		now:       time.Now,
		events:    make(chan entry, buffer),
	}
	j.wg.Add(1)
	go j.run()
	return j
}

// SessionID identifies this run in the events table.
func (j *Journal) SessionID() uuid.UUID { return j.sessionID }

// Dropped returns the number of events discarded because the buffer was full.
func (j *Journal) Dropped() uint64 { return j.dropped.Load() }

// Written returns the number of events stored.
func (j *Journal) Written() uint64 { return j.written.Load() }

// StateChanged implements core.Observer.
func (j *Journal) StateChanged(from, to core.State, st core.Status) {
	j.enqueue(entry{
		event:    eventStateChanged,
		from:     sql.NullString{String: from.String(), Valid: true},
		to:       sql.NullString{String: to.String(), Valid: true},
		errors:   st.ErrorCount,
		uptimeMS: st.UptimeMS,
	})
}

// ErrorReported implements core.Observer.
func (j *Journal) ErrorReported(kind core.ErrorKind, st core.Status) {
	j.enqueue(entry{
		event:    eventErrorReported,
		kind:     sql.NullString{String: kind.String(), Valid: true},
		errors:   st.ErrorCount,
		uptimeMS: st.UptimeMS,
	})
}

func (j *Journal) enqueue(e entry) {
	e.createdAt = j.now().UTC()
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed {
		j.dropped.Add(1)
		return
	}
	select {
	case j.events <- e:
	default:
		j.dropped.Add(1)
	}
}

func (j *Journal) run() {
	defer j.wg.Done()
	for e := range j.events {
		if err := j.insert(e); err != nil {
			j.log.Warn("journal insert failed", zap.String("event", e.event), zap.Error(err))
			continue
		}
		j.written.Add(1)
	}
}

func (j *Journal) insert(e entry) error {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	_, err := j.db.ExecContext(ctx, insertSQL,
		j.sessionID.String(), j.deviceID, e.event, e.from, e.to, e.kind,
		int64(e.errors), int64(e.uptimeMS), e.createdAt)
	return err
}

// Close flushes queued events and closes the database. Events reported
// after Close are dropped.
func (j *Journal) Close() error {
	j.mu.Lock()
	if j.closed {
		j.mu.Unlock()
		return nil
	}
	j.closed = true
	close(j.events)
	j.mu.Unlock()
	j.wg.Wait()
	return j.db.Close()
}
