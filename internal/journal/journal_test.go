package journal

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"vrheadset-sim/internal/core"
)

var insertRE = regexp.QuoteMeta("INSERT INTO headset_events")

func setupMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return db, mock
}

func TestJournalWritesEvents(t *testing.T) {
	db, mock := setupMockDB(t)
	mock.ExpectExec(insertRE).
		WithArgs(sqlmock.AnyArg(), "hs-1", "state_changed", "READY", "ERROR", nil, 5, 80, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(insertRE).
		WithArgs(sqlmock.AnyArg(), "hs-1", "error_reported", nil, nil, "comm-timeout", 5, 80, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectClose()

	j := New(db, "hs-1", 8, zap.NewNop())
	st := core.Status{State: core.StateError, ErrorCount: 5, UptimeMS: 80}
	j.StateChanged(core.StateReady, core.StateError, st)
	j.ErrorReported(core.KindCommTimeout, st)
	require.NoError(t, j.Close())

	assert.Equal(t, uint64(2), j.Written())
	assert.Zero(t, j.Dropped())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJournalInsertFailureContinues(t *testing.T) {
	db, mock := setupMockDB(t)
	mock.ExpectExec(insertRE).WillReturnError(errors.New("connection reset"))
	mock.ExpectExec(insertRE).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectClose()

	j := New(db, "hs-1", 8, nil)
	j.ErrorReported(core.KindPowerLow, core.Status{ErrorCount: 1})
	j.ErrorReported(core.KindPowerLow, core.Status{ErrorCount: 2})
	require.NoError(t, j.Close())

	assert.Equal(t, uint64(1), j.Written())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJournalDropsWhenFull(t *testing.T) {
	j := &Journal{now: time.Now, events: make(chan entry, 1)}
	for i := 0; i < 3; i++ {
		j.ErrorReported(core.KindCommTimeout, core.Status{})
	}
	assert.Equal(t, uint64(2), j.Dropped())
	assert.Len(t, j.events, 1)
}

func TestJournalAfterClose(t *testing.T) {
	db, mock := setupMockDB(t)
	mock.ExpectClose()
	j := New(db, "hs-1", 4, nil)
	require.NoError(t, j.Close())
	j.StateChanged(core.StateInit, core.StateReady, core.Status{})
	assert.Equal(t, uint64(1), j.Dropped())
	require.NoError(t, j.Close(), "second close is a no-op")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureSchema(t *testing.T) {
	db, mock := setupMockDB(t)
	defer db.Close()
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS headset_events")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	require.NoError(t, EnsureSchema(context.Background(), db))

	mock.ExpectExec("CREATE TABLE").WillReturnError(errors.New("permission denied"))
	assert.ErrorContains(t, EnsureSchema(context.Background(), db), "permission denied")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionIDStable(t *testing.T) {
	db, mock := setupMockDB(t)
	mock.ExpectClose()
	j := New(db, "hs-1", 1, nil)
	defer j.Close()
	assert.Equal(t, j.SessionID(), j.SessionID())
	assert.NotEqual(t, "00000000-0000-0000-0000-000000000000", j.SessionID().String())
}
