package sqlite

import (
	"errors"
	"testing"

	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"

	"github.com/warp/catalog-engine/catalog"
)

func TestTranslateErr_BusyIsBatchConflict(t *testing.T) {
	// SQLITE_BUSY means another writer holds the database, which is the
	// lost-a-write-race case and must be retryable.
	err := translateErr(wrapStoreErr("apply", "prod-1", "cov-1", sqlite3.Error{Code: sqlite3.ErrBusy}))
	assert.ErrorIs(t, err, catalog.ErrBatchConflict)
	assert.True(t, catalog.IsTransient(err))
}

func TestTranslateErr_LockedIsBatchConflict(t *testing.T) {
	err := translateErr(sqlite3.Error{Code: sqlite3.ErrLocked})
	assert.ErrorIs(t, err, catalog.ErrBatchConflict)
}

func TestTranslateErr_CantOpenIsUnavailable(t *testing.T) {
	err := translateErr(sqlite3.Error{Code: sqlite3.ErrCantOpen})
	assert.ErrorIs(t, err, catalog.ErrStoreUnavailable)
	assert.True(t, catalog.IsTransient(err))
}

func TestTranslateErr_LockedMessageFallback(t *testing.T) {
	// database/sql sometimes surfaces contention as plain text.
	err := translateErr(errors.New("database is locked"))
	assert.ErrorIs(t, err, catalog.ErrBatchConflict)
}

func TestTranslateErr_PermanentPassesThrough(t *testing.T) {
	constraint := sqlite3.Error{Code: sqlite3.ErrConstraint}
	err := translateErr(constraint)
	assert.False(t, catalog.IsTransient(err))

	assert.Nil(t, translateErr(nil))
}
