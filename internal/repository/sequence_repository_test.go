package repository

import (
	"context"
	"fmt"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxdb := sqlx.NewDb(db, "sqlmock")
	return sqlxdb, mock, func() {
		db.Close()
	}
}

func TestIncrementAndGet(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSequenceRepository(db)

	mock.ExpectQuery("INSERT INTO sequence_counters").
		WithArgs("25G3B").
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow(42))

	value, err := repo.IncrementAndGet(context.Background(), "25G3B")
	require.NoError(t, err)
	assert.Equal(t, int64(42), value)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIncrementAndGetError(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSequenceRepository(db)

	mock.ExpectQuery("INSERT INTO sequence_counters").
		WithArgs("ADM").
		WillReturnError(fmt.Errorf("connection refused"))

	_, err := repo.IncrementAndGet(context.Background(), "ADM")
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPeek(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSequenceRepository(db)

	mock.ExpectQuery("SELECT value FROM sequence_counters").
		WithArgs("25G3B").
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow(7))

	value, err := repo.Peek(context.Background(), "25G3B")
	require.NoError(t, err)
	assert.Equal(t, int64(7), value)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPeekUnseenPrefix(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSequenceRepository(db)

	mock.ExpectQuery("SELECT value FROM sequence_counters").
		WithArgs("STF").
		WillReturnRows(sqlmock.NewRows([]string{"value"}))

	value, err := repo.Peek(context.Background(), "STF")
	require.NoError(t, err)
	assert.Equal(t, int64(0), value)
	assert.NoError(t, mock.ExpectationsWereMet())
}
