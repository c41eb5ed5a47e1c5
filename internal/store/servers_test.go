package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureServerIsIdempotent(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(`INSERT INTO servers .* ON CONFLICT`).
		WithArgs("srv-1").
		WillReturnResult(sqlmockResult())

	err := s.EnsureServer(context.Background(), "srv-1")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateServerIgnoresUnknownField(t *testing.T) {
	s, mock := newMockStore(t)
	// No expectation registered: an unknown field must issue zero queries.
	s.UpdateServer(context.Background(), "srv-1", Field("not_a_real_column"), "x")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateServerWritesWhitelistedColumn(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(`UPDATE servers SET status_name = \? WHERE server_id = \?`).
		WithArgs("Ready", "srv-1").
		WillReturnResult(sqlmockResult())

	s.UpdateServer(context.Background(), "srv-1", FieldStatusName, "Ready")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateServerSwallowsPersistenceError(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(`UPDATE servers SET status_name = \? WHERE server_id = \?`).
		WillReturnError(assertError{"disk full"})

	assert.NotPanics(t, func() {
		s.UpdateServer(context.Background(), "srv-1", FieldStatusName, "Ready")
	})
}

type assertError struct{ msg string }

func (e assertError) Error() string { return e.msg }
