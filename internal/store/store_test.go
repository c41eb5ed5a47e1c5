package store

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-logr/logr"
	"github.com/jmoiron/sqlx"
)

// newMockStore builds a Store around a sqlmock connection, skipping the real
// Open/migration path so unit tests can assert exact SQL without a live
// sqlite file.
func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	return &Store{db: sqlx.NewDb(db, "sqlmock"), log: logr.Discard()}, mock
}

func sqlmockResult() sqlmock.Result {
	return sqlmock.NewResult(0, 1)
}
