// Package store is the persistent store (C1): a relational backing for
// server and workflow records. It is intentionally the only component that
// talks SQL; everything else in the module exchanges typed Go values with
// it.
package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps a shared *sqlx.DB. sqlite's single-writer model means the
// underlying *sql.DB connection pool is already safe to share across
// worker goroutines; callers never need to hold an external lock, matching
// spec.md §4.1's concurrency requirement.
type Store struct {
	db  *sqlx.DB
	log logr.Logger
}

// Open opens (creating if absent) the sqlite database at path and runs any
// pending migrations inside goose's single-transaction-per-migration mode.
// Migration failure is fatal at startup, per spec.md §4.1.
func Open(ctx context.Context, path string, log logr.Logger) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", path)
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening store at %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // sqlite: one writer; readers interleave fine behind busy_timeout.

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("pinging store at %s: %w", path, err)
	}

	goose.SetBaseFS(migrationsFS)
	goose.SetTableName("schema_migrations")
	if err := goose.SetDialect("sqlite3"); err != nil {
		return nil, fmt.Errorf("setting migration dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db.DB, "migrations"); err != nil {
		return nil, fmt.Errorf("applying migrations: %w", err)
	}

	return &Store{db: db, log: log}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// logPersistenceError implements spec.md §4.1's "log, never promote" policy:
// a failed update is surfaced as a warning, never returned up through a
// workflow step as a terminal error.
func (s *Store) logPersistenceError(op, id string, err error) {
	s.log.Error(err, "persistence operation failed; continuing", "op", op, "id", id)
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}
