// Package pg implements the service stores on PostgreSQL through database/sql
// and the pgx stdlib driver.
package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"fundimart.org/internal/admin"
	"fundimart.org/internal/auth"
	"fundimart.org/internal/catalog"
	"fundimart.org/internal/settings"
	"fundimart.org/internal/workflow"
)

const (
	pgErrUniqueViolation     = "23505"
	pgErrForeignKeyViolation = "23503"
)

type Store struct {
	db *sql.DB
}

var (
	_ auth.IdentityStore    = (*Store)(nil)
	_ auth.OwnershipSource  = (*Store)(nil)
	_ admin.Store           = (*Store)(nil)
	_ workflow.ReceiptStore = (*Store)(nil)
	_ workflow.ReportStore  = (*Store)(nil)
	_ settings.Store        = (*Store)(nil)
	_ catalog.Store         = (*Store)(nil)
)

func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Tuned pool defaults; adjust under load tests
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// New wraps an existing handle.
func New(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// --- helpers ---

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}

// mapWriteErr translates constraint violations into domain errors.
func mapWriteErr(err error, what string) error {
	if pgErr, ok := maybePgError(err); ok {
		switch pgErr.Code {
		case pgErrUniqueViolation:
			return fmt.Errorf("%w: %s already exists", auth.ErrConflict, what)
		case pgErrForeignKeyViolation:
			return fmt.Errorf("%w: %s references a missing record", auth.ErrNotFound, what)
		}
	}
	return err
}

func notFound(kind, id string) error {
	return fmt.Errorf("%w: %s %s", auth.ErrNotFound, kind, id)
}

func nullIfEmpty(s string) sql.NullString {
	s = strings.TrimSpace(s)
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func clampLimit(n int) int {
	if n <= 0 || n > 1000 {
		return 100
	}
	return n
}

type rowScanner interface {
	Scan(dest ...any) error
}
