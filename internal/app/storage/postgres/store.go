package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/muraguri00/zalora-luxury/internal/app/storage"
	apperrors "github.com/muraguri00/zalora-luxury/internal/errors"
)

// Store implements the storage interfaces backed by PostgreSQL. Multi-record
// writes run in one transaction each.
type Store struct {
	db  *sqlx.DB
	now func() time.Time
}

var (
	_ storage.ProductStore     = (*Store)(nil)
	_ storage.OrderStore       = (*Store)(nil)
	_ storage.ApplicationStore = (*Store)(nil)
	_ storage.WalletStore      = (*Store)(nil)
	_ storage.ProfileStore     = (*Store)(nil)
	_ storage.AuditStore       = (*Store)(nil)
)

// New creates a Store using the provided database handle.
func New(db *sqlx.DB) *Store {
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// Open connects with lib/pq and verifies the connection within timeout.
func Open(ctx context.Context, dsn string, maxOpen, maxIdle int, connMaxLifetime, timeout time.Duration) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if maxOpen > 0 {
		db.SetMaxOpenConns(maxOpen)
	}
	if maxIdle > 0 {
		db.SetMaxIdleConns(maxIdle)
	}
	if connMaxLifetime > 0 {
		db.SetConnMaxLifetime(connMaxLifetime)
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

func (s *Store) withTx(ctx context.Context, op string, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return apperrors.WrapStore(op+".begin", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return apperrors.WrapStore(op+".commit", err)
	}
	return nil
}

const (
	codeUniqueViolation   = "23505"
	codeNumericOutOfRange = "22003"
)

func pqCode(err error) pq.ErrorCode {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code
	}
	return ""
}

func isUniqueViolation(err error) bool { return pqCode(err) == codeUniqueViolation }

// getOne runs a single-row query and reports sql.ErrNoRows as NotFound.
func getOne(ctx context.Context, q sqlx.QueryerContext, dest any, op, resource, id, query string, args ...any) error {
	err := sqlx.GetContext(ctx, q, dest, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return apperrors.NewNotFoundError(resource, id)
	}
	return apperrors.WrapStore(op, err)
}

func execOne(ctx context.Context, e sqlx.ExecerContext, op, resource, id, query string, args ...any) error {
	res, err := e.ExecContext(ctx, query, args...)
	if err != nil {
		return apperrors.WrapStore(op, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.NewNotFoundError(resource, id)
	}
	return nil
}

// where accumulates AND-ed conditions with positional arguments.
type where struct {
	clauses []string
	args    []any
}

// add appends clause, which must contain one %d for the placeholder index.
func (w *where) add(clause string, v any) {
	w.args = append(w.args, v)
	w.clauses = append(w.clauses, fmt.Sprintf(clause, len(w.args)))
}

func (w *where) String() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.clauses, " AND ")
}
