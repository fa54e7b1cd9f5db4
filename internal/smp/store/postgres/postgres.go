// Package postgres is the relational backend. Stores are pure I/O: raw SQL
// over database/sql with the lib/pq driver, one store per entity family.
// Mutations join an enclosing transaction when the context carries one.
package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"

	"smpserver/internal/smp/store"
	"smpserver/pkg/platform/sentinel"
	"smpserver/pkg/platform/tx"
)

// NewBackend wires the Postgres stores over one connection pool.
func NewBackend(db *sql.DB) *store.Backend {
	return &store.Backend{
		ServiceGroups:      NewServiceGroupStore(db),
		ServiceInformation: NewServiceInformationStore(db),
		Redirects:          NewRedirectStore(db),
		BusinessCards:      NewBusinessCardStore(db),
		Migrations:         NewMigrationStore(db),
		Ownership:          NewOwnershipStore(db),
		Tx:                 tx.NewSQLRunner(db),
	}
}

// dbExecutor is satisfied by both *sql.DB and *sql.Tx.
type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// execer picks the transaction from context when present, else the pool.
func execer(ctx context.Context, db *sql.DB) dbExecutor {
	if sqlTx, ok := tx.From(ctx); ok {
		return sqlTx
	}
	return db
}

// uniqueViolation is the Postgres error code for unique constraint hits.
const uniqueViolation = "23505"

// translateConstraint maps driver constraint errors onto sentinels so the
// service layer stays driver-agnostic.
func translateConstraint(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return sentinel.ErrConflict
	}
	return err
}
