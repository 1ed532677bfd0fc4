package infra

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type txKey struct{}

// WithTx returns a context carrying an open transaction. Postgres-backed
// stores run their statements against it instead of the pool.
func WithTx(ctx context.Context, tx pgx.Tx) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

// TxFrom extracts the transaction carried by the context, if any.
func TxFrom(ctx context.Context) (pgx.Tx, bool) {
	tx, ok := ctx.Value(txKey{}).(pgx.Tx)
	return tx, ok
}

// PgTxRunner executes a composite operation inside one transaction, so a
// failure in any step rolls back every write the others already made. A
// nested call joins the transaction already on the context.
type PgTxRunner struct {
	db *pgxpool.Pool
}

// NewPgTxRunner builds a transaction runner on top of the pool.
func NewPgTxRunner(db *pgxpool.Pool) *PgTxRunner {
	return &PgTxRunner{db: db}
}

// RunInTx runs fn with a transaction on the context and commits it when fn
// returns nil. Any error aborts the transaction and is returned unchanged.
func (r *PgTxRunner) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := TxFrom(ctx); ok {
		return fn(ctx)
	}

	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if err := fn(WithTx(ctx, tx)); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
