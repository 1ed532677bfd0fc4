package account

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/coffre-pay/coffre/internal/infra"
)

// Repository persists account metadata.
type Repository interface {
	Create(ctx context.Context, acct Account) error
	Get(ctx context.Context, id string) (Account, error)
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository stores accounts in PostgreSQL. Statements join a
// transaction carried by the context so composite operations commit as one.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) q(ctx context.Context) querier {
	if tx, ok := infra.TxFrom(ctx); ok {
		return tx
	}
	return r.db
}

// Create inserts an account record.
func (r *PostgresRepository) Create(ctx context.Context, acct Account) error {
	acctID, err := uuid.Parse(acct.ID)
	if err != nil {
		return err
	}
	_, err = r.q(ctx).Exec(ctx, `INSERT INTO accounts (id, owner_id, label, ledger_code, created_at)
        VALUES ($1, $2, $3, $4, $5)`, acctID, acct.Owner, acct.Label, acct.Code, acct.CreatedAt.UTC())
	return err
}

// Get fetches account metadata by identifier.
func (r *PostgresRepository) Get(ctx context.Context, id string) (Account, error) {
	acctID, err := uuid.Parse(id)
	if err != nil {
		return Account{}, ErrNotFound
	}
	row := r.q(ctx).QueryRow(ctx, `SELECT id, owner_id, label, ledger_code, created_at
        FROM accounts WHERE id = $1`, acctID)
	var a Account
	var idVal uuid.UUID
	var createdAt time.Time
	if err := row.Scan(&idVal, &a.Owner, &a.Label, &a.Code, &createdAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrNotFound
		}
		return Account{}, err
	}
	a.ID = idVal.String()
	a.CreatedAt = createdAt.UTC()
	return a, nil
}
