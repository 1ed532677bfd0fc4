package registry

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/coffre-pay/coffre/internal/infra"
)

// Repository persists the identity-to-account directory: one write-once entry
// per owner, plus the creation-ordered account list used for enumeration and
// membership checks.
type Repository interface {
	// Create records the mapping. A second entry for the same owner fails
	// with ErrAlreadyRegistered.
	Create(ctx context.Context, owner, accountID string) error
	AccountIDByOwner(ctx context.Context, owner string) (string, bool, error)
	// AccountIDs returns a page of account IDs in creation order, with the
	// same clamping contract as history pagination.
	AccountIDs(ctx context.Context, offset, limit int) ([]string, error)
	Count(ctx context.Context) (int, error)
	Contains(ctx context.Context, accountID string) (bool, error)
}

const uniqueViolation = "23505"

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository stores the directory in PostgreSQL. Statements join a
// transaction carried by the context so registration commits as one unit.
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

// Create inserts the owner mapping; the primary key on owner_id enforces
// at-most-one registration per identity.
func (r *PostgresRepository) Create(ctx context.Context, owner, accountID string) error {
	acctID, err := uuid.Parse(accountID)
	if err != nil {
		return err
	}
	_, err = r.q(ctx).Exec(ctx, `INSERT INTO registry_entries (owner_id, account_id) VALUES ($1, $2)`, owner, acctID)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrAlreadyRegistered
	}
	return err
}

// AccountIDByOwner returns the mapped account ID, reporting absence without
// an error.
func (r *PostgresRepository) AccountIDByOwner(ctx context.Context, owner string) (string, bool, error) {
	var acctID uuid.UUID
	err := r.q(ctx).QueryRow(ctx, `SELECT account_id FROM registry_entries WHERE owner_id = $1`, owner).Scan(&acctID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}
	return acctID.String(), true, nil
}

// AccountIDs returns a creation-ordered page of account IDs.
func (r *PostgresRepository) AccountIDs(ctx context.Context, offset, limit int) ([]string, error) {
	if offset < 0 {
		offset = 0
	}
	if limit < 0 {
		limit = 0
	}
	rows, err := r.q(ctx).Query(ctx, `SELECT account_id FROM registry_entries
        ORDER BY position LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]string, 0, limit)
	for rows.Next() {
		var acctID uuid.UUID
		if err := rows.Scan(&acctID); err != nil {
			return nil, err
		}
		out = append(out, acctID.String())
	}
	return out, rows.Err()
}

// Count returns the number of registered accounts.
func (r *PostgresRepository) Count(ctx context.Context) (int, error) {
	var count int
	err := r.q(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM registry_entries`).Scan(&count)
	return count, err
}

// Contains reports membership of an account ID in the directory.
func (r *PostgresRepository) Contains(ctx context.Context, accountID string) (bool, error) {
	acctID, err := uuid.Parse(accountID)
	if err != nil {
		return false, nil
	}
	var exists bool
	err = r.q(ctx).QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM registry_entries WHERE account_id = $1)`, acctID).Scan(&exists)
	return exists, err
}
