package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/coffre-pay/coffre/internal/infra"
)

// pgQuerier is the statement surface shared by the pool and a transaction.
type pgQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresLedger persists custody balances and record history in PostgreSQL.
// Each state-changing call runs in a single transaction with the account row
// locked, which reproduces the call-level atomicity the engine requires. When
// the context carries an outer transaction, statements join it (state-changing
// calls nest via savepoints) so composite operations commit as one.
type PostgresLedger struct {
	db  *pgxpool.Pool
	now func() time.Time
}

// NewPostgresLedger constructs a Postgres-backed ledger implementation.
func NewPostgresLedger(db *pgxpool.Pool) *PostgresLedger {
	return &PostgresLedger{db: db, now: time.Now}
}

func (l *PostgresLedger) q(ctx context.Context) pgQuerier {
	if tx, ok := infra.TxFrom(ctx); ok {
		return tx
	}
	return l.db
}

func (l *PostgresLedger) begin(ctx context.Context) (pgx.Tx, error) {
	if tx, ok := infra.TxFrom(ctx); ok {
		return tx.Begin(ctx) // savepoint inside the outer transaction
	}
	return l.db.BeginTx(ctx, pgx.TxOptions{})
}

// OpenAccount guarantees a custody account row exists for the provided code.
func (l *PostgresLedger) OpenAccount(ctx context.Context, code string) error {
	_, err := l.q(ctx).Exec(ctx, `INSERT INTO ledger_accounts (code, balance) VALUES ($1, 0)
        ON CONFLICT (code) DO NOTHING`, code)
	return err
}

// Balance returns the custody balance for the specified account code.
func (l *PostgresLedger) Balance(ctx context.Context, code string) (int64, error) {
	var balance int64
	err := l.q(ctx).QueryRow(ctx, `SELECT balance FROM ledger_accounts WHERE code = $1`, code).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNoAccount
	}
	return balance, err
}

// Credit adds external funds to custody and appends the matching record.
func (l *PostgresLedger) Credit(ctx context.Context, code, from, note string, amount int64) (Record, error) {
	if amount < 0 {
		return Record{}, ErrAmountRange
	}

	tx, err := l.begin(ctx)
	if err != nil {
		return Record{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	balance, idx, lastTS, err := lockAccount(ctx, tx, code)
	if err != nil {
		return Record{}, err
	}

	ts, err := stamp(l.now(), lastTS)
	if err != nil {
		return Record{}, err
	}

	rec := Record{From: from, To: code, Amount: amount, Timestamp: ts, Note: note}
	if err := appendRecord(ctx, tx, code, idx, rec); err != nil {
		return Record{}, err
	}
	if _, err := tx.Exec(ctx, `UPDATE ledger_accounts SET balance = $2 WHERE code = $1`, code, balance+amount); err != nil {
		return Record{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// PayOut executes the legs in order within one transaction; any failing leg
// rolls back the whole call.
func (l *PostgresLedger) PayOut(ctx context.Context, code string, legs []Leg) ([]Record, error) {
	for _, leg := range legs {
		if leg.Amount <= 0 {
			return nil, ErrAmountRange
		}
	}

	tx, err := l.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	balance, idx, lastTS, err := lockAccount(ctx, tx, code)
	if err != nil {
		return nil, err
	}

	ts, err := stamp(l.now(), lastTS)
	if err != nil {
		return nil, err
	}

	records := make([]Record, 0, len(legs))
	for _, leg := range legs {
		if balance < leg.Amount {
			return nil, ErrInsufficientFunds
		}
		if err := creditRecipient(ctx, tx, leg.To, leg.Amount); err != nil {
			return nil, err
		}
		rec := Record{From: code, To: leg.To, Amount: leg.Amount, Timestamp: ts, Note: leg.Note}
		if err := appendRecord(ctx, tx, code, idx, rec); err != nil {
			return nil, err
		}
		balance -= leg.Amount
		idx++
		records = append(records, rec)
	}

	if _, err := tx.Exec(ctx, `UPDATE ledger_accounts SET balance = $2 WHERE code = $1`, code, balance); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return records, nil
}

// Records returns a page of the account's history in append order.
func (l *PostgresLedger) Records(ctx context.Context, code string, offset, limit int) ([]Record, error) {
	length, err := l.Count(ctx, code)
	if err != nil {
		return nil, err
	}
	offset, limit = clampPage(length, offset, limit)
	if limit == 0 {
		return []Record{}, nil
	}

	rows, err := l.q(ctx).Query(ctx, `SELECT from_id, to_id, amount, ts, note FROM ledger_records
        WHERE account_code = $1 ORDER BY idx LIMIT $2 OFFSET $3`, code, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Record, 0, limit)
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.From, &rec.To, &rec.Amount, &rec.Timestamp, &rec.Note); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// RecordAt returns the record at index.
func (l *PostgresLedger) RecordAt(ctx context.Context, code string, index int) (Record, error) {
	if index < 0 {
		return Record{}, ErrNoSuchRecord
	}
	if _, err := l.Balance(ctx, code); err != nil {
		return Record{}, err
	}

	var rec Record
	err := l.q(ctx).QueryRow(ctx, `SELECT from_id, to_id, amount, ts, note FROM ledger_records
        WHERE account_code = $1 AND idx = $2`, code, index).Scan(&rec.From, &rec.To, &rec.Amount, &rec.Timestamp, &rec.Note)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrNoSuchRecord
	}
	return rec, err
}

// Count returns the account's history length.
func (l *PostgresLedger) Count(ctx context.Context, code string) (int, error) {
	if _, err := l.Balance(ctx, code); err != nil {
		return 0, err
	}
	var count int
	err := l.q(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM ledger_records WHERE account_code = $1`, code).Scan(&count)
	return count, err
}

func lockAccount(ctx context.Context, tx pgx.Tx, code string) (balance int64, nextIdx int64, lastTS int64, err error) {
	err = tx.QueryRow(ctx, `SELECT balance FROM ledger_accounts WHERE code = $1 FOR UPDATE`, code).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, 0, 0, ErrNoAccount
	}
	if err != nil {
		return 0, 0, 0, err
	}
	err = tx.QueryRow(ctx, `SELECT COUNT(*), COALESCE(MAX(ts), 0) FROM ledger_records
        WHERE account_code = $1`, code).Scan(&nextIdx, &lastTS)
	return balance, nextIdx, lastTS, err
}

func appendRecord(ctx context.Context, tx pgx.Tx, code string, idx int64, rec Record) error {
	_, err := tx.Exec(ctx, `INSERT INTO ledger_records (account_code, idx, from_id, to_id, amount, ts, note)
        VALUES ($1, $2, $3, $4, $5, $6, $7)`, code, idx, rec.From, rec.To, rec.Amount, rec.Timestamp, rec.Note)
	return err
}

func creditRecipient(ctx context.Context, tx pgx.Tx, code string, amount int64) error {
	var frozen bool
	err := tx.QueryRow(ctx, `SELECT frozen FROM ledger_recipients WHERE code = $1 FOR UPDATE`, code).Scan(&frozen)
	if errors.Is(err, pgx.ErrNoRows) {
		_, err = tx.Exec(ctx, `INSERT INTO ledger_recipients (code, balance, frozen) VALUES ($1, $2, FALSE)`, code, amount)
		return err
	}
	if err != nil {
		return err
	}
	if frozen {
		return ErrTransferRejected
	}
	_, err = tx.Exec(ctx, `UPDATE ledger_recipients SET balance = balance + $2 WHERE code = $1`, code, amount)
	return err
}
