package ledger

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNoAccount occurs when the referenced custody account was never opened.
	ErrNoAccount = errors.New("account not found")

	// ErrInsufficientFunds occurs when custody cannot cover a requested pay-out leg.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrTransferRejected indicates the recipient declined the funds. It is an
	// ordinary expected failure, not a backend error.
	ErrTransferRejected = errors.New("transfer rejected by recipient")

	// ErrNoSuchRecord indicates a record index at or beyond the account's
	// history length.
	ErrNoSuchRecord = errors.New("no such record")

	// ErrAmountRange indicates an amount outside the accepted range. Amounts
	// are minor units in an int64; negatives are rejected rather than
	// truncated.
	ErrAmountRange = errors.New("amount out of range")

	// ErrClockRange indicates the clock produced a timestamp outside the
	// 32-bit unix-seconds range records are stored in.
	ErrClockRange = errors.New("timestamp outside 32-bit range")
)

// maxTimestamp bounds record timestamps to 32-bit unix seconds.
const maxTimestamp = int64(1)<<32 - 1

// Record is one immutable entry in an account's append-only history.
type Record struct {
	From      string
	To        string
	Amount    int64
	Timestamp int64
	Note      string
}

// Leg is a single pay-out instruction: move Amount out of custody to the
// recipient identified by To.
type Leg struct {
	To     string
	Amount int64
	Note   string
}

// Ledger is the execution context custody accounts run against. Every
// state-changing call is atomic: the balance mutation, recipient transfer and
// record append commit together or not at all.
type Ledger interface {
	// OpenAccount guarantees a custody account exists for the code. Opening
	// an existing account is a no-op.
	OpenAccount(ctx context.Context, code string) error

	// Balance returns the current custody balance.
	Balance(ctx context.Context, code string) (int64, error)

	// Credit moves external funds into custody and appends the matching
	// record. A zero amount is accepted and still recorded.
	Credit(ctx context.Context, code, from, note string, amount int64) (Record, error)

	// PayOut executes one or more outgoing legs in order, all-or-nothing.
	// Each leg debits custody, credits the recipient and appends a record.
	// A failing leg aborts the whole call with no state change.
	PayOut(ctx context.Context, code string, legs []Leg) ([]Record, error)

	// Records returns up to limit records starting at offset, in append
	// order. An offset at or past the end yields an empty slice; limit
	// clamps silently to the remaining count.
	Records(ctx context.Context, code string, offset, limit int) ([]Record, error)

	// RecordAt returns the record at index or ErrNoSuchRecord.
	RecordAt(ctx context.Context, code string, index int) (Record, error)

	// Count returns the account's history length.
	Count(ctx context.Context, code string) (int, error)
}

// stamp derives a record timestamp from the clock, clamped so history
// timestamps never decrease within one account.
func stamp(now time.Time, prev int64) (int64, error) {
	ts := now.Unix()
	if ts < 0 || ts > maxTimestamp {
		return 0, ErrClockRange
	}
	if ts < prev {
		ts = prev
	}
	return ts, nil
}

func clampPage(length, offset, limit int) (int, int) {
	if offset < 0 {
		offset = 0
	}
	if limit < 0 {
		limit = 0
	}
	if offset >= length {
		return 0, 0
	}
	if remaining := length - offset; limit > remaining {
		limit = remaining
	}
	return offset, limit
}
