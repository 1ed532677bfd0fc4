package ledger

import (
	"context"
	"sync"
	"time"
)

type accountState struct {
	balance int64
	records []Record
}

func (a *accountState) lastTimestamp() int64 {
	if len(a.records) == 0 {
		return 0
	}
	return a.records[len(a.records)-1].Timestamp
}

type inMemoryLedger struct {
	mu         sync.RWMutex
	accounts   map[string]*accountState
	recipients map[string]int64
	frozen     map[string]bool
	now        func() time.Time
}

// NewInMemory creates a concurrency-safe in-memory ledger. All mutations run
// under a single mutex, so each call is atomic and globally serialized.
func NewInMemory() Ledger {
	return &inMemoryLedger{
		accounts:   make(map[string]*accountState),
		recipients: make(map[string]int64),
		frozen:     make(map[string]bool),
		now:        time.Now,
	}
}

func (l *inMemoryLedger) OpenAccount(_ context.Context, code string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.accounts[code]; !exists {
		l.accounts[code] = &accountState{}
	}
	return nil
}

func (l *inMemoryLedger) Balance(_ context.Context, code string) (int64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	acct, ok := l.accounts[code]
	if !ok {
		return 0, ErrNoAccount
	}
	return acct.balance, nil
}

func (l *inMemoryLedger) Credit(_ context.Context, code, from, note string, amount int64) (Record, error) {
	if amount < 0 {
		return Record{}, ErrAmountRange
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	acct, ok := l.accounts[code]
	if !ok {
		return Record{}, ErrNoAccount
	}

	ts, err := stamp(l.now(), acct.lastTimestamp())
	if err != nil {
		return Record{}, err
	}

	rec := Record{From: from, To: code, Amount: amount, Timestamp: ts, Note: note}
	acct.balance += amount
	acct.records = append(acct.records, rec)
	return rec, nil
}

func (l *inMemoryLedger) PayOut(_ context.Context, code string, legs []Leg) ([]Record, error) {
	for _, leg := range legs {
		if leg.Amount <= 0 {
			return nil, ErrAmountRange
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	acct, ok := l.accounts[code]
	if !ok {
		return nil, ErrNoAccount
	}

	ts, err := stamp(l.now(), acct.lastTimestamp())
	if err != nil {
		return nil, err
	}

	// Stage every leg before touching shared state so a failure mid-batch
	// leaves nothing applied.
	balance := acct.balance
	deltas := make(map[string]int64)
	records := make([]Record, 0, len(legs))
	for _, leg := range legs {
		if balance < leg.Amount {
			return nil, ErrInsufficientFunds
		}
		if l.frozen[leg.To] {
			return nil, ErrTransferRejected
		}
		balance -= leg.Amount
		deltas[leg.To] += leg.Amount
		records = append(records, Record{From: code, To: leg.To, Amount: leg.Amount, Timestamp: ts, Note: leg.Note})
	}

	acct.balance = balance
	acct.records = append(acct.records, records...)
	for to, delta := range deltas {
		l.recipients[to] += delta
	}
	return records, nil
}

func (l *inMemoryLedger) Records(_ context.Context, code string, offset, limit int) ([]Record, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	acct, ok := l.accounts[code]
	if !ok {
		return nil, ErrNoAccount
	}

	offset, limit = clampPage(len(acct.records), offset, limit)
	out := make([]Record, limit)
	copy(out, acct.records[offset:offset+limit])
	return out, nil
}

func (l *inMemoryLedger) RecordAt(_ context.Context, code string, index int) (Record, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	acct, ok := l.accounts[code]
	if !ok {
		return Record{}, ErrNoAccount
	}
	if index < 0 || index >= len(acct.records) {
		return Record{}, ErrNoSuchRecord
	}
	return acct.records[index], nil
}

func (l *inMemoryLedger) Count(_ context.Context, code string) (int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	acct, ok := l.accounts[code]
	if !ok {
		return 0, ErrNoAccount
	}
	return len(acct.records), nil
}
