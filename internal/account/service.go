package account

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/coffre-pay/coffre/internal/ledger"
	"github.com/coffre-pay/coffre/internal/notification"
)

// History notes written by the engine itself.
const (
	noteInit     = "init"
	noteDeposit  = "deposit"
	noteManual   = "manual"
	noteWithdraw = "withdraw"
)

// Atomic wraps a composite operation so all of its writes commit together.
// The Postgres wiring supplies a transaction runner; the in-memory backends
// run without one, their per-call mutations already being atomic.
type Atomic interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Service implements the account state-transition engine: balance mutation,
// history append, owner gating and batch atomicity, on top of the ledger's
// custody and transfer primitives.
type Service struct {
	repo     Repository
	ledger   ledger.Ledger
	notifier notification.Notifier
	atomic   Atomic
	locks    sync.Map // account ID -> *sync.Mutex
}

// NewService builds an account service instance. atomic may be nil when the
// backing stores need no cross-store transaction.
func NewService(repo Repository, led ledger.Ledger, notifier notification.Notifier, atomic Atomic) *Service {
	return &Service{repo: repo, ledger: led, notifier: notifier, atomic: atomic}
}

func (s *Service) runAtomic(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.atomic == nil {
		return fn(ctx)
	}
	return s.atomic.RunInTx(ctx, fn)
}

// OpenInput captures data required to open an account.
type OpenInput struct {
	Owner        string
	Label        string
	InitialFunds int64
	FundedBy     string
}

// Open provisions an account bound permanently to its owner. Initial funds,
// when present, are credited with an "init" record and a deposit event.
func (s *Service) Open(ctx context.Context, input OpenInput) (Account, error) {
	if input.Owner == "" {
		return Account{}, fmt.Errorf("%w: owner identity required", ErrInvalidInput)
	}
	if input.InitialFunds < 0 {
		return Account{}, fmt.Errorf("%w: negative initial funds", ErrInvalidInput)
	}

	acctID := uuid.New().String()
	acct := Account{
		ID:        acctID,
		Owner:     input.Owner,
		Label:     input.Label,
		Code:      fmt.Sprintf("account:%s", acctID),
		CreatedAt: time.Now().UTC(),
	}

	err := s.runAtomic(ctx, func(ctx context.Context) error {
		if err := s.ledger.OpenAccount(ctx, acct.Code); err != nil {
			return err
		}
		if err := s.repo.Create(ctx, acct); err != nil {
			return err
		}
		if input.InitialFunds > 0 {
			funder := input.FundedBy
			if funder == "" {
				funder = input.Owner
			}
			rec, err := s.ledger.Credit(ctx, acct.Code, funder, noteInit, input.InitialFunds)
			if err != nil {
				return err
			}
			s.notifyDeposit(ctx, acct.ID, rec)
		}
		return nil
	})
	if err != nil {
		return Account{}, err
	}

	return acct, nil
}

// Get retrieves account metadata.
func (s *Service) Get(ctx context.Context, id string) (Account, error) {
	return s.repo.Get(ctx, id)
}

// Balance returns the account's current custody balance.
func (s *Service) Balance(ctx context.Context, id string) (int64, error) {
	acct, err := s.repo.Get(ctx, id)
	if err != nil {
		return 0, err
	}
	return s.ledger.Balance(ctx, acct.Code)
}

// ReceiveDeposit credits funds arriving through the passive inbound path.
// A zero amount is accepted and still recorded.
func (s *Service) ReceiveDeposit(ctx context.Context, id, from string, amount int64) (ledger.Record, error) {
	if amount < 0 {
		return ledger.Record{}, fmt.Errorf("%w: negative amount", ErrInvalidInput)
	}
	acct, err := s.repo.Get(ctx, id)
	if err != nil {
		return ledger.Record{}, err
	}

	unlock := s.lock(acct.ID)
	defer unlock()

	rec, err := s.ledger.Credit(ctx, acct.Code, from, noteDeposit, amount)
	if err != nil {
		return ledger.Record{}, err
	}
	s.notifyDeposit(ctx, acct.ID, rec)
	return rec, nil
}

// Deposit is the caller-initiated explicit deposit. Unlike ReceiveDeposit it
// rejects zero amounts.
func (s *Service) Deposit(ctx context.Context, id, caller string, amount int64) (ledger.Record, error) {
	if amount < 0 {
		return ledger.Record{}, fmt.Errorf("%w: negative amount", ErrInvalidInput)
	}
	if amount == 0 {
		return ledger.Record{}, ErrZeroAmount
	}
	acct, err := s.repo.Get(ctx, id)
	if err != nil {
		return ledger.Record{}, err
	}

	unlock := s.lock(acct.ID)
	defer unlock()

	rec, err := s.ledger.Credit(ctx, acct.Code, caller, noteManual, amount)
	if err != nil {
		return ledger.Record{}, err
	}
	s.notifyDeposit(ctx, acct.ID, rec)
	return rec, nil
}

// Send moves amount to a recipient. Owner only. A zero amount and an amount
// exceeding the balance both fail with ErrZeroAmount; a recipient rejection
// fails with ErrTransferFailed. On failure nothing is recorded or debited.
func (s *Service) Send(ctx context.Context, id, caller, to string, amount int64, note string) (ledger.Record, error) {
	if amount < 0 {
		return ledger.Record{}, fmt.Errorf("%w: negative amount", ErrInvalidInput)
	}
	acct, err := s.repo.Get(ctx, id)
	if err != nil {
		return ledger.Record{}, err
	}
	if caller != acct.Owner {
		return ledger.Record{}, ErrUnauthorized
	}

	unlock := s.lock(acct.ID)
	defer unlock()

	if amount == 0 {
		return ledger.Record{}, ErrZeroAmount
	}
	balance, err := s.ledger.Balance(ctx, acct.Code)
	if err != nil {
		return ledger.Record{}, err
	}
	if amount > balance {
		return ledger.Record{}, fmt.Errorf("%w: %w", ErrZeroAmount, ledger.ErrInsufficientFunds)
	}

	recs, err := s.ledger.PayOut(ctx, acct.Code, []ledger.Leg{{To: to, Amount: amount, Note: note}})
	if err != nil {
		return ledger.Record{}, payOutError(err)
	}
	s.notifySent(ctx, acct.ID, recs[0])
	return recs[0], nil
}

// WithdrawAll transfers the entire balance to the recipient. Owner only.
// An empty balance fails with ErrZeroAmount.
func (s *Service) WithdrawAll(ctx context.Context, id, caller, to string) (ledger.Record, error) {
	acct, err := s.repo.Get(ctx, id)
	if err != nil {
		return ledger.Record{}, err
	}
	if caller != acct.Owner {
		return ledger.Record{}, ErrUnauthorized
	}

	unlock := s.lock(acct.ID)
	defer unlock()

	balance, err := s.ledger.Balance(ctx, acct.Code)
	if err != nil {
		return ledger.Record{}, err
	}
	if balance == 0 {
		return ledger.Record{}, ErrZeroAmount
	}

	recs, err := s.ledger.PayOut(ctx, acct.Code, []ledger.Leg{{To: to, Amount: balance, Note: noteWithdraw}})
	if err != nil {
		return ledger.Record{}, payOutError(err)
	}
	s.notifySent(ctx, acct.ID, recs[0])
	return recs[0], nil
}

// BatchSend pays each recipient its matching amount, in array order,
// all-or-nothing. Zero-amount entries are skipped silently. Owner only.
// Unlike Send there is no up-front balance check; a leg the balance cannot
// cover fails the same way a rejected transfer does.
func (s *Service) BatchSend(ctx context.Context, id, caller string, recipients []string, amounts []int64, note string) ([]ledger.Record, error) {
	if len(recipients) == 0 || len(recipients) != len(amounts) {
		return nil, fmt.Errorf("%w: recipients and amounts must be non-empty and equal length", ErrInvalidInput)
	}
	for _, amount := range amounts {
		if amount < 0 {
			return nil, fmt.Errorf("%w: negative amount", ErrInvalidInput)
		}
	}
	acct, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if caller != acct.Owner {
		return nil, ErrUnauthorized
	}

	legs := make([]ledger.Leg, 0, len(recipients))
	for i, to := range recipients {
		if amounts[i] == 0 {
			continue
		}
		legs = append(legs, ledger.Leg{To: to, Amount: amounts[i], Note: note})
	}
	if len(legs) == 0 {
		return []ledger.Record{}, nil
	}

	unlock := s.lock(acct.ID)
	defer unlock()

	recs, err := s.ledger.PayOut(ctx, acct.Code, legs)
	if err != nil {
		if errors.Is(err, ledger.ErrInsufficientFunds) || errors.Is(err, ledger.ErrTransferRejected) {
			return nil, fmt.Errorf("%w: %w", ErrTransferFailed, err)
		}
		return nil, err
	}
	for _, rec := range recs {
		s.notifySent(ctx, acct.ID, rec)
	}
	return recs, nil
}

// Transactions returns a page of the account's history. An offset at or past
// the end yields an empty page; the limit clamps to the remaining count.
func (s *Service) Transactions(ctx context.Context, id string, offset, limit int) ([]ledger.Record, error) {
	if offset < 0 || limit < 0 {
		return nil, fmt.Errorf("%w: negative offset or limit", ErrInvalidInput)
	}
	acct, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.ledger.Records(ctx, acct.Code, offset, limit)
}

// Transaction returns a single history record by index.
func (s *Service) Transaction(ctx context.Context, id string, index int) (ledger.Record, error) {
	acct, err := s.repo.Get(ctx, id)
	if err != nil {
		return ledger.Record{}, err
	}
	rec, err := s.ledger.RecordAt(ctx, acct.Code, index)
	if errors.Is(err, ledger.ErrNoSuchRecord) {
		return ledger.Record{}, ErrOutOfBounds
	}
	return rec, err
}

// TransactionsCount returns the account's history length.
func (s *Service) TransactionsCount(ctx context.Context, id string) (int, error) {
	acct, err := s.repo.Get(ctx, id)
	if err != nil {
		return 0, err
	}
	return s.ledger.Count(ctx, acct.Code)
}

// lock serializes mutating operations per account, so read-then-act
// sequences like WithdrawAll observe a stable balance.
func (s *Service) lock(id string) func() {
	v, _ := s.locks.LoadOrStore(id, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func payOutError(err error) error {
	if errors.Is(err, ledger.ErrTransferRejected) {
		return fmt.Errorf("%w: %w", ErrTransferFailed, err)
	}
	if errors.Is(err, ledger.ErrInsufficientFunds) {
		return fmt.Errorf("%w: %w", ErrZeroAmount, err)
	}
	return err
}

func (s *Service) notifyDeposit(ctx context.Context, acctID string, rec ledger.Record) {
	if s.notifier == nil {
		return
	}
	_ = s.notifier.Send(ctx, notification.Message{
		Kind:         notification.KindDeposit,
		Account:      acctID,
		Counterparty: rec.From,
		Amount:       rec.Amount,
		Timestamp:    rec.Timestamp,
	})
}

func (s *Service) notifySent(ctx context.Context, acctID string, rec ledger.Record) {
	if s.notifier == nil {
		return
	}
	_ = s.notifier.Send(ctx, notification.Message{
		Kind:         notification.KindSent,
		Account:      acctID,
		Counterparty: rec.To,
		Amount:       rec.Amount,
		Timestamp:    rec.Timestamp,
	})
}
