package account

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/coffre-pay/coffre/internal/ledger"
	"github.com/coffre-pay/coffre/internal/notification"
)

type testNotifier struct {
	messages []notification.Message
}

func (n *testNotifier) Send(_ context.Context, msg notification.Message) error {
	n.messages = append(n.messages, msg)
	return nil
}

// recordingAtomic mimics the transaction runner: it counts top-level blocks
// and lets nested calls join the one already running.
type recordingAtomic struct{ calls int }

type atomicMarker struct{}

func (a *recordingAtomic) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(atomicMarker{}) != nil {
		return fn(ctx)
	}
	a.calls++
	return fn(context.WithValue(ctx, atomicMarker{}, true))
}

func newTestService() (*Service, ledger.Ledger, *testNotifier) {
	led := ledger.NewInMemory()
	notifier := &testNotifier{}
	return NewService(NewMemoryRepository(), led, notifier, nil), led, notifier
}

func TestOpenWithInitialFunds(t *testing.T) {
	svc, _, notifier := newTestService()
	ctx := context.Background()

	acct, err := svc.Open(ctx, OpenInput{Owner: "user-a", Label: "w1", InitialFunds: 100})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if acct.Owner != "user-a" || acct.Label != "w1" {
		t.Fatalf("unexpected account: %+v", acct)
	}

	count, err := svc.TransactionsCount(ctx, acct.ID)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 transaction, got %d", count)
	}

	rec, err := svc.Transaction(ctx, acct.ID, 0)
	if err != nil {
		t.Fatalf("transaction: %v", err)
	}
	if rec.Amount != 100 || rec.Note != "init" {
		t.Fatalf("unexpected init record: %+v", rec)
	}

	balance, _ := svc.Balance(ctx, acct.ID)
	if balance != 100 {
		t.Fatalf("expected balance 100, got %d", balance)
	}

	if len(notifier.messages) != 1 || notifier.messages[0].Kind != notification.KindDeposit {
		t.Fatalf("expected one deposit event, got %+v", notifier.messages)
	}
}

func TestOpenWritesInsideOneAtomicBlock(t *testing.T) {
	atom := &recordingAtomic{}
	svc := NewService(NewMemoryRepository(), ledger.NewInMemory(), &testNotifier{}, atom)
	ctx := context.Background()

	acct, err := svc.Open(ctx, OpenInput{Owner: "user-a", Label: "w1", InitialFunds: 100})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if atom.calls != 1 {
		t.Fatalf("expected open to run in one atomic block, got %d", atom.calls)
	}

	balance, _ := svc.Balance(ctx, acct.ID)
	if balance != 100 {
		t.Fatalf("expected balance 100, got %d", balance)
	}
}

type failingNotifier struct{}

func (failingNotifier) Send(context.Context, notification.Message) error {
	return errors.New("publish failed")
}

func TestDepositSucceedsWhenNotifierFails(t *testing.T) {
	svc := NewService(NewMemoryRepository(), ledger.NewInMemory(), failingNotifier{}, nil)
	ctx := context.Background()

	acct, err := svc.Open(ctx, OpenInput{Owner: "user-a", Label: "w1"})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := svc.Deposit(ctx, acct.ID, "user-b", 25); err != nil {
		t.Fatalf("deposit should not fail on event delivery: %v", err)
	}
	balance, _ := svc.Balance(ctx, acct.ID)
	if balance != 25 {
		t.Fatalf("expected balance 25, got %d", balance)
	}
}

func TestOpenRequiresOwner(t *testing.T) {
	svc, _, _ := newTestService()

	if _, err := svc.Open(context.Background(), OpenInput{Label: "w1"}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestSendZeroAmount(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	acct, _ := svc.Open(ctx, OpenInput{Owner: "user-a", Label: "w1", InitialFunds: 100})

	if _, err := svc.Send(ctx, acct.ID, "user-a", "user-b", 0, "x"); !errors.Is(err, ErrZeroAmount) {
		t.Fatalf("expected zero amount, got %v", err)
	}

	count, _ := svc.TransactionsCount(ctx, acct.ID)
	if count != 1 {
		t.Fatalf("failed send appended a record, count=%d", count)
	}
}

func TestSendDebitsAndRecords(t *testing.T) {
	svc, _, notifier := newTestService()
	ctx := context.Background()
	acct, _ := svc.Open(ctx, OpenInput{Owner: "user-a", Label: "w1", InitialFunds: 100})

	rec, err := svc.Send(ctx, acct.ID, "user-a", "user-b", 40, "pay")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if rec.From != acct.Code || rec.To != "user-b" || rec.Amount != 40 || rec.Note != "pay" {
		t.Fatalf("unexpected record: %+v", rec)
	}

	balance, _ := svc.Balance(ctx, acct.ID)
	if balance != 60 {
		t.Fatalf("expected balance 60, got %d", balance)
	}
	count, _ := svc.TransactionsCount(ctx, acct.ID)
	if count != 2 {
		t.Fatalf("expected 2 transactions, got %d", count)
	}

	last := notifier.messages[len(notifier.messages)-1]
	if last.Kind != notification.KindSent || last.Counterparty != "user-b" || last.Amount != 40 {
		t.Fatalf("unexpected sent event: %+v", last)
	}
}

func TestSendInsufficientBalanceSharesZeroAmountKind(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	acct, _ := svc.Open(ctx, OpenInput{Owner: "user-a", Label: "w1", InitialFunds: 100})

	_, err := svc.Send(ctx, acct.ID, "user-a", "user-b", 200, "pay")
	if !errors.Is(err, ErrZeroAmount) {
		t.Fatalf("expected zero amount kind, got %v", err)
	}
	// The underlying cause stays inspectable.
	if !errors.Is(err, ledger.ErrInsufficientFunds) {
		t.Fatalf("expected wrapped insufficient funds, got %v", err)
	}

	balance, _ := svc.Balance(ctx, acct.ID)
	if balance != 100 {
		t.Fatalf("failed send mutated balance: %d", balance)
	}
}

func TestSendRejectedByRecipient(t *testing.T) {
	svc, led, _ := newTestService()
	ctx := context.Background()
	acct, _ := svc.Open(ctx, OpenInput{Owner: "user-a", Label: "w1", InitialFunds: 100})
	ledger.FreezeRecipient(led, "user-b")

	if _, err := svc.Send(ctx, acct.ID, "user-a", "user-b", 40, "pay"); !errors.Is(err, ErrTransferFailed) {
		t.Fatalf("expected transfer failed, got %v", err)
	}

	balance, _ := svc.Balance(ctx, acct.ID)
	count, _ := svc.TransactionsCount(ctx, acct.ID)
	if balance != 100 || count != 1 {
		t.Fatalf("failed send left partial state: balance=%d count=%d", balance, count)
	}
}

func TestSendByNonOwner(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	acct, _ := svc.Open(ctx, OpenInput{Owner: "user-a", Label: "w1", InitialFunds: 100})

	if _, err := svc.Send(ctx, acct.ID, "user-c", "user-b", 40, "pay"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestWithdrawAll(t *testing.T) {
	svc, led, _ := newTestService()
	ctx := context.Background()
	acct, _ := svc.Open(ctx, OpenInput{Owner: "user-a", Label: "w1", InitialFunds: 100})

	rec, err := svc.WithdrawAll(ctx, acct.ID, "user-a", "user-a")
	if err != nil {
		t.Fatalf("withdraw all: %v", err)
	}
	if rec.Amount != 100 || rec.Note != "withdraw" {
		t.Fatalf("unexpected record: %+v", rec)
	}

	balance, _ := svc.Balance(ctx, acct.ID)
	if balance != 0 {
		t.Fatalf("expected empty balance, got %d", balance)
	}
	if got := ledger.RecipientBalance(led, "user-a"); got != 100 {
		t.Fatalf("expected recipient to hold 100, got %d", got)
	}

	// Nothing left to withdraw.
	if _, err := svc.WithdrawAll(ctx, acct.ID, "user-a", "user-a"); !errors.Is(err, ErrZeroAmount) {
		t.Fatalf("expected zero amount, got %v", err)
	}
}

func TestWithdrawAllByNonOwner(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	acct, _ := svc.Open(ctx, OpenInput{Owner: "user-a", Label: "w1", InitialFunds: 100})

	if _, err := svc.WithdrawAll(ctx, acct.ID, "user-c", "user-c"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	balance, _ := svc.Balance(ctx, acct.ID)
	if balance != 100 {
		t.Fatalf("unauthorized withdraw mutated balance: %d", balance)
	}
}

func TestBatchSendSkipsZeroLegs(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	acct, _ := svc.Open(ctx, OpenInput{Owner: "user-a", Label: "w1", InitialFunds: 60})

	recs, err := svc.BatchSend(ctx, acct.ID, "user-a", []string{"user-b", "user-c"}, []int64{0, 30}, "batch")
	if err != nil {
		t.Fatalf("batch send: %v", err)
	}
	if len(recs) != 1 || recs[0].To != "user-c" || recs[0].Amount != 30 {
		t.Fatalf("unexpected records: %+v", recs)
	}

	balance, _ := svc.Balance(ctx, acct.ID)
	if balance != 30 {
		t.Fatalf("expected balance 30, got %d", balance)
	}
	count, _ := svc.TransactionsCount(ctx, acct.ID)
	if count != 2 {
		t.Fatalf("expected 2 transactions, got %d", count)
	}
}

func TestBatchSendAllZeroLegsIsNoOp(t *testing.T) {
	svc, _, notifier := newTestService()
	ctx := context.Background()
	acct, _ := svc.Open(ctx, OpenInput{Owner: "user-a", Label: "w1", InitialFunds: 60})
	before := len(notifier.messages)

	recs, err := svc.BatchSend(ctx, acct.ID, "user-a", []string{"user-b"}, []int64{0}, "batch")
	if err != nil {
		t.Fatalf("batch send: %v", err)
	}
	if len(recs) != 0 {
		t.Fatalf("expected no records, got %+v", recs)
	}
	if len(notifier.messages) != before {
		t.Fatalf("no-op batch emitted events")
	}
}

func TestBatchSendInvalidInput(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	acct, _ := svc.Open(ctx, OpenInput{Owner: "user-a", Label: "w1", InitialFunds: 60})

	if _, err := svc.BatchSend(ctx, acct.ID, "user-a", []string{"user-b"}, []int64{1, 2}, "batch"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input for length mismatch, got %v", err)
	}
	if _, err := svc.BatchSend(ctx, acct.ID, "user-a", nil, nil, "batch"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input for empty batch, got %v", err)
	}
}

func TestBatchSendAbortsWholeBatch(t *testing.T) {
	svc, led, notifier := newTestService()
	ctx := context.Background()
	acct, _ := svc.Open(ctx, OpenInput{Owner: "user-a", Label: "w1", InitialFunds: 100})
	ledger.FreezeRecipient(led, "user-c")
	before := len(notifier.messages)

	_, err := svc.BatchSend(ctx, acct.ID, "user-a", []string{"user-b", "user-c"}, []int64{10, 10}, "batch")
	if !errors.Is(err, ErrTransferFailed) {
		t.Fatalf("expected transfer failed, got %v", err)
	}

	balance, _ := svc.Balance(ctx, acct.ID)
	count, _ := svc.TransactionsCount(ctx, acct.ID)
	if balance != 100 || count != 1 {
		t.Fatalf("aborted batch left partial state: balance=%d count=%d", balance, count)
	}
	if ledger.RecipientBalance(led, "user-b") != 0 {
		t.Fatalf("aborted batch credited first leg")
	}
	if len(notifier.messages) != before {
		t.Fatalf("aborted batch emitted events")
	}
}

func TestBatchSendExhaustedFundsFailAsTransfer(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	acct, _ := svc.Open(ctx, OpenInput{Owner: "user-a", Label: "w1", InitialFunds: 15})

	// No up-front balance check: the second leg fails as a transfer failure.
	_, err := svc.BatchSend(ctx, acct.ID, "user-a", []string{"user-b", "user-c"}, []int64{10, 10}, "batch")
	if !errors.Is(err, ErrTransferFailed) {
		t.Fatalf("expected transfer failed, got %v", err)
	}
	balance, _ := svc.Balance(ctx, acct.ID)
	if balance != 15 {
		t.Fatalf("aborted batch mutated balance: %d", balance)
	}
}

func TestBatchSendByNonOwner(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	acct, _ := svc.Open(ctx, OpenInput{Owner: "user-a", Label: "w1", InitialFunds: 100})

	if _, err := svc.BatchSend(ctx, acct.ID, "user-c", []string{"user-b"}, []int64{10}, "batch"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestDepositNotes(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	acct, _ := svc.Open(ctx, OpenInput{Owner: "user-a", Label: "w1"})

	if _, err := svc.Deposit(ctx, acct.ID, "user-b", 0); !errors.Is(err, ErrZeroAmount) {
		t.Fatalf("expected zero amount for explicit deposit, got %v", err)
	}

	rec, err := svc.Deposit(ctx, acct.ID, "user-b", 25)
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if rec.Note != "manual" || rec.From != "user-b" {
		t.Fatalf("unexpected deposit record: %+v", rec)
	}

	// The passive receive path accepts and records zero-value deposits.
	rec, err = svc.ReceiveDeposit(ctx, acct.ID, "user-b", 0)
	if err != nil {
		t.Fatalf("receive deposit: %v", err)
	}
	if rec.Note != "deposit" || rec.Amount != 0 {
		t.Fatalf("unexpected receive record: %+v", rec)
	}

	count, _ := svc.TransactionsCount(ctx, acct.ID)
	if count != 2 {
		t.Fatalf("expected 2 transactions, got %d", count)
	}
}

func TestTransactionsPagination(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	acct, _ := svc.Open(ctx, OpenInput{Owner: "user-a", Label: "w1"})
	for i := int64(1); i <= 4; i++ {
		if _, err := svc.Deposit(ctx, acct.ID, "user-b", i); err != nil {
			t.Fatalf("deposit %d: %v", i, err)
		}
	}

	first, err := svc.Transactions(ctx, acct.ID, 1, 2)
	if err != nil {
		t.Fatalf("transactions: %v", err)
	}
	if len(first) != 2 || first[0].Amount != 2 || first[1].Amount != 3 {
		t.Fatalf("unexpected page: %+v", first)
	}

	// Idempotent read: same arguments, no mutation, identical result.
	second, err := svc.Transactions(ctx, acct.ID, 1, 2)
	if err != nil {
		t.Fatalf("transactions again: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("repeated read differed: %+v vs %+v", first, second)
	}

	empty, err := svc.Transactions(ctx, acct.ID, 4, 10)
	if err != nil {
		t.Fatalf("transactions past end: %v", err)
	}
	if len(empty) != 0 {
		t.Fatalf("expected empty page, got %+v", empty)
	}

	clamped, err := svc.Transactions(ctx, acct.ID, 3, 10)
	if err != nil {
		t.Fatalf("transactions clamped: %v", err)
	}
	if len(clamped) != 1 || clamped[0].Amount != 4 {
		t.Fatalf("unexpected clamped page: %+v", clamped)
	}
}

func TestTransactionOutOfBounds(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	acct, _ := svc.Open(ctx, OpenInput{Owner: "user-a", Label: "w1", InitialFunds: 10})

	if _, err := svc.Transaction(ctx, acct.ID, 1); !errors.Is(err, ErrOutOfBounds) {
		t.Fatalf("expected out of bounds, got %v", err)
	}
}

func TestUnknownAccount(t *testing.T) {
	svc, _, _ := newTestService()

	if _, err := svc.Balance(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
