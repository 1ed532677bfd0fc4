package registry

import (
	"context"
	"fmt"
	"sync"

	"github.com/coffre-pay/coffre/internal/account"
	"github.com/coffre-pay/coffre/internal/notification"
)

// Service is the factory and directory for accounts: it provisions at most
// one account per identity and exposes enumeration and membership over
// everything it created.
type Service struct {
	repo     Repository
	accounts *account.Service
	notifier notification.Notifier
	atomic   account.Atomic
	regLocks sync.Map // owner identity -> *sync.Mutex
}

// NewService builds a registry service instance. atomic may be nil when the
// backing stores need no cross-store transaction.
func NewService(repo Repository, accounts *account.Service, notifier notification.Notifier, atomic account.Atomic) *Service {
	return &Service{repo: repo, accounts: accounts, notifier: notifier, atomic: atomic}
}

func (s *Service) runAtomic(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.atomic == nil {
		return fn(ctx)
	}
	return s.atomic.RunInTx(ctx, fn)
}

// Register provisions an account owned by the caller. A second registration
// for the same identity fails with ErrAlreadyRegistered. Registration is
// serialized per identity so concurrent callers yield exactly one account.
func (s *Service) Register(ctx context.Context, caller, label string, initialFunds int64) (account.Account, error) {
	if caller == "" {
		return account.Account{}, fmt.Errorf("%w: caller identity required", account.ErrInvalidInput)
	}

	v, _ := s.regLocks.LoadOrStore(caller, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	defer mu.Unlock()

	if _, found, err := s.repo.AccountIDByOwner(ctx, caller); err != nil {
		return account.Account{}, err
	} else if found {
		return account.Account{}, ErrAlreadyRegistered
	}

	// The account rows, the init credit and the registry entry commit as one
	// unit: a duplicate entry from a concurrent instance aborts all of it.
	var acct account.Account
	err := s.runAtomic(ctx, func(ctx context.Context) error {
		var err error
		acct, err = s.accounts.Open(ctx, account.OpenInput{
			Owner:        caller,
			Label:        label,
			InitialFunds: initialFunds,
			FundedBy:     caller,
		})
		if err != nil {
			return err
		}
		return s.repo.Create(ctx, caller, acct.ID)
	})
	if err != nil {
		return account.Account{}, err
	}

	if s.notifier != nil {
		_ = s.notifier.Send(ctx, notification.Message{
			Kind:         notification.KindRegistered,
			Account:      acct.ID,
			Counterparty: caller,
			Timestamp:    acct.CreatedAt.Unix(),
		})
	}

	return acct, nil
}

// Lookup returns the account mapped to the owner. An unmapped identity is
// reported with found=false, not an error.
func (s *Service) Lookup(ctx context.Context, owner string) (account.Account, bool, error) {
	acctID, found, err := s.repo.AccountIDByOwner(ctx, owner)
	if err != nil || !found {
		return account.Account{}, false, err
	}
	acct, err := s.accounts.Get(ctx, acctID)
	if err != nil {
		return account.Account{}, false, err
	}
	return acct, true, nil
}

// List returns a creation-ordered page of accounts with the shared
// clamping contract.
func (s *Service) List(ctx context.Context, offset, limit int) ([]account.Account, error) {
	if offset < 0 || limit < 0 {
		return nil, fmt.Errorf("%w: negative offset or limit", account.ErrInvalidInput)
	}
	acctIDs, err := s.repo.AccountIDs(ctx, offset, limit)
	if err != nil {
		return nil, err
	}
	out := make([]account.Account, 0, len(acctIDs))
	for _, acctID := range acctIDs {
		acct, err := s.accounts.Get(ctx, acctID)
		if err != nil {
			return nil, err
		}
		out = append(out, acct)
	}
	return out, nil
}

// Count returns the number of accounts ever registered.
func (s *Service) Count(ctx context.Context) (int, error) {
	return s.repo.Count(ctx)
}

// Verify reports whether the candidate account ID was created by this
// registry. Unknown IDs are false, never an error.
func (s *Service) Verify(ctx context.Context, accountID string) (bool, error) {
	return s.repo.Contains(ctx, accountID)
}
