package registry

import (
	"context"
	"sync"
)

type memoryRepository struct {
	mu      sync.RWMutex
	byOwner map[string]string
	order   []string
	members map[string]bool
}

// NewMemoryRepository constructs an in-memory directory for tests and
// database-less development.
func NewMemoryRepository() Repository {
	return &memoryRepository{
		byOwner: make(map[string]string),
		members: make(map[string]bool),
	}
}

func (r *memoryRepository) Create(_ context.Context, owner, accountID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byOwner[owner]; exists {
		return ErrAlreadyRegistered
	}
	r.byOwner[owner] = accountID
	r.order = append(r.order, accountID)
	r.members[accountID] = true
	return nil
}

func (r *memoryRepository) AccountIDByOwner(_ context.Context, owner string) (string, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	acctID, ok := r.byOwner[owner]
	return acctID, ok, nil
}

func (r *memoryRepository) AccountIDs(_ context.Context, offset, limit int) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if offset < 0 {
		offset = 0
	}
	if limit < 0 {
		limit = 0
	}
	if offset >= len(r.order) {
		return []string{}, nil
	}
	if remaining := len(r.order) - offset; limit > remaining {
		limit = remaining
	}
	out := make([]string, limit)
	copy(out, r.order[offset:offset+limit])
	return out, nil
}

func (r *memoryRepository) Count(_ context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order), nil
}

func (r *memoryRepository) Contains(_ context.Context, accountID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.members[accountID], nil
}
