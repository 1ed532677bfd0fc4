package ledger

import "time"

// SeedBalance is a test helper that seeds custody for an account when using
// the in-memory ledger.
func SeedBalance(l Ledger, code string, amount int64) {
	if mem, ok := l.(*inMemoryLedger); ok {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		if acct, exists := mem.accounts[code]; exists {
			acct.balance = amount
		} else {
			mem.accounts[code] = &accountState{balance: amount}
		}
	}
}

// FreezeRecipient is a test helper that makes the in-memory ledger reject
// all transfers to the given recipient.
func FreezeRecipient(l Ledger, code string) {
	if mem, ok := l.(*inMemoryLedger); ok {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		mem.frozen[code] = true
	}
}

// RecipientBalance is a test helper returning the funds a recipient has
// received from the in-memory ledger.
func RecipientBalance(l Ledger, code string) int64 {
	if mem, ok := l.(*inMemoryLedger); ok {
		mem.mu.RLock()
		defer mem.mu.RUnlock()
		return mem.recipients[code]
	}
	return 0
}

// SetClock is a test helper overriding the in-memory ledger's clock.
func SetClock(l Ledger, now func() time.Time) {
	if mem, ok := l.(*inMemoryLedger); ok {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		mem.now = now
	}
}
