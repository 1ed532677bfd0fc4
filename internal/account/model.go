package account

import "time"

// Account is a single user's fund-holding entity. Owner and Label are set at
// creation and never change; the balance and history live in the ledger under
// Code.
type Account struct {
	ID        string
	Owner     string
	Label     string
	Code      string
	CreatedAt time.Time
}
