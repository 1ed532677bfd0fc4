package identity

import "time"

// User is an authenticated principal. Its ID is the opaque identity that
// owns accounts and receives transfers.
type User struct {
	ID        string
	Phone     string
	PINHash   []byte
	CreatedAt time.Time
}

// Credentials request structure.
type Credentials struct {
	Phone string
	PIN   string
}
