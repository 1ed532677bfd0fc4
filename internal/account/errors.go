package account

import "errors"

// Domain errors for account operations. All are terminal for the call that
// raised them; no retries happen internally. Handlers translate them to HTTP
// statuses.
var (
	// ErrUnauthorized means the caller is not the account owner.
	ErrUnauthorized = errors.New("caller is not the account owner")

	// ErrZeroAmount covers both a zero amount and, for Send, an amount
	// exceeding the current balance. The two causes share one kind to keep
	// the historical contract; the insufficient-funds cause stays
	// inspectable through the wrapped ledger error.
	ErrZeroAmount = errors.New("zero or uncovered amount")

	// ErrTransferFailed means the value-transfer primitive reported failure.
	ErrTransferFailed = errors.New("transfer failed")

	// ErrOutOfBounds means a history index at or beyond the current length.
	ErrOutOfBounds = errors.New("transaction index out of bounds")

	// ErrInvalidInput covers malformed requests: batch length mismatch,
	// empty batch, negative amounts, missing owner identity.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound means no account exists for the given identifier.
	ErrNotFound = errors.New("account not found")
)
