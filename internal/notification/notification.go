package notification

import (
	"context"
	"log/slog"
)

const (
	// KindDeposit indicates funds credited to an account.
	KindDeposit = "deposit"
	// KindSent indicates funds paid out of an account.
	KindSent = "sent"
	// KindRegistered indicates a new account was provisioned.
	KindRegistered = "registered"
)

// Message describes one account event. Exactly one message is emitted per
// successful state-changing operation.
type Message struct {
	Kind         string `json:"kind"`
	Account      string `json:"account"`
	Counterparty string `json:"counterparty"`
	Amount       int64  `json:"amount"`
	Timestamp    int64  `json:"timestamp"`
}

// Notifier delivers account events to downstream consumers.
type Notifier interface {
	Send(ctx context.Context, message Message) error
}

// LoggerNotifier writes events to the structured logger.
type LoggerNotifier struct {
	logger *slog.Logger
}

// NewLoggerNotifier constructs a logging notifier.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

// Send writes the message to the structured logger.
func (n *LoggerNotifier) Send(_ context.Context, message Message) error {
	if n == nil || n.logger == nil {
		return nil
	}
	n.logger.Info("account event",
		"kind", message.Kind,
		"account", message.Account,
		"counterparty", message.Counterparty,
		"amount", message.Amount,
		"timestamp", message.Timestamp,
	)
	return nil
}
