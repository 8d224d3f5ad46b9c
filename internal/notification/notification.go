package notification

import (
	"context"
	"log/slog"
	"time"
)

const (
	// KindWalletFunded indicates a wallet received a FUND credit.
	KindWalletFunded = "wallet_funded"
	// KindTransferSent notifies the sender side of a transfer.
	KindTransferSent = "transfer_sent"
	// KindTransferReceived notifies the receiver side of a transfer.
	KindTransferReceived = "transfer_received"
)

// Message describes a notification payload.
type Message struct {
	Kind          string    `json:"kind"`
	Destination   string    `json:"wallet_id"`
	TransactionID string    `json:"transaction_id"`
	Amount        int64     `json:"amount"`
	Balance       int64     `json:"balance"`
	Body          string    `json:"body"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// Notifier delivers notifications to downstream systems.
type Notifier interface {
	Send(ctx context.Context, message Message) error
}

// LoggerNotifier writes notifications to the logger. It is used when no broker is configured.
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
	n.logger.Info("notification",
		slog.String("kind", message.Kind),
		slog.String("wallet_id", message.Destination),
		slog.String("transaction_id", message.TransactionID),
		slog.Int64("amount", message.Amount),
		slog.String("body", message.Body),
	)
	return nil
}
