package payments

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/congo-pay/wallet_ledger/internal/ledger"
	"github.com/congo-pay/wallet_ledger/internal/notification"
)

// notifyTimeout bounds post-commit delivery.
const notifyTimeout = 3 * time.Second

// Service runs wallet-to-wallet transfers through the ledger engine.
type Service struct {
	engine   *ledger.Engine
	notifier notification.Notifier
	logger   *slog.Logger
}

// NewService constructs a payment service. notifier may be nil.
func NewService(engine *ledger.Engine, notifier notification.Notifier, logger *slog.Logger) *Service {
	return &Service{engine: engine, notifier: notifier, logger: logger}
}

// Transfer moves funds between two wallets and notifies both parties after
// commit. Replays never notify.
func (s *Service) Transfer(ctx context.Context, input ledger.TransferInput) (ledger.TransferResult, error) {
	res, err := s.engine.Transfer(ctx, input)
	if err != nil {
		return ledger.TransferResult{}, err
	}
	if !res.Replayed {
		s.notify(ctx, res)
	}
	return res, nil
}

func (s *Service) notify(ctx context.Context, res ledger.TransferResult) {
	if s.notifier == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()
	txn := res.Transaction
	messages := []notification.Message{
		{
			Kind:          notification.KindTransferSent,
			Destination:   res.Sender.ID,
			TransactionID: txn.ID,
			Amount:        txn.Amount,
			Balance:       res.Sender.Balance,
			Body:          fmt.Sprintf("You sent %d to wallet %s", txn.Amount, res.Receiver.ID),
			OccurredAt:    txn.CreatedAt,
		},
		{
			Kind:          notification.KindTransferReceived,
			Destination:   res.Receiver.ID,
			TransactionID: txn.ID,
			Amount:        txn.Amount,
			Balance:       res.Receiver.Balance,
			Body:          fmt.Sprintf("You received %d from wallet %s", txn.Amount, res.Sender.ID),
			OccurredAt:    txn.CreatedAt,
		},
	}
	for _, msg := range messages {
		if err := s.notifier.Send(ctx, msg); err != nil && s.logger != nil {
			s.logger.Warn("transfer notification failed",
				slog.String("transaction_id", txn.ID),
				slog.String("kind", msg.Kind),
				slog.String("error", err.Error()),
			)
		}
	}
}
