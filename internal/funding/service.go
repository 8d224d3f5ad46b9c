package funding

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

// Service credits wallets through the ledger engine and notifies on success.
type Service struct {
	engine   *ledger.Engine
	notifier notification.Notifier
	logger   *slog.Logger
}

// NewService constructs a funding service. notifier may be nil.
func NewService(engine *ledger.Engine, notifier notification.Notifier, logger *slog.Logger) *Service {
	return &Service{engine: engine, notifier: notifier, logger: logger}
}

// Fund credits the wallet. Replays of a known idempotency key return the
// original transaction and do not notify again.
func (s *Service) Fund(ctx context.Context, input ledger.FundInput) (ledger.FundResult, error) {
	res, err := s.engine.Fund(ctx, input)
	if err != nil {
		return ledger.FundResult{}, err
	}
	if !res.Replayed {
		s.notify(ctx, res)
	}
	return res, nil
}

func (s *Service) notify(ctx context.Context, res ledger.FundResult) {
	if s.notifier == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()
	err := s.notifier.Send(ctx, notification.Message{
		Kind:          notification.KindWalletFunded,
		Destination:   res.Wallet.ID,
		TransactionID: res.Transaction.ID,
		Amount:        res.Transaction.Amount,
		Balance:       res.Wallet.Balance,
		Body:          fmt.Sprintf("Your wallet was funded with %d", res.Transaction.Amount),
		OccurredAt:    res.Transaction.CreatedAt,
	})
	if err != nil && s.logger != nil {
		s.logger.Warn("funding notification failed",
			slog.String("transaction_id", res.Transaction.ID),
			slog.String("error", err.Error()),
		)
	}
}
