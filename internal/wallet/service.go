package wallet

import (
	"context"
	"log/slog"

	"github.com/congo-pay/wallet_ledger/internal/ledger"
)

// Details is a wallet together with every transaction touching it.
type Details struct {
	ledger.Wallet
	Transactions []ledger.Transaction `json:"transactions"`
}

// Service exposes wallet operations backed by the ledger engine.
type Service struct {
	engine *ledger.Engine
	logger *slog.Logger
}

// NewService builds a wallet service instance.
func NewService(engine *ledger.Engine, logger *slog.Logger) *Service {
	return &Service{engine: engine, logger: logger}
}

// Create provisions an empty wallet. An empty currency uses the engine default.
func (s *Service) Create(ctx context.Context, currency string) (ledger.Wallet, error) {
	w, err := s.engine.CreateWallet(ctx, currency)
	if err != nil {
		return ledger.Wallet{}, err
	}
	if s.logger != nil {
		s.logger.Info("wallet created", slog.String("wallet_id", w.ID), slog.String("currency", w.Currency))
	}
	return w, nil
}

// Get returns the wallet and its history, oldest first, from one snapshot.
func (s *Service) Get(ctx context.Context, id string) (Details, error) {
	w, history, err := s.engine.Statement(ctx, id)
	if err != nil {
		return Details{}, err
	}
	if history == nil {
		history = []ledger.Transaction{}
	}
	return Details{Wallet: w, Transactions: history}, nil
}
