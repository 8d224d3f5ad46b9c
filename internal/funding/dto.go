package funding

import (
	"github.com/shopspring/decimal"

	"github.com/congo-pay/wallet_ledger/internal/ledger"
)

// FundRequest captures the body of a wallet funding call.
type FundRequest struct {
	Amount         decimal.Decimal `json:"amount"`
	IdempotencyKey string          `json:"idempotencyKey" validate:"omitempty,max=255"`
}

// FundResponse is returned for fresh and replayed fundings alike.
type FundResponse struct {
	Wallet      ledger.Wallet      `json:"wallet"`
	Transaction ledger.Transaction `json:"transaction"`
}
