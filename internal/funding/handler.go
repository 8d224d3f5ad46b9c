package funding

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/wallet_ledger/internal/ledger"
	"github.com/congo-pay/wallet_ledger/internal/response"
	"github.com/congo-pay/wallet_ledger/internal/validation"
)

// Handler exposes the wallet funding endpoint.
type Handler struct {
	service *Service
}

// NewHandler constructs a funding handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Fund credits the wallet named in the path.
func (h *Handler) Fund(c *fiber.Ctx) error {
	walletID, err := validation.WalletID(c.Params("id"))
	if err != nil {
		return response.FromError(err)
	}
	var req FundRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = c.Get("Idempotency-Key")
	}
	if err := validation.Struct(req); err != nil {
		return response.FromError(err)
	}
	amount, err := validation.MinorUnits(req.Amount)
	if err != nil {
		return response.FromError(err)
	}

	res, err := h.service.Fund(c.UserContext(), ledger.FundInput{
		WalletID:       walletID,
		Amount:         amount,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		return response.FromError(err)
	}
	return response.Success(c, http.StatusOK, "Wallet funding successful", FundResponse{
		Wallet:      res.Wallet,
		Transaction: res.Transaction,
	})
}
