package payments

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/wallet_ledger/internal/ledger"
	"github.com/congo-pay/wallet_ledger/internal/response"
	"github.com/congo-pay/wallet_ledger/internal/validation"
)

// Handler exposes payment endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs a payment handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type transferRequest struct {
	ReceiverID     string          `json:"receiverId" validate:"required,uuid"`
	Amount         decimal.Decimal `json:"amount"`
	IdempotencyKey string          `json:"idempotencyKey" validate:"omitempty,max=255"`
}

// Transfer moves funds from the wallet in the path to receiverId.
func (h *Handler) Transfer(c *fiber.Ctx) error {
	senderID, err := validation.WalletID(c.Params("id"))
	if err != nil {
		return response.FromError(err)
	}
	var req transferRequest
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
	receiverID, err := validation.WalletID(req.ReceiverID)
	if err != nil {
		return response.FromError(err)
	}

	res, err := h.service.Transfer(c.UserContext(), ledger.TransferInput{
		SenderID:       senderID,
		ReceiverID:     receiverID,
		Amount:         amount,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		return response.FromError(err)
	}
	return response.Success(c, http.StatusOK, "Transfer successful", res.Transaction)
}
