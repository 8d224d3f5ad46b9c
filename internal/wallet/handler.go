package wallet

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/wallet_ledger/internal/response"
	"github.com/congo-pay/wallet_ledger/internal/validation"
)

// Handler exposes wallet HTTP endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds a wallet HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type createRequest struct {
	Currency string `json:"currency" validate:"omitempty,len=3,alpha"`
}

// Create provisions a wallet.
func (h *Handler) Create(c *fiber.Ctx) error {
	var req createRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
	}
	if err := validation.Struct(req); err != nil {
		return response.FromError(err)
	}
	w, err := h.service.Create(c.UserContext(), req.Currency)
	if err != nil {
		return response.FromError(err)
	}
	return response.Success(c, http.StatusCreated, "Wallet created successfully", w)
}

// Get returns a wallet with its transactions.
func (h *Handler) Get(c *fiber.Ctx) error {
	id, err := validation.WalletID(c.Params("id"))
	if err != nil {
		return response.FromError(err)
	}
	details, err := h.service.Get(c.UserContext(), id)
	if err != nil {
		return response.FromError(err)
	}
	return response.Success(c, http.StatusOK, "Wallet found", details)
}
