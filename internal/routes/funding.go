package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/wallet_ledger/internal/funding"
)

// RegisterFundingRoutes wires the wallet funding endpoint.
func RegisterFundingRoutes(r fiber.Router, h *funding.Handler) {
	r.Post("/wallets/:id/fund", h.Fund)
}
