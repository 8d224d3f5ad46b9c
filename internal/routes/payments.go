package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/wallet_ledger/internal/payments"
)

// RegisterPaymentRoutes wires payment endpoints.
func RegisterPaymentRoutes(r fiber.Router, h *payments.Handler) {
	r.Post("/wallets/:id/transfer", h.Transfer)
}
