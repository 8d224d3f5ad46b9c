package response

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/wallet_ledger/internal/ledger"
)

// Envelope is the body shape of every API response.
type Envelope struct {
	Status  bool   `json:"status"`
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

// Success writes a successful envelope.
func Success(c *fiber.Ctx, code int, message string, data any) error {
	return c.Status(code).JSON(Envelope{Status: true, Code: code, Message: message, Data: data})
}

// Failure writes an error envelope.
func Failure(c *fiber.Ctx, code int, message string) error {
	return c.Status(code).JSON(Envelope{Status: false, Code: code, Message: message})
}

// StatusFor maps ledger error kinds onto HTTP status codes.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ledger.ErrInvalidOperation), errors.Is(err, ledger.ErrInsufficientFunds):
		return http.StatusBadRequest
	case errors.Is(err, ledger.ErrTransient):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// FromError converts a service error into a *fiber.Error carrying the
// client-facing message. Internal failures are reported generically.
func FromError(err error) *fiber.Error {
	code := StatusFor(err)
	switch code {
	case http.StatusInternalServerError:
		return fiber.NewError(code, "internal server error")
	case http.StatusServiceUnavailable:
		return fiber.NewError(code, "service temporarily unavailable, retry with the same idempotency key")
	}
	return fiber.NewError(code, Message(err))
}

// Message returns the client-facing wording for a ledger error.
func Message(err error) string {
	switch {
	case errors.Is(err, ledger.ErrSenderNotFound):
		return "Sender wallet not found"
	case errors.Is(err, ledger.ErrReceiverNotFound):
		return "Receiver wallet not found"
	case errors.Is(err, ledger.ErrNotFound):
		return "Wallet not found"
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return "Insufficient balance"
	case errors.Is(err, ledger.ErrSelfTransfer):
		return "Cannot transfer to self"
	case errors.Is(err, ledger.ErrInvalidAmount):
		return "Amount must be a whole number not less than 1"
	case errors.Is(err, ledger.ErrInvalidCurrency):
		return "Currency must be a 3-letter code"
	}
	return err.Error()
}

// ErrorHandler renders errors returned by handlers as envelopes.
func ErrorHandler(logger *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var fe *fiber.Error
		if !errors.As(err, &fe) {
			fe = FromError(err)
		}
		if fe.Code >= http.StatusInternalServerError && logger != nil {
			logger.Error("request failed",
				slog.String("path", c.Path()),
				slog.Int("status", fe.Code),
				slog.String("error", err.Error()),
			)
		}
		return Failure(c, fe.Code, fe.Message)
	}
}
