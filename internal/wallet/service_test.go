package wallet

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/congo-pay/wallet_ledger/internal/ledger"
	"github.com/congo-pay/wallet_ledger/internal/logging"
	"github.com/congo-pay/wallet_ledger/internal/response"
)

func newTestApp(t *testing.T) (*fiber.App, *Service) {
	t.Helper()
	engine := ledger.NewEngine(ledger.NewInMemory())
	svc := NewService(engine, logging.Discard())
	h := NewHandler(svc)

	app := fiber.New(fiber.Config{ErrorHandler: response.ErrorHandler(logging.Discard())})
	app.Post("/wallets", h.Create)
	app.Get("/wallets/:id", h.Get)
	return app, svc
}

func decode(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return body
}

func TestServiceCreateAndGet(t *testing.T) {
	_, svc := newTestApp(t)
	ctx := context.Background()

	w, err := svc.Create(ctx, "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if w.Currency != "NGN" || w.Balance != 0 {
		t.Fatalf("unexpected wallet: %+v", w)
	}

	details, err := svc.Get(ctx, w.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if details.ID != w.ID || details.Transactions == nil || len(details.Transactions) != 0 {
		t.Fatalf("unexpected details: %+v", details)
	}
}

func TestHandlerCreate(t *testing.T) {
	app, _ := newTestApp(t)

	req := httptest.NewRequest(http.MethodPost, "/wallets", strings.NewReader(`{"currency":"usd"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	body := decode(t, resp)
	if body["message"] != "Wallet created successfully" || body["status"] != true {
		t.Fatalf("unexpected envelope: %v", body)
	}
	data := body["data"].(map[string]any)
	if data["currency"] != "USD" {
		t.Fatalf("expected USD, got %v", data["currency"])
	}
}

func TestHandlerCreateRejectsBadCurrency(t *testing.T) {
	app, _ := newTestApp(t)

	req := httptest.NewRequest(http.MethodPost, "/wallets", strings.NewReader(`{"currency":"DOLLARS"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestHandlerGet(t *testing.T) {
	app, svc := newTestApp(t)
	w, err := svc.Create(context.Background(), "NGN")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/wallets/"+w.ID, nil))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	body := decode(t, resp)
	data := body["data"].(map[string]any)
	if data["id"] != w.ID {
		t.Fatalf("unexpected wallet: %v", data)
	}
	if _, ok := data["transactions"].([]any); !ok {
		t.Fatalf("expected transactions array, got %v", data["transactions"])
	}

	resp, _ = app.Test(httptest.NewRequest(http.MethodGet, "/wallets/"+uuid.NewString(), nil))
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
	resp, _ = app.Test(httptest.NewRequest(http.MethodGet, "/wallets/not-a-uuid", nil))
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}
