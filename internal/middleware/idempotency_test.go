package middleware

import (
	"io"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/wallet_ledger/internal/logging"
)

type testApp struct {
	app   *fiber.App
	mr    *miniredis.Miniredis
	calls *atomic.Int32
}

func setupTestApp(t *testing.T) testApp {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}

	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		cache.Close()
		mr.Close()
	})

	calls := &atomic.Int32{}
	app := fiber.New()
	app.Use(Idempotency(cache, time.Minute, logging.Discard()))
	app.Post("/resource", func(c *fiber.Ctx) error {
		n := calls.Add(1)
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"call": n})
	})
	app.Post("/other", func(c *fiber.Ctx) error {
		n := calls.Add(1)
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"other": n})
	})
	app.Post("/fails", func(c *fiber.Ctx) error {
		calls.Add(1)
		return fiber.NewError(fiber.StatusServiceUnavailable, "try again")
	})
	return testApp{app: app, mr: mr, calls: calls}
}

func (a testApp) post(t *testing.T, path, key string) (int, string, string) {
	t.Helper()
	return a.postBody(t, path, "{}", key)
}

func (a testApp) postBody(t *testing.T, path, body, key string) (int, string, string) {
	t.Helper()
	req := httptest.NewRequest(fiber.MethodPost, path, strings.NewReader(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	if key != "" {
		req.Header.Set(idempotencyKeyHeader, key)
	}
	resp, err := a.app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	resp.Body.Close()
	return resp.StatusCode, string(respBody), resp.Header.Get(replayedHeader)
}

func TestIdempotencyWithoutHeaderPassesThrough(t *testing.T) {
	a := setupTestApp(t)

	a.post(t, "/resource", "")
	a.post(t, "/resource", "")
	if got := a.calls.Load(); got != 2 {
		t.Fatalf("expected handler to run twice, ran %d times", got)
	}
}

func TestIdempotencyReturnsCachedResponse(t *testing.T) {
	a := setupTestApp(t)

	status, first, _ := a.post(t, "/resource", "abc123")
	if status != fiber.StatusOK {
		t.Fatalf("expected status %d got %d", fiber.StatusOK, status)
	}

	status, second, replayed := a.post(t, "/resource", "abc123")
	if status != fiber.StatusOK {
		t.Fatalf("expected cached status %d got %d", fiber.StatusOK, status)
	}
	if second != first {
		t.Fatalf("expected cached payload %s got %s", first, second)
	}
	if replayed != "true" {
		t.Fatalf("expected replay marker header")
	}
	if got := a.calls.Load(); got != 1 {
		t.Fatalf("expected handler to run once, ran %d times", got)
	}
}

func TestIdempotencyInProgressFallsThrough(t *testing.T) {
	a := setupTestApp(t)
	if err := a.mr.Set(cacheKeyFor(fiber.MethodPost, "/resource", "busy"), inProgressMarker); err != nil {
		t.Fatalf("seed marker: %v", err)
	}

	status, _, _ := a.post(t, "/resource", "busy")
	if status != fiber.StatusOK {
		t.Fatalf("expected handler response, got %d", status)
	}
	if got, _ := a.mr.Get(cacheKeyFor(fiber.MethodPost, "/resource", "busy")); got != inProgressMarker {
		t.Fatalf("fall-through request must not overwrite the reservation, got %q", got)
	}
}

func TestIdempotencyDoesNotCacheFailures(t *testing.T) {
	a := setupTestApp(t)

	a.post(t, "/fails", "retry-me")
	if a.mr.Exists(cacheKeyFor(fiber.MethodPost, "/fails", "retry-me")) {
		t.Fatalf("failed response must release the reservation")
	}
	a.post(t, "/fails", "retry-me")
	if got := a.calls.Load(); got != 2 {
		t.Fatalf("expected retry to reach handler, ran %d times", got)
	}
}

func TestIdempotencyRedisDownPassesThrough(t *testing.T) {
	a := setupTestApp(t)
	a.mr.Close()

	status, _, _ := a.post(t, "/resource", "k")
	if status != fiber.StatusOK {
		t.Fatalf("expected pass-through when redis is down, got %d", status)
	}
}

func TestIdempotencyScopedByRoute(t *testing.T) {
	a := setupTestApp(t)

	status, _, _ := a.post(t, "/other", "shared")
	if status != fiber.StatusCreated {
		t.Fatalf("expected %d got %d", fiber.StatusCreated, status)
	}
	status, body, replayed := a.post(t, "/resource", "shared")
	if status != fiber.StatusOK || replayed != "" {
		t.Fatalf("key reused on another route must reach its handler, got %d %s", status, body)
	}
	if got := a.calls.Load(); got != 2 {
		t.Fatalf("expected both handlers to run, ran %d times", got)
	}
}

func TestIdempotencyBodyKeyWinsOverHeader(t *testing.T) {
	a := setupTestApp(t)

	a.postBody(t, "/resource", `{"idempotencyKey":"body-1"}`, "hdr")
	_, _, replayed := a.postBody(t, "/resource", `{"idempotencyKey":"body-2"}`, "hdr")
	if replayed != "" {
		t.Fatal("distinct body keys sharing a header must not replay")
	}
	if got := a.calls.Load(); got != 2 {
		t.Fatalf("expected two handler runs, got %d", got)
	}

	_, _, replayed = a.postBody(t, "/resource", `{"idempotencyKey":"body-1"}`, "other-hdr")
	if replayed != "true" {
		t.Fatal("same body key must replay regardless of header")
	}
	if got := a.calls.Load(); got != 2 {
		t.Fatalf("expected replay without handler run, got %d", got)
	}
}
