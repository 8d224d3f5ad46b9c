package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

const (
	idempotencyKeyHeader = "Idempotency-Key"
	idempotencyPrefix    = "wallet_ledger:idempotency:v1:"
	inProgressMarker     = "__in_progress__"
	replayedHeader       = "Idempotent-Replayed"
	cacheTimeout         = 2 * time.Second
)

type storedResponse struct {
	Status  int               `json:"status"`
	Body    string            `json:"body"`
	Headers map[string]string `json:"headers"`
}

// Idempotency replays the first successful response stored in Redis for an
// idempotency key on the same method and path. The key is the body's
// idempotencyKey when present, otherwise the Idempotency-Key header, matching
// what the handlers pass to the ledger. Requests without a key, requests
// racing an in-flight reservation, and requests made while Redis is
// unavailable pass straight through; the ledger's own key check keeps them
// exactly-once.
func Idempotency(cache *redis.Client, ttl time.Duration, logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		switch strings.ToUpper(c.Method()) {
		case fiber.MethodGet, fiber.MethodHead, fiber.MethodOptions:
			return c.Next()
		}

		key := requestKey(c)
		if key == "" {
			return c.Next()
		}
		cacheKey := cacheKeyFor(c.Method(), c.Path(), key)

		ctx, cancel := context.WithTimeout(context.Background(), cacheTimeout)
		defer cancel()

		cached, err := cache.Get(ctx, cacheKey).Result()
		switch {
		case err == nil && cached == inProgressMarker:
			return c.Next()
		case err == nil:
			var stored storedResponse
			if err := json.Unmarshal([]byte(cached), &stored); err != nil {
				logger.Warn("failed to decode stored idempotent response", slog.String("key", key), slog.Any("error", err))
				return c.Next()
			}
			for header, value := range stored.Headers {
				if strings.EqualFold(header, fiber.HeaderContentLength) {
					continue
				}
				c.Set(header, value)
			}
			c.Set(replayedHeader, "true")
			return c.Status(stored.Status).SendString(stored.Body)
		case !errors.Is(err, redis.Nil):
			logger.Warn("idempotency lookup failed", slog.String("key", key), slog.Any("error", err))
			return c.Next()
		}

		reserved, err := cache.SetNX(ctx, cacheKey, inProgressMarker, ttl).Result()
		if err != nil || !reserved {
			if err != nil {
				logger.Warn("idempotency reservation failed", slog.String("key", key), slog.Any("error", err))
			}
			return c.Next()
		}

		release := func() {
			cleanupCtx, cancel := context.WithTimeout(context.Background(), cacheTimeout)
			defer cancel()
			cache.Del(cleanupCtx, cacheKey)
		}

		if err := c.Next(); err != nil {
			release()
			return err
		}

		status := c.Response().StatusCode()
		if status < 200 || status >= 300 {
			release()
			return nil
		}

		stored := storedResponse{
			Status:  status,
			Body:    string(c.Response().Body()),
			Headers: map[string]string{},
		}
		c.Response().Header.VisitAll(func(k, v []byte) {
			stored.Headers[string(k)] = string(v)
		})

		payload, err := json.Marshal(stored)
		if err != nil {
			logger.Error("failed to encode idempotent response", slog.String("key", key), slog.Any("error", err))
			release()
			return nil
		}

		persistCtx, persistCancel := context.WithTimeout(context.Background(), cacheTimeout)
		defer persistCancel()
		if err := cache.Set(persistCtx, cacheKey, payload, ttl).Err(); err != nil {
			logger.Warn("failed to persist idempotent response", slog.String("key", key), slog.Any("error", err))
			cache.Del(persistCtx, cacheKey)
		}
		return nil
	}
}

// requestKey resolves the effective idempotency key: body field first, then header.
func requestKey(c *fiber.Ctx) string {
	if body := c.Body(); len(body) > 0 {
		var payload struct {
			IdempotencyKey string `json:"idempotencyKey"`
		}
		if err := json.Unmarshal(body, &payload); err == nil && payload.IdempotencyKey != "" {
			return payload.IdempotencyKey
		}
	}
	return c.Get(idempotencyKeyHeader)
}

func cacheKeyFor(method, path, key string) string {
	return idempotencyPrefix + strings.ToUpper(method) + " " + path + ":" + key
}
