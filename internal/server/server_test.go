package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/congo-pay/wallet_ledger/internal/config"
	"github.com/congo-pay/wallet_ledger/internal/logging"
	"github.com/congo-pay/wallet_ledger/internal/response"
	"github.com/congo-pay/wallet_ledger/internal/routes"
)

func testConfig() config.Config {
	return config.Config{
		AppName:          "WalletLedgerTest",
		AppEnv:           "test",
		Port:             "0",
		DefaultCurrency:  "NGN",
		IdempotencyTTL:   time.Minute,
		OperationTimeout: time.Second,
		LockTimeout:      time.Second,
	}
}

func newTestServer(t *testing.T, cache *redis.Client) *Server {
	t.Helper()
	srv, err := New(routes.Deps{Cfg: testConfig(), Cache: cache, Logger: logging.Discard()})
	require.NoError(t, err)
	return srv
}

type call struct {
	method, path, body, key string
}

func do(t *testing.T, srv *Server, c call) (int, response.Envelope) {
	t.Helper()
	var body io.Reader
	if c.body != "" {
		body = strings.NewReader(c.body)
	}
	req := httptest.NewRequest(c.method, c.path, body)
	req.Header.Set("Content-Type", "application/json")
	if c.key != "" {
		req.Header.Set("Idempotency-Key", c.key)
	}
	resp, err := srv.App().Test(req, -1)
	require.NoError(t, err)
	var env response.Envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return resp.StatusCode, env
}

func createWallet(t *testing.T, srv *Server) string {
	t.Helper()
	status, env := do(t, srv, call{method: http.MethodPost, path: "/api/v1/wallets", body: `{"currency":"NGN"}`})
	require.Equal(t, http.StatusCreated, status)
	return env.Data.(map[string]any)["id"].(string)
}

func TestWalletLifecycle(t *testing.T) {
	srv := newTestServer(t, nil)
	a := createWallet(t, srv)
	b := createWallet(t, srv)

	status, env := do(t, srv, call{method: http.MethodPost, path: "/api/v1/wallets/" + a + "/fund", body: `{"amount":200,"idempotencyKey":"fund-a"}`})
	require.Equal(t, http.StatusOK, status, env.Message)

	transfer := call{
		method: http.MethodPost,
		path:   "/api/v1/wallets/" + a + "/transfer",
		body:   fmt.Sprintf(`{"receiverId":%q,"amount":100,"idempotencyKey":"t-1"}`, b),
	}
	status, env = do(t, srv, transfer)
	require.Equal(t, http.StatusOK, status, env.Message)
	txID := env.Data.(map[string]any)["id"]

	status, env = do(t, srv, transfer)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, txID, env.Data.(map[string]any)["id"])

	status, env = do(t, srv, call{method: http.MethodGet, path: "/api/v1/wallets/" + a})
	require.Equal(t, http.StatusOK, status)
	data := env.Data.(map[string]any)
	assert.Equal(t, float64(100), data["balance"])
	assert.Len(t, data["transactions"], 2)

	status, env = do(t, srv, call{method: http.MethodGet, path: "/api/v1/wallets/" + b})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(100), env.Data.(map[string]any)["balance"])

	status, env = do(t, srv, call{
		method: http.MethodPost,
		path:   "/api/v1/wallets/" + b + "/transfer",
		body:   fmt.Sprintf(`{"receiverId":%q,"amount":500}`, a),
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.False(t, env.Status)
	assert.Equal(t, http.StatusBadRequest, env.Code)
}

func TestRedisReplayThroughServer(t *testing.T) {
	srv := newRedisServer(t)
	a := createWallet(t, srv)

	fund := call{method: http.MethodPost, path: "/api/v1/wallets/" + a + "/fund", body: `{"amount":50}`, key: "hdr-1"}
	status, first := do(t, srv, fund)
	require.Equal(t, http.StatusOK, status)
	status, second := do(t, srv, fund)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, first.Data, second.Data)

	_, env := do(t, srv, call{method: http.MethodGet, path: "/api/v1/wallets/" + a})
	assert.Equal(t, float64(50), env.Data.(map[string]any)["balance"])
}

func TestHealthAndMetrics(t *testing.T) {
	srv := newTestServer(t, nil)
	a := createWallet(t, srv)
	do(t, srv, call{method: http.MethodPost, path: "/api/v1/wallets/" + a + "/fund", body: `{"amount":5}`})

	resp, err := srv.App().Test(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = srv.App().Test(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `wallet_ledger_operations_total{operation="fund",outcome="success"} 1`)
	assert.Contains(t, string(body), "wallet_ledger_volume_minor_units_total")
}

func TestProductionRequiresDatabase(t *testing.T) {
	cfg := testConfig()
	cfg.AppEnv = "production"
	_, err := New(routes.Deps{Cfg: cfg, Logger: logging.Discard()})
	assert.Error(t, err)
}

func newRedisServer(t *testing.T) *Server {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { cache.Close() })
	return newTestServer(t, cache)
}

func TestHeaderKeyReusedAcrossRoutesStillFunds(t *testing.T) {
	srv := newRedisServer(t)

	status, env := do(t, srv, call{method: http.MethodPost, path: "/api/v1/wallets", body: `{"currency":"NGN"}`, key: "shared"})
	require.Equal(t, http.StatusCreated, status)
	a := env.Data.(map[string]any)["id"].(string)

	status, env = do(t, srv, call{method: http.MethodPost, path: "/api/v1/wallets/" + a + "/fund", body: `{"amount":100}`, key: "shared"})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Wallet funding successful", env.Message)

	_, env = do(t, srv, call{method: http.MethodGet, path: "/api/v1/wallets/" + a})
	assert.Equal(t, float64(100), env.Data.(map[string]any)["balance"])
}

func TestBodyKeysSharingHeaderAreDistinctFundings(t *testing.T) {
	srv := newRedisServer(t)
	a := createWallet(t, srv)

	for _, key := range []string{"body-1", "body-2"} {
		status, env := do(t, srv, call{
			method: http.MethodPost,
			path:   "/api/v1/wallets/" + a + "/fund",
			body:   fmt.Sprintf(`{"amount":100,"idempotencyKey":%q}`, key),
			key:    "hdr",
		})
		require.Equal(t, http.StatusOK, status, env.Message)
	}

	_, env := do(t, srv, call{method: http.MethodGet, path: "/api/v1/wallets/" + a})
	assert.Equal(t, float64(200), env.Data.(map[string]any)["balance"])
	assert.Len(t, env.Data.(map[string]any)["transactions"], 2)
}
