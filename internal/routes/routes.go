package routes

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/wallet_ledger/internal/config"
	"github.com/congo-pay/wallet_ledger/internal/funding"
	"github.com/congo-pay/wallet_ledger/internal/ledger"
	"github.com/congo-pay/wallet_ledger/internal/metrics"
	"github.com/congo-pay/wallet_ledger/internal/middleware"
	"github.com/congo-pay/wallet_ledger/internal/notification"
	"github.com/congo-pay/wallet_ledger/internal/payments"
	"github.com/congo-pay/wallet_ledger/internal/wallet"
)

// Deps aggregates shared dependencies required to wire routes. Only Cfg and
// Logger are mandatory; a nil DB selects the in-memory store in development.
type Deps struct {
	Cfg      config.Config
	DB       *pgxpool.Pool
	Cache    *redis.Client
	Broker   *amqp.Connection
	Notifier notification.Notifier
	Registry *prometheus.Registry
	Logger   *slog.Logger
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	if !d.Cfg.IsDev() && d.DB == nil {
		return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
	}
	if d.Registry == nil {
		d.Registry = prometheus.NewRegistry()
	}
	if d.Notifier == nil {
		d.Notifier = notification.NewLoggerNotifier(d.Logger)
	}

	app.Use(recover.New())
	app.Use(middleware.RequestID())
	if d.Cfg.IsDev() {
		app.Use(logger.New(logger.Config{
			Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
			TimeFormat: "15:04:05",
			TimeZone:   "Local",
		}))
	} else {
		app.Use(middleware.Audit(d.Logger))
	}

	RegisterHealthRoutes(app, d)
	RegisterMetricsRoute(app, d.Registry)

	store, err := newStore(d)
	if err != nil {
		return err
	}
	engine := ledger.NewEngine(store,
		ledger.WithLogger(d.Logger),
		ledger.WithRecorder(metrics.NewCollector(d.Registry)),
		ledger.WithOperationTimeout(d.Cfg.OperationTimeout),
		ledger.WithDefaultCurrency(d.Cfg.DefaultCurrency),
	)

	walletHandler := wallet.NewHandler(wallet.NewService(engine, d.Logger))
	fundingHandler := funding.NewHandler(funding.NewService(engine, d.Notifier, d.Logger))
	paymentHandler := payments.NewHandler(payments.NewService(engine, d.Notifier, d.Logger))

	api := app.Group("/api/v1")
	if d.Cache != nil {
		api.Use(middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))
	}
	api.Get("/ping", func(c *fiber.Ctx) error {
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": middleware.RequestIDFrom(c),
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	RegisterWalletRoutes(api, walletHandler)
	RegisterFundingRoutes(api, fundingHandler)
	RegisterPaymentRoutes(api, paymentHandler)

	return nil
}

func newStore(d Deps) (ledger.Store, error) {
	if d.DB == nil {
		d.Logger.Warn("DATABASE_URL not set, using in-memory ledger store")
		return ledger.NewInMemory(), nil
	}
	store := ledger.NewPostgresStore(d.DB, d.Cfg.LockTimeout)
	if d.Cfg.AutoMigrate {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := store.Migrate(ctx); err != nil {
			return nil, fmt.Errorf("migrate ledger schema: %w", err)
		}
		d.Logger.Info("ledger schema applied")
	}
	return store, nil
}
