package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	defaultAppName          = "WalletLedger"
	defaultAppEnv           = "development"
	defaultPort             = "7400"
	defaultLogLevel         = "info"
	defaultCurrency         = "NGN"
	defaultEventsExchange   = "wallet_ledger.events"
	defaultShutdownDelay    = 10 * time.Second
	defaultIdempotencyTTL   = 24 * time.Hour
	defaultOperationTimeout = 5 * time.Second
	defaultLockTimeout      = 2 * time.Second
)

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName          string
	AppEnv           string
	Port             string
	LogLevel         string
	DatabaseURL      string
	RedisURL         string
	RabbitMQURL      string
	EventsExchange   string
	DefaultCurrency  string
	AutoMigrate      bool
	ShutdownPeriod   time.Duration
	IdempotencyTTL   time.Duration
	OperationTimeout time.Duration
	LockTimeout      time.Duration
}

// Load reads configuration values from the environment and populates a Config instance.
func Load() (Config, error) {
	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("APP_NAME", defaultAppName)
	v.SetDefault("APP_ENV", defaultAppEnv)
	v.SetDefault("PORT", defaultPort)
	v.SetDefault("LOG_LEVEL", defaultLogLevel)
	v.SetDefault("DEFAULT_CURRENCY", defaultCurrency)
	v.SetDefault("LEDGER_EVENTS_EXCHANGE", defaultEventsExchange)
	v.SetDefault("AUTO_MIGRATE", false)
	v.SetDefault("SHUTDOWN_TIMEOUT", defaultShutdownDelay)
	v.SetDefault("IDEMPOTENCY_TTL", defaultIdempotencyTTL)
	v.SetDefault("OPERATION_TIMEOUT", defaultOperationTimeout)
	v.SetDefault("LOCK_TIMEOUT", defaultLockTimeout)

	// AutomaticEnv only resolves keys viper already knows about.
	for _, key := range []string{"DATABASE_URL", "REDIS_URL", "RABBITMQ_URL"} {
		if err := v.BindEnv(key); err != nil {
			return Config{}, fmt.Errorf("bind %s: %w", key, err)
		}
	}

	cfg := Config{
		AppName:          v.GetString("APP_NAME"),
		AppEnv:           strings.ToLower(v.GetString("APP_ENV")),
		Port:             v.GetString("PORT"),
		LogLevel:         strings.ToLower(v.GetString("LOG_LEVEL")),
		DatabaseURL:      v.GetString("DATABASE_URL"),
		RedisURL:         v.GetString("REDIS_URL"),
		RabbitMQURL:      v.GetString("RABBITMQ_URL"),
		EventsExchange:   v.GetString("LEDGER_EVENTS_EXCHANGE"),
		DefaultCurrency:  strings.ToUpper(v.GetString("DEFAULT_CURRENCY")),
		AutoMigrate:      v.GetBool("AUTO_MIGRATE"),
		ShutdownPeriod:   v.GetDuration("SHUTDOWN_TIMEOUT"),
		IdempotencyTTL:   v.GetDuration("IDEMPOTENCY_TTL"),
		OperationTimeout: v.GetDuration("OPERATION_TIMEOUT"),
		LockTimeout:      v.GetDuration("LOCK_TIMEOUT"),
	}

	if cfg.OperationTimeout <= 0 {
		return Config{}, fmt.Errorf("OPERATION_TIMEOUT must be positive")
	}
	if cfg.LockTimeout < 0 {
		return Config{}, fmt.Errorf("LOCK_TIMEOUT must not be negative")
	}
	if cfg.DatabaseURL == "" && !cfg.IsDev() {
		return Config{}, fmt.Errorf("DATABASE_URL must be set when APP_ENV=%s", cfg.AppEnv)
	}

	return cfg, nil
}

// IsDev reports whether the in-memory store may stand in for Postgres.
func (c Config) IsDev() bool {
	switch c.AppEnv {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}
