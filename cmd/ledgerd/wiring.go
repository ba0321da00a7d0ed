package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/boddenberg/ledger-settlement-go/internal/config"
	"github.com/boddenberg/ledger-settlement-go/internal/handler"
	"github.com/boddenberg/ledger-settlement-go/internal/infra/notify"
	"github.com/boddenberg/ledger-settlement-go/internal/infra/observability"
	"github.com/boddenberg/ledger-settlement-go/internal/infra/resilience"
	"github.com/boddenberg/ledger-settlement-go/internal/infra/store/memory"
	"github.com/boddenberg/ledger-settlement-go/internal/infra/store/postgres"
	"github.com/boddenberg/ledger-settlement-go/internal/infra/store/redis"
	"github.com/boddenberg/ledger-settlement-go/internal/port"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// openStore builds the configured ledger backend, its health checks and a
// cleanup function.
func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (port.LedgerStore, []handler.HealthCheck, func(), error) {
	switch cfg.Backend {
	case config.BackendRedis:
		client, err := redis.NewClient(ctx, redis.Options{
			Addr:      cfg.RedisAddr,
			Password:  cfg.RedisPassword,
			DB:        cfg.RedisDB,
			KeyPrefix: cfg.RedisKeyPrefix,
		})
		if err != nil {
			return nil, nil, nil, err
		}
		store := redis.New(client, cfg.RedisKeyPrefix, logger)
		logger.Info("using Redis ledger store", zap.String("addr", cfg.RedisAddr))
		checks := []handler.HealthCheck{{Name: "redis", Ping: store.Ping}}
		return store, checks, func() { _ = client.Close() }, nil

	case config.BackendPostgres:
		pool, err := postgres.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, nil, err
		}
		store := postgres.New(pool, logger)
		if err := store.Migrate(ctx); err != nil {
			pool.Close()
			return nil, nil, nil, fmt.Errorf("migrate: %w", err)
		}
		logger.Info("using Postgres ledger store")
		checks := []handler.HealthCheck{{Name: "postgres", Ping: store.Ping}}
		return store, checks, pool.Close, nil

	default:
		logger.Warn("using in-memory ledger store: data is lost on restart")
		return memory.New(), nil, func() {}, nil
	}
}

// newDispatcher always logs events and additionally posts them to the
// webhook when one is configured.
func newDispatcher(cfg *config.Config, metrics *observability.Metrics, logger *zap.Logger) *notify.Dispatcher {
	var notifier port.Notifier = notify.NewLog(logger)

	if cfg.WebhookURL != "" {
		cb := resilience.NewCircuitBreaker(resilience.BreakerSettings{Name: "webhook"}, func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
			metrics.SetBreakerState(name, float64(to))
		})
		webhook := notify.NewWebhook(
			&http.Client{Timeout: cfg.HTTPTimeout},
			cfg.WebhookURL,
			cb,
			resilience.Policy{MaxRetries: cfg.MaxRetries, InitialBackoff: cfg.InitialBackoff, MaxBackoff: cfg.HTTPTimeout},
		)
		notifier = notify.Multi{webhook, notifier}
	}

	return notify.NewDispatcher(notifier, cfg.NotifierMaxConcurrency, cfg.NotifierTimeout, metrics, logger)
}
