package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/boddenberg/ledger-settlement-go/internal/config"
	"github.com/boddenberg/ledger-settlement-go/internal/handler"
	"github.com/boddenberg/ledger-settlement-go/internal/infra/cache"
	"github.com/boddenberg/ledger-settlement-go/internal/infra/observability"
	"github.com/boddenberg/ledger-settlement-go/internal/service"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	// --- Load .env file (for local development) ---
	_ = config.LoadDotEnv(".env")

	// --- Config ---
	cfg := config.Load()

	// --- Logger ---
	logger := observability.NewLogger(cfg.LogLevel, "ledgerd")
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	logger.Info("configuration loaded",
		zap.Int("port", cfg.Port),
		zap.String("log_level", cfg.LogLevel),
		zap.String("backend", cfg.Backend),
		zap.Int("cas_max_attempts", cfg.CASMaxAttempts),
		zap.Duration("store_timeout", cfg.StoreTimeout),
		zap.Bool("webhook_enabled", cfg.WebhookURL != ""),
		zap.Bool("operator_key_enabled", cfg.OperatorKeyHash != ""),
		zap.Duration("idempotency_ttl", cfg.IdempotencyTTL),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Tracing ---
	shutdownTracer, err := observability.InitTracer(cfg.OTLPEndpoint, "ledger-settlement")
	if err != nil {
		logger.Fatal("failed to init tracer", zap.Error(err))
	}
	defer shutdownTracer(context.Background())

	// --- Metrics ---
	metrics := observability.NewMetrics()

	// --- Ledger store ---
	store, checks, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to open ledger store", zap.Error(err))
	}
	defer closeStore()

	// --- Notifications ---
	dispatcher := newDispatcher(cfg, metrics, logger)

	// --- Services ---
	ledgerSvc := service.NewLedgerService(store, dispatcher, metrics, logger, service.Options{
		MaxAttempts:  cfg.CASMaxAttempts,
		StoreTimeout: cfg.StoreTimeout,
	})
	authSvc := service.NewAuthService(cfg.JWTSecret, cfg.OperatorKeyHash, 0, logger)

	// --- Idempotency cache ---
	idem := cache.New[handler.CachedResponse](cfg.IdempotencyTTL)
	defer idem.Stop()

	// --- Router ---
	router := handler.NewRouter(ledgerSvc, authSvc, idem, checks, metrics, logger)

	// --- Server ---
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server starting", zap.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gCtx.Done()
		logger.Info("server shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		// In-flight notifications finish after the last request is served.
		dispatcher.Wait()
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("server stopped with error", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("server stopped")
}
