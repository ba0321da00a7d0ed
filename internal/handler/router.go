package handler

import (
	"net/http"

	"github.com/boddenberg/ledger-settlement-go/internal/infra/observability"
	"github.com/boddenberg/ledger-settlement-go/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("handler")

// NewRouter creates the HTTP router with all routes and middleware.
// idem may be nil to disable Idempotency-Key replay; checks feed the
// health endpoints.
func NewRouter(
	ledger *service.LedgerService,
	authSvc *service.AuthService,
	idem IdempotencyStore,
	checks []HealthCheck,
	metrics *observability.Metrics,
	logger *zap.Logger,
) http.Handler {
	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.TracingMiddleware)
	r.Use(observability.ZapLoggerMiddleware(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))

	// --- Operational endpoints ---
	r.Get("/healthz", healthzHandler(checks))
	r.Get("/readyz", readyzHandler(checks, logger))
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	if ledger == nil || authSvc == nil {
		return r
	}

	// --- API v1 ---
	r.Route("/v1", func(r chi.Router) {

		// =============================================
		// User routes: the token subject owns {profileId}
		// =============================================
		r.Route("/profiles/{profileId}", func(r chi.Router) {
			r.Use(JWTAuthMiddleware(authSvc, service.RoleUser, logger))
			r.Use(RequireProfileOwner(logger))
			r.Use(IdempotencyMiddleware(idem, metrics, logger))

			r.Post("/", openProfileHandler(ledger, logger))
			r.Get("/", getProfileHandler(ledger, logger))

			r.Get("/accounts", listAccountsHandler(ledger, logger))
			r.Get("/accounts/{accountId}", getAccountHandler(ledger, logger))
			r.Get("/transactions", listTransactionsHandler(ledger, logger))

			r.Post("/transfers/internal", internalTransferHandler(ledger, logger))
			r.Post("/transfers/external", externalTransferHandler(ledger, logger))

			r.Get("/beneficiaries", listBeneficiariesHandler(ledger, logger))
			r.Post("/beneficiaries", addBeneficiaryHandler(ledger, logger))
			r.Delete("/beneficiaries/{beneficiaryId}", removeBeneficiaryHandler(ledger, logger))
		})

		// =============================================
		// Operator console: any profile
		// =============================================
		r.Route("/ops/profiles/{profileId}", func(r chi.Router) {
			r.Use(OperatorAuthMiddleware(authSvc, logger))
			r.Use(IdempotencyMiddleware(idem, metrics, logger))

			r.Get("/", getProfileHandler(ledger, logger))
			r.Get("/transactions", listTransactionsHandler(ledger, logger))

			r.Post("/accounts/{accountId}/credit", adjustmentHandler("credit", ledger.Credit, logger))
			r.Post("/accounts/{accountId}/debit", adjustmentHandler("debit", ledger.Debit, logger))
			r.Post("/accounts/{accountId}/reset", resetBalanceHandler(ledger, logger))

			r.Get("/transfers/pending", listPendingTransfersHandler(ledger, logger))
			r.Post("/transfers/{transactionId}/validate", transferTransitionHandler("validate", ledger.ValidateTransfer, logger))
			r.Post("/transfers/{transactionId}/execute", transferTransitionHandler("execute", ledger.ExecuteTransfer, logger))
			r.Post("/transfers/{transactionId}/cancel", transferTransitionHandler("cancel", ledger.CancelTransfer, logger))

			r.Delete("/transactions/{transactionId}", deleteTransactionHandler(ledger, logger))
			r.Post("/transactions/delete", deleteTransactionsHandler(ledger, logger))
			r.Delete("/transactions", deleteAllTransactionsHandler(ledger, logger))
		})
	})

	return r
}
