package handler

import (
	"net/http"

	"github.com/boddenberg/ledger-settlement-go/internal/domain"
	"github.com/boddenberg/ledger-settlement-go/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// ============================================================
// Profile, account and transaction reads
// ============================================================

func openProfileHandler(svc *service.LedgerService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/profiles/{profileId}")
		defer span.End()
		profileID := chi.URLParam(r, "profileId")

		profile, err := svc.OpenProfile(ctx, profileID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, profile)
	}
}

func getProfileHandler(svc *service.LedgerService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/profiles/{profileId}")
		defer span.End()
		profileID := chi.URLParam(r, "profileId")

		profile, err := svc.GetProfile(ctx, profileID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, profile)
	}
}

func listAccountsHandler(svc *service.LedgerService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /accounts")
		defer span.End()
		profileID := chi.URLParam(r, "profileId")

		accounts, err := svc.ListAccounts(ctx, profileID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, domain.ListResponse[domain.Account]{Data: accounts, Total: len(accounts)})
	}
}

func getAccountHandler(svc *service.LedgerService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /accounts/{accountId}")
		defer span.End()
		profileID := chi.URLParam(r, "profileId")
		accountID := chi.URLParam(r, "accountId")

		account, err := svc.GetAccount(ctx, profileID, accountID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, account)
	}
}

// listTransactionsHandler supports ?accountId=&status=&type=&limit= filters.
func listTransactionsHandler(svc *service.LedgerService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /transactions")
		defer span.End()
		profileID := chi.URLParam(r, "profileId")

		q := r.URL.Query()
		filter := domain.TransactionFilter{
			AccountID: q.Get("accountId"),
			Status:    domain.TransactionStatus(q.Get("status")),
			Type:      domain.TransactionType(q.Get("type")),
			Limit:     parseLimit(r),
		}
		txs, err := svc.ListTransactions(ctx, profileID, filter)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, domain.ListResponse[domain.Transaction]{Data: txs, Total: len(txs)})
	}
}
