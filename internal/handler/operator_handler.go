package handler

import (
	"context"
	"net/http"

	"github.com/boddenberg/ledger-settlement-go/internal/domain"
	"github.com/boddenberg/ledger-settlement-go/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ============================================================
// Operator console: adjustments, settlement, reconciliation
// ============================================================

type adjustFunc func(ctx context.Context, profileID, accountID string, amount decimal.Decimal, reason string) (*domain.Transaction, error)

func adjustmentHandler(name string, adjust adjustFunc, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /accounts/{accountId}/"+name)
		defer span.End()
		profileID := chi.URLParam(r, "profileId")
		accountID := chi.URLParam(r, "accountId")

		var req domain.AdjustmentRequest
		if err := decodeJSON(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		tx, err := adjust(ctx, profileID, accountID, req.Amount, req.Reason)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, tx)
	}
}

func resetBalanceHandler(svc *service.LedgerService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /accounts/{accountId}/reset")
		defer span.End()
		profileID := chi.URLParam(r, "profileId")
		accountID := chi.URLParam(r, "accountId")

		operator := ""
		if p, ok := PrincipalFromContext(ctx); ok {
			operator = p.Subject
		}
		logger.Warn("operator requested balance reset",
			zap.String("operator", operator),
			zap.String("profile_id", profileID),
			zap.String("account_id", accountID),
		)

		account, err := svc.ResetBalance(ctx, profileID, accountID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, account)
	}
}

func listPendingTransfersHandler(svc *service.LedgerService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /transfers/pending")
		defer span.End()

		txs, err := svc.ListPendingTransfers(ctx, chi.URLParam(r, "profileId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, domain.ListResponse[domain.Transaction]{Data: txs, Total: len(txs)})
	}
}

type transitionFunc func(ctx context.Context, profileID, txID string) (*domain.Transaction, error)

func transferTransitionHandler(name string, transition transitionFunc, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /transfers/{transactionId}/"+name)
		defer span.End()
		profileID := chi.URLParam(r, "profileId")
		txID := chi.URLParam(r, "transactionId")

		tx, err := transition(ctx, profileID, txID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, tx)
	}
}

func deleteTransactionHandler(svc *service.LedgerService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "DELETE /transactions/{transactionId}")
		defer span.End()
		txID := chi.URLParam(r, "transactionId")

		if err := svc.DeleteTransaction(ctx, chi.URLParam(r, "profileId"), txID); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, domain.SuccessResponse{Message: "transaction deleted", ID: txID})
	}
}

func deleteTransactionsHandler(svc *service.LedgerService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /transactions/delete")
		defer span.End()

		var req domain.BulkDeleteRequest
		if err := decodeJSON(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		removed, err := svc.DeleteTransactions(ctx, chi.URLParam(r, "profileId"), req.IDs)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, domain.BulkDeleteResult{Removed: removed})
	}
}

func deleteAllTransactionsHandler(svc *service.LedgerService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "DELETE /transactions")
		defer span.End()

		if err := svc.DeleteAllTransactions(ctx, chi.URLParam(r, "profileId")); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, domain.SuccessResponse{Message: "all transactions deleted"})
	}
}
