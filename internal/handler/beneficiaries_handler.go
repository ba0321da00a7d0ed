package handler

import (
	"net/http"

	"github.com/boddenberg/ledger-settlement-go/internal/domain"
	"github.com/boddenberg/ledger-settlement-go/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

func listBeneficiariesHandler(svc *service.LedgerService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /beneficiaries")
		defer span.End()

		list, err := svc.ListBeneficiaries(ctx, chi.URLParam(r, "profileId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, domain.ListResponse[domain.Beneficiary]{Data: list, Total: len(list)})
	}
}

func addBeneficiaryHandler(svc *service.LedgerService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /beneficiaries")
		defer span.End()

		var req domain.Beneficiary
		if err := decodeJSON(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		b, err := svc.AddBeneficiary(ctx, chi.URLParam(r, "profileId"), req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, b)
	}
}

func removeBeneficiaryHandler(svc *service.LedgerService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "DELETE /beneficiaries/{beneficiaryId}")
		defer span.End()
		beneficiaryID := chi.URLParam(r, "beneficiaryId")

		if err := svc.RemoveBeneficiary(ctx, chi.URLParam(r, "profileId"), beneficiaryID); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, domain.SuccessResponse{Message: "beneficiary removed", ID: beneficiaryID})
	}
}
