package handler

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/boddenberg/ledger-settlement-go/internal/domain"

	"go.uber.org/zap"
)

func TestHandleServiceError_Mapping(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{&domain.ErrNotFound{Resource: "profile", ID: "x"}, http.StatusNotFound},
		{&domain.ErrValidation{Field: "amount", Message: "bad"}, http.StatusBadRequest},
		{&domain.ErrSameAccount{AccountID: "a"}, http.StatusBadRequest},
		{&domain.ErrInvalidState{TransactionID: "t", Current: domain.StatusCompleted}, http.StatusConflict},
		{&domain.ErrConflict{Message: "exists"}, http.StatusConflict},
		{&domain.ErrInsufficientFunds{AccountID: "a"}, http.StatusUnprocessableEntity},
		{&domain.ErrAccountSuspended{AccountID: "a"}, http.StatusUnprocessableEntity},
		{&domain.ErrContention{ProfileID: "p", Attempts: 3}, http.StatusServiceUnavailable},
		{&domain.ErrTimeout{Operation: "Debit"}, http.StatusGatewayTimeout},
		{&domain.ErrUnauthorized{}, http.StatusUnauthorized},
		{&domain.ErrForbidden{Action: "x"}, http.StatusForbidden},
		{fmt.Errorf("wrapped: %w", &domain.ErrNotFound{Resource: "account", ID: "y"}), http.StatusNotFound},
		{errors.New("boom"), http.StatusInternalServerError},
		{&domain.ErrCircuitOpen{Service: "webhook"}, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%T", tt.err), func(t *testing.T) {
			rec := httptest.NewRecorder()
			handleServiceError(rec, tt.err, zap.NewNop())
			if rec.Code != tt.want {
				t.Errorf("expected %d, got %d", tt.want, rec.Code)
			}
		})
	}
}

func TestHandleServiceError_ContentionSetsRetryAfter(t *testing.T) {
	rec := httptest.NewRecorder()
	handleServiceError(rec, &domain.ErrContention{ProfileID: "p", Attempts: 3}, zap.NewNop())

	if rec.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}
}

func TestHandleServiceError_HidesInternalDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	handleServiceError(rec, errors.New("pq: password authentication failed"), zap.NewNop())

	if body := rec.Body.String(); body != "{\"error\":\"internal server error\"}\n" {
		t.Errorf("unexpected body %q", body)
	}
}
