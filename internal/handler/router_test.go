package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/boddenberg/ledger-settlement-go/internal/domain"
	"github.com/boddenberg/ledger-settlement-go/internal/handler"
	"github.com/boddenberg/ledger-settlement-go/internal/infra/cache"
	"github.com/boddenberg/ledger-settlement-go/internal/infra/observability"
	"github.com/boddenberg/ledger-settlement-go/internal/infra/store/memory"
	"github.com/boddenberg/ledger-settlement-go/internal/service"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func TestHealthz(t *testing.T) {
	router := handler.NewRouter(nil, nil, nil, nil, observability.NewMetrics(), zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestReadyz(t *testing.T) {
	router := handler.NewRouter(nil, nil, nil, nil, observability.NewMetrics(), zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestReadyz_DependencyDown(t *testing.T) {
	checks := []handler.HealthCheck{{Name: "redis", Ping: func(context.Context) error { return errors.New("connection refused") }}}
	router := handler.NewRouter(nil, nil, nil, checks, observability.NewMetrics(), zap.NewNop())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	report := decode[domain.HealthReport](t, rec)
	if report.Status != "unavailable" || len(report.Dependencies) != 1 || report.Dependencies[0].Error != "connection refused" {
		t.Errorf("unexpected report: %+v", report)
	}
}

func TestMetrics(t *testing.T) {
	router := handler.NewRouter(nil, nil, nil, nil, observability.NewMetrics(), zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

// --- API ---

type apiFixture struct {
	t        *testing.T
	router   http.Handler
	auth     *service.AuthService
	metrics  *observability.Metrics
	user     string
	operator string
}

func newAPI(t *testing.T, operatorKeyHash string) *apiFixture {
	t.Helper()
	metrics := observability.NewMetrics()
	ledger := service.NewLedgerService(memory.New(), nil, metrics, zap.NewNop(), service.Options{})
	auth := service.NewAuthService("test-secret", operatorKeyHash, time.Hour, zap.NewNop())
	idem := cache.New[handler.CachedResponse](time.Minute)
	t.Cleanup(idem.Stop)

	user, err := auth.IssueToken("alice", service.RoleUser)
	if err != nil {
		t.Fatal(err)
	}
	operator, err := auth.IssueToken("bob", service.RoleOperator)
	if err != nil {
		t.Fatal(err)
	}

	return &apiFixture{
		t:        t,
		router:   handler.NewRouter(ledger, auth, idem, nil, metrics, zap.NewNop()),
		auth:     auth,
		metrics:  metrics,
		user:     user,
		operator: operator,
	}
}

func (a *apiFixture) do(method, path, token string, body any, headers ...string) *httptest.ResponseRecorder {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			a.t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, rec.Body.String())
	}
	return v
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("expected %d, got %d: %s", want, rec.Code, rec.Body.String())
	}
}

// openAndFund opens alice's profile and credits 100 to her checking account.
func (a *apiFixture) openAndFund() domain.Profile {
	a.t.Helper()
	rec := a.do(http.MethodPost, "/v1/profiles/alice", a.user, nil)
	expectStatus(a.t, rec, http.StatusCreated)
	p := decode[domain.Profile](a.t, rec)

	rec = a.do(http.MethodPost, "/v1/ops/profiles/alice/accounts/"+p.Accounts[0].ID+"/credit", a.operator,
		domain.AdjustmentRequest{Amount: decimal.NewFromInt(100), Reason: "opening deposit"})
	expectStatus(a.t, rec, http.StatusCreated)
	return p
}

func (a *apiFixture) balances() map[string]decimal.Decimal {
	a.t.Helper()
	rec := a.do(http.MethodGet, "/v1/profiles/alice/accounts", a.user, nil)
	expectStatus(a.t, rec, http.StatusOK)
	out := map[string]decimal.Decimal{}
	for _, acct := range decode[domain.ListResponse[domain.Account]](a.t, rec).Data {
		out[acct.ID] = acct.Balance
	}
	return out
}

func TestAuth_Enforcement(t *testing.T) {
	api := newAPI(t, "")
	api.openAndFund()

	mallory, _ := api.auth.IssueToken("mallory", service.RoleUser)

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		want   int
	}{
		{"no token", http.MethodGet, "/v1/profiles/alice", "", http.StatusUnauthorized},
		{"garbage token", http.MethodGet, "/v1/profiles/alice", "garbage", http.StatusUnauthorized},
		{"other user's profile", http.MethodGet, "/v1/profiles/alice", mallory, http.StatusForbidden},
		{"user on operator route", http.MethodGet, "/v1/ops/profiles/alice", api.user, http.StatusForbidden},
		{"operator on user route", http.MethodGet, "/v1/profiles/alice", api.operator, http.StatusForbidden},
		{"owner", http.MethodGet, "/v1/profiles/alice", api.user, http.StatusOK},
		{"operator", http.MethodGet, "/v1/ops/profiles/alice", api.operator, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := api.do(tt.method, tt.path, tt.token, nil)
			if rec.Code != tt.want {
				t.Errorf("expected %d, got %d: %s", tt.want, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestOperatorKey(t *testing.T) {
	hash, err := service.HashOperatorKey("console-key")
	if err != nil {
		t.Fatal(err)
	}
	api := newAPI(t, hash)
	api.openAndFund()

	rec := api.do(http.MethodGet, "/v1/ops/profiles/alice/transfers/pending", "", nil, handler.OperatorKeyHeader, "console-key")
	expectStatus(t, rec, http.StatusOK)

	rec = api.do(http.MethodGet, "/v1/ops/profiles/alice/transfers/pending", "", nil, handler.OperatorKeyHeader, "wrong")
	expectStatus(t, rec, http.StatusUnauthorized)
}

func TestInternalTransferFlow(t *testing.T) {
	api := newAPI(t, "")
	p := api.openAndFund()
	checking, savings := p.Accounts[0].ID, p.Accounts[1].ID

	rec := api.do(http.MethodPost, "/v1/profiles/alice/transfers/internal", api.user, domain.InternalTransferRequest{
		FromAccountID: checking, ToAccountID: savings, Amount: decimal.NewFromInt(40),
	})
	expectStatus(t, rec, http.StatusCreated)
	res := decode[domain.InternalTransferResult](t, rec)
	if !res.Debit.Amount.Equal(decimal.NewFromInt(-40)) {
		t.Errorf("unexpected debit leg: %s", res.Debit.Amount)
	}

	b := api.balances()
	if !b[checking].Equal(decimal.NewFromInt(60)) || !b[savings].Equal(decimal.NewFromInt(40)) {
		t.Errorf("unexpected balances: %v", b)
	}

	rec = api.do(http.MethodPost, "/v1/profiles/alice/transfers/internal", api.user, domain.InternalTransferRequest{
		FromAccountID: checking, ToAccountID: savings, Amount: decimal.NewFromInt(1000),
	})
	expectStatus(t, rec, http.StatusUnprocessableEntity)

	rec = api.do(http.MethodPost, "/v1/profiles/alice/transfers/internal", api.user, domain.InternalTransferRequest{
		FromAccountID: checking, ToAccountID: checking, Amount: decimal.NewFromInt(1),
	})
	expectStatus(t, rec, http.StatusBadRequest)
}

func TestExternalTransferFlow(t *testing.T) {
	api := newAPI(t, "")
	p := api.openAndFund()
	checking := p.Accounts[0].ID

	rec := api.do(http.MethodPost, "/v1/profiles/alice/beneficiaries", api.user, domain.Beneficiary{Name: "Acme", IBAN: "DE89370400440532013000"})
	expectStatus(t, rec, http.StatusCreated)
	ben := decode[domain.Beneficiary](t, rec)

	rec = api.do(http.MethodPost, "/v1/profiles/alice/transfers/external", api.user, domain.ExternalTransferRequest{
		FromAccountID: checking, BeneficiaryID: ben.ID, Amount: decimal.NewFromInt(25),
	})
	expectStatus(t, rec, http.StatusAccepted)
	tx := decode[domain.Transaction](t, rec)
	if tx.Status != domain.StatusPending {
		t.Fatalf("expected pending, got %s", tx.Status)
	}

	base := "/v1/ops/profiles/alice/transfers/" + tx.ID

	rec = api.do(http.MethodPost, base+"/execute", api.operator, nil)
	expectStatus(t, rec, http.StatusConflict)

	rec = api.do(http.MethodGet, "/v1/ops/profiles/alice/transfers/pending", api.operator, nil)
	expectStatus(t, rec, http.StatusOK)
	if pending := decode[domain.ListResponse[domain.Transaction]](t, rec); pending.Total != 1 {
		t.Errorf("expected 1 pending transfer, got %d", pending.Total)
	}

	expectStatus(t, api.do(http.MethodPost, base+"/validate", api.operator, nil), http.StatusOK)
	rec = api.do(http.MethodPost, base+"/execute", api.operator, nil)
	expectStatus(t, rec, http.StatusOK)
	if got := decode[domain.Transaction](t, rec); got.Status != domain.StatusCompleted {
		t.Errorf("expected completed, got %s", got.Status)
	}
	expectStatus(t, api.do(http.MethodPost, base+"/execute", api.operator, nil), http.StatusConflict)

	if b := api.balances(); !b[checking].Equal(decimal.NewFromInt(75)) {
		t.Errorf("expected 75, got %s", b[checking])
	}
}

func TestReconciliationRoutes(t *testing.T) {
	api := newAPI(t, "")
	p := api.openAndFund()
	checking := p.Accounts[0].ID
	credit := "/v1/ops/profiles/alice/accounts/" + checking + "/credit"

	rec := api.do(http.MethodPost, credit, api.operator, domain.AdjustmentRequest{Amount: decimal.NewFromInt(30)})
	expectStatus(t, rec, http.StatusCreated)
	thirty := decode[domain.Transaction](t, rec)

	rec = api.do(http.MethodPost, "/v1/ops/profiles/alice/transactions/delete", api.operator,
		domain.BulkDeleteRequest{IDs: []string{thirty.ID, "unknown"}})
	expectStatus(t, rec, http.StatusOK)
	if res := decode[domain.BulkDeleteResult](t, rec); res.Removed != 1 {
		t.Errorf("expected 1 removed, got %d", res.Removed)
	}
	if b := api.balances(); !b[checking].Equal(decimal.NewFromInt(100)) {
		t.Errorf("expected 100, got %s", b[checking])
	}

	expectStatus(t, api.do(http.MethodDelete, "/v1/ops/profiles/alice/transactions/"+thirty.ID, api.operator, nil), http.StatusNotFound)
	expectStatus(t, api.do(http.MethodDelete, "/v1/ops/profiles/alice/transactions", api.operator, nil), http.StatusOK)
	if b := api.balances(); !b[checking].IsZero() {
		t.Errorf("expected zero after delete-all, got %s", b[checking])
	}
}

func TestIdempotentReplay(t *testing.T) {
	api := newAPI(t, "")
	p := api.openAndFund()
	checking, savings := p.Accounts[0].ID, p.Accounts[1].ID
	body := domain.InternalTransferRequest{FromAccountID: checking, ToAccountID: savings, Amount: decimal.NewFromInt(10)}

	first := api.do(http.MethodPost, "/v1/profiles/alice/transfers/internal", api.user, body, handler.IdempotencyKeyHeader, "k-1")
	expectStatus(t, first, http.StatusCreated)
	second := api.do(http.MethodPost, "/v1/profiles/alice/transfers/internal", api.user, body, handler.IdempotencyKeyHeader, "k-1")
	expectStatus(t, second, http.StatusCreated)

	if second.Header().Get(handler.IdempotencyHitHeader) != "true" {
		t.Error("expected replay header on second response")
	}
	if first.Body.String() != second.Body.String() {
		t.Error("expected identical replayed body")
	}
	if b := api.balances(); !b[checking].Equal(decimal.NewFromInt(90)) {
		t.Errorf("expected a single debit, balance %s", b[checking])
	}
	if v := api.metrics.CounterValue("idempotency_hits"); v != 1 {
		t.Errorf("expected 1 idempotency hit, got %v", v)
	}
}

func TestInvalidBody(t *testing.T) {
	api := newAPI(t, "")
	api.openAndFund()

	req := httptest.NewRequest(http.MethodPost, "/v1/profiles/alice/beneficiaries", bytes.NewBufferString(`{"name":`))
	req.Header.Set("Authorization", "Bearer "+api.user)
	rec := httptest.NewRecorder()
	api.router.ServeHTTP(rec, req)

	expectStatus(t, rec, http.StatusBadRequest)
}
