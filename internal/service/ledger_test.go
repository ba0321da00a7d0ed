package service_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/boddenberg/ledger-settlement-go/internal/domain"
	"github.com/boddenberg/ledger-settlement-go/internal/infra/observability"
	"github.com/boddenberg/ledger-settlement-go/internal/infra/store/memory"
	"github.com/boddenberg/ledger-settlement-go/internal/port"
	"github.com/boddenberg/ledger-settlement-go/internal/service"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// --- Fakes ---

type recordedEvent struct {
	event   string
	txID    string
	outcome domain.SettlementOutcome
}

type fakeEvents struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (f *fakeEvents) TransferRequested(_ context.Context, _, txID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, recordedEvent{event: domain.EventTransferRequested, txID: txID})
}

func (f *fakeEvents) TransferSettled(_ context.Context, _, txID string, outcome domain.SettlementOutcome) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, recordedEvent{event: domain.EventTransferSettled, txID: txID, outcome: outcome})
}

func (f *fakeEvents) All() []recordedEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedEvent(nil), f.events...)
}

// hookStore wraps a real store and lets a test intercept CompareAndSwap.
type hookStore struct {
	port.LedgerStore
	gets  atomic.Int32
	swaps atomic.Int32
	onGet func(ctx context.Context) error
	onCAS func(ctx context.Context, call int32) error
}

func (h *hookStore) Get(ctx context.Context, profileID string) (*domain.Profile, error) {
	h.gets.Add(1)
	if h.onGet != nil {
		if err := h.onGet(ctx); err != nil {
			return nil, err
		}
	}
	return h.LedgerStore.Get(ctx, profileID)
}

func (h *hookStore) CompareAndSwap(ctx context.Context, profileID string, expected int64, next *domain.Profile) (int64, error) {
	call := h.swaps.Add(1)
	if h.onCAS != nil {
		if err := h.onCAS(ctx, call); err != nil {
			return 0, err
		}
	}
	return h.LedgerStore.CompareAndSwap(ctx, profileID, expected, next)
}

// --- Helpers ---

type fixture struct {
	svc     *service.LedgerService
	store   *memory.Store
	metrics *observability.Metrics
	events  *fakeEvents
	profile string
	a, b    string // checking and savings account ids
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithStore(t, nil)
}

// newFixtureWithStore opens a profile on a memory store, then optionally
// routes the service through wrap(store).
func newFixtureWithStore(t *testing.T, wrap func(port.LedgerStore) port.LedgerStore) *fixture {
	t.Helper()
	mem := memory.New()
	f := &fixture{store: mem, metrics: observability.NewMetrics(), events: &fakeEvents{}, profile: "profile-1"}

	setup := service.NewLedgerService(mem, nil, f.metrics, zap.NewNop(), service.Options{})
	p, err := setup.OpenProfile(context.Background(), f.profile)
	if err != nil {
		t.Fatalf("OpenProfile: %v", err)
	}
	f.a, f.b = p.Accounts[0].ID, p.Accounts[1].ID

	var store port.LedgerStore = mem
	if wrap != nil {
		store = wrap(mem)
	}
	f.svc = service.NewLedgerService(store, f.events, f.metrics, zap.NewNop(), service.Options{
		MaxAttempts:  3,
		StoreTimeout: time.Second,
	})
	return f
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func (f *fixture) credit(t *testing.T, accountID, amount string) *domain.Transaction {
	t.Helper()
	tx, err := f.svc.Credit(context.Background(), f.profile, accountID, dec(amount), "seed")
	if err != nil {
		t.Fatalf("Credit: %v", err)
	}
	return tx
}

func (f *fixture) balance(t *testing.T, accountID string) decimal.Decimal {
	t.Helper()
	p, err := f.store.Get(context.Background(), f.profile)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	a := p.Account(accountID)
	if a == nil {
		t.Fatalf("account %s missing", accountID)
	}
	return a.Balance
}

func (f *fixture) snapshot(t *testing.T) *domain.Profile {
	t.Helper()
	p, err := f.store.Get(context.Background(), f.profile)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	return p
}

func assertBalance(t *testing.T, f *fixture, accountID, want string) {
	t.Helper()
	if got := f.balance(t, accountID); !got.Equal(dec(want)) {
		t.Errorf("account %s: expected balance %s, got %s", accountID, want, got.StringFixed(2))
	}
}

func assertReconciled(t *testing.T, f *fixture) {
	t.Helper()
	if bad := f.snapshot(t).Unreconciled(); len(bad) != 0 {
		t.Errorf("balances diverge from completed transactions on %v", bad)
	}
}

// --- Compare-and-swap mechanics ---

func TestCAS_RetriesAfterCompetingWrite(t *testing.T) {
	var competitor *service.LedgerService
	var f *fixture
	f = newFixtureWithStore(t, func(inner port.LedgerStore) port.LedgerStore {
		return &hookStore{LedgerStore: inner, onCAS: func(ctx context.Context, call int32) error {
			if call == 1 {
				// Another writer commits between our read and our swap.
				if _, err := competitor.Credit(ctx, f.profile, f.a, dec("10"), "competitor"); err != nil {
					t.Errorf("competitor credit: %v", err)
				}
			}
			return nil
		}}
	})
	competitor = service.NewLedgerService(f.store, nil, f.metrics, zap.NewNop(), service.Options{})

	if _, err := f.svc.Credit(context.Background(), f.profile, f.a, dec("5"), "mine"); err != nil {
		t.Fatalf("Credit: %v", err)
	}

	assertBalance(t, f, f.a, "15")
	if got := len(f.snapshot(t).Transactions); got != 2 {
		t.Errorf("expected 2 transactions, got %d", got)
	}
	if v := f.metrics.CounterValue("cas_conflicts", "Credit"); v != 1 {
		t.Errorf("expected 1 CAS conflict, got %v", v)
	}
	assertReconciled(t, f)
}

func TestCAS_ContentionAfterMaxAttempts(t *testing.T) {
	f := newFixtureWithStore(t, func(inner port.LedgerStore) port.LedgerStore {
		return &hookStore{LedgerStore: inner, onCAS: func(context.Context, int32) error {
			return domain.ErrVersionConflict
		}}
	})

	_, err := f.svc.Credit(context.Background(), f.profile, f.a, dec("5"), "")

	var contention *domain.ErrContention
	if !errors.As(err, &contention) {
		t.Fatalf("expected ErrContention, got %v", err)
	}
	if contention.Attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", contention.Attempts)
	}
	if !domain.IsRetryable(err) {
		t.Error("contention must be retryable")
	}
	if v := f.metrics.CounterValue("contention", "Credit"); v != 1 {
		t.Errorf("expected contention metric 1, got %v", v)
	}
	assertBalance(t, f, f.a, "0")
}

func TestCAS_CancelledContextIsNotRetried(t *testing.T) {
	var hs *hookStore
	f := newFixtureWithStore(t, func(inner port.LedgerStore) port.LedgerStore {
		hs = &hookStore{LedgerStore: inner}
		return hs
	})

	ctx, cancel := context.WithCancel(context.Background())
	hs.onCAS = func(context.Context, int32) error {
		cancel()
		return domain.ErrVersionConflict
	}

	_, err := f.svc.Credit(ctx, f.profile, f.a, dec("1"), "")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if n := hs.swaps.Load(); n != 1 {
		t.Errorf("expected exactly 1 swap attempt, got %d", n)
	}
	if domain.IsRetryable(err) {
		t.Error("cancellation must not be retryable")
	}
}

func TestCAS_AlreadyCancelledContextTouchesNothing(t *testing.T) {
	var hs *hookStore
	f := newFixtureWithStore(t, func(inner port.LedgerStore) port.LedgerStore {
		hs = &hookStore{LedgerStore: inner}
		return hs
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.svc.Credit(ctx, f.profile, f.a, dec("1"), "")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if hs.gets.Load() != 0 || hs.swaps.Load() != 0 {
		t.Errorf("expected no store calls, got %d gets / %d swaps", hs.gets.Load(), hs.swaps.Load())
	}
}

func TestCAS_StoreTimeoutMapsToTimeout(t *testing.T) {
	mem := memory.New()
	setup := service.NewLedgerService(mem, nil, observability.NewMetrics(), zap.NewNop(), service.Options{})
	p, err := setup.OpenProfile(context.Background(), "slow")
	if err != nil {
		t.Fatal(err)
	}

	slow := &hookStore{LedgerStore: mem, onCAS: func(ctx context.Context, _ int32) error {
		<-ctx.Done()
		return ctx.Err()
	}}
	svc := service.NewLedgerService(slow, nil, observability.NewMetrics(), zap.NewNop(), service.Options{
		StoreTimeout: 20 * time.Millisecond,
	})

	_, err = svc.Credit(context.Background(), "slow", p.Accounts[0].ID, dec("1"), "")
	var timeout *domain.ErrTimeout
	if !errors.As(err, &timeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if slow.swaps.Load() != 1 {
		t.Errorf("timeout must not be retried, got %d swaps", slow.swaps.Load())
	}
}

func TestCAS_CallerDeadlineMapsToTimeout(t *testing.T) {
	f := newFixture(t)

	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	_, err := f.svc.Credit(ctx, f.profile, f.a, dec("1"), "")
	var timeout *domain.ErrTimeout
	if !errors.As(err, &timeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestCAS_StoreFailureLeavesAggregateUnchanged(t *testing.T) {
	f := newFixtureWithStore(t, nil)
	f.credit(t, f.a, "100")
	before := f.snapshot(t)

	broken := service.NewLedgerService(&hookStore{LedgerStore: f.store, onCAS: func(context.Context, int32) error {
		return errors.New("write failed")
	}}, nil, f.metrics, zap.NewNop(), service.Options{})

	_, err := broken.TransferInternal(context.Background(), f.profile, domain.InternalTransferRequest{
		FromAccountID: f.a, ToAccountID: f.b, Amount: dec("40"),
	})
	if err == nil || err.Error() != "write failed" {
		t.Fatalf("expected store error, got %v", err)
	}

	after := f.snapshot(t)
	if after.Version != before.Version {
		t.Errorf("version changed from %d to %d", before.Version, after.Version)
	}
	assertBalance(t, f, f.a, "100")
	assertBalance(t, f, f.b, "0")
	if len(after.Transactions) != len(before.Transactions) {
		t.Errorf("expected %d transactions, got %d", len(before.Transactions), len(after.Transactions))
	}
}

func TestGetProfile_ReturnsIndependentCopies(t *testing.T) {
	f := newFixture(t)

	var wg sync.WaitGroup
	profiles := make([]*domain.Profile, 8)
	for i := range profiles {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p, err := f.svc.GetProfile(context.Background(), f.profile)
			if err != nil {
				t.Errorf("GetProfile: %v", err)
				return
			}
			profiles[i] = p
		}(i)
	}
	wg.Wait()

	profiles[0].Accounts[0].Balance = dec("999")
	for _, p := range profiles[1:] {
		if p != nil && p.Accounts[0].Balance.Equal(dec("999")) {
			t.Fatal("readers share one aggregate")
		}
	}
	assertBalance(t, f, f.a, "0")
}

func TestGetProfile_NotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.GetProfile(context.Background(), "ghost")
	var nf *domain.ErrNotFound
	if !errors.As(err, &nf) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGetProfile_CancelledReaderDoesNotFailJoinedReader(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	f := newFixtureWithStore(t, func(inner port.LedgerStore) port.LedgerStore {
		return &hookStore{LedgerStore: inner, onGet: func(ctx context.Context) error {
			once.Do(func() { close(entered) })
			select {
			case <-release:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}}
	})

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := f.svc.GetProfile(ctxA, f.profile)
		errA <- err
	}()
	<-entered

	type result struct {
		p   *domain.Profile
		err error
	}
	resB := make(chan result, 1)
	go func() {
		p, err := f.svc.GetProfile(context.Background(), f.profile)
		resB <- result{p, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancelA()
	select {
	case err := <-errA:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled for the cancelled reader, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("cancelled reader kept waiting for the shared load")
	}

	close(release)
	select {
	case r := <-resB:
		if r.err != nil {
			t.Fatalf("joined reader failed: %v", r.err)
		}
		if r.p == nil || r.p.ID != f.profile {
			t.Fatalf("unexpected profile: %+v", r.p)
		}
	case <-time.After(time.Second):
		t.Fatal("joined reader never returned")
	}
}
