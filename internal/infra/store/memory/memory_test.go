package memory_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/boddenberg/ledger-settlement-go/internal/domain"
	"github.com/boddenberg/ledger-settlement-go/internal/infra/store/memory"

	"github.com/shopspring/decimal"
)

func seed(t *testing.T, s *memory.Store) {
	t.Helper()
	p := &domain.Profile{
		ID: "p-1",
		Accounts: []domain.Account{
			{ID: "a-1", Kind: domain.AccountChecking, Balance: decimal.NewFromInt(100), Currency: domain.Currency, Status: domain.AccountActive},
		},
	}
	if err := s.Create(context.Background(), p); err != nil {
		t.Fatalf("create: %v", err)
	}
}

func TestStore_GetMissing(t *testing.T) {
	s := memory.New()

	_, err := s.Get(context.Background(), "nope")
	var nf *domain.ErrNotFound
	if !errors.As(err, &nf) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStore_CreateTwice(t *testing.T) {
	s := memory.New()
	seed(t, s)

	err := s.Create(context.Background(), &domain.Profile{ID: "p-1"})
	var conflict *domain.ErrConflict
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestStore_CompareAndSwap(t *testing.T) {
	s := memory.New()
	seed(t, s)
	ctx := context.Background()

	p, _ := s.Get(ctx, "p-1")
	if p.Version != 1 {
		t.Fatalf("expected version 1, got %d", p.Version)
	}
	p.Accounts[0].Balance = decimal.NewFromInt(50)

	v, err := s.CompareAndSwap(ctx, "p-1", 1, p)
	if err != nil {
		t.Fatalf("cas: %v", err)
	}
	if v != 2 {
		t.Errorf("expected version 2, got %d", v)
	}

	// stale version
	if _, err := s.CompareAndSwap(ctx, "p-1", 1, p); !errors.Is(err, domain.ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}

	got, _ := s.Get(ctx, "p-1")
	if !got.Accounts[0].Balance.Equal(decimal.NewFromInt(50)) {
		t.Errorf("expected balance 50, got %s", got.Accounts[0].Balance)
	}
}

func TestStore_GetReturnsCopy(t *testing.T) {
	s := memory.New()
	seed(t, s)
	ctx := context.Background()

	p, _ := s.Get(ctx, "p-1")
	p.Accounts[0].Balance = decimal.NewFromInt(-1)

	again, _ := s.Get(ctx, "p-1")
	if !again.Accounts[0].Balance.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("store state leaked through Get: %s", again.Accounts[0].Balance)
	}
}

func TestStore_ConcurrentCASOnlyOneWins(t *testing.T) {
	s := memory.New()
	seed(t, s)
	ctx := context.Background()

	const workers = 20
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, _ := s.Get(ctx, "p-1")
			p.Version = 1
			if _, err := s.CompareAndSwap(ctx, "p-1", 1, p); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Fatalf("expected exactly one CAS winner, got %d", wins)
	}
}

func TestStore_CancelledContext(t *testing.T) {
	s := memory.New()
	seed(t, s)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := s.Get(ctx, "p-1"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
