// Package memory provides an in-process Ledger Store. It keeps one versioned
// Profile per key behind a RWMutex and is the default backend for local runs
// and tests.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/boddenberg/ledger-settlement-go/internal/domain"
	"github.com/boddenberg/ledger-settlement-go/internal/port"
)

// Store is a thread-safe map of profile id to aggregate.
type Store struct {
	mu       sync.RWMutex
	profiles map[string]*domain.Profile
	now      func() time.Time
}

// New creates an empty store.
func New() *Store {
	return &Store{
		profiles: make(map[string]*domain.Profile),
		now:      time.Now,
	}
}

// Get returns a deep copy of the stored aggregate.
func (s *Store) Get(ctx context.Context, profileID string) (*domain.Profile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profiles[profileID]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "profile", ID: profileID}
	}
	return p.Clone(), nil
}

// Create stores profile at version 1.
func (s *Store) Create(ctx context.Context, profile *domain.Profile) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.profiles[profile.ID]; exists {
		return &domain.ErrConflict{Message: "profile already exists: " + profile.ID}
	}
	cp := profile.Clone()
	cp.Version = 1
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = s.now()
	}
	cp.UpdatedAt = cp.CreatedAt
	s.profiles[cp.ID] = cp
	profile.Version = 1
	return nil
}

// CompareAndSwap replaces the aggregate when the stored version matches.
func (s *Store) CompareAndSwap(ctx context.Context, profileID string, expectedVersion int64, next *domain.Profile) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.profiles[profileID]
	if !ok {
		return 0, &domain.ErrNotFound{Resource: "profile", ID: profileID}
	}
	if cur.Version != expectedVersion {
		return 0, domain.ErrVersionConflict
	}

	cp := next.Clone()
	cp.ID = profileID
	cp.Version = expectedVersion + 1
	cp.CreatedAt = cur.CreatedAt
	cp.UpdatedAt = s.now()
	s.profiles[profileID] = cp
	return cp.Version, nil
}

var _ port.LedgerStore = (*Store)(nil)
