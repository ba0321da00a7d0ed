// Package port defines the interfaces (ports) for external dependencies.
// Following hexagonal architecture, these ports decouple the service layer
// from concrete stores and notification channels.
package port

import (
	"context"

	"github.com/boddenberg/ledger-settlement-go/internal/domain"
)

// LedgerStore persists one Profile aggregate per user with optimistic
// concurrency. Implementations must return deep copies and must write the
// whole aggregate atomically.
type LedgerStore interface {
	// Get returns the current aggregate or *domain.ErrNotFound.
	Get(ctx context.Context, profileID string) (*domain.Profile, error)

	// Create stores a new aggregate at version 1, or returns *domain.ErrConflict.
	Create(ctx context.Context, profile *domain.Profile) error

	// CompareAndSwap replaces the aggregate only if its stored version equals
	// expectedVersion. It returns the new version, domain.ErrVersionConflict
	// on a stale version, or *domain.ErrNotFound.
	CompareAndSwap(ctx context.Context, profileID string, expectedVersion int64, next *domain.Profile) (int64, error)
}

// Notifier receives settlement events. Calls are best-effort: a failure is
// logged by the caller and never rolls back the ledger.
type Notifier interface {
	NotifyTransferRequested(ctx context.Context, profileID, transactionID string) error
	NotifyTransferSettled(ctx context.Context, profileID, transactionID string, outcome domain.SettlementOutcome) error
}

// Cache provides generic caching with TTL.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, value T)
	Delete(key string)
}

// TransferEvents schedules best-effort notifications. Implementations must
// not block the caller and must not report delivery errors.
type TransferEvents interface {
	TransferRequested(ctx context.Context, profileID, transactionID string)
	TransferSettled(ctx context.Context, profileID, transactionID string, outcome domain.SettlementOutcome)
}
