package notify

import (
	"context"

	"github.com/boddenberg/ledger-settlement-go/internal/domain"
	"github.com/boddenberg/ledger-settlement-go/internal/port"

	"golang.org/x/sync/errgroup"
)

// Multi fans every event out to all notifiers in parallel. It returns the
// first error, after all notifiers have finished.
type Multi []port.Notifier

func (m Multi) NotifyTransferRequested(ctx context.Context, profileID, transactionID string) error {
	return m.each(ctx, func(ctx context.Context, n port.Notifier) error {
		return n.NotifyTransferRequested(ctx, profileID, transactionID)
	})
}

func (m Multi) NotifyTransferSettled(ctx context.Context, profileID, transactionID string, outcome domain.SettlementOutcome) error {
	return m.each(ctx, func(ctx context.Context, n port.Notifier) error {
		return n.NotifyTransferSettled(ctx, profileID, transactionID, outcome)
	})
}

func (m Multi) each(ctx context.Context, fn func(context.Context, port.Notifier) error) error {
	// No WithContext: one failing sink must not cancel the others.
	var g errgroup.Group
	for _, n := range m {
		n := n
		g.Go(func() error { return fn(ctx, n) })
	}
	return g.Wait()
}
