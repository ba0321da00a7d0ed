// Package notify delivers transfer events to the outside world. Delivery is
// fire-and-forget: the Dispatcher runs every call on a bounded background
// goroutine and only logs and counts failures.
package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/boddenberg/ledger-settlement-go/internal/domain"
	"github.com/boddenberg/ledger-settlement-go/internal/infra/observability"
	"github.com/boddenberg/ledger-settlement-go/internal/infra/resilience"
	"github.com/boddenberg/ledger-settlement-go/internal/port"

	"go.uber.org/zap"
)

// Dispatcher wraps a Notifier so that the ledger never waits for, or fails
// because of, a notification.
type Dispatcher struct {
	notifier port.Notifier
	bulkhead *resilience.Bulkhead
	timeout  time.Duration
	metrics  *observability.Metrics
	logger   *zap.Logger
	wg       sync.WaitGroup
}

// NewDispatcher creates a dispatcher allowing maxInFlight concurrent deliveries.
// Events beyond that are dropped and counted.
func NewDispatcher(n port.Notifier, maxInFlight int, timeout time.Duration, metrics *observability.Metrics, logger *zap.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Dispatcher{
		notifier: n,
		bulkhead: resilience.NewBulkhead(maxInFlight),
		timeout:  timeout,
		metrics:  metrics,
		logger:   logger,
	}
}

// TransferRequested schedules NotifyTransferRequested.
func (d *Dispatcher) TransferRequested(ctx context.Context, profileID, transactionID string) {
	d.dispatch(ctx, domain.EventTransferRequested, profileID, transactionID, func(ctx context.Context) error {
		return d.notifier.NotifyTransferRequested(ctx, profileID, transactionID)
	})
}

// TransferSettled schedules NotifyTransferSettled.
func (d *Dispatcher) TransferSettled(ctx context.Context, profileID, transactionID string, outcome domain.SettlementOutcome) {
	d.dispatch(ctx, domain.EventTransferSettled, profileID, transactionID, func(ctx context.Context) error {
		return d.notifier.NotifyTransferSettled(ctx, profileID, transactionID, outcome)
	})
}

// Wait blocks until every scheduled delivery has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) dispatch(ctx context.Context, event, profileID, transactionID string, send func(context.Context) error) {
	if d == nil || d.notifier == nil {
		return
	}
	if !d.bulkhead.TryAcquire() {
		d.metrics.IncrNotifyDropped()
		d.logger.Warn("notification dropped: dispatcher saturated",
			zap.String("event", event),
			zap.String("profile_id", profileID),
			zap.String("transaction_id", transactionID),
		)
		return
	}

	// Keep trace values but not the caller's cancellation.
	base := context.WithoutCancel(ctx)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer d.bulkhead.Release()

		ctx, cancel := context.WithTimeout(base, d.timeout)
		defer cancel()

		err := safeSend(ctx, send)
		if err == nil {
			d.logger.Debug("notification delivered",
				zap.String("event", event),
				zap.String("transaction_id", transactionID),
			)
			return
		}
		d.metrics.IncrNotifyFailure(event)
		d.logger.Warn("notification failed",
			zap.String("event", event),
			zap.String("profile_id", profileID),
			zap.String("transaction_id", transactionID),
			zap.Error(err),
		)
	}()
}

func safeSend(ctx context.Context, send func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("notifier panic: %v", r)
		}
	}()
	return send(ctx)
}

var _ port.TransferEvents = (*Dispatcher)(nil)
