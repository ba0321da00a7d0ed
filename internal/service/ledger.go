// Package service provides the business logic layer (use cases).
// LedgerService owns every balance-changing operation: fund adjustments,
// internal transfers, the external transfer workflow, reconciliation and
// the beneficiary registry. All writes go through an optimistic
// compare-and-swap loop over the profile aggregate.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/boddenberg/ledger-settlement-go/internal/domain"
	"github.com/boddenberg/ledger-settlement-go/internal/infra/observability"
	"github.com/boddenberg/ledger-settlement-go/internal/port"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

var ledgerTracer = otel.Tracer("service/ledger")

// Defaults applied when Options leaves a field at zero.
const (
	DefaultMaxAttempts  = 3
	DefaultStoreTimeout = 5 * time.Second
)

// Options tunes the compare-and-swap loop.
type Options struct {
	// MaxAttempts bounds read-modify-CAS cycles per operation.
	MaxAttempts int
	// StoreTimeout is applied to every individual store call.
	StoreTimeout time.Duration
}

// LedgerService orchestrates all ledger operations on top of a LedgerStore.
type LedgerService struct {
	store   port.LedgerStore
	events  port.TransferEvents
	metrics *observability.Metrics
	logger  *zap.Logger

	maxAttempts  int
	storeTimeout time.Duration

	reads singleflight.Group
	now   func() time.Time
	newID func() string
}

// NewLedgerService creates a new ledger service. events may be nil.
func NewLedgerService(store port.LedgerStore, events port.TransferEvents, metrics *observability.Metrics, logger *zap.Logger, opts Options) *LedgerService {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = DefaultStoreTimeout
	}
	return &LedgerService{
		store:        store,
		events:       events,
		metrics:      metrics,
		logger:       logger,
		maxAttempts:  opts.MaxAttempts,
		storeTimeout: opts.StoreTimeout,
		now:          func() time.Time { return time.Now().UTC() },
		newID:        uuid.NewString,
	}
}

// mutation is a pure change applied to a private copy of the aggregate.
// Returning an error aborts the operation without writing anything.
type mutation func(p *domain.Profile) error

// mutate runs fn through the compare-and-swap loop and records the outcome.
func (s *LedgerService) mutate(ctx context.Context, op, profileID string, fn mutation) (*domain.Profile, error) {
	start := time.Now()
	p, err := s.casLoop(ctx, op, profileID, fn)
	s.metrics.RecordOperation(op, resultLabel(err), time.Since(start))
	if err != nil {
		span := trace.SpanFromContext(ctx)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return p, err
}

func (s *LedgerService) casLoop(ctx context.Context, op, profileID string, fn mutation) (*domain.Profile, error) {
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		current, err := s.load(ctx, op, profileID)
		if err != nil {
			return nil, err
		}

		next := current.Clone()
		if err := fn(next); err != nil {
			return nil, err
		}
		next.UpdatedAt = s.now()

		var version int64
		err = s.call(ctx, op, func(ctx context.Context) error {
			var err error
			version, err = s.store.CompareAndSwap(ctx, profileID, current.Version, next)
			return err
		})
		if err == nil {
			next.Version = version
			return next, nil
		}
		if !errors.Is(err, domain.ErrVersionConflict) {
			return nil, err
		}

		s.metrics.IncrCASConflict(op)
		s.logger.Debug("version conflict, retrying",
			zap.String("operation", op),
			zap.String("profile_id", profileID),
			zap.Int64("expected_version", current.Version),
			zap.Int("attempt", attempt),
		)
	}

	s.metrics.IncrContention(op)
	s.logger.Warn("compare-and-swap retries exhausted",
		zap.String("operation", op),
		zap.String("profile_id", profileID),
		zap.Int("attempts", s.maxAttempts),
	)
	return nil, &domain.ErrContention{ProfileID: profileID, Attempts: s.maxAttempts}
}

// load reads the freshest aggregate straight from the store.
func (s *LedgerService) load(ctx context.Context, op, profileID string) (*domain.Profile, error) {
	var p *domain.Profile
	err := s.call(ctx, op, func(ctx context.Context) error {
		var err error
		p, err = s.store.Get(ctx, profileID)
		return err
	})
	return p, err
}

// read serves GetProfile-style queries. Concurrent reads of one profile
// share a single store round trip; every caller gets its own copy. The
// shared load is detached from the caller that started it, so one caller
// giving up only ends its own wait.
func (s *LedgerService) read(ctx context.Context, op, profileID string) (*domain.Profile, error) {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		err = contextError(op, err)
		s.metrics.RecordOperation(op, resultLabel(err), time.Since(start))
		return nil, err
	}

	flight := s.reads.DoChan(profileID, func() (any, error) {
		return s.load(context.WithoutCancel(ctx), op, profileID)
	})

	var (
		p   *domain.Profile
		err error
	)
	select {
	case res := <-flight:
		err = res.Err
		if err == nil {
			p = res.Val.(*domain.Profile).Clone()
		}
	case <-ctx.Done():
		err = contextError(op, ctx.Err())
	}
	s.metrics.RecordOperation(op, resultLabel(err), time.Since(start))
	return p, err
}

// call runs one store operation under the per-call timeout and normalizes
// context errors: caller cancellation is returned unchanged, any deadline
// becomes *domain.ErrTimeout.
func (s *LedgerService) call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return contextError(op, err)
	}

	callCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	err := fn(callCtx)
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return contextError(op, ctxErr)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return &domain.ErrTimeout{Operation: op}
	}
	return err
}

func contextError(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &domain.ErrTimeout{Operation: op}
	}
	return err
}

// ============================================================
// Helpers shared by the operation files
// ============================================================

// normalizeAmount rounds to cents and rejects non-positive amounts.
func normalizeAmount(amount decimal.Decimal) (decimal.Decimal, error) {
	amount = amount.Round(2)
	if !amount.IsPositive() {
		return amount, &domain.ErrValidation{Field: "amount", Message: "must be greater than zero"}
	}
	return amount, nil
}

func requireID(field, value string) error {
	if value == "" {
		return &domain.ErrValidation{Field: field, Message: "is required"}
	}
	return nil
}

func findAccount(p *domain.Profile, accountID string) (*domain.Account, error) {
	a := p.Account(accountID)
	if a == nil {
		return nil, &domain.ErrNotFound{Resource: "account", ID: accountID}
	}
	return a, nil
}

func findTransaction(p *domain.Profile, txID string) (*domain.Transaction, error) {
	tx := p.Transaction(txID)
	if tx == nil {
		return nil, &domain.ErrNotFound{Resource: "transaction", ID: txID}
	}
	return tx, nil
}

// debitable checks status and funds before money leaves an account.
func debitable(a *domain.Account, amount decimal.Decimal) error {
	if a.Status == domain.AccountSuspended {
		return &domain.ErrAccountSuspended{AccountID: a.ID}
	}
	if !a.CanDebit(amount) {
		return &domain.ErrInsufficientFunds{AccountID: a.ID, Available: a.Balance, Required: amount}
	}
	return nil
}

func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	var (
		notFound     *domain.ErrNotFound
		invalidState *domain.ErrInvalidState
		funds        *domain.ErrInsufficientFunds
		contention   *domain.ErrContention
		timeout      *domain.ErrTimeout
		validation   *domain.ErrValidation
	)
	switch {
	case errors.As(err, &notFound):
		return "not_found"
	case errors.As(err, &invalidState):
		return "invalid_state"
	case errors.As(err, &funds):
		return "insufficient_funds"
	case errors.As(err, &contention):
		return "contention"
	case errors.As(err, &timeout):
		return "timeout"
	case errors.As(err, &validation):
		return "validation"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "error"
	}
}

func (s *LedgerService) transferRequested(ctx context.Context, profileID, txID string) {
	if s.events != nil {
		s.events.TransferRequested(ctx, profileID, txID)
	}
}

func (s *LedgerService) transferSettled(ctx context.Context, profileID, txID string, outcome domain.SettlementOutcome) {
	if s.events != nil {
		s.events.TransferSettled(ctx, profileID, txID, outcome)
	}
}

func profileAttr(profileID string) attribute.KeyValue {
	return attribute.String("profile.id", profileID)
}
