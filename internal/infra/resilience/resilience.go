// Package resilience guards calls to collaborators the ledger does not
// control (webhook endpoints): retry with capped exponential backoff, a
// circuit breaker, and a non-blocking bulkhead for background work.
package resilience

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/sony/gobreaker"
)

// Policy controls RetryWithBackoff. MaxRetries counts retries after the first
// attempt; MaxBackoff caps a single wait (zero means uncapped).
type Policy struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// Permanent marks an error that retrying cannot fix (a 4xx answer, a request
// that cannot be built).
type Permanent struct {
	Err error
}

func (p *Permanent) Error() string { return p.Err.Error() }

func (p *Permanent) Unwrap() error { return p.Err }

// RetryWithBackoff calls fn until it succeeds, returns a *Permanent error, the
// policy is exhausted or ctx is done. A permanent error is unwrapped so the
// caller sees the cause.
func RetryWithBackoff(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(p.wait(attempt - 1))
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		var perm *Permanent
		if errors.As(lastErr, &perm) {
			return perm.Err
		}
	}
	return lastErr
}

// wait is InitialBackoff doubled per retry plus up to 50% jitter.
func (p Policy) wait(retry int) time.Duration {
	d := p.InitialBackoff << uint(retry)
	if d < 0 || (p.MaxBackoff > 0 && d > p.MaxBackoff) {
		d = p.MaxBackoff
	}
	if half := int64(d / 2); half > 0 {
		d += time.Duration(rand.Int63n(half))
	}
	return d
}

// BreakerSettings configures NewCircuitBreaker. Zero fields take defaults:
// trip after 5 requests with a 60% failure ratio, probe again after 10s.
type BreakerSettings struct {
	Name         string
	MinRequests  uint32
	FailureRatio float64
	OpenTimeout  time.Duration
}

// NewCircuitBreaker builds a gobreaker breaker. onChange may be nil.
func NewCircuitBreaker(s BreakerSettings, onChange func(name string, from, to gobreaker.State)) *gobreaker.CircuitBreaker {
	if s.MinRequests == 0 {
		s.MinRequests = 5
	}
	if s.FailureRatio <= 0 {
		s.FailureRatio = 0.6
	}
	if s.OpenTimeout <= 0 {
		s.OpenTimeout = 10 * time.Second
	}
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        s.Name,
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     s.OpenTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.Requests >= s.MinRequests &&
				float64(c.TotalFailures)/float64(c.Requests) >= s.FailureRatio
		},
		OnStateChange: onChange,
	})
}

// IsBreakerOpen reports whether err came from an open or saturated breaker
// rather than from the guarded call.
func IsBreakerOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

// Bulkhead caps the number of concurrent background jobs. It never blocks:
// callers that cannot get a slot shed the work.
type Bulkhead struct {
	sem chan struct{}
}

// NewBulkhead creates a bulkhead with n slots (at least one).
func NewBulkhead(n int) *Bulkhead {
	if n <= 0 {
		n = 1
	}
	return &Bulkhead{sem: make(chan struct{}, n)}
}

// TryAcquire takes a slot if one is free.
func (b *Bulkhead) TryAcquire() bool {
	select {
	case b.sem <- struct{}{}:
		return true
	default:
		return false
	}
}

// Release frees a slot taken by TryAcquire.
func (b *Bulkhead) Release() {
	<-b.sem
}

// InFlight returns the number of occupied slots.
func (b *Bulkhead) InFlight() int {
	return len(b.sem)
}
