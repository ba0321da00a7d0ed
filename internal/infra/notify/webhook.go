package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/boddenberg/ledger-settlement-go/internal/domain"
	"github.com/boddenberg/ledger-settlement-go/internal/infra/resilience"
	"github.com/boddenberg/ledger-settlement-go/internal/port"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("notify")

// Webhook POSTs TransferEvent JSON to a fixed URL.
type Webhook struct {
	httpClient *http.Client
	url        string
	cb         *gobreaker.CircuitBreaker
	policy     resilience.Policy
}

// NewWebhook creates a webhook notifier.
func NewWebhook(httpClient *http.Client, url string, cb *gobreaker.CircuitBreaker, policy resilience.Policy) *Webhook {
	return &Webhook{httpClient: httpClient, url: url, cb: cb, policy: policy}
}

func (w *Webhook) NotifyTransferRequested(ctx context.Context, profileID, transactionID string) error {
	return w.post(ctx, domain.TransferEvent{
		Event:         domain.EventTransferRequested,
		ProfileID:     profileID,
		TransactionID: transactionID,
	})
}

func (w *Webhook) NotifyTransferSettled(ctx context.Context, profileID, transactionID string, outcome domain.SettlementOutcome) error {
	return w.post(ctx, domain.TransferEvent{
		Event:         domain.EventTransferSettled,
		ProfileID:     profileID,
		TransactionID: transactionID,
		Outcome:       outcome,
	})
}

// post sends the event with retry inside the circuit breaker. 4xx answers
// are not retried.
func (w *Webhook) post(ctx context.Context, ev domain.TransferEvent) error {
	ctx, span := tracer.Start(ctx, "Webhook.post")
	defer span.End()
	span.SetAttributes(
		attribute.String("event", ev.Event),
		attribute.String("transaction.id", ev.TransactionID),
	)

	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	_, err = w.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, w.policy, func(ctx context.Context) error {
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
			if err != nil {
				return &resilience.Permanent{Err: err}
			}
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("User-Agent", "ledger-settlement-webhook/1.0")

			resp, err := w.httpClient.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			_, _ = io.Copy(io.Discard, resp.Body)

			switch {
			case resp.StatusCode >= 200 && resp.StatusCode < 300:
				return nil
			case resp.StatusCode >= 400 && resp.StatusCode < 500:
				return &resilience.Permanent{Err: fmt.Errorf("webhook rejected event: status %d", resp.StatusCode)}
			default:
				return fmt.Errorf("webhook returned status %d", resp.StatusCode)
			}
		})
	})

	if resilience.IsBreakerOpen(err) {
		return &domain.ErrCircuitOpen{Service: "webhook"}
	}
	if err != nil {
		return &domain.ErrExternalService{Service: "webhook", Err: err}
	}
	return nil
}

var _ port.Notifier = (*Webhook)(nil)
