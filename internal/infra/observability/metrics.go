package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Metrics holds all Prometheus metrics for the ledger.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	operationDuration *prometheus.HistogramVec
	operationsTotal   *prometheus.CounterVec
	casConflicts      *prometheus.CounterVec
	contention        *prometheus.CounterVec
	notifyFailures    *prometheus.CounterVec
	notifyDropped     prometheus.Counter
	idempotencyHits   prometheus.Counter
	breakerState      *prometheus.GaugeVec
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// ledger metrics in it. Using a private registry avoids "duplicate
// collector" panics when NewMetrics is called more than once (e.g. in tests).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		operationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ledger_operation_duration_seconds",
				Help:    "Duration of ledger operations.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		operationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_operations_total",
				Help: "Ledger operations by result.",
			},
			[]string{"operation", "result"},
		),
		casConflicts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_cas_conflicts_total",
				Help: "Compare-and-swap attempts rejected because of a stale version.",
			},
			[]string{"operation"},
		),
		contention: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_contention_total",
				Help: "Operations that exhausted their compare-and-swap retries.",
			},
			[]string{"operation"},
		),
		notifyFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_notification_failures_total",
				Help: "Notifications that failed to deliver.",
			},
			[]string{"event"},
		),
		notifyDropped: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "ledger_notifications_dropped_total",
				Help: "Notifications dropped because the dispatcher was saturated.",
			},
		),
		idempotencyHits: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "ledger_idempotency_hits_total",
				Help: "Requests answered from the idempotency cache.",
			},
		),
		breakerState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "ledger_circuit_breaker_state",
				Help: "Circuit breaker state (0 closed, 1 half-open, 2 open).",
			},
			[]string{"name"},
		),
	}
}

// RecordOperation records the duration and result ("ok" or an error class) of an operation.
func (m *Metrics) RecordOperation(operation, result string, d time.Duration) {
	m.operationDuration.WithLabelValues(operation).Observe(d.Seconds())
	m.operationsTotal.WithLabelValues(operation, result).Inc()
}

// IncrCASConflict counts a stale-version rejection.
func (m *Metrics) IncrCASConflict(operation string) {
	m.casConflicts.WithLabelValues(operation).Inc()
}

// IncrContention counts an exhausted retry budget.
func (m *Metrics) IncrContention(operation string) {
	m.contention.WithLabelValues(operation).Inc()
}

// IncrNotifyFailure counts a failed notification delivery.
func (m *Metrics) IncrNotifyFailure(event string) {
	m.notifyFailures.WithLabelValues(event).Inc()
}

// IncrNotifyDropped counts a notification that was never attempted.
func (m *Metrics) IncrNotifyDropped() {
	m.notifyDropped.Inc()
}

// IncrIdempotencyHit counts a replayed response.
func (m *Metrics) IncrIdempotencyHit() {
	m.idempotencyHits.Inc()
}

// SetBreakerState publishes a circuit breaker state.
func (m *Metrics) SetBreakerState(name string, state float64) {
	m.breakerState.WithLabelValues(name).Set(state)
}

// CounterValue returns the current value of a labelled ledger counter.
// Used by tests and the health endpoint; unknown names return 0.
func (m *Metrics) CounterValue(name string, labels ...string) float64 {
	var c prometheus.Counter
	switch name {
	case "operations":
		c = m.operationsTotal.WithLabelValues(labels...)
	case "cas_conflicts":
		c = m.casConflicts.WithLabelValues(labels...)
	case "contention":
		c = m.contention.WithLabelValues(labels...)
	case "notify_failures":
		c = m.notifyFailures.WithLabelValues(labels...)
	case "notify_dropped":
		c = m.notifyDropped
	case "idempotency_hits":
		c = m.idempotencyHits
	default:
		return 0
	}
	return getCounterValue(c)
}

// getCounterValue extracts the current float64 value from a counter.
func getCounterValue(counter prometheus.Counter) float64 {
	m := &dto.Metric{}
	if err := counter.Write(m); err != nil {
		return 0
	}
	if m.Counter != nil && m.Counter.Value != nil {
		return *m.Counter.Value
	}
	return 0
}
