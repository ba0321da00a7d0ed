package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/boddenberg/ledger-settlement-go/internal/domain"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const healthProbeTimeout = 2 * time.Second

// HealthCheck probes one dependency for /healthz and /readyz.
type HealthCheck struct {
	Name string
	Ping func(ctx context.Context) error
}

// runChecks probes every dependency in parallel.
func runChecks(ctx context.Context, checks []HealthCheck) domain.HealthReport {
	deps := make([]domain.DependencyHealth, len(checks))

	var g errgroup.Group
	for i, c := range checks {
		g.Go(func() error {
			ctx, cancel := context.WithTimeout(ctx, healthProbeTimeout)
			defer cancel()

			start := time.Now()
			err := c.Ping(ctx)
			deps[i] = domain.DependencyHealth{
				Name:      c.Name,
				OK:        err == nil,
				LatencyMs: time.Since(start).Milliseconds(),
			}
			if err != nil {
				deps[i].Error = err.Error()
			}
			return nil
		})
	}
	_ = g.Wait()

	report := domain.HealthReport{Status: "ok", Dependencies: deps}
	for _, d := range deps {
		if !d.OK {
			report.Status = "unavailable"
		}
	}
	return report
}

// healthzHandler always answers 200 and reports dependency health in the body.
func healthzHandler(checks []HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, runChecks(r.Context(), checks))
	}
}

// readyzHandler answers 503 while any dependency is unreachable.
func readyzHandler(checks []HealthCheck, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := runChecks(r.Context(), checks)
		if report.Status != "ok" {
			logger.Warn("readiness check failed", zap.Any("dependencies", report.Dependencies))
			writeJSON(w, http.StatusServiceUnavailable, report)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}
