package handler

import (
	"context"
	"net/http"

	"github.com/sakif/debugging-platform/internal/health"
	"github.com/sakif/debugging-platform/internal/metrics"
)

// HealthReporter is the part of health.Checker the handlers use.
type HealthReporter interface {
	Status(ctx context.Context) health.Report
	System(ctx context.Context) health.SystemMetrics
}

// ObservabilityHandler serves the health report and the admin metrics view.
type ObservabilityHandler struct {
	health  HealthReporter
	metrics *metrics.Sink
}

// NewObservabilityHandler creates an ObservabilityHandler.
func NewObservabilityHandler(h HealthReporter, sink *metrics.Sink) *ObservabilityHandler {
	return &ObservabilityHandler{health: h, metrics: sink}
}

// MetricsResponse is the admin metrics payload.
type MetricsResponse struct {
	metrics.Snapshot
	System health.SystemMetrics `json:"system"`
}

// HandleHealth reports liveness for load balancers and the healthcheck command.
//
// HTTP: GET /healthz
// 200 when healthy, 503 otherwise. The body is the full report either way.
func (h *ObservabilityHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	report := h.health.Status(r.Context())

	status := http.StatusOK
	if !report.Healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report)
}

// HandleMetrics returns the metrics snapshot plus host resource usage.
//
// HTTP: GET /api/admin/metrics
// Auth: admin role
func (h *ObservabilityHandler) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, MetricsResponse{
		Snapshot: h.metrics.Snapshot(),
		System:   h.health.System(r.Context()),
	})
}
