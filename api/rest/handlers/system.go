package handlers

import (
	"net/http"

	"command-center/core/engine"
	"command-center/core/monitoring"
)

// SystemHandler serves credential status, health and metrics
type SystemHandler struct {
	engine  *engine.Engine
	metrics *monitoring.MetricsExporter
}

// NewSystemHandler creates a new system handler
func NewSystemHandler(eng *engine.Engine, metrics *monitoring.MetricsExporter) *SystemHandler {
	return &SystemHandler{engine: eng, metrics: metrics}
}

// AuthStatus handles GET /v1/auth/status
func (h *SystemHandler) AuthStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.AuthStatus())
}

// Health handles GET /health
func (h *SystemHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Metrics handles GET /metrics
func (h *SystemHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(h.metrics.GetPrometheusMetrics()))
}
