// Package server exposes the pipeline's operational HTTP surface in
// serve mode: health probes, Prometheus metrics and the last run report.
package server

import (
	"encoding/json"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sentinelworks/ise-enrich/internal/models"
)

// ReportSource exposes the most recent run report.
type ReportSource interface {
	LastReport() *models.PipelineRunReport
}

// Handler serves the operational endpoints.
type Handler struct {
	reports ReportSource
	ready   func() bool
}

// NewHandler creates a Handler. ready reports whether the pipeline's
// dependencies have been wired; nil means always ready.
func NewHandler(reports ReportSource, ready func() bool) *Handler {
	if ready == nil {
		ready = func() bool { return true }
	}
	return &Handler{reports: reports, ready: ready}
}

// NewRouter constructs a ServeMux with the operational routes registered.
func NewRouter(h *Handler) http.Handler {
	mux := http.NewServeMux()

	// Health endpoints
	mux.HandleFunc("/healthz", h.Health)
	mux.HandleFunc("/readyz", h.Ready)

	// Run report
	mux.HandleFunc("/api/v1/report/last", h.LastReport)

	// Prometheus metrics
	mux.Handle("/metrics", promhttp.Handler())

	return mux
}

// Health always reports healthy while the process is up.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Ready reports whether the pipeline can run cycles.
func (h *Handler) Ready(w http.ResponseWriter, _ *http.Request) {
	if !h.ready() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// LastReport returns the most recent run report, or 404 before the first
// run.
func (h *Handler) LastReport(w http.ResponseWriter, _ *http.Request) {
	report := h.reports.LastReport()
	if report == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no completed runs"})
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
