package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/Nihar1310/SalesAgent-sub001/pkg/services"
)

// TelemetryHandler reports extraction quality and cost.
type TelemetryHandler struct {
	telemetry services.TelemetryService
	logger    *zap.Logger
}

// NewTelemetryHandler creates a new TelemetryHandler.
func NewTelemetryHandler(telemetry services.TelemetryService, logger *zap.Logger) *TelemetryHandler {
	return &TelemetryHandler{telemetry: telemetry, logger: logger}
}

// RegisterRoutes registers the telemetry routes on the given mux.
func (h *TelemetryHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/telemetry/stats", h.Stats)
	mux.HandleFunc("GET /api/telemetry/failures", h.Failures)
}

// Stats handles GET /api/telemetry/stats?since=
func (h *TelemetryHandler) Stats(w http.ResponseWriter, r *http.Request) {
	since, ok := parseTimeParam(w, r, "since", h.logger)
	if !ok {
		return
	}
	stats, err := h.telemetry.Stats(r.Context(), since)
	if err != nil {
		writeServiceError(w, h.logger, err, "telemetry_stats_failed")
		return
	}
	writeData(w, h.logger, http.StatusOK, stats)
}

// Failures handles GET /api/telemetry/failures?limit=
func (h *TelemetryHandler) Failures(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r, h.logger)
	if !ok {
		return
	}
	patterns, err := h.telemetry.FailurePatterns(r.Context(), limit)
	if err != nil {
		writeServiceError(w, h.logger, err, "failure_patterns_failed")
		return
	}
	writeData(w, h.logger, http.StatusOK, patterns)
}
