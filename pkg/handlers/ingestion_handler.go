package handlers

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/Nihar1310/SalesAgent-sub001/pkg/repositories"
	"github.com/Nihar1310/SalesAgent-sub001/pkg/services"
)

// RunIngestionRequest for POST /api/ingestion/run. Every field is optional.
type RunIngestionRequest struct {
	After       string `json:"after,omitempty"`
	Before      string `json:"before,omitempty"`
	MaxMessages int    `json:"max_messages,omitempty"`
}

// IngestionHandler exposes manual runs and the ingestion ledger.
type IngestionHandler struct {
	ingestion services.IngestionService
	log       repositories.IngestionLogRepository
	logger    *zap.Logger
}

// NewIngestionHandler creates a new IngestionHandler. log may be nil, which
// disables GET /api/ingestion/log.
func NewIngestionHandler(ingestion services.IngestionService, log repositories.IngestionLogRepository, logger *zap.Logger) *IngestionHandler {
	return &IngestionHandler{
		ingestion: ingestion,
		log:       log,
		logger:    logger,
	}
}

// RegisterRoutes registers the ingestion routes on the given mux.
func (h *IngestionHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/ingestion/run", h.Run)
	mux.HandleFunc("GET /api/ingestion/last-run", h.LastRun)
	if h.log != nil {
		mux.HandleFunc("GET /api/ingestion/log", h.Log)
	}
}

// Run handles POST /api/ingestion/run. It answers 409 busy while another run
// holds the lock.
func (h *IngestionHandler) Run(w http.ResponseWriter, r *http.Request) {
	var req RunIngestionRequest
	if !decodeBody(w, r, &req, h.logger) {
		return
	}
	if req.MaxMessages < 0 {
		writeError(w, h.logger, http.StatusBadRequest, "invalid_request", "max_messages must not be negative")
		return
	}

	opts := services.RunOptions{MaxMessages: req.MaxMessages}
	var err error
	if opts.After, err = optionalTime(req.After); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "invalid_after", "after must be RFC 3339 or YYYY-MM-DD")
		return
	}
	if opts.Before, err = optionalTime(req.Before); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "invalid_before", "before must be RFC 3339 or YYYY-MM-DD")
		return
	}

	summary, err := h.ingestion.Run(r.Context(), opts)
	if err != nil && summary == nil {
		writeServiceError(w, h.logger, err, "ingestion_run_failed")
		return
	}
	if err != nil {
		// The run started but the mailbox search failed; report what was done.
		h.logger.Error("Ingestion run ended early", zap.Error(err))
		if err := WriteJSON(w, http.StatusBadGateway, ApiResponse{Success: false, Data: summary, Error: "ingestion_run_incomplete", Message: err.Error()}); err != nil {
			h.logger.Error("Failed to write response", zap.Error(err))
		}
		return
	}
	writeData(w, h.logger, http.StatusOK, summary)
}

// LastRun handles GET /api/ingestion/last-run.
func (h *IngestionHandler) LastRun(w http.ResponseWriter, r *http.Request) {
	summary := h.ingestion.LastRun()
	if summary == nil {
		writeError(w, h.logger, http.StatusNotFound, "no_runs", "No ingestion run has finished since startup")
		return
	}
	writeData(w, h.logger, http.StatusOK, summary)
}

// Log handles GET /api/ingestion/log?limit=.
func (h *IngestionHandler) Log(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r, h.logger)
	if !ok {
		return
	}
	if limit == 0 {
		limit = 50
	}
	records, err := h.log.ListRecent(r.Context(), limit)
	if err != nil {
		writeServiceError(w, h.logger, err, "list_ingestion_log_failed")
		return
	}
	writeData(w, h.logger, http.StatusOK, records)
}

func optionalTime(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	return parseTime(raw)
}
