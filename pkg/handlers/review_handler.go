package handlers

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/Nihar1310/SalesAgent-sub001/pkg/models"
	"github.com/Nihar1310/SalesAgent-sub001/pkg/services"
)

// ============================================================================
// Request/Response Types
// ============================================================================

// ReviewListResponse for GET /api/reviews
type ReviewListResponse struct {
	Items []*models.ReviewQueueItem `json:"items"`
	Total int                       `json:"total"`
}

// ReviewDecisionRequest for POST /api/reviews/{id}/approve and /reject
type ReviewDecisionRequest struct {
	Reviewer string `json:"reviewer"`
	Reason   string `json:"reason,omitempty"`
}

// ReviewCorrectionRequest for POST /api/reviews/{id}/correct
type ReviewCorrectionRequest struct {
	Reviewer    string                   `json:"reviewer"`
	Corrections models.ReviewCorrections `json:"corrections"`
}

// ============================================================================
// Handler
// ============================================================================

// ReviewHandler exposes the review queue to reviewers.
type ReviewHandler struct {
	reviews services.ReviewService
	logger  *zap.Logger
}

// NewReviewHandler creates a new review handler.
func NewReviewHandler(reviews services.ReviewService, logger *zap.Logger) *ReviewHandler {
	return &ReviewHandler{
		reviews: reviews,
		logger:  logger,
	}
}

// RegisterRoutes registers the review handler's routes on the given mux.
func (h *ReviewHandler) RegisterRoutes(mux *http.ServeMux) {
	base := "/api/reviews"

	mux.HandleFunc("GET "+base, h.List)
	mux.HandleFunc("GET "+base+"/{id}", h.Get)
	mux.HandleFunc("POST "+base+"/{id}/approve", h.Approve)
	mux.HandleFunc("POST "+base+"/{id}/reject", h.Reject)
	mux.HandleFunc("POST "+base+"/{id}/correct", h.Correct)
}

// List handles GET /api/reviews?status=&limit=
func (h *ReviewHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r, h.logger)
	if !ok {
		return
	}
	status := models.ReviewStatus(strings.ToLower(r.URL.Query().Get("status")))

	items, err := h.reviews.List(r.Context(), status, limit)
	if err != nil {
		writeServiceError(w, h.logger, err, "list_reviews_failed")
		return
	}
	writeData(w, h.logger, http.StatusOK, ReviewListResponse{Items: items, Total: len(items)})
}

// Get handles GET /api/reviews/{id}
func (h *ReviewHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseReviewID(w, r, h.logger)
	if !ok {
		return
	}
	item, err := h.reviews.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.logger, err, "get_review_failed")
		return
	}
	writeData(w, h.logger, http.StatusOK, item)
}

// Approve handles POST /api/reviews/{id}/approve
func (h *ReviewHandler) Approve(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseReviewID(w, r, h.logger)
	if !ok {
		return
	}
	var req ReviewDecisionRequest
	if !decodeBody(w, r, &req, h.logger) {
		return
	}

	out, err := h.reviews.Approve(r.Context(), id, strings.TrimSpace(req.Reviewer))
	if err != nil {
		writeServiceError(w, h.logger, err, "approve_review_failed")
		return
	}
	writeData(w, h.logger, http.StatusOK, out)
}

// Reject handles POST /api/reviews/{id}/reject
func (h *ReviewHandler) Reject(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseReviewID(w, r, h.logger)
	if !ok {
		return
	}
	var req ReviewDecisionRequest
	if !decodeBody(w, r, &req, h.logger) {
		return
	}

	item, err := h.reviews.Reject(r.Context(), id, strings.TrimSpace(req.Reviewer), req.Reason)
	if err != nil {
		writeServiceError(w, h.logger, err, "reject_review_failed")
		return
	}
	writeData(w, h.logger, http.StatusOK, item)
}

// Correct handles POST /api/reviews/{id}/correct
func (h *ReviewHandler) Correct(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseReviewID(w, r, h.logger)
	if !ok {
		return
	}
	var req ReviewCorrectionRequest
	if !decodeBody(w, r, &req, h.logger) {
		return
	}

	out, err := h.reviews.Correct(r.Context(), id, strings.TrimSpace(req.Reviewer), req.Corrections)
	if err != nil {
		writeServiceError(w, h.logger, err, "correct_review_failed")
		return
	}
	writeData(w, h.logger, http.StatusOK, out)
}
