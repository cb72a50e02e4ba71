package handlers

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/Nihar1310/SalesAgent-sub001/pkg/models"
	"github.com/Nihar1310/SalesAgent-sub001/pkg/resolver"
)

// Resolver is the part of *resolver.Resolver the HTTP surface uses.
type Resolver interface {
	Reload(ctx context.Context) error
	Size() (materials, clients, aliases int)
	MatchMaterial(text string) models.MatchResult
	MatchClient(q resolver.ClientQuery) models.MatchResult
}

var _ Resolver = (*resolver.Resolver)(nil)

// ResolverSizeResponse reports what the resolver has indexed.
type ResolverSizeResponse struct {
	Materials int `json:"materials"`
	Clients   int `json:"clients"`
	Aliases   int `json:"aliases"`
}

// ResolverHandler lets operators reload and probe the entity resolver.
type ResolverHandler struct {
	resolver Resolver
	logger   *zap.Logger
}

// NewResolverHandler creates a new ResolverHandler.
func NewResolverHandler(r Resolver, logger *zap.Logger) *ResolverHandler {
	return &ResolverHandler{resolver: r, logger: logger}
}

// RegisterRoutes registers the resolver routes on the given mux.
func (h *ResolverHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/resolver/reload", h.Reload)
	mux.HandleFunc("GET /api/resolver/match", h.Match)
}

// Reload handles POST /api/resolver/reload. Catalog rows added outside the
// pipeline (imports, manual entry) become matchable after a reload.
func (h *ResolverHandler) Reload(w http.ResponseWriter, r *http.Request) {
	if err := h.resolver.Reload(r.Context()); err != nil {
		writeServiceError(w, h.logger, err, "resolver_reload_failed")
		return
	}
	m, c, a := h.resolver.Size()
	h.logger.Info("Resolver reloaded", zap.Int("materials", m), zap.Int("clients", c), zap.Int("aliases", a))
	writeData(w, h.logger, http.StatusOK, ResolverSizeResponse{Materials: m, Clients: c, Aliases: a})
}

// Match handles GET /api/resolver/match?kind=material&text= and
// GET /api/resolver/match?kind=client&text=&email=. It never writes.
func (h *ResolverHandler) Match(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	text := q.Get("text")
	switch models.EntityKind(q.Get("kind")) {
	case models.EntityMaterial, "":
		if text == "" {
			writeError(w, h.logger, http.StatusBadRequest, "invalid_request", "text is required")
			return
		}
		writeData(w, h.logger, http.StatusOK, h.resolver.MatchMaterial(text))
	case models.EntityClient:
		email := q.Get("email")
		if text == "" && email == "" {
			writeError(w, h.logger, http.StatusBadRequest, "invalid_request", "text or email is required")
			return
		}
		writeData(w, h.logger, http.StatusOK, h.resolver.MatchClient(resolver.ClientQuery{Name: text, Email: email}))
	default:
		writeError(w, h.logger, http.StatusBadRequest, "invalid_kind", "kind must be material or client")
	}
}
