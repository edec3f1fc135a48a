package queue

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/JaimeStill/geofeed/pkg/handlers"
	"github.com/JaimeStill/geofeed/pkg/pagination"
	"github.com/JaimeStill/geofeed/pkg/routes"
)

// Handler provides HTTP endpoints for inspecting and re-arming queue entries.
type Handler struct {
	sys        System
	logger     *slog.Logger
	pagination pagination.Config
}

// SearchRequest combines pagination and filter criteria for the search endpoint.
type SearchRequest struct {
	pagination.PageRequest
	Filters
}

// NewHandler creates a Handler with the given system, logger, and pagination config.
func NewHandler(sys System, logger *slog.Logger, pagination pagination.Config) *Handler {
	return &Handler{
		sys:        sys,
		logger:     logger.With("handler", "queue"),
		pagination: pagination,
	}
}

// Routes returns the route group definition for queue endpoints.
func (h *Handler) Routes() routes.Group {
	return routes.Group{
		Prefix: "/queue",
		Routes: []routes.Route{
			{Method: "GET", Pattern: "", Handler: h.List},
			{Method: "POST", Pattern: "/search", Handler: h.Search},
			{Method: "GET", Pattern: "/stats", Handler: h.Stats},
			{Method: "GET", Pattern: "/{featureId}", Handler: h.Find},
			{Method: "POST", Pattern: "/{featureId}/requeue", Handler: h.Requeue},
		},
	}
}

// List returns a paginated list of queue entries with optional query parameter filters.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	page := pagination.PageRequestFromQuery(r.URL.Query(), h.pagination)
	filters := FiltersFromQuery(r.URL.Query())

	result, err := h.sys.List(r.Context(), page, filters)
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusInternalServerError, err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, result)
}

// Search accepts a JSON body with pagination and filter criteria and returns matching entries.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, ErrInvalidEntry)
		return
	}

	req.PageRequest.Normalize(h.pagination)

	result, err := h.sys.List(r.Context(), req.PageRequest, req.Filters)
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusInternalServerError, err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, result)
}

// Find returns a single entry by its featureId path parameter.
func (h *Handler) Find(w http.ResponseWriter, r *http.Request) {
	e, err := h.sys.Find(r.Context(), r.PathValue("featureId"))
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, e)
}

// Requeue moves a FAILED_PERMANENT entry back to PENDING with a zero retry count.
func (h *Handler) Requeue(w http.ResponseWriter, r *http.Request) {
	e, err := h.sys.Requeue(r.Context(), r.PathValue("featureId"), time.Now().UTC())
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, e)
}

// Stats returns entry counts by state.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.sys.Stats(r.Context())
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusInternalServerError, err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, stats)
}
