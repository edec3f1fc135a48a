package audit

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/JaimeStill/geofeed/pkg/handlers"
	"github.com/JaimeStill/geofeed/pkg/routes"
)

// Handler provides HTTP endpoints for reading the audit trail.
type Handler struct {
	sys    System
	logger *slog.Logger
}

// NewHandler creates a Handler with the given system and logger.
func NewHandler(sys System, logger *slog.Logger) *Handler {
	return &Handler{
		sys:    sys,
		logger: logger.With("handler", "audit"),
	}
}

// Routes returns the route group definition for audit endpoints.
func (h *Handler) Routes() routes.Group {
	return routes.Group{
		Prefix: "/audit",
		Routes: []routes.Route{
			{Method: "GET", Pattern: "/{featureId}", Handler: h.History},
			{Method: "GET", Pattern: "/archive/{date}", Handler: h.Archive},
		},
	}
}

// History returns every recorded event for the featureId path parameter.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	events, err := h.sys.History(r.Context(), r.PathValue("featureId"))
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, events)
}

// Archive streams the JSON-lines archive for the date path parameter (YYYY-MM-DD).
func (h *Handler) Archive(w http.ResponseWriter, r *http.Request) {
	day, err := time.Parse(time.DateOnly, r.PathValue("date"))
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, fmt.Errorf("invalid date: %w", err))
		return
	}

	rc, err := h.sys.Archive(r.Context(), day)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", ndjson)
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		h.logger.Warn("archive stream interrupted", "date", day.Format(time.DateOnly), "error", err)
	}
}
