package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/JaimeStill/geofeed/internal/detections"
	"github.com/JaimeStill/geofeed/pkg/handlers"
	"github.com/JaimeStill/geofeed/pkg/routes"
)

// MaxBatch is the largest number of detections accepted in one batch request.
const MaxBatch = 500

// Handler accepts detections over HTTP.
type Handler struct {
	sys    System
	logger *slog.Logger
}

func NewHandler(sys System, logger *slog.Logger) *Handler {
	return &Handler{
		sys:    sys,
		logger: logger.With("handler", "ingest"),
	}
}

// Routes returns the route group definition for ingestion endpoints.
func (h *Handler) Routes() routes.Group {
	return routes.Group{
		Routes: []routes.Route{
			{Method: "POST", Pattern: "/detections", Handler: h.Ingest},
			{Method: "POST", Pattern: "/detections/batch", Handler: h.IngestBatch},
			{Method: "POST", Pattern: "/geolocate", Handler: h.Geolocate},
		},
	}
}

// Ingest accepts one detection. 200 means delivered downstream, 202 means
// persisted for background delivery.
func (h *Handler) Ingest(w http.ResponseWriter, r *http.Request) {
	var d detections.Detection
	if !h.decode(w, r, &d) {
		return
	}

	result, err := h.sys.Ingest(r.Context(), d)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	status := http.StatusOK
	if result.Outcome == OutcomeQueued {
		status = http.StatusAccepted
	}
	handlers.RespondJSON(w, status, result)
}

// IngestBatch accepts a JSON array of detections and returns one item per detection.
func (h *Handler) IngestBatch(w http.ResponseWriter, r *http.Request) {
	var ds []detections.Detection
	if !h.decode(w, r, &ds) {
		return
	}

	switch {
	case len(ds) == 0:
		handlers.RespondError(w, h.logger, http.StatusBadRequest, ErrEmptyBatch)
		return
	case len(ds) > MaxBatch:
		err := fmt.Errorf("%w: %d > %d", ErrBatchTooLarge, len(ds), MaxBatch)
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, h.sys.IngestBatch(r.Context(), ds))
}

// Geolocate returns the geolocation result alone; nothing is delivered or queued.
func (h *Handler) Geolocate(w http.ResponseWriter, r *http.Request) {
	var d detections.Detection
	if !h.decode(w, r, &d) {
		return
	}

	handlers.RespondJSON(w, http.StatusOK, h.sys.Geolocate(d))
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil {
		return true
	}

	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		handlers.RespondError(w, h.logger, http.StatusRequestEntityTooLarge, err)
		return false
	}

	handlers.RespondError(w, h.logger, http.StatusBadRequest, fmt.Errorf("%w: %w", ErrInvalidRequest, err))
	return false
}
