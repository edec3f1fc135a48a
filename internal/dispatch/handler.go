package dispatch

import (
	"log/slog"
	"net/http"

	"github.com/JaimeStill/geofeed/pkg/handlers"
	"github.com/JaimeStill/geofeed/pkg/routes"
)

// Handler exposes operator control over synchronization.
type Handler struct {
	engine  *Engine
	monitor *Monitor
	logger  *slog.Logger
}

func NewHandler(engine *Engine, monitor *Monitor, logger *slog.Logger) *Handler {
	return &Handler{
		engine:  engine,
		monitor: monitor,
		logger:  logger.With("handler", "sync"),
	}
}

// Routes returns the route group definition for sync endpoints.
func (h *Handler) Routes() routes.Group {
	return routes.Group{
		Prefix: "/sync",
		Routes: []routes.Route{
			{Method: "POST", Pattern: "", Handler: h.Drain},
			{Method: "GET", Pattern: "/status", Handler: h.Status},
		},
	}
}

// Drain runs a drain immediately, regardless of the last probe, and returns its tally.
func (h *Handler) Drain(w http.ResponseWriter, r *http.Request) {
	result, err := h.engine.Drain(r.Context())
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusServiceUnavailable, err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, result)
}

func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	status := h.monitor.Status()
	status.LastSweep = h.engine.Last()

	handlers.RespondJSON(w, http.StatusOK, status)
}
