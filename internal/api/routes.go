package api

import (
	"net/http"

	"github.com/JaimeStill/geofeed/internal/dispatch"
	"github.com/JaimeStill/geofeed/pkg/routes"
)

func registerRoutes(
	mux *http.ServeMux,
	domain *Domain,
	runtime *Runtime,
) {
	routes.Register(
		mux,
		domain.Ingest.Handler().Routes(),
		runtime.Queue.Handler().Routes(),
		runtime.Audit.Handler().Routes(),
		dispatch.NewHandler(domain.Sync, domain.Monitor, runtime.Logger).Routes(),
	)
}
