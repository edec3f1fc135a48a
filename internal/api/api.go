// Package api assembles the API module with all domain systems and route registration.
package api

import (
	"fmt"
	"net/http"

	"github.com/JaimeStill/geofeed/internal/config"
	"github.com/JaimeStill/geofeed/internal/infrastructure"
	"github.com/JaimeStill/geofeed/pkg/formatting"
	"github.com/JaimeStill/geofeed/pkg/middleware"
	"github.com/JaimeStill/geofeed/pkg/module"
)

// NewModule creates the API module with all domain handlers and middleware.
// The connectivity monitor is registered with the lifecycle coordinator here
// so background delivery starts alongside the API.
func NewModule(cfg *config.Config, infra *infrastructure.Infrastructure) (*module.Module, error) {
	runtime := NewRuntime(cfg, infra)
	domain := NewDomain(runtime)

	if err := domain.Monitor.Start(runtime.Lifecycle); err != nil {
		return nil, fmt.Errorf("monitor start failed: %w", err)
	}

	mux := http.NewServeMux()
	registerRoutes(mux, domain, runtime)

	m := module.New(cfg.API.BasePath, mux)
	m.Use(middleware.CORS(&cfg.API.CORS))
	m.Use(middleware.Logger(runtime.Logger))
	m.Use(middleware.MaxBody(cfg.API.MaxBodySizeBytes()))

	runtime.Logger.Info(
		"api module initialized",
		"base_path", cfg.API.BasePath,
		"max_body", formatting.FormatBytes(cfg.API.MaxBodySizeBytes(), 1),
		"downstream", runtime.Downstream.Driver(),
	)

	return m, nil
}
