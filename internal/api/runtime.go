package api

import (
	"github.com/JaimeStill/geofeed/internal/config"
	"github.com/JaimeStill/geofeed/internal/infrastructure"
	"github.com/JaimeStill/geofeed/pkg/pagination"
)

// Runtime extends Infrastructure with API-specific configuration.
type Runtime struct {
	*infrastructure.Infrastructure
	Config     *config.Config
	Pagination pagination.Config
}

// NewRuntime creates an API runtime with a module-scoped logger.
func NewRuntime(cfg *config.Config, infra *infrastructure.Infrastructure) *Runtime {
	scoped := *infra
	scoped.Logger = infra.Logger.With("module", "api")

	return &Runtime{
		Infrastructure: &scoped,
		Config:         cfg,
		Pagination:     cfg.API.Pagination,
	}
}
