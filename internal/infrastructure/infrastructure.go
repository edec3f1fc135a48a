// Package infrastructure provides core service initialization for application startup.
// It assembles the shared dependencies (logging, persistence, audit, downstream transport)
// that the domain systems require.
package infrastructure

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"

	"github.com/JaimeStill/geofeed/internal/audit"
	"github.com/JaimeStill/geofeed/internal/config"
	"github.com/JaimeStill/geofeed/internal/downstream"
	"github.com/JaimeStill/geofeed/internal/migrations"
	"github.com/JaimeStill/geofeed/internal/queue"
	"github.com/JaimeStill/geofeed/pkg/database"
	"github.com/JaimeStill/geofeed/pkg/lifecycle"
	"github.com/JaimeStill/geofeed/pkg/storage"
)

// Infrastructure holds the core systems required by all domain modules.
// Database and Storage are nil when no configured component uses them.
type Infrastructure struct {
	Lifecycle  *lifecycle.Coordinator
	Logger     *slog.Logger
	Database   database.System
	Storage    storage.System
	Audit      audit.System
	Queue      queue.System
	Downstream downstream.System
}

// New creates an Infrastructure from the application configuration.
// It initializes all systems but does not start them; call Start separately.
func New(cfg *config.Config) (*Infrastructure, error) {
	lc := lifecycle.New()
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	infra := &Infrastructure{
		Lifecycle: lc,
		Logger:    logger,
	}

	var conn *sql.DB
	if cfg.NeedsDatabase() {
		db, err := database.New(&cfg.Database, logger, migrations.FS)
		if err != nil {
			return nil, fmt.Errorf("database init failed: %w", err)
		}
		infra.Database = db
		conn = db.Connection()
	}

	if cfg.NeedsStorage() {
		store, err := storage.New(&cfg.Storage, logger)
		if err != nil {
			return nil, fmt.Errorf("storage init failed: %w", err)
		}
		infra.Storage = store
	}

	trail, err := audit.New(&cfg.Audit, logger, conn, infra.Storage)
	if err != nil {
		return nil, fmt.Errorf("audit init failed: %w", err)
	}
	infra.Audit = trail

	var store queue.Store
	switch cfg.Queue.Driver {
	case queue.DriverMemory:
		logger.Warn("memory queue driver selected, queued features do not survive restarts")
		store = queue.NewMemory()
	default:
		store = queue.New(conn, logger, cfg.API.Pagination)
	}
	infra.Queue = queue.NewSystem(store, trail, logger, cfg.API.Pagination)

	ds, err := downstream.New(&cfg.Downstream, logger)
	if err != nil {
		return nil, fmt.Errorf("downstream init failed: %w", err)
	}
	infra.Downstream = ds

	return infra, nil
}

// Start registers all infrastructure systems with the lifecycle coordinator.
func (i *Infrastructure) Start() error {
	if i.Database != nil {
		if err := i.Database.Start(i.Lifecycle); err != nil {
			return fmt.Errorf("database start failed: %w", err)
		}
	}
	if i.Storage != nil {
		if err := i.Storage.Start(i.Lifecycle); err != nil {
			return fmt.Errorf("storage start failed: %w", err)
		}
	}
	if err := i.Downstream.Start(i.Lifecycle); err != nil {
		return fmt.Errorf("downstream start failed: %w", err)
	}
	return nil
}
