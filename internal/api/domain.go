package api

import (
	"time"

	"github.com/JaimeStill/geofeed/internal/dispatch"
	"github.com/JaimeStill/geofeed/internal/features"
	"github.com/JaimeStill/geofeed/internal/geolocation"
	"github.com/JaimeStill/geofeed/internal/ingest"
)

// Domain holds all domain systems that comprise the API.
type Domain struct {
	Ingest  ingest.System
	Sync    *dispatch.Engine
	Monitor *dispatch.Monitor
}

// NewDomain creates all domain systems from the API runtime.
func NewDomain(runtime *Runtime) *Domain {
	cfg := runtime.Config

	engine := dispatch.NewEngine(
		&cfg.Sync,
		runtime.Queue,
		runtime.Downstream,
		runtime.Audit,
		runtime.Logger,
		time.Now,
	)

	monitor := dispatch.NewMonitor(
		&cfg.Sync,
		runtime.Downstream,
		engine,
		runtime.Logger,
	)

	ingestSystem := ingest.New(ingest.Deps{
		Geolocation:   geolocation.New(cfg.Geolocation, time.Now),
		Builder:       features.NewBuilder(cfg.Features.ValidityDuration(), time.Now),
		Queue:         runtime.Queue,
		Deliverer:     runtime.Downstream,
		Sink:          runtime.Audit,
		Notifier:      monitor,
		Backoff:       cfg.Sync.Backoff(),
		DirectTimeout: cfg.Sync.DirectTimeoutDuration(),
		Concurrency:   cfg.Sync.Concurrency,
		Now:           time.Now,
		Logger:        runtime.Logger,
	})

	return &Domain{
		Ingest:  ingestSystem,
		Sync:    engine,
		Monitor: monitor,
	}
}
