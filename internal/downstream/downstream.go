// Package downstream delivers features to the command-and-control map and reports whether it
// is reachable. Every driver carries the feature ID as the idempotency key so a redelivery after
// an uncertain outcome is recognized downstream.
package downstream

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/JaimeStill/geofeed/internal/features"
	"github.com/JaimeStill/geofeed/pkg/lifecycle"
)

// Deliverer sends one feature downstream. A nil error means the receiver
// acknowledged the feature.
type Deliverer interface {
	Deliver(ctx context.Context, f features.Feature) error
}

// Prober checks downstream reachability.
type Prober interface {
	Probe(ctx context.Context) error
}

// System is a configured downstream driver with lifecycle hooks for
// connecting and closing its transport.
type System interface {
	Deliverer
	Prober
	Driver() string
	Start(lc *lifecycle.Coordinator) error
}

// New creates the System selected by cfg.Driver. No connection is made until Start is called.
func New(cfg *Config, logger *slog.Logger) (System, error) {
	logger = logger.With("system", "downstream", "driver", cfg.Driver)

	switch cfg.Driver {
	case DriverHTTP:
		return newHTTP(&cfg.HTTP, logger)
	case DriverMQTT:
		return newMQTT(&cfg.MQTT, logger)
	case DriverKafka:
		return newKafka(&cfg.Kafka, logger)
	default:
		return nil, fmt.Errorf("unsupported downstream driver: %q", cfg.Driver)
	}
}
