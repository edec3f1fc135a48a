package queue

import (
	"context"
	"log/slog"
	"time"

	"github.com/JaimeStill/geofeed/internal/audit"
	"github.com/JaimeStill/geofeed/pkg/pagination"
)

// System is the queue as seen by the rest of the service: the Store plus the
// operator surface. Operator requeues are audited.
type System interface {
	Store
	Handler() *Handler
}

type system struct {
	Store
	sink       audit.Sink
	logger     *slog.Logger
	pagination pagination.Config
}

// NewSystem wraps store with audit recording and the HTTP handler.
func NewSystem(store Store, sink audit.Sink, logger *slog.Logger, pagination pagination.Config) System {
	return &system{
		Store:      store,
		sink:       sink,
		logger:     logger.With("system", "queue"),
		pagination: pagination,
	}
}

func (s *system) Handler() *Handler {
	return NewHandler(s, s.logger, s.pagination)
}

func (s *system) Requeue(ctx context.Context, id string, at time.Time) (*Entry, error) {
	e, err := s.Store.Requeue(ctx, id, at)
	if err != nil {
		return nil, err
	}

	s.logger.Info("entry requeued", "feature_id", id)
	event := audit.Event{
		Kind:      audit.KindRequeue,
		FeatureID: id,
		From:      string(StatusFailedPermanent),
		To:        string(StatusPending),
		At:        at,
	}
	if err := s.sink.Record(ctx, event); err != nil {
		s.logger.Error("audit record failed", "feature_id", id, "error", err)
	}
	return e, nil
}
