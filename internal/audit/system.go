package audit

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/JaimeStill/geofeed/pkg/repository"
	"github.com/JaimeStill/geofeed/pkg/storage"
)

// System records events to the configured sinks and serves the audit trail back.
type System interface {
	Sink
	Handler() *Handler

	// History returns every recorded event for a feature, oldest first.
	// Requires the database sink.
	History(ctx context.Context, featureID string) ([]Event, error)
	// Archive opens the blob archive for the UTC day containing day.
	// Requires the blob sink.
	Archive(ctx context.Context, day time.Time) (io.ReadCloser, error)
}

type trail struct {
	sink   Multi
	db     *sql.DB
	store  storage.System
	prefix string
	logger *slog.Logger
}

// New builds the audit System for the sinks named in cfg. db and store may be
// nil when the corresponding sink is not enabled.
func New(cfg *Config, logger *slog.Logger, db *sql.DB, store storage.System) (System, error) {
	t := &trail{
		prefix: cfg.BlobPrefix,
		logger: logger.With("system", "audit"),
	}

	for _, name := range cfg.Sinks {
		switch name {
		case SinkLog:
			t.sink = append(t.sink, NewLogSink(logger))
		case SinkDatabase:
			if db == nil {
				return nil, fmt.Errorf("database sink requires a database connection")
			}
			t.db = db
			t.sink = append(t.sink, NewDatabaseSink(db))
		case SinkBlob:
			if store == nil {
				return nil, fmt.Errorf("blob sink requires blob storage")
			}
			t.store = store
			t.sink = append(t.sink, NewBlobSink(store, cfg.BlobPrefix))
		default:
			return nil, fmt.Errorf("unknown sink %q", name)
		}
	}

	return t, nil
}

func (t *trail) Handler() *Handler {
	return NewHandler(t, t.logger)
}

func (t *trail) Record(ctx context.Context, e Event) error {
	return t.sink.Record(ctx, e)
}

func (t *trail) History(ctx context.Context, featureID string) ([]Event, error) {
	if t.db == nil {
		return nil, fmt.Errorf("%w: database sink disabled", ErrUnavailable)
	}

	q := `
		SELECT kind, feature_id, from_state, to_state, attempt, detail, alert, occurred_at
		FROM audit_events
		WHERE feature_id = $1
		ORDER BY occurred_at, id`

	events, err := repository.QueryMany(ctx, t.db, q, []any{featureID}, scanEvent)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	return events, nil
}

func (t *trail) Archive(ctx context.Context, day time.Time) (io.ReadCloser, error) {
	if t.store == nil {
		return nil, fmt.Errorf("%w: blob sink disabled", ErrUnavailable)
	}

	rc, err := t.store.Download(ctx, ArchiveKey(t.prefix, day))
	if err != nil {
		return nil, err
	}
	return rc, nil
}

func scanEvent(s repository.Scanner) (Event, error) {
	var (
		e    Event
		kind string
	)
	err := s.Scan(&kind, &e.FeatureID, &e.From, &e.To, &e.Attempt, &e.Detail, &e.Alert, &e.At)
	e.Kind = Kind(kind)
	return e, err
}
