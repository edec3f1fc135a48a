package audit

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/JaimeStill/geofeed/pkg/repository"
)

const insertEvent = `
	INSERT INTO audit_events(kind, feature_id, from_state, to_state, attempt, detail, alert, occurred_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

type databaseSink struct {
	db *sql.DB
}

// NewDatabaseSink creates a Sink that appends events to the audit_events table.
func NewDatabaseSink(db *sql.DB) Sink {
	return &databaseSink{db: db}
}

func (s *databaseSink) Record(ctx context.Context, e Event) error {
	err := repository.ExecExpectOne(
		ctx, s.db, insertEvent,
		string(e.Kind),
		e.FeatureID,
		e.From,
		e.To,
		e.Attempt,
		e.Detail,
		e.Alert,
		e.At,
	)
	if err != nil {
		return fmt.Errorf("record audit event %s: %w", e.FeatureID, err)
	}
	return nil
}
