package queue

import (
	"net/url"
	"strconv"
	"time"

	"github.com/JaimeStill/geofeed/pkg/query"
	"github.com/JaimeStill/geofeed/pkg/repository"
)

var projection = query.
	NewProjectionMap("public", "queue_entries", "q").
	Project("feature_id", "FeatureID").
	Project("sequence", "Sequence").
	Project("payload", "Payload").
	Project("status", "Status").
	Project("retry_count", "RetryCount").
	Project("next_attempt_at", "NextAttemptAt").
	Project("enqueued_at", "EnqueuedAt").
	Project("updated_at", "UpdatedAt").
	Project("synced_at", "SyncedAt").
	Project("last_error", "LastError")

var defaultSort = query.SortField{
	Field:      "EnqueuedAt",
	Descending: true,
}

// Filters contains optional filtering criteria for queue queries.
// Nil fields are ignored. Status uses exact matching, FeatureID and LastError
// use case-insensitive contains matching, MinRetries is inclusive and
// EnqueuedBefore is exclusive.
type Filters struct {
	Status         *string    `json:"status,omitempty"`
	FeatureID      *string    `json:"feature_id,omitempty"`
	LastError      *string    `json:"last_error,omitempty"`
	MinRetries     *int       `json:"min_retries,omitempty"`
	EnqueuedBefore *time.Time `json:"enqueued_before,omitempty"`
}

// Apply adds filter conditions to a query builder.
func (f Filters) Apply(b *query.Builder) *query.Builder {
	return b.
		WhereEquals("Status", f.Status).
		WhereContains("FeatureID", f.FeatureID).
		WhereContains("LastError", f.LastError).
		WhereAtLeast("RetryCount", f.MinRetries).
		WhereBefore("EnqueuedAt", f.EnqueuedBefore)
}

// FiltersFromQuery extracts filter values from URL query parameters.
// enqueued_before is RFC 3339.
func FiltersFromQuery(values url.Values) Filters {
	var f Filters

	if s := values.Get("status"); s != "" {
		f.Status = &s
	}

	if id := values.Get("feature_id"); id != "" {
		f.FeatureID = &id
	}

	if le := values.Get("last_error"); le != "" {
		f.LastError = &le
	}

	if mr := values.Get("min_retries"); mr != "" {
		if v, err := strconv.Atoi(mr); err == nil {
			f.MinRetries = &v
		}
	}

	if eb := values.Get("enqueued_before"); eb != "" {
		if v, err := time.Parse(time.RFC3339, eb); err == nil {
			f.EnqueuedBefore = &v
		}
	}

	return f
}

func scanEntry(s repository.Scanner) (Entry, error) {
	var (
		e       Entry
		payload []byte
		status  string
	)
	err := s.Scan(
		&e.FeatureID,
		&e.Sequence,
		&payload,
		&status,
		&e.RetryCount,
		&e.NextAttemptAt,
		&e.EnqueuedAt,
		&e.UpdatedAt,
		&e.SyncedAt,
		&e.LastError,
	)
	e.Payload = payload
	e.Status = Status(status)
	return e, err
}
