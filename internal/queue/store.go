package queue

import (
	"context"
	"cmp"
	"encoding/json"
	"fmt"
	"time"

	"github.com/JaimeStill/geofeed/pkg/pagination"
	"github.com/JaimeStill/geofeed/pkg/query"
)

// Store persists queue entries. Every write is committed before it returns.
// Transitions out of SYNCING are guarded: they fail with ErrInvalidTransition
// when the entry is in any other state.
type Store interface {
	// Enqueue inserts a PENDING entry, or replaces only the payload of an existing one.
	Enqueue(ctx context.Context, cmd EnqueueCommand) (*Entry, error)
	// Claim moves up to limit due PENDING entries to SYNCING, oldest first.
	Claim(ctx context.Context, now time.Time, limit int) ([]Entry, error)
	MarkSynced(ctx context.Context, id string, at time.Time) (*Entry, error)
	MarkRetry(ctx context.Context, id string, attempts int, next time.Time, detail string) (*Entry, error)
	MarkFailed(ctx context.Context, id string, attempts int, detail string, at time.Time) (*Entry, error)
	// Release returns claimed entries to PENDING without counting an attempt.
	Release(ctx context.Context, ids []string) (int, error)
	// Recover returns every SYNCING entry to PENDING and reports their
	// feature ids in ascending order. Called once at startup.
	Recover(ctx context.Context) ([]string, error)
	// Requeue re-arms a FAILED_PERMANENT entry with a zero retry count.
	Requeue(ctx context.Context, id string, at time.Time) (*Entry, error)
	Find(ctx context.Context, id string) (*Entry, error)
	List(ctx context.Context, page pagination.PageRequest, filters Filters) (*pagination.PageResult[Entry], error)
	Stats(ctx context.Context) (Stats, error)
}

func validateEnqueue(cmd EnqueueCommand) error {
	if cmd.FeatureID == "" {
		return fmt.Errorf("%w: feature id required", ErrInvalidEntry)
	}
	if !json.Valid(cmd.Payload) {
		return fmt.Errorf("%w: payload must be valid JSON", ErrInvalidEntry)
	}
	if cmd.Attempts < 0 {
		return fmt.Errorf("%w: attempts must be non-negative", ErrInvalidEntry)
	}
	return nil
}

// compareAge orders entries by enqueue time, then insertion sequence.
func compareAge(a, b Entry) int {
	if c := a.EnqueuedAt.Compare(b.EnqueuedAt); c != 0 {
		return c
	}
	return cmp.Compare(a.Sequence, b.Sequence)
}

// sortable drops sort fields with no column mapping.
func sortable(fields []query.SortField) []query.SortField {
	out := make([]query.SortField, 0, len(fields))
	for _, f := range fields {
		if projection.Mapped(f.Field) {
			out = append(out, f)
		}
	}
	return out
}
