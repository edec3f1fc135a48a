package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/JaimeStill/geofeed/pkg/pagination"
	"github.com/JaimeStill/geofeed/pkg/query"
	"github.com/JaimeStill/geofeed/pkg/repository"
)

const entryColumns = `feature_id, sequence, payload, status, retry_count, next_attempt_at, enqueued_at, updated_at, synced_at, last_error`

type repo struct {
	db         *sql.DB
	logger     *slog.Logger
	pagination pagination.Config
}

// New creates a PostgreSQL-backed Store. Concurrent claimers are serialized with
// FOR UPDATE SKIP LOCKED so no entry is handed to two sweeps.
func New(db *sql.DB, logger *slog.Logger, pagination pagination.Config) Store {
	return &repo{
		db:         db,
		logger:     logger.With("system", "queue"),
		pagination: pagination,
	}
}

func (r *repo) Enqueue(ctx context.Context, cmd EnqueueCommand) (*Entry, error) {
	if err := validateEnqueue(cmd); err != nil {
		return nil, err
	}

	q := `
		INSERT INTO queue_entries(feature_id, payload, status, retry_count, next_attempt_at, enqueued_at, updated_at, last_error)
		VALUES ($1, $2, 'PENDING', $3, $4, $5, $5, NULLIF($6, ''))
		ON CONFLICT (feature_id) DO UPDATE SET payload = EXCLUDED.payload
		RETURNING ` + entryColumns

	args := []any{
		cmd.FeatureID,
		string(cmd.Payload),
		cmd.Attempts,
		cmd.NextAttemptAt,
		cmd.At,
		cmd.LastError,
	}

	e, err := repository.WithTx(ctx, r.db, func(tx *sql.Tx) (Entry, error) {
		return repository.QueryOne(ctx, tx, q, args, scanEntry)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: enqueue %s: %w", ErrPersistence, cmd.FeatureID, err)
	}

	r.logger.Info("feature enqueued", "feature_id", e.FeatureID, "status", e.Status, "attempt", e.RetryCount)
	return &e, nil
}

func (r *repo) Claim(ctx context.Context, now time.Time, limit int) ([]Entry, error) {
	if limit <= 0 {
		return []Entry{}, nil
	}

	q := `
		UPDATE queue_entries q
		SET status = 'SYNCING', updated_at = $1
		FROM (
			SELECT feature_id
			FROM queue_entries
			WHERE status = 'PENDING' AND next_attempt_at <= $1
			ORDER BY enqueued_at, sequence
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		) due
		WHERE q.feature_id = due.feature_id
		RETURNING ` + projection.Columns()

	entries, err := repository.WithTx(ctx, r.db, func(tx *sql.Tx) ([]Entry, error) {
		return repository.QueryMany(ctx, tx, q, []any{now, limit}, scanEntry)
	})
	if err != nil {
		return nil, fmt.Errorf("claim queue entries: %w", err)
	}

	slices.SortFunc(entries, compareAge)
	return entries, nil
}

func (r *repo) MarkSynced(ctx context.Context, id string, at time.Time) (*Entry, error) {
	q := `
		UPDATE queue_entries
		SET status = 'SYNCED', retry_count = retry_count + 1, synced_at = $2, updated_at = $2
		WHERE feature_id = $1 AND status = 'SYNCING'
		RETURNING ` + entryColumns

	return r.transition(ctx, id, StatusSynced, q, id, at)
}

func (r *repo) MarkRetry(ctx context.Context, id string, attempts int, next time.Time, detail string) (*Entry, error) {
	q := `
		UPDATE queue_entries
		SET status = 'PENDING', retry_count = $2, next_attempt_at = $3, last_error = $4, updated_at = NOW()
		WHERE feature_id = $1 AND status = 'SYNCING'
		RETURNING ` + entryColumns

	return r.transition(ctx, id, StatusPending, q, id, attempts, next, detail)
}

func (r *repo) MarkFailed(ctx context.Context, id string, attempts int, detail string, at time.Time) (*Entry, error) {
	q := `
		UPDATE queue_entries
		SET status = 'FAILED_PERMANENT', retry_count = $2, last_error = $3, updated_at = $4
		WHERE feature_id = $1 AND status = 'SYNCING'
		RETURNING ` + entryColumns

	return r.transition(ctx, id, StatusFailedPermanent, q, id, attempts, detail, at)
}

func (r *repo) Release(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	q := `
		UPDATE queue_entries
		SET status = 'PENDING', updated_at = NOW()
		WHERE status = 'SYNCING' AND feature_id = ANY($1)`

	n, err := r.exec(ctx, q, ids)
	if err != nil {
		return 0, fmt.Errorf("release queue entries: %w", err)
	}
	return n, nil
}

func (r *repo) Recover(ctx context.Context) ([]string, error) {
	q := `
		UPDATE queue_entries
		SET status = 'PENDING', updated_at = NOW()
		WHERE status = 'SYNCING'
		RETURNING feature_id`

	ids, err := repository.QueryMany(ctx, r.db, q, nil, func(s repository.Scanner) (string, error) {
		var id string
		err := s.Scan(&id)
		return id, err
	})
	if err != nil {
		return nil, fmt.Errorf("recover queue entries: %w", err)
	}
	if len(ids) > 0 {
		slices.Sort(ids)
		r.logger.Warn("recovered in-flight entries", "count", len(ids))
	}
	return ids, nil
}

func (r *repo) Requeue(ctx context.Context, id string, at time.Time) (*Entry, error) {
	q := `
		UPDATE queue_entries
		SET status = 'PENDING', retry_count = 0, next_attempt_at = $2, updated_at = $2
		WHERE feature_id = $1 AND status = 'FAILED_PERMANENT'
		RETURNING ` + entryColumns

	return r.transition(ctx, id, StatusPending, q, id, at)
}

func (r *repo) Find(ctx context.Context, id string) (*Entry, error) {
	q, args := query.NewBuilder(projection).BuildSingle("FeatureID", id)

	e, err := repository.QueryOne(ctx, r.db, q, args, scanEntry)
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrInvalidEntry)
	}
	return &e, nil
}

func (r *repo) List(
	ctx context.Context,
	page pagination.PageRequest,
	filters Filters,
) (*pagination.PageResult[Entry], error) {
	page.Normalize(r.pagination)

	qb := query.
		NewBuilder(projection, defaultSort).
		WhereSearch(page.Search, "FeatureID", "LastError")

	filters.Apply(qb)

	if sort := sortable(page.Sort); len(sort) > 0 {
		qb.OrderByFields(sort)
	}

	countSQL, countArgs := qb.BuildCount()
	var total int
	if err := r.db.QueryRowContext(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count queue entries: %w", err)
	}

	pageSQL, pageArgs := qb.BuildPage(page.Page, page.PageSize)
	entries, err := repository.QueryMany(ctx, r.db, pageSQL, pageArgs, scanEntry)
	if err != nil {
		return nil, fmt.Errorf("query queue entries: %w", err)
	}

	result := pagination.NewPageResult(entries, total, page.Page, page.PageSize)
	return &result, nil
}

func (r *repo) Stats(ctx context.Context) (Stats, error) {
	q := `
		SELECT status, COUNT(*), MIN(enqueued_at)
		FROM queue_entries
		GROUP BY status`

	type row struct {
		status Status
		count  int
		oldest time.Time
	}

	rows, err := repository.QueryMany(ctx, r.db, q, nil, func(s repository.Scanner) (row, error) {
		var (
			rw     row
			status string
		)
		err := s.Scan(&status, &rw.count, &rw.oldest)
		rw.status = Status(status)
		return rw, err
	})
	if err != nil {
		return Stats{}, fmt.Errorf("queue stats: %w", err)
	}

	var stats Stats
	for _, rw := range rows {
		stats.add(rw.status, rw.count)
		if rw.status == StatusPending {
			oldest := rw.oldest
			stats.OldestPending = &oldest
		}
	}
	return stats, nil
}

// transition runs a guarded single-row update. Zero affected rows is resolved
// to ErrNotFound or ErrInvalidTransition by looking the entry up.
func (r *repo) transition(ctx context.Context, id string, to Status, q string, args ...any) (*Entry, error) {
	e, err := repository.WithTx(ctx, r.db, func(tx *sql.Tx) (Entry, error) {
		return repository.QueryOne(ctx, tx, q, args, scanEntry)
	})
	if err == nil {
		return &e, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("transition %s to %s: %w", id, to, err)
	}

	current, ferr := r.Find(ctx, id)
	if ferr != nil {
		return nil, ferr
	}
	return nil, fmt.Errorf("%w: %s is %s, cannot move to %s", ErrInvalidTransition, id, current.Status, to)
}

func (r *repo) exec(ctx context.Context, q string, args ...any) (int, error) {
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}
