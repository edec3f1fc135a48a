// Package dispatch drains the durable queue to the downstream endpoint: a sync engine that
// claims due entries and resolves each delivery attempt, and a connectivity monitor that
// decides when to run it.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/JaimeStill/geofeed/internal/audit"
	"github.com/JaimeStill/geofeed/internal/downstream"
	"github.com/JaimeStill/geofeed/internal/features"
	"github.com/JaimeStill/geofeed/internal/queue"
)

// SweepResult tallies one sweep, or the sum of the sweeps in a drain.
type SweepResult struct {
	Claimed    int       `json:"claimed"`
	Synced     int       `json:"synced"`
	Retried    int       `json:"retried"`
	Failed     int       `json:"failed"`
	Released   int       `json:"released"`
	Sweeps     int       `json:"sweeps"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

func (r *SweepResult) add(o SweepResult) {
	r.Claimed += o.Claimed
	r.Synced += o.Synced
	r.Retried += o.Retried
	r.Failed += o.Failed
	r.Released += o.Released
	r.Sweeps += o.Sweeps
	r.FinishedAt = o.FinishedAt
}

type outcome int

const (
	unresolved outcome = iota
	synced
	retried
	failed
)

// Engine moves queue entries downstream. Any number of sweeps may run at
// once; the queue's claim step keeps them from sharing an entry.
type Engine struct {
	store       queue.Store
	deliverer   downstream.Deliverer
	sink        audit.Sink
	backoff     Backoff
	ceiling     int
	batchSize   int
	concurrency int
	timeout     time.Duration
	now         func() time.Time
	logger      *slog.Logger

	mu   sync.Mutex
	last *SweepResult
}

// NewEngine creates an Engine from the sync configuration.
func NewEngine(
	cfg *Config,
	store queue.Store,
	deliverer downstream.Deliverer,
	sink audit.Sink,
	logger *slog.Logger,
	now func() time.Time,
) *Engine {
	return &Engine{
		store:       store,
		deliverer:   deliverer,
		sink:        sink,
		backoff:     cfg.Backoff(),
		ceiling:     cfg.RetryCeiling,
		batchSize:   cfg.BatchSize,
		concurrency: cfg.Concurrency,
		timeout:     cfg.DeliveryTimeoutDuration(),
		now:         now,
		logger:      logger.With("system", "dispatch"),
	}
}

// Backoff returns the retry schedule shared with the direct delivery path.
func (e *Engine) Backoff() Backoff { return e.backoff }

// Last returns the most recent completed sweep, or nil before the first.
func (e *Engine) Last() *SweepResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.last == nil {
		return nil
	}
	r := *e.last
	return &r
}

// Recover returns entries a previous process left SYNCING to PENDING. It must
// run before the first sweep of this process.
func (e *Engine) Recover(ctx context.Context) (int, error) {
	ids, err := e.store.Recover(ctx)
	if err != nil {
		return 0, fmt.Errorf("recover: %w", err)
	}
	at := e.now()
	for _, id := range ids {
		e.record(ctx, audit.Event{
			Kind:      audit.KindRecovery,
			FeatureID: id,
			From:      string(queue.StatusSyncing),
			To:        string(queue.StatusPending),
			At:        at,
			Detail:    "recovered at startup",
		})
	}
	return len(ids), nil
}

// Drain sweeps until a sweep claims less than a full batch or makes no progress.
func (e *Engine) Drain(ctx context.Context) (SweepResult, error) {
	total := SweepResult{StartedAt: e.now()}
	for {
		r, err := e.Sweep(ctx)
		total.add(r)
		if err != nil {
			return total, err
		}
		if r.Claimed < e.batchSize || r.Synced == 0 {
			return total, nil
		}
	}
}

// Sweep claims up to one batch of due entries and attempts each once on a
// bounded worker pool. Outcomes already known when ctx is cancelled are still
// recorded; entries whose attempt did not resolve are released without
// counting an attempt.
func (e *Engine) Sweep(ctx context.Context) (SweepResult, error) {
	result := SweepResult{StartedAt: e.now(), Sweeps: 1}

	entries, err := e.store.Claim(ctx, result.StartedAt, e.batchSize)
	if err != nil {
		result.FinishedAt = e.now()
		return result, fmt.Errorf("claim: %w", err)
	}
	result.Claimed = len(entries)

	for _, entry := range entries {
		e.record(ctx, audit.Event{
			Kind:      audit.KindTransition,
			FeatureID: entry.FeatureID,
			From:      string(queue.StatusPending),
			To:        string(queue.StatusSyncing),
			At:        result.StartedAt,
			Attempt:   entry.RetryCount + 1,
		})
	}

	var (
		mu       sync.Mutex
		resolved = make(map[string]bool, len(entries))
		g        errgroup.Group
	)
	g.SetLimit(e.concurrency)

	for _, entry := range entries {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			o := e.attempt(ctx, entry)

			mu.Lock()
			defer mu.Unlock()
			switch o {
			case synced:
				result.Synced++
			case retried:
				result.Retried++
			case failed:
				result.Failed++
			}
			resolved[entry.FeatureID] = o != unresolved
			return nil
		})
	}
	g.Wait()

	var pending []string
	for _, entry := range entries {
		if !resolved[entry.FeatureID] {
			pending = append(pending, entry.FeatureID)
		}
	}

	if len(pending) > 0 {
		result.Released = e.release(ctx, pending)
	}

	result.FinishedAt = e.now()
	e.remember(result)

	if result.Claimed > 0 {
		e.logger.Info("sweep complete",
			"claimed", result.Claimed,
			"synced", result.Synced,
			"retried", result.Retried,
			"failed", result.Failed,
			"released", result.Released,
		)
	}
	return result, ctx.Err()
}

// attempt delivers one claimed entry and records the outcome. The returned
// outcome is unresolved when the entry is still SYNCING.
func (e *Engine) attempt(ctx context.Context, entry queue.Entry) outcome {
	attempts := entry.RetryCount + 1
	write := context.WithoutCancel(ctx)

	f, err := features.Unmarshal(entry.Payload)
	if err != nil {
		return e.fail(write, entry, attempts, err.Error())
	}

	dctx, cancel := context.WithTimeout(ctx, e.timeout)
	err = e.deliverer.Deliver(dctx, f)
	cancel()

	if err != nil && ctx.Err() != nil {
		return unresolved
	}

	if err == nil {
		if _, serr := e.store.MarkSynced(write, entry.FeatureID, e.now()); serr != nil {
			e.logger.Error("mark synced failed", "feature_id", entry.FeatureID, "error", serr)
			return unresolved
		}
		e.record(write, e.transition(entry, queue.StatusSynced, attempts, ""))
		return synced
	}

	if attempts > e.ceiling {
		return e.fail(write, entry, attempts, err.Error())
	}

	next := e.now().Add(e.backoff.Delay(attempts))
	if _, serr := e.store.MarkRetry(write, entry.FeatureID, attempts, next, err.Error()); serr != nil {
		e.logger.Error("mark retry failed", "feature_id", entry.FeatureID, "error", serr)
		return unresolved
	}
	e.logger.Warn("delivery failed, retry scheduled",
		"feature_id", entry.FeatureID,
		"attempt", attempts,
		"next_attempt_at", next,
		"error", err,
	)
	e.record(write, e.transition(entry, queue.StatusPending, attempts, err.Error()))
	return retried
}

func (e *Engine) release(ctx context.Context, ids []string) int {
	n, err := e.store.Release(context.WithoutCancel(ctx), ids)
	if err != nil {
		e.logger.Error("release claimed entries failed", "count", len(ids), "error", err)
		return 0
	}

	for _, id := range ids {
		e.record(ctx, audit.Event{
			Kind:      audit.KindTransition,
			FeatureID: id,
			From:      string(queue.StatusSyncing),
			To:        string(queue.StatusPending),
			At:        e.now(),
			Detail:    "released",
		})
	}
	return n
}

func (e *Engine) fail(ctx context.Context, entry queue.Entry, attempts int, detail string) outcome {
	if _, err := e.store.MarkFailed(ctx, entry.FeatureID, attempts, detail, e.now()); err != nil {
		e.logger.Error("mark failed failed", "feature_id", entry.FeatureID, "error", err)
		return unresolved
	}
	e.logger.Error("delivery abandoned",
		"feature_id", entry.FeatureID,
		"attempt", attempts,
		"error", detail,
	)

	ev := e.transition(entry, queue.StatusFailedPermanent, attempts, detail)
	ev.Alert = true
	e.record(ctx, ev)
	return failed
}

func (e *Engine) transition(entry queue.Entry, to queue.Status, attempts int, detail string) audit.Event {
	return audit.Event{
		Kind:      audit.KindTransition,
		FeatureID: entry.FeatureID,
		From:      string(queue.StatusSyncing),
		To:        string(to),
		At:        e.now(),
		Attempt:   attempts,
		Detail:    detail,
	}
}

func (e *Engine) record(ctx context.Context, ev audit.Event) {
	if err := e.sink.Record(context.WithoutCancel(ctx), ev); err != nil {
		e.logger.Error("audit record failed", "feature_id", ev.FeatureID, "kind", ev.Kind, "error", err)
	}
}

func (e *Engine) remember(r SweepResult) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.last = &r
}
