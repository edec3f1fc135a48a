// Package ingest runs the detection pipeline: geolocate, build the feature, try to deliver it
// directly, and fall back to the durable queue when the downstream endpoint does not acknowledge.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/JaimeStill/geofeed/internal/audit"
	"github.com/JaimeStill/geofeed/internal/detections"
	"github.com/JaimeStill/geofeed/internal/dispatch"
	"github.com/JaimeStill/geofeed/internal/downstream"
	"github.com/JaimeStill/geofeed/internal/features"
	"github.com/JaimeStill/geofeed/internal/geolocation"
	"github.com/JaimeStill/geofeed/internal/queue"
)

// Notifier is woken after an enqueue so queued features are retried promptly.
type Notifier interface {
	Trigger()
}

// System ingests detections.
type System interface {
	// Ingest processes one detection. The only error returned is a failure to
	// persist an undelivered feature; every other outcome is in the result.
	Ingest(ctx context.Context, d detections.Detection) (*Result, error)
	// IngestBatch runs Ingest for each detection and reports per-item results in input order.
	IngestBatch(ctx context.Context, ds []detections.Detection) []BatchItem
	// Geolocate computes a detection's position without building or delivering a feature.
	Geolocate(d detections.Detection) geolocation.Result
	Handler() *Handler
}

// Deps carries the collaborators of the pipeline.
type Deps struct {
	Geolocation   *geolocation.Engine
	Builder       *features.Builder
	Queue         queue.Store
	Deliverer     downstream.Deliverer
	Sink          audit.Sink
	Notifier      Notifier
	Backoff       dispatch.Backoff
	DirectTimeout time.Duration
	Concurrency   int
	Now           func() time.Time
	Logger        *slog.Logger
}

type system struct {
	engine        *geolocation.Engine
	builder       *features.Builder
	queue         queue.Store
	deliverer     downstream.Deliverer
	sink          audit.Sink
	notifier      Notifier
	backoff       dispatch.Backoff
	directTimeout time.Duration
	concurrency   int
	now           func() time.Time
	logger        *slog.Logger
}

// New creates the ingestion System.
func New(deps Deps) System {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &system{
		engine:        deps.Geolocation,
		builder:       deps.Builder,
		queue:         deps.Queue,
		deliverer:     deps.Deliverer,
		sink:          deps.Sink,
		notifier:      deps.Notifier,
		backoff:       deps.Backoff,
		directTimeout: deps.DirectTimeout,
		concurrency:   max(deps.Concurrency, 1),
		now:           now,
		logger:        deps.Logger.With("system", "ingest"),
	}
}

func (s *system) Handler() *Handler {
	return NewHandler(s, s.logger)
}

func (s *system) Geolocate(d detections.Detection) geolocation.Result {
	return s.engine.Geolocate(d.Stamp(s.now()))
}

func (s *system) Ingest(ctx context.Context, d detections.Detection) (*Result, error) {
	d = d.Stamp(s.now())

	r := s.engine.Geolocate(d)
	if r.TrustFlag == geolocation.TrustRed {
		s.logger.Warn("detection not trusted",
			"feature_id", d.ID,
			"method", r.Method,
			"reason", r.Reason,
		)
		s.record(ctx, audit.Event{
			Kind:      audit.KindGeolocation,
			FeatureID: d.ID,
			To:        string(r.TrustFlag),
			At:        r.ComputedAt,
			Detail:    fmt.Sprintf("%s: %s", r.Method, r.Reason),
		})
	}

	f := s.builder.Build(d, r)
	result := newResult(f, s.now())

	dctx, cancel := context.WithTimeout(ctx, s.directTimeout)
	err := s.deliverer.Deliver(dctx, f)
	cancel()

	if err == nil {
		s.record(ctx, s.direct(f.FeatureID, audit.StateDelivered, ""))
		result.Outcome = OutcomeDelivered
		return result, nil
	}

	s.record(ctx, s.direct(f.FeatureID, audit.StateDirectFailed, err.Error()))

	if err := s.enqueue(ctx, f, err); err != nil {
		return nil, err
	}

	result.Outcome = OutcomeQueued
	return result, nil
}

// enqueue persists f after a failed direct attempt. The write is detached
// from ctx so a caller that goes away cannot lose the feature.
func (s *system) enqueue(ctx context.Context, f features.Feature, cause error) error {
	payload, err := f.Marshal()
	if err != nil {
		return err
	}

	now := s.now()
	_, err = s.queue.Enqueue(context.WithoutCancel(ctx), queue.EnqueueCommand{
		FeatureID:     f.FeatureID,
		Payload:       payload,
		Attempts:      1,
		NextAttemptAt: now.Add(s.backoff.Delay(1)),
		LastError:     cause.Error(),
		At:            now,
	})
	if err != nil {
		s.logger.Error("enqueue failed", "feature_id", f.FeatureID, "error", err)
		return fmt.Errorf("queue feature %s: %w", f.FeatureID, err)
	}

	s.record(ctx, audit.Event{
		Kind:      audit.KindTransition,
		FeatureID: f.FeatureID,
		From:      audit.StateDirectFailed,
		To:        string(queue.StatusPending),
		At:        now,
		Attempt:   1,
		Detail:    cause.Error(),
	})

	if s.notifier != nil {
		s.notifier.Trigger()
	}
	return nil
}

func (s *system) IngestBatch(ctx context.Context, ds []detections.Detection) []BatchItem {
	items := make([]BatchItem, len(ds))

	var g errgroup.Group
	g.SetLimit(s.concurrency)

	for i, d := range ds {
		g.Go(func() error {
			r, err := s.Ingest(ctx, d)
			items[i] = BatchItem{Result: r}
			if err != nil {
				items[i].Error = err.Error()
			}
			return nil
		})
	}
	g.Wait()

	return items
}

func (s *system) direct(id, to, detail string) audit.Event {
	return audit.Event{
		Kind:      audit.KindDirect,
		FeatureID: id,
		From:      audit.StateDirect,
		To:        to,
		At:        s.now(),
		Attempt:   1,
		Detail:    detail,
	}
}

func (s *system) record(ctx context.Context, e audit.Event) {
	if err := s.sink.Record(context.WithoutCancel(ctx), e); err != nil {
		s.logger.Error("audit record failed", "feature_id", e.FeatureID, "kind", e.Kind, "error", err)
	}
}
