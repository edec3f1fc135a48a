package dispatch_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/JaimeStill/geofeed/internal/audit"
	"github.com/JaimeStill/geofeed/internal/dispatch"
	"github.com/JaimeStill/geofeed/internal/features"
	"github.com/JaimeStill/geofeed/internal/queue"
)

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

var errOffline = errors.New("link down")

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *clock { return &clock{t: base} }

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type deliverer struct {
	mu    sync.Mutex
	calls []string
	fn    func(ctx context.Context, f features.Feature) error
}

func (d *deliverer) Deliver(ctx context.Context, f features.Feature) error {
	d.mu.Lock()
	d.calls = append(d.calls, f.FeatureID)
	fn := d.fn
	d.mu.Unlock()

	if fn == nil {
		return nil
	}
	return fn(ctx, f)
}

func (d *deliverer) Calls() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.calls...)
}

type recordingSink struct {
	mu     sync.Mutex
	events []audit.Event
}

func (s *recordingSink) Record(_ context.Context, e audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *recordingSink) Events() []audit.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]audit.Event(nil), s.events...)
}

func testConfig(t *testing.T) *dispatch.Config {
	t.Helper()
	cfg := &dispatch.Config{
		RetryCeiling: 3,
		BackoffBase:  "1s",
		BackoffMax:   "1m",
		BatchSize:    10,
		Concurrency:  4,
	}
	if err := cfg.Finalize(nil); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	return cfg
}

type harness struct {
	store  queue.Store
	down   *deliverer
	sink   *recordingSink
	clock  *clock
	engine *dispatch.Engine
}

func newHarness(t *testing.T, cfg *dispatch.Config) *harness {
	t.Helper()
	h := &harness{
		store: queue.NewMemory(),
		down:  &deliverer{},
		sink:  &recordingSink{},
		clock: newClock(),
	}
	h.engine = dispatch.NewEngine(cfg, h.store, h.down, h.sink, discardLogger(), h.clock.Now)
	return h
}

func (h *harness) enqueue(t *testing.T, id string, at time.Time, attempts int) {
	t.Helper()
	payload, err := features.Feature{FeatureID: id, BuiltAt: at, ExpiresAt: at.Add(time.Hour)}.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	_, err = h.store.Enqueue(context.Background(), queue.EnqueueCommand{
		FeatureID:     id,
		Payload:       payload,
		Attempts:      attempts,
		NextAttemptAt: at,
		At:            at,
	})
	if err != nil {
		t.Fatalf("Enqueue %s: %v", id, err)
	}
}

func (h *harness) find(t *testing.T, id string) *queue.Entry {
	t.Helper()
	e, err := h.store.Find(context.Background(), id)
	if err != nil {
		t.Fatalf("Find %s: %v", id, err)
	}
	return e
}

func TestBackoffDelay(t *testing.T) {
	b := dispatch.Backoff{Base: time.Second, Multiplier: 2, Max: 10 * time.Second}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Second},
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{5, 10 * time.Second},
		{2000, 10 * time.Second},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("attempt %d", tt.attempt), func(t *testing.T) {
			if got := b.Delay(tt.attempt); got != tt.want {
				t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
			}
		})
	}
}

func TestBackoffJitterBounds(t *testing.T) {
	b := dispatch.Backoff{Base: time.Second, Multiplier: 2, Max: time.Minute, Jitter: 0.2}

	lo, hi := 3200*time.Millisecond, 4800*time.Millisecond
	for range 500 {
		if d := b.Delay(3); d < lo || d > hi {
			t.Fatalf("Delay(3) = %v, want within [%v, %v]", d, lo, hi)
		}
	}
}

func TestSweepDeliversAndMarksSynced(t *testing.T) {
	h := newHarness(t, testConfig(t))
	h.enqueue(t, "f-1", base, 1)

	r, err := h.engine.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if r.Claimed != 1 || r.Synced != 1 {
		t.Errorf("result = %+v", r)
	}

	e := h.find(t, "f-1")
	if e.Status != queue.StatusSynced || e.RetryCount != 2 || e.SyncedAt == nil {
		t.Errorf("entry = %s/%d synced_at=%v", e.Status, e.RetryCount, e.SyncedAt)
	}

	events := h.sink.Events()
	want := []struct{ from, to queue.Status }{
		{queue.StatusPending, queue.StatusSyncing},
		{queue.StatusSyncing, queue.StatusSynced},
	}
	if len(events) != len(want) {
		t.Fatalf("audit = %+v, want %d events", events, len(want))
	}
	for i, w := range want {
		ev := events[i]
		if ev.Kind != audit.KindTransition || ev.FeatureID != "f-1" || ev.From != string(w.from) || ev.To != string(w.to) || ev.Attempt != 2 {
			t.Errorf("event %d = %+v, want %s -> %s attempt 2", i, ev, w.from, w.to)
		}
	}

	if last := h.engine.Last(); last == nil || last.Synced != 1 {
		t.Errorf("Last = %+v", last)
	}
}

func TestSweepRetryExhaustion(t *testing.T) {
	tests := []struct {
		name         string
		prior        int
		wantDelivers int
	}{
		{"after failed direct attempt", 1, 3},
		{"never attempted", 0, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			h := newHarness(t, cfg)
			h.down.fn = func(context.Context, features.Feature) error { return errOffline }
			h.enqueue(t, "f-1", base, tt.prior)

			for range 10 {
				if _, err := h.engine.Sweep(context.Background()); err != nil {
					t.Fatalf("Sweep: %v", err)
				}
				h.clock.Advance(time.Hour)
			}

			if got := len(h.down.Calls()); got != tt.wantDelivers {
				t.Errorf("queued deliveries = %d, want %d", got, tt.wantDelivers)
			}

			e := h.find(t, "f-1")
			if e.Status != queue.StatusFailedPermanent {
				t.Fatalf("status = %s, want FAILED_PERMANENT", e.Status)
			}
			if e.RetryCount != cfg.RetryCeiling+1 {
				t.Errorf("total attempts = %d, want %d", e.RetryCount, cfg.RetryCeiling+1)
			}
			if e.LastError == nil || *e.LastError != errOffline.Error() {
				t.Errorf("last error = %v", e.LastError)
			}

			alerts := 0
			for _, ev := range h.sink.Events() {
				if ev.Alert {
					alerts++
					if ev.To != string(queue.StatusFailedPermanent) || ev.Attempt != cfg.RetryCeiling+1 {
						t.Errorf("alert event = %+v", ev)
					}
				}
			}
			if alerts != 1 {
				t.Errorf("alerts = %d, want 1", alerts)
			}
		})
	}
}

func TestSweepSchedulesBackoff(t *testing.T) {
	cfg := testConfig(t)
	cfg.BackoffJitter = 0.2
	h := newHarness(t, cfg)
	h.down.fn = func(context.Context, features.Feature) error { return errOffline }
	h.enqueue(t, "f-1", base, 1)

	r, err := h.engine.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if r.Retried != 1 {
		t.Fatalf("result = %+v", r)
	}

	e := h.find(t, "f-1")
	delay := e.NextAttemptAt.Sub(base)
	if delay < 1600*time.Millisecond || delay > 2400*time.Millisecond {
		t.Errorf("retry delay = %v, want 2s ± 20%%", delay)
	}

	again, _ := h.engine.Sweep(context.Background())
	if again.Claimed != 0 {
		t.Errorf("entry claimed before its retry was due: %+v", again)
	}
}

func TestSweepUndecodablePayload(t *testing.T) {
	h := newHarness(t, testConfig(t))
	_, err := h.store.Enqueue(context.Background(), queue.EnqueueCommand{
		FeatureID:     "f-bad",
		Payload:       json.RawMessage(`{"detection":{}}`),
		NextAttemptAt: base,
		At:            base,
	})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	r, err := h.engine.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if r.Failed != 1 {
		t.Errorf("result = %+v", r)
	}
	if calls := h.down.Calls(); len(calls) != 0 {
		t.Errorf("undecodable payload was delivered: %v", calls)
	}
	if e := h.find(t, "f-bad"); e.Status != queue.StatusFailedPermanent {
		t.Errorf("status = %s, want FAILED_PERMANENT", e.Status)
	}
}

func TestSweepOvertaking(t *testing.T) {
	cfg := testConfig(t)
	cfg.BatchSize = 1
	h := newHarness(t, cfg)

	var once sync.Once
	h.down.fn = func(_ context.Context, f features.Feature) error {
		var err error
		if f.FeatureID == "f-old" {
			once.Do(func() { err = errOffline })
		}
		return err
	}

	h.enqueue(t, "f-old", base.Add(-2*time.Second), 1)
	h.enqueue(t, "f-new", base.Add(-time.Second), 1)

	for range 2 {
		if _, err := h.engine.Sweep(context.Background()); err != nil {
			t.Fatalf("Sweep: %v", err)
		}
	}
	h.clock.Advance(time.Hour)
	if _, err := h.engine.Sweep(context.Background()); err != nil {
		t.Fatalf("Sweep: %v", err)
	}

	want := []string{"f-old", "f-new", "f-old"}
	got := h.down.Calls()
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("delivery order = %v, want %v", got, want)
	}
	for _, id := range []string{"f-old", "f-new"} {
		if e := h.find(t, id); e.Status != queue.StatusSynced {
			t.Errorf("%s status = %s", id, e.Status)
		}
	}
}

func TestSweepCancellationReleases(t *testing.T) {
	cfg := testConfig(t)
	cfg.Concurrency = 2
	h := newHarness(t, cfg)

	started := make(chan struct{}, 10)
	h.down.fn = func(ctx context.Context, _ features.Feature) error {
		started <- struct{}{}
		<-ctx.Done()
		return ctx.Err()
	}

	for i := range 5 {
		h.enqueue(t, fmt.Sprintf("f-%d", i), base.Add(time.Duration(i)*time.Millisecond), 1)
	}
	h.clock.Advance(time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		<-started
		cancel()
	}()

	r, err := h.engine.Sweep(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Sweep error = %v, want context.Canceled", err)
	}
	if r.Claimed != 5 || r.Released != 5 || r.Synced+r.Retried+r.Failed != 0 {
		t.Errorf("result = %+v", r)
	}

	for i := range 5 {
		e := h.find(t, fmt.Sprintf("f-%d", i))
		if e.Status != queue.StatusPending || e.RetryCount != 1 {
			t.Errorf("%s = %s/%d, want PENDING/1", e.FeatureID, e.Status, e.RetryCount)
		}
	}
}

func TestConcurrentSweepsNeverDoubleDeliver(t *testing.T) {
	cfg := testConfig(t)
	cfg.BatchSize = 7
	cfg.Concurrency = 3

	store := queue.NewMemory()
	down := &deliverer{}
	clk := newClock()

	seed := &harness{store: store}
	for i := range 120 {
		seed.enqueue(t, fmt.Sprintf("f-%03d", i), base.Add(time.Duration(i)*time.Millisecond), 0)
	}
	clk.Advance(time.Second)

	var wg sync.WaitGroup
	for range 6 {
		eng := dispatch.NewEngine(cfg, store, down, audit.Discard, discardLogger(), clk.Now)
		wg.Go(func() {
			for {
				r, err := eng.Sweep(context.Background())
				if err != nil {
					t.Errorf("Sweep: %v", err)
					return
				}
				if r.Claimed == 0 {
					return
				}
			}
		})
	}
	wg.Wait()

	seen := make(map[string]int)
	for _, id := range down.Calls() {
		seen[id]++
	}
	if len(seen) != 120 {
		t.Errorf("delivered %d distinct features, want 120", len(seen))
	}
	for id, n := range seen {
		if n != 1 {
			t.Errorf("%s delivered %d times", id, n)
		}
	}

	stats, err := store.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Synced != 120 {
		t.Errorf("synced = %d, want 120", stats.Synced)
	}
}

func TestDrain(t *testing.T) {
	t.Run("sweeps until a short batch", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.BatchSize = 2
		h := newHarness(t, cfg)
		for i := range 5 {
			h.enqueue(t, fmt.Sprintf("f-%d", i), base.Add(time.Duration(i)*time.Millisecond), 1)
		}
		h.clock.Advance(time.Second)

		r, err := h.engine.Drain(context.Background())
		if err != nil {
			t.Fatalf("Drain: %v", err)
		}
		if r.Synced != 5 || r.Sweeps != 3 {
			t.Errorf("result = %+v", r)
		}
	})

	t.Run("stops when nothing progresses", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.BatchSize = 2
		h := newHarness(t, cfg)
		h.down.fn = func(context.Context, features.Feature) error { return errOffline }
		for i := range 5 {
			h.enqueue(t, fmt.Sprintf("f-%d", i), base, 1)
		}

		r, err := h.engine.Drain(context.Background())
		if err != nil {
			t.Fatalf("Drain: %v", err)
		}
		if r.Sweeps != 1 || r.Retried != 2 {
			t.Errorf("result = %+v", r)
		}
	})
}

func TestRecover(t *testing.T) {
	h := newHarness(t, testConfig(t))
	h.enqueue(t, "f-1", base, 1)

	if _, err := h.store.Claim(context.Background(), base, 10); err != nil {
		t.Fatalf("Claim: %v", err)
	}

	n, err := h.engine.Recover(context.Background())
	if err != nil || n != 1 {
		t.Fatalf("Recover = %d, %v", n, err)
	}
	if e := h.find(t, "f-1"); e.Status != queue.StatusPending || e.RetryCount != 1 {
		t.Errorf("entry = %s/%d", e.Status, e.RetryCount)
	}

	events := h.sink.Events()
	if len(events) != 1 {
		t.Fatalf("audit = %+v", events)
	}
	ev := events[0]
	if ev.Kind != audit.KindRecovery || ev.FeatureID != "f-1" || ev.From != string(queue.StatusSyncing) || ev.To != string(queue.StatusPending) {
		t.Errorf("recovery event = %+v", ev)
	}
}
