package dispatch

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/JaimeStill/geofeed/internal/downstream"
	"github.com/JaimeStill/geofeed/pkg/lifecycle"
)

// Syncer is the engine surface the monitor drives.
type Syncer interface {
	Recover(ctx context.Context) (int, error)
	Drain(ctx context.Context) (SweepResult, error)
}

// Status reports the monitor's latest view of the downstream endpoint.
type Status struct {
	Reachable   bool         `json:"reachable"`
	LastProbeAt *time.Time   `json:"last_probe_at,omitempty"`
	LastError   string       `json:"last_error,omitempty"`
	LastSweep   *SweepResult `json:"last_sweep,omitempty"`
}

// Monitor probes downstream reachability on an interval and drains the queue
// whenever the endpoint answers.
type Monitor struct {
	prober   downstream.Prober
	syncer   Syncer
	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger

	trigger   chan struct{}
	reachable atomic.Bool

	mu        sync.Mutex
	lastProbe *time.Time
	lastErr   string
}

// NewMonitor creates a Monitor that probes with prober and drains through syncer.
func NewMonitor(cfg *Config, prober downstream.Prober, syncer Syncer, logger *slog.Logger) *Monitor {
	return &Monitor{
		prober:   prober,
		syncer:   syncer,
		interval: cfg.ProbeIntervalDuration(),
		timeout:  cfg.ProbeTimeoutDuration(),
		logger:   logger.With("system", "monitor"),
		trigger:  make(chan struct{}, 1),
	}
}

// Start registers the monitor loop with lc. The loop waits for startup to
// finish, recovers entries left in flight by a previous process, and runs
// until shutdown.
func (m *Monitor) Start(lc *lifecycle.Coordinator) error {
	m.logger.Info("starting monitor", "interval", m.interval)

	lc.OnBackground(func(ctx context.Context) {
		if n, err := m.syncer.Recover(ctx); err != nil {
			m.logger.Error("queue recovery failed", "error", err)
		} else if n > 0 {
			m.logger.Info("queue recovered", "count", n)
		}

		m.Run(ctx)
		m.logger.Info("monitor stopped")
	})
	return nil
}

// Run probes immediately and then on every tick or Trigger until ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.tick(ctx)
		case <-m.trigger:
			m.tick(ctx)
		}
	}
}

// Trigger wakes the loop early. It never blocks; triggers that arrive while
// one is already pending are coalesced.
func (m *Monitor) Trigger() {
	select {
	case m.trigger <- struct{}{}:
	default:
	}
}

// Reachable reports the result of the latest probe.
func (m *Monitor) Reachable() bool {
	return m.reachable.Load()
}

// Status returns the latest probe outcome.
func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Status{Reachable: m.reachable.Load(), LastError: m.lastErr}
	if m.lastProbe != nil {
		t := *m.lastProbe
		s.LastProbeAt = &t
	}
	return s
}

func (m *Monitor) tick(ctx context.Context) {
	if !m.probe(ctx) {
		return
	}

	if _, err := m.syncer.Drain(ctx); err != nil && ctx.Err() == nil {
		m.logger.Error("drain failed", "error", err)
	}
}

// probe records the probe outcome and logs reachability changes.
func (m *Monitor) probe(ctx context.Context) bool {
	pctx, cancel := context.WithTimeout(ctx, m.timeout)
	err := m.prober.Probe(pctx)
	cancel()

	if ctx.Err() != nil {
		return false
	}

	now := time.Now()
	m.mu.Lock()
	m.lastProbe = &now
	m.lastErr = ""
	if err != nil {
		m.lastErr = err.Error()
	}
	m.mu.Unlock()

	was := m.reachable.Swap(err == nil)
	switch {
	case err != nil && was:
		m.logger.Warn("downstream unreachable", "error", err)
	case err == nil && !was:
		m.logger.Info("downstream reachable")
	}
	return err == nil
}
