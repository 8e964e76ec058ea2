package fleet

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/angeloszaimis/uptime-monitor/internal/endpoint"
	"github.com/angeloszaimis/uptime-monitor/internal/healthcheck"
	"github.com/angeloszaimis/uptime-monitor/internal/metrics"
	"github.com/angeloszaimis/uptime-monitor/internal/window"
)

const DefaultInterval = 30 * time.Second

// ErrCycleInProgress is returned by Trigger while another cycle is running.
var ErrCycleInProgress = errors.New("a cycle is already in progress")

type Options struct {
	Interval       time.Duration
	Timeout        time.Duration
	MaxConcurrency int
	HistorySize    int
}

// Scheduler runs cycles over a registry and keeps the latest snapshot plus a
// rolling window of response times per endpoint.
type Scheduler struct {
	registry  *endpoint.Registry
	prober    Prober
	opts      Options
	logger    *slog.Logger
	collector *metrics.Collector

	snapshot atomic.Pointer[Snapshot]
	running  atomic.Bool
	history  map[int]*window.Window

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler creates a scheduler whose snapshot starts out with every
// endpoint checking. collector may be nil.
func NewScheduler(registry *endpoint.Registry, prober Prober, opts Options, logger *slog.Logger, collector *metrics.Collector) *Scheduler {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Timeout <= 0 {
		opts.Timeout = healthcheck.DefaultTimeout
	}

	s := &Scheduler{
		registry:  registry,
		prober:    prober,
		opts:      opts,
		logger:    logger,
		collector: collector,
		history:   make(map[int]*window.Window, registry.Len()),
	}

	for _, e := range registry.All() {
		s.history[e.ID] = window.New(opts.HistorySize)
	}
	s.snapshot.Store(Pending(registry.All()))

	return s
}

// Start runs a cycle immediately and then once per interval until ctx is
// cancelled or Stop is called. A tick that fires while the previous cycle is
// still running is skipped. Calling Start on a started scheduler is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go s.loop(ctx)

	s.logger.Info("Fleet scheduler started",
		slog.Int("endpoints", s.registry.Len()),
		slog.Duration("interval", s.opts.Interval))
}

// Stop halts scheduling and waits for a cycle already in flight to finish.
// Probes in flight are not cancelled.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}

	cancel()
	s.wg.Wait()
	s.logger.Info("Fleet scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	s.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	// select may pick a ready tick over a cancelled ctx.
	if ctx.Err() != nil {
		return
	}
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Warn("Skipping tick, previous cycle still running")
		s.collector.Emit(metrics.MetricEvent{
			Type:      metrics.EventCycleSkipped,
			Timestamp: time.Now(),
		})
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.running.Store(false)
		s.runCycle(context.WithoutCancel(ctx))
	}()
}

// Trigger runs a cycle right away and returns its snapshot. It fails with
// ErrCycleInProgress when a cycle is already running.
func (s *Scheduler) Trigger(ctx context.Context) (*Snapshot, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, ErrCycleInProgress
	}
	defer s.running.Store(false)

	return s.runCycle(context.WithoutCancel(ctx)), nil
}

func (s *Scheduler) runCycle(ctx context.Context) *Snapshot {
	prev := s.snapshot.Load()

	snap := RunCycle(ctx, s.registry.All(), s.prober, CycleOptions{
		Timeout:        s.opts.Timeout,
		MaxConcurrency: s.opts.MaxConcurrency,
	})

	s.record(prev, &snap)
	s.snapshot.Store(&snap)

	duration := snap.CompletedAt.Sub(snap.StartedAt)
	stats := snap.Stats()
	s.logger.Info("Cycle completed",
		slog.String("cycle_id", snap.CycleID.String()),
		slog.Duration("duration", duration),
		slog.Int("online", stats.OnlineCount),
		slog.Int("issues", stats.IssueCount))

	s.collector.Emit(metrics.MetricEvent{
		Type:      metrics.EventCycleCompleted,
		Timestamp: snap.CompletedAt,
		Duration:  duration,
	})

	return &snap
}

// record feeds the response-time windows, logs status transitions and emits
// per-probe metrics.
func (s *Scheduler) record(prev, snap *Snapshot) {
	for i, out := range snap.Outcomes {
		e, _ := s.registry.Get(out.EndpointID)

		var duration time.Duration
		if out.ResponseTimeMs != nil {
			duration = time.Duration(*out.ResponseTimeMs) * time.Millisecond
			if out.StatusCode != 0 {
				s.history[out.EndpointID].Add(float64(*out.ResponseTimeMs), out.CheckedAt)
			}
		}

		s.collector.Emit(metrics.MetricEvent{
			Type:       metrics.EventProbeCompleted,
			Timestamp:  out.CheckedAt,
			Endpoint:   e.Name,
			Status:     string(out.Status),
			Duration:   duration,
			StatusCode: out.StatusCode,
		})

		if prev == nil || i >= len(prev.Outcomes) {
			continue
		}
		before := prev.Outcomes[i].Status

		switch {
		case before == healthcheck.StatusOnline && out.Status.IsIssue():
			s.logger.Warn("Endpoint is down",
				slog.String("endpoint", e.Name),
				slog.String("url", e.URL),
				slog.String("status", string(out.Status)),
				slog.String("error", out.Error))
		case before.IsIssue() && out.Status == healthcheck.StatusOnline:
			s.logger.Info("Endpoint is back up",
				slog.String("endpoint", e.Name),
				slog.String("url", e.URL))
		default:
			continue
		}

		s.collector.Emit(metrics.MetricEvent{
			Type:      metrics.EventStatusChanged,
			Timestamp: out.CheckedAt,
			Endpoint:  e.Name,
			Status:    string(out.Status),
		})
	}
}

// Snapshot returns the latest published snapshot. It is never nil and must
// not be modified.
func (s *Scheduler) Snapshot() *Snapshot {
	return s.snapshot.Load()
}

// History summarises the recent response times of endpoint id.
func (s *Scheduler) History(id int) (window.Summary, bool) {
	w, ok := s.history[id]
	if !ok {
		return window.Summary{}, false
	}
	return w.Summary(), true
}

// Running reports whether a cycle is in flight.
func (s *Scheduler) Running() bool {
	return s.running.Load()
}

func (s *Scheduler) Registry() *endpoint.Registry {
	return s.registry
}
