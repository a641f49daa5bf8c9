package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	claimmetrics "benefits/internal/claim/metrics"
)

// StuckCounter counts claims left in PENDING_FRAUD_CHECK since before a cutoff.
type StuckCounter interface {
	CountStuck(ctx context.Context, before time.Time) (int, error)
}

// Monitor periodically surfaces claims whose fraud check never completed.
// A stuck claim needs a person; the monitor only makes it visible.
type Monitor struct {
	counter    StuckCounter
	stuckAfter time.Duration
	logger     *slog.Logger
	metrics    *claimmetrics.Metrics
	now        func() time.Time

	mu   sync.Mutex
	cron *cron.Cron
}

type Option func(*Monitor)

func WithLogger(logger *slog.Logger) Option {
	return func(m *Monitor) {
		m.logger = logger
	}
}

func WithMetrics(metrics *claimmetrics.Metrics) Option {
	return func(m *Monitor) {
		m.metrics = metrics
	}
}

func WithClock(now func() time.Time) Option {
	return func(m *Monitor) {
		m.now = now
	}
}

func New(counter StuckCounter, stuckAfter time.Duration, opts ...Option) (*Monitor, error) {
	if counter == nil {
		return nil, errors.New("stuck counter is required")
	}
	if stuckAfter <= 0 {
		return nil, fmt.Errorf("stuck threshold must be positive, got %s", stuckAfter)
	}
	m := &Monitor{
		counter:    counter,
		stuckAfter: stuckAfter,
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Check counts stuck claims once, updates the gauge and warns when any exist.
func (m *Monitor) Check(ctx context.Context) (int, error) {
	cutoff := m.now().Add(-m.stuckAfter)
	n, err := m.counter.CountStuck(ctx, cutoff)
	if err != nil {
		m.logger.ErrorContext(ctx, "stuck claim check failed", "error", err)
		return 0, err
	}
	if m.metrics != nil {
		m.metrics.SetStuck(n)
	}
	if n > 0 {
		m.logger.WarnContext(ctx, "claims stuck in PENDING_FRAUD_CHECK need manual review",
			"count", n, "stuck_after", m.stuckAfter.String())
	}
	return n, nil
}

// Start schedules Check on a cron spec such as "@every 5m". Jobs run with
// ctx; Stop ends the schedule.
func (m *Monitor) Start(ctx context.Context, schedule string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cron != nil {
		return errors.New("monitor already started")
	}
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(schedule, func() {
		_, _ = m.Check(ctx)
	}); err != nil {
		return fmt.Errorf("invalid monitor schedule %q: %w", schedule, err)
	}
	c.Start()
	m.cron = c
	m.logger.Info("stuck claim monitor started", "schedule", schedule, "stuck_after", m.stuckAfter.String())
	return nil
}

// Stop halts the schedule and waits for a running check to finish.
func (m *Monitor) Stop() {
	m.mu.Lock()
	c := m.cron
	m.cron = nil
	m.mu.Unlock()
	if c == nil {
		return
	}
	<-c.Stop().Done()
}
