// Package health probes the ledger on an interval and tracks whether it is
// reachable.
package health

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Status values reported by a Checker.
const (
	StatusUnknown  = "unknown"
	StatusHealthy  = "healthy"
	StatusDegraded = "degraded"
)

// Config holds health check configuration.
type Config struct {
	CheckInterval time.Duration
	ProbeTimeout  time.Duration
	FailThreshold int
}

// ProbeFunc performs one check and returns nil when the ledger answered.
type ProbeFunc func(ctx context.Context) error

// Report is a point-in-time view of the checker state.
type Report struct {
	Status     string    `json:"status"`
	FailCount  int       `json:"fail_count"`
	LastSeenAt time.Time `json:"last_seen_at,omitempty"`
	LastError  string    `json:"last_error,omitempty"`
}

// Healthy reports whether the ledger is not degraded. An unprobed ledger
// counts as healthy.
func (r Report) Healthy() bool { return r.Status != StatusDegraded }

// TransitionFunc is an optional callback run when the status flips between
// healthy and degraded.
type TransitionFunc func(ctx context.Context, r Report)

// MetricsRecordFunc is an optional callback for recording probe results.
type MetricsRecordFunc func(success bool)

// Checker runs periodic ledger probes. The status turns degraded after
// FailThreshold consecutive failures and healthy again on the next success.
type Checker struct {
	probe ProbeFunc
	cfg   Config

	mu         sync.Mutex
	failCount  int
	status     string
	lastSeenAt time.Time
	lastErr    string

	onTransition TransitionFunc
	onMetrics    MetricsRecordFunc
	logger       *zap.Logger
}

// New creates a new Checker.
func New(probe ProbeFunc, cfg Config, logger *zap.Logger) *Checker {
	if cfg.CheckInterval == 0 {
		cfg.CheckInterval = time.Minute
	}
	if cfg.ProbeTimeout == 0 {
		cfg.ProbeTimeout = 10 * time.Second
	}
	if cfg.FailThreshold == 0 {
		cfg.FailThreshold = 3
	}
	return &Checker{
		probe:  probe,
		cfg:    cfg,
		status: StatusUnknown,
		logger: logger,
	}
}

// SetTransitionHook configures the status transition callback.
func (c *Checker) SetTransitionHook(fn TransitionFunc) {
	c.onTransition = fn
}

// SetMetricsRecord configures the metrics recording callback.
func (c *Checker) SetMetricsRecord(fn MetricsRecordFunc) {
	c.onMetrics = fn
}

// Start runs the check loop until ctx is done.
func (c *Checker) Start(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.Check(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Check runs one probe, updates the status and returns whether it succeeded.
func (c *Checker) Check(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, c.cfg.ProbeTimeout)
	err := c.probe(probeCtx)
	cancel()
	success := err == nil

	if c.onMetrics != nil {
		c.onMetrics(success)
	}

	c.mu.Lock()
	prev := c.status
	if success {
		c.failCount = 0
		c.status = StatusHealthy
		c.lastSeenAt = time.Now().UTC()
		c.lastErr = ""
	} else {
		c.failCount++
		c.lastErr = err.Error()
		if c.failCount >= c.cfg.FailThreshold {
			c.status = StatusDegraded
		}
	}
	report := c.reportLocked()
	c.mu.Unlock()

	switch {
	case prev == StatusDegraded && report.Status == StatusHealthy:
		c.logger.Info("health: ledger recovered")
		c.transition(ctx, report)
	case prev != StatusDegraded && report.Status == StatusDegraded:
		c.logger.Warn("health: ledger degraded",
			zap.Int("fail_count", report.FailCount),
			zap.String("error", report.LastError),
		)
		c.transition(ctx, report)
	case !success:
		c.logger.Debug("health: probe failed", zap.Int("fail_count", report.FailCount), zap.Error(err))
	}
	return success
}

// Report returns the current state.
func (c *Checker) Report() Report {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reportLocked()
}

func (c *Checker) reportLocked() Report {
	return Report{
		Status:     c.status,
		FailCount:  c.failCount,
		LastSeenAt: c.lastSeenAt,
		LastError:  c.lastErr,
	}
}

func (c *Checker) transition(ctx context.Context, r Report) {
	if c.onTransition != nil {
		c.onTransition(ctx, r)
	}
}
