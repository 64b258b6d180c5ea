package monitoring

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/policy-tracker/internal/config"
	"github.com/sells-group/policy-tracker/internal/metrics"
)

const (
	defaultCheckInterval = 5 * time.Minute
	defaultLookbackHours = 24
)

// Checker collects a snapshot on a fixed interval, exports it as gauges and
// forwards any alerts.
type Checker struct {
	collector *Collector
	alerter   *Alerter
	interval  time.Duration
	lookback  int
	staleH    int
	log       *zap.Logger
}

// NewChecker creates a Checker. Unset interval and lookback fall back to
// five minutes and a day.
func NewChecker(collector *Collector, alerter *Alerter, cfg config.MonitoringConfig) *Checker {
	c := &Checker{
		collector: collector,
		alerter:   alerter,
		interval:  time.Duration(cfg.CheckIntervalSecs) * time.Second,
		lookback:  cfg.LookbackWindowHours,
		staleH:    cfg.StaleTaskHours,
		log:       zap.L().With(zap.String("component", "monitoring")),
	}
	if c.interval <= 0 {
		c.interval = defaultCheckInterval
	}
	if c.lookback <= 0 {
		c.lookback = defaultLookbackHours
	}
	return c
}

// Run checks once immediately and then on every tick until ctx is done.
func (c *Checker) Run(ctx context.Context) {
	c.log.Info("health checker started",
		zap.Duration("interval", c.interval),
		zap.Int("lookback_hours", c.lookback),
	)
	defer c.log.Info("health checker stopped")

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		if ctx.Err() != nil {
			return
		}
		c.Check(ctx)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Check runs a single pass and returns the alerts it raised, delivered or
// not.
func (c *Checker) Check(ctx context.Context) []Alert {
	snap, err := c.collector.Collect(ctx, c.lookback, c.staleH)
	if err != nil {
		c.log.Error("collect snapshot", zap.Error(err))
		return nil
	}
	metrics.ObserveHealth(snap.TasksOpen, snap.StaleTasks, snap.AICostUSD)

	alerts := c.alerter.Evaluate(snap)
	if len(alerts) > 0 {
		sent := c.alerter.SendAlerts(ctx, alerts)
		c.log.Info("health check raised alerts",
			zap.Int("raised", len(alerts)),
			zap.Int("sent", sent),
		)
	}
	return alerts
}
