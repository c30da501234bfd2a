// Package monitoring evaluates pipeline runs and posts webhook alerts.
package monitoring

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/newsstream/internal/model"
)

// RunFunc performs one pipeline run and returns its pass reports.
type RunFunc func(ctx context.Context) ([]*model.PassReport, error)

// Checker repeats a run on an interval and alerts on each result.
type Checker struct {
	run      RunFunc
	alerter  *Alerter
	interval time.Duration
}

// NewChecker creates a periodic runner. A non-positive interval defaults to
// 15 minutes.
func NewChecker(run RunFunc, alerter *Alerter, interval time.Duration) *Checker {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &Checker{run: run, alerter: alerter, interval: interval}
}

// Run executes the first run immediately, then one per tick. It blocks until
// ctx is cancelled.
func (c *Checker) Run(ctx context.Context) {
	log := zap.L().With(zap.String("component", "monitoring.checker"))
	log.Info("starting scheduled runs", zap.Duration("interval", c.interval))

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		if ctx.Err() != nil {
			log.Info("scheduled runs stopped")
			return
		}
		c.Once(ctx)

		select {
		case <-ctx.Done():
			log.Info("scheduled runs stopped")
			return
		case <-ticker.C:
		}
	}
}

// Once performs a single run and delivers any alerts it triggers.
func (c *Checker) Once(ctx context.Context) ([]*model.PassReport, error) {
	reports, err := c.run(ctx)
	if err != nil {
		zap.L().Error("monitoring: run failed", zap.Error(err))
	}

	alerts := c.alerter.Evaluate(reports, err)
	if len(alerts) == 0 {
		zap.L().Debug("monitoring: no alerts triggered")
		return reports, err
	}

	sent := c.alerter.SendAlerts(ctx, alerts)
	zap.L().Info("monitoring: alert check complete",
		zap.Int("alerts_triggered", len(alerts)),
		zap.Int("alerts_sent", sent),
	)
	return reports, err
}
