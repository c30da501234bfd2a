package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/newsstream/internal/config"
	"github.com/sells-group/newsstream/internal/model"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertPassFailureRate AlertType = "pass_failure_rate"
	AlertFeedFailure     AlertType = "feed_failure"
	AlertRunError        AlertType = "run_error"
)

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates pass reports against configured thresholds and sends
// alerts via webhook when thresholds are breached.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	if cfg.MinSample <= 0 {
		cfg.MinSample = 5
	}
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Evaluate checks the reports of one run and returns any alerts. runErr is
// the error that stopped the run, if any.
func (a *Alerter) Evaluate(reports []*model.PassReport, runErr error) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	if runErr != nil {
		alerts = append(alerts, Alert{
			Type:      AlertRunError,
			Severity:  "high",
			Message:   fmt.Sprintf("Run stopped before completing: %v", runErr),
			Timestamp: now,
		})
	}

	for _, r := range reports {
		if r == nil {
			continue
		}

		// Collect failures are per feed and worth reporting even one at a time.
		if r.Pass == "collect" {
			if failed := r.Failed(); failed > 0 {
				alerts = append(alerts, Alert{
					Type:     AlertFeedFailure,
					Severity: "medium",
					Message:  fmt.Sprintf("%d feed or stub failure(s) during collect", failed),
					Details: map[string]any{
						"failed": failed,
						"urls":   failedURLs(r),
					},
					Timestamp: now,
				})
			}
			continue
		}

		finished := r.Succeeded() + r.Failed()
		if finished < a.cfg.MinSample {
			continue
		}
		rate := float64(r.Failed()) / float64(finished)
		if rate > a.cfg.FailureRateThreshold {
			alerts = append(alerts, Alert{
				Type:     AlertPassFailureRate,
				Severity: "high",
				Message: fmt.Sprintf(
					"%s failure rate %.1f%% exceeds threshold %.1f%% (%d failed / %d finished)",
					r.Pass, rate*100, a.cfg.FailureRateThreshold*100, r.Failed(), finished,
				),
				Details: map[string]any{
					"pass":         r.Pass,
					"failure_rate": rate,
					"threshold":    a.cfg.FailureRateThreshold,
					"failed":       r.Failed(),
					"finished":     finished,
				},
				Timestamp: now,
			})
		}
	}

	return alerts
}

func failedURLs(r *model.PassReport) []string {
	var urls []string
	for _, o := range r.Outcomes {
		if o.Status == model.OutcomeFailed {
			urls = append(urls, o.URL)
		}
	}
	return urls
}

// SendAlerts delivers alerts to the configured webhook URL.
// Returns the number of alerts successfully sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		if err := a.sendWebhook(ctx, alert); err != nil {
			zap.L().Error("monitoring: failed to send alert",
				zap.String("type", string(alert.Type)),
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("monitoring: alert sent",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
		)
		sent++
	}
	return sent
}

func (a *Alerter) sendWebhook(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
