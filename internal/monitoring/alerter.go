package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/policy-tracker/internal/config"
	"github.com/sells-group/policy-tracker/internal/resilience"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertTaskFailureRate AlertType = "task_failure_rate"
	AlertStaleTasks      AlertType = "stale_tasks"
	AlertCostOverrun     AlertType = "cost_overrun"
)

// minFinishedTasks is how many finished tasks the failure rate needs
// before it is trusted.
const minFinishedTasks = 5

const defaultRepeatAfter = time.Hour

// Alert is one breached threshold.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// rule inspects a snapshot and reports the alert it raises, if any.
type rule func(cfg config.MonitoringConfig, s *Snapshot) (Alert, bool)

var rules = []rule{taskFailureRule, staleTaskRule, costRule}

func taskFailureRule(cfg config.MonitoringConfig, s *Snapshot) (Alert, bool) {
	finished := s.TasksCompleted + s.TasksFailed
	if cfg.FailureRateThreshold <= 0 || finished < minFinishedTasks || s.TaskFailRate <= cfg.FailureRateThreshold {
		return Alert{}, false
	}
	return Alert{
		Type:     AlertTaskFailureRate,
		Severity: "high",
		Message: fmt.Sprintf("Task failure rate %.1f%% exceeds threshold %.1f%% (%d failed / %d finished in last %dh)",
			s.TaskFailRate*100, cfg.FailureRateThreshold*100, s.TasksFailed, finished, s.LookbackHours),
		Details: map[string]any{
			"failure_rate": s.TaskFailRate,
			"threshold":    cfg.FailureRateThreshold,
			"failed":       s.TasksFailed,
			"finished":     finished,
		},
	}, true
}

func staleTaskRule(_ config.MonitoringConfig, s *Snapshot) (Alert, bool) {
	if s.StaleTasks == 0 {
		return Alert{}, false
	}
	return Alert{
		Type:     AlertStaleTasks,
		Severity: "medium",
		Message:  fmt.Sprintf("%d open task(s) untouched for more than %dh", s.StaleTasks, s.StaleAfterHours),
		Details: map[string]any{
			"stale_tasks": s.StaleTasks,
			"open_tasks":  s.TasksOpen,
		},
	}, true
}

func costRule(cfg config.MonitoringConfig, s *Snapshot) (Alert, bool) {
	if cfg.CostThresholdUSD <= 0 || s.AICostUSD <= cfg.CostThresholdUSD {
		return Alert{}, false
	}
	return Alert{
		Type:     AlertCostOverrun,
		Severity: "high",
		Message: fmt.Sprintf("AI cost $%.2f exceeds threshold $%.2f in last %dh",
			s.AICostUSD, cfg.CostThresholdUSD, s.LookbackHours),
		Details: map[string]any{
			"cost_usd":      s.AICostUSD,
			"threshold_usd": cfg.CostThresholdUSD,
			"calls":         s.AICalls,
			"tokens":        s.AITokens,
		},
	}, true
}

// Alerter turns snapshots into alerts and posts them to a webhook. An alert
// type that was delivered recently is held back until the repeat window
// passes.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
	retry  resilience.Policy
	now    func() time.Time

	mu       sync.Mutex
	lastSent map[AlertType]time.Time
}

// NewAlerter creates an Alerter.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	retry := resilience.DefaultPolicy()
	retry.Notify = resilience.LogRetries("monitoring", "webhook")
	return &Alerter{
		cfg:      cfg,
		client:   &http.Client{Timeout: 10 * time.Second},
		retry:    retry,
		now:      time.Now,
		lastSent: make(map[AlertType]time.Time),
	}
}

// Evaluate returns the alerts the snapshot triggers.
func (a *Alerter) Evaluate(snap *Snapshot) []Alert {
	var alerts []Alert
	for _, r := range rules {
		if alert, ok := r(a.cfg, snap); ok {
			alert.Timestamp = snap.CollectedAt
			alerts = append(alerts, alert)
		}
	}
	return alerts
}

func (a *Alerter) repeatAfter() time.Duration {
	if a.cfg.RepeatAfterMins > 0 {
		return time.Duration(a.cfg.RepeatAfterMins) * time.Minute
	}
	return defaultRepeatAfter
}

// due reports whether an alert of type t may be sent now.
func (a *Alerter) due(t AlertType) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	last, ok := a.lastSent[t]
	return !ok || a.now().Sub(last) >= a.repeatAfter()
}

func (a *Alerter) markSent(t AlertType) {
	a.mu.Lock()
	a.lastSent[t] = a.now()
	a.mu.Unlock()
}

// SendAlerts delivers alerts to the configured webhook and returns how many
// were accepted. Without a webhook nothing is sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		if !a.due(alert.Type) {
			zap.L().Debug("monitoring: alert suppressed", zap.String("type", string(alert.Type)))
			continue
		}
		err := resilience.Do(ctx, a.retry, func(ctx context.Context) error {
			return a.post(ctx, alert)
		})
		if err != nil {
			zap.L().Error("monitoring: failed to send alert",
				zap.String("type", string(alert.Type)),
				zap.Error(err),
			)
			continue
		}
		a.markSent(alert.Type)
		zap.L().Info("monitoring: alert sent",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
		)
		sent++
	}
	return sent
}

func (a *Alerter) post(ctx context.Context, alert Alert) error {
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
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &resilience.StatusError{Service: "monitoring webhook", Status: resp.StatusCode, Body: string(body)}
	}
	return nil
}
