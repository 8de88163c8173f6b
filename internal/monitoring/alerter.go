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

	"github.com/sells-group/signal-engine/internal/config"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertPatternAccuracy AlertType = "pattern_accuracy"
	AlertOverallAccuracy AlertType = "overall_accuracy"
)

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates a MetricsSnapshot against configured thresholds
// and sends alerts via webhook when thresholds are breached.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Evaluate checks the snapshot against thresholds and returns any alerts.
// A pattern only alerts once it has resolved enough predictions to make its
// accuracy meaningful.
func (a *Alerter) Evaluate(snap *MetricsSnapshot) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	for _, sm := range snap.Sessions {
		for _, pm := range sm.Patterns {
			if pm.Total < a.cfg.AlertMinTotal || pm.Accuracy >= a.cfg.AlertAccuracy {
				continue
			}
			alerts = append(alerts, Alert{
				Type:     AlertPatternAccuracy,
				Severity: "high",
				Message: fmt.Sprintf(
					"Pattern %s in session %s at %.1f%% accuracy (%d/%d), below %.1f%%",
					pm.PatternID, sm.Session, pm.Accuracy*100, pm.Correct, pm.Total,
					a.cfg.AlertAccuracy*100,
				),
				Details: map[string]any{
					"session":   sm.Session,
					"pattern":   pm.PatternID,
					"accuracy":  pm.Accuracy,
					"total":     pm.Total,
					"threshold": a.cfg.AlertAccuracy,
				},
				Timestamp: now,
			})
		}
	}

	if snap.TotalResolved >= a.cfg.AlertMinTotal && snap.OverallAccuracy < a.cfg.AlertAccuracy {
		alerts = append(alerts, Alert{
			Type:     AlertOverallAccuracy,
			Severity: "high",
			Message: fmt.Sprintf(
				"Overall accuracy %.1f%% across %d resolutions, below %.1f%%",
				snap.OverallAccuracy*100, snap.TotalResolved, a.cfg.AlertAccuracy*100,
			),
			Details: map[string]any{
				"accuracy":  snap.OverallAccuracy,
				"resolved":  snap.TotalResolved,
				"threshold": a.cfg.AlertAccuracy,
			},
			Timestamp: now,
		})
	}

	return alerts
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

// sendWebhook posts a single alert to the webhook URL.
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
