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

	"github.com/foundationrisk/soilrisk/internal/config"
	"github.com/foundationrisk/soilrisk/internal/resilience"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertSoilCoverage       AlertType = "soil_coverage"
	AlertMissingCoordinates AlertType = "missing_coordinates"
)

// minLocationsForCoverage keeps a near-empty catalog from alerting.
const minLocationsForCoverage = 5

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates a Snapshot against configured thresholds
// and posts breaches to a webhook.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
	retry  resilience.RetryConfig
}

// webhookRetry gives a flapping receiver a second chance without holding up
// the next check.
var webhookRetry = resilience.RetryConfig{
	MaxAttempts:    2,
	InitialBackoff: 500 * time.Millisecond,
	MaxBackoff:     2 * time.Second,
	Multiplier:     2,
	OnRetry:        resilience.RetryLogger("webhook"),
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		retry:  webhookRetry,
	}
}

// Evaluate checks the snapshot against thresholds and returns any alerts.
func (a *Alerter) Evaluate(snap *Snapshot) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	if snap.LocationsWithCoords >= minLocationsForCoverage && snap.SoilCoverage < a.cfg.MinSoilCoverage {
		alerts = append(alerts, Alert{
			Type:     AlertSoilCoverage,
			Severity: "high",
			Message: fmt.Sprintf(
				"Soil coverage %.1f%% is below threshold %.1f%% (%d of %d located places have soil data)",
				snap.SoilCoverage*100, a.cfg.MinSoilCoverage*100,
				snap.LocationsWithSoil, snap.LocationsWithCoords,
			),
			Details: map[string]any{
				"coverage":         snap.SoilCoverage,
				"threshold":        a.cfg.MinSoilCoverage,
				"with_soil":        snap.LocationsWithSoil,
				"with_coordinates": snap.LocationsWithCoords,
			},
			Timestamp: now,
		})
	}

	if snap.LocationsMissingGeo > 0 {
		alerts = append(alerts, Alert{
			Type:     AlertMissingCoordinates,
			Severity: "medium",
			Message: fmt.Sprintf(
				"%d of %d location(s) have no coordinates and are excluded from related cities",
				snap.LocationsMissingGeo, snap.LocationsTotal,
			),
			Details: map[string]any{
				"missing": snap.LocationsMissingGeo,
				"total":   snap.LocationsTotal,
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

// sendWebhook posts a single alert, retrying throttling and 5xx replies.
func (a *Alerter) sendWebhook(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	_, err = resilience.Do(ctx, a.retry, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, a.post(ctx, payload)
	})
	return err
}

func (a *Alerter) post(ctx context.Context, payload []byte) error {
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
		return resilience.NewStatusError("webhook", resp.StatusCode)
	}
	return nil
}
