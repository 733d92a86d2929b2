// Package monitoring watches open review records for overdue SLA deadlines.
// Deadlines stay advisory: an overdue record is alerted on, never moved.
package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/veridocs/reviewctl/internal/model"
	"github.com/veridocs/reviewctl/internal/store"
)

// Alert represents one overdue record notification.
type Alert struct {
	RecordID    string              `json:"record_id"`
	ContentID   string              `json:"content_id"`
	State       model.WorkflowState `json:"state"`
	RiskLevel   model.RiskLevel     `json:"risk_level"`
	Deadline    time.Time           `json:"deadline"`
	OverdueBy   string              `json:"overdue_by"`
	GeneratedAt time.Time           `json:"generated_at"`
}

// Collector finds open records whose advisory deadline has passed.
type Collector struct {
	store store.Store
}

// NewCollector creates a Collector over the given store.
func NewCollector(st store.Store) *Collector {
	return &Collector{store: st}
}

// Collect returns an alert for each unarchived record that is past its
// deadline and not yet published.
func (c *Collector) Collect(ctx context.Context) ([]Alert, error) {
	archived := false
	recs, err := c.store.ListRecords(ctx, store.RecordFilter{Archived: &archived, Limit: 1000})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list records")
	}

	now := time.Now().UTC()
	var alerts []Alert
	for _, r := range recs {
		if r.SLADeadline == nil || !r.SLADeadline.Before(now) {
			continue
		}
		switch r.State {
		case model.StatePublished, model.StatePostMergeLogged:
			continue
		}
		alerts = append(alerts, Alert{
			RecordID:    r.ID,
			ContentID:   r.ContentID,
			State:       r.State,
			RiskLevel:   r.RiskLevel,
			Deadline:    *r.SLADeadline,
			OverdueBy:   now.Sub(*r.SLADeadline).Round(time.Minute).String(),
			GeneratedAt: now,
		})
	}
	return alerts, nil
}

// Alerter delivers overdue alerts to a webhook, or only to the log when no
// webhook is configured.
type Alerter struct {
	webhookURL string
	client     *http.Client
}

// NewAlerter creates an Alerter. An empty webhookURL means log-only.
func NewAlerter(webhookURL string) *Alerter {
	return &Alerter{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

// Send delivers the alerts and returns how many were delivered.
func (a *Alerter) Send(ctx context.Context, alerts []Alert) int {
	sent := 0
	for _, alert := range alerts {
		zap.L().Warn("record past SLA deadline",
			zap.String("record_id", alert.RecordID),
			zap.String("state", string(alert.State)),
			zap.String("risk_level", string(alert.RiskLevel)),
			zap.String("overdue_by", alert.OverdueBy),
		)
		if a.webhookURL == "" {
			continue
		}
		if err := a.post(ctx, alert); err != nil {
			zap.L().Error("monitoring: alert delivery failed",
				zap.String("record_id", alert.RecordID),
				zap.Error(err),
			)
			continue
		}
		sent++
	}
	return sent
}

func (a *Alerter) post(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: send alert")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// Checker runs the overdue scan on an interval. It blocks until ctx is
// cancelled.
type Checker struct {
	collector *Collector
	alerter   *Alerter
	interval  time.Duration
}

// NewChecker creates a background SLA checker.
func NewChecker(collector *Collector, alerter *Alerter, interval time.Duration) *Checker {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Checker{collector: collector, alerter: alerter, interval: interval}
}

// Run starts the periodic check loop.
func (c *Checker) Run(ctx context.Context) {
	log := zap.L().With(zap.String("component", "monitoring.sla"))
	log.Info("starting SLA checker", zap.Duration("interval", c.interval))

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("SLA checker stopped")
			return
		case <-ticker.C:
			alerts, err := c.collector.Collect(ctx)
			if err != nil {
				log.Error("monitoring: collect failed", zap.Error(err))
				continue
			}
			if len(alerts) == 0 {
				log.Debug("monitoring: no overdue records")
				continue
			}
			sent := c.alerter.Send(ctx, alerts)
			log.Info("monitoring: SLA check complete",
				zap.Int("overdue", len(alerts)),
				zap.Int("alerts_sent", sent),
			)
		}
	}
}
