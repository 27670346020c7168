package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/ghalamif/NetPulse/internal/ports"
)

// Watcher periodically evaluates and publishes the report. It is a reader
// like the HTTP API and keeps no detection state between runs.
type Watcher struct {
	svc      *Service
	pub      ports.ReportPublisher
	obs      ports.Observability
	clock    clock.Clock
	interval time.Duration
}

func NewWatcher(svc *Service, pub ports.ReportPublisher, obs ports.Observability, interval time.Duration) (*Watcher, error) {
	if svc == nil || pub == nil || obs == nil {
		return nil, errors.New("service, publisher and observability are required")
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Watcher{svc: svc, pub: pub, obs: obs, clock: svc.clock, interval: interval}, nil
}

func (w *Watcher) Run(ctx context.Context) error {
	ticker := w.clock.Ticker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := w.PublishOnce(ctx); err != nil && ctx.Err() == nil {
				w.obs.LogError("report_publish_failed", err)
			}
		}
	}
}

// PublishOnce evaluates and publishes a single report as JSON.
func (w *Watcher) PublishOnce(ctx context.Context) error {
	r, err := w.svc.Evaluate(ctx)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(r)
	if err != nil {
		return err
	}
	if err := w.pub.Publish(ctx, payload); err != nil {
		return err
	}
	w.obs.IncCounter("netpulse_reports_published_total", 1)
	return nil
}
