// Package monitor is the read side: it combines the store, the baseline
// engine and the detector into the views served to the API and publishers.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/montanaflynn/stats"

	"github.com/ghalamif/NetPulse/internal/app/baseline"
	"github.com/ghalamif/NetPulse/internal/app/detector"
	"github.com/ghalamif/NetPulse/internal/domain"
	"github.com/ghalamif/NetPulse/internal/ports"
)

const DefaultSummaryWindow = 5 * time.Minute

// Snapshot is the metrics read port: the newest sample and the baseline it is
// judged against.
type Snapshot struct {
	Latest     *domain.Sample    `json:"latest,omitempty"`
	Baseline   domain.Baseline   `json:"baseline"`
	Current    domain.Throughput `json:"current_throughput"`
	Rating     string            `json:"rating"`
	UsualRange *LatencyRange     `json:"usual_range,omitempty"`
	LoopState  string            `json:"loop_state,omitempty"`
}

type LatencyRange struct {
	LowMs  float64 `json:"low_ms"`
	HighMs float64 `json:"high_ms"`
}

// Report is one evaluation. Reports are values; nothing about them is kept.
type Report struct {
	ID          string            `json:"id"`
	GeneratedAt time.Time         `json:"generated_at"`
	Latest      *domain.Sample    `json:"latest,omitempty"`
	Baseline    domain.Baseline   `json:"baseline"`
	Current     domain.Throughput `json:"current_throughput"`
	Anomalies   []domain.Anomaly  `json:"anomalies"`
	HasIssues   bool              `json:"has_issues"`
	Summary     string            `json:"summary"`
}

// Summary aggregates the raw samples of a window.
type Summary struct {
	Window         time.Duration `json:"window"`
	Count          int           `json:"count"`
	LatencySamples int           `json:"latency_samples"`
	AvgLatencyMs   float64       `json:"avg_latency_ms"`
	P95LatencyMs   float64       `json:"p95_latency_ms"`
	MaxLatencyMs   float64       `json:"max_latency_ms"`
	AvgLossPct     float64       `json:"avg_packet_loss_pct"`
	Degraded       int           `json:"degraded"`
}

type Option func(*Service)

func WithClock(c clock.Clock) Option {
	return func(s *Service) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithLoopState exposes the collection loop state in snapshots.
func WithLoopState(fn func() string) Option {
	return func(s *Service) {
		s.loopState = fn
	}
}

type Service struct {
	store     ports.Store
	engine    *baseline.Engine
	detector  *detector.Detector
	diagnoser ports.Diagnoser
	obs       ports.Observability
	clock     clock.Clock
	loopState func() string
}

func NewService(store ports.Store, engine *baseline.Engine, det *detector.Detector, diag ports.Diagnoser, obs ports.Observability, opts ...Option) (*Service, error) {
	if store == nil || engine == nil || det == nil {
		return nil, errors.New("store, baseline engine and detector are required")
	}
	if diag == nil {
		return nil, errors.New("diagnoser is required")
	}
	if obs == nil {
		return nil, errors.New("observability is required")
	}
	s := &Service{store: store, engine: engine, detector: det, diagnoser: diag, obs: obs, clock: clock.New()}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

func (s *Service) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	if s.loopState != nil {
		snap.LoopState = s.loopState()
	}

	latest, ok, err := s.store.Latest(ctx)
	if err != nil {
		return snap, fmt.Errorf("read latest sample: %w", err)
	}
	b, err := s.engine.Compute(ctx)
	if err != nil {
		return snap, err
	}
	snap.Baseline = b
	s.obs.SetGauge("netpulse_baseline_latency_ms", b.MeanLatencyMs)

	if !ok {
		snap.Rating = RatingUnknown
		return snap, nil
	}
	snap.Latest = &latest
	snap.Rating = Rate(latest)

	cur, err := s.engine.Current(ctx)
	if err != nil {
		return snap, err
	}
	snap.Current = cur
	if cur.Available {
		s.obs.SetGauge("netpulse_throughput_bps", cur.Bps)
	}

	if !b.Insufficient && b.LatencySamples > 0 {
		snap.UsualRange = &LatencyRange{
			LowMs:  max(0, b.MeanLatencyMs-10),
			HighMs: b.MeanLatencyMs + 10,
		}
	}
	return snap, nil
}

// Evaluate runs the detector against the current baseline. With an
// insufficient baseline only the absolute rules are consulted.
func (s *Service) Evaluate(ctx context.Context) (Report, error) {
	r := Report{
		ID:          uuid.NewString(),
		GeneratedAt: s.clock.Now(),
		Anomalies:   []domain.Anomaly{},
	}

	latest, ok, err := s.store.Latest(ctx)
	if err != nil {
		return r, fmt.Errorf("read latest sample: %w", err)
	}
	b, err := s.engine.Compute(ctx)
	if err != nil {
		return r, err
	}
	r.Baseline = b

	if !ok {
		r.Summary = "No network metrics available yet."
		return r, nil
	}
	r.Latest = &latest

	if b.Insufficient {
		// Ratio rules wait for a baseline; the loss threshold is absolute.
		if found := s.detector.AbsoluteRules(latest); len(found) > 0 {
			r.Anomalies = found
			r.HasIssues = true
			s.obs.IncCounter("netpulse_anomalies_total", float64(len(found)))
			r.Summary = summarize(latest, found) + ". Collecting baseline: " + b.Reason + "."
			return r, nil
		}
		r.Summary = "Collecting baseline: " + b.Reason + "."
		return r, nil
	}

	cur, err := s.engine.Current(ctx)
	if err != nil {
		return r, err
	}
	r.Current = cur

	if found := s.detector.Evaluate(detector.Observation{Latest: latest, Current: cur}, b); len(found) > 0 {
		r.Anomalies = found
		s.obs.IncCounter("netpulse_anomalies_total", float64(len(found)))
	}
	r.HasIssues = len(r.Anomalies) > 0
	r.Summary = summarize(latest, r.Anomalies)
	return r, nil
}

// Diagnose evaluates and hands the result to the configured generator.
func (s *Service) Diagnose(ctx context.Context) (ports.Diagnosis, Report, error) {
	r, err := s.Evaluate(ctx)
	if err != nil {
		return ports.Diagnosis{}, r, err
	}
	in := ports.DiagnosisInput{Anomalies: r.Anomalies}
	if r.Latest != nil {
		in.Latest = *r.Latest
		if !r.Baseline.Insufficient {
			b := r.Baseline
			in.Baseline = &b
		}
	}

	d, err := s.diagnoser.Diagnose(ctx, in)
	if err != nil {
		return ports.Diagnosis{}, r, fmt.Errorf("diagnose: %w", err)
	}
	return d, r, nil
}

func (s *Service) Summary(ctx context.Context, window time.Duration) (Summary, error) {
	if window <= 0 {
		window = DefaultSummaryWindow
	}
	samples, err := s.store.Recent(ctx, window)
	if err != nil {
		return Summary{}, fmt.Errorf("read summary window: %w", err)
	}
	return Summarize(samples, window), nil
}

// Summarize aggregates samples without judging them.
func Summarize(samples []domain.Sample, window time.Duration) Summary {
	sum := Summary{Window: window, Count: len(samples)}
	if len(samples) == 0 {
		return sum
	}
	var latencies, losses []float64
	for i := range samples {
		if samples[i].HasLatency() {
			latencies = append(latencies, samples[i].Latency())
		}
		if samples[i].Degraded() {
			sum.Degraded++
		}
		if samples[i].ProbeError == "" {
			losses = append(losses, samples[i].PacketLossPct)
		}
	}
	sum.LatencySamples = len(latencies)
	if len(latencies) > 0 {
		sum.AvgLatencyMs, _ = stats.Mean(latencies)
		sum.P95LatencyMs, _ = stats.Percentile(latencies, 95)
		sum.MaxLatencyMs, _ = stats.Max(latencies)
	}
	if len(losses) > 0 {
		sum.AvgLossPct, _ = stats.Mean(losses)
	}
	return sum
}

const (
	RatingExcellent = "excellent"
	RatingGood      = "good"
	RatingFair      = "fair"
	RatingPoor      = "poor"
	RatingUnknown   = "unknown"
)

// Rate buckets the latest latency. A sample without latency is poor.
func Rate(s domain.Sample) string {
	if !s.HasLatency() {
		return RatingPoor
	}
	switch l := s.Latency(); {
	case l < 20:
		return RatingExcellent
	case l < 50:
		return RatingGood
	case l < 100:
		return RatingFair
	default:
		return RatingPoor
	}
}

func summarize(latest domain.Sample, anomalies []domain.Anomaly) string {
	if len(anomalies) == 0 {
		if !latest.HasLatency() {
			return "Network health normal. No latency reading this cycle."
		}
		if latest.PacketLossPct > 0 {
			return fmt.Sprintf("Network health normal. Latency: %.1fms, packet loss %.1f%%.", latest.Latency(), latest.PacketLossPct)
		}
		return fmt.Sprintf("Network health normal. Latency: %.1fms, no packet loss.", latest.Latency())
	}
	parts := make([]string, 0, len(anomalies))
	for _, a := range anomalies {
		parts = append(parts, a.Message)
	}
	return "Detected issues: " + strings.Join(parts, ", ")
}
