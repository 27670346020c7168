// Package detector turns a baseline and the latest observation into anomalies.
// Evaluation is a pure function of its inputs.
package detector

import (
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/ghalamif/NetPulse/internal/domain"
)

// Thresholds are the rule parameters. Zero values are replaced by defaults,
// except for the loss threshold and the baseline floors when they were set
// explicitly in YAML, where zero is a meaningful setting.
type Thresholds struct {
	LatencyRatio             float64 `yaml:"latency_ratio"`
	MinBaselineLatencyMs     float64 `yaml:"min_baseline_latency_ms"`
	LossPct                  float64 `yaml:"loss_pct"`
	ThroughputRatio          float64 `yaml:"throughput_ratio"`
	MinBaselineThroughputBps float64 `yaml:"min_baseline_throughput_bps"`

	decoded bool
}

func DefaultThresholds() Thresholds {
	t := Thresholds{}
	t.ApplyDefaults()
	return t
}

// UnmarshalYAML fills omitted keys with defaults so that the keys present keep
// their value, zero included.
func (t *Thresholds) UnmarshalYAML(n *yaml.Node) error {
	var raw struct {
		LatencyRatio             *float64 `yaml:"latency_ratio"`
		MinBaselineLatencyMs     *float64 `yaml:"min_baseline_latency_ms"`
		LossPct                  *float64 `yaml:"loss_pct"`
		ThroughputRatio          *float64 `yaml:"throughput_ratio"`
		MinBaselineThroughputBps *float64 `yaml:"min_baseline_throughput_bps"`
	}
	if err := n.Decode(&raw); err != nil {
		return err
	}
	*t = DefaultThresholds()
	for _, f := range []struct {
		src *float64
		dst *float64
	}{
		{raw.LatencyRatio, &t.LatencyRatio},
		{raw.MinBaselineLatencyMs, &t.MinBaselineLatencyMs},
		{raw.LossPct, &t.LossPct},
		{raw.ThroughputRatio, &t.ThroughputRatio},
		{raw.MinBaselineThroughputBps, &t.MinBaselineThroughputBps},
	} {
		if f.src != nil {
			*f.dst = *f.src
		}
	}
	t.decoded = true
	return nil
}

func (t *Thresholds) ApplyDefaults() {
	if t.LatencyRatio == 0 {
		t.LatencyRatio = 1.30
	}
	if t.ThroughputRatio == 0 {
		t.ThroughputRatio = 0.80
	}
	if t.decoded {
		return
	}
	if t.MinBaselineLatencyMs == 0 {
		t.MinBaselineLatencyMs = 0.01
	}
	if t.LossPct == 0 {
		t.LossPct = 2.0
	}
	if t.MinBaselineThroughputBps == 0 {
		t.MinBaselineThroughputBps = 1000
	}
}

func (t *Thresholds) Validate() error {
	if t.LatencyRatio <= 1 {
		return errors.New("latency_ratio must be > 1")
	}
	if t.LossPct < 0 || t.LossPct >= 100 {
		return errors.New("loss_pct must be in [0,100)")
	}
	if t.ThroughputRatio <= 0 || t.ThroughputRatio >= 1 {
		return errors.New("throughput_ratio must be in (0,1)")
	}
	if t.MinBaselineLatencyMs < 0 || t.MinBaselineThroughputBps < 0 {
		return errors.New("baseline floors must be >= 0")
	}
	return nil
}

// Observation is what gets compared against the baseline: the newest sample
// and the throughput over the short current window.
type Observation struct {
	Latest  domain.Sample
	Current domain.Throughput
}

type Detector struct {
	th Thresholds
}

func New(th Thresholds) *Detector {
	th.ApplyDefaults()
	return &Detector{th: th}
}

func (d *Detector) Thresholds() Thresholds { return d.th }

// Evaluate returns the anomalies obs shows against b. An insufficient
// baseline never yields anomalies here; callers that still want the
// baseline-independent rules use AbsoluteRules.
func (d *Detector) Evaluate(obs Observation, b domain.Baseline) []domain.Anomaly {
	if b.Insufficient {
		return nil
	}

	var out []domain.Anomaly
	if a, ok := d.latencySpike(obs.Latest, b); ok {
		out = append(out, a)
	}
	if a, ok := d.packetLoss(obs.Latest, b); ok {
		out = append(out, a)
	}
	if a, ok := d.throughputDrop(obs, b); ok {
		out = append(out, a)
	}
	return out
}

// AbsoluteRules runs only the rules that do not compare against a baseline.
// Today that is packet loss above the configured percentage.
func (d *Detector) AbsoluteRules(latest domain.Sample) []domain.Anomaly {
	if a, ok := d.packetLoss(latest, domain.Baseline{}); ok {
		return []domain.Anomaly{a}
	}
	return nil
}

func (d *Detector) latencySpike(latest domain.Sample, b domain.Baseline) (domain.Anomaly, bool) {
	if !latest.HasLatency() || b.LatencySamples == 0 || b.MeanLatencyMs <= d.th.MinBaselineLatencyMs {
		return domain.Anomaly{}, false
	}
	observed := latest.Latency()
	threshold := b.MeanLatencyMs * d.th.LatencyRatio
	if observed <= threshold {
		return domain.Anomaly{}, false
	}
	sev := observed/b.MeanLatencyMs - 1
	return domain.Anomaly{
		Kind:          domain.KindLatencySpike,
		ObservedValue: observed,
		BaselineValue: b.MeanLatencyMs,
		Threshold:     threshold,
		Severity:      sev,
		Level:         ratioLevel(sev),
		Timestamp:     latest.Timestamp,
		Message: fmt.Sprintf("latency spike of %.0f%% (now %.1fms, baseline %.1fms)",
			sev*100, observed, b.MeanLatencyMs),
	}, true
}

func (d *Detector) packetLoss(latest domain.Sample, b domain.Baseline) (domain.Anomaly, bool) {
	loss := latest.PacketLossPct
	if loss <= d.th.LossPct {
		return domain.Anomaly{}, false
	}
	sev, level := lossSeverity(loss)
	return domain.Anomaly{
		Kind:          domain.KindPacketLoss,
		ObservedValue: loss,
		BaselineValue: b.MeanLossPct,
		Threshold:     d.th.LossPct,
		Severity:      sev,
		Level:         level,
		Timestamp:     latest.Timestamp,
		Message:       fmt.Sprintf("packet loss of %.1f%%", loss),
	}, true
}

func (d *Detector) throughputDrop(obs Observation, b domain.Baseline) (domain.Anomaly, bool) {
	if !obs.Current.Available || b.ThroughputPairs == 0 || b.MeanThroughputBps <= d.th.MinBaselineThroughputBps {
		return domain.Anomaly{}, false
	}
	observed := obs.Current.Bps
	threshold := b.MeanThroughputBps * d.th.ThroughputRatio
	if observed >= threshold {
		return domain.Anomaly{}, false
	}
	sev := 1 - observed/b.MeanThroughputBps
	return domain.Anomaly{
		Kind:          domain.KindThroughputDrop,
		ObservedValue: observed,
		BaselineValue: b.MeanThroughputBps,
		Threshold:     threshold,
		Severity:      sev,
		Level:         ratioLevel(sev),
		Timestamp:     obs.Latest.Timestamp,
		Message: fmt.Sprintf("throughput drop of %.0f%% (now %.0f bit/s, baseline %.0f bit/s)",
			sev*100, observed, b.MeanThroughputBps),
	}, true
}

func ratioLevel(sev float64) domain.SeverityLevel {
	switch {
	case sev < 0.5:
		return domain.LevelMinor
	case sev < 1.0:
		return domain.LevelMajor
	default:
		return domain.LevelCritical
	}
}

func lossSeverity(loss float64) (float64, domain.SeverityLevel) {
	switch {
	case loss <= 5:
		return 1, domain.LevelMinor
	case loss <= 20:
		return 2, domain.LevelMajor
	default:
		return 3, domain.LevelCritical
	}
}
