package detector

import (
	"math"
	"reflect"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ghalamif/NetPulse/internal/domain"
)

func latencyBaseline(mean float64) domain.Baseline {
	return domain.Baseline{SampleCount: 10, LatencySamples: 10, MeanLatencyMs: mean}
}

func sampleWithLatency(ms float64) domain.Sample {
	return domain.Sample{Timestamp: time.Unix(1_700_000_000, 0), LatencyMs: domain.Float64(ms)}
}

func TestLatencySpike(t *testing.T) {
	d := New(Thresholds{})

	got := d.Evaluate(Observation{Latest: sampleWithLatency(53)}, latencyBaseline(40))
	if len(got) != 1 || got[0].Kind != domain.KindLatencySpike {
		t.Fatalf("expected latency spike for 53ms over 40ms, got %+v", got)
	}
	if math.Abs(got[0].Severity-0.325) > 1e-9 || got[0].Level != domain.LevelMinor {
		t.Fatalf("unexpected severity %v level %s", got[0].Severity, got[0].Level)
	}
	if got[0].BaselineValue != 40 || math.Abs(got[0].Threshold-52) > 1e-9 {
		t.Fatalf("unexpected baseline/threshold %+v", got[0])
	}

	if got := d.Evaluate(Observation{Latest: sampleWithLatency(50)}, latencyBaseline(40)); len(got) != 0 {
		t.Fatalf("expected no anomaly for 50ms over 40ms, got %+v", got)
	}
}

func TestLatencySpikeLevels(t *testing.T) {
	d := New(Thresholds{})
	cases := []struct {
		ms   float64
		want domain.SeverityLevel
	}{
		{70, domain.LevelMajor},
		{100, domain.LevelCritical},
	}
	for _, tc := range cases {
		got := d.Evaluate(Observation{Latest: sampleWithLatency(tc.ms)}, latencyBaseline(40))
		if len(got) != 1 || got[0].Level != tc.want {
			t.Fatalf("latency %v: expected level %s, got %+v", tc.ms, tc.want, got)
		}
	}
}

func TestLatencySpikeSkippedWithoutBaselineLatency(t *testing.T) {
	d := New(Thresholds{})
	if got := d.Evaluate(Observation{Latest: sampleWithLatency(5)}, latencyBaseline(0)); len(got) != 0 {
		t.Fatalf("expected no latency rule against a zero baseline, got %+v", got)
	}
	noLatency := domain.Sample{Timestamp: time.Unix(1, 0)}
	if got := d.Evaluate(Observation{Latest: noLatency}, latencyBaseline(40)); len(got) != 0 {
		t.Fatalf("expected no latency rule without a reading, got %+v", got)
	}
}

func TestPacketLoss(t *testing.T) {
	d := New(Thresholds{})
	cases := []struct {
		loss  float64
		fire  bool
		sev   float64
		level domain.SeverityLevel
	}{
		{2.0, false, 0, ""},
		{2.5, true, 1, domain.LevelMinor},
		{5, true, 1, domain.LevelMinor},
		{12, true, 2, domain.LevelMajor},
		{100, true, 3, domain.LevelCritical},
	}
	for _, tc := range cases {
		s := sampleWithLatency(40)
		s.PacketLossPct = tc.loss
		got := d.Evaluate(Observation{Latest: s}, latencyBaseline(40))
		if !tc.fire {
			if len(got) != 0 {
				t.Fatalf("loss %v: expected nothing, got %+v", tc.loss, got)
			}
			continue
		}
		if len(got) != 1 || got[0].Kind != domain.KindPacketLoss {
			t.Fatalf("loss %v: expected packet_loss, got %+v", tc.loss, got)
		}
		if got[0].Severity != tc.sev || got[0].Level != tc.level {
			t.Fatalf("loss %v: expected %v/%s, got %v/%s", tc.loss, tc.sev, tc.level, got[0].Severity, got[0].Level)
		}
	}
}

func TestThroughputDrop(t *testing.T) {
	d := New(Thresholds{})
	b := domain.Baseline{SampleCount: 10, ThroughputPairs: 9, MeanThroughputBps: 1_000_000}

	got := d.Evaluate(Observation{
		Latest:  domain.Sample{Timestamp: time.Unix(1, 0)},
		Current: domain.Throughput{Bps: 750_000, Pairs: 5, Available: true},
	}, b)
	if len(got) != 1 || got[0].Kind != domain.KindThroughputDrop {
		t.Fatalf("expected throughput drop at 750k, got %+v", got)
	}
	if math.Abs(got[0].Severity-0.25) > 1e-9 || got[0].Level != domain.LevelMinor {
		t.Fatalf("unexpected severity %+v", got[0])
	}

	got = d.Evaluate(Observation{
		Latest:  domain.Sample{Timestamp: time.Unix(1, 0)},
		Current: domain.Throughput{Bps: 850_000, Pairs: 5, Available: true},
	}, b)
	if len(got) != 0 {
		t.Fatalf("expected no anomaly at 850k, got %+v", got)
	}

	idle := domain.Baseline{SampleCount: 10, ThroughputPairs: 9, MeanThroughputBps: 500}
	got = d.Evaluate(Observation{Current: domain.Throughput{Bps: 0, Pairs: 5, Available: true}}, idle)
	if len(got) != 0 {
		t.Fatalf("expected idle links below the floor to be ignored, got %+v", got)
	}

	got = d.Evaluate(Observation{Current: domain.Throughput{}}, b)
	if len(got) != 0 {
		t.Fatalf("expected no rule without a current measurement, got %+v", got)
	}
}

func TestInsufficientBaselineNeverFires(t *testing.T) {
	d := New(Thresholds{})
	s := sampleWithLatency(500)
	s.PacketLossPct = 90
	b := latencyBaseline(40)
	b.Insufficient = true
	if got := d.Evaluate(Observation{Latest: s}, b); got != nil {
		t.Fatalf("expected nil for insufficient baseline, got %+v", got)
	}
}

func TestAbsoluteRulesIgnoreBaseline(t *testing.T) {
	d := New(Thresholds{})
	s := sampleWithLatency(500)
	s.PacketLossPct = 2.5
	got := d.AbsoluteRules(s)
	if len(got) != 1 || got[0].Kind != domain.KindPacketLoss || got[0].ObservedValue != 2.5 {
		t.Fatalf("expected a single packet loss anomaly, got %+v", got)
	}

	s.PacketLossPct = 2.0
	if got := d.AbsoluteRules(s); len(got) != 0 {
		t.Fatalf("2.0%% loss must not fire, got %+v", got)
	}
}

func TestEvaluateIsPure(t *testing.T) {
	d := New(Thresholds{})
	s := sampleWithLatency(80)
	s.PacketLossPct = 10
	obs := Observation{Latest: s, Current: domain.Throughput{Bps: 100_000, Available: true, Pairs: 3}}
	b := domain.Baseline{SampleCount: 10, LatencySamples: 10, MeanLatencyMs: 40, ThroughputPairs: 9, MeanThroughputBps: 1_000_000}

	first := d.Evaluate(obs, b)
	second := d.Evaluate(obs, b)
	if len(first) != 3 {
		t.Fatalf("expected all three rules to fire, got %+v", first)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("evaluate is not deterministic: %+v vs %+v", first, second)
	}
	first[0].Severity = 99
	if third := d.Evaluate(obs, b); third[0].Severity == 99 {
		t.Fatalf("results share state across calls")
	}
}

func TestThresholdsValidate(t *testing.T) {
	th := DefaultThresholds()
	if err := th.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
	th.ThroughputRatio = 1.2
	if err := th.Validate(); err == nil {
		t.Fatalf("expected throughput_ratio > 1 to be rejected")
	}
}

func TestZeroLossThresholdFromYAML(t *testing.T) {
	var th Thresholds
	if err := yaml.Unmarshal([]byte("loss_pct: 0\n"), &th); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	d := New(th)
	if d.Thresholds().LossPct != 0 {
		t.Fatalf("expected loss_pct 0 to survive, got %v", d.Thresholds().LossPct)
	}
	s := sampleWithLatency(40)
	s.PacketLossPct = 0.5
	if got := d.AbsoluteRules(s); len(got) != 1 {
		t.Fatalf("any loss should fire with a zero threshold, got %+v", got)
	}
	if New(Thresholds{}).Thresholds().LossPct != 2.0 {
		t.Fatalf("zero value Thresholds should still default to 2.0")
	}
}
