package diagnosis

import (
	"context"
	"fmt"
	"strings"

	"github.com/ghalamif/NetPulse/internal/domain"
	"github.com/ghalamif/NetPulse/internal/ports"
)

const SourceRules = "rules"

// RuleBased is the deterministic generator. It never fails and needs nothing
// beyond the latest sample, its anomalies and the baseline. When the detector
// reported anomalies the text names them and never reads as healthy.
type RuleBased struct{}

func NewRuleBased() *RuleBased { return &RuleBased{} }

func (r *RuleBased) Name() string { return SourceRules }

func (r *RuleBased) Diagnose(ctx context.Context, in ports.DiagnosisInput) (ports.Diagnosis, error) {
	return ports.Diagnosis{Text: ruleText(in), Source: SourceRules}, nil
}

func ruleText(in ports.DiagnosisInput) string {
	latest := in.Latest
	if in.Baseline == nil || in.Baseline.Insufficient {
		if latest.Timestamp.IsZero() {
			return "No network metrics available yet. Waiting for the collector to gather data."
		}
		return fmt.Sprintf("Still collecting a baseline. Latest reading: %s, packet loss %.1f%%.%s",
			latencyText(in), latest.PacketLossPct, detected(in.Anomalies))
	}

	base := in.Baseline.MeanLatencyMs
	loss := latest.PacketLossPct
	if !latest.HasLatency() {
		return fmt.Sprintf("Network unreachable. No replies from %s (packet loss %.1f%%, baseline %.1fms). Check the uplink.%s",
			targetOr(latest.Target), loss, base, detected(in.Anomalies))
	}

	cur := latest.Latency()
	spike := 0.0
	if base > 0 {
		spike = (cur - base) / base * 100
	}

	switch {
	case spike > 50 || loss > 5:
		return fmt.Sprintf("Network degraded significantly. Latency spiked %.0f%% to %.1fms (baseline: %.1fms), packet loss at %.1f%%.%s Try pausing bandwidth-heavy tasks.",
			spike, cur, base, loss, detected(in.Anomalies))
	case spike > 30 || loss > 2:
		return fmt.Sprintf("Network showing congestion signs. Latency up %.0f%% (%.1fms), packet loss %.1f%%.%s Monitor the situation.",
			spike, cur, loss, detected(in.Anomalies))
	case len(in.Anomalies) > 0:
		return fmt.Sprintf("Network showing congestion signs.%s Latency %.1fms (baseline: %.1fms), packet loss %.1f%%. Monitor the situation.",
			detected(in.Anomalies), cur, base, loss)
	case spike > 0 || loss > 0:
		return fmt.Sprintf("Network mostly healthy with minor fluctuations. Latency %.1fms (baseline: %.1fms), packet loss %.1f%%.",
			cur, base, loss)
	default:
		return fmt.Sprintf("Network health is excellent. Latency stable at %.1fms, no packet loss detected.", cur)
	}
}

// detected renders anomaly messages as a sentence with a leading space, or
// nothing when there are none.
func detected(anomalies []domain.Anomaly) string {
	if len(anomalies) == 0 {
		return ""
	}
	msgs := make([]string, 0, len(anomalies))
	for _, a := range anomalies {
		msgs = append(msgs, a.Message)
	}
	return " Detected: " + strings.Join(msgs, ", ") + "."
}

func latencyText(in ports.DiagnosisInput) string {
	if !in.Latest.HasLatency() {
		return "no reply"
	}
	return fmt.Sprintf("%.1fms", in.Latest.Latency())
}

func targetOr(t string) string {
	if t == "" {
		return "the probe target"
	}
	return t
}

var _ ports.Diagnoser = (*RuleBased)(nil)
