package netpulse

import (
	"time"

	"github.com/ghalamif/NetPulse/internal/domain"
)

// Sample mirrors the stored sample without pointers, so callers can keep or
// modify it freely.
type Sample struct {
	Seq           uint64
	Timestamp     time.Time
	Target        string
	LatencyMs     float64
	HasLatency    bool
	PacketLossPct float64
	RxBytes       uint64
	TxBytes       uint64
	ProbeError    string
	CounterError  string
}

// Degraded is true when the probe or the counter read failed for this cycle.
func (s Sample) Degraded() bool {
	return s.ProbeError != "" || s.CounterError != ""
}

// SampleBatchSink is invoked with ordered batches of persisted samples.
type SampleBatchSink func([]Sample) error

func (s Sample) toDomain() *domain.Sample {
	out := &domain.Sample{
		Seq:           s.Seq,
		Timestamp:     s.Timestamp,
		Target:        s.Target,
		PacketLossPct: s.PacketLossPct,
		RxBytes:       s.RxBytes,
		TxBytes:       s.TxBytes,
		ProbeError:    s.ProbeError,
		CounterError:  s.CounterError,
	}
	if s.HasLatency {
		out.LatencyMs = domain.Float64(s.LatencyMs)
	}
	return out
}

func sampleFromDomain(s *domain.Sample) Sample {
	return Sample{
		Seq:           s.Seq,
		Timestamp:     s.Timestamp,
		Target:        s.Target,
		LatencyMs:     s.Latency(),
		HasLatency:    s.HasLatency(),
		PacketLossPct: s.PacketLossPct,
		RxBytes:       s.RxBytes,
		TxBytes:       s.TxBytes,
		ProbeError:    s.ProbeError,
		CounterError:  s.CounterError,
	}
}
