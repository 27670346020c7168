package domain

import "time"

// Sample is one measurement cycle taken on the edge device.
type Sample struct {
	Seq           uint64    `json:"seq"`
	Timestamp     time.Time `json:"ts"`
	Target        string    `json:"target,omitempty"`
	LatencyMs     *float64  `json:"latency_ms,omitempty"`
	PacketLossPct float64   `json:"packet_loss_pct"`
	RxBytes       uint64    `json:"rx_bytes"`
	TxBytes       uint64    `json:"tx_bytes"`
	ProbeError    string    `json:"probe_error,omitempty"`
	CounterError  string    `json:"counter_error,omitempty"`
}

// HasLatency reports whether the probe produced a round-trip measurement.
func (s *Sample) HasLatency() bool {
	return s != nil && s.LatencyMs != nil
}

// Latency returns the measured latency or 0 when absent.
func (s *Sample) Latency() float64 {
	if !s.HasLatency() {
		return 0
	}
	return *s.LatencyMs
}

// Degraded is true when either half of the cycle failed.
func (s *Sample) Degraded() bool {
	return s.ProbeError != "" || s.CounterError != ""
}

// CountersValid is false when the byte counters could not be read this cycle.
func (s *Sample) CountersValid() bool {
	return s.CounterError == ""
}

// TotalBytes is rx+tx, the counter pair throughput is derived from.
func (s *Sample) TotalBytes() uint64 {
	return s.RxBytes + s.TxBytes
}

// Clone returns a deep copy so callers can't mutate store-owned data.
func (s Sample) Clone() Sample {
	if s.LatencyMs != nil {
		v := *s.LatencyMs
		s.LatencyMs = &v
	}
	return s
}

// Float64 is a small helper for optional latency fields.
func Float64(v float64) *float64 {
	return &v
}
