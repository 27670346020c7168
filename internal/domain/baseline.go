package domain

import "time"

// Baseline summarizes a rolling window of samples. It is derived data and is
// never persisted.
type Baseline struct {
	Window            time.Duration `json:"window"`
	WindowStart       time.Time     `json:"window_start"`
	WindowEnd         time.Time     `json:"window_end"`
	SampleCount       int           `json:"sample_count"`
	LatencySamples    int           `json:"latency_samples"`
	MeanLatencyMs     float64       `json:"mean_latency_ms"`
	LatencyVariance   float64       `json:"latency_variance"`
	MinLatencyMs      float64       `json:"min_latency_ms"`
	MaxLatencyMs      float64       `json:"max_latency_ms"`
	MeanLossPct       float64       `json:"mean_packet_loss_pct"`
	MeanThroughputBps float64       `json:"mean_throughput_bps"`
	ThroughputPairs   int           `json:"throughput_pairs"`
	CounterResets     int           `json:"counter_resets"`

	// Insufficient marks a window too small to judge against. It is a normal
	// result, not an error, and must never produce anomalies.
	Insufficient bool   `json:"insufficient"`
	Reason       string `json:"reason,omitempty"`
}

// Throughput is the rate derived from byte counters over a run of samples.
type Throughput struct {
	Bps       float64 `json:"bps"`
	Pairs     int     `json:"pairs"`
	Resets    int     `json:"resets"`
	ElapsedS  float64 `json:"elapsed_seconds"`
	Available bool    `json:"available"`
}
