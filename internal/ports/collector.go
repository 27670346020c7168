package ports

import (
	"context"
	"time"
)

// ProbeResult is what a single latency/loss probe observed.
type ProbeResult struct {
	Target      string
	PacketsSent int
	PacketsRecv int
	LossPct     float64
	AvgRTT      time.Duration
}

// Prober measures round-trip latency and packet loss against a target.
// Implementations must honor ctx cancellation.
type Prober interface {
	Probe(ctx context.Context) (ProbeResult, error)
}

// Counters are cumulative interface byte counters since boot.
type Counters struct {
	RxBytes uint64
	TxBytes uint64
}

// CounterReader reads interface byte counters.
type CounterReader interface {
	ReadCounters() (Counters, error)
}
