package domain

import "time"

type AnomalyKind string

const (
	KindLatencySpike   AnomalyKind = "latency_spike"
	KindPacketLoss     AnomalyKind = "packet_loss"
	KindThroughputDrop AnomalyKind = "throughput_drop"
)

type SeverityLevel string

const (
	LevelMinor    SeverityLevel = "minor"
	LevelMajor    SeverityLevel = "major"
	LevelCritical SeverityLevel = "critical"
)

// Anomaly is a single rule-triggered deviation. Anomalies are value objects:
// every evaluation produces a fresh list and nothing is acknowledged.
type Anomaly struct {
	Kind          AnomalyKind   `json:"kind"`
	ObservedValue float64       `json:"observed_value"`
	BaselineValue float64       `json:"baseline_value"`
	Threshold     float64       `json:"threshold"`
	Severity      float64       `json:"severity"`
	Level         SeverityLevel `json:"level"`
	Timestamp     time.Time     `json:"ts"`
	Message       string        `json:"message"`
}
