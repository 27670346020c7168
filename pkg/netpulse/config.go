package netpulse

import (
	"github.com/ghalamif/NetPulse/internal/adapters/diagnosis"
	"github.com/ghalamif/NetPulse/internal/adapters/observability"
	"github.com/ghalamif/NetPulse/internal/adapters/probe"
	"github.com/ghalamif/NetPulse/internal/adapters/publisher"
	"github.com/ghalamif/NetPulse/internal/adapters/store"
	"github.com/ghalamif/NetPulse/internal/app/baseline"
	"github.com/ghalamif/NetPulse/internal/app/config"
	"github.com/ghalamif/NetPulse/internal/app/detector"
	"github.com/ghalamif/NetPulse/internal/ports"
)

// Config re-exports the root configuration struct so downstream projects can
// construct or modify it programmatically.
type Config = config.Config

type (
	// Policy bounds the archive queue.
	Policy = ports.Policy
	// SamplingConfig sets the collection interval and probe target.
	SamplingConfig = config.SamplingConfig
	// PingConfig tunes the ICMP probe.
	PingConfig = probe.PingConfig
	// StoreConfig selects the store driver and retention.
	StoreConfig = store.Config
	// BaselineConfig sets the rolling window and minimum sample count.
	BaselineConfig = baseline.Config
	// Thresholds are the anomaly rule thresholds.
	Thresholds = detector.Thresholds
	// DiagnosisConfig picks the diagnosis generator.
	DiagnosisConfig = diagnosis.Config
	// PublishConfig configures NATS report publishing.
	PublishConfig = publisher.Config
	// ArchiveConfig configures the TimescaleDB archive.
	ArchiveConfig = config.ArchiveConfig
	// HTTPConfig configures the API listener.
	HTTPConfig = config.HTTPConfig
	// LogConfig configures structured logging.
	LogConfig = observability.LogConfig
)

// LoadConfig loads YAML from disk using the internal config reader.
func LoadConfig(path string) (*Config, error) {
	return config.Load(path)
}

// DefaultConfig returns a configuration with every default applied.
func DefaultConfig() *Config {
	return config.Default()
}
