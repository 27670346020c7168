package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ghalamif/NetPulse/internal/adapters/diagnosis"
	"github.com/ghalamif/NetPulse/internal/adapters/observability"
	"github.com/ghalamif/NetPulse/internal/adapters/probe"
	"github.com/ghalamif/NetPulse/internal/adapters/publisher"
	"github.com/ghalamif/NetPulse/internal/adapters/store"
	"github.com/ghalamif/NetPulse/internal/app/baseline"
	"github.com/ghalamif/NetPulse/internal/app/detector"
	"github.com/ghalamif/NetPulse/internal/ports"
)

type Config struct {
	Sampling        SamplingConfig          `yaml:"sampling"`
	Store           store.Config            `yaml:"store"`
	Baseline        baseline.Config         `yaml:"baseline"`
	Detector        detector.Thresholds     `yaml:"detector"`
	Diagnosis       diagnosis.Config        `yaml:"diagnosis"`
	Publish         publisher.Config        `yaml:"publish"`
	Archive         ArchiveConfig           `yaml:"archive"`
	Policy          ports.Policy            `yaml:"policy"`
	HTTP            HTTPConfig              `yaml:"http"`
	Log             observability.LogConfig `yaml:"log"`
	ShutdownTimeout time.Duration           `yaml:"shutdown_timeout"`
}

type SamplingConfig struct {
	Interval     time.Duration    `yaml:"interval"`
	ProbeTimeout time.Duration    `yaml:"probe_timeout"`
	Probe        probe.PingConfig `yaml:"probe"`
	ProcPath     string           `yaml:"proc_path"`
	Interfaces   []string         `yaml:"interfaces"`
}

// ArchiveConfig enables shipping persisted samples to Postgres/TimescaleDB.
type ArchiveConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ConnString string `yaml:"conn_string"`
	Table      string `yaml:"table"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(raw)
}

func Parse(raw []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, err
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a fully defaulted configuration.
func Default() *Config {
	var cfg Config
	cfg.ApplyDefaults()
	return &cfg
}

func (c *Config) ApplyDefaults() {
	if c.Sampling.Interval == 0 {
		c.Sampling.Interval = 5 * time.Second
	}
	if c.Sampling.ProbeTimeout == 0 {
		c.Sampling.ProbeTimeout = 4 * time.Second
	}
	c.Sampling.Probe.ApplyDefaults()
	// The echo run has to fit inside the probe deadline.
	if c.Sampling.Probe.Timeout > c.Sampling.ProbeTimeout {
		c.Sampling.Probe.Timeout = c.Sampling.ProbeTimeout
	}

	if c.Policy.MaxQueueLen == 0 {
		c.Policy.MaxQueueLen = 10_000
	}
	if c.Policy.MaxBatchSize == 0 {
		c.Policy.MaxBatchSize = 500
	}
	if c.Policy.IdleSleep == 0 {
		c.Policy.IdleSleep = 200 * time.Millisecond
	}
	if c.Policy.OnQueueFull == "" {
		c.Policy.OnQueueFull = "drop"
	}

	if c.Archive.Table == "" {
		c.Archive.Table = "net_samples"
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":9100"
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 10 * time.Second
	}

	c.Store.ApplyDefaults()
	c.Baseline.ApplyDefaults()
	c.Detector.ApplyDefaults()
	c.Diagnosis.ApplyDefaults()
	c.Publish.ApplyDefaults()
	c.Log.ApplyDefaults()
}

func (c *Config) Validate() error {
	if c.Sampling.Interval < 100*time.Millisecond {
		return errors.New("sampling.interval must be >= 100ms")
	}
	if c.Sampling.ProbeTimeout >= c.Sampling.Interval {
		return errors.New("sampling.probe_timeout must be shorter than sampling.interval")
	}
	if err := c.Store.Validate(); err != nil {
		return fmt.Errorf("store config: %w", err)
	}
	if err := c.Baseline.Validate(); err != nil {
		return fmt.Errorf("baseline config: %w", err)
	}
	if c.Baseline.Window < 3*c.Sampling.Interval {
		return errors.New("baseline.window must cover at least 3 sampling intervals")
	}
	if err := c.Detector.Validate(); err != nil {
		return fmt.Errorf("detector config: %w", err)
	}
	if err := c.Diagnosis.Validate(); err != nil {
		return fmt.Errorf("diagnosis config: %w", err)
	}
	if c.Archive.Enabled && c.Archive.ConnString == "" {
		return errors.New("archive.conn_string is required when archive is enabled")
	}
	switch c.Policy.OnQueueFull {
	case "block", "drop", "reject":
	default:
		return fmt.Errorf("policy.on_queue_full %q is invalid", c.Policy.OnQueueFull)
	}
	if c.HTTP.Addr == "" {
		return errors.New("http.addr is required")
	}
	if c.Store.Retention > 0 && c.Store.Retention < c.Baseline.Window {
		return errors.New("store.retention must be >= baseline.window")
	}
	return nil
}
