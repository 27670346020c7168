package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	data := `
sampling:
  interval: 10s
  probe:
    target: 1.1.1.1
detector:
  loss_pct: 3
policy:
  max_queue_len: 1000
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if cfg.Sampling.Interval != 10*time.Second {
		t.Fatalf("expected interval 10s, got %s", cfg.Sampling.Interval)
	}
	if cfg.Sampling.ProbeTimeout != 4*time.Second {
		t.Fatalf("expected probe timeout default 4s, got %s", cfg.Sampling.ProbeTimeout)
	}
	if cfg.Sampling.Probe.Target != "1.1.1.1" || cfg.Sampling.Probe.Timeout > cfg.Sampling.ProbeTimeout {
		t.Fatalf("unexpected probe config %+v", cfg.Sampling.Probe)
	}
	if cfg.Detector.LossPct != 3 || cfg.Detector.LatencyRatio != 1.30 || cfg.Detector.ThroughputRatio != 0.80 {
		t.Fatalf("unexpected detector thresholds %+v", cfg.Detector)
	}
	if cfg.Baseline.Window != 300*time.Second || cfg.Baseline.MinSamples != 3 {
		t.Fatalf("unexpected baseline defaults %+v", cfg.Baseline)
	}
	if cfg.Store.Driver != "wal" || cfg.Store.Retention != 24*time.Hour {
		t.Fatalf("unexpected store defaults %+v", cfg.Store)
	}
	if cfg.Policy.MaxQueueLen != 1000 || cfg.Policy.MaxBatchSize != 500 {
		t.Fatalf("unexpected policy %+v", cfg.Policy)
	}
	if cfg.HTTP.Addr != ":9100" {
		t.Fatalf("expected default http addr :9100, got %s", cfg.HTTP.Addr)
	}
	if cfg.Diagnosis.Mode != "rules" {
		t.Fatalf("expected rules diagnosis by default, got %s", cfg.Diagnosis.Mode)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"probe timeout":    "sampling:\n  interval: 2s\n  probe_timeout: 3s\n",
		"short window":     "baseline:\n  window: 10s\n  current_window: 5s\n",
		"archive":          "archive:\n  enabled: true\n",
		"queue policy":     "policy:\n  on_queue_full: explode\n",
		"driver":           "store:\n  driver: bolt\n",
		"latency ratio":    "detector:\n  latency_ratio: 0.5\n",
		"diagnosis mode":   "diagnosis:\n  mode: oracle\n",
		"retention window": "store:\n  retention: 1m\n",
	}
	for name, raw := range cases {
		if _, err := Parse([]byte(raw)); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestParseRejectsInvalidYAML(t *testing.T) {
	if _, err := Parse([]byte("sampling: [")); err == nil {
		t.Fatalf("expected yaml error")
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected missing file error")
	}
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if !strings.HasPrefix(cfg.Store.Dir, "./data") {
		t.Fatalf("unexpected store dir %s", cfg.Store.Dir)
	}
}

func TestParseKeepsExplicitZeroThresholds(t *testing.T) {
	cfg, err := Parse([]byte("detector:\n  loss_pct: 0\n  min_baseline_latency_ms: 0\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Detector.LossPct != 0 || cfg.Detector.MinBaselineLatencyMs != 0 {
		t.Fatalf("explicit zeros were replaced: %+v", cfg.Detector)
	}
	if cfg.Detector.MinBaselineThroughputBps != 1000 || cfg.Detector.LatencyRatio != 1.30 {
		t.Fatalf("omitted keys should keep defaults: %+v", cfg.Detector)
	}
}
