package observability

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ghalamif/NetPulse/internal/domain"
	"github.com/ghalamif/NetPulse/internal/ports"
)

func TestPromObsMetrics(t *testing.T) {
	origReg := prometheus.DefaultRegisterer
	origGatherer := prometheus.DefaultGatherer
	t.Cleanup(func() {
		prometheus.DefaultRegisterer = origReg
		prometheus.DefaultGatherer = origGatherer
	})

	reg := prometheus.NewRegistry()
	prometheus.DefaultRegisterer = reg
	prometheus.DefaultGatherer = reg

	obs := NewPromObs(nil)

	obs.IncCounter(SamplesPersisted, 5)
	if got := testutil.ToFloat64(obs.counters[SamplesPersisted]); got != 5 {
		t.Fatalf("expected persisted counter 5, got %f", got)
	}

	obs.IncCounter(ArchiveDropped, 2)
	if got := testutil.ToFloat64(obs.counters[ArchiveDropped]); got != 2 {
		t.Fatalf("expected archive drop counter 2, got %f", got)
	}

	obs.SetGauge(StoreSizeBytes, 42)
	if got := testutil.ToFloat64(obs.gauges[StoreSizeBytes]); got != 42 {
		t.Fatalf("expected store gauge 42, got %f", got)
	}

	obs.ObserveLatency(CycleSeconds, 0.5)
	hCollector := obs.histos[CycleSeconds].(prometheus.Collector)
	if samples := testutil.CollectAndCount(hCollector); samples != 1 {
		t.Fatalf("expected cycle histogram to record 1 sample, got %d", samples)
	}

	obs.RecordDropped("persist", nil, nil)
	if got := testutil.ToFloat64(obs.counters[SamplesDropped]); got != 1 {
		t.Fatalf("expected dropped counter 1, got %f", got)
	}

	// Unknown names are ignored rather than panicking.
	obs.IncCounter("nope", 1)
	obs.SetGauge("nope", 1)
	obs.ObserveLatency("nope", 1)
}

func TestPromObsLogsStructuredFields(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	obs := NewPromObsWithRegistry(prometheus.NewRegistry(), zap.New(core))

	obs.LogInfo("cycle_done", ports.Field{Key: "seq", Value: 7})
	obs.LogError("append_failed", errors.New("disk full"), ports.Field{Key: "stage", Value: "persist"})
	obs.RecordDropped("archive", &domain.Sample{Seq: 9}, errors.New("queue full"))

	entries := logs.All()
	if len(entries) != 3 {
		t.Fatalf("expected 3 log entries, got %d", len(entries))
	}
	if entries[0].Message != "cycle_done" || entries[0].ContextMap()["seq"] != int64(7) {
		t.Fatalf("unexpected info entry %+v", entries[0])
	}
	if entries[1].ContextMap()["error"] != "disk full" {
		t.Fatalf("expected error field, got %+v", entries[1].ContextMap())
	}
	if entries[2].ContextMap()["seq"] != uint64(9) {
		t.Fatalf("expected dropped sample seq, got %+v", entries[2].ContextMap())
	}
	if got := testutil.ToFloat64(obs.counters[ArchiveDropped]); got != 1 {
		t.Fatalf("expected archive drop counted, got %f", got)
	}
}

func TestNewLoggerWritesRotatedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "netpulse.log")
	logger, err := NewLogger(LogConfig{Level: "debug", File: path})
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	logger.Info("hello", zap.String("k", "v"))
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), `"msg":"hello"`) || !strings.Contains(string(data), `"k":"v"`) {
		t.Fatalf("unexpected log output %s", data)
	}

	if _, err := NewLogger(LogConfig{Level: "loud"}); err == nil {
		t.Fatalf("expected invalid level to fail")
	}
}
