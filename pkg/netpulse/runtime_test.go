package netpulse

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/ghalamif/NetPulse/internal/adapters/observability"
	"github.com/ghalamif/NetPulse/internal/adapters/store"
)

var t0 = time.Unix(1_700_000_000, 0)

func testConfig() *Config {
	cfg := DefaultConfig()
	cfg.HTTP.Addr = "127.0.0.1:0"
	cfg.Policy.IdleSleep = time.Millisecond
	cfg.Sampling.Probe.Target = "192.0.2.1"
	return cfg
}

func newMockClock() *clock.Mock {
	clk := clock.NewMock()
	clk.Set(t0)
	return clk
}

func openStore(t *testing.T, clk clock.Clock) Store {
	t.Helper()
	st, err := store.OpenWALStore(t.TempDir(), store.WithClock(clk), store.WithArchiveTracking(true))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	return st
}

func TestNewRuntimeWithCustomAdapters(t *testing.T) {
	clk := newMockClock()
	st := openStore(t, clk)
	sinkStub := &stubSink{}
	pub := &stubPublisher{}
	diag := &stubDiagnoser{}

	rt, err := NewRuntime(testConfig(),
		WithProber(&stubProber{rtt: 40 * time.Millisecond}),
		WithCounterReader(&stubCounters{step: 1000}),
		WithStore(st),
		WithDiagnoser(diag),
		WithPublisher(pub),
		WithArchiveSink(sinkStub),
		WithObservability(observability.Nop{}),
		WithClock(clk),
	)
	if err != nil {
		t.Fatalf("NewRuntime returned error: %v", err)
	}
	defer rt.Shutdown(context.Background())

	if rt.store != st {
		t.Fatalf("expected custom store to be used")
	}
	if rt.sink != sinkStub {
		t.Fatalf("expected custom sink to be used")
	}
	if rt.pub != pub || rt.watcher == nil {
		t.Fatalf("expected custom publisher to drive a watcher")
	}
	if rt.queue == nil {
		t.Fatalf("expected an archive queue when a sink is set")
	}
	if rt.db != nil {
		t.Fatalf("expected db to be nil when custom sink is provided")
	}
	if rt.prom != nil {
		t.Fatalf("expected custom observability to replace prometheus")
	}
}

func TestNewRuntimeRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Sampling.Interval = time.Millisecond
	if _, err := NewRuntime(cfg, WithObservability(observability.Nop{})); err == nil {
		t.Fatalf("expected invalid config to be rejected")
	}
	if _, err := NewRuntime(nil); err == nil {
		t.Fatalf("expected nil config to be rejected")
	}
}

func TestRuntimeCollectAndEvaluate(t *testing.T) {
	clk := newMockClock()
	prober := &stubProber{rtt: 40 * time.Millisecond}
	rt, err := NewRuntime(testConfig(),
		WithProber(prober),
		WithCounterReader(&stubCounters{step: 125_000}),
		WithStore(openStore(t, clk)),
		WithObservability(observability.Nop{}),
		WithClock(clk),
	)
	if err != nil {
		t.Fatalf("NewRuntime: %v", err)
	}

	ctx := context.Background()
	for i := 0; i < 4; i++ {
		s, err := rt.Collect(ctx)
		if err != nil {
			t.Fatalf("collect %d: %v", i, err)
		}
		if !s.HasLatency || s.LatencyMs != 40 {
			t.Fatalf("unexpected sample %+v", s)
		}
		clk.Add(5 * time.Second)
	}

	r, err := rt.Monitor().Evaluate(ctx)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if r.Baseline.Insufficient || r.HasIssues {
		t.Fatalf("expected a healthy report, got %+v", r)
	}

	// (4*40+70)/5 = 46ms mean, threshold 59.8ms.
	prober.setRTT(70 * time.Millisecond)
	if _, err := rt.Collect(ctx); err != nil {
		t.Fatalf("collect spike: %v", err)
	}
	r, err = rt.Monitor().Evaluate(ctx)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !r.HasIssues || r.Anomalies[0].Kind != "latency_spike" {
		t.Fatalf("expected latency spike, got %+v", r.Anomalies)
	}

	if err := rt.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if _, err := rt.Collect(ctx); err == nil {
		t.Fatalf("expected collect after shutdown to fail on the closed store")
	}
}

func TestRuntimeArchivesToCallbackSink(t *testing.T) {
	clk := newMockClock()

	var (
		mu       sync.Mutex
		archived []Sample
	)
	cb := NewCallbackSink("test", func(batch []Sample) error {
		mu.Lock()
		defer mu.Unlock()
		archived = append(archived, batch...)
		return nil
	})

	st := openStore(t, clk)
	rt, err := NewRuntime(testConfig(),
		WithProber(&stubProber{rtt: 12 * time.Millisecond}),
		WithCounterReader(&stubCounters{step: 1000}),
		WithStore(st),
		WithArchiveSink(cb),
		WithObservability(observability.Nop{}),
		WithClock(clk),
	)
	if err != nil {
		t.Fatalf("NewRuntime: %v", err)
	}
	if err := rt.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := rt.Start(); err == nil {
		t.Fatalf("expected second start to fail")
	}
	if _, err := rt.Collect(context.Background()); err != nil {
		t.Fatalf("collect: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for st.Stats().ArchivedUpto < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("archive cursor never reached 2, at %d", st.Stats().ArchivedUpto)
		}
		time.Sleep(time.Millisecond)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rt.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(archived) < 2 || archived[0].Seq >= archived[1].Seq || archived[0].LatencyMs != 12 {
		t.Fatalf("unexpected archived samples %+v", archived)
	}
}
