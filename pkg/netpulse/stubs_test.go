package netpulse

import (
	"context"
	"sync"
	"time"
)

type stubProber struct {
	mu  sync.Mutex
	rtt time.Duration
}

func (p *stubProber) setRTT(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rtt = d
}

func (p *stubProber) Probe(context.Context) (ProbeResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return ProbeResult{Target: "192.0.2.1", PacketsSent: 4, PacketsRecv: 4, AvgRTT: p.rtt}, nil
}

type stubCounters struct {
	mu   sync.Mutex
	rx   uint64
	step uint64
}

func (c *stubCounters) ReadCounters() (Counters, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rx += c.step
	return Counters{RxBytes: c.rx}, nil
}

type stubSink struct{}

func (s *stubSink) WriteBatch([]*PipelineSample) error { return nil }
func (s *stubSink) Name() string                       { return "stub" }

type stubPublisher struct{}

func (p *stubPublisher) Publish(context.Context, []byte) error { return nil }
func (p *stubPublisher) Close() error                          { return nil }

type stubDiagnoser struct{}

func (d *stubDiagnoser) Diagnose(context.Context, DiagnosisInput) (Diagnosis, error) {
	return Diagnosis{Text: "stub", Source: "stub"}, nil
}
func (d *stubDiagnoser) Name() string { return "stub" }
