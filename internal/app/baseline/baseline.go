// Package baseline computes rolling statistics over the recent sample window.
package baseline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/montanaflynn/stats"

	"github.com/ghalamif/NetPulse/internal/domain"
	"github.com/ghalamif/NetPulse/internal/ports"
)

type Config struct {
	Window        time.Duration `yaml:"window"`
	CurrentWindow time.Duration `yaml:"current_window"`
	MinSamples    int           `yaml:"min_samples"`
	MemoSize      int           `yaml:"memo_size"`
}

func (c *Config) ApplyDefaults() {
	if c.Window <= 0 {
		c.Window = 300 * time.Second
	}
	if c.CurrentWindow <= 0 {
		c.CurrentWindow = 30 * time.Second
	}
	if c.MinSamples <= 0 {
		c.MinSamples = 3
	}
	if c.MemoSize <= 0 {
		c.MemoSize = 64
	}
}

func (c *Config) Validate() error {
	if c.CurrentWindow >= c.Window {
		return errors.New("current_window must be shorter than window")
	}
	if c.MinSamples < 2 {
		return errors.New("min_samples must be >= 2")
	}
	return nil
}

// memoKey identifies a window's content: samples are immutable once stored,
// so the same bounds and count mean the same statistics.
type memoKey struct {
	window   time.Duration
	firstSeq uint64
	lastSeq  uint64
	count    int
}

// Engine reads windows from the store and summarizes them. It holds no state
// that matters for correctness; the memo can be dropped at any time.
type Engine struct {
	store ports.Store
	cfg   Config
	clock clock.Clock
	memo  *lru.Cache[memoKey, domain.Baseline]
}

type Option func(*Engine)

func WithClock(c clock.Clock) Option {
	return func(e *Engine) {
		if c != nil {
			e.clock = c
		}
	}
}

func NewEngine(store ports.Store, cfg Config, opts ...Option) (*Engine, error) {
	if store == nil {
		return nil, errors.New("store is required")
	}
	cfg.ApplyDefaults()
	memo, err := lru.New[memoKey, domain.Baseline](cfg.MemoSize)
	if err != nil {
		return nil, fmt.Errorf("baseline memo: %w", err)
	}
	e := &Engine{store: store, cfg: cfg, clock: clock.New(), memo: memo}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e, nil
}

func (e *Engine) Config() Config { return e.cfg }

// Compute summarizes the configured baseline window.
func (e *Engine) Compute(ctx context.Context) (domain.Baseline, error) {
	return e.ComputeWindow(ctx, e.cfg.Window)
}

// ComputeWindow summarizes [now-window, now]. It only errors when the store
// read fails; too little data is reported through Baseline.Insufficient.
func (e *Engine) ComputeWindow(ctx context.Context, window time.Duration) (domain.Baseline, error) {
	samples, err := e.store.Recent(ctx, window)
	if err != nil {
		return domain.Baseline{}, fmt.Errorf("read baseline window: %w", err)
	}

	end := e.clock.Now()
	if n := len(samples); n > 0 && samples[n-1].Timestamp.After(end) {
		end = samples[n-1].Timestamp
	}

	var b domain.Baseline
	if n := len(samples); n > 0 {
		key := memoKey{window: window, firstSeq: samples[0].Seq, lastSeq: samples[n-1].Seq, count: n}
		if cached, ok := e.memo.Get(key); ok {
			b = cached
		} else {
			b = FromSamples(samples, e.cfg.MinSamples)
			e.memo.Add(key, b)
		}
	} else {
		b = FromSamples(nil, e.cfg.MinSamples)
	}

	b.Window = window
	b.WindowEnd = end
	b.WindowStart = end.Add(-window)
	return b, nil
}

// Current is the throughput over the short current window.
func (e *Engine) Current(ctx context.Context) (domain.Throughput, error) {
	samples, err := e.store.Recent(ctx, e.cfg.CurrentWindow)
	if err != nil {
		return domain.Throughput{}, fmt.Errorf("read current window: %w", err)
	}
	return Throughput(samples), nil
}

// FromSamples computes the window statistics for samples, oldest first.
// Window bounds are left for the caller to fill in.
func FromSamples(samples []domain.Sample, minSamples int) domain.Baseline {
	b := domain.Baseline{SampleCount: len(samples)}
	if len(samples) < minSamples {
		b.Insufficient = true
		b.Reason = fmt.Sprintf("need at least %d samples, have %d", minSamples, len(samples))
		return b
	}
	if !samples[len(samples)-1].Timestamp.After(samples[0].Timestamp) {
		b.Insufficient = true
		b.Reason = "window spans no time"
		return b
	}

	latencies := make([]float64, 0, len(samples))
	losses := make([]float64, 0, len(samples))
	for i := range samples {
		if samples[i].HasLatency() {
			latencies = append(latencies, samples[i].Latency())
		}
		// A failed probe measured nothing, so its loss is unknown rather than 0.
		if samples[i].ProbeError == "" {
			losses = append(losses, samples[i].PacketLossPct)
		}
	}

	b.LatencySamples = len(latencies)
	if len(latencies) > 0 {
		b.MeanLatencyMs, _ = stats.Mean(latencies)
		b.LatencyVariance, _ = stats.PopulationVariance(latencies)
		b.MinLatencyMs, _ = stats.Min(latencies)
		b.MaxLatencyMs, _ = stats.Max(latencies)
	}
	if len(losses) > 0 {
		b.MeanLossPct, _ = stats.Mean(losses)
	}

	tp := Throughput(samples)
	b.MeanThroughputBps = tp.Bps
	b.ThroughputPairs = tp.Pairs
	b.CounterResets = tp.Resets
	return b
}

// Throughput derives bits per second from consecutive counter pairs. Pairs
// where a counter went backwards (reset or wrap) or could not be read are
// gaps: they contribute neither bytes nor time, so the rate is never negative.
func Throughput(samples []domain.Sample) domain.Throughput {
	var (
		out     domain.Throughput
		bytes   float64
		elapsed float64
	)
	for i := 1; i < len(samples); i++ {
		prev, cur := &samples[i-1], &samples[i]
		if !prev.CountersValid() || !cur.CountersValid() {
			continue
		}
		if cur.RxBytes < prev.RxBytes || cur.TxBytes < prev.TxBytes {
			out.Resets++
			continue
		}
		dt := cur.Timestamp.Sub(prev.Timestamp).Seconds()
		if dt <= 0 {
			continue
		}
		bytes += float64(cur.RxBytes-prev.RxBytes) + float64(cur.TxBytes-prev.TxBytes)
		elapsed += dt
		out.Pairs++
	}
	out.ElapsedS = elapsed
	if out.Pairs > 0 && elapsed > 0 {
		out.Bps = bytes * 8 / elapsed
		out.Available = true
	}
	return out
}
