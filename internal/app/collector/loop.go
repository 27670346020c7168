// Package collector drives the sampler on a fixed cadence and persists every
// sample it produces.
package collector

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/ghalamif/NetPulse/internal/domain"
	"github.com/ghalamif/NetPulse/internal/ports"
)

type State int32

const (
	StateIdle State = iota
	StateSampling
	StatePersisting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSampling:
		return "sampling"
	case StatePersisting:
		return "persisting"
	default:
		return "unknown"
	}
}

// Sampler is the measurement step of a cycle.
type Sampler interface {
	Sample(ctx context.Context, ts time.Time) domain.Sample
}

type Option func(*Loop)

func WithInterval(d time.Duration) Option {
	return func(l *Loop) {
		if d > 0 {
			l.interval = d
		}
	}
}

func WithClock(c clock.Clock) Option {
	return func(l *Loop) {
		if c != nil {
			l.clock = c
		}
	}
}

// WithAfterPersist registers a hook called with every durably stored sample.
// It runs on the loop goroutine and must not block for long.
func WithAfterPersist(fn func(domain.Sample)) Option {
	return func(l *Loop) {
		l.afterPersist = fn
	}
}

// Loop is the single writer of the store.
type Loop struct {
	sampler      Sampler
	store        ports.Store
	obs          ports.Observability
	clock        clock.Clock
	interval     time.Duration
	afterPersist func(domain.Sample)

	state atomic.Int32

	mu sync.Mutex // one cycle at a time
	tl *timeline
}

func New(s Sampler, store ports.Store, obs ports.Observability, opts ...Option) (*Loop, error) {
	if s == nil {
		return nil, errors.New("sampler is required")
	}
	if store == nil {
		return nil, errors.New("store is required")
	}
	if obs == nil {
		return nil, errors.New("observability is required")
	}
	l := &Loop{
		sampler:  s,
		store:    store,
		obs:      obs,
		clock:    clock.New(),
		interval: 5 * time.Second,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	return l, nil
}

func (l *Loop) State() State { return State(l.state.Load()) }

func (l *Loop) Interval() time.Duration { return l.interval }

func (l *Loop) setState(s State) {
	l.state.Store(int32(s))
	l.obs.SetGauge("netpulse_loop_state", float64(s))
}

// Run samples immediately and then on every tick until ctx is cancelled. A
// cycle that is already running when ctx is cancelled is allowed to finish.
func (l *Loop) Run(ctx context.Context) error {
	ticker := l.clock.Ticker(l.interval)
	defer ticker.Stop()

	l.obs.LogInfo("collection_loop_started", ports.Field{Key: "interval", Value: l.interval.String()})
	l.cycle(ctx)
	for {
		select {
		case <-ctx.Done():
			l.obs.LogInfo("collection_loop_stopped")
			return nil
		case <-ticker.C:
			l.cycle(ctx)
		}
	}
}

func (l *Loop) cycle(ctx context.Context) {
	_, _ = l.RunOnce(context.WithoutCancel(ctx))
}

// RunOnce performs a single Sampling → Persisting cycle. The sample is
// returned even when persisting it failed.
func (l *Loop) RunOnce(ctx context.Context) (domain.Sample, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	defer l.setState(StateIdle)

	if l.tl == nil {
		l.tl = l.anchor(ctx)
	}

	start := l.clock.Now()
	l.setState(StateSampling)
	ts := l.tl.next(l.clock)
	s := l.sampler.Sample(ctx, ts)
	if s.ProbeError != "" {
		l.obs.IncCounter("netpulse_probe_failures_total", 1)
	}
	if s.CounterError != "" {
		l.obs.IncCounter("netpulse_counter_failures_total", 1)
	}

	l.setState(StatePersisting)
	if err := l.store.Append(ctx, &s); err != nil {
		l.obs.RecordDropped("persist", &s, err)
		l.obs.LogError("sample_persist_failed", err, ports.Field{Key: "ts", Value: s.Timestamp})
		return s, err
	}

	l.obs.IncCounter("netpulse_samples_persisted_total", 1)
	l.obs.SetGauge("netpulse_packet_loss_pct", s.PacketLossPct)
	if s.HasLatency() {
		l.obs.SetGauge("netpulse_latency_ms", s.Latency())
	}
	l.obs.ObserveLatency("netpulse_cycle_duration_seconds", l.clock.Since(start).Seconds())

	if l.afterPersist != nil {
		l.afterPersist(s)
	}
	return s, nil
}

func (l *Loop) anchor(ctx context.Context) *timeline {
	now := l.clock.Now()
	tl := &timeline{wall: now.Round(0), mono: now}
	latest, ok, err := l.store.Latest(ctx)
	if err != nil {
		l.obs.LogError("timeline_anchor_latest_failed", err)
		return tl
	}
	if ok {
		tl.last = latest.Timestamp
		if !tl.wall.After(latest.Timestamp) {
			// The wall clock is behind what is already stored (e.g. no RTC
			// after a reboot); continue the series instead of rewinding it.
			tl.wall = latest.Timestamp.Add(time.Nanosecond)
		}
	}
	return tl
}

// timeline stamps samples: wall time taken once, advanced by the monotonic
// clock, so a wall clock step can never reorder the series.
type timeline struct {
	wall time.Time
	mono time.Time
	last time.Time
}

func (t *timeline) next(clk clock.Clock) time.Time {
	ts := t.wall.Add(clk.Since(t.mono))
	if !t.last.IsZero() && !ts.After(t.last) {
		ts = t.last.Add(time.Nanosecond)
	}
	t.last = ts
	return ts
}
