package netpulse

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/benbjohnson/clock"

	"github.com/ghalamif/NetPulse/internal/adapters/diagnosis"
	"github.com/ghalamif/NetPulse/internal/adapters/httpapi"
	"github.com/ghalamif/NetPulse/internal/adapters/observability"
	"github.com/ghalamif/NetPulse/internal/adapters/probe"
	"github.com/ghalamif/NetPulse/internal/adapters/publisher"
	"github.com/ghalamif/NetPulse/internal/adapters/queue"
	"github.com/ghalamif/NetPulse/internal/adapters/sink"
	"github.com/ghalamif/NetPulse/internal/adapters/store"
	"github.com/ghalamif/NetPulse/internal/app/baseline"
	"github.com/ghalamif/NetPulse/internal/app/collector"
	"github.com/ghalamif/NetPulse/internal/app/detector"
	"github.com/ghalamif/NetPulse/internal/app/monitor"
	"github.com/ghalamif/NetPulse/internal/app/pipeline"
	"github.com/ghalamif/NetPulse/internal/app/sampler"
	"github.com/ghalamif/NetPulse/internal/ports"
)

// RuntimeOption customizes the dependencies used by Runtime.
type RuntimeOption func(*runtimeOverrides)

type runtimeOverrides struct {
	prober        Prober
	counters      CounterReader
	store         Store
	diagnoser     Diagnoser
	publisher     ReportPublisher
	sink          Sink
	queue         SampleQueue
	observability Observability
	clock         clock.Clock
}

// WithProber replaces the ICMP prober (e.g. a TCP connect probe or a simulator).
func WithProber(p Prober) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.prober = p
	}
}

// WithCounterReader replaces the /proc/net/dev counter reader.
func WithCounterReader(c CounterReader) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.counters = c
	}
}

// WithStore injects an already opened store. The runtime closes it on Shutdown.
func WithStore(s Store) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.store = s
	}
}

// WithDiagnoser replaces the configured diagnosis generator.
func WithDiagnoser(d Diagnoser) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.diagnoser = d
	}
}

// WithPublisher enables periodic report publishing through p.
func WithPublisher(p ReportPublisher) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.publisher = p
	}
}

// WithArchiveSink enables archiving persisted samples to s.
func WithArchiveSink(s Sink) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.sink = s
	}
}

// WithSampleQueue swaps the in-memory archive queue.
func WithSampleQueue(q SampleQueue) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.queue = q
	}
}

// WithObservability plugs in a custom logging/metrics backend.
func WithObservability(obs Observability) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.observability = obs
	}
}

// WithClock drives the loop, the store window and the watchers from c.
func WithClock(c clock.Clock) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.clock = c
	}
}

// Runtime wires sampler → store → baseline/detector → diagnosis, plus the
// optional archive and publishing side, and exposes lifecycle hooks for
// embedding NetPulse inside any Go service.
type Runtime struct {
	cfg   *Config
	clock clock.Clock
	obs   ports.Observability
	prom  *observability.PromObs

	store   ports.Store
	loop    *collector.Loop
	monitor *monitor.Service
	watcher *monitor.Watcher
	pub     ports.ReportPublisher

	queue ports.SampleQueue
	sink  ports.Sink
	db    *sql.DB

	httpSrv *http.Server

	started atomic.Bool
	cancel  context.CancelFunc
	loopWG  sync.WaitGroup
	bgWG    sync.WaitGroup
}

// NewRuntime bootstraps the default adapters (ICMP prober, /proc/net/dev
// counters, configured store and diagnosis generator, Prometheus
// observability). RuntimeOption values override any of them.
func NewRuntime(cfg *Config, opts ...RuntimeOption) (rt *Runtime, err error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var o runtimeOverrides
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	r := &Runtime{cfg: cfg, clock: o.clock}
	if r.clock == nil {
		r.clock = clock.New()
	}
	defer func() {
		if err != nil {
			_ = r.closeResources()
		}
	}()

	r.obs = o.observability
	if r.obs == nil {
		logger, err := observability.NewLogger(cfg.Log)
		if err != nil {
			return nil, fmt.Errorf("build logger: %w", err)
		}
		r.prom = observability.NewPromObs(logger)
		r.obs = r.prom
	}

	archiving := o.sink != nil || cfg.Archive.Enabled

	r.store = o.store
	if r.store == nil {
		r.store, err = store.Open(cfg.Store, store.WithClock(r.clock), store.WithArchiveTracking(archiving))
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
	}

	prober := o.prober
	if prober == nil {
		prober = probe.NewPingProber(cfg.Sampling.Probe)
	}
	counters := o.counters
	if counters == nil {
		counters, err = probe.NewNetDevCounters(cfg.Sampling.ProcPath, cfg.Sampling.Interfaces)
		if err != nil {
			return nil, err
		}
	}
	smp, err := sampler.New(prober, counters, cfg.Sampling.ProbeTimeout, cfg.Sampling.Probe.Target)
	if err != nil {
		return nil, err
	}

	loopOpts := []collector.Option{
		collector.WithInterval(cfg.Sampling.Interval),
		collector.WithClock(r.clock),
	}
	if archiving {
		r.sink = o.sink
		if r.sink == nil {
			r.db, err = sink.OpenTimescale(cfg.Archive.ConnString)
			if err != nil {
				return nil, err
			}
			ts := sink.NewTimescaleSink(r.db, cfg.Archive.Table)
			if err := ts.EnsureSchema(context.Background()); err != nil {
				return nil, fmt.Errorf("prepare archive table: %w", err)
			}
			r.sink = ts
		}
		r.queue = o.queue
		if r.queue == nil {
			r.queue = queue.NewMemQueue(cfg.Policy.MaxQueueLen)
		}
		loopOpts = append(loopOpts, collector.WithAfterPersist(pipeline.Enqueuer(r.queue, cfg.Policy, cfg.Sampling.Interval/2, r.obs)))
	}
	r.loop, err = collector.New(smp, r.store, r.obs, loopOpts...)
	if err != nil {
		return nil, err
	}

	engine, err := baseline.NewEngine(r.store, cfg.Baseline, baseline.WithClock(r.clock))
	if err != nil {
		return nil, err
	}

	diag := o.diagnoser
	if diag == nil {
		diag, err = diagnosis.New(cfg.Diagnosis, func(err error) {
			r.obs.IncCounter(observability.DiagnosisFallbacks, 1)
			r.obs.LogError("diagnosis_fallback", err)
		})
		if err != nil {
			return nil, err
		}
	}

	r.monitor, err = monitor.NewService(r.store, engine, detector.New(cfg.Detector), diag, r.obs,
		monitor.WithClock(r.clock),
		monitor.WithLoopState(func() string { return r.loop.State().String() }),
	)
	if err != nil {
		return nil, err
	}

	r.pub = o.publisher
	if r.pub == nil && cfg.Publish.Enabled() {
		nc, err := publisher.NewNATSPublisher(cfg.Publish)
		if err != nil {
			return nil, err
		}
		r.pub = nc
	}
	if r.pub != nil {
		r.watcher, err = monitor.NewWatcher(r.monitor, r.pub, r.obs, cfg.Publish.Interval)
		if err != nil {
			return nil, err
		}
	}

	r.httpSrv = httpapi.NewServer(cfg.HTTP.Addr, httpapi.NewRouter(r.monitor, r.obs, nil))
	return r, nil
}

// Monitor exposes the read side (snapshot, evaluate, diagnose, summary).
func (r *Runtime) Monitor() *Monitor { return r.monitor }

// Store returns the sample store the runtime writes to.
func (r *Runtime) Store() Store { return r.store }

// Collect runs one collection cycle outside the ticker. It is safe to call
// while the runtime is running; cycles never overlap.
func (r *Runtime) Collect(ctx context.Context) (Sample, error) {
	s, err := r.loop.RunOnce(ctx)
	return sampleFromDomain(&s), err
}

// Start launches the collection loop, the archive pipeline, compaction,
// report publishing and the HTTP API. It returns immediately; call Run to
// block on a context instead.
func (r *Runtime) Start() error {
	if r == nil {
		return fmt.Errorf("runtime is nil")
	}
	if !r.started.CompareAndSwap(false, true) {
		return fmt.Errorf("runtime already started")
	}

	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel

	if r.sink != nil {
		// Samples left unarchived by a previous run are read back from the
		// store by the pipeline itself.
		r.goBackground(func() {
			pipeline.RunArchivePipeline(ctx, r.store, r.queue, r.sink, r.cfg.Policy, r.obs)
		})
	}

	r.loopWG.Add(1)
	go func() {
		defer r.loopWG.Done()
		_ = r.loop.Run(ctx)
	}()

	r.goBackground(func() {
		pipeline.RunCompactor(ctx, r.store, r.cfg.Store.Retention, r.cfg.Store.CompactInterval, r.clock, r.obs)
	})

	if r.watcher != nil {
		r.goBackground(func() { _ = r.watcher.Run(ctx) })
	}

	go func() {
		r.obs.LogInfo("http_api_listening", ports.Field{Key: "addr", Value: r.httpSrv.Addr})
		if err := r.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.obs.LogError("http_api_exited", err)
		}
	}()
	return nil
}

// Run starts the runtime and blocks until the provided context is cancelled.
// Upon cancellation it attempts a graceful shutdown.
func (r *Runtime) Run(ctx context.Context) error {
	if err := r.Start(); err != nil {
		return err
	}
	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), r.cfg.ShutdownTimeout)
	defer cancel()
	return r.Shutdown(shutdownCtx)
}

// Shutdown stops the HTTP API, lets an in-flight collection cycle finish,
// drains the archive queue and closes the store. Waiting is bounded by ctx.
func (r *Runtime) Shutdown(ctx context.Context) error {
	var errs []error

	if r.httpSrv != nil && r.started.Load() {
		if err := r.httpSrv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs = append(errs, err)
		}
	}

	if r.cancel != nil {
		r.cancel()
	}
	if err := wait(ctx, &r.loopWG); err != nil {
		errs = append(errs, fmt.Errorf("collection loop did not stop: %w", err))
	}
	if err := wait(ctx, &r.bgWG); err != nil {
		errs = append(errs, fmt.Errorf("background workers did not stop: %w", err))
	}

	if err := r.closeResources(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (r *Runtime) closeResources() error {
	var errs []error
	if r.pub != nil {
		if err := r.pub.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if r.store != nil {
		if err := r.store.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if r.db != nil {
		if err := r.db.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if r.prom != nil {
		_ = r.prom.Sync()
	}
	return errors.Join(errs...)
}

func (r *Runtime) goBackground(fn func()) {
	r.bgWG.Add(1)
	go func() {
		defer r.bgWG.Done()
		fn()
	}()
}

func wait(ctx context.Context, wg *sync.WaitGroup) error {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
