package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/ghalamif/NetPulse/internal/domain"
	"github.com/ghalamif/NetPulse/internal/ports"
)

const (
	SamplesPersisted   = "netpulse_samples_persisted_total"
	SamplesDropped     = "netpulse_samples_dropped_total"
	ProbeFailures      = "netpulse_probe_failures_total"
	CounterFailures    = "netpulse_counter_failures_total"
	SamplesArchived    = "netpulse_samples_archived_total"
	ArchiveDropped     = "netpulse_archive_dropped_total"
	SamplesCompacted   = "netpulse_samples_compacted_total"
	AnomaliesDetected  = "netpulse_anomalies_total"
	DiagnosisFallbacks = "netpulse_diagnosis_fallbacks_total"
	ReportsPublished   = "netpulse_reports_published_total"

	StoreSizeBytes     = "netpulse_store_size_bytes"
	StoreSamples       = "netpulse_store_samples"
	ArchiveQueueLength = "netpulse_archive_queue_length"
	LatencyMs          = "netpulse_latency_ms"
	PacketLossPct      = "netpulse_packet_loss_pct"
	BaselineLatencyMs  = "netpulse_baseline_latency_ms"
	ThroughputBps      = "netpulse_throughput_bps"
	LoopState          = "netpulse_loop_state"

	CycleSeconds   = "netpulse_cycle_duration_seconds"
	ArchiveSeconds = "netpulse_archive_latency_seconds"
)

type PromObs struct {
	log      *zap.Logger
	counters map[string]prometheus.Counter
	gauges   map[string]prometheus.Gauge
	histos   map[string]prometheus.Observer
}

// NewPromObs registers the NetPulse metrics on the default registry.
func NewPromObs(logger *zap.Logger) *PromObs {
	return NewPromObsWithRegistry(prometheus.DefaultRegisterer, logger)
}

func NewPromObsWithRegistry(reg prometheus.Registerer, logger *zap.Logger) *PromObs {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &PromObs{
		log:      logger,
		counters: map[string]prometheus.Counter{},
		gauges:   map[string]prometheus.Gauge{},
		histos:   map[string]prometheus.Observer{},
	}

	var collectors []prometheus.Collector
	counter := func(name, help string) {
		c := prometheus.NewCounter(prometheus.CounterOpts{Name: name, Help: help})
		p.counters[name] = c
		collectors = append(collectors, c)
	}
	gauge := func(name, help string) {
		g := prometheus.NewGauge(prometheus.GaugeOpts{Name: name, Help: help})
		p.gauges[name] = g
		collectors = append(collectors, g)
	}
	histogram := func(name, help string, buckets []float64) {
		h := prometheus.NewHistogram(prometheus.HistogramOpts{Name: name, Help: help, Buckets: buckets})
		p.histos[name] = h
		collectors = append(collectors, h)
	}

	counter(SamplesPersisted, "Samples durably appended to the store.")
	counter(SamplesDropped, "Samples dropped because the store rejected the write.")
	counter(ProbeFailures, "Collection cycles whose latency probe failed.")
	counter(CounterFailures, "Collection cycles whose interface counters could not be read.")
	counter(SamplesArchived, "Samples written to the archive sink.")
	counter(ArchiveDropped, "Samples lost due to archive queue backpressure policies.")
	counter(SamplesCompacted, "Samples removed by retention compaction.")
	counter(AnomaliesDetected, "Anomalies emitted by evaluations.")
	counter(DiagnosisFallbacks, "Diagnoses served by the rule-based fallback after a generator error.")
	counter(ReportsPublished, "Evaluation reports published to the message bus.")

	gauge(StoreSizeBytes, "Size of the sample store on disk.")
	gauge(StoreSamples, "Samples currently held by the store.")
	gauge(ArchiveQueueLength, "Samples buffered for the archive sink.")
	gauge(LatencyMs, "Latency of the most recent sample.")
	gauge(PacketLossPct, "Packet loss of the most recent sample.")
	gauge(BaselineLatencyMs, "Mean latency of the last computed baseline.")
	gauge(ThroughputBps, "Throughput over the current short window, bits per second.")
	gauge(LoopState, "Collection loop state (0 idle, 1 sampling, 2 persisting).")

	histogram(CycleSeconds, "Duration of one sample+persist cycle.", prometheus.ExponentialBuckets(0.005, 2, 12))
	histogram(ArchiveSeconds, "Latency from dequeued sample to archive commit.", prometheus.ExponentialBuckets(0.001, 2, 12))

	reg.MustRegister(collectors...)
	return p
}

func zapFields(fields []ports.Field) []zap.Field {
	out := make([]zap.Field, 0, len(fields))
	for _, f := range fields {
		out = append(out, zap.Any(f.Key, f.Value))
	}
	return out
}

func (p *PromObs) LogInfo(msg string, fields ...ports.Field) {
	p.log.Info(msg, zapFields(fields)...)
}

func (p *PromObs) LogError(msg string, err error, fields ...ports.Field) {
	p.log.Error(msg, append(zapFields(fields), zap.Error(err))...)
}

func (p *PromObs) LogCritical(msg string, err error, fields ...ports.Field) {
	// DPanic only panics in development loggers.
	p.log.DPanic(msg, append(zapFields(fields), zap.Error(err))...)
}

func (p *PromObs) IncCounter(name string, v float64) {
	if c, ok := p.counters[name]; ok {
		c.Add(v)
	}
}

func (p *PromObs) ObserveLatency(name string, seconds float64) {
	if h, ok := p.histos[name]; ok {
		h.Observe(seconds)
	}
}

func (p *PromObs) SetGauge(name string, v float64) {
	if g, ok := p.gauges[name]; ok {
		g.Set(v)
	}
}

func (p *PromObs) RecordDropped(stage string, s *domain.Sample, err error) {
	switch stage {
	case "archive":
		p.IncCounter(ArchiveDropped, 1)
	default:
		p.IncCounter(SamplesDropped, 1)
	}
	fields := []zap.Field{zap.String("stage", stage), zap.Error(err)}
	if s != nil {
		fields = append(fields, zap.Time("sample_ts", s.Timestamp), zap.Uint64("seq", s.Seq))
	}
	p.log.Warn("sample_dropped", fields...)
}

// Sync flushes buffered log entries.
func (p *PromObs) Sync() error {
	return p.log.Sync()
}

var _ ports.Observability = (*PromObs)(nil)

// Nop discards everything. Useful for tests and embedding.
type Nop struct{}

func (Nop) LogInfo(string, ...ports.Field)              {}
func (Nop) LogError(string, error, ...ports.Field)      {}
func (Nop) LogCritical(string, error, ...ports.Field)   {}
func (Nop) IncCounter(string, float64)                  {}
func (Nop) ObserveLatency(string, float64)              {}
func (Nop) SetGauge(string, float64)                    {}
func (Nop) RecordDropped(string, *domain.Sample, error) {}

var _ ports.Observability = Nop{}
