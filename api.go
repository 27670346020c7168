package netpulse

import (
	base "github.com/ghalamif/NetPulse/pkg/netpulse"
)

// Re-exported errors for convenience.
var (
	ErrChannelSinkClosed = base.ErrChannelSinkClosed
)

// Type aliases so consumers can import github.com/ghalamif/NetPulse directly.
type (
	Config          = base.Config
	Policy          = base.Policy
	SamplingConfig  = base.SamplingConfig
	PingConfig      = base.PingConfig
	StoreConfig     = base.StoreConfig
	BaselineConfig  = base.BaselineConfig
	Thresholds      = base.Thresholds
	DiagnosisConfig = base.DiagnosisConfig
	PublishConfig   = base.PublishConfig
	ArchiveConfig   = base.ArchiveConfig
	HTTPConfig      = base.HTTPConfig
	LogConfig       = base.LogConfig
	Flow            = base.Flow
	FlowOption      = base.FlowOption
	StreamInOption  = base.StreamInOption
	StreamOutOption = base.StreamOutOption
	Runtime         = base.Runtime
	RuntimeOption   = base.RuntimeOption
	Sample          = base.Sample
	SampleBatchSink = base.SampleBatchSink
	Prober          = base.Prober
	ProbeResult     = base.ProbeResult
	CounterReader   = base.CounterReader
	Counters        = base.Counters
	Store           = base.Store
	Diagnoser       = base.Diagnoser
	Diagnosis       = base.Diagnosis
	ReportPublisher = base.ReportPublisher
	Sink            = base.Sink
	SampleQueue     = base.SampleQueue
	Observability   = base.Observability
	Baseline        = base.Baseline
	Anomaly         = base.Anomaly
	Report          = base.Report
	Snapshot        = base.Snapshot
	Summary         = base.Summary
)

// Config helpers.
func LoadConfig(path string) (*Config, error) {
	return base.LoadConfig(path)
}

func DefaultConfig() *Config {
	return base.DefaultConfig()
}

// Flow builder helpers.
func Conf(path string, opts ...FlowOption) (*Flow, error) {
	return base.Conf(path, opts...)
}

func ConfFromConfig(cfg *Config, opts ...FlowOption) (*Flow, error) {
	return base.ConfFromConfig(cfg, opts...)
}

func WithFlowOptions(opts ...RuntimeOption) FlowOption {
	return base.WithFlowOptions(opts...)
}

func StreamInProber(p Prober) StreamInOption {
	return base.StreamInProber(p)
}

func StreamInCounters(c CounterReader) StreamInOption {
	return base.StreamInCounters(c)
}

func StreamInStore(s Store) StreamInOption {
	return base.StreamInStore(s)
}

func StreamInObservability(obs Observability) StreamInOption {
	return base.StreamInObservability(obs)
}

func StreamOutSink(s Sink) StreamOutOption {
	return base.StreamOutSink(s)
}

func StreamOutDiagnoser(d Diagnoser) StreamOutOption {
	return base.StreamOutDiagnoser(d)
}

func StreamOutPublisher(p ReportPublisher) StreamOutOption {
	return base.StreamOutPublisher(p)
}

func StreamOutObservability(obs Observability) StreamOutOption {
	return base.StreamOutObservability(obs)
}

func StreamOutCallback(name string, fn SampleBatchSink) StreamOutOption {
	return base.StreamOutCallback(name, fn)
}

// Runtime and options.
func NewRuntime(cfg *Config, opts ...RuntimeOption) (*Runtime, error) {
	return base.NewRuntime(cfg, opts...)
}

func WithProber(p Prober) RuntimeOption {
	return base.WithProber(p)
}

func WithCounterReader(c CounterReader) RuntimeOption {
	return base.WithCounterReader(c)
}

func WithStore(s Store) RuntimeOption {
	return base.WithStore(s)
}

func WithDiagnoser(d Diagnoser) RuntimeOption {
	return base.WithDiagnoser(d)
}

func WithPublisher(p ReportPublisher) RuntimeOption {
	return base.WithPublisher(p)
}

func WithArchiveSink(s Sink) RuntimeOption {
	return base.WithArchiveSink(s)
}

func WithSampleQueue(q SampleQueue) RuntimeOption {
	return base.WithSampleQueue(q)
}

func WithObservability(obs Observability) RuntimeOption {
	return base.WithObservability(obs)
}

// Sink adapters.
func NewCallbackSink(name string, fn SampleBatchSink) Sink {
	return base.NewCallbackSink(name, fn)
}

func NewChannelSink(name string, buffer int) (Sink, <-chan []Sample, func()) {
	return base.NewChannelSink(name, buffer)
}
