package netpulse

import (
	"context"
	"fmt"
)

// Flow assembles a monitor in the order an operator thinks about it: load the
// config, choose how the link is measured, then choose where results go.
//
//	flow, err := netpulse.Conf("config.yaml")
//	...
//	rt, err := flow.StreamIN(...).StreamOUT(...)
//
// Anything not overridden is built from the config by NewRuntime.
type Flow struct {
	cfg  *Config
	opts []RuntimeOption
}

// FlowOption adjusts a Flow right after its config is loaded.
type FlowOption func(*Flow)

// StreamInOption replaces part of the measurement path: probing, interface
// counters, the sample store or the logging/metrics backend.
type StreamInOption func(*Flow)

// StreamOutOption replaces part of the reporting path: the archive sink, the
// diagnosis generator or the report publisher.
type StreamOutOption func(*Flow)

// Conf reads the YAML config at path.
func Conf(path string, opts ...FlowOption) (*Flow, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}
	return ConfFromConfig(cfg, opts...)
}

func ConfFromConfig(cfg *Config, opts ...FlowOption) (*Flow, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	f := &Flow{cfg: cfg}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}
	return f, nil
}

// Config is the loaded configuration. Edits made before StreamOUT take effect.
func (f *Flow) Config() *Config {
	if f == nil {
		return nil
	}
	return f.cfg
}

// Options adds RuntimeOption values that have no StreamIN/StreamOUT helper,
// such as WithClock or WithSampleQueue.
func (f *Flow) Options(opts ...RuntimeOption) *Flow {
	if f == nil {
		return nil
	}
	f.use(opts...)
	return f
}

func (f *Flow) StreamIN(opts ...StreamInOption) *Flow {
	if f == nil {
		return nil
	}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}
	return f
}

// StreamOUT applies the reporting overrides and builds the Runtime. Nothing
// runs until Start or Run is called on it.
func (f *Flow) StreamOUT(opts ...StreamOutOption) (*Runtime, error) {
	if f == nil {
		return nil, fmt.Errorf("flow is nil")
	}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}
	return NewRuntime(f.cfg, f.opts...)
}

// Run builds the runtime and monitors until ctx is cancelled.
func (f *Flow) Run(ctx context.Context, opts ...StreamOutOption) error {
	rt, err := f.StreamOUT(opts...)
	if err != nil {
		return err
	}
	return rt.Run(ctx)
}

func WithFlowOptions(opts ...RuntimeOption) FlowOption {
	return func(f *Flow) { f.use(opts...) }
}

// StreamInProber measures latency and loss with p instead of ICMP echo.
func StreamInProber(p Prober) StreamInOption {
	return func(f *Flow) { f.useIf(p != nil, WithProber(p)) }
}

// StreamInCounters reads rx/tx byte counters from c instead of /proc/net/dev.
func StreamInCounters(c CounterReader) StreamInOption {
	return func(f *Flow) { f.useIf(c != nil, WithCounterReader(c)) }
}

func StreamInStore(s Store) StreamInOption {
	return func(f *Flow) { f.useIf(s != nil, WithStore(s)) }
}

// StreamInObservability replaces the zap logger and Prometheus registry.
func StreamInObservability(obs Observability) StreamInOption {
	return func(f *Flow) { f.useIf(obs != nil, WithObservability(obs)) }
}

// StreamOutSink archives persisted samples to s and turns archiving on.
func StreamOutSink(s Sink) StreamOutOption {
	return func(f *Flow) { f.useIf(s != nil, WithArchiveSink(s)) }
}

func StreamOutDiagnoser(d Diagnoser) StreamOutOption {
	return func(f *Flow) { f.useIf(d != nil, WithDiagnoser(d)) }
}

// StreamOutPublisher sends every periodic health report through p.
func StreamOutPublisher(p ReportPublisher) StreamOutOption {
	return func(f *Flow) { f.useIf(p != nil, WithPublisher(p)) }
}

func StreamOutObservability(obs Observability) StreamOutOption {
	return func(f *Flow) { f.useIf(obs != nil, WithObservability(obs)) }
}

// StreamOutCallback archives each batch of samples by calling fn.
func StreamOutCallback(name string, fn SampleBatchSink) StreamOutOption {
	return func(f *Flow) { f.useIf(fn != nil, WithArchiveSink(NewCallbackSink(name, fn))) }
}

func (f *Flow) useIf(ok bool, opt RuntimeOption) {
	if ok {
		f.use(opt)
	}
}

func (f *Flow) use(opts ...RuntimeOption) {
	if f == nil {
		return
	}
	for _, opt := range opts {
		if opt != nil {
			f.opts = append(f.opts, opt)
		}
	}
}
