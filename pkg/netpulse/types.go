package netpulse

import (
	"github.com/ghalamif/NetPulse/internal/app/monitor"
	"github.com/ghalamif/NetPulse/internal/domain"
	"github.com/ghalamif/NetPulse/internal/ports"
)

// PipelineSample is the sample as stored and archived. Sample is the
// pointer-free copy handed to callbacks.
type PipelineSample = domain.Sample

// Prober measures latency and packet loss (ICMP by default).
type Prober = ports.Prober

// ProbeResult is one probe run.
type ProbeResult = ports.ProbeResult

// CounterReader reads cumulative interface byte counters.
type CounterReader = ports.CounterReader

// Counters are cumulative rx/tx byte counters.
type Counters = ports.Counters

// Store is the append-only sample log.
type Store = ports.Store

// StoreStats describes the store for metrics.
type StoreStats = ports.StoreStats

// Diagnoser explains anomalies in plain language.
type Diagnoser = ports.Diagnoser

// DiagnosisInput is what a Diagnoser is given.
type DiagnosisInput = ports.DiagnosisInput

// Diagnosis is a generated explanation and the generator that produced it.
type Diagnosis = ports.Diagnosis

// ReportPublisher ships evaluation reports to a message bus.
type ReportPublisher = ports.ReportPublisher

// Sink consumes batches of persisted samples for archiving.
type Sink = ports.Sink

// SampleQueue buffers persisted samples for the archive sink.
type SampleQueue = ports.SampleQueue

// QueuedSample is an item buffered inside the archive queue.
type QueuedSample = ports.QueuedSample

// Observability emits logs and metrics.
type Observability = ports.Observability

// Field is a structured log field.
type Field = ports.Field

type (
	Baseline   = domain.Baseline
	Throughput = domain.Throughput
	Anomaly    = domain.Anomaly
	Report     = monitor.Report
	Snapshot   = monitor.Snapshot
	Summary    = monitor.Summary
	Monitor    = monitor.Service
)
