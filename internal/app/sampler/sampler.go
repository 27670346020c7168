// Package sampler runs one measurement cycle: counters plus a latency/loss probe.
package sampler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ghalamif/NetPulse/internal/domain"
	"github.com/ghalamif/NetPulse/internal/ports"
)

type Sampler struct {
	prober       ports.Prober
	counters     ports.CounterReader
	probeTimeout time.Duration
	target       string
}

func New(prober ports.Prober, counters ports.CounterReader, probeTimeout time.Duration, target string) (*Sampler, error) {
	if prober == nil {
		return nil, errors.New("prober is required")
	}
	if counters == nil {
		return nil, errors.New("counter reader is required")
	}
	if probeTimeout <= 0 {
		probeTimeout = 4 * time.Second
	}
	return &Sampler{prober: prober, counters: counters, probeTimeout: probeTimeout, target: target}, nil
}

// Sample takes one measurement stamped with ts. It never fails: a probe or
// counter failure yields a degraded sample with the error recorded on it.
// Counters are read first so they line up with ts.
func (s *Sampler) Sample(ctx context.Context, ts time.Time) domain.Sample {
	out := domain.Sample{Timestamp: ts, Target: s.target}

	if c, err := s.counters.ReadCounters(); err != nil {
		out.CounterError = wrapErr(domain.ErrCounterRead, err).Error()
	} else {
		out.RxBytes = c.RxBytes
		out.TxBytes = c.TxBytes
	}

	pctx, cancel := context.WithTimeout(ctx, s.probeTimeout)
	defer cancel()

	res, err := s.prober.Probe(pctx)
	if err == nil && pctx.Err() != nil && res.PacketsSent == 0 {
		err = pctx.Err()
	}
	if err != nil {
		out.ProbeError = wrapErr(domain.ErrProbeFailure, err).Error()
		return out
	}

	if res.Target != "" {
		out.Target = res.Target
	}
	out.PacketLossPct = clampPct(res.LossPct)
	if res.PacketsRecv > 0 && res.AvgRTT > 0 {
		out.LatencyMs = domain.Float64(float64(res.AvgRTT) / float64(time.Millisecond))
	}
	return out
}

func wrapErr(sentinel, err error) error {
	if errors.Is(err, sentinel) {
		return err
	}
	return fmt.Errorf("%w: %w", sentinel, err)
}

func clampPct(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	default:
		return v
	}
}
