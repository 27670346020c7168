package probe

import (
	"context"
	"errors"
	"fmt"
	"time"

	probing "github.com/prometheus-community/pro-bing"

	"github.com/ghalamif/NetPulse/internal/domain"
	"github.com/ghalamif/NetPulse/internal/ports"
)

// PingConfig tunes the ICMP echo probe.
type PingConfig struct {
	Target     string        `yaml:"target"`
	Count      int           `yaml:"count"`
	Interval   time.Duration `yaml:"interval"`
	Timeout    time.Duration `yaml:"timeout"`
	Privileged bool          `yaml:"privileged"`
}

func (c *PingConfig) ApplyDefaults() {
	if c.Target == "" {
		c.Target = "8.8.8.8"
	}
	if c.Count <= 0 {
		c.Count = 4
	}
	if c.Interval <= 0 {
		c.Interval = 200 * time.Millisecond
	}
	if c.Timeout <= 0 {
		c.Timeout = 3 * time.Second
	}
}

// PingProber sends Count echo requests per probe and reports the average RTT
// of the replies that came back.
type PingProber struct {
	cfg PingConfig
}

func NewPingProber(cfg PingConfig) *PingProber {
	cfg.ApplyDefaults()
	return &PingProber{cfg: cfg}
}

func (p *PingProber) Probe(ctx context.Context) (ports.ProbeResult, error) {
	res := ports.ProbeResult{Target: p.cfg.Target}

	pinger, err := probing.NewPinger(p.cfg.Target)
	if err != nil {
		return res, fmt.Errorf("%w: resolve %s: %w", domain.ErrProbeFailure, p.cfg.Target, err)
	}
	pinger.Count = p.cfg.Count
	pinger.Interval = p.cfg.Interval
	pinger.Timeout = p.cfg.Timeout
	pinger.SetPrivileged(p.cfg.Privileged)

	if err := pinger.RunWithContext(ctx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return res, fmt.Errorf("%w: ping %s: %w", domain.ErrProbeFailure, p.cfg.Target, err)
	}

	return resultFromStats(p.cfg.Target, pinger.Statistics()), nil
}

func resultFromStats(target string, st *probing.Statistics) ports.ProbeResult {
	res := ports.ProbeResult{Target: target}
	if st == nil {
		return res
	}
	res.PacketsSent = st.PacketsSent
	res.PacketsRecv = st.PacketsRecv
	res.LossPct = st.PacketLoss
	if st.PacketsSent == 0 {
		// Nothing left the host before the deadline; treat as total loss.
		res.LossPct = 100
	}
	if st.PacketsRecv > 0 {
		res.AvgRTT = st.AvgRtt
	}
	return res
}

var _ ports.Prober = (*PingProber)(nil)
