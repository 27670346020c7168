package probe

import (
	"fmt"

	"github.com/prometheus/procfs"

	"github.com/ghalamif/NetPulse/internal/domain"
	"github.com/ghalamif/NetPulse/internal/ports"
)

// NetDevCounters sums rx/tx byte counters from /proc/net/dev. With no
// interfaces configured every interface except loopback is summed.
type NetDevCounters struct {
	fs         procfs.FS
	interfaces map[string]struct{}
}

// NewNetDevCounters reads from the proc filesystem mounted at procPath
// ("/proc" when empty).
func NewNetDevCounters(procPath string, interfaces []string) (*NetDevCounters, error) {
	if procPath == "" {
		procPath = procfs.DefaultMountPoint
	}
	fs, err := procfs.NewFS(procPath)
	if err != nil {
		return nil, fmt.Errorf("open procfs %s: %w", procPath, err)
	}
	c := &NetDevCounters{fs: fs}
	if len(interfaces) > 0 {
		c.interfaces = make(map[string]struct{}, len(interfaces))
		for _, name := range interfaces {
			c.interfaces[name] = struct{}{}
		}
	}
	return c, nil
}

func (c *NetDevCounters) ReadCounters() (ports.Counters, error) {
	dev, err := c.fs.NetDev()
	if err != nil {
		return ports.Counters{}, fmt.Errorf("%w: %w", domain.ErrCounterRead, err)
	}

	var (
		out   ports.Counters
		found int
	)
	for name, line := range dev {
		if !c.wants(name) {
			continue
		}
		out.RxBytes += line.RxBytes
		out.TxBytes += line.TxBytes
		found++
	}
	if found == 0 {
		return ports.Counters{}, fmt.Errorf("%w: no matching interfaces", domain.ErrCounterRead)
	}
	return out, nil
}

func (c *NetDevCounters) wants(name string) bool {
	if c.interfaces != nil {
		_, ok := c.interfaces[name]
		return ok
	}
	return name != "lo"
}

var _ ports.CounterReader = (*NetDevCounters)(nil)
