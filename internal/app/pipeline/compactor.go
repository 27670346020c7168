package pipeline

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/ghalamif/NetPulse/internal/ports"
)

// RunCompactor enforces store retention every interval until ctx is done.
// A zero retention keeps everything.
func RunCompactor(ctx context.Context, st ports.Store, retention, interval time.Duration, clk clock.Clock, obs ports.Observability) {
	if retention <= 0 {
		return
	}
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	ticker := clk.Ticker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			CompactOnce(ctx, st, retention, clk, obs)
		}
	}
}

func CompactOnce(ctx context.Context, st ports.Store, retention time.Duration, clk clock.Clock, obs ports.Observability) int {
	n, err := st.Compact(ctx, clk.Now().Add(-retention))
	if err != nil {
		obs.LogError("store_compaction_failed", err)
		return 0
	}
	stats := st.Stats()
	obs.SetGauge("netpulse_store_size_bytes", float64(stats.SizeBytes))
	obs.SetGauge("netpulse_store_samples", float64(stats.Samples))
	if n > 0 {
		obs.IncCounter("netpulse_samples_compacted_total", float64(n))
		obs.LogInfo("store_compacted", ports.Field{Key: "dropped", Value: n}, ports.Field{Key: "remaining", Value: stats.Samples})
	}
	return n
}
