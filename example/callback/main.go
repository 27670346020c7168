package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/ghalamif/NetPulse/pkg/netpulse"
)

func main() {
	flow, err := netpulse.Conf("../../data/config.yaml")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	callback := func(batch []netpulse.Sample) error {
		for _, sample := range batch {
			latency := "n/a"
			if sample.HasLatency {
				latency = fmt.Sprintf("%.1fms", sample.LatencyMs)
			}
			fmt.Printf("%s target=%s seq=%d latency=%s loss=%.1f%% rx=%d tx=%d\n",
				sample.Timestamp.Format(time.RFC3339Nano),
				sample.Target,
				sample.Seq,
				latency,
				sample.PacketLossPct,
				sample.RxBytes,
				sample.TxBytes,
			)
		}
		return nil
	}

	if err := flow.Run(ctx, netpulse.StreamOutCallback("stdout", callback)); err != nil && err != context.Canceled {
		log.Fatalf("runtime error: %v", err)
	}
}
