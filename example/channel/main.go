package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/ghalamif/NetPulse"
)

func main() {
	flow, err := netpulse.Conf("../../data/config.yaml")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sink, batches, closeBatches := netpulse.NewChannelSink("fanout", 32)
	defer closeBatches()

	go degradedReporter("degraded", batches)

	if err := flow.Run(ctx, netpulse.StreamOutSink(sink)); err != nil && err != context.Canceled {
		log.Fatalf("runtime error: %v", err)
	}
}

// degradedReporter prints every cycle whose probe or counter read failed.
func degradedReporter(name string, batches <-chan []netpulse.Sample) {
	for batch := range batches {
		for _, s := range batch {
			if !s.Degraded() {
				continue
			}
			fmt.Printf("[%s] %s probe=%q counters=%q\n", name, s.Timestamp.Format(time.RFC3339), s.ProbeError, s.CounterError)
		}
	}
}
