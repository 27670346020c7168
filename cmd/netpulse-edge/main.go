package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ghalamif/NetPulse"
	"github.com/ghalamif/NetPulse/internal/adapters/httpapi"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	var err error

	switch cmd {
	case "run":
		err = runCommand(os.Args[2:])
	case "validate":
		err = validateCommand(os.Args[2:])
	case "stats":
		err = statsCommand(os.Args[2:])
	case "ask":
		err = askCommand(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
		return
	default:
		printUsage()
		err = fmt.Errorf("unknown command %q", cmd)
	}

	if err != nil {
		log.Fatalf("netpulse-edge %s: %v", cmd, err)
	}
}

func runCommand(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	cfgPath := fs.String("config", "./data/config.yaml", "Path to edge configuration file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	flow, err := netpulse.Conf(*cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return flow.Run(ctx)
}

func validateCommand(args []string) error {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	cfgPath := fs.String("config", "./data/config.yaml", "Path to configuration file to validate")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := netpulse.LoadConfig(*cfgPath)
	if err != nil {
		return err
	}
	fmt.Printf("config %s looks good: target=%s interval=%s store=%s diagnosis=%s\n",
		*cfgPath, cfg.Sampling.Probe.Target, cfg.Sampling.Interval, cfg.Store.Driver, cfg.Diagnosis.Mode)
	return nil
}

func statsCommand(args []string) error {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	url := fs.String("url", "http://localhost:9100/metrics", "Prometheus metrics endpoint")
	interval := fs.Duration("interval", 2*time.Second, "Refresh interval")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	fmt.Printf("Streaming metrics from %s (Ctrl+C to stop)\n", *url)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := printMetricsSnapshot(*url); err != nil {
				fmt.Fprintf(os.Stderr, "stats error: %v\n", err)
			}
		}
	}
}

func printMetricsSnapshot(url string) error {
	resp, err := http.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	targets := map[string]float64{
		"netpulse_samples_persisted_total": 0,
		"netpulse_latency_ms":              0,
		"netpulse_packet_loss_pct":         0,
		"netpulse_throughput_bps":          0,
		"netpulse_store_samples":           0,
	}

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "#") {
			continue
		}
		for key := range targets {
			if strings.HasPrefix(line, key+" ") {
				var value float64
				if _, err := fmt.Sscanf(line, key+" %f", &value); err == nil {
					targets[key] = value
				}
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	fmt.Printf("[%s] samples=%.0f latency=%.1fms loss=%.1f%% throughput=%.0fbps stored=%.0f\n",
		time.Now().Format(time.RFC3339),
		targets["netpulse_samples_persisted_total"],
		targets["netpulse_latency_ms"],
		targets["netpulse_packet_loss_pct"],
		targets["netpulse_throughput_bps"],
		targets["netpulse_store_samples"],
	)
	return nil
}

// askCommand prints the diagnosis of a running instance followed by the raw
// numbers it was based on.
func askCommand(args []string) error {
	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	base := fs.String("url", "http://localhost:9100", "Base URL of a running netpulse-edge")
	timeout := fs.Duration("timeout", 20*time.Second, "Request timeout")
	if err := fs.Parse(args); err != nil {
		return err
	}
	question := strings.Join(fs.Args(), " ")
	if question == "" {
		question = "How's my network?"
	}
	fmt.Printf("\n%s\n\n", question)

	client := &http.Client{Timeout: *timeout}

	var diag httpapi.DiagnosisResponse
	if err := getJSON(client, strings.TrimSuffix(*base, "/")+"/api/diagnosis", &diag); err != nil {
		return err
	}
	fmt.Println(diag.Diagnosis)

	var snap netpulse.Snapshot
	if err := getJSON(client, strings.TrimSuffix(*base, "/")+"/api/metrics", &snap); err != nil {
		return err
	}
	if snap.Latest == nil {
		return nil
	}
	var spike float64
	if snap.Baseline.MeanLatencyMs > 0 && snap.Latest.HasLatency() {
		spike = (snap.Latest.Latency() - snap.Baseline.MeanLatencyMs) / snap.Baseline.MeanLatencyMs * 100
	}
	fmt.Printf("\n[Debug] Latency: %.1fms | Baseline: %.1fms | Loss: %.1f%% | Spike: %.0f%% | Source: %s\n",
		snap.Latest.Latency(), snap.Baseline.MeanLatencyMs, snap.Latest.PacketLossPct, spike, diag.Source)
	return nil
}

func getJSON(client *http.Client, url string, v any) error {
	resp, err := client.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: unexpected status %s", url, resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

func printUsage() {
	fmt.Printf(`NetPulse CLI

Usage:
  netpulse-edge <command> [flags]

Commands:
  run        Start the edge monitor using the provided config
  validate   Load and validate a config file without starting the monitor
  stats      Poll the Prometheus metrics endpoint and print live values
  ask        Print the diagnosis of a running instance

Examples:
  netpulse-edge run -config ./data/config.yaml
  netpulse-edge validate -config ./data/config.yaml
  netpulse-edge stats -url http://localhost:9100/metrics -interval 1s
  netpulse-edge ask -url http://localhost:9100 "Why is my video call lagging?"
`)
}
