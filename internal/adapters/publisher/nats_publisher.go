package publisher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/ghalamif/NetPulse/internal/ports"
)

// Config controls periodic report publishing. An empty URL disables it.
type Config struct {
	NATSURL  string        `yaml:"nats_url"`
	Subject  string        `yaml:"subject"`
	Interval time.Duration `yaml:"interval"`
	Name     string        `yaml:"name"`
}

func (c *Config) ApplyDefaults() {
	if c.Subject == "" {
		c.Subject = "netpulse.reports"
	}
	if c.Interval <= 0 {
		c.Interval = 30 * time.Second
	}
	if c.Name == "" {
		c.Name = "netpulse-edge"
	}
}

func (c *Config) Enabled() bool { return c.NATSURL != "" }

// NATSPublisher publishes encoded reports on a single subject.
type NATSPublisher struct {
	nc      *nats.Conn
	subject string
}

func NewNATSPublisher(cfg Config) (*NATSPublisher, error) {
	cfg.ApplyDefaults()
	if cfg.NATSURL == "" {
		return nil, errors.New("nats_url is required")
	}
	nc, err := nats.Connect(cfg.NATSURL,
		nats.Name(cfg.Name),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", cfg.NATSURL, err)
	}
	return &NATSPublisher{nc: nc, subject: cfg.Subject}, nil
}

func (p *NATSPublisher) Publish(ctx context.Context, payload []byte) error {
	if err := p.nc.Publish(p.subject, payload); err != nil {
		return err
	}
	return p.nc.FlushWithContext(ctx)
}

// Close drains and closes the NATS connection.
func (p *NATSPublisher) Close() error {
	if p.nc == nil {
		return nil
	}
	return p.nc.Drain()
}

var _ ports.ReportPublisher = (*NATSPublisher)(nil)

// Func adapts a plain function into a ReportPublisher.
type Func func(ctx context.Context, payload []byte) error

func (f Func) Publish(ctx context.Context, payload []byte) error { return f(ctx, payload) }
func (f Func) Close() error                                      { return nil }

var _ ports.ReportPublisher = Func(nil)
