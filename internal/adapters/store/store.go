package store

import (
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/ghalamif/NetPulse/internal/domain"
	"github.com/ghalamif/NetPulse/internal/ports"
)

const (
	DriverWAL    = "wal"
	DriverSQLite = "sqlite"
)

// Config selects and tunes the sample store.
type Config struct {
	Driver          string        `yaml:"driver"`
	Dir             string        `yaml:"dir"`
	SQLitePath      string        `yaml:"sqlite_path"`
	Retention       time.Duration `yaml:"retention"`
	CompactInterval time.Duration `yaml:"compact_interval"`
}

func (c *Config) ApplyDefaults() {
	if c.Driver == "" {
		c.Driver = DriverWAL
	}
	if c.Dir == "" {
		c.Dir = "./data/store"
	}
	if c.SQLitePath == "" {
		c.SQLitePath = "./data/netpulse.db"
	}
	if c.Retention == 0 {
		c.Retention = 24 * time.Hour
	}
	if c.CompactInterval == 0 {
		c.CompactInterval = 10 * time.Minute
	}
}

func (c *Config) Validate() error {
	switch c.Driver {
	case DriverWAL:
		if c.Dir == "" {
			return errors.New("dir is required for the wal driver")
		}
	case DriverSQLite:
		if c.SQLitePath == "" {
			return errors.New("sqlite_path is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("unknown driver %q", c.Driver)
	}
	if c.Retention < 0 {
		return errors.New("retention must be >= 0")
	}
	return nil
}

type options struct {
	clock        clock.Clock
	trackArchive bool
}

// Option tunes a store at open time.
type Option func(*options)

// WithClock overrides the wall clock used for window bounds.
func WithClock(c clock.Clock) Option {
	return func(o *options) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithArchiveTracking makes Compact keep samples that have not been archived yet.
func WithArchiveTracking(on bool) Option {
	return func(o *options) {
		o.trackArchive = on
	}
}

func buildOptions(opts []Option) options {
	o := options{clock: clock.New()}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// Open builds the store selected by cfg.Driver.
func Open(cfg Config, opts ...Option) (ports.Store, error) {
	switch cfg.Driver {
	case DriverWAL, "":
		return OpenWALStore(cfg.Dir, opts...)
	case DriverSQLite:
		return OpenSQLiteStore(cfg.SQLitePath, opts...)
	default:
		return nil, fmt.Errorf("store: unknown driver %q", cfg.Driver)
	}
}

// windowEnd is the upper bound of a Recent read. Sample timestamps follow the
// collection timeline, so if the wall clock stepped back behind the newest
// sample the newest sample defines "now".
func windowEnd(now, latest time.Time) time.Time {
	if latest.After(now) {
		return latest
	}
	return now
}

func writeFailure(err error) error {
	if errors.Is(err, domain.ErrWriteFailure) {
		return err
	}
	return fmt.Errorf("%w: %w", domain.ErrWriteFailure, err)
}
