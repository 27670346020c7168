package sink

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/lib/pq"

	"github.com/ghalamif/NetPulse/internal/domain"
	"github.com/ghalamif/NetPulse/internal/ports"
)

const sampleColumnCount = 9

// TimescaleSink archives samples into a Postgres/TimescaleDB table.
type TimescaleSink struct {
	db        *sql.DB
	tableName string
}

func NewTimescaleSink(db *sql.DB, table string) *TimescaleSink {
	return &TimescaleSink{db: db, tableName: table}
}

// OpenTimescale dials Postgres through lib/pq.
func OpenTimescale(connString string) (*sql.DB, error) {
	db, err := sql.Open("postgres", connString)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	return db, nil
}

func (t *TimescaleSink) Name() string { return "timescaledb" }

// EnsureSchema creates the archive table if missing. Turning it into a
// hypertable is left to the operator.
func (t *TimescaleSink) EnsureSchema(ctx context.Context) error {
	_, err := t.db.ExecContext(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    target          TEXT NOT NULL,
    ts              TIMESTAMPTZ NOT NULL,
    seq             BIGINT NOT NULL,
    latency_ms      DOUBLE PRECISION,
    packet_loss_pct DOUBLE PRECISION NOT NULL,
    rx_bytes        BIGINT NOT NULL,
    tx_bytes        BIGINT NOT NULL,
    probe_error     TEXT NOT NULL DEFAULT '',
    counter_error   TEXT NOT NULL DEFAULT '',
    PRIMARY KEY (target, ts)
)`, t.tableName))
	return err
}

func (t *TimescaleSink) WriteBatch(samples []*domain.Sample) error {
	if len(samples) == 0 {
		return nil
	}

	// Replays after a crash hit the primary key and are skipped.
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(t.tableName)
	b.WriteString(" (target, ts, seq, latency_ms, packet_loss_pct, rx_bytes, tx_bytes, probe_error, counter_error) VALUES ")

	args := make([]any, 0, len(samples)*sampleColumnCount)
	for i, s := range samples {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString("(")
		for c := 1; c <= sampleColumnCount; c++ {
			if c > 1 {
				b.WriteString(",")
			}
			fmt.Fprintf(&b, "$%d", len(args)+c)
		}
		b.WriteString(")")

		var latency sql.NullFloat64
		if s.HasLatency() {
			latency = sql.NullFloat64{Float64: s.Latency(), Valid: true}
		}
		args = append(args,
			s.Target,
			s.Timestamp,
			int64(s.Seq),
			latency,
			s.PacketLossPct,
			int64(s.RxBytes),
			int64(s.TxBytes),
			s.ProbeError,
			s.CounterError,
		)
	}

	b.WriteString(" ON CONFLICT (target, ts) DO NOTHING")

	_, err := t.db.Exec(b.String(), args...)
	return err
}

var _ ports.Sink = (*TimescaleSink)(nil)
