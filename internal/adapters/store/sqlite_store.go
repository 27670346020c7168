package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	_ "modernc.org/sqlite" // pure-Go SQLite driver

	"github.com/ghalamif/NetPulse/internal/domain"
	"github.com/ghalamif/NetPulse/internal/ports"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS samples (
    seq             INTEGER PRIMARY KEY AUTOINCREMENT,
    ts_ns           INTEGER NOT NULL,
    target          TEXT NOT NULL DEFAULT '',
    latency_ms      REAL,
    packet_loss_pct REAL NOT NULL DEFAULT 0,
    rx_bytes        INTEGER NOT NULL DEFAULT 0,
    tx_bytes        INTEGER NOT NULL DEFAULT 0,
    probe_error     TEXT NOT NULL DEFAULT '',
    counter_error   TEXT NOT NULL DEFAULT ''
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_samples_ts ON samples(ts_ns);

CREATE TABLE IF NOT EXISTS store_meta (
    key   TEXT PRIMARY KEY,
    value INTEGER NOT NULL
);
`

const sampleColumns = `seq, ts_ns, target, latency_ms, packet_loss_pct, rx_bytes, tx_bytes, probe_error, counter_error`

// SQLiteStore persists samples in a single SQLite table indexed by timestamp.
type SQLiteStore struct {
	writeMu sync.Mutex

	db           *sql.DB
	path         string
	clock        clock.Clock
	trackArchive bool

	latestNs  atomic.Int64
	latestSeq atomic.Uint64
	count     atomic.Int64
	archived  atomic.Uint64
	closed    atomic.Bool
}

func OpenSQLiteStore(path string, opts ...Option) (*SQLiteStore, error) {
	o := buildOptions(opts)

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}

	s := &SQLiteStore{
		db:           db,
		path:         path,
		clock:        o.clock,
		trackArchive: o.trackArchive,
	}
	if err := s.load(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) load() error {
	var (
		latestNs  sql.NullInt64
		latestSeq sql.NullInt64
		count     int64
	)
	row := s.db.QueryRow(`SELECT MAX(ts_ns), MAX(seq), COUNT(*) FROM samples`)
	if err := row.Scan(&latestNs, &latestSeq, &count); err != nil {
		return fmt.Errorf("load sqlite stats: %w", err)
	}
	s.latestNs.Store(latestNs.Int64)
	s.latestSeq.Store(uint64(latestSeq.Int64))
	s.count.Store(count)

	var archived int64
	err := s.db.QueryRow(`SELECT value FROM store_meta WHERE key = 'archived_upto'`).Scan(&archived)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("load archive cursor: %w", err)
	}
	s.archived.Store(uint64(archived))
	return nil
}

func (s *SQLiteStore) Append(ctx context.Context, sample *domain.Sample) error {
	if sample == nil {
		return writeFailure(fmt.Errorf("nil sample"))
	}
	if s.closed.Load() {
		return writeFailure(domain.ErrStoreClosed)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	sample.Timestamp = sample.Timestamp.Round(0)
	ts := sample.Timestamp.UnixNano()
	if latest := s.latestNs.Load(); latest != 0 && ts <= latest {
		return writeFailure(fmt.Errorf("%w: %d <= %d", domain.ErrOutOfOrder, ts, latest))
	}

	var latency sql.NullFloat64
	if sample.LatencyMs != nil {
		latency = sql.NullFloat64{Float64: *sample.LatencyMs, Valid: true}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return writeFailure(err)
	}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO samples (ts_ns, target, latency_ms, packet_loss_pct, rx_bytes, tx_bytes, probe_error, counter_error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ts, sample.Target, latency, sample.PacketLossPct,
		int64(sample.RxBytes), int64(sample.TxBytes),
		sample.ProbeError, sample.CounterError,
	)
	if err != nil {
		_ = tx.Rollback()
		return writeFailure(err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		_ = tx.Rollback()
		return writeFailure(err)
	}
	if err := tx.Commit(); err != nil {
		return writeFailure(err)
	}

	sample.Seq = uint64(seq)
	s.latestNs.Store(ts)
	s.latestSeq.Store(uint64(seq))
	s.count.Add(1)
	return nil
}

func (s *SQLiteStore) Recent(ctx context.Context, window time.Duration) ([]domain.Sample, error) {
	if s.closed.Load() {
		return nil, domain.ErrStoreClosed
	}
	latest := s.latestNs.Load()
	if latest == 0 {
		return []domain.Sample{}, nil
	}
	end := windowEnd(s.clock.Now(), time.Unix(0, latest))
	start := end.Add(-window)

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sampleColumns+` FROM samples WHERE ts_ns >= ? AND ts_ns <= ? ORDER BY ts_ns ASC`,
		start.UnixNano(), end.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("query recent samples: %w", err)
	}
	defer rows.Close()

	out := []domain.Sample{}
	for rows.Next() {
		sample, err := scanSample(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sample)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Latest(ctx context.Context) (domain.Sample, bool, error) {
	if s.closed.Load() {
		return domain.Sample{}, false, domain.ErrStoreClosed
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+sampleColumns+` FROM samples ORDER BY ts_ns DESC LIMIT 1`)
	sample, err := scanSample(row)
	if err == sql.ErrNoRows {
		return domain.Sample{}, false, nil
	}
	if err != nil {
		return domain.Sample{}, false, err
	}
	return sample, true, nil
}

func (s *SQLiteStore) After(ctx context.Context, seq uint64, limit int) ([]domain.Sample, error) {
	if s.closed.Load() {
		return nil, domain.ErrStoreClosed
	}
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sampleColumns+` FROM samples WHERE seq > ? ORDER BY seq ASC LIMIT ?`,
		int64(seq), limit)
	if err != nil {
		return nil, fmt.Errorf("query samples after %d: %w", seq, err)
	}
	defer rows.Close()

	out := []domain.Sample{}
	for rows.Next() {
		sample, err := scanSample(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sample)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Compact(ctx context.Context, before time.Time) (int, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	query := `DELETE FROM samples WHERE ts_ns < ?`
	args := []any{before.UnixNano()}
	if s.trackArchive {
		query += ` AND seq <= ?`
		args = append(args, int64(s.archived.Load()))
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("compact sqlite: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	s.count.Add(-n)
	return int(n), nil
}

func (s *SQLiteStore) MarkArchived(ctx context.Context, upto uint64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO store_meta (key, value) VALUES ('archived_upto', ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value WHERE excluded.value > store_meta.value`,
		int64(upto))
	if err != nil {
		return fmt.Errorf("mark archived: %w", err)
	}
	for {
		cur := s.archived.Load()
		if upto <= cur || s.archived.CompareAndSwap(cur, upto) {
			return nil
		}
	}
}

func (s *SQLiteStore) Stats() ports.StoreStats {
	var size int64
	for _, p := range []string{s.path, s.path + "-wal"} {
		if fi, err := os.Stat(p); err == nil {
			size += fi.Size()
		}
	}
	return ports.StoreStats{
		Driver:       DriverSQLite,
		Samples:      int(s.count.Load()),
		SizeBytes:    size,
		LatestSeq:    s.latestSeq.Load(),
		ArchivedUpto: s.archived.Load(),
	}
}

func (s *SQLiteStore) Close() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.closed.Swap(true) {
		return nil
	}
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSample(row rowScanner) (domain.Sample, error) {
	var (
		sample  domain.Sample
		seq     int64
		tsNs    int64
		latency sql.NullFloat64
		rx, tx  int64
	)
	if err := row.Scan(&seq, &tsNs, &sample.Target, &latency, &sample.PacketLossPct,
		&rx, &tx, &sample.ProbeError, &sample.CounterError); err != nil {
		return domain.Sample{}, err
	}
	sample.Seq = uint64(seq)
	sample.Timestamp = time.Unix(0, tsNs)
	if latency.Valid {
		sample.LatencyMs = domain.Float64(latency.Float64)
	}
	sample.RxBytes = uint64(rx)
	sample.TxBytes = uint64(tx)
	return sample, nil
}

var _ ports.Store = (*SQLiteStore)(nil)
