package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/ghalamif/NetPulse/internal/adapters/wal"
	"github.com/ghalamif/NetPulse/internal/domain"
	"github.com/ghalamif/NetPulse/internal/ports"
)

// WALStore keeps samples in a FileWAL for durability and mirrors them in a
// time-ordered in-memory index so window reads cost a binary search plus the
// size of the window. The index is bounded by retention compaction.
type WALStore struct {
	writeMu sync.Mutex // one append+sync (or compaction) at a time

	mu       sync.RWMutex // guards everything below
	index    []domain.Sample
	archived uint64
	closed   bool

	wal          ports.WAL
	clock        clock.Clock
	trackArchive bool
}

// OpenWALStore opens (or creates) the log under dir and replays it into the index.
func OpenWALStore(dir string, opts ...Option) (*WALStore, error) {
	w, err := wal.NewFileWAL(dir)
	if err != nil {
		return nil, fmt.Errorf("open wal: %w", err)
	}
	s, err := NewWALStore(w, opts...)
	if err != nil {
		_ = w.Close()
		return nil, err
	}
	return s, nil
}

// NewWALStore wraps an already opened WAL.
func NewWALStore(w ports.WAL, opts ...Option) (*WALStore, error) {
	o := buildOptions(opts)
	s := &WALStore{
		wal:          w,
		clock:        o.clock,
		trackArchive: o.trackArchive,
		archived:     uint64(w.Stats().Committed),
	}

	err := w.Iterate(0, func(id ports.WALEntryID, sample *domain.Sample) error {
		s.index = append(s.index, *sample)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("replay wal: %w", err)
	}
	sort.SliceStable(s.index, func(i, j int) bool {
		return s.index[i].Timestamp.Before(s.index[j].Timestamp)
	})
	return s, nil
}

func (s *WALStore) Append(ctx context.Context, sample *domain.Sample) error {
	if sample == nil {
		return writeFailure(fmt.Errorf("nil sample"))
	}
	if err := ctx.Err(); err != nil {
		return writeFailure(err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	// Stored timestamps carry no monotonic reading so that what readers see
	// before and after a restart compares the same way.
	sample.Timestamp = sample.Timestamp.Round(0)

	s.mu.RLock()
	closed := s.closed
	var latest time.Time
	if n := len(s.index); n > 0 {
		latest = s.index[n-1].Timestamp
	}
	s.mu.RUnlock()

	if closed {
		return writeFailure(domain.ErrStoreClosed)
	}
	if !latest.IsZero() && !sample.Timestamp.After(latest) {
		return writeFailure(fmt.Errorf("%w: %s <= %s", domain.ErrOutOfOrder,
			sample.Timestamp.Format(time.RFC3339Nano), latest.Format(time.RFC3339Nano)))
	}

	if _, err := s.wal.Append(sample); err != nil {
		return writeFailure(err)
	}
	if err := s.wal.Sync(); err != nil {
		return writeFailure(err)
	}

	// Visible to readers only once durable.
	s.mu.Lock()
	s.index = append(s.index, sample.Clone())
	s.mu.Unlock()
	return nil
}

func (s *WALStore) Recent(ctx context.Context, window time.Duration) ([]domain.Sample, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.index) == 0 {
		return []domain.Sample{}, nil
	}
	end := windowEnd(s.clock.Now(), s.index[len(s.index)-1].Timestamp)
	start := end.Add(-window)

	lo := sort.Search(len(s.index), func(i int) bool {
		return !s.index[i].Timestamp.Before(start)
	})
	hi := sort.Search(len(s.index), func(i int) bool {
		return s.index[i].Timestamp.After(end)
	})

	if lo >= hi {
		return []domain.Sample{}, nil
	}
	out := make([]domain.Sample, 0, hi-lo)
	for _, sample := range s.index[lo:hi] {
		out = append(out, sample.Clone())
	}
	return out, nil
}

func (s *WALStore) Latest(ctx context.Context) (domain.Sample, bool, error) {
	if err := ctx.Err(); err != nil {
		return domain.Sample{}, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.index) == 0 {
		return domain.Sample{}, false, nil
	}
	return s.index[len(s.index)-1].Clone(), true, nil
}

// After relies on seqs growing with timestamps, which Append enforces.
func (s *WALStore) After(ctx context.Context, seq uint64, limit int) ([]domain.Sample, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	lo := sort.Search(len(s.index), func(i int) bool {
		return s.index[i].Seq > seq
	})
	hi := len(s.index)
	if limit > 0 && hi-lo > limit {
		hi = lo + limit
	}
	out := make([]domain.Sample, 0, hi-lo)
	for _, sample := range s.index[lo:hi] {
		out = append(out, sample.Clone())
	}
	return out, nil
}

func (s *WALStore) Compact(ctx context.Context, before time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.RLock()
	archived := s.archived
	s.mu.RUnlock()

	keep := func(seq uint64, ts time.Time) bool {
		if !ts.Before(before) {
			return true
		}
		return s.trackArchive && seq > archived
	}

	dropped, err := s.wal.Rewrite(func(id ports.WALEntryID, sample *domain.Sample) bool {
		return keep(uint64(id), sample.Timestamp)
	})
	if err != nil {
		return 0, err
	}
	if dropped == 0 {
		return 0, nil
	}

	s.mu.Lock()
	kept := s.index[:0]
	for _, sample := range s.index {
		if keep(sample.Seq, sample.Timestamp) {
			kept = append(kept, sample)
		}
	}
	// Clear the tail so dropped samples can be collected.
	for i := len(kept); i < len(s.index); i++ {
		s.index[i] = domain.Sample{}
	}
	s.index = kept
	s.mu.Unlock()

	return dropped, nil
}

func (s *WALStore) MarkArchived(ctx context.Context, upto uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.wal.Commit(ports.WALEntryID(upto)); err != nil {
		return err
	}
	s.mu.Lock()
	if upto > s.archived {
		s.archived = upto
	}
	s.mu.Unlock()
	return nil
}

func (s *WALStore) Stats() ports.StoreStats {
	walStats := s.wal.Stats()

	s.mu.RLock()
	defer s.mu.RUnlock()
	return ports.StoreStats{
		Driver:       DriverWAL,
		Samples:      len(s.index),
		SizeBytes:    walStats.SizeBytes,
		LatestSeq:    uint64(walStats.LatestAppended),
		ArchivedUpto: s.archived,
	}
}

func (s *WALStore) Close() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	return s.wal.Close()
}

var _ ports.Store = (*WALStore)(nil)
