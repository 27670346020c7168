package ports

import (
	"context"
	"time"

	"github.com/ghalamif/NetPulse/internal/domain"
)

// Store is the durable, append-only sample log. Implementations serialize
// writers and only expose fully committed samples to readers.
type Store interface {
	// Append assigns s.Seq and persists the sample. Errors wrap domain.ErrWriteFailure.
	Append(ctx context.Context, s *domain.Sample) error
	// Recent returns samples with timestamps in [now-window, now], oldest first.
	Recent(ctx context.Context, window time.Duration) ([]domain.Sample, error)
	Latest(ctx context.Context) (domain.Sample, bool, error)
	// After returns up to limit samples with Seq > seq, in Seq order.
	After(ctx context.Context, seq uint64, limit int) ([]domain.Sample, error)
	// Compact drops samples older than before. Unarchived samples are kept
	// while archive tracking is enabled.
	Compact(ctx context.Context, before time.Time) (int, error)
	MarkArchived(ctx context.Context, upto uint64) error
	Stats() StoreStats
	Close() error
}

type StoreStats struct {
	Driver       string
	Samples      int
	SizeBytes    int64
	LatestSeq    uint64
	ArchivedUpto uint64
}
