package ports

import "github.com/ghalamif/NetPulse/internal/domain"

type WALEntryID uint64

type WAL interface {
	Append(s *domain.Sample) (WALEntryID, error)
	Sync() error
	Iterate(from WALEntryID, fn func(id WALEntryID, s *domain.Sample) error) error
	Commit(upto WALEntryID) error
	Rewrite(keep func(id WALEntryID, s *domain.Sample) bool) (int, error)
	Stats() WALStats
	Close() error
}

type WALStats struct {
	OldestUncommitted WALEntryID
	LatestAppended    WALEntryID
	Committed         WALEntryID
	SizeBytes         int64
}
