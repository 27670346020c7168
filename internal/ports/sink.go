package ports

import "github.com/ghalamif/NetPulse/internal/domain"

// Sink receives batches of persisted samples for long-term archiving.
type Sink interface {
	WriteBatch(samples []*domain.Sample) error
	Name() string
}
