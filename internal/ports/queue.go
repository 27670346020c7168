package ports

import "github.com/ghalamif/NetPulse/internal/domain"

type QueuedSample struct {
	Seq    uint64
	Sample *domain.Sample
}

type SampleQueue interface {
	Enqueue(seq uint64, s *domain.Sample) bool
	DequeueBatch(max int) []QueuedSample
	Len() int
}
