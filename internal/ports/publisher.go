package ports

import "context"

// ReportPublisher ships encoded evaluation reports to an external bus.
type ReportPublisher interface {
	Publish(ctx context.Context, payload []byte) error
	Close() error
}
