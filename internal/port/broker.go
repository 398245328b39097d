package port

import (
	"context"

	"github.com/pulsenotify/orchestrator/internal/domain"
)

// BrokerPublisher hands an enriched notification to its per-channel queue.
// Implementations must be safe for concurrent publishers and must not report
// success before the broker has confirmed the message.
type BrokerPublisher interface {
	Publish(ctx context.Context, msg domain.EnrichedMessage) error
	Close() error
}
