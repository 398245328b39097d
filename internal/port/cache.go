package port

import "context"

// IdempotencyStore is the fast-path deduplication layer. The datastore's
// unique constraint stays authoritative; a false negative here is tolerated.
type IdempotencyStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	// SetNX stores key -> correlationID with a 24h TTL; returns false when a
	// concurrent request won the race.
	SetNX(ctx context.Context, key, correlationID string) (bool, error)
}

type StatusSnapshot struct {
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
	UpdatedAt int64  `json:"updated_at"`
}

type StatusStore interface {
	SetStatus(ctx context.Context, correlationID string, snapshot StatusSnapshot) error
	GetStatus(ctx context.Context, correlationID string) (*StatusSnapshot, error)
}
