package ports

import "context"

// Deduplicator remembers inbound message ids for a bounded time.
type Deduplicator interface {
	// Claim records the id and reports whether this is its first delivery.
	Claim(ctx context.Context, messageID string) (bool, error)
}
