package memory

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
)

// DefaultDedupTTL is how long a message id is remembered.
const DefaultDedupTTL = 24 * time.Hour

// Dedup implements ports.Deduplicator with an in-process TTL cache.
// It only fences a single replica; use the Redis or SQL variant across replicas.
type Dedup struct {
	cache *cache.Cache
}

// NewDedup creates a cache remembering ids for ttl (DefaultDedupTTL when zero).
func NewDedup(ttl time.Duration) *Dedup {
	if ttl <= 0 {
		ttl = DefaultDedupTTL
	}
	return &Dedup{cache: cache.New(ttl, ttl/2)}
}

// Claim reports whether messageID is seen for the first time.
func (d *Dedup) Claim(ctx context.Context, messageID string) (bool, error) {
	// Add fails when the key is present and unexpired, which makes the claim atomic.
	if err := d.cache.Add(messageID, struct{}{}, cache.DefaultExpiration); err != nil {
		return false, nil
	}
	return true, nil
}
