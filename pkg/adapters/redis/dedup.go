package redis

import (
	"context"
	"fmt"
	"time"

	backend "github.com/redis/go-redis/v9"
)

// Dedup implements ports.Deduplicator with SET NX and a TTL per message id.
type Dedup struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

// NewDedup creates a deduplicator remembering ids for ttl.
func NewDedup(client *backend.Client, prefix string, ttl time.Duration) *Dedup {
	return &Dedup{client: client, prefix: prefix, ttl: ttl}
}

// Claim records the id and reports whether this is its first delivery.
func (d *Dedup) Claim(ctx context.Context, messageID string) (bool, error) {
	ok, err := d.client.SetNX(ctx, d.prefix+"msg:"+messageID, 1, d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim message id: %w", err)
	}
	return ok, nil
}
