package sqlstore

import (
	"context"
	"fmt"
	"time"
)

// Claim records an inbound message id and reports whether this is its first delivery.
// With a dedup TTL, an id older than the TTL is forgotten and claimable again.
func (s *Store) Claim(ctx context.Context, messageID string) (bool, error) {
	now := time.Now().UTC()

	if s.dedupTTL > 0 {
		if _, err := s.exec(ctx,
			`DELETE FROM inbound_dedup WHERE message_id = ? AND received_at < ?`,
			messageID, now.Add(-s.dedupTTL),
		); err != nil {
			return false, fmt.Errorf("dedup expiry failed: %w", err)
		}
	}

	result, err := s.exec(ctx,
		`INSERT INTO inbound_dedup (message_id, received_at) VALUES (?, ?) ON CONFLICT (message_id) DO NOTHING`,
		messageID, now,
	)
	if err != nil {
		return false, fmt.Errorf("record inbound failed: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("dedup rows affected check failed: %w", err)
	}
	return n > 0, nil
}

// PruneDedup deletes ids received before cutoff and returns how many were removed.
func (s *Store) PruneDedup(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.exec(ctx, `DELETE FROM inbound_dedup WHERE received_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("dedup prune failed: %w", err)
	}
	return result.RowsAffected()
}
