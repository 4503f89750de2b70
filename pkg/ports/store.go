package ports

import (
	"context"

	"github.com/aretw0/parley/pkg/domain"
)

// SessionStore defines the interface for persisting conversation sessions.
type SessionStore interface {
	// Save persists the session under its ID.
	Save(ctx context.Context, session *domain.Session) error

	// Load retrieves the session for a key.
	// Returns domain.ErrSessionNotFound if the session does not exist.
	Load(ctx context.Context, sessionID string) (*domain.Session, error)

	// Delete removes the live session. Archive history is kept.
	Delete(ctx context.Context, sessionID string) error

	// List returns the IDs of all live sessions.
	List(ctx context.Context) ([]string, error)

	// Archive copies the session's log and misc data into an immutable history record.
	Archive(ctx context.Context, session *domain.Session, reason string) (domain.ArchiveRecord, error)

	// History returns the archive records of a session, oldest first.
	History(ctx context.Context, sessionID string) ([]domain.ArchiveRecord, error)
}
