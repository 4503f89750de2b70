package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/aretw0/parley/pkg/domain"
	"github.com/google/uuid"
)

// Store implements ports.SessionStore in memory.
// Safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	data     map[string]*domain.Session
	archives map[string][]domain.ArchiveRecord
}

// NewStore creates a new in-memory store.
func NewStore() *Store {
	return &Store{
		data:     make(map[string]*domain.Session),
		archives: make(map[string][]domain.ArchiveRecord),
	}
}

// Save persists a copy of the session.
func (s *Store) Save(ctx context.Context, session *domain.Session) error {
	copied := session.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[session.ID] = copied
	return nil
}

// Load returns a copy so callers can't mutate stored sessions by pointer.
func (s *Store) Load(ctx context.Context, sessionID string) (*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.data[sessionID]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return session.Clone(), nil
}

// Delete removes the live session.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, sessionID)
	return nil
}

// List returns live session IDs.
func (s *Store) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sessions := make([]string, 0, len(s.data))
	for id := range s.data {
		sessions = append(sessions, id)
	}
	slices.Sort(sessions)
	return sessions, nil
}

// Archive appends a history record for the session.
func (s *Store) Archive(ctx context.Context, session *domain.Session, reason string) (domain.ArchiveRecord, error) {
	rec := domain.NewArchiveRecord(uuid.NewString(), session, reason)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.archives[session.ID] = append(s.archives[session.ID], rec)
	return rec, nil
}

// History returns the archive records of a session, oldest first.
func (s *Store) History(ctx context.Context, sessionID string) ([]domain.ArchiveRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.archives[sessionID]), nil
}
