package file

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/aretw0/parley/pkg/domain"
	"github.com/google/uuid"
)

// Store implements ports.SessionStore on the local filesystem.
// Live sessions are JSON files under sessions/; archives are appended as JSON lines under archive/.
type Store struct {
	BasePath string

	mu sync.Mutex
}

// NewStore creates a Store rooted at basePath.
// If basePath is empty, it defaults to ".parley".
func NewStore(basePath string) *Store {
	if basePath == "" {
		basePath = ".parley"
	}
	return &Store{BasePath: basePath}
}

// fileName makes session keys such as "whatsapp:+15550001" safe on every filesystem.
func fileName(sessionID, ext string) string {
	return url.QueryEscape(sessionID) + ext
}

func (s *Store) sessionsDir() string { return filepath.Join(s.BasePath, "sessions") }
func (s *Store) archiveDir() string { return filepath.Join(s.BasePath, "archive") }

// Save persists the session atomically: temp file, fsync, rename.
func (s *Store) Save(ctx context.Context, session *domain.Session) error {
	if session == nil || session.ID == "" {
		return fmt.Errorf("session ID cannot be empty")
	}

	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return writeAtomic(s.sessionsDir(), fileName(session.ID, ".json"), data)
}

func writeAtomic(dir, name string, data []byte) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to ensure session directory: %w", err)
	}

	// Same directory as the destination, so the rename stays on one filesystem.
	tmpFile, err := os.CreateTemp(dir, "tmp-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer func() {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmpFile.Write(data); err != nil {
		return fmt.Errorf("failed to write to temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("failed to fsync temp file: %w", err)
	}
	// Windows cannot rename an open file.
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, filepath.Join(dir, name)); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// Load retrieves the session from its JSON file.
func (s *Store) Load(ctx context.Context, sessionID string) (*domain.Session, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("session ID cannot be empty")
	}

	data, err := os.ReadFile(filepath.Join(s.sessionsDir(), fileName(sessionID, ".json")))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}

	var session domain.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	if session.MiscData == nil {
		session.MiscData = make(map[string]any)
	}
	return &session, nil
}

// Delete removes the session file. Archives are kept.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session ID cannot be empty")
	}

	err := os.Remove(filepath.Join(s.sessionsDir(), fileName(sessionID, ".json")))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete session file: %w", err)
	}
	return nil
}

// List returns all stored session IDs.
func (s *Store) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.sessionsDir())
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	sessions := []string{}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || filepath.Ext(name) != ".json" || strings.HasPrefix(name, "tmp-") {
			continue
		}
		id, err := url.QueryUnescape(strings.TrimSuffix(name, ".json"))
		if err != nil {
			continue
		}
		sessions = append(sessions, id)
	}
	return sessions, nil
}

// Archive appends an immutable snapshot of the session to its history file.
func (s *Store) Archive(ctx context.Context, session *domain.Session, reason string) (domain.ArchiveRecord, error) {
	rec := domain.NewArchiveRecord(uuid.NewString(), session, reason)
	line, err := json.Marshal(rec)
	if err != nil {
		return domain.ArchiveRecord{}, fmt.Errorf("failed to marshal archive record: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.archiveDir(), 0755); err != nil {
		return domain.ArchiveRecord{}, fmt.Errorf("failed to ensure archive directory: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(s.archiveDir(), fileName(session.ID, ".jsonl")), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return domain.ArchiveRecord{}, fmt.Errorf("failed to open archive file: %w", err)
	}
	defer func() { _ = f.Close() }()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return domain.ArchiveRecord{}, fmt.Errorf("failed to append archive record: %w", err)
	}
	if err := f.Sync(); err != nil {
		return domain.ArchiveRecord{}, fmt.Errorf("failed to fsync archive file: %w", err)
	}
	return rec, nil
}

// History reads the archive file of a session, oldest first.
func (s *Store) History(ctx context.Context, sessionID string) ([]domain.ArchiveRecord, error) {
	f, err := os.Open(filepath.Join(s.archiveDir(), fileName(sessionID, ".jsonl")))
	if err != nil {
		if os.IsNotExist(err) {
			return []domain.ArchiveRecord{}, nil
		}
		return nil, fmt.Errorf("failed to open archive file: %w", err)
	}
	defer func() { _ = f.Close() }()

	records := []domain.ArchiveRecord{}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		if len(strings.TrimSpace(scanner.Text())) == 0 {
			continue
		}
		var rec domain.ArchiveRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			return nil, fmt.Errorf("failed to decode archive record: %w", err)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read archive file: %w", err)
	}
	return records, nil
}
