// Package sqlstore persists sessions, archives and inbound message ids in SQLite or PostgreSQL.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "embed"

	"github.com/aretw0/parley/pkg/domain"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Dialect names a supported database/sql driver.
type Dialect string

const (
	SQLite   Dialect = "sqlite3"
	Postgres Dialect = "postgres"
)

// Connection pool settings for Postgres.
const (
	DefaultMaxOpenConns    = 25
	DefaultMaxIdleConns    = 25
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

//go:embed migrations_postgres.sql
var postgresMigrations string

// Store implements ports.SessionStore and ports.Deduplicator on a SQL database.
// The session itself is stored as a JSON document; flow and state are copied
// into columns for operators querying the table.
type Store struct {
	db       *sql.DB
	dialect  Dialect
	dedupTTL time.Duration
}

// Option configures a Store.
type Option func(*Store)

// WithDedupTTL makes claimed message ids reclaimable after ttl. Zero keeps them forever.
func WithDedupTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.dedupTTL = ttl
	}
}

// ParseDialect maps a configured driver name to a Dialect.
func ParseDialect(name string) (Dialect, error) {
	switch strings.ToLower(name) {
	case "sqlite", "sqlite3":
		return SQLite, nil
	case "postgres", "postgresql", "pg":
		return Postgres, nil
	default:
		return "", fmt.Errorf("unsupported sql dialect %q", name)
	}
}

// Open connects to the database and applies migrations.
// For SQLite the DSN is a file path; its directory is created when missing.
func Open(ctx context.Context, dialect Dialect, dsn string, opts ...Option) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("database DSN not set")
	}

	if dialect == SQLite {
		if dir := filepath.Dir(dsn); dir != "" && !strings.HasPrefix(dsn, "file:") && dsn != ":memory:" {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}

	db, err := sql.Open(string(dialect), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", dialect, err)
	}

	switch dialect {
	case SQLite:
		// SQLite serializes writers anyway; one connection avoids "database is locked".
		db.SetMaxOpenConns(1)
	case Postgres:
		db.SetMaxOpenConns(DefaultMaxOpenConns)
		db.SetMaxIdleConns(DefaultMaxIdleConns)
		db.SetConnMaxLifetime(DefaultConnMaxLifetime)
	}

	s, err := New(ctx, db, dialect, opts...)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an open database and applies migrations.
func New(ctx context.Context, db *sql.DB, dialect Dialect, opts ...Option) (*Store, error) {
	var migrations string
	switch dialect {
	case SQLite:
		migrations = sqliteMigrations
	case Postgres:
		migrations = postgresMigrations
	default:
		return nil, fmt.Errorf("unsupported sql dialect %q", dialect)
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("%s ping failed: %w", dialect, err)
	}
	if _, err := db.ExecContext(ctx, migrations); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	s := &Store{db: db, dialect: dialect}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// rebind rewrites ? placeholders as $1, $2... for Postgres.
func rebind(dialect Dialect, query string) string {
	if dialect != Postgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *Store) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, rebind(s.dialect, query), args...)
}

func (s *Store) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return s.db.QueryRowContext(ctx, rebind(s.dialect, query), args...)
}

func (s *Store) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, rebind(s.dialect, query), args...)
}

// Save upserts the session.
func (s *Store) Save(ctx context.Context, session *domain.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	_, err = s.exec(ctx, `
		INSERT INTO sessions (id, flow_id, current_state, data, updated_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			flow_id = excluded.flow_id,
			current_state = excluded.current_state,
			data = excluded.data,
			updated_at = excluded.updated_at`,
		session.ID, session.FlowID, session.CurrentState, string(data), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save session %s: %w", session.ID, err)
	}
	return nil
}

// Load retrieves a session.
func (s *Store) Load(ctx context.Context, sessionID string) (*domain.Session, error) {
	var data string
	err := s.queryRow(ctx, `SELECT data FROM sessions WHERE id = ?`, sessionID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", sessionID, err)
	}

	var session domain.Session
	if err := json.Unmarshal([]byte(data), &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	if session.MiscData == nil {
		session.MiscData = make(map[string]any)
	}
	return &session, nil
}

// Delete removes the live session. Archives are kept.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	if _, err := s.exec(ctx, `DELETE FROM sessions WHERE id = ?`, sessionID); err != nil {
		return fmt.Errorf("failed to delete session %s: %w", sessionID, err)
	}
	return nil
}

// List returns all live session ids in order.
func (s *Store) List(ctx context.Context) ([]string, error) {
	rows, err := s.query(ctx, `SELECT id FROM sessions ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate session rows: %w", err)
	}
	return ids, nil
}

// Archive inserts an immutable snapshot of the session.
func (s *Store) Archive(ctx context.Context, session *domain.Session, reason string) (domain.ArchiveRecord, error) {
	rec := domain.NewArchiveRecord(uuid.NewString(), session, reason)
	data, err := json.Marshal(rec)
	if err != nil {
		return domain.ArchiveRecord{}, fmt.Errorf("failed to marshal archive record: %w", err)
	}

	_, err = s.exec(ctx,
		`INSERT INTO session_archives (id, session_id, flow_id, state, reason, data, archived_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.SessionID, rec.FlowID, rec.State, rec.Reason, string(data), rec.ArchivedAt.UTC(),
	)
	if err != nil {
		return domain.ArchiveRecord{}, fmt.Errorf("failed to archive session %s: %w", session.ID, err)
	}
	return rec, nil
}

// History returns the archives of a session, oldest first.
func (s *Store) History(ctx context.Context, sessionID string) ([]domain.ArchiveRecord, error) {
	rows, err := s.query(ctx, `SELECT data FROM session_archives WHERE session_id = ? ORDER BY seq`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	records := []domain.ArchiveRecord{}
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan archive row: %w", err)
		}
		var rec domain.ArchiveRecord
		if err := json.Unmarshal([]byte(data), &rec); err != nil {
			return nil, fmt.Errorf("failed to unmarshal archive record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate archive rows: %w", err)
	}
	return records, nil
}
