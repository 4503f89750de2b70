package domain

import (
	"maps"
	"slices"
	"time"
)

// LogEntry records one interaction the session went through.
type LogEntry struct {
	FlowID  string    `json:"flow_id,omitempty"`
	State   string    `json:"state"`
	Event   string    `json:"event"`
	Kind    EventKind `json:"kind,omitempty"`
	Payload string    `json:"payload,omitempty"`
	At      time.Time `json:"at"`
}

// Session is the durable record of where one user is.
// It is owned by exactly one worker for the duration of a cycle.
type Session struct {
	ID                string         `json:"id"`
	FlowID            string         `json:"flow_id,omitempty"`
	CurrentState      string         `json:"current_state,omitempty"`
	ExpectedReplyType string         `json:"expected_reply_type,omitempty"`
	LastContextID     string         `json:"last_context_id,omitempty"`
	Log               []LogEntry     `json:"log,omitempty"`
	MiscData          map[string]any `json:"misc_data,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

// NewSession creates an idle session for a user key.
func NewSession(id string) *Session {
	now := time.Now()
	return &Session{
		ID:        id,
		MiscData:  make(map[string]any),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Active reports whether the session is inside a flow.
func (s *Session) Active() bool {
	return s.FlowID != "" && s.CurrentState != ""
}

// Clone returns a copy that can be mutated without affecting s.
// MiscData is copied one level deep.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.Log = slices.Clone(s.Log)
	c.MiscData = maps.Clone(s.MiscData)
	if c.MiscData == nil {
		c.MiscData = make(map[string]any)
	}
	return &c
}

// Append adds an entry to the interaction log.
func (s *Session) Append(entry LogEntry) {
	if entry.At.IsZero() {
		entry.At = time.Now()
	}
	s.Log = append(s.Log, entry)
}

// Reset clears every mutable field, leaving an idle session with the same id.
func (s *Session) Reset() {
	s.FlowID = ""
	s.CurrentState = ""
	s.ExpectedReplyType = ""
	s.LastContextID = ""
	s.Log = nil
	s.MiscData = make(map[string]any)
}

// ArchiveRecord is the immutable history entry written when a session ends.
type ArchiveRecord struct {
	ID         string         `json:"id"`
	SessionID  string         `json:"session_id"`
	FlowID     string         `json:"flow_id"`
	State      string         `json:"state"`
	Reason     string         `json:"reason"`
	Log        []LogEntry     `json:"log"`
	MiscData   map[string]any `json:"misc_data,omitempty"`
	ArchivedAt time.Time      `json:"archived_at"`
}

// NewArchiveRecord snapshots a session before it is reset.
func NewArchiveRecord(id string, s *Session, reason string) ArchiveRecord {
	return ArchiveRecord{
		ID:         id,
		SessionID:  s.ID,
		FlowID:     s.FlowID,
		State:      s.CurrentState,
		Reason:     reason,
		Log:        slices.Clone(s.Log),
		MiscData:   maps.Clone(s.MiscData),
		ArchivedAt: time.Now(),
	}
}

// Archive reasons.
const (
	ReasonFinished  = "finished"
	ReasonAbandoned = "abandoned"
)
