package memory

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/aretw0/parley/pkg/domain"
	"github.com/google/uuid"
)

// ErrSendFailed is returned by Sender while failures are injected.
var ErrSendFailed = errors.New("memory sender: injected failure")

// Message is one delivered prompt.
type Message struct {
	SessionKey string
	Text       string
	Items      []domain.MenuItem
	ContextID  string
}

// Sender implements ports.Sender by recording messages. Context ids are random UUIDs.
type Sender struct {
	mu       sync.Mutex
	messages []Message
	failures int
}

// NewSender creates an empty recording sender.
func NewSender() *Sender {
	return &Sender{}
}

// FailNext makes the next n sends fail.
func (s *Sender) FailNext(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = n
}

func (s *Sender) SendText(ctx context.Context, sessionKey, text string) (string, error) {
	return s.record(Message{SessionKey: sessionKey, Text: text})
}

func (s *Sender) SendMenu(ctx context.Context, sessionKey, prompt string, items []domain.MenuItem) (string, error) {
	return s.record(Message{SessionKey: sessionKey, Text: prompt, Items: slices.Clone(items)})
}

func (s *Sender) record(m Message) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failures > 0 {
		s.failures--
		return "", ErrSendFailed
	}
	m.ContextID = uuid.NewString()
	s.messages = append(s.messages, m)
	return m.ContextID, nil
}

// Messages returns every delivered message, oldest first.
func (s *Sender) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.messages)
}

// For returns the messages delivered to one session.
func (s *Sender) For(sessionKey string) []Message {
	var out []Message
	for _, m := range s.Messages() {
		if m.SessionKey == sessionKey {
			out = append(out, m)
		}
	}
	return out
}

// Last returns the most recent message for a session.
func (s *Sender) Last(sessionKey string) (Message, bool) {
	msgs := s.For(sessionKey)
	if len(msgs) == 0 {
		return Message{}, false
	}
	return msgs[len(msgs)-1], true
}

// Reset forgets recorded messages.
func (s *Sender) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = nil
}
