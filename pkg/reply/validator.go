// Package reply checks an inbound event against the reply a session is waiting for.
package reply

import (
	"slices"

	"github.com/aretw0/parley/pkg/domain"
)

// Rejection reasons.
const (
	ReasonWrongType              = "wrong_type"
	ReasonWrongMenu              = "wrong_menu"
	ReasonNoContext              = "no_context"
	ReasonUnsupportedExpectation = "unsupported_expectation"
)

var allowedKinds = map[string][]domain.EventKind{
	domain.ReplyText:      {domain.KindText},
	domain.ReplyButton:    {domain.KindButton, domain.KindInteractive},
	domain.ReplyCommunity: {domain.KindButton, domain.KindInteractive},
	domain.ReplyAudio:     {domain.KindAudio, domain.KindVoice},
	domain.ReplyImage:     {domain.KindImage},
	domain.ReplyLocation:  {domain.KindLocation},
	domain.ReplyAudioText: {domain.KindText, domain.KindVoice, domain.KindAudio},
}

// Verdict is the outcome of Validate. Reason is empty when Valid.
type Verdict struct {
	Valid  bool
	Reason string
}

func valid() Verdict { return Verdict{Valid: true} }

func invalid(reason string) Verdict { return Verdict{Reason: reason} }

// Validate checks ev against the expected reply type and the context id of the last prompt.
// Start events are never validated; callers skip them.
func Validate(ev domain.InboundEvent, expectedType, lastContextID string) Verdict {
	if ev.Kind == domain.KindNotification {
		return valid()
	}
	if expectedType == "" {
		return valid()
	}

	kinds, ok := allowedKinds[expectedType]
	if !ok {
		return invalid(ReasonUnsupportedExpectation)
	}
	if !slices.Contains(kinds, ev.Kind) {
		return invalid(ReasonWrongType)
	}

	if IsMenu(expectedType) && lastContextID != "" {
		switch {
		case ev.ContextID == "":
			return invalid(ReasonNoContext)
		case ev.ContextID != lastContextID:
			return invalid(ReasonWrongMenu)
		}
	}
	return valid()
}

// IsMenu reports whether the expectation is button shaped and subject to context matching.
func IsMenu(expectedType string) bool {
	return expectedType == domain.ReplyButton || expectedType == domain.ReplyCommunity
}

// Allowed returns the event kinds accepted for an expected reply type.
func Allowed(expectedType string) []domain.EventKind {
	return slices.Clone(allowedKinds[expectedType])
}
