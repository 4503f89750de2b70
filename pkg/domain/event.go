package domain

import "time"

// EventKind classifies an inbound message.
type EventKind string

const (
	KindText         EventKind = "text"
	KindButton       EventKind = "button"
	KindInteractive  EventKind = "interactive"
	KindImage        EventKind = "image"
	KindAudio        EventKind = "audio"
	KindVoice        EventKind = "voice"
	KindLocation     EventKind = "location"
	KindNotification EventKind = "notification"
	KindStart        EventKind = "start"
)

// InboundEvent is the normalized representation of one user message.
type InboundEvent struct {
	Kind    EventKind `json:"kind"`
	Payload string    `json:"payload,omitempty"`

	// ContextID correlates a reply with the prompt it answers.
	ContextID string `json:"context_id,omitempty"`

	// EventName overrides the name derived from Kind and Payload.
	EventName string `json:"event_name,omitempty"`

	// MessageID is the transport's delivery id, used for dedup.
	MessageID string `json:"message_id,omitempty"`

	// FlowID and State are optional entry hints for start events.
	FlowID string `json:"flow_id,omitempty"`
	State  string `json:"state,omitempty"`

	// Data carries structured extras such as coordinates or media ids.
	Data map[string]any `json:"data,omitempty"`

	ReceivedAt time.Time `json:"received_at,omitempty"`
}

// Name derives the event name used for transition resolution.
// Button-like replies resolve to their value; everything else to EventSuccess.
func (e InboundEvent) Name() string {
	if e.EventName != "" {
		return e.EventName
	}
	switch e.Kind {
	case KindButton, KindInteractive:
		if e.Payload != "" {
			return e.Payload
		}
	case KindStart:
		return string(KindStart)
	}
	return EventSuccess
}

// SuccessEvent is the synthetic event a silent state processes its post-actions with.
func SuccessEvent() InboundEvent {
	return InboundEvent{Kind: KindNotification, EventName: EventSuccess}
}
