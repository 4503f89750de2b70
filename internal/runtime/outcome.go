package runtime

import "github.com/aretw0/parley/pkg/domain"

// Status summarizes how a cycle ended.
type Status string

const (
	// StatusSuspended means a prompt was issued and the session awaits a reply.
	StatusSuspended Status = "suspended"
	// StatusRejected means the reply failed validation and the user was re-prompted.
	StatusRejected Status = "rejected"
	// StatusFinished means the flow reached finish and the session was archived.
	StatusFinished Status = "finished"
	// StatusHalted means the cycle stopped without a prompt (no matching transition, or defaultSMJ).
	StatusHalted Status = "halted"
	// StatusDropped means a configuration error aborted the cycle.
	StatusDropped Status = "dropped"
	// StatusDuplicate means the event was a redelivery and never reached the engine.
	StatusDuplicate Status = "duplicate"
)

// Halt reasons.
const (
	ReasonNoTransition  = "no_transition"
	ReasonDefaultTarget = "default_target"
)

// Outcome is the result of one cycle.
type Outcome struct {
	Status Status
	// Session is what the caller must persist. For rejected and dropped cycles it is the
	// input session, unchanged.
	Session *domain.Session
	// Archived is the pre-reset snapshot of a finished session.
	Archived *domain.Session
	// Reason explains rejected and halted cycles.
	Reason string
	// Err is the configuration error of a dropped cycle.
	Err   error
	Steps int
}

// Changed reports whether the cycle produced a session worth saving.
func (o *Outcome) Changed() bool {
	switch o.Status {
	case StatusSuspended, StatusFinished, StatusHalted:
		return true
	default:
		return false
	}
}
