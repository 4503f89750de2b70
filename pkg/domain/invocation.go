package domain

// Phase tells a handler whether it runs on state entry or while processing a reply.
type Phase string

const (
	PhasePre  Phase = "pre"
	PhasePost Phase = "post"
)

// Invocation is the context an Invoke action runs with.
// Handlers may read and write Session.MiscData; every other session field belongs to the engine.
type Invocation struct {
	Function string
	Phase    Phase
	Session  *Session
	Event    InboundEvent
	Data     map[string]any

	awaiting  bool
	replyType string
	contextID string
}

// AwaitReply tells the engine the handler prompted the user itself.
// The engine records the expectation and suspends the cycle after this action.
func (inv *Invocation) AwaitReply(replyType, contextID string) {
	inv.awaiting = true
	inv.replyType = replyType
	inv.contextID = contextID
}

// Awaiting returns the expectation recorded by AwaitReply.
func (inv *Invocation) Awaiting() (replyType, contextID string, ok bool) {
	return inv.replyType, inv.contextID, inv.awaiting
}
