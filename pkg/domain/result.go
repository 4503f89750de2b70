package domain

// ResultKind tags the ActionResult variant.
type ResultKind int

const (
	// ResultPlain is an ordinary return value, used only as a candidate event name.
	ResultPlain ResultKind = iota
	// ResultFlowJump switches the session to another flow before anything else is evaluated.
	ResultFlowJump
	// ResultDeferred carries an event the current state's transition table must interpret.
	ResultDeferred
	// ResultFailure means the call could not complete. It never yields a candidate.
	ResultFailure
)

func (k ResultKind) String() string {
	switch k {
	case ResultPlain:
		return "plain"
	case ResultFlowJump:
		return "flow_jump"
	case ResultDeferred:
		return "deferred"
	case ResultFailure:
		return "failure"
	default:
		return "unknown"
	}
}

// ActionResult is what an invoked action hands back to the engine.
type ActionResult struct {
	Kind ResultKind

	// Value is the plain return value (ResultPlain).
	Value string

	// FlowID and State describe the jump target (ResultFlowJump) or the
	// state the deferred event was computed for (ResultDeferred).
	FlowID string
	State  string

	// Event and Data belong to ResultDeferred.
	Event string
	Data  map[string]any

	// Reason explains a ResultFailure.
	Reason string
}

// Plain returns an ordinary result.
func Plain(value string) ActionResult {
	return ActionResult{Kind: ResultPlain, Value: value}
}

// FlowJump instructs the engine to switch flows.
// An empty state means the target flow's entry state.
func FlowJump(flowID, state string) ActionResult {
	return ActionResult{Kind: ResultFlowJump, FlowID: flowID, State: state}
}

// Deferred hands an event to the current state's transition table.
func Deferred(event, state string, data map[string]any) ActionResult {
	return ActionResult{Kind: ResultDeferred, Event: event, State: state, Data: data}
}

// Failure reports a call that could not complete.
func Failure(reason string) ActionResult {
	return ActionResult{Kind: ResultFailure, Reason: reason}
}

// Candidate returns the event name the result proposes, if any.
func (r ActionResult) Candidate() (string, bool) {
	switch r.Kind {
	case ResultPlain:
		return r.Value, r.Value != ""
	case ResultDeferred:
		if r.Event == "" {
			return EventSuccess, true
		}
		return r.Event, true
	default:
		return "", false
	}
}
