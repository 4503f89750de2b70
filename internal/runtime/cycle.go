package runtime

import (
	"context"
	"fmt"
	"time"

	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/reply"
)

// phase is the engine's own state while running a cycle.
type phase int

const (
	phaseIdle phase = iota
	phaseEntering
	phaseAwaiting
	phaseProcessing
	phaseResolving
)

func (p phase) String() string {
	switch p {
	case phaseIdle:
		return "idle"
	case phaseEntering:
		return "entering_state"
	case phaseAwaiting:
		return "awaiting_reply"
	case phaseProcessing:
		return "processing_reply"
	case phaseResolving:
		return "resolving_transition"
	default:
		return "unknown"
	}
}

// cycle holds the working copy of a session for one inbound event.
type cycle struct {
	engine *Engine
	sess   *domain.Session
	flow   *domain.FlowDefinition

	// event is what pre- and post-actions see: the inbound event, or the
	// synthetic success event once a silent state falls through.
	event     domain.InboundEvent
	candidate string
	steps     int

	// shown is the expectation of the last post-action prompt this cycle;
	// transitions keep it until a later state prompts on its own.
	shownType    string
	shownContext string

	status   Status
	reason   string
	archived *domain.Session
}

func (c *cycle) run(ctx context.Context, original *domain.Session) *Outcome {
	next, err := c.begin(ctx)
	for err == nil && next != phaseIdle && next != phaseAwaiting {
		if ctx.Err() != nil {
			err = ctx.Err()
			break
		}
		switch next {
		case phaseEntering:
			next, err = c.enter(ctx)
		case phaseProcessing:
			next, err = c.process(ctx)
		case phaseResolving:
			next, err = c.resolve(ctx)
		default:
			err = fmt.Errorf("unexpected engine phase %s", next)
		}
	}

	if err != nil {
		c.engine.logger.Error("Cycle dropped",
			"session", original.ID,
			"flow", c.sess.FlowID,
			"state", c.sess.CurrentState,
			"event", c.event.Name(),
			"err", err,
		)
		return &Outcome{Status: StatusDropped, Session: original, Err: err, Steps: c.steps}
	}

	if c.status == StatusRejected {
		return &Outcome{Status: StatusRejected, Session: original, Reason: c.reason}
	}

	c.sess.UpdatedAt = time.Now()
	out := &Outcome{Status: c.status, Session: c.sess, Archived: c.archived, Reason: c.reason, Steps: c.steps}
	if next == phaseAwaiting {
		out.Status = StatusSuspended
	}
	return out
}

// begin implements steps 1 and 2: start events skip validation, everything else is validated.
func (c *cycle) begin(ctx context.Context) (phase, error) {
	if c.event.Kind == domain.KindStart {
		return c.start(c.event.FlowID, c.event.State)
	}

	if !c.sess.Active() {
		if c.engine.entryFlow == "" {
			return phaseIdle, &domain.ConfigurationError{Op: "resume session", Err: domain.ErrNoEntryFlow}
		}
		c.engine.logger.Info("Idle session, starting entry flow",
			"session", c.sess.ID,
			"flow", c.engine.entryFlow,
		)
		return c.start("", "")
	}

	verdict := reply.Validate(c.event, c.sess.ExpectedReplyType, c.sess.LastContextID)
	if !verdict.Valid {
		c.engine.logger.Info("Reply rejected",
			"session", c.sess.ID,
			"state", c.sess.CurrentState,
			"expected", c.sess.ExpectedReplyType,
			"kind", c.event.Kind,
			"reason", verdict.Reason,
		)
		if err := c.engine.dispatcher.Reprompt(ctx, c.sess, verdict.Reason); err != nil {
			c.engine.logger.Warn("Re-prompt failed", "session", c.sess.ID, "err", err)
		}
		c.status = StatusRejected
		c.reason = verdict.Reason
		return phaseIdle, nil
	}

	flow, err := c.engine.lookupFlow(c.sess.FlowID)
	if err != nil {
		return phaseIdle, err
	}
	c.flow = flow
	if !flow.HasState(c.sess.CurrentState) {
		return phaseIdle, &domain.ConfigurationError{Op: "resume session", Flow: flow.ID, State: c.sess.CurrentState, Err: domain.ErrStateNotFound}
	}
	return phaseProcessing, nil
}

func (c *cycle) start(flowRef, state string) (phase, error) {
	if flowRef == "" {
		flowRef = c.engine.entryFlow
	}
	if flowRef == "" {
		return phaseIdle, &domain.ConfigurationError{Op: "start session", Err: domain.ErrNoEntryFlow}
	}

	flow, err := c.engine.lookupFlow(flowRef)
	if err != nil {
		return phaseIdle, err
	}
	if err := c.commit(flow, state); err != nil {
		return phaseIdle, err
	}

	c.sess.Append(domain.LogEntry{
		FlowID:  flow.ID,
		State:   c.sess.CurrentState,
		Event:   string(domain.KindStart),
		Kind:    c.event.Kind,
		Payload: c.event.Payload,
	})
	return phaseEntering, nil
}

// commit moves the session to a flow and state. An empty state means the flow's entry state.
// The new state inherits the expectation of a post-action prompt sent earlier in the cycle.
func (c *cycle) commit(flow *domain.FlowDefinition, state string) error {
	if state == "" {
		entry, err := flow.EntryState()
		if err != nil {
			return err
		}
		state = entry
	}
	if !flow.HasState(state) {
		return &domain.ConfigurationError{Op: "enter state", Flow: flow.ID, State: state, Err: domain.ErrStateNotFound}
	}

	c.flow = flow
	c.sess.FlowID = flow.ID
	c.sess.CurrentState = state
	c.sess.ExpectedReplyType = c.shownType
	c.sess.LastContextID = c.shownContext
	return nil
}

// enter implements step 3: run pre-actions until a prompt, a jump or a concluding result.
func (c *cycle) enter(ctx context.Context) (phase, error) {
	c.steps++
	if c.steps > c.engine.maxSteps {
		return phaseIdle, &domain.ConfigurationError{
			Op:    "enter state",
			Flow:  c.sess.FlowID,
			State: c.sess.CurrentState,
			Err:   fmt.Errorf("%w: more than %d states or jumps in one cycle", domain.ErrStepLimit, c.engine.maxSteps),
		}
	}

	state, err := c.flow.FindState(c.sess.CurrentState)
	if err != nil {
		return phaseIdle, err
	}
	c.engine.emitStateEnter(ctx, c.sess, state.Name)

	last := len(state.PreActions) - 1
	for i, act := range state.PreActions {
		switch act.Kind {
		case domain.ActionSendText, domain.ActionSendMenu:
			c.prompt(ctx, act)
			return phaseAwaiting, nil

		case domain.ActionInvoke:
			inv := c.invocation(act, domain.PhasePre)
			res := c.invoke(ctx, inv)
			if res.Kind == domain.ResultFlowJump {
				return c.jump(res)
			}
			if replyType, contextID, ok := inv.Awaiting(); ok {
				c.sess.ExpectedReplyType = replyType
				c.sess.LastContextID = contextID
				return phaseAwaiting, nil
			}

			cand, ok := res.Candidate()
			if !ok {
				continue
			}
			if res.Kind == domain.ResultDeferred {
				c.absorb(res)
			} else if !state.Matches(cand) {
				continue
			}
			if i != last {
				c.engine.logger.Debug("Ignoring intermediate pre-action result",
					"session", c.sess.ID,
					"state", state.Name,
					"action", act.Function,
					"event", cand,
				)
				continue
			}
			c.candidate = cand
			return phaseResolving, nil

		default:
			return phaseIdle, unknownKind(c.sess, act)
		}
	}

	// Silent state: no prompt and no concluding result.
	c.event = domain.SuccessEvent()
	return phaseProcessing, nil
}

// process implements step 4: run post-actions and reduce their results to one candidate event.
func (c *cycle) process(ctx context.Context) (phase, error) {
	state, err := c.flow.FindState(c.sess.CurrentState)
	if err != nil {
		return phaseIdle, err
	}

	var results []domain.ActionResult
	for _, act := range state.PostActions {
		switch act.Kind {
		case domain.ActionSendText, domain.ActionSendMenu:
			c.prompt(ctx, act)
			c.shownType = c.sess.ExpectedReplyType
			c.shownContext = c.sess.LastContextID

		case domain.ActionInvoke:
			res := c.invoke(ctx, c.invocation(act, domain.PhasePost))
			if res.Kind == domain.ResultFlowJump {
				return c.jump(res)
			}
			if res.Kind == domain.ResultDeferred {
				c.absorb(res)
			}
			results = append(results, res)

		default:
			return phaseIdle, unknownKind(c.sess, act)
		}
	}

	cand, ok := ReduceResults(results, state.Matches)
	if !ok {
		cand = c.event.Name()
	}
	c.candidate = cand
	return phaseResolving, nil
}

// resolve implements step 5.
func (c *cycle) resolve(ctx context.Context) (phase, error) {
	state, err := c.flow.FindState(c.sess.CurrentState)
	if err != nil {
		return phaseIdle, err
	}

	c.sess.Append(domain.LogEntry{
		FlowID:  c.flow.ID,
		State:   state.Name,
		Event:   c.candidate,
		Kind:    c.event.Kind,
		Payload: c.event.Payload,
	})

	t, ok := state.Resolve(c.candidate)
	if !ok {
		c.engine.logger.Warn("No transition matches event",
			"session", c.sess.ID,
			"flow", c.flow.ID,
			"state", state.Name,
			"event", c.candidate,
		)
		c.status = StatusHalted
		c.reason = ReasonNoTransition
		return phaseIdle, nil
	}

	switch t.Target {
	case domain.TargetFinish:
		c.archived = c.sess.Clone()
		c.sess.Reset()
		c.status = StatusFinished
		return phaseIdle, nil

	case domain.TargetDefault:
		c.engine.logger.Info("Reserved target reached, halting",
			"session", c.sess.ID,
			"flow", c.flow.ID,
			"state", state.Name,
			"target", t.Target,
		)
		c.status = StatusHalted
		c.reason = ReasonDefaultTarget
		return phaseIdle, nil
	}

	if err := c.commit(c.flow, t.Target); err != nil {
		return phaseIdle, err
	}
	return phaseEntering, nil
}

func (c *cycle) jump(res domain.ActionResult) (phase, error) {
	flow, err := c.engine.lookupFlow(res.FlowID)
	if err != nil {
		return phaseIdle, err
	}
	c.engine.logger.Debug("Flow jump",
		"session", c.sess.ID,
		"from", c.sess.FlowID+"/"+c.sess.CurrentState,
		"flow", flow.ID,
		"state", res.State,
	)
	if err := c.commit(flow, res.State); err != nil {
		return phaseIdle, err
	}
	return phaseEntering, nil
}

func (c *cycle) prompt(ctx context.Context, act domain.Action) {
	c.sess.ExpectedReplyType = act.ExpectedReply()
	c.sess.LastContextID = ""

	id, err := c.engine.dispatcher.Prompt(ctx, c.sess, act)
	if err != nil {
		c.engine.logger.Warn("Prompt not delivered",
			"session", c.sess.ID,
			"state", c.sess.CurrentState,
			"err", err,
		)
		return
	}
	c.sess.LastContextID = id
}

func (c *cycle) invocation(act domain.Action, p domain.Phase) *domain.Invocation {
	return &domain.Invocation{
		Function: act.Function,
		Phase:    p,
		Session:  c.sess,
		Event:    c.event,
		Data:     act.Data,
	}
}

func (c *cycle) invoke(ctx context.Context, inv *domain.Invocation) domain.ActionResult {
	c.engine.emitActionCall(ctx, inv)
	res := c.engine.dispatcher.Invoke(ctx, inv)
	if res.Kind == domain.ResultFailure {
		c.engine.logger.Warn("Action failed",
			"session", c.sess.ID,
			"state", c.sess.CurrentState,
			"action", inv.Function,
			"reason", res.Reason,
		)
	}
	c.engine.emitActionReturn(ctx, inv, res)
	return res
}

// absorb merges deferred transition data into the session scratch space.
func (c *cycle) absorb(res domain.ActionResult) {
	if res.State != "" && res.State != c.sess.CurrentState {
		c.engine.logger.Debug("Deferred transition computed for another state",
			"session", c.sess.ID,
			"state", c.sess.CurrentState,
			"computed_for", res.State,
		)
	}
	for k, v := range res.Data {
		c.sess.MiscData[k] = v
	}
}

func unknownKind(s *domain.Session, act domain.Action) error {
	return &domain.ConfigurationError{
		Op:    "run action",
		Flow:  s.FlowID,
		State: s.CurrentState,
		Err:   fmt.Errorf("unknown action kind %q", act.Kind),
	}
}
