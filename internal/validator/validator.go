// Package validator checks a set of flow definitions before they are served.
package validator

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/aretw0/parley/pkg/dispatch"
	"github.com/aretw0/parley/pkg/domain"
)

var (
	// ErrDuplicateState is reported when two states of a flow share a name.
	ErrDuplicateState = errors.New("duplicate state")
	// ErrDuplicateFlow is reported when two flows share an id or name.
	ErrDuplicateFlow = errors.New("duplicate flow")
	// ErrInvalidAction is reported for malformed actions.
	ErrInvalidAction = errors.New("invalid action")
	// ErrJumpCycle is reported when states chain back to themselves without prompting.
	ErrJumpCycle = errors.New("cycle without prompt")
)

// ActionSet tells the validator which Invoke names have a handler.
type ActionSet interface {
	Has(name string) bool
}

// Issue is a single finding, always wrapped in a ConfigurationError.
type Issue struct {
	Err *domain.ConfigurationError
}

func (i Issue) String() string {
	return i.Err.Error()
}

// Report collects the findings of a validation run.
type Report struct {
	Errors   []Issue
	Warnings []Issue
}

// OK reports whether no errors were found. Warnings do not count.
func (r *Report) OK() bool {
	return len(r.Errors) == 0
}

// Err joins all errors, or returns nil.
func (r *Report) Err() error {
	if r.OK() {
		return nil
	}
	errs := make([]error, len(r.Errors))
	for i, issue := range r.Errors {
		errs[i] = issue.Err
	}
	return errors.Join(errs...)
}

func (r *Report) errorf(flow, state string, err error, format string, args ...any) {
	r.Errors = append(r.Errors, Issue{Err: &domain.ConfigurationError{
		Op: "validate", Flow: flow, State: state,
		Err: fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err),
	}})
}

func (r *Report) warnf(flow, state string, format string, args ...any) {
	r.Warnings = append(r.Warnings, Issue{Err: &domain.ConfigurationError{
		Op: "validate", Flow: flow, State: state,
		Err: fmt.Errorf(format, args...),
	}})
}

// node is a (flow, state) pair in the silent-chain graph.
type node struct {
	flow, state string
}

func (n node) String() string {
	return n.flow + "/" + n.state
}

type checker struct {
	flows   map[string]*domain.FlowDefinition
	actions ActionSet
	report  *Report
	edges   map[node][]node
}

// ValidateFlows checks a flow set as a whole. A nil ActionSet skips handler checks.
func ValidateFlows(flows []*domain.FlowDefinition, actions ActionSet) *Report {
	c := &checker{
		flows:   make(map[string]*domain.FlowDefinition),
		actions: actions,
		report:  &Report{},
		edges:   make(map[node][]node),
	}

	for _, f := range flows {
		if _, dup := c.flows[f.ID]; dup {
			c.report.errorf(f.ID, "", ErrDuplicateFlow, "id %q", f.ID)
			continue
		}
		c.flows[f.ID] = f
	}
	for _, f := range flows {
		if f.Name == "" || f.Name == f.ID {
			continue
		}
		if other, dup := c.flows[f.Name]; dup && other != f {
			c.report.errorf(f.ID, "", ErrDuplicateFlow, "name %q collides with flow %q", f.Name, other.ID)
		}
	}

	for _, id := range sortedKeys(c.flows) {
		c.checkFlow(c.flows[id])
	}
	c.checkCycles()

	return c.report
}

func (c *checker) lookup(ref string) *domain.FlowDefinition {
	if f, ok := c.flows[ref]; ok {
		return f
	}
	for _, f := range c.flows {
		if f.Name == ref {
			return f
		}
	}
	return nil
}

func (c *checker) checkFlow(f *domain.FlowDefinition) {
	seen := make(map[string]bool, len(f.States))
	for _, st := range f.States {
		if st.Name == "" {
			c.report.errorf(f.ID, "", ErrInvalidAction, "state without name")
			continue
		}
		if seen[st.Name] {
			c.report.errorf(f.ID, st.Name, ErrDuplicateState, "state %q", st.Name)
		}
		seen[st.Name] = true
	}

	if f.InitState != "" && !seen[f.InitState] {
		c.report.errorf(f.ID, f.InitState, domain.ErrStateNotFound, "init state")
	}

	for _, st := range f.States {
		c.checkActions(f, st, st.PreActions)
		c.checkActions(f, st, st.PostActions)

		for _, tr := range st.Transitions {
			switch {
			case tr.Target == domain.TargetFinish:
			case tr.Target == domain.TargetDefault:
				c.report.warnf(f.ID, st.Name, "transition to %s halts without a state change", domain.TargetDefault)
			case !seen[tr.Target]:
				c.report.errorf(f.ID, st.Name, domain.ErrStateNotFound, "transition target %q", tr.Target)
			}
			if len(tr.Events) == 0 {
				c.report.warnf(f.ID, st.Name, "transition to %q has no events", tr.Target)
			}
		}

		c.collectEdges(f, st)
	}

	c.checkReachability(f)
}

func (c *checker) checkActions(f *domain.FlowDefinition, st domain.State, actions []domain.Action) {
	for i, a := range actions {
		switch a.Kind {
		case domain.ActionSendText:
			if a.Text == "" {
				c.report.errorf(f.ID, st.Name, ErrInvalidAction, "action %d: send_text without text", i)
			}
		case domain.ActionSendMenu:
			if len(a.Items) == 0 {
				c.report.errorf(f.ID, st.Name, ErrInvalidAction, "action %d: send_menu without items", i)
			}
			if a.Expect != "" && a.Expect != domain.ReplyButton && a.Expect != domain.ReplyCommunity {
				c.report.errorf(f.ID, st.Name, ErrInvalidAction, "action %d: menu cannot expect %q", i, a.Expect)
			}
		case domain.ActionInvoke:
			c.checkInvoke(f, st, i, a)
		default:
			c.report.errorf(f.ID, st.Name, ErrInvalidAction, "action %d: unknown kind %q", i, a.Kind)
		}
	}
}

func (c *checker) checkInvoke(f *domain.FlowDefinition, st domain.State, i int, a domain.Action) {
	if a.Function == "" {
		c.report.errorf(f.ID, st.Name, ErrInvalidAction, "action %d: invoke without function", i)
		return
	}
	if c.actions != nil && !c.actions.Has(a.Function) {
		c.report.errorf(f.ID, st.Name, domain.ErrUnknownAction, "action %d: %q", i, a.Function)
	}
	if a.Function != dispatch.ActionJumpToFlow {
		return
	}

	args, err := dispatch.DecodeJump(a.Data)
	if err != nil {
		c.report.errorf(f.ID, st.Name, ErrInvalidAction, "action %d: %v", i, err)
		return
	}
	target := c.lookup(args.Flow)
	if target == nil {
		c.report.errorf(f.ID, st.Name, domain.ErrFlowNotFound, "jump target %q", args.Flow)
		return
	}
	if args.State != "" && !target.HasState(args.State) {
		c.report.errorf(f.ID, st.Name, domain.ErrStateNotFound, "jump target %s/%s", target.ID, args.State)
	}
}

// jumpTarget returns the node a static jump lands on, if it resolves.
func (c *checker) jumpTarget(a domain.Action) (node, bool) {
	args, err := dispatch.DecodeJump(a.Data)
	if err != nil {
		return node{}, false
	}
	target := c.lookup(args.Flow)
	if target == nil {
		return node{}, false
	}
	state := args.State
	if state == "" {
		entry, err := target.EntryState()
		if err != nil {
			return node{}, false
		}
		state = entry
	}
	if !target.HasState(state) {
		return node{}, false
	}
	return node{target.ID, state}, true
}

// collectEdges records where a state leads when entering it never prompts.
// Only unconditional moves are followed: static jumps, and the success route of
// states that have no actions at all.
func (c *checker) collectEdges(f *domain.FlowDefinition, st domain.State) {
	from := node{f.ID, st.Name}

	for _, a := range st.PreActions {
		if a.IsPrompt() || (a.Kind == domain.ActionInvoke && dispatch.AwaitsReply(a.Function)) {
			return
		}
		if isJump(a) {
			if to, ok := c.jumpTarget(a); ok {
				c.edges[from] = append(c.edges[from], to)
			}
			return
		}
	}
	// Post-actions never suspend, so only a jump among them is unconditional.
	for _, a := range st.PostActions {
		if isJump(a) {
			if to, ok := c.jumpTarget(a); ok {
				c.edges[from] = append(c.edges[from], to)
			}
			return
		}
	}

	if len(st.PreActions) > 0 || len(st.PostActions) > 0 {
		return
	}
	tr, ok := st.Resolve(domain.EventSuccess)
	if !ok || tr.Target == domain.TargetFinish || tr.Target == domain.TargetDefault {
		return
	}
	if f.HasState(tr.Target) {
		c.edges[from] = append(c.edges[from], node{f.ID, tr.Target})
	}
}

func (c *checker) checkCycles() {
	const (
		white = iota
		grey
		black
	)
	color := make(map[node]int)
	var stack []node
	reported := make(map[string]bool)

	var visit func(n node)
	visit = func(n node) {
		color[n] = grey
		stack = append(stack, n)
		for _, next := range c.edges[n] {
			switch color[next] {
			case white:
				visit(next)
			case grey:
				cycle := cyclePath(stack, next)
				key := cycleKey(cycle)
				if !reported[key] {
					reported[key] = true
					c.report.errorf(next.flow, next.state, ErrJumpCycle, "%s", joinNodes(cycle))
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[n] = black
	}

	nodes := make([]node, 0, len(c.edges))
	for n := range c.edges {
		nodes = append(nodes, n)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].String() < nodes[j].String() })
	for _, n := range nodes {
		if color[n] == white {
			visit(n)
		}
	}
}

// checkReachability warns about states no transition or jump can reach.
func (c *checker) checkReachability(f *domain.FlowDefinition) {
	entry, err := f.EntryState()
	if err != nil {
		return
	}
	reached := map[string]bool{entry: true}
	queue := []string{entry}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		st, err := f.FindState(cur)
		if err != nil {
			continue
		}
		for _, tr := range st.Transitions {
			if f.HasState(tr.Target) && !reached[tr.Target] {
				reached[tr.Target] = true
				queue = append(queue, tr.Target)
			}
		}
	}

	for _, other := range c.flows {
		for _, st := range other.States {
			for _, a := range slices.Concat(st.PreActions, st.PostActions) {
				if !isJump(a) {
					continue
				}
				if to, ok := c.jumpTarget(a); ok && to.flow == f.ID {
					reached[to.state] = true
				}
			}
		}
	}

	for _, st := range f.States {
		if st.Name != "" && !reached[st.Name] {
			c.report.warnf(f.ID, st.Name, "state is unreachable from %q", entry)
		}
	}
}

func isJump(a domain.Action) bool {
	return a.Kind == domain.ActionInvoke && a.Function == dispatch.ActionJumpToFlow
}

func cyclePath(stack []node, start node) []node {
	for i, n := range stack {
		if n == start {
			path := append([]node{}, stack[i:]...)
			return append(path, start)
		}
	}
	return []node{start}
}

// cycleKey identifies a cycle independent of the node it was entered from.
func cycleKey(cycle []node) string {
	names := make([]string, 0, len(cycle))
	for _, n := range cycle[:len(cycle)-1] {
		names = append(names, n.String())
	}
	sort.Strings(names)
	return strings.Join(names, ",")
}

func joinNodes(nodes []node) string {
	parts := make([]string, len(nodes))
	for i, n := range nodes {
		parts[i] = n.String()
	}
	return strings.Join(parts, " -> ")
}

func sortedKeys(m map[string]*domain.FlowDefinition) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
