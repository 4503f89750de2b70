package graph

import (
	"fmt"
	"strings"

	"github.com/aretw0/parley/pkg/dispatch"
	"github.com/aretw0/parley/pkg/domain"
)

// Overlay contains session data to visualize on the graph.
type Overlay struct {
	VisitedStates []string
	CurrentState  string
}

// OverlayFor builds an overlay from a session positioned in flow. It returns nil when the
// session is somewhere else.
func OverlayFor(flow *domain.FlowDefinition, s *domain.Session) *Overlay {
	if s == nil || s.FlowID != flow.ID {
		return nil
	}
	o := &Overlay{CurrentState: s.CurrentState}
	for _, e := range s.Log {
		if e.FlowID == "" || e.FlowID == flow.ID {
			o.VisitedStates = append(o.VisitedStates, e.State)
		}
	}
	return o
}

// GenerateMermaid produces a Mermaid flowchart of one flow.
// It applies semantic styling:
// - Init state: ((Circle))
// - Prompting state (pre-action send or await): [/Parallelogram/]
// - Invoke-only state: [[Subroutine]]
// - Default: [Rectangle]
// Flow jumps are drawn as dotted edges to an external node.
func GenerateMermaid(flow *domain.FlowDefinition, overlay *Overlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	init, _ := flow.EntryState()
	terminals := make(map[string]bool)

	for _, st := range flow.States {
		safeID := sanitizeMermaidID(st.Name)

		opener, closer := "[", "]"
		switch {
		case st.Name == init:
			opener, closer = "((", "))"
		case prompts(st):
			opener, closer = "[/", "/]"
		case invokesOnly(st):
			opener, closer = "[[", "]]"
		}
		fmt.Fprintf(&sb, "    %s%s\"%s\"%s\n", safeID, opener, st.Name, closer)

		for _, t := range st.Transitions {
			target := t.Target
			if target == domain.TargetFinish || target == domain.TargetDefault {
				terminals[target] = true
				target = "__" + target
			}

			arrow := "-->"
			if len(t.Events) > 0 {
				label := strings.ReplaceAll(strings.Join(t.Events, ", "), "\"", "'")
				arrow = fmt.Sprintf("-- \"%s\" -->", label)
			}
			fmt.Fprintf(&sb, "    %s %s %s\n", safeID, arrow, sanitizeMermaidID(target))
		}

		for _, a := range append(append([]domain.Action{}, st.PreActions...), st.PostActions...) {
			if a.Kind != domain.ActionInvoke || a.Function != dispatch.ActionJumpToFlow {
				continue
			}
			jump, err := dispatch.DecodeJump(a.Data)
			if err != nil {
				continue
			}
			ref := jump.Flow
			if jump.State != "" {
				ref += "/" + jump.State
			}
			extID := "ext_" + sanitizeMermaidID(ref)
			fmt.Fprintf(&sb, "    %s>\"%s\"]\n", extID, ref)
			fmt.Fprintf(&sb, "    %s -.-> %s\n", safeID, extID)
		}
	}

	for _, name := range []string{domain.TargetFinish, domain.TargetDefault} {
		if terminals[name] {
			fmt.Fprintf(&sb, "    __%s(((\"%s\")))\n", sanitizeMermaidID(name), name)
		}
	}

	if overlay != nil {
		sb.WriteString("\n    %% Overlay Styles\n")
		// Force black text (color:#000) for high-contrast on light backgrounds, regardless of theme (Light/Dark)
		sb.WriteString("    classDef visited fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")

		visited := make(map[string]bool)
		for _, name := range overlay.VisitedStates {
			safeID := sanitizeMermaidID(name)
			if safeID != "" && !visited[safeID] && flow.HasState(name) {
				visited[safeID] = true
				fmt.Fprintf(&sb, "    class %s visited;\n", safeID)
			}
		}
		if overlay.CurrentState != "" {
			fmt.Fprintf(&sb, "    class %s current;\n", sanitizeMermaidID(overlay.CurrentState))
		}
	}

	return sb.String()
}

func prompts(st domain.State) bool {
	for _, a := range st.PreActions {
		switch {
		case a.Kind == domain.ActionSendText, a.Kind == domain.ActionSendMenu:
			return true
		case a.Kind == domain.ActionInvoke && dispatch.AwaitsReply(a.Function):
			return true
		}
	}
	return false
}

func invokesOnly(st domain.State) bool {
	actions := append(append([]domain.Action{}, st.PreActions...), st.PostActions...)
	if len(actions) == 0 {
		return false
	}
	for _, a := range actions {
		if a.Kind != domain.ActionInvoke {
			return false
		}
	}
	return true
}

func sanitizeMermaidID(id string) string {
	s := strings.ReplaceAll(id, ".", "_")
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	s = strings.ReplaceAll(s, " ", "_")
	return s
}
