package domain

// ActionKind tags the Action variant.
type ActionKind string

const (
	ActionSendText ActionKind = "send_text"
	ActionSendMenu ActionKind = "send_menu"
	ActionInvoke   ActionKind = "invoke"
)

// Action is a unit of work a state performs.
// Only the fields of its Kind are meaningful.
type Action struct {
	Kind ActionKind `json:"kind" yaml:"kind"`

	// SendText / SendMenu
	Text string `json:"text,omitempty" yaml:"text,omitempty"`

	// SendMenu
	Items  []MenuItem `json:"items,omitempty" yaml:"items,omitempty"`
	Expect string     `json:"expect,omitempty" yaml:"expect,omitempty"` // "button" (default) or "community"

	// Invoke
	Function string         `json:"function,omitempty" yaml:"function,omitempty"`
	Data     map[string]any `json:"data,omitempty" yaml:"data,omitempty"`
}

// MenuItem is a single choice in a SendMenu prompt.
type MenuItem struct {
	Label       string `json:"label" yaml:"label"`
	Value       string `json:"value" yaml:"value"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// SendText builds a plain text prompt.
func SendText(text string) Action {
	return Action{Kind: ActionSendText, Text: text}
}

// SendMenu builds a button prompt.
func SendMenu(prompt string, items ...MenuItem) Action {
	return Action{Kind: ActionSendMenu, Text: prompt, Items: items}
}

// Invoke builds a call into the action dispatcher.
func Invoke(function string, data map[string]any) Action {
	return Action{Kind: ActionInvoke, Function: function, Data: data}
}

// IsPrompt reports whether the action asks the user for a reply.
func (a Action) IsPrompt() bool {
	return a.Kind == ActionSendText || a.Kind == ActionSendMenu
}

// ExpectedReply returns the reply type a prompt sets on the session.
func (a Action) ExpectedReply() string {
	switch a.Kind {
	case ActionSendText:
		return ReplyText
	case ActionSendMenu:
		if a.Expect == ReplyCommunity {
			return ReplyCommunity
		}
		return ReplyButton
	default:
		return ""
	}
}
