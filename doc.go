/*
Package parley is a deterministic conversation engine for chatbots on asynchronous
messaging channels such as WhatsApp.

Conversations are described as flows: named states, each with pre-actions (prompts or
function calls run when the state is entered), post-actions (run when the user replies)
and transitions keyed by event names. A session remembers where one user is inside a flow,
which kind of reply it expects and which message that reply must answer.

# Concept

Every inbound event runs one cycle. The reply is validated against the session's
expectation; invalid replies trigger an explanatory re-prompt and leave the session
untouched. Valid replies run the current state's post-actions, whose results are reduced to
a single event that selects the next transition. The engine then keeps entering states
until one of them prompts the user, the flow finishes, or no transition matches.

The Bot serializes cycles per session key, drops redelivered messages, and persists the
session once per cycle, archiving finished conversations.

# Usage

	repo, _ := memory.NewFlowRepository(flows...)
	sender := memory.NewSender()

	reg := dispatch.NewRegistry()
	d := dispatch.New(reg, sender)
	_ = dispatch.RegisterBuiltins(reg, d)

	bot, err := parley.New(repo, d, memory.NewStore(), parley.WithEntryFlow("onboarding"))
	if err != nil {
		log.Fatal(err)
	}

	out, err := bot.Handle(ctx, "whatsapp:+15550001", domain.InboundEvent{
		Kind:    domain.KindText,
		Payload: "hi",
	})

Production deployments swap the memory adapters for the redis or sql session stores and
the Twilio sender; see cmd/parley for a complete server.
*/
package parley
