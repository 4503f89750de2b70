/*
Package domain contains the core domain models of the parley conversation engine.

It defines the flows a bot executes, the per-user session record the engine mutates,
the normalized inbound events that drive it, and the results actions hand back.
This package is kept pure and free of I/O, following Hexagonal Architecture principles.

# Key Entities

  - FlowDefinition: An immutable, named dialogue script made of ordered States.
  - State: One step of a flow with pre-actions, post-actions and a transition table.
  - Action: A prompt (SendText, SendMenu) or a named side effect (Invoke).
  - Session: The durable record of where one user is, plus its interaction log.
  - InboundEvent: A normalized user message or interaction.
  - ActionResult: What an invoked action returned (plain value, jump, deferred transition, failure).
*/
package domain
