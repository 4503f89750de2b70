/*
Package ports defines the driven ports (interfaces) of the parley engine.

These interfaces decouple the conversation engine from persistence, transport and
flow sources, so the same engine runs against memory, Redis or SQL backends and
against any outbound messaging provider.

# Key Interfaces

  - FlowRepository: Resolves FlowDefinitions by id or name.
  - SessionStore: Persists Sessions and their archive history.
  - Sender: Delivers prompts to a user and returns the prompt's context id.
  - Dispatcher: What the engine calls to invoke actions and deliver prompts.
  - Deduplicator: Discards redelivered inbound messages before they reach the engine.
  - DistributedLocker: Fences a session across replicas.
*/
package ports
