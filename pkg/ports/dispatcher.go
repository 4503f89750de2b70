package ports

import (
	"context"

	"github.com/aretw0/parley/pkg/domain"
)

// Dispatcher is the boundary the engine performs every side effect through.
type Dispatcher interface {
	// Invoke runs a named action. Unknown names yield a failure result.
	Invoke(ctx context.Context, inv *domain.Invocation) domain.ActionResult

	// Prompt delivers a SendText or SendMenu action and returns its context id.
	// An error means delivery failed after the dispatcher's own retries.
	Prompt(ctx context.Context, session *domain.Session, action domain.Action) (string, error)

	// Reprompt tells the user why their reply was rejected.
	Reprompt(ctx context.Context, session *domain.Session, reason string) error
}
