package ports

import (
	"context"

	"github.com/aretw0/parley/pkg/domain"
)

// FlowRepository resolves flow definitions.
// Returned flows are shared and must be treated as read-only.
type FlowRepository interface {
	// Get returns the flow with the given id or an error wrapping domain.ErrFlowNotFound.
	Get(id string) (*domain.FlowDefinition, error)

	// GetByName returns the flow with the given name or an error wrapping domain.ErrFlowNotFound.
	GetByName(name string) (*domain.FlowDefinition, error)

	// List returns every known flow, sorted by id.
	List() ([]*domain.FlowDefinition, error)
}

// Watchable defines an interface for repositories that can notify about backend changes.
type Watchable interface {
	// Watch returns a channel that is signaled when the underlying flows change.
	Watch(ctx context.Context) (<-chan struct{}, error)
}
