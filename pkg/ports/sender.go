package ports

import (
	"context"

	"github.com/aretw0/parley/pkg/domain"
)

// Sender is the outbound send capability of a messaging channel.
// On success each call returns an opaque context id identifying the prompt.
type Sender interface {
	SendText(ctx context.Context, sessionKey, text string) (string, error)
	SendMenu(ctx context.Context, sessionKey, prompt string, items []domain.MenuItem) (string, error)
}
