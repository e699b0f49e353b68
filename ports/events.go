package ports

import (
	"context"

	"github.com/layer-3/tessera/core"
)

// EventPublisher publishes events to notify other instances
type EventPublisher interface {
	Publish(ctx context.Context, event core.Event) error
}
