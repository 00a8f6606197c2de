package interfaces

import (
	"context"

	"github.com/sheikh-saqib/client-ledger/internal/models/events"
)

type EventPublisher interface {
	Publish(ctx context.Context, event events.OperationApplied) error
	Close() error
}
