package ports

import (
	"context"
	"time"
)

// EventPublisher publishes events to notify other services
type EventPublisher interface {
	PublishLogin(ctx context.Context, address string, tokenID string, at time.Time) error
}
