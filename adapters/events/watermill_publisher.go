package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/layer-3/zeoauth/ports"
)

const LoginTopic = "zeoauth.login"

// LoginEvent represents a successful wallet sign-in
type LoginEvent struct {
	Address string    `json:"address"`
	TokenID string    `json:"token_id"`
	At      time.Time `json:"at"`
}

// WatermillPublisher implements the EventPublisher interface using Watermill
type WatermillPublisher struct {
	publisher message.Publisher
	topic     string
}

var _ ports.EventPublisher = (*WatermillPublisher)(nil)

// NewWatermillPublisher creates a new Watermill publisher
func NewWatermillPublisher(publisher message.Publisher) *WatermillPublisher {
	return &WatermillPublisher{
		publisher: publisher,
		topic:     LoginTopic,
	}
}

// PublishLogin publishes a login event
func (p *WatermillPublisher) PublishLogin(ctx context.Context, address string, tokenID string, at time.Time) error {
	event := LoginEvent{
		Address: address,
		TokenID: tokenID,
		At:      at.UTC(),
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)

	// Publish takes no context, so stop waiting once ctx is done
	published := make(chan error, 1)
	go func() {
		published <- p.publisher.Publish(p.topic, msg)
	}()

	select {
	case err := <-published:
		if err != nil {
			return fmt.Errorf("failed to publish event: %w", err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("failed to publish event: %w", ctx.Err())
	}
}
