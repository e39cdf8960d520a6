package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/planward/planward/internal/shared/domain"
	"github.com/planward/planward/pkg/observability"
)

// Publisher defines the interface for publishing events to a message broker.
type Publisher interface {
	// Publish sends a message to the event bus.
	Publish(ctx context.Context, routingKey string, payload []byte) error

	// Close closes the publisher connection.
	Close() error
}

// Envelope is the wire format for a published domain event.
type Envelope struct {
	EventID       string          `json:"event_id"`
	RoutingKey    string          `json:"routing_key"`
	AggregateID   string          `json:"aggregate_id"`
	AggregateType string          `json:"aggregate_type"`
	OccurredAt    time.Time       `json:"occurred_at"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// PublishEvents serializes each domain event into an Envelope and publishes
// it under the event's routing key. The correlation ID of the originating
// run is taken from the context. Publishing stops at the first failure so
// callers can decide whether to retry the remainder.
func PublishEvents(ctx context.Context, pub Publisher, events []domain.DomainEvent) error {
	correlationID := observability.CorrelationIDFromContext(ctx)

	for _, event := range events {
		payload, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("marshal event %s: %w", event.RoutingKey(), err)
		}

		envelope := Envelope{
			EventID:       event.EventID().String(),
			RoutingKey:    event.RoutingKey(),
			AggregateID:   event.AggregateID().String(),
			AggregateType: event.AggregateType(),
			OccurredAt:    event.OccurredAt(),
			CorrelationID: correlationID,
			Payload:       payload,
		}

		body, err := json.Marshal(envelope)
		if err != nil {
			return fmt.Errorf("marshal envelope for %s: %w", event.RoutingKey(), err)
		}

		if err := pub.Publish(ctx, event.RoutingKey(), body); err != nil {
			return fmt.Errorf("publish %s: %w", event.RoutingKey(), err)
		}
	}
	return nil
}
