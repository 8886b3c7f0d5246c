package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// Publisher provides typed methods for publishing events to JetStream.
type Publisher struct {
	js jetstream.JetStream
}

// NewPublisher creates a new Publisher.
func NewPublisher(js jetstream.JetStream) *Publisher {
	return &Publisher{js: js}
}

// PublishInteraction publishes a chat interaction event. Satisfies the chat
// pipeline's publisher interface.
func (p *Publisher) PublishInteraction(ctx context.Context, userID, question, category string, cached bool) error {
	return p.publish(ctx, SubjectInteraction, InteractionEvent{
		UserID:    userID,
		Question:  question,
		Category:  category,
		Cached:    cached,
		Timestamp: time.Now(),
	})
}

// PublishWebhook publishes a processed vendor webhook event.
func (p *Publisher) PublishWebhook(ctx context.Context, vendor, eventType string) error {
	return p.publish(ctx, SubjectWebhook, WebhookEvent{
		Vendor:    vendor,
		EventType: eventType,
		Timestamp: time.Now(),
	})
}

// PublishAudit publishes an audit event for the durable audit consumer.
func (p *Publisher) PublishAudit(ctx context.Context, event AuditEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	return p.publish(ctx, SubjectAudit, event)
}

func (p *Publisher) publish(ctx context.Context, subject string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshaling event for %s: %w", subject, err)
	}
	_, err = p.js.Publish(ctx, subject, payload)
	if err != nil {
		return fmt.Errorf("publishing to %s: %w", subject, err)
	}
	return nil
}
