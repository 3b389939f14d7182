package message

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub"
)

// Publisher is the subset of *pubsub.Topic the queue driver needs.
type Publisher interface {
	Publish(ctx context.Context, msg *pubsub.Message) *pubsub.PublishResult
}

// Queue publishes each Email as a JSON job for an out-of-process worker.
// Send returns once the broker has acknowledged the publish.
type Queue struct {
	topic Publisher
}

// NewQueue wraps a topic, typically client.Topic(name).
func NewQueue(topic Publisher) *Queue { return &Queue{topic: topic} }

// Send implements Mailer.
func (q *Queue) Send(ctx context.Context, msg Email) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	res := q.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: map[string]string{"kind": "email"},
	})
	if _, err := res.Get(ctx); err != nil {
		return fmt.Errorf("email queue publish: %w", err)
	}
	return nil
}
