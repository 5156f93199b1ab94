package publisher

import (
	"context"
	"encoding/json"
	"fmt"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/shimonpozd/astra-sub000/internal/database/kafka"
	"github.com/shimonpozd/astra-sub000/internal/models"
)

// DialogPublisher writes dialog-graph update events to Kafka. Keying by
// session id keeps one session's events on one partition, so the graph
// consumer applies them in order.
type DialogPublisher struct {
	client *kafka.Client
}

// NewDialogPublisher creates a DialogPublisher.
func NewDialogPublisher(client *kafka.Client) *DialogPublisher {
	return &DialogPublisher{client: client}
}

// Publish enqueues one dialog event.
func (p *DialogPublisher) Publish(ctx context.Context, ev *models.DialogEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal dialog event: %w", err)
	}
	err = p.client.Writer.WriteMessages(ctx, kafkago.Message{
		Key:   []byte(ev.SessionID),
		Value: payload,
	})
	if err != nil {
		return fmt.Errorf("publish dialog event: %w", err)
	}
	return nil
}
