package consumer

import (
	"context"
	"encoding/json"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/shimonpozd/astra-sub000/internal/database/kafka"
	"github.com/shimonpozd/astra-sub000/internal/memory/store"
	"github.com/shimonpozd/astra-sub000/internal/models"
	"github.com/shimonpozd/astra-sub000/pkg/logger"
)

const applyTimeout = 10 * time.Second

// DialogConsumer reads dialog events from Kafka and applies them to the
// graph store. Offsets are committed only after a successful apply, so a
// crash replays the event; graph writes are MERGE-based and replay is
// harmless.
type DialogConsumer struct {
	client *kafka.Client
	graph  store.GraphStore
	log    *logger.Logger
}

// NewDialogConsumer creates a DialogConsumer.
func NewDialogConsumer(client *kafka.Client, graph store.GraphStore, log *logger.Logger) *DialogConsumer {
	return &DialogConsumer{client: client, graph: graph, log: log}
}

// Run consumes until the context is cancelled.
func (c *DialogConsumer) Run(ctx context.Context) {
	c.log.Info("dialog consumer started")

	for {
		msg, err := c.client.Reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.log.Info("dialog consumer stopped")
				return
			}
			c.log.WithError(models.ErrorInfo{Message: err.Error(), Type: "consumer"}).
				Error("fetch dialog event failed")
			time.Sleep(time.Second)
			continue
		}

		var ev models.DialogEvent
		if err := json.Unmarshal(msg.Value, &ev); err != nil {
			// malformed event; commit so it does not wedge the partition
			c.log.WithError(models.ErrorInfo{Message: err.Error(), Type: "consumer"}).
				Error("malformed dialog event, skipping")
			c.commit(ctx, msg)
			continue
		}

		applyCtx, cancel := context.WithTimeout(ctx, applyTimeout)
		err = c.graph.ApplyDialogEvent(applyCtx, &ev)
		cancel()
		if err != nil {
			// leave uncommitted; redelivery retries the apply
			c.log.WithError(models.ErrorInfo{Message: err.Error(), Type: "consumer"}).
				WithPayload(map[string]interface{}{"session_id": ev.SessionID}).
				Error("apply dialog event failed, will retry on redelivery")
			time.Sleep(time.Second)
			continue
		}

		c.commit(ctx, msg)
	}
}

func (c *DialogConsumer) commit(ctx context.Context, msg kafkago.Message) {
	if err := c.client.Reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
		c.log.WithError(models.ErrorInfo{Message: err.Error(), Type: "consumer"}).
			Warn("commit dialog event offset failed")
	}
}
