package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/shimonpozd/astra-sub000/internal/models"
)

const (
	// queueKey is the Redis list backing the ingestion FIFO.
	queueKey = "ingest:queue"
	// processingKey holds envelopes between dequeue and ack so a crash
	// mid-item loses nothing.
	processingKey = "ingest:processing"
)

// Queue is the Redis-list FIFO between the store API and the ingestion
// worker. Dequeue moves the envelope to a processing list instead of
// removing it; the worker acks after handling, and Recover requeues
// whatever a crashed worker left behind. Combined with idempotent fact
// ids this gives at-least-once delivery.
type Queue struct {
	rdb *redis.Client
}

// NewQueue creates a Queue.
func NewQueue(rdb *redis.Client) *Queue {
	return &Queue{rdb: rdb}
}

// EnqueueBatch pushes a batch of items for one collection. The whole
// batch is pushed in one round trip; partial enqueue cannot happen.
func (q *Queue) EnqueueBatch(ctx context.Context, collection string, items []models.IngestItem) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}

	payloads := make([]interface{}, 0, len(items))
	for _, item := range items {
		itemJSON, err := json.Marshal(item)
		if err != nil {
			return 0, fmt.Errorf("marshal ingest item: %w", err)
		}
		envelope, err := json.Marshal(models.IngestEnvelope{
			ItemJSON:   string(itemJSON),
			Collection: collection,
		})
		if err != nil {
			return 0, fmt.Errorf("marshal ingest envelope: %w", err)
		}
		payloads = append(payloads, envelope)
	}

	if err := q.rdb.LPush(ctx, queueKey, payloads...).Err(); err != nil {
		return 0, fmt.Errorf("enqueue batch: %w", err)
	}
	return len(items), nil
}

// Dequeue blocks until an envelope is available or the timeout expires,
// moving it onto the processing list. The raw payload is returned
// alongside the decoded envelope so the caller can Ack it. A nil
// envelope with nil error means the timeout fired. An undecodable
// payload is acked immediately so it cannot poison the queue.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (*models.IngestEnvelope, string, error) {
	raw, err := q.rdb.BLMove(ctx, queueKey, processingKey, "RIGHT", "LEFT", timeout).Result()
	if err == redis.Nil {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("dequeue: %w", err)
	}

	var envelope models.IngestEnvelope
	if err := json.Unmarshal([]byte(raw), &envelope); err != nil {
		q.Ack(ctx, raw)
		return nil, "", fmt.Errorf("decode envelope: %w", err)
	}
	return &envelope, raw, nil
}

// Ack removes a handled envelope from the processing list. Best effort;
// a missed ack only means the envelope is redelivered after a restart.
func (q *Queue) Ack(ctx context.Context, raw string) error {
	return q.rdb.LRem(ctx, processingKey, 1, raw).Err()
}

// Recover moves unacked envelopes back to the queue. Call it on worker
// start. With several worker processes this may requeue an envelope
// another worker is still handling; the duplicate write is harmless
// because fact ids are stable.
func (q *Queue) Recover(ctx context.Context) (int, error) {
	moved := 0
	for {
		_, err := q.rdb.LMove(ctx, processingKey, queueKey, "RIGHT", "LEFT").Result()
		if err == redis.Nil {
			return moved, nil
		}
		if err != nil {
			return moved, fmt.Errorf("recover processing list: %w", err)
		}
		moved++
	}
}

// Depth reports the current queue length.
func (q *Queue) Depth(ctx context.Context) (int64, error) {
	return q.rdb.LLen(ctx, queueKey).Result()
}
