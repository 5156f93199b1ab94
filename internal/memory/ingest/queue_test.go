package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
)

func deadRedis() *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
}

func TestEnqueueBatchEmptyIsNoop(t *testing.T) {
	// an empty batch must not touch Redis at all
	q := NewQueue(deadRedis())
	n, err := q.EnqueueBatch(context.Background(), "memories", nil)
	if err != nil {
		t.Fatalf("EnqueueBatch() error = %v", err)
	}
	if n != 0 {
		t.Errorf("queued = %d, want 0", n)
	}
}

func TestQueueSurfacesRedisFailure(t *testing.T) {
	q := NewQueue(deadRedis())

	if _, _, err := q.Dequeue(context.Background(), 50*time.Millisecond); err == nil {
		t.Error("Dequeue should surface the Redis error, not swallow it")
	}
	if _, err := q.Recover(context.Background()); err == nil {
		t.Error("Recover should surface the Redis error, not swallow it")
	}
}
