package limiter

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/shimonpozd/astra-sub000/pkg/logger"
)

func deadLimiter() *Limiter {
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	return New(rdb, logger.New("test", "", ""), 20, 6, 3)
}

// every admission check fails open when the counter store is down
func TestAllowFailsOpen(t *testing.T) {
	l := deadLimiter()
	if err := l.Allow(context.Background(), "alice", "s1", time.Now()); err != nil {
		t.Fatalf("Allow() with unreachable Redis must admit, got %v", err)
	}
}

func TestMarkCompletedBestEffort(t *testing.T) {
	l := deadLimiter()
	// must neither panic nor block beyond the dial timeout
	done := make(chan struct{})
	go func() {
		l.MarkCompleted(context.Background(), "s1", time.Now())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("MarkCompleted should return promptly on Redis failure")
	}
}

func TestFilterTacticsFailsOpen(t *testing.T) {
	l := deadLimiter()
	tactics := []string{"recap", "probe_goal"}
	got := l.FilterTactics(context.Background(), "s1", tactics)
	if len(got) != len(tactics) {
		t.Fatalf("tactic filter must pass everything through on Redis failure, got %v", got)
	}
}
