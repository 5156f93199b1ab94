package cache

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/shimonpozd/astra-sub000/internal/models"
	"github.com/shimonpozd/astra-sub000/pkg/logger"
)

// deadRedis returns a client pointing at nothing. The cache fails open
// on Redis errors, so coalescing is observable without a server.
func deadRedis() *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
}

func TestKeyDeterministic(t *testing.T) {
	a := Key("u1", "where did I move", 5)
	b := Key("u1", "where did I move", 5)
	if a != b {
		t.Errorf("same inputs must produce the same key: %q vs %q", a, b)
	}
	if !strings.HasPrefix(a, "recall:") {
		t.Errorf("key should carry the recall prefix, got %q", a)
	}
}

func TestKeyVariesByIdentity(t *testing.T) {
	base := Key("u1", "where did I move", 5)
	if Key("u2", "where did I move", 5) == base {
		t.Errorf("user id must be part of the key identity")
	}
	if Key("u1", "where did I live", 5) == base {
		t.Errorf("query must be part of the key identity")
	}
	if Key("u1", "where did I move", 3) == base {
		t.Errorf("k must be part of the key identity")
	}
}

func TestKeyUnambiguousConcatenation(t *testing.T) {
	// the separator keeps "ab"+"c" distinct from "a"+"bc"
	if Key("ab", "c", 1) == Key("a", "bc", 1) {
		t.Errorf("field boundaries must not be ambiguous")
	}
}

func TestGetOrComputeCoalescesConcurrentCallers(t *testing.T) {
	c := New(deadRedis(), time.Minute, logger.New("test", "", ""))
	key := Key("u1", "where did I move", 5)

	var computes int32
	compute := func() ([]models.Candidate, error) {
		atomic.AddInt32(&computes, 1)
		// hold the flight open so every waiter joins it
		time.Sleep(150 * time.Millisecond)
		return []models.Candidate{{FactID: "f1", Score: 0.9}}, nil
	}

	const callers = 8
	var (
		wg      sync.WaitGroup
		start   = make(chan struct{})
		results [callers][]models.Candidate
		errs    [callers]error
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			results[i], _, errs[i] = c.GetOrCompute(context.Background(), key, compute)
		}(i)
	}
	close(start)
	wg.Wait()

	if n := atomic.LoadInt32(&computes); n != 1 {
		t.Fatalf("compute ran %d times, want exactly 1", n)
	}
	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d error = %v", i, errs[i])
		}
		if len(results[i]) != 1 || results[i][0].FactID != "f1" {
			t.Errorf("caller %d got %+v, want the shared result", i, results[i])
		}
	}
}

func TestGetOrComputeForgetsFailedFlight(t *testing.T) {
	c := New(deadRedis(), time.Minute, logger.New("test", "", ""))
	key := Key("u1", "query", 5)

	var calls int32
	failing := func() ([]models.Candidate, error) {
		atomic.AddInt32(&calls, 1)
		return nil, context.DeadlineExceeded
	}
	if _, _, err := c.GetOrCompute(context.Background(), key, failing); err == nil {
		t.Fatal("expected the compute error to surface")
	}

	// the failed flight must not pin the key; a later caller retries
	ok := func() ([]models.Candidate, error) {
		atomic.AddInt32(&calls, 1)
		return []models.Candidate{{FactID: "f2"}}, nil
	}
	results, _, err := c.GetOrCompute(context.Background(), key, ok)
	if err != nil {
		t.Fatalf("retry error = %v", err)
	}
	if len(results) != 1 || results[0].FactID != "f2" {
		t.Errorf("retry got %+v, want the fresh result", results)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Errorf("compute calls = %d, want 2", calls)
	}
}
