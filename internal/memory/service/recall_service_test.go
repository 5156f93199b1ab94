package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/shimonpozd/astra-sub000/internal/config"
	"github.com/shimonpozd/astra-sub000/internal/memory/cache"
	"github.com/shimonpozd/astra-sub000/internal/memory/dialog"
	"github.com/shimonpozd/astra-sub000/internal/memory/recall"
	"github.com/shimonpozd/astra-sub000/internal/models"
	"github.com/shimonpozd/astra-sub000/pkg/logger"
)

type fakeLimiter struct {
	allowErr  error
	completed []string
	bumped    []string
}

func (f *fakeLimiter) Allow(ctx context.Context, userID, sessionID string, now time.Time) error {
	return f.allowErr
}

func (f *fakeLimiter) MarkCompleted(ctx context.Context, sessionID string, now time.Time) {
	f.completed = append(f.completed, sessionID)
}

func (f *fakeLimiter) BumpTurn(ctx context.Context, sessionID string) {
	f.bumped = append(f.bumped, sessionID)
}

func (f *fakeLimiter) MarkTactic(ctx context.Context, sessionID, tactic string) {}

func (f *fakeLimiter) FilterTactics(ctx context.Context, sessionID string, tactics []string) []string {
	return tactics
}

type fakeQueue struct {
	err error
}

func (f *fakeQueue) EnqueueBatch(ctx context.Context, collection string, items []models.IngestItem) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	return len(items), nil
}

type fakeSink struct {
	err    error
	events []*models.DialogEvent
}

func (f *fakeSink) Publish(ctx context.Context, ev *models.DialogEvent) error {
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, ev)
	return nil
}

type noopGraph struct{}

func (noopGraph) ApplyDialogEvent(ctx context.Context, ev *models.DialogEvent) error { return nil }
func (noopGraph) MirrorFact(ctx context.Context, fact *models.Fact, vector []float32) error {
	return nil
}
func (noopGraph) TopicFacts(ctx context.Context, topics []string, collection string, limit int) ([]models.Candidate, error) {
	return nil, nil
}
func (noopGraph) SearchFacts(ctx context.Context, query, collection string, limit int) ([]models.Candidate, error) {
	return nil, nil
}
func (noopGraph) KNNFacts(ctx context.Context, vector []float32, collection string, limit int) ([]models.Candidate, error) {
	return nil, nil
}
func (noopGraph) RecentUtterances(ctx context.Context, sessionID string, limit int) ([]models.Utterance, error) {
	return nil, nil
}
func (noopGraph) TopicMentions(ctx context.Context, sessionID string, horizonUtterances int, since int64) ([]models.TopicMention, error) {
	return nil, nil
}

type stubSource struct {
	candidates []models.Candidate
}

func (s *stubSource) Name() string { return "semantic" }

func (s *stubSource) Fetch(ctx context.Context, q recall.Query) ([]models.Candidate, error) {
	return s.candidates, nil
}

// deadRedis backs the cache in tests; cache reads and writes fail open,
// which is all the service path needs.
func deadRedis() *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
}

func newTestService(lim RateLimiter, queue IngestQueue, sink DialogSink, sources []recall.Source) *RecallService {
	log := logger.New("test", "", "")
	cfg := config.RecallConfig{}.WithDefaults()
	return NewRecallService(
		cfg,
		log,
		lim,
		cache.New(deadRedis(), time.Minute, log),
		dialog.NewExtractor(noopGraph{}, cfg.Context),
		noopGraph{},
		sources,
		queue,
		sink,
		nil,
	)
}

func TestRecallMarksCooldownAfterSuccess(t *testing.T) {
	lim := &fakeLimiter{}
	sources := []recall.Source{&stubSource{candidates: []models.Candidate{{
		FactID:     "f1",
		Text:       "moved to Lisbon at the start of spring",
		Source:     "semantic",
		Confidence: 0.95,
	}}}}
	svc := newTestService(lim, &fakeQueue{}, &fakeSink{}, sources)

	resp, err := svc.Recall(context.Background(), &RecallRequest{
		UserID:    "alice",
		SessionID: "s1",
		Query:     "moved to Lisbon",
	})
	if err != nil {
		t.Fatalf("Recall() error = %v", err)
	}
	if len(resp.Memories) == 0 {
		t.Fatal("expected fused memories in the response")
	}
	if len(lim.completed) != 1 || lim.completed[0] != "s1" {
		t.Errorf("cooldown marks = %v, want exactly one for s1", lim.completed)
	}
}

func TestRecallRejectionLeavesCooldownUntouched(t *testing.T) {
	lim := &fakeLimiter{allowErr: &models.RateLimitError{Reason: "user budget exceeded", RetryAfter: time.Second}}
	svc := newTestService(lim, &fakeQueue{}, &fakeSink{}, nil)

	_, err := svc.Recall(context.Background(), &RecallRequest{
		UserID:    "alice",
		SessionID: "s1",
		Query:     "anything",
	})
	if !errors.Is(err, models.ErrRateLimited) {
		t.Fatalf("expected a rate-limit rejection, got %v", err)
	}
	if len(lim.completed) != 0 {
		t.Errorf("a rejected request must not start a cooldown, marks = %v", lim.completed)
	}
}

func TestStoreClassifiesQueueFailure(t *testing.T) {
	svc := newTestService(&fakeLimiter{}, &fakeQueue{err: errors.New("connection refused")}, &fakeSink{}, nil)

	_, err := svc.Store(context.Background(), "memories", []models.IngestItem{
		{Text: "hello", UserID: "alice"},
	})
	if !errors.Is(err, models.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}

func TestDialogUpdateClassifiesPublishFailure(t *testing.T) {
	lim := &fakeLimiter{}
	svc := newTestService(lim, &fakeQueue{}, &fakeSink{err: errors.New("broker down")}, nil)

	err := svc.DialogUpdate(context.Background(), &models.DialogEvent{
		SessionID: "s1",
		Text:      "hi",
	})
	if !errors.Is(err, models.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if len(lim.bumped) != 0 {
		t.Errorf("a failed publish must not advance the turn counter, bumps = %v", lim.bumped)
	}
}

func TestDialogUpdateClassifiesPublishTimeout(t *testing.T) {
	sink := &fakeSink{err: fmt.Errorf("write: %w", context.DeadlineExceeded)}
	svc := newTestService(&fakeLimiter{}, &fakeQueue{}, sink, nil)

	err := svc.DialogUpdate(context.Background(), &models.DialogEvent{
		SessionID: "s1",
		Text:      "hi",
	})
	if !errors.Is(err, models.ErrUpstreamTimeout) {
		t.Fatalf("expected ErrUpstreamTimeout, got %v", err)
	}
}

func TestDialogUpdateBumpsTurnOnSuccess(t *testing.T) {
	lim := &fakeLimiter{}
	sink := &fakeSink{}
	svc := newTestService(lim, &fakeQueue{}, sink, nil)

	if err := svc.DialogUpdate(context.Background(), &models.DialogEvent{
		SessionID: "s1",
		Text:      "hi",
	}); err != nil {
		t.Fatalf("DialogUpdate() error = %v", err)
	}
	if len(sink.events) != 1 {
		t.Fatalf("expected 1 published event, got %d", len(sink.events))
	}
	if len(lim.bumped) != 1 || lim.bumped[0] != "s1" {
		t.Errorf("turn bumps = %v, want exactly one for s1", lim.bumped)
	}
}
