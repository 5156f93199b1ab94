package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shimonpozd/astra-sub000/internal/config"
	"github.com/shimonpozd/astra-sub000/internal/memory/cache"
	"github.com/shimonpozd/astra-sub000/internal/memory/dialog"
	"github.com/shimonpozd/astra-sub000/internal/memory/recall"
	"github.com/shimonpozd/astra-sub000/internal/memory/store"
	"github.com/shimonpozd/astra-sub000/internal/models"
	"github.com/shimonpozd/astra-sub000/pkg/logger"
)

const (
	maxQueryLen = 1024
	maxK        = 8
)

// DialogSink accepts dialog events for asynchronous application to the
// graph. In production it is the Kafka publisher.
type DialogSink interface {
	Publish(ctx context.Context, ev *models.DialogEvent) error
}

// RateLimiter is the admission surface of the service: the per-user
// budget and session cooldown gate, the turn counter and the tactic
// cooldown. In production it is the Redis-backed limiter.
type RateLimiter interface {
	Allow(ctx context.Context, userID, sessionID string, now time.Time) error
	MarkCompleted(ctx context.Context, sessionID string, now time.Time)
	BumpTurn(ctx context.Context, sessionID string)
	MarkTactic(ctx context.Context, sessionID, tactic string)
	FilterTactics(ctx context.Context, sessionID string, tactics []string) []string
}

// IngestQueue accepts item batches for asynchronous ingestion.
type IngestQueue interface {
	EnqueueBatch(ctx context.Context, collection string, items []models.IngestItem) (int, error)
}

// HealthChecker is anything that can report its own liveness.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// RecallRequest is one memory-recall query.
type RecallRequest struct {
	UserID     string `json:"user_id"`
	SessionID  string `json:"session_id,omitempty"`
	Collection string `json:"collection"`
	Query      string `json:"query"`
	K          int    `json:"k,omitempty"`
}

// RecallResponse carries the fused results plus the context signals that
// shaped them.
type RecallResponse struct {
	Memories      []models.Candidate   `json:"memories"`
	ContextTopics []models.ScoredTopic `json:"context_topics,omitempty"`
	Cached        bool                 `json:"cached"`
}

// ContextResponse is the combined dialogue-plus-facts context block.
type ContextResponse struct {
	Text         string   `json:"text"`
	Topics       []string `json:"topics"`
	Quotes       []string `json:"quotes"`
	Facts        []string `json:"facts"`
	ApproxTokens int      `json:"approx_tokens"`
}

// RecallService is the orchestration core: admission, caching, context
// extraction, source fan-out and fusion.
type RecallService struct {
	cfg       config.RecallConfig
	log       *logger.Logger
	limiter   RateLimiter
	cache     *cache.RecallCache
	extractor *dialog.Extractor
	graph     store.GraphStore
	sources   []recall.Source
	tokenizer recall.Tokenizer
	queue     IngestQueue
	dialogs   DialogSink
	checks    map[string]HealthChecker

	now func() time.Time
}

// NewRecallService wires the service. checks maps component names to
// their health probes for the aggregate health report.
func NewRecallService(
	cfg config.RecallConfig,
	log *logger.Logger,
	lim RateLimiter,
	recallCache *cache.RecallCache,
	extractor *dialog.Extractor,
	graph store.GraphStore,
	sources []recall.Source,
	queue IngestQueue,
	dialogs DialogSink,
	checks map[string]HealthChecker,
) *RecallService {
	return &RecallService{
		cfg:       cfg,
		log:       log,
		limiter:   lim,
		cache:     recallCache,
		extractor: extractor,
		graph:     graph,
		sources:   sources,
		tokenizer: recall.SimpleTokenizer{},
		queue:     queue,
		dialogs:   dialogs,
		checks:    checks,
		now:       time.Now,
	}
}

// Recall answers one memory query. Identical concurrent queries share a
// single backend pass through the cache's request coalescing.
func (s *RecallService) Recall(ctx context.Context, req *RecallRequest) (*RecallResponse, error) {
	if err := validateRecall(req); err != nil {
		return nil, err
	}
	k := req.K
	if k == 0 {
		k = s.cfg.Limit
	}

	if err := s.limiter.Allow(ctx, req.UserID, req.SessionID, s.now()); err != nil {
		return nil, err
	}

	var topics []models.ScoredTopic
	key := cache.Key(req.UserID, req.Query, k)
	results, fromCache, err := s.cache.GetOrCompute(ctx, key, func() ([]models.Candidate, error) {
		topics = s.contextTopics(ctx, req.SessionID)
		return s.retrieve(ctx, req, topics, k), nil
	})
	if err != nil {
		return nil, err
	}

	// the cooldown window is anchored to completed recalls only; a
	// rejected or failed request must not start one
	s.limiter.MarkCompleted(ctx, req.SessionID, s.now())

	return &RecallResponse{
		Memories:      results,
		ContextTopics: topics,
		Cached:        fromCache,
	}, nil
}

// contextTopics resolves the session's dominant topics. Context failure
// degrades recall to context-free retrieval instead of failing it.
func (s *RecallService) contextTopics(ctx context.Context, sessionID string) []models.ScoredTopic {
	if sessionID == "" {
		return nil
	}
	dctx, err := s.extractor.Extract(ctx, sessionID, s.now())
	if err != nil {
		s.log.WithError(models.ErrorInfo{Message: err.Error(), Type: "context"}).
			Warn("context extraction failed, recalling without context")
		return nil
	}
	return dctx.Topics
}

func (s *RecallService) retrieve(ctx context.Context, req *RecallRequest, topics []models.ScoredTopic, k int) []models.Candidate {
	slugs := make([]string, 0, len(topics))
	for _, t := range topics {
		slugs = append(slugs, t.Slug)
	}

	candidates := recall.RunAll(ctx, s.log, s.sources, recall.Query{
		Text:       req.Query,
		Collection: req.Collection,
		Speaker:    req.UserID,
		Topics:     slugs,
		// over-fetch so fusion has room to threshold and dedup
		Limit: 3 * k,
	}, s.cfg.SourceTimeoutDuration())

	return recall.Fuse(candidates, req.Query, recall.Signals{
		Speaker: req.UserID,
		Topics:  slugs,
	}, s.tokenizer, recall.Options{
		Limit:           k,
		ScoreThreshold:  s.cfg.ScoreThreshold,
		DedupThreshold:  s.cfg.DedupThreshold,
		Weights:         s.cfg.Weights,
		ContextBonusCap: s.cfg.ContextBonusCap,
	})
}

// Store queues a batch of items for asynchronous ingestion and returns
// how many were accepted.
func (s *RecallService) Store(ctx context.Context, collection string, items []models.IngestItem) (int, error) {
	if collection == "" {
		return 0, fmt.Errorf("%w: collection is required", models.ErrInvalidRequest)
	}
	if len(items) == 0 {
		return 0, fmt.Errorf("%w: empty item batch", models.ErrInvalidRequest)
	}
	for i, item := range items {
		if item.Text == "" {
			return 0, fmt.Errorf("%w: item %d has empty text", models.ErrInvalidRequest, i)
		}
		if item.UserID == "" {
			return 0, fmt.Errorf("%w: item %d has no user_id", models.ErrInvalidRequest, i)
		}
	}

	queued, err := s.queue.EnqueueBatch(ctx, collection, items)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
	}
	return queued, nil
}

// Context returns the combined dialogue-plus-facts context block of a
// session. A failing fact lookup degrades to conversation-only context.
func (s *RecallService) Context(ctx context.Context, sessionID, query, collection string) (*ContextResponse, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("%w: session_id is required", models.ErrInvalidRequest)
	}

	dctx, err := s.extractor.Extract(ctx, sessionID, s.now())
	if err != nil {
		return nil, err
	}

	slugs := make([]string, 0, len(dctx.Topics))
	for _, t := range dctx.Topics {
		slugs = append(slugs, t.Slug)
	}

	var facts []models.Candidate
	if query != "" {
		facts, err = s.graph.SearchFacts(ctx, query, collection, 3)
	} else if len(slugs) > 0 {
		facts, err = s.graph.TopicFacts(ctx, slugs, collection, 3)
	}
	if err != nil {
		s.log.WithError(models.ErrorInfo{Message: err.Error(), Type: "context"}).
			Warn("fact lookup for context failed, returning conversation only")
		facts = nil
	}

	factTexts := make([]string, 0, len(facts))
	for _, f := range facts {
		factTexts = append(factTexts, f.Text)
	}
	quotes := make([]string, 0, len(dctx.Utterances))
	for _, u := range dctx.Utterances {
		quotes = append(quotes, u.Text)
	}

	text := dialog.BuildDocument(factTexts, dctx.Text, s.cfg.Context.CharBudget)
	return &ContextResponse{
		Text:         text,
		Topics:       slugs,
		Quotes:       quotes,
		Facts:        factTexts,
		ApproxTokens: len(text) / 4,
	}, nil
}

// FilterTactics drops proactive tactics still inside their turn
// cooldown for the session.
func (s *RecallService) FilterTactics(ctx context.Context, sessionID string, tactics []string) ([]string, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("%w: session_id is required", models.ErrInvalidRequest)
	}
	return s.limiter.FilterTactics(ctx, sessionID, tactics), nil
}

// MarkTactic records that a proactive tactic was used on the current
// turn of the session.
func (s *RecallService) MarkTactic(ctx context.Context, sessionID, tactic string) error {
	if sessionID == "" || tactic == "" {
		return fmt.Errorf("%w: session_id and tactic are required", models.ErrInvalidRequest)
	}
	s.limiter.MarkTactic(ctx, sessionID, tactic)
	return nil
}

// DialogUpdate publishes one dialogue turn for asynchronous graph
// application and advances the session turn counter.
func (s *RecallService) DialogUpdate(ctx context.Context, ev *models.DialogEvent) error {
	if ev.SessionID == "" {
		return fmt.Errorf("%w: session_id is required", models.ErrInvalidRequest)
	}
	if ev.Text == "" {
		return fmt.Errorf("%w: text is required", models.ErrInvalidRequest)
	}
	if ev.TS == 0 {
		ev.TS = s.now().Unix()
	}

	if err := s.dialogs.Publish(ctx, ev); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: dialog publish: %v", models.ErrUpstreamTimeout, err)
		}
		return fmt.Errorf("%w: dialog publish: %v", models.ErrStoreUnavailable, err)
	}
	s.limiter.BumpTurn(ctx, ev.SessionID)
	return nil
}

// Health probes every registered component. Status is "ok" when all
// probes pass and "degraded" otherwise; recall keeps serving in degraded
// mode with whatever sources still work.
func (s *RecallService) Health(ctx context.Context) (string, map[string]string) {
	components := make(map[string]string, len(s.checks))
	status := "ok"
	for name, check := range s.checks {
		if err := check.HealthCheck(ctx); err != nil {
			components[name] = err.Error()
			status = "degraded"
		} else {
			components[name] = "ok"
		}
	}
	return status, components
}

func validateRecall(req *RecallRequest) error {
	if req.UserID == "" {
		return fmt.Errorf("%w: user_id is required", models.ErrInvalidRequest)
	}
	if req.Query == "" {
		return fmt.Errorf("%w: query is required", models.ErrInvalidRequest)
	}
	if len(req.Query) > maxQueryLen {
		return fmt.Errorf("%w: query exceeds %d bytes", models.ErrInvalidRequest, maxQueryLen)
	}
	if req.K < 0 || req.K > maxK {
		return fmt.Errorf("%w: k must be between 1 and %d", models.ErrInvalidRequest, maxK)
	}
	return nil
}
