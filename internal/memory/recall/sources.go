package recall

import (
	"context"
	"sync"
	"time"

	"github.com/shimonpozd/astra-sub000/internal/embedding"
	"github.com/shimonpozd/astra-sub000/internal/memory/store"
	"github.com/shimonpozd/astra-sub000/internal/models"
	"github.com/shimonpozd/astra-sub000/pkg/logger"
)

// Query is one candidate-generation request fanned out to every source.
type Query struct {
	Text       string
	Collection string
	Speaker    string
	Topics     []string // active context topics, may be empty
	Limit      int      // per-source candidate budget
}

// Source is one candidate-generation strategy. A source that cannot
// serve a query (missing topics, provider down) returns an empty list
// or an error; it never blocks the other sources.
type Source interface {
	Name() string
	Fetch(ctx context.Context, q Query) ([]models.Candidate, error)
}

// SemanticSource embeds the query text and runs a nearest-neighbor
// search against the vector store.
type SemanticSource struct {
	Embedder embedding.Embedding
	Store    store.VectorStore
}

func (s *SemanticSource) Name() string { return "semantic" }

func (s *SemanticSource) Fetch(ctx context.Context, q Query) ([]models.Candidate, error) {
	vector, err := s.Embedder.Embed(ctx, q.Text)
	if err != nil {
		return nil, err
	}
	candidates, err := s.Store.SemanticSearch(ctx, store.SearchCriteria{
		Collection: q.Collection,
		Limit:      q.Limit,
	}, vector)
	if err != nil {
		return nil, err
	}
	return tagged(candidates, s.Name()), nil
}

// KeywordSource runs a substring scalar query against the vector store.
// It needs no embedding, so it keeps working when the provider is down.
type KeywordSource struct {
	Store store.VectorStore
}

func (s *KeywordSource) Name() string { return "keyword" }

func (s *KeywordSource) Fetch(ctx context.Context, q Query) ([]models.Candidate, error) {
	candidates, err := s.Store.KeywordSearch(ctx, store.SearchCriteria{
		Collection: q.Collection,
		Query:      q.Text,
		Limit:      q.Limit,
	})
	if err != nil {
		return nil, err
	}
	return tagged(candidates, s.Name()), nil
}

// TopicSource walks the dialogue graph from the active context topics
// to the facts about them. Returns nothing when the context has no
// topics.
type TopicSource struct {
	Store store.GraphStore
}

func (s *TopicSource) Name() string { return "graph_topic" }

func (s *TopicSource) Fetch(ctx context.Context, q Query) ([]models.Candidate, error) {
	if len(q.Topics) == 0 {
		return nil, nil
	}
	return s.Store.TopicFacts(ctx, q.Topics, q.Collection, q.Limit)
}

// GraphSearchSource runs the graph store's full-text index over fact
// text. When the full-text pass yields nothing and an embedder is
// available it falls back to the graph's vector index.
type GraphSearchSource struct {
	Store    store.GraphStore
	Embedder embedding.Embedding // optional, enables the KNN fallback
}

func (s *GraphSearchSource) Name() string { return "graph_fulltext" }

func (s *GraphSearchSource) Fetch(ctx context.Context, q Query) ([]models.Candidate, error) {
	if q.Text == "" {
		return nil, nil
	}
	candidates, err := s.Store.SearchFacts(ctx, q.Text, q.Collection, q.Limit)
	if err != nil || len(candidates) > 0 || s.Embedder == nil {
		return candidates, err
	}

	vector, err := s.Embedder.Embed(ctx, q.Text)
	if err != nil {
		return nil, err
	}
	return s.Store.KNNFacts(ctx, vector, q.Collection, q.Limit)
}

// RunAll fans the query out to every source concurrently, each under its
// own timebox. A failed or timed-out source contributes an empty list
// and a warning; it never fails the whole recall.
func RunAll(ctx context.Context, log *logger.Logger, sources []Source, q Query, timeout time.Duration) []models.Candidate {
	var (
		mu  sync.Mutex
		all []models.Candidate
		wg  sync.WaitGroup
	)

	for _, src := range sources {
		wg.Add(1)
		go func(src Source) {
			defer wg.Done()

			srcCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			candidates, err := src.Fetch(srcCtx, q)
			if err != nil {
				log.WithError(models.ErrorInfo{Message: err.Error(), Type: "recall_source"}).
					Warn("recall source failed, continuing without it: " + src.Name())
				return
			}

			mu.Lock()
			all = append(all, candidates...)
			mu.Unlock()
		}(src)
	}
	wg.Wait()
	return all
}

func tagged(candidates []models.Candidate, source string) []models.Candidate {
	for i := range candidates {
		candidates[i].Source = source
	}
	return candidates
}
