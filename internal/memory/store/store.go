package store

import (
	"context"

	"github.com/shimonpozd/astra-sub000/internal/models"
)

// SearchCriteria narrows a fact search. Collection is always required;
// the remaining filters are optional.
type SearchCriteria struct {
	Collection string
	Speaker    string
	Query      string
	Since      int64 // unix seconds; 0 means no lower bound
	Limit      int
}

// VectorStore is the minimal capability set the recall core requires
// from the vector-similarity backend.
type VectorStore interface {
	// UpsertFact writes a fact point keyed by its stable id; re-upserting
	// the same id replaces the point.
	UpsertFact(ctx context.Context, fact *models.Fact, vector []float32) error

	// SemanticSearch runs a filtered nearest-neighbor search; candidate
	// confidence is the backend similarity score.
	SemanticSearch(ctx context.Context, crit SearchCriteria, vector []float32) ([]models.Candidate, error)

	// KeywordSearch runs a substring match on the text field. No true
	// relevance score exists for this path, so confidence is fixed.
	KeywordSearch(ctx context.Context, crit SearchCriteria) ([]models.Candidate, error)
}

// GraphStore is the minimal capability set the recall core requires from
// the property-graph backend.
type GraphStore interface {
	// ApplyDialogEvent upserts the session, utterance, FOLLOWS edge and
	// topic mentions for one dialogue turn. MERGE-based, so redelivery
	// of the same event is harmless.
	ApplyDialogEvent(ctx context.Context, ev *models.DialogEvent) error

	// MirrorFact upserts a fact node and its topic links.
	MirrorFact(ctx context.Context, fact *models.Fact, vector []float32) error

	// TopicFacts returns facts linked to any of the given topics,
	// newest first. An empty collection matches all collections.
	TopicFacts(ctx context.Context, topics []string, collection string, limit int) ([]models.Candidate, error)

	// SearchFacts runs a full-text query over fact text, returning the
	// store's native relevance score. An empty collection matches all
	// collections.
	SearchFacts(ctx context.Context, query, collection string, limit int) ([]models.Candidate, error)

	// KNNFacts runs a vector-index nearest-neighbor query over fact
	// embeddings stored in the graph. An empty collection matches all
	// collections.
	KNNFacts(ctx context.Context, vector []float32, collection string, limit int) ([]models.Candidate, error)

	// RecentUtterances returns the last utterances of a session,
	// newest first.
	RecentUtterances(ctx context.Context, sessionID string, limit int) ([]models.Utterance, error)

	// TopicMentions returns the MENTIONS edges of utterances satisfying
	// either the utterance-count horizon or the time horizon.
	TopicMentions(ctx context.Context, sessionID string, horizonUtterances int, since int64) ([]models.TopicMention, error)
}
