package ingest

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/shimonpozd/astra-sub000/internal/memory/store"
	"github.com/shimonpozd/astra-sub000/internal/models"
	"github.com/shimonpozd/astra-sub000/pkg/logger"
)

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{0.1, 0.2}, nil
}

func (fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{0.1, 0.2}
	}
	return out, nil
}

// captureVector records the facts upserted into the vector store.
type captureVector struct {
	facts []*models.Fact
}

func (c *captureVector) UpsertFact(ctx context.Context, fact *models.Fact, vector []float32) error {
	c.facts = append(c.facts, fact)
	return nil
}

func (c *captureVector) SemanticSearch(ctx context.Context, crit store.SearchCriteria, vector []float32) ([]models.Candidate, error) {
	return nil, nil
}

func (c *captureVector) KeywordSearch(ctx context.Context, crit store.SearchCriteria) ([]models.Candidate, error) {
	return nil, nil
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

func envelopeFor(t *testing.T, collection string, item models.IngestItem) *models.IngestEnvelope {
	t.Helper()
	raw, err := json.Marshal(item)
	if err != nil {
		t.Fatalf("marshal item: %v", err)
	}
	return &models.IngestEnvelope{ItemJSON: string(raw), Collection: collection}
}

// The stored speaker must be the owning user id, not the dialogue role:
// recall compares candidate speakers against the querying user id when
// applying the same-speaker bonus, so storing "user"/"assistant" there
// would make the bonus unreachable.
func TestProcessEnvelopeStoresUserIDAsSpeaker(t *testing.T) {
	vector := &captureVector{}
	worker := NewWorker(nil, fakeEmbedder{}, vector, noopGraph{}, logger.New("test", "", ""))

	env := envelopeFor(t, "memories", models.IngestItem{
		Text:      "I just moved to Lisbon",
		UserID:    "alice",
		SessionID: "s1",
		Role:      "user",
	})
	if err := worker.processEnvelope(context.Background(), env); err != nil {
		t.Fatalf("processEnvelope() error = %v", err)
	}

	if len(vector.facts) != 1 {
		t.Fatalf("expected 1 upserted fact, got %d", len(vector.facts))
	}
	fact := vector.facts[0]
	if fact.Speaker != "alice" {
		t.Errorf("fact speaker = %q, want the user id %q", fact.Speaker, "alice")
	}
	if fact.Speaker == "user" {
		t.Error("fact speaker must not be the dialogue role")
	}
}

func TestProcessEnvelopePopulatesFact(t *testing.T) {
	vector := &captureVector{}
	worker := NewWorker(nil, fakeEmbedder{}, vector, noopGraph{}, logger.New("test", "", ""))

	env := envelopeFor(t, "memories", models.IngestItem{
		Text:      "training for the marathon in October",
		UserID:    "alice",
		SessionID: "s1",
		Role:      "user",
		TS:        1700000000,
		OriginRef: "msg-42",
		Tags:      []string{"running"},
		Metadata:  map[string]string{"category": "goal", "entities": "marathon, october"},
	})
	if err := worker.processEnvelope(context.Background(), env); err != nil {
		t.Fatalf("processEnvelope() error = %v", err)
	}

	fact := vector.facts[0]
	if len(fact.FactID) != 64 {
		t.Errorf("fact id should be a sha256 hex string, got %q", fact.FactID)
	}
	if fact.Collection != "memories" {
		t.Errorf("collection = %q, want %q", fact.Collection, "memories")
	}
	if fact.Category != "goal" {
		t.Errorf("category = %q, want %q", fact.Category, "goal")
	}
	if len(fact.EntitySlugs) != 2 || fact.EntitySlugs[1] != "october" {
		t.Errorf("entity slugs = %v, want [marathon october]", fact.EntitySlugs)
	}
	if len(fact.SourceMessageIDs) != 1 || fact.SourceMessageIDs[0] != "msg-42" {
		t.Errorf("source message ids = %v, want [msg-42]", fact.SourceMessageIDs)
	}
}
