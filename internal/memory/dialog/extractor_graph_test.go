package dialog

import (
	"context"
	"testing"
	"time"

	"github.com/shimonpozd/astra-sub000/internal/config"
	"github.com/shimonpozd/astra-sub000/internal/models"
)

// fakeGraph serves canned utterances and mentions and records the
// horizons it was asked for.
type fakeGraph struct {
	utterances []models.Utterance
	mentions   []models.TopicMention

	gotHorizon int
	gotSince   int64
}

func (f *fakeGraph) ApplyDialogEvent(ctx context.Context, ev *models.DialogEvent) error { return nil }
func (f *fakeGraph) MirrorFact(ctx context.Context, fact *models.Fact, vector []float32) error {
	return nil
}
func (f *fakeGraph) TopicFacts(ctx context.Context, topics []string, collection string, limit int) ([]models.Candidate, error) {
	return nil, nil
}
func (f *fakeGraph) SearchFacts(ctx context.Context, query, collection string, limit int) ([]models.Candidate, error) {
	return nil, nil
}
func (f *fakeGraph) KNNFacts(ctx context.Context, vector []float32, collection string, limit int) ([]models.Candidate, error) {
	return nil, nil
}
func (f *fakeGraph) RecentUtterances(ctx context.Context, sessionID string, limit int) ([]models.Utterance, error) {
	f.gotHorizon = limit
	return f.utterances, nil
}
func (f *fakeGraph) TopicMentions(ctx context.Context, sessionID string, horizonUtterances int, since int64) ([]models.TopicMention, error) {
	f.gotSince = since
	return f.mentions, nil
}

func TestExtractBuildsContext(t *testing.T) {
	now := time.Unix(100000, 0)
	graph := &fakeGraph{
		utterances: []models.Utterance{
			{Speaker: "assistant", Text: "sounds like a big change", TS: now.Unix() - 30},
			{Speaker: "user", Text: "I just moved to Lisbon", TS: now.Unix() - 60},
		},
		mentions: []models.TopicMention{
			{Slug: "relocation", Weight: 1.0, TS: now.Unix() - 60},
		},
	}
	extractor := NewExtractor(graph, config.ContextConfig{
		HorizonUtterances: 12,
		HorizonMinutes:    30,
		DecayTauSeconds:   1800,
		CharBudget:        1000,
	})

	dctx, err := extractor.Extract(context.Background(), "s1", now)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}

	if graph.gotHorizon != 12 {
		t.Errorf("utterance horizon = %d, want 12", graph.gotHorizon)
	}
	wantSince := now.Add(-30 * time.Minute).Unix()
	if graph.gotSince != wantSince {
		t.Errorf("time horizon = %d, want %d", graph.gotSince, wantSince)
	}

	if len(dctx.Topics) != 1 || dctx.Topics[0].Slug != "relocation" {
		t.Fatalf("unexpected topics: %+v", dctx.Topics)
	}
	if dctx.Text == "" {
		t.Fatal("context text should not be empty")
	}
	if dctx.ApproxTokens != len(dctx.Text)/4 {
		t.Errorf("approx tokens = %d, want %d", dctx.ApproxTokens, len(dctx.Text)/4)
	}
}

func TestExtractEmptySession(t *testing.T) {
	extractor := NewExtractor(&fakeGraph{}, config.ContextConfig{
		HorizonUtterances: 12,
		HorizonMinutes:    30,
		DecayTauSeconds:   1800,
		CharBudget:        1000,
	})

	dctx, err := extractor.Extract(context.Background(), "empty", time.Unix(100000, 0))
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if len(dctx.Topics) != 0 || dctx.Text != "" || dctx.ApproxTokens != 0 {
		t.Errorf("empty session should yield an empty context, got %+v", dctx)
	}
}
