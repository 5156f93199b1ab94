package recall

import (
	"testing"

	"github.com/shimonpozd/astra-sub000/internal/config"
	"github.com/shimonpozd/astra-sub000/internal/models"
)

func defaultOptions() Options {
	return Options{
		Limit:           5,
		ScoreThreshold:  0.42,
		DedupThreshold:  0.8,
		Weights:         config.FusionWeights{Dense: 0.58, Keyword: 0.22, Topic: 0.20},
		ContextBonusCap: 0.05,
	}
}

func candidate(id, text, source string, confidence float64) models.Candidate {
	return models.Candidate{
		FactID:     id,
		Text:       text,
		Source:     source,
		Confidence: confidence,
	}
}

func TestFuseCollapsesDuplicateFactIDs(t *testing.T) {
	text := "the user moved to Lisbon last spring"
	candidates := []models.Candidate{
		candidate("f1", text, "semantic", 0.9),
		candidate("f1", text, "keyword", 0.6),
		candidate("f1", text, "graph_topic", 0.5),
	}

	got := Fuse(candidates, text, Signals{}, SimpleTokenizer{}, defaultOptions())
	if len(got) != 1 {
		t.Fatalf("expected 1 fused result, got %d", len(got))
	}
	if got[0].Source != "semantic" {
		t.Errorf("first-seen source should win, got %q", got[0].Source)
	}

	// dense term from the best similarity, keyword term from the exact
	// query-text token match
	want := 0.58*0.9 + 0.22*1.0
	if diff := got[0].Score - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("fused score = %v, want %v", got[0].Score, want)
	}
}

func TestFuseDropsBelowThreshold(t *testing.T) {
	candidates := []models.Candidate{
		candidate("weak", "a long enough sentence that avoids the short-text penalty", "semantic", 0.3),
		candidate("strong", "another long enough sentence that clears every threshold", "semantic", 0.95),
	}

	got := Fuse(candidates, "completely unrelated query", Signals{}, SimpleTokenizer{}, defaultOptions())
	if len(got) != 1 {
		t.Fatalf("expected 1 result, got %d", len(got))
	}
	if got[0].FactID != "strong" {
		t.Errorf("expected only the strong candidate, got %q", got[0].FactID)
	}
}

func TestFuseTruncatesToLimit(t *testing.T) {
	opts := defaultOptions()
	opts.Limit = 2
	opts.DedupThreshold = 1.1 // disable dedup for this case

	var candidates []models.Candidate
	texts := []string{
		"first distinct fact about the project deadline in november",
		"second distinct fact about a favorite hiking trail in norway",
		"third distinct fact about the broken coffee machine at work",
		"fourth distinct fact about an upcoming conference in berlin",
	}
	for i, text := range texts {
		candidates = append(candidates, candidate(string(rune('a'+i)), text, "semantic", 0.9))
	}

	got := Fuse(candidates, "", Signals{}, SimpleTokenizer{}, opts)
	if len(got) != 2 {
		t.Fatalf("expected 2 results, got %d", len(got))
	}
}

func TestFuseDedupsNearIdenticalTexts(t *testing.T) {
	candidates := []models.Candidate{
		candidate("a", "the user adopted a black cat named Mio in october", "semantic", 0.95),
		candidate("b", "the user adopted a black cat named Mio in october 2024", "semantic", 0.90),
		candidate("c", "the user prefers tea over coffee in the mornings always", "semantic", 0.85),
	}

	got := Fuse(candidates, "", Signals{}, SimpleTokenizer{}, defaultOptions())
	if len(got) != 2 {
		t.Fatalf("expected 2 results after dedup, got %d", len(got))
	}
	if got[0].FactID != "a" {
		t.Errorf("higher-scored duplicate should survive, got %q first", got[0].FactID)
	}
	for _, c := range got {
		if c.FactID == "b" {
			t.Errorf("near-duplicate %q should have been dropped", c.FactID)
		}
	}
}

func TestFusePenalizesNoise(t *testing.T) {
	candidates := []models.Candidate{
		{
			// perfect similarity cannot save a two-character greeting
			FactID:     "ok",
			Text:       "ok",
			Category:   "greeting",
			Source:     "semantic",
			Confidence: 1.0,
		},
		{
			FactID:     "greet",
			Text:       "hello there, good morning, how are you doing today friend",
			Category:   "greeting",
			Source:     "semantic",
			Confidence: 0.99,
		},
		candidate("real", "the user is training for a marathon in early september", "semantic", 0.9),
	}

	got := Fuse(candidates, "marathon training", Signals{}, SimpleTokenizer{}, defaultOptions())
	if len(got) != 1 {
		t.Fatalf("expected only the substantive fact, got %d results", len(got))
	}
	if got[0].FactID != "real" {
		t.Errorf("expected %q, got %q", "real", got[0].FactID)
	}
}

func TestFuseContextSignals(t *testing.T) {
	opts := defaultOptions()
	base := models.Candidate{
		FactID:     "f1",
		Text:       "the user plays bass guitar in a small jazz band",
		Speaker:    "user-1",
		TopicSlugs: []string{"music"},
		Source:     "semantic",
		Confidence: 0.8,
	}

	plain := Fuse([]models.Candidate{base}, "", Signals{}, SimpleTokenizer{}, opts)
	boosted := Fuse([]models.Candidate{base}, "", Signals{
		Speaker: "user-1",
		Topics:  []string{"music"},
	}, SimpleTokenizer{}, opts)

	if len(plain) != 1 || len(boosted) != 1 {
		t.Fatalf("expected single results, got %d and %d", len(plain), len(boosted))
	}

	// topic overlap switches on the topic-match term and two bonuses
	// apply: same speaker and topic overlap
	want := plain[0].Score + opts.Weights.Topic + 2*opts.ContextBonusCap
	if diff := boosted[0].Score - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("boosted score = %v, want %v", boosted[0].Score, want)
	}
}

func TestFuseStableOrderOnTies(t *testing.T) {
	opts := defaultOptions()
	opts.DedupThreshold = 1.1

	candidates := []models.Candidate{
		candidate("first", "a tied candidate about gardening tomatoes on the balcony", "semantic", 0.8),
		candidate("second", "a tied candidate about restoring an old racing bicycle", "semantic", 0.8),
	}

	got := Fuse(candidates, "", Signals{}, SimpleTokenizer{}, opts)
	if len(got) != 2 {
		t.Fatalf("expected 2 results, got %d", len(got))
	}
	if got[0].FactID != "first" || got[1].FactID != "second" {
		t.Errorf("ties must keep arrival order, got %q then %q", got[0].FactID, got[1].FactID)
	}
}
