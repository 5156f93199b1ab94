package dialog

import (
	"strings"
	"testing"

	"github.com/shimonpozd/astra-sub000/internal/models"
)

func TestScoreTopicsDecayFavorsRecentMentions(t *testing.T) {
	now := int64(10000)
	mentions := []models.TopicMention{
		{Slug: "old", Weight: 1.0, TS: now - 3600},
		{Slug: "fresh", Weight: 1.0, TS: now - 60},
	}

	got := ScoreTopics(mentions, now, 1800)
	if len(got) != 2 {
		t.Fatalf("expected 2 topics, got %d", len(got))
	}
	if got[0].Slug != "fresh" {
		t.Errorf("recent mention should rank first, got %q", got[0].Slug)
	}
	if got[0].Score <= got[1].Score {
		t.Errorf("fresh score %v should exceed old score %v", got[0].Score, got[1].Score)
	}
}

func TestScoreTopicsAccumulatesRepeatedMentions(t *testing.T) {
	now := int64(10000)
	mentions := []models.TopicMention{
		{Slug: "repeated", Weight: 1.0, TS: now - 120},
		{Slug: "repeated", Weight: 1.0, TS: now - 60},
		{Slug: "single", Weight: 1.0, TS: now - 30},
	}

	got := ScoreTopics(mentions, now, 1800)
	if got[0].Slug != "repeated" {
		t.Errorf("two near-fresh mentions should outrank one, got %q first", got[0].Slug)
	}
}

func TestScoreTopicsKeepsTopThree(t *testing.T) {
	now := int64(10000)
	mentions := []models.TopicMention{
		{Slug: "a", Weight: 1.0, TS: now},
		{Slug: "b", Weight: 1.0, TS: now - 10},
		{Slug: "c", Weight: 1.0, TS: now - 20},
		{Slug: "d", Weight: 1.0, TS: now - 30},
	}

	got := ScoreTopics(mentions, now, 1800)
	if len(got) != 3 {
		t.Fatalf("expected top 3 topics, got %d", len(got))
	}
	for _, st := range got {
		if st.Slug == "d" {
			t.Errorf("weakest topic should have been cut")
		}
	}
}

func TestScoreTopicsDeterministicOnTies(t *testing.T) {
	now := int64(10000)
	mentions := []models.TopicMention{
		{Slug: "zeta", Weight: 1.0, TS: now},
		{Slug: "alpha", Weight: 1.0, TS: now},
	}

	got := ScoreTopics(mentions, now, 1800)
	if got[0].Slug != "alpha" {
		t.Errorf("equal scores should order by slug, got %q first", got[0].Slug)
	}
}

func TestBuildContextTextChronologicalWithinBudget(t *testing.T) {
	// newest first, as the graph store returns them
	utterances := []models.Utterance{
		{Speaker: "assistant", Text: "third line", TS: 3},
		{Speaker: "user", Text: "second line", TS: 2},
		{Speaker: "user", Text: "first line", TS: 1},
	}

	got := BuildContextText(utterances, 1000)
	lines := strings.Split(got, "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d: %q", len(lines), got)
	}
	if lines[0] != "user: first line" || lines[2] != "assistant: third line" {
		t.Errorf("lines must be chronological, got %q", got)
	}
}

func TestBuildContextTextDropsOldestWhenOverBudget(t *testing.T) {
	utterances := []models.Utterance{
		{Speaker: "user", Text: "newest", TS: 3},
		{Speaker: "user", Text: "middle", TS: 2},
		{Speaker: "user", Text: "oldest utterance that will not fit into the tight budget", TS: 1},
	}

	budget := len("user: newest") + 1 + len("user: middle")
	got := BuildContextText(utterances, budget)

	if strings.Contains(got, "oldest") {
		t.Errorf("oldest line should have been dropped, got %q", got)
	}
	if !strings.Contains(got, "newest") || !strings.Contains(got, "middle") {
		t.Errorf("recent lines should survive, got %q", got)
	}
	if len(got) > budget {
		t.Errorf("rendered text length %d exceeds budget %d", len(got), budget)
	}
}
