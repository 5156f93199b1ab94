package dialog

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shimonpozd/astra-sub000/internal/config"
	"github.com/shimonpozd/astra-sub000/internal/memory/store"
	"github.com/shimonpozd/astra-sub000/internal/models"
)

// topCount is how many topics the extractor surfaces.
const topCount = 3

// Context is the dialogue context of a session at a point in time: the
// dominant topics under exponential decay, the recent utterances and a
// compact text rendering for prompt assembly.
type Context struct {
	SessionID    string               `json:"session_id"`
	Topics       []models.ScoredTopic `json:"topics"`
	Utterances   []models.Utterance   `json:"utterances"`
	Text         string               `json:"text"`
	ApproxTokens int                  `json:"approx_tokens"`
}

// Extractor computes dialogue context from the graph store.
type Extractor struct {
	graph store.GraphStore
	cfg   config.ContextConfig
}

// NewExtractor creates an Extractor with the given tuning.
func NewExtractor(graph store.GraphStore, cfg config.ContextConfig) *Extractor {
	return &Extractor{graph: graph, cfg: cfg}
}

// Extract builds the dialogue context of a session as of now. A session
// with no utterances yields an empty context, not an error.
func (e *Extractor) Extract(ctx context.Context, sessionID string, now time.Time) (*Context, error) {
	since := now.Add(-time.Duration(e.cfg.HorizonMinutes) * time.Minute).Unix()

	utterances, err := e.graph.RecentUtterances(ctx, sessionID, e.cfg.HorizonUtterances)
	if err != nil {
		return nil, fmt.Errorf("extract context: %w", err)
	}
	mentions, err := e.graph.TopicMentions(ctx, sessionID, e.cfg.HorizonUtterances, since)
	if err != nil {
		return nil, fmt.Errorf("extract context: %w", err)
	}

	text := BuildContextText(utterances, e.cfg.CharBudget)
	return &Context{
		SessionID:    sessionID,
		Topics:       ScoreTopics(mentions, now.Unix(), e.cfg.DecayTauSeconds),
		Utterances:   utterances,
		Text:         text,
		ApproxTokens: len(text) / 4,
	}, nil
}

// ScoreTopics aggregates mention edges into per-topic salience with
// exponential decay: each mention contributes weight * exp(-age/tau).
// Returns the top topics by score, descending; slug order breaks ties
// so the result is deterministic.
func ScoreTopics(mentions []models.TopicMention, now int64, tauSeconds float64) []models.ScoredTopic {
	if tauSeconds <= 0 {
		tauSeconds = 1800
	}

	salience := make(map[string]float64)
	for _, m := range mentions {
		age := float64(now - m.TS)
		if age < 0 {
			age = 0
		}
		salience[m.Slug] += m.Weight * math.Exp(-age/tauSeconds)
	}

	scored := make([]models.ScoredTopic, 0, len(salience))
	for slug, score := range salience {
		scored = append(scored, models.ScoredTopic{Slug: slug, Score: score})
	}
	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Slug < scored[j].Slug
	})

	if len(scored) > topCount {
		scored = scored[:topCount]
	}
	return scored
}

// BuildContextText renders utterances as "speaker: text" lines, oldest
// first, dropping the oldest lines when the character budget would
// overflow. Utterances arrive newest first from the graph store.
func BuildContextText(utterances []models.Utterance, charBudget int) string {
	if charBudget <= 0 {
		charBudget = 1000
	}

	var (
		lines []string
		used  int
	)
	for _, u := range utterances { // newest first
		line := u.Speaker + ": " + u.Text
		cost := len(line)
		if len(lines) > 0 {
			cost++ // newline
		}
		if used+cost > charBudget {
			break
		}
		lines = append(lines, line)
		used += cost
	}

	// reverse into chronological order
	for i, j := 0, len(lines)-1; i < j; i, j = i+1, j-1 {
		lines[i], lines[j] = lines[j], lines[i]
	}
	return strings.Join(lines, "\n")
}

// BuildDocument renders the combined context block: a relevant-facts
// section followed by the recent conversation, truncated to the
// character budget on a rune boundary.
func BuildDocument(facts []string, conversation string, charBudget int) string {
	if charBudget <= 0 {
		charBudget = 1000
	}

	var b strings.Builder
	if len(facts) > 0 {
		b.WriteString("Relevant facts:\n")
		for _, f := range facts {
			b.WriteString("- ")
			b.WriteString(f)
			b.WriteString("\n")
		}
	}
	if conversation != "" {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString("Recent conversation:\n")
		b.WriteString(conversation)
	}

	text := b.String()
	if len(text) <= charBudget {
		return text
	}
	cut := charBudget
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}
