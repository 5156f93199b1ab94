package recall

import (
	"sort"

	"github.com/shimonpozd/astra-sub000/internal/config"
	"github.com/shimonpozd/astra-sub000/internal/models"
)

// Signals carries the dialogue-context hints used for score bonuses.
// All fields are optional; an empty Signals disables every bonus.
type Signals struct {
	Speaker  string
	Topics   []string
	Entities []string
}

// Options tunes the fusion pass. Zero values are NOT defaulted here;
// callers pass config.RecallConfig values which carry the defaults.
type Options struct {
	Limit           int
	ScoreThreshold  float64
	DedupThreshold  float64
	Weights         config.FusionWeights
	ContextBonusCap float64
}

// noise penalties, subtracted from the fused score.
const (
	shortTextPenalty  = 0.25
	shortTextMaxChars = 25
	fillerPenalty     = 0.15
	noisyCatPenalty   = 0.35
)

var fillerTokens = map[string]struct{}{
	"ok": {}, "okay": {}, "yes": {}, "no": {}, "yeah": {}, "yep": {},
	"nope": {}, "hmm": {}, "hm": {}, "uh": {}, "um": {}, "ah": {},
	"oh": {}, "lol": {}, "haha": {}, "thanks": {}, "thx": {}, "sure": {},
	"fine": {}, "cool": {}, "right": {}, "well": {},
}

var noisyCategories = map[string]struct{}{
	"greeting": {}, "mood": {}, "meta": {},
}

type fused struct {
	cand  models.Candidate
	dense float64
}

// Fuse collapses candidates by fact id, blends the per-fact signals into
// one score, applies context bonuses and noise penalties, then filters,
// sorts, dedups near-identical texts and truncates to the limit.
//
// The blend is:
//
//	score = w_dense*semantic + w_keyword*jaccard(query, text) +
//	        w_topic*topicMatch + bonuses - penalties
//
// where semantic is the best backend similarity seen for the fact and
// topicMatch is 1 when the fact shares a topic with the active context.
// Ties keep arrival order.
func Fuse(candidates []models.Candidate, query string, sig Signals, tok Tokenizer, opts Options) []models.Candidate {
	byID := make(map[string]*fused, len(candidates))
	order := make([]string, 0, len(candidates))

	for _, cand := range candidates {
		f, ok := byID[cand.FactID]
		if !ok {
			c := cand
			f = &fused{cand: c}
			byID[cand.FactID] = f
			order = append(order, cand.FactID)
		} else {
			mergeMetadata(&f.cand, cand)
		}

		// the backend similarity signal; keyword hits carry only a
		// fixed confidence and contribute through the jaccard term
		switch cand.Source {
		case "semantic", "graph_knn", "graph_fulltext":
			f.dense = maxf(f.dense, clamp01(cand.Confidence))
		}
	}

	scored := make([]models.Candidate, 0, len(order))
	for _, id := range order {
		f := byID[id]

		topicMatch := 0.0
		if overlaps(f.cand.TopicSlugs, sig.Topics) {
			topicMatch = 1.0
		}

		score := opts.Weights.Dense*f.dense +
			opts.Weights.Keyword*Jaccard(tok, query, f.cand.Text) +
			opts.Weights.Topic*topicMatch
		score += contextBonus(f.cand, sig, opts.ContextBonusCap)
		score -= noisePenalty(f.cand)

		if score < opts.ScoreThreshold {
			continue
		}
		c := f.cand
		c.Score = score
		scored = append(scored, c)
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	result := make([]models.Candidate, 0, opts.Limit)
	for _, cand := range scored {
		if len(result) >= opts.Limit {
			break
		}
		if isNearDuplicate(tok, cand, result, opts.DedupThreshold) {
			continue
		}
		result = append(result, cand)
	}
	return result
}

// mergeMetadata fills blanks on the first-seen candidate from a later
// duplicate; the first-seen source tag wins for provenance.
func mergeMetadata(dst *models.Candidate, src models.Candidate) {
	if dst.Speaker == "" {
		dst.Speaker = src.Speaker
	}
	if dst.Category == "" {
		dst.Category = src.Category
	}
	if len(dst.TopicSlugs) == 0 {
		dst.TopicSlugs = src.TopicSlugs
	}
	if len(dst.EntitySlugs) == 0 {
		dst.EntitySlugs = src.EntitySlugs
	}
	if dst.Timestamp == 0 {
		dst.Timestamp = src.Timestamp
	}
}

func contextBonus(cand models.Candidate, sig Signals, bonusCap float64) float64 {
	var bonus float64
	if sig.Speaker != "" && cand.Speaker == sig.Speaker {
		bonus += bonusCap
	}
	if overlaps(cand.TopicSlugs, sig.Topics) {
		bonus += bonusCap
	}
	if overlaps(cand.EntitySlugs, sig.Entities) {
		bonus += bonusCap
	}
	return bonus
}

func noisePenalty(cand models.Candidate) float64 {
	var penalty float64
	if len(cand.Text) < shortTextMaxChars {
		penalty += shortTextPenalty
	}
	if mostlyFiller(cand.Text) {
		penalty += fillerPenalty
	}
	if _, ok := noisyCategories[cand.Category]; ok {
		penalty += noisyCatPenalty
	}
	return penalty
}

// mostlyFiller reports whether at least half of the tokens are
// conversational filler.
func mostlyFiller(text string) bool {
	tokens := SimpleTokenizer{}.Tokenize(text)
	if len(tokens) == 0 {
		return false
	}
	n := 0
	for _, t := range tokens {
		if _, ok := fillerTokens[t]; ok {
			n++
		}
	}
	return n*2 >= len(tokens)
}

func isNearDuplicate(tok Tokenizer, cand models.Candidate, kept []models.Candidate, threshold float64) bool {
	for _, k := range kept {
		if Jaccard(tok, cand.Text, k.Text) >= threshold {
			return true
		}
	}
	return false
}

func overlaps(a, b []string) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	set := make(map[string]struct{}, len(a))
	for _, s := range a {
		set[s] = struct{}{}
	}
	for _, s := range b {
		if _, ok := set[s]; ok {
			return true
		}
	}
	return false
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
