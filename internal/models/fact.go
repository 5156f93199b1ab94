package models

// Fact is an atomic unit of long-term memory. Facts are created by the
// ingestion worker and are immutable afterwards; re-ingesting the same
// content with the same positional metadata produces the same FactID and
// overwrites the stored point instead of duplicating it.
type Fact struct {
	FactID           string   `json:"fact_id"`
	Text             string   `json:"text"`
	Speaker          string   `json:"speaker,omitempty"`
	Timestamp        int64    `json:"timestamp"`
	TopicSlugs       []string `json:"topic_slugs,omitempty"`
	EntitySlugs      []string `json:"entity_slugs,omitempty"`
	SourceMessageIDs []string `json:"source_message_ids,omitempty"`
	Category         string   `json:"category,omitempty"`
	Collection       string   `json:"collection,omitempty"`

	// Score is assigned by the retrieval backend at query time and is
	// never persisted as ground truth.
	Score float64 `json:"score,omitempty"`
}

// Candidate is a transient, per-request retrieval hit before fusion and
// dedup. The fusion engine owns candidate lifetime for the duration of a
// single request; nothing about candidates is shared across requests.
type Candidate struct {
	FactID      string   `json:"fact_id"`
	Text        string   `json:"text"`
	Speaker     string   `json:"speaker,omitempty"`
	Timestamp   int64    `json:"timestamp"`
	TopicSlugs  []string `json:"topic_slugs,omitempty"`
	EntitySlugs []string `json:"entity_slugs,omitempty"`
	Category    string   `json:"category,omitempty"`

	// Source tags which retrieval strategy produced the candidate. When
	// several sources return the same fact, the first-seen tag wins for
	// provenance.
	Source     string  `json:"source,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`

	// Score is the fused score computed by the re-ranking engine.
	Score float64 `json:"score"`
}
