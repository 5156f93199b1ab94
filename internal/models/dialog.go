package models

// Utterance is a single dialogue turn stored in the graph. Utterances
// within a session are totally ordered by TS; a FOLLOWS edge links each
// utterance to its immediate predecessor in the same session.
type Utterance struct {
	UttID     string `json:"utt_id"`
	SessionID string `json:"session_id"`
	Speaker   string `json:"speaker"`
	Text      string `json:"text"`
	TS        int64  `json:"ts"`
}

// Session groups utterances. EndTS is extended on every new utterance.
type Session struct {
	SessionID string `json:"session_id"`
	StartTS   int64  `json:"start_ts"`
	EndTS     int64  `json:"end_ts"`
}

// Topic is a graph node identified by a unique slug.
type Topic struct {
	Slug  string `json:"slug"`
	Label string `json:"label"`
}

// TopicMention is one MENTIONS edge between an utterance and a topic.
// Weight is the initial edge weight; TS is the edge timestamp used for
// decay scoring.
type TopicMention struct {
	Slug   string
	Weight float64
	TS     int64
}

// ScoredTopic is a topic with its decay-weighted salience over a horizon.
type ScoredTopic struct {
	Slug  string  `json:"slug"`
	Score float64 `json:"score"`
}

// DialogEvent is the wire format of a dialog-graph update. Events are
// published to Kafka by the API handler and applied to the graph store by
// the dialog consumer.
type DialogEvent struct {
	SessionID string   `json:"session_id"`
	Speaker   string   `json:"speaker"`
	TS        int64    `json:"ts"`
	Text      string   `json:"text"`
	Topics    []string `json:"topics,omitempty"`
}
