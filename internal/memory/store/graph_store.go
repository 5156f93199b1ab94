package store

import (
	"context"
	"fmt"

	neo4jdriver "github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/shimonpozd/astra-sub000/internal/database/neo4j"
	"github.com/shimonpozd/astra-sub000/internal/models"
)

// Neo4jStore implements GraphStore on top of the Neo4j client.
type Neo4jStore struct {
	client *neo4j.Client
	dim    int
}

// NewNeo4jStore creates a Neo4jStore. dim is the embedding dimension of
// the fact vector index.
func NewNeo4jStore(client *neo4j.Client, dim int) *Neo4jStore {
	return &Neo4jStore{client: client, dim: dim}
}

// EnsureSchema creates constraints and indexes. Safe to call on every
// start.
func (s *Neo4jStore) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		"CREATE CONSTRAINT fact_id_unique IF NOT EXISTS FOR (f:Fact) REQUIRE f.fact_id IS UNIQUE",
		"CREATE CONSTRAINT session_id_unique IF NOT EXISTS FOR (s:Session) REQUIRE s.session_id IS UNIQUE",
		"CREATE CONSTRAINT utt_id_unique IF NOT EXISTS FOR (u:Utterance) REQUIRE u.utt_id IS UNIQUE",
		"CREATE CONSTRAINT topic_slug_unique IF NOT EXISTS FOR (t:Topic) REQUIRE t.slug IS UNIQUE",
		"CREATE FULLTEXT INDEX fact_text IF NOT EXISTS FOR (f:Fact) ON EACH [f.text]",
		fmt.Sprintf("CREATE VECTOR INDEX fact_embedding IF NOT EXISTS FOR (f:Fact) ON (f.embedding) "+
			"OPTIONS {indexConfig: {`vector.dimensions`: %d, `vector.similarity_function`: 'cosine'}}", s.dim),
	}
	for _, stmt := range stmts {
		stmt := stmt
		_, err := s.client.ExecuteWrite(ctx, func(tx neo4jdriver.ManagedTransaction) (interface{}, error) {
			_, err := tx.Run(ctx, stmt, nil)
			return nil, err
		})
		if err != nil {
			return fmt.Errorf("ensure graph schema: %w", err)
		}
	}
	return nil
}

// ApplyDialogEvent upserts one dialogue turn: the session (end_ts
// extended), the utterance, the FOLLOWS edge to its predecessor and the
// MENTIONS edges for its topics. The utterance id is derived from
// session and timestamp so redelivery merges into the same node.
func (s *Neo4jStore) ApplyDialogEvent(ctx context.Context, ev *models.DialogEvent) error {
	uttID := fmt.Sprintf("%s:%d", ev.SessionID, ev.TS)

	const upsertQuery = `
	MERGE (s:Session {session_id: $session_id})
	ON CREATE SET s.start_ts = $ts, s.end_ts = $ts
	SET s.end_ts = CASE WHEN s.end_ts < $ts THEN $ts ELSE s.end_ts END
	MERGE (u:Utterance {utt_id: $utt_id})
	SET u.session_id = $session_id, u.speaker = $speaker, u.text = $text, u.ts = $ts
	MERGE (u)-[:IN_SESSION]->(s)
	WITH s, u
	OPTIONAL MATCH (p:Utterance)-[:IN_SESSION]->(s)
	WHERE p.ts < u.ts
	WITH u, p ORDER BY p.ts DESC LIMIT 1
	FOREACH (_ IN CASE WHEN p IS NULL THEN [] ELSE [1] END |
		MERGE (u)-[:FOLLOWS]->(p))
	`

	const topicsQuery = `
	MATCH (u:Utterance {utt_id: $utt_id})
	UNWIND $topics AS slug
	MERGE (t:Topic {slug: slug})
	ON CREATE SET t.label = slug
	MERGE (u)-[m:MENTIONS]->(t)
	ON CREATE SET m.weight = 1.0, m.ts = $ts
	`

	_, err := s.client.ExecuteWrite(ctx, func(tx neo4jdriver.ManagedTransaction) (interface{}, error) {
		params := map[string]interface{}{
			"session_id": ev.SessionID,
			"utt_id":     uttID,
			"speaker":    ev.Speaker,
			"text":       ev.Text,
			"ts":         ev.TS,
		}
		if _, err := tx.Run(ctx, upsertQuery, params); err != nil {
			return nil, err
		}
		if len(ev.Topics) > 0 {
			_, err := tx.Run(ctx, topicsQuery, map[string]interface{}{
				"utt_id": uttID,
				"topics": ev.Topics,
				"ts":     ev.TS,
			})
			if err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("apply dialog event: %w", err)
	}
	return nil
}

// MirrorFact upserts a fact node, its embedding and its topic links.
func (s *Neo4jStore) MirrorFact(ctx context.Context, fact *models.Fact, vector []float32) error {
	const factQuery = `
	MERGE (f:Fact {fact_id: $fact_id})
	SET f.text = $text, f.speaker = $speaker, f.ts = $ts,
	    f.category = $category, f.collection = $collection, f.embedding = $embedding
	WITH f
	UNWIND $topics AS slug
	MERGE (t:Topic {slug: slug})
	ON CREATE SET t.label = slug
	MERGE (f)-[:ABOUT]->(t)
	`
	_, err := s.client.ExecuteWrite(ctx, func(tx neo4jdriver.ManagedTransaction) (interface{}, error) {
		topics := fact.TopicSlugs
		if topics == nil {
			topics = []string{}
		}
		_, err := tx.Run(ctx, factQuery, map[string]interface{}{
			"fact_id":    fact.FactID,
			"text":       fact.Text,
			"speaker":    fact.Speaker,
			"ts":         fact.Timestamp,
			"category":   fact.Category,
			"collection": fact.Collection,
			"embedding":  toFloat64s(vector),
			"topics":     topics,
		})
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("mirror fact: %w", err)
	}
	return nil
}

// TopicFacts returns facts linked to any of the given topics, newest
// first. Confidence is fixed; recency ordering carries the signal.
func (s *Neo4jStore) TopicFacts(ctx context.Context, topics []string, collection string, limit int) ([]models.Candidate, error) {
	const query = `
	UNWIND $topics AS slug
	MATCH (f:Fact)-[:ABOUT]->(:Topic {slug: slug})
	WHERE $collection = '' OR f.collection = $collection
	WITH DISTINCT f
	RETURN f.fact_id AS fact_id, f.text AS text, f.speaker AS speaker,
	       f.ts AS ts, f.category AS category
	ORDER BY f.ts DESC
	LIMIT $limit
	`
	return s.queryCandidates(ctx, query, map[string]interface{}{
		"topics":     topics,
		"collection": collection,
		"limit":      limitOr(limit),
	}, "graph_topic", 0.5)
}

// SearchFacts runs a full-text query over fact text.
func (s *Neo4jStore) SearchFacts(ctx context.Context, query, collection string, limit int) ([]models.Candidate, error) {
	const cypher = `
	CALL db.index.fulltext.queryNodes('fact_text', $query) YIELD node, score
	WHERE $collection = '' OR node.collection = $collection
	RETURN node.fact_id AS fact_id, node.text AS text, node.speaker AS speaker,
	       node.ts AS ts, node.category AS category, score
	LIMIT $limit
	`
	return s.queryCandidates(ctx, cypher, map[string]interface{}{
		"query":      query,
		"collection": collection,
		"limit":      limitOr(limit),
	}, "graph_fulltext", -1)
}

// KNNFacts runs a vector-index nearest-neighbor query.
func (s *Neo4jStore) KNNFacts(ctx context.Context, vector []float32, collection string, limit int) ([]models.Candidate, error) {
	const cypher = `
	CALL db.index.vector.queryNodes('fact_embedding', $k, $vector) YIELD node, score
	WHERE $collection = '' OR node.collection = $collection
	RETURN node.fact_id AS fact_id, node.text AS text, node.speaker AS speaker,
	       node.ts AS ts, node.category AS category, score
	`
	return s.queryCandidates(ctx, cypher, map[string]interface{}{
		"k":          limitOr(limit),
		"vector":     toFloat64s(vector),
		"collection": collection,
	}, "graph_knn", -1)
}

// RecentUtterances returns the last utterances of a session, newest
// first.
func (s *Neo4jStore) RecentUtterances(ctx context.Context, sessionID string, limit int) ([]models.Utterance, error) {
	const query = `
	MATCH (u:Utterance)-[:IN_SESSION]->(:Session {session_id: $session_id})
	RETURN u.utt_id AS utt_id, u.speaker AS speaker, u.text AS text, u.ts AS ts
	ORDER BY u.ts DESC
	LIMIT $limit
	`
	result, err := s.client.ExecuteRead(ctx, func(tx neo4jdriver.ManagedTransaction) (interface{}, error) {
		res, err := tx.Run(ctx, query, map[string]interface{}{
			"session_id": sessionID,
			"limit":      limitOr(limit),
		})
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		utterances := make([]models.Utterance, 0, len(records))
		for _, record := range records {
			utterances = append(utterances, models.Utterance{
				UttID:     recString(record, "utt_id"),
				SessionID: sessionID,
				Speaker:   recString(record, "speaker"),
				Text:      recString(record, "text"),
				TS:        recInt64(record, "ts"),
			})
		}
		return utterances, nil
	})
	if err != nil {
		return nil, fmt.Errorf("recent utterances: %w", err)
	}
	return result.([]models.Utterance), nil
}

// TopicMentions returns the MENTIONS edges of utterances satisfying
// either the utterance-count horizon or the time horizon. UNION dedups
// edges qualifying under both.
func (s *Neo4jStore) TopicMentions(ctx context.Context, sessionID string, horizonUtterances int, since int64) ([]models.TopicMention, error) {
	const query = `
	MATCH (u:Utterance)-[:IN_SESSION]->(:Session {session_id: $session_id})
	WITH u ORDER BY u.ts DESC LIMIT $n
	MATCH (u)-[m:MENTIONS]->(t:Topic)
	RETURN t.slug AS slug, m.weight AS weight, m.ts AS ts
	UNION
	MATCH (u:Utterance)-[:IN_SESSION]->(:Session {session_id: $session_id})
	WHERE u.ts >= $since
	MATCH (u)-[m:MENTIONS]->(t:Topic)
	RETURN t.slug AS slug, m.weight AS weight, m.ts AS ts
	`
	result, err := s.client.ExecuteRead(ctx, func(tx neo4jdriver.ManagedTransaction) (interface{}, error) {
		res, err := tx.Run(ctx, query, map[string]interface{}{
			"session_id": sessionID,
			"n":          horizonUtterances,
			"since":      since,
		})
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		mentions := make([]models.TopicMention, 0, len(records))
		for _, record := range records {
			mentions = append(mentions, models.TopicMention{
				Slug:   recString(record, "slug"),
				Weight: recFloat64(record, "weight"),
				TS:     recInt64(record, "ts"),
			})
		}
		return mentions, nil
	})
	if err != nil {
		return nil, fmt.Errorf("topic mentions: %w", err)
	}
	return result.([]models.TopicMention), nil
}

func (s *Neo4jStore) queryCandidates(ctx context.Context, cypher string, params map[string]interface{}, source string, fixedConfidence float64) ([]models.Candidate, error) {
	result, err := s.client.ExecuteRead(ctx, func(tx neo4jdriver.ManagedTransaction) (interface{}, error) {
		res, err := tx.Run(ctx, cypher, params)
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		candidates := make([]models.Candidate, 0, len(records))
		for _, record := range records {
			cand := models.Candidate{
				FactID:    recString(record, "fact_id"),
				Text:      recString(record, "text"),
				Speaker:   recString(record, "speaker"),
				Timestamp: recInt64(record, "ts"),
				Category:  recString(record, "category"),
				Source:    source,
			}
			if fixedConfidence >= 0 {
				cand.Confidence = fixedConfidence
			} else {
				cand.Confidence = recFloat64(record, "score")
			}
			candidates = append(candidates, cand)
		}
		return candidates, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]models.Candidate), nil
}

func recString(record *neo4jdriver.Record, key string) string {
	v, ok := record.Get(key)
	if !ok || v == nil {
		return ""
	}
	s, _ := v.(string)
	return s
}

func recInt64(record *neo4jdriver.Record, key string) int64 {
	v, ok := record.Get(key)
	if !ok || v == nil {
		return 0
	}
	switch n := v.(type) {
	case int64:
		return n
	case float64:
		return int64(n)
	}
	return 0
}

func recFloat64(record *neo4jdriver.Record, key string) float64 {
	v, ok := record.Get(key)
	if !ok || v == nil {
		return 0
	}
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	}
	return 0
}

func toFloat64s(vector []float32) []float64 {
	out := make([]float64, len(vector))
	for i, v := range vector {
		out[i] = float64(v)
	}
	return out
}
