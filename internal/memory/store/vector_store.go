package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	"github.com/shimonpozd/astra-sub000/internal/database/milvus"
	"github.com/shimonpozd/astra-sub000/internal/models"
)

// keywordConfidence is assigned to keyword hits; the scalar query path
// has no native relevance score.
const keywordConfidence = 0.6

// MilvusStore implements VectorStore on top of the Milvus client.
type MilvusStore struct {
	client *milvus.Client
}

// NewMilvusStore creates a MilvusStore.
func NewMilvusStore(client *milvus.Client) *MilvusStore {
	return &MilvusStore{client: client}
}

// UpsertFact writes one fact point. The fact id is the primary key, so
// re-ingestion of identical content overwrites instead of duplicating.
func (s *MilvusStore) UpsertFact(ctx context.Context, fact *models.Fact, vector []float32) error {
	return s.client.Upsert(ctx,
		fact.FactID,
		fact.Text,
		fact.Speaker,
		fact.Timestamp,
		strings.Join(fact.TopicSlugs, ","),
		strings.Join(fact.EntitySlugs, ","),
		fact.Category,
		fact.Collection,
		vector,
	)
}

// SemanticSearch runs a filtered nearest-neighbor search.
func (s *MilvusStore) SemanticSearch(ctx context.Context, crit SearchCriteria, vector []float32) ([]models.Candidate, error) {
	results, err := s.client.Search(ctx, buildFilterExpr(crit), limitOr(crit.Limit), vector)
	if err != nil {
		return nil, fmt.Errorf("semantic search: %w", err)
	}

	var candidates []models.Candidate
	for _, result := range results {
		for i := 0; i < result.ResultCount; i++ {
			cand := candidateFromColumns(result.Fields, i)
			if i < len(result.Scores) {
				cand.Confidence = float64(result.Scores[i])
			}
			candidates = append(candidates, cand)
		}
	}
	return candidates, nil
}

// KeywordSearch runs a substring match on the text field.
func (s *MilvusStore) KeywordSearch(ctx context.Context, crit SearchCriteria) ([]models.Candidate, error) {
	expr := buildFilterExpr(crit)
	if crit.Query != "" {
		kw := fmt.Sprintf("%s like \"%%%s%%\"", milvus.FieldText, escape(crit.Query))
		if expr != "" {
			expr += " && " + kw
		} else {
			expr = kw
		}
	}

	rs, err := s.client.Query(ctx, expr, limitOr(crit.Limit))
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}

	n := 0
	if len(rs) > 0 {
		n = rs[0].Len()
	}
	candidates := make([]models.Candidate, 0, n)
	for i := 0; i < n; i++ {
		cand := candidateFromColumns(rs, i)
		cand.Confidence = keywordConfidence
		candidates = append(candidates, cand)
	}
	return candidates, nil
}

func buildFilterExpr(crit SearchCriteria) string {
	var parts []string
	if crit.Collection != "" {
		parts = append(parts, fmt.Sprintf("%s == \"%s\"", milvus.FieldCollection, escape(crit.Collection)))
	}
	if crit.Speaker != "" {
		parts = append(parts, fmt.Sprintf("%s == \"%s\"", milvus.FieldSpeaker, escape(crit.Speaker)))
	}
	if crit.Since > 0 {
		parts = append(parts, fmt.Sprintf("%s >= %d", milvus.FieldTimestamp, crit.Since))
	}
	return strings.Join(parts, " && ")
}

func candidateFromColumns(cols []entity.Column, i int) models.Candidate {
	return models.Candidate{
		FactID:      colString(cols, milvus.FieldFactID, i),
		Text:        colString(cols, milvus.FieldText, i),
		Speaker:     colString(cols, milvus.FieldSpeaker, i),
		Timestamp:   colInt64(cols, milvus.FieldTimestamp, i),
		TopicSlugs:  splitSlugs(colString(cols, milvus.FieldTopics, i)),
		EntitySlugs: splitSlugs(colString(cols, milvus.FieldEntities, i)),
		Category:    colString(cols, milvus.FieldCategory, i),
	}
}

func colString(cols []entity.Column, name string, i int) string {
	for _, c := range cols {
		if c.Name() == name {
			v, err := c.GetAsString(i)
			if err != nil {
				return ""
			}
			return v
		}
	}
	return ""
}

func colInt64(cols []entity.Column, name string, i int) int64 {
	for _, c := range cols {
		if c.Name() == name {
			v, err := c.GetAsInt64(i)
			if err != nil {
				return 0
			}
			return v
		}
	}
	return 0
}

func splitSlugs(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

func escape(s string) string {
	return strings.ReplaceAll(s, "\"", "\\\"")
}

func limitOr(limit int) int {
	if limit <= 0 {
		return 10
	}
	return limit
}
