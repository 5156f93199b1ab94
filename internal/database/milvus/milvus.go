package milvus

import (
	"context"
	"fmt"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	"github.com/shimonpozd/astra-sub000/internal/config"
)

// Field names of the fact collection. The schema is fixed in code; only
// the embedding dimension and index come from configuration.
const (
	FieldFactID     = "fact_id"
	FieldText       = "text"
	FieldSpeaker    = "speaker"
	FieldTimestamp  = "ts"
	FieldTopics     = "topics"
	FieldEntities   = "entities"
	FieldCategory   = "category"
	FieldCollection = "collection"
	FieldEmbedding  = "embedding"
)

// OutputFields are the payload fields returned by every search and query.
var OutputFields = []string{
	FieldFactID, FieldText, FieldSpeaker, FieldTimestamp,
	FieldTopics, FieldEntities, FieldCategory, FieldCollection,
}

// Client wraps the Milvus SDK client together with its configuration.
// Instances are injected into stores; there is no process-wide singleton.
type Client struct {
	Client client.Client
	Config *config.MilvusConfig
}

// NewClient connects to Milvus.
func NewClient(ctx context.Context, cfg *config.MilvusConfig) (*Client, error) {
	c, err := client.NewClient(ctx, client.Config{Address: cfg.Address})
	if err != nil {
		return nil, fmt.Errorf("cannot connect to Milvus at %s: %w", cfg.Address, err)
	}
	return &Client{Client: c, Config: cfg}, nil
}

// Close releases the underlying connection.
func (c *Client) Close() {
	if c.Client != nil {
		c.Client.Close()
	}
}

// HealthCheck verifies the connection by listing collections.
func (c *Client) HealthCheck(ctx context.Context) error {
	if c.Client == nil {
		return fmt.Errorf("milvus client is nil")
	}
	if _, err := c.Client.ListCollections(ctx); err != nil {
		return fmt.Errorf("milvus health check failed: %w", err)
	}
	return nil
}

// EnsureCollection creates the fact collection, its vector index and
// loads it. Safe to call on every start.
func (c *Client) EnsureCollection(ctx context.Context) error {
	collName := c.Config.CollectionName
	exists, err := c.Client.HasCollection(ctx, collName)
	if err != nil {
		return fmt.Errorf("cannot check collection '%s': %w", collName, err)
	}

	if !exists {
		schema := entity.NewSchema().
			WithName(collName).
			WithDescription("long-term memory facts").
			WithField(entity.NewField().WithName(FieldFactID).WithDataType(entity.FieldTypeVarChar).WithMaxLength(64).WithIsPrimaryKey(true)).
			WithField(entity.NewField().WithName(FieldText).WithDataType(entity.FieldTypeVarChar).WithMaxLength(4096)).
			WithField(entity.NewField().WithName(FieldSpeaker).WithDataType(entity.FieldTypeVarChar).WithMaxLength(128)).
			WithField(entity.NewField().WithName(FieldTimestamp).WithDataType(entity.FieldTypeInt64)).
			WithField(entity.NewField().WithName(FieldTopics).WithDataType(entity.FieldTypeVarChar).WithMaxLength(1024)).
			WithField(entity.NewField().WithName(FieldEntities).WithDataType(entity.FieldTypeVarChar).WithMaxLength(1024)).
			WithField(entity.NewField().WithName(FieldCategory).WithDataType(entity.FieldTypeVarChar).WithMaxLength(64)).
			WithField(entity.NewField().WithName(FieldCollection).WithDataType(entity.FieldTypeVarChar).WithMaxLength(256)).
			WithField(entity.NewField().WithName(FieldEmbedding).WithDataType(entity.FieldTypeFloatVector).WithDim(int64(c.Config.Dim)))

		if err := c.Client.CreateCollection(ctx, schema, entity.DefaultShardNumber); err != nil {
			return fmt.Errorf("cannot create collection '%s': %w", collName, err)
		}

		idx, err := c.buildIndex()
		if err != nil {
			return err
		}
		if err := c.Client.CreateIndex(ctx, collName, FieldEmbedding, idx, false); err != nil {
			return fmt.Errorf("cannot create index on '%s': %w", FieldEmbedding, err)
		}
	}

	if err := c.Client.LoadCollection(ctx, collName, false); err != nil {
		return fmt.Errorf("cannot load collection '%s': %w", collName, err)
	}
	return nil
}

// Upsert writes one fact point keyed by its stable primary key. Calling
// it again with the same key replaces the point, which is what makes
// ingestion idempotent.
func (c *Client) Upsert(ctx context.Context, factID, text, speaker string, ts int64, topics, entities, category, collection string, vector []float32) error {
	cols := []entity.Column{
		entity.NewColumnVarChar(FieldFactID, []string{factID}),
		entity.NewColumnVarChar(FieldText, []string{text}),
		entity.NewColumnVarChar(FieldSpeaker, []string{speaker}),
		entity.NewColumnInt64(FieldTimestamp, []int64{ts}),
		entity.NewColumnVarChar(FieldTopics, []string{topics}),
		entity.NewColumnVarChar(FieldEntities, []string{entities}),
		entity.NewColumnVarChar(FieldCategory, []string{category}),
		entity.NewColumnVarChar(FieldCollection, []string{collection}),
		entity.NewColumnFloatVector(FieldEmbedding, c.Config.Dim, [][]float32{vector}),
	}
	if _, err := c.Client.Upsert(ctx, c.Config.CollectionName, "", cols...); err != nil {
		return fmt.Errorf("milvus upsert failed: %w", err)
	}
	return nil
}

// Search runs a filtered nearest-neighbor search and returns the raw SDK
// results together with backend similarity scores.
func (c *Client) Search(ctx context.Context, expr string, topK int, vector []float32) ([]client.SearchResult, error) {
	sp, err := c.buildSearchParam()
	if err != nil {
		return nil, err
	}
	results, err := c.Client.Search(
		ctx,
		c.Config.CollectionName,
		nil,
		expr,
		OutputFields,
		[]entity.Vector{entity.FloatVector(vector)},
		FieldEmbedding,
		entity.MetricType(c.Config.MetricType),
		topK,
		sp,
	)
	if err != nil {
		return nil, fmt.Errorf("milvus search failed: %w", err)
	}
	return results, nil
}

// Query runs a scalar-filter query (no vector involved); the keyword
// retrieval path uses it for substring matches on the text field.
func (c *Client) Query(ctx context.Context, expr string, limit int) (client.ResultSet, error) {
	rs, err := c.Client.Query(
		ctx,
		c.Config.CollectionName,
		nil,
		expr,
		OutputFields,
		client.WithLimit(int64(limit)),
	)
	if err != nil {
		return nil, fmt.Errorf("milvus query failed: %w", err)
	}
	return rs, nil
}

// Delete removes points matching the given primary key.
func (c *Client) Delete(ctx context.Context, factID string) error {
	expr := fmt.Sprintf("%s == \"%s\"", FieldFactID, factID)
	if err := c.Client.Delete(ctx, c.Config.CollectionName, "", expr); err != nil {
		return fmt.Errorf("milvus delete failed: %w", err)
	}
	return nil
}

func (c *Client) buildIndex() (entity.Index, error) {
	metric := entity.MetricType(c.Config.MetricType)
	switch c.Config.IndexType {
	case "HNSW", "":
		return entity.NewIndexHNSW(metric, 8, 96)
	case "IVF_FLAT":
		return entity.NewIndexIvfFlat(metric, 128)
	case "AUTOINDEX":
		return entity.NewIndexAUTOINDEX(metric)
	default:
		return nil, fmt.Errorf("unsupported index type: %s", c.Config.IndexType)
	}
}

func (c *Client) buildSearchParam() (entity.SearchParam, error) {
	switch c.Config.IndexType {
	case "HNSW", "":
		return entity.NewIndexHNSWSearchParam(64)
	case "IVF_FLAT":
		return entity.NewIndexIvfFlatSearchParam(10)
	case "AUTOINDEX":
		return entity.NewIndexAUTOINDEXSearchParam(1)
	default:
		return nil, fmt.Errorf("unsupported index type: %s", c.Config.IndexType)
	}
}
