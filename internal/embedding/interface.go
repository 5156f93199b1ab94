package embedding

import "context"

// Embedding is the opaque text -> vector function the recall core
// consumes. Adapters do not retry; callers decide retry policy.
type Embedding interface {
	// Embed generates an embedding vector for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embedding vectors for a batch of texts.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}
