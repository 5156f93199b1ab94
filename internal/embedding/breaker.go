package embedding

import (
	"context"
	"errors"

	"github.com/shimonpozd/astra-sub000/internal/models"
	"github.com/shimonpozd/astra-sub000/pkg/circuitbreaker"
)

// BreakerModel guards an embedding provider with a circuit breaker. When
// the circuit is open the call fails immediately with ErrQuotaExceeded so
// the recall pipeline degrades to keyword/graph sources instead of
// waiting out provider timeouts on every request.
type BreakerModel struct {
	inner   Embedding
	breaker circuitbreaker.CircuitBreaker
}

// WithBreaker wraps the given provider.
func WithBreaker(inner Embedding, breaker circuitbreaker.CircuitBreaker) *BreakerModel {
	return &BreakerModel{inner: inner, breaker: breaker}
}

// Embed generates an embedding vector for a single text.
func (m *BreakerModel) Embed(ctx context.Context, text string) ([]float32, error) {
	res, err := m.breaker.Execute(func() (interface{}, error) {
		return m.inner.Embed(ctx, text)
	})
	if err != nil {
		return nil, classify(err)
	}
	return res.([]float32), nil
}

// EmbedBatch generates embedding vectors for a batch of texts.
func (m *BreakerModel) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	res, err := m.breaker.Execute(func() (interface{}, error) {
		return m.inner.EmbedBatch(ctx, texts)
	})
	if err != nil {
		return nil, classify(err)
	}
	return res.([][]float32), nil
}

func classify(err error) error {
	if errors.Is(err, circuitbreaker.ErrCircuitOpen) || IsQuotaError(err) {
		return models.ErrQuotaExceeded
	}
	return err
}
