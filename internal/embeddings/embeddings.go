// Package embeddings defines the embedder boundary.
package embeddings

import "context"

// Provider produces vector representations for text. All members of a store
// share one provider; output dimensionality is fixed for its lifetime.
type Provider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
