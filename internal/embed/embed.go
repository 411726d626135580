// Package embed turns chunk text into dense vectors for the vector half of
// hybrid retrieval.
package embed

import "context"

// Embedder produces embedding vectors for text. Implementations must return
// one vector per input, in input order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedOne(ctx context.Context, text string) ([]float32, error)
	// Model identifies the embedding model; vectors from different models
	// are not comparable.
	Model() string
}
