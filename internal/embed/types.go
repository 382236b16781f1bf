// Package embed turns query text into dense vectors by calling the
// multimodal embedding model service.
package embed

import "context"

// Embedder produces query embeddings in the keyframe embedding space.
type Embedder interface {
	// Embed returns the embedding for text. Whitespace-only input yields
	// a zero vector of the model dimension.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the embedding dimension.
	Dimensions() int

	// ModelName returns the model identifier.
	ModelName() string

	Close() error
}
