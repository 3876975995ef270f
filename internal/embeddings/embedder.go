package embeddings

import "context"

// Embedder turns text into vectors for similarity search.
type Embedder interface {
	// Embed generates embeddings for one or more texts, in order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the length of the vectors this embedder
	// produces.
	Dimensions() int

	// Name identifies the embedding model.
	Name() string
}
