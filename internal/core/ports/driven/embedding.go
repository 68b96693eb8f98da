package driven

import "context"

// EmbeddingService generates vector embeddings from text.
//
// Implementations may include:
//   - OpenAI (text-embedding-3-small, text-embedding-3-large)
//   - Ollama (nomic-embed-text, mxbai-embed-large)
//
// Failures map to domain.ErrEmbeddingUnavailable, domain.ErrEmbeddingRateLimited
// or domain.ErrTimeout. Implementations never retry on their own.
type EmbeddingService interface {
	// Embed generates a vector embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts.
	// The output has the same length and order as the input. Inputs larger
	// than the provider limit are split into several requests transparently.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding vector size, or 0 when the model's
	// size is not known before the first response.
	Dimensions() int

	// ModelName returns the name of the embedding model being used.
	ModelName() string

	// Ping validates the service is reachable by making a lightweight test request.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}

// EmbeddingCache stores embeddings keyed by an exact content hash.
type EmbeddingCache interface {
	// Get returns the cached vector for key, if present.
	Get(ctx context.Context, key string) ([]float32, bool, error)

	// Put stores a vector under key.
	Put(ctx context.Context, key string, vector []float32) error
}
