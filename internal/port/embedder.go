package port

import "context"

// EmbeddingProvider converts text into fixed-length vectors. Two concrete
// implementations exist: a local-server (Ollama) provider and an
// OpenAI-compatible cloud provider.
type EmbeddingProvider interface {
	// EmbedDocuments embeds a batch of texts, one vector per input. On a
	// single-item failure it returns a *domain.EmbeddingError carrying the
	// failed item's index.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery embeds a single query string.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)

	// CheckAvailability probes whether the configured server and model are
	// reachable. Called before a full index run to fail fast.
	CheckAvailability(ctx context.Context) error

	// Dimension returns the embedding vector dimension.
	Dimension() int

	// ModelName returns the name of the embedding model.
	ModelName() string

	// Fingerprint identifies the (provider, model) pair. Embeddings from
	// different fingerprints are never mixed in one store.
	Fingerprint() string
}
