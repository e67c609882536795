package embedding

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"noterag/internal/domain"
)

const (
	DefaultOpenAIModel = "text-embedding-3-small"
	openaiMaxBatch     = 100
)

var openaiDimensions = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

// OpenAIEmbedder is the cloud provider. Unlike the local server it supports
// multiple inputs per request; batches are capped at openaiMaxBatch. When a
// batch fails the texts are retried one by one so the failing item's index
// can be reported.
type OpenAIEmbedder struct {
	client    *openai.Client
	model     string
	dimension int
}

func NewOpenAIEmbedder(apiKey, model, baseURL string) (*OpenAIEmbedder, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai API key is not set")
	}
	if model == "" {
		model = DefaultOpenAIModel
	}

	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}

	dimension := openaiDimensions[model]
	if dimension == 0 {
		dimension = 1536
	}

	return &OpenAIEmbedder{
		client:    openai.NewClientWithConfig(cfg),
		model:     model,
		dimension: dimension,
	}, nil
}

func (e *OpenAIEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	all := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += openaiMaxBatch {
		end := start + openaiMaxBatch
		if end > len(texts) {
			end = len(texts)
		}

		vectors, err := e.embedBatch(ctx, texts[start:end])
		if err != nil {
			// Batch failed; fall back to per-text requests to find the
			// offending input.
			vectors, err = e.embedSingly(ctx, texts[start:end], start)
			if err != nil {
				return nil, err
			}
		}
		all = append(all, vectors...)
	}

	return all, nil
}

func (e *OpenAIEmbedder) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(e.model),
		Input: texts,
	})
	if err != nil {
		return nil, fmt.Errorf("embeddings request: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Data))
	}

	vectors := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(vectors) {
			return nil, fmt.Errorf("embedding index %d out of range", d.Index)
		}
		vectors[d.Index] = d.Embedding
	}
	return vectors, nil
}

func (e *OpenAIEmbedder) embedSingly(ctx context.Context, texts []string, offset int) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vecs, err := e.embedBatch(ctx, []string{text})
		if err != nil {
			return nil, &domain.EmbeddingError{Index: offset + i, Err: err}
		}
		vectors[i] = vecs[0]
	}
	return vectors, nil
}

func (e *OpenAIEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.embedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// CheckAvailability embeds a tiny probe string so auth, connectivity, and
// model name are all validated in one call.
func (e *OpenAIEmbedder) CheckAvailability(ctx context.Context) error {
	if _, err := e.embedBatch(ctx, []string{"ping"}); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrProviderUnavailable, err)
	}
	return nil
}

func (e *OpenAIEmbedder) Dimension() int      { return e.dimension }
func (e *OpenAIEmbedder) ModelName() string   { return e.model }
func (e *OpenAIEmbedder) Fingerprint() string { return "openai/" + e.model }
