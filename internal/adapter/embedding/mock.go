package embedding

import "context"

// MockEmbedder produces deterministic rune-derived vectors. It exists for
// tests and offline smoke runs; identical text always yields an identical
// vector, so query/document round trips are exact.
type MockEmbedder struct {
	dimension int
}

func NewMockEmbedder(dimension int) *MockEmbedder {
	if dimension <= 0 {
		dimension = 64
	}
	return &MockEmbedder{dimension: dimension}
}

func (e *MockEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vectors[i] = e.embed(text)
	}
	return vectors, nil
}

func (e *MockEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	return e.embed(text), nil
}

func (e *MockEmbedder) embed(text string) []float32 {
	vec := make([]float32, e.dimension)
	for i, r := range text {
		vec[i%e.dimension] += float32(r) / 1000.0
	}
	return vec
}

func (e *MockEmbedder) CheckAvailability(context.Context) error { return nil }
func (e *MockEmbedder) Dimension() int                          { return e.dimension }
func (e *MockEmbedder) ModelName() string                       { return "mock" }
func (e *MockEmbedder) Fingerprint() string                     { return "mock/mock" }
