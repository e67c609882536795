package cli

import (
	"fmt"
	"log/slog"
	"os"

	"noterag/config"
	"noterag/internal/adapter/cache"
	"noterag/internal/adapter/chunker"
	"noterag/internal/adapter/corpus"
	"noterag/internal/adapter/embedding"
	"noterag/internal/adapter/llm"
	"noterag/internal/adapter/memstore"
	"noterag/internal/adapter/snapshot"
	"noterag/internal/port"
	"noterag/internal/usecase"
)

// newManager wires the engine together from configuration. The returned
// close function releases the embedding cache.
func newManager(dir string, cfg *config.Config) (*usecase.Manager, func(), error) {
	if err := config.EnsureDataDir(dir); err != nil {
		return nil, nil, fmt.Errorf("create data directory: %w", err)
	}

	embedder, err := newEmbedder(cfg)
	if err != nil {
		return nil, nil, err
	}

	generator, err := newGenerator(cfg)
	if err != nil {
		return nil, nil, err
	}

	embCache, err := cache.Open(config.CachePath(dir))
	if err != nil {
		// The cache is an optimization; run without it.
		slog.Warn("embedding cache unavailable", "err", err)
		embCache = nil
	}

	closeFn := func() {
		if embCache != nil {
			embCache.Close()
		}
	}

	mgr := usecase.NewManager(usecase.ManagerParams{
		Corpus:         corpus.NewWalker(dir, cfg.Corpus.Includes, cfg.Corpus.Excludes),
		Embedder:       embedder,
		Chunker:        chunker.NewTextChunker(cfg.Chunking.TargetSize, cfg.Chunking.Overlap),
		Store:          memstore.NewVectorStore(),
		Snapshots:      snapshot.NewStore(config.SnapshotPath(dir), slog.Default()),
		Generator:      generator,
		Cache:          embCache,
		Personas:       config.NewPersonaStore(cfg.Personas),
		TopK:           cfg.Retrieve.TopK,
		MinScore:       cfg.Retrieve.MinScore,
		StripReasoning: cfg.Generation.StripReasoning,
		Markers:        markerPairs(cfg.Generation.ReasoningMarkers),
	})

	if err := mgr.Initialize(); err != nil {
		closeFn()
		return nil, nil, fmt.Errorf("restore index: %w", err)
	}

	return mgr, closeFn, nil
}

func newEmbedder(cfg *config.Config) (port.EmbeddingProvider, error) {
	switch cfg.Embedding.Provider {
	case "ollama", "":
		return embedding.NewOllamaEmbedder(cfg.Embedding.Model, cfg.Embedding.BaseURL), nil
	case "openai":
		return embedding.NewOpenAIEmbedder(
			os.Getenv(cfg.Embedding.APIKeyEnv),
			cfg.Embedding.Model,
			cfg.Embedding.BaseURL,
		)
	case "mock":
		return embedding.NewMockEmbedder(64), nil
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Embedding.Provider)
	}
}

func newGenerator(cfg *config.Config) (port.Generator, error) {
	switch cfg.Generation.Provider {
	case "ollama", "":
		return llm.NewOllamaGenerator(cfg.Generation.Model, cfg.Generation.BaseURL), nil
	case "openai":
		return llm.NewOpenAIGenerator(
			os.Getenv(cfg.Generation.APIKeyEnv),
			cfg.Generation.Model,
			cfg.Generation.BaseURL,
		)
	default:
		return nil, fmt.Errorf("unsupported generation provider: %s", cfg.Generation.Provider)
	}
}

func markerPairs(pairs []config.MarkerPair) []llm.MarkerPair {
	out := make([]llm.MarkerPair, len(pairs))
	for i, p := range pairs {
		out[i] = llm.MarkerPair{Start: p.Start, End: p.End}
	}
	return out
}
