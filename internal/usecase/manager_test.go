package usecase

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"noterag/internal/adapter/cache"
	"noterag/internal/adapter/chunker"
	"noterag/internal/adapter/memstore"
	"noterag/internal/adapter/snapshot"
	"noterag/internal/domain"
	"noterag/internal/port"
)

// stubCorpus serves notes from a mutable in-memory map.
type stubCorpus struct {
	mu    sync.Mutex
	files map[string]string
}

func newStubCorpus(files map[string]string) *stubCorpus {
	return &stubCorpus{files: files}
}

func (c *stubCorpus) ListFiles() ([]port.FileInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	paths := make([]string, 0, len(c.files))
	for p := range c.files {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	files := make([]port.FileInfo, len(paths))
	for i, p := range paths {
		files[i] = port.FileInfo{Path: p, Size: int64(len(c.files[p]))}
	}
	return files, nil
}

func (c *stubCorpus) ReadFile(path string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	content, ok := c.files[path]
	if !ok {
		return "", os.ErrNotExist
	}
	return content, nil
}

func (c *stubCorpus) set(path, content string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.files[path] = content
}

func (c *stubCorpus) remove(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.files, path)
}

// stubEmbedder produces deterministic vectors and records every document
// text it embeds, so tests can assert exactly what was re-embedded.
type stubEmbedder struct {
	mu          sync.Mutex
	embedded    []string
	fingerprint string
	dim         int
	vectors     map[string][]float32
	checkErr    error
	docErr      error
}

func newStubEmbedder() *stubEmbedder {
	return &stubEmbedder{fingerprint: "stub/stub-embed", dim: 4}
}

func (e *stubEmbedder) embed(text string) []float32 {
	if v, ok := e.vectors[text]; ok {
		return v
	}
	vec := make([]float32, e.dim)
	for i, r := range text {
		vec[i%e.dim] += float32(r) / 1000.0
	}
	return vec
}

func (e *stubEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	if e.docErr != nil {
		return nil, e.docErr
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([][]float32, len(texts))
	for i, t := range texts {
		e.embedded = append(e.embedded, t)
		out[i] = e.embed(t)
	}
	return out, nil
}

func (e *stubEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	return e.embed(text), nil
}

func (e *stubEmbedder) CheckAvailability(context.Context) error { return e.checkErr }
func (e *stubEmbedder) Dimension() int                          { return e.dim }
func (e *stubEmbedder) ModelName() string                       { return "stub-embed" }
func (e *stubEmbedder) Fingerprint() string                     { return e.fingerprint }

func (e *stubEmbedder) embeddedTexts() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.embedded))
	copy(out, e.embedded)
	return out
}

func (e *stubEmbedder) resetCount() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.embedded = nil
}

// stubGenerator returns a canned reply and records the prompt it saw.
type stubGenerator struct {
	reply      string
	lastSystem string
	lastPrompt string
}

func (g *stubGenerator) Generate(_ context.Context, system, prompt string) (string, error) {
	g.lastSystem = system
	g.lastPrompt = prompt
	return g.reply, nil
}

func (g *stubGenerator) GenerateStream(_ context.Context, system, prompt string, onDelta func(string) error) error {
	g.lastSystem = system
	g.lastPrompt = prompt
	half := len(g.reply) / 2
	if err := onDelta(g.reply[:half]); err != nil {
		return err
	}
	return onDelta(g.reply[half:])
}

func (g *stubGenerator) ModelName() string { return "stub-gen" }

type fixture struct {
	corpus   *stubCorpus
	embed    *stubEmbedder
	gen      *stubGenerator
	mgr      *Manager
	snapPath string
}

func newFixture(t *testing.T, files map[string]string, adjust func(*ManagerParams)) *fixture {
	t.Helper()

	f := &fixture{
		corpus:   newStubCorpus(files),
		embed:    newStubEmbedder(),
		gen:      &stubGenerator{reply: "a grounded answer"},
		snapPath: filepath.Join(t.TempDir(), "embeddings.json"),
	}

	params := ManagerParams{
		Corpus:    f.corpus,
		Embedder:  f.embed,
		Chunker:   chunker.NewTextChunker(0, 0),
		Store:     memstore.NewVectorStore(),
		Snapshots: snapshot.NewStore(f.snapPath, nil),
		Generator: f.gen,
		TopK:      4,
	}
	if adjust != nil {
		adjust(&params)
	}

	f.mgr = NewManager(params)
	require.NoError(t, f.mgr.Initialize())
	return f
}

func threeNotes() map[string]string {
	return map[string]string{
		"a.md": "alpha note about gardens",
		"b.md": "beta note about compilers",
		"c.md": "gamma note about sailing",
	}
}

func TestIndexAllInitialRun(t *testing.T) {
	f := newFixture(t, threeNotes(), nil)

	result, err := f.mgr.IndexAll(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, 3, result.FilesIndexed)
	assert.Equal(t, 0, result.FilesSkipped)
	assert.Equal(t, 3, result.ChunksCreated)
	assert.Empty(t, result.Errors)

	_, err = os.Stat(f.snapPath)
	assert.NoError(t, err, "a snapshot must exist after the run")
}

func TestIndexAllIdempotent(t *testing.T) {
	f := newFixture(t, threeNotes(), nil)
	ctx := context.Background()

	_, err := f.mgr.IndexAll(ctx, nil)
	require.NoError(t, err)
	f.embed.resetCount()

	result, err := f.mgr.IndexAll(ctx, nil)
	require.NoError(t, err)

	assert.Equal(t, 0, result.FilesIndexed)
	assert.Equal(t, 3, result.FilesSkipped)
	assert.Empty(t, f.embed.embeddedTexts(), "an unchanged corpus must not be re-embedded")
}

func TestIndexAllReindexesOnlyChangedFiles(t *testing.T) {
	f := newFixture(t, threeNotes(), nil)
	ctx := context.Background()

	_, err := f.mgr.IndexAll(ctx, nil)
	require.NoError(t, err)
	f.embed.resetCount()

	f.corpus.set("a.md", "alpha note, heavily rewritten")
	f.corpus.set("b.md", "beta note, also rewritten")

	var progress []float64
	result, err := f.mgr.IndexAll(ctx, func(p float64) { progress = append(progress, p) })
	require.NoError(t, err)

	assert.Equal(t, 2, result.FilesIndexed)
	assert.Equal(t, 1, result.FilesSkipped)

	texts := f.embed.embeddedTexts()
	assert.Len(t, texts, 2)
	for _, text := range texts {
		assert.NotContains(t, text, "gamma", "the unchanged note must not be re-embedded")
	}

	require.NotEmpty(t, progress)
	for i := 1; i < len(progress); i++ {
		assert.GreaterOrEqual(t, progress[i], progress[i-1])
	}
	assert.Equal(t, 1.0, progress[len(progress)-1])
}

func TestIndexAllProgressReachesOneWhenNothingToDo(t *testing.T) {
	f := newFixture(t, threeNotes(), nil)
	ctx := context.Background()

	_, err := f.mgr.IndexAll(ctx, nil)
	require.NoError(t, err)

	var progress []float64
	_, err = f.mgr.IndexAll(ctx, func(p float64) { progress = append(progress, p) })
	require.NoError(t, err)
	require.NotEmpty(t, progress)
	assert.Equal(t, 1.0, progress[len(progress)-1])
}

func TestIndexAllRemovesVanishedFiles(t *testing.T) {
	f := newFixture(t, threeNotes(), nil)
	ctx := context.Background()

	_, err := f.mgr.IndexAll(ctx, nil)
	require.NoError(t, err)

	f.corpus.remove("b.md")
	result, err := f.mgr.IndexAll(ctx, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, result.FilesRemoved)
	assert.Equal(t, 2, result.FilesSkipped)

	hits, err := f.mgr.Search(ctx, "beta note about compilers", 10)
	require.NoError(t, err)
	for _, h := range hits {
		assert.NotEqual(t, "b.md", h.Chunk.SourcePath)
	}
}

func TestIndexAllBusy(t *testing.T) {
	f := newFixture(t, threeNotes(), nil)

	f.mgr.indexing.Store(true)
	defer f.mgr.indexing.Store(false)

	_, err := f.mgr.IndexAll(context.Background(), nil)
	assert.ErrorIs(t, err, domain.ErrIndexBusy)
}

func TestIndexAllProviderUnavailableFailsFast(t *testing.T) {
	f := newFixture(t, threeNotes(), nil)
	f.embed.checkErr = domain.ErrProviderUnavailable

	_, err := f.mgr.IndexAll(context.Background(), nil)
	assert.ErrorIs(t, err, domain.ErrProviderUnavailable)
	assert.Empty(t, f.embed.embeddedTexts())
	assert.False(t, f.mgr.Indexing(), "the busy flag must clear after a failed run")
}

func TestIndexAllPerFileFailureSkips(t *testing.T) {
	f := newFixture(t, threeNotes(), nil)
	ctx := context.Background()

	f.embed.docErr = &domain.EmbeddingError{Index: 0, Err: assert.AnError}

	result, err := f.mgr.IndexAll(ctx, nil)
	require.NoError(t, err, "per-file failures must not abort the run")
	assert.Equal(t, 3, result.FilesFailed)
	assert.Len(t, result.Errors, 3)

	// A later run with a healthy provider picks the failed files back up.
	f.embed.docErr = nil
	result, err = f.mgr.IndexAll(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, result.FilesIndexed, "failed files must be retried next run")
}

func TestIndexAllCancelled(t *testing.T) {
	f := newFixture(t, threeNotes(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.mgr.IndexAll(ctx, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, f.mgr.Indexing())
}

func TestIndexAllFingerprintChangeForcesReindex(t *testing.T) {
	f := newFixture(t, threeNotes(), nil)
	ctx := context.Background()

	_, err := f.mgr.IndexAll(ctx, nil)
	require.NoError(t, err)

	// Same snapshot, different embedding model.
	f.embed.fingerprint = "stub/other-model"
	f.embed.resetCount()

	result, err := f.mgr.IndexAll(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, result.FilesIndexed, "a model switch must re-embed everything")
	assert.Len(t, f.embed.embeddedTexts(), 3)
}

func TestInitializeRestoresSnapshot(t *testing.T) {
	f := newFixture(t, threeNotes(), nil)
	ctx := context.Background()

	_, err := f.mgr.IndexAll(ctx, nil)
	require.NoError(t, err)

	// A fresh manager over the same snapshot file answers without indexing.
	restored := NewManager(ManagerParams{
		Corpus:    f.corpus,
		Embedder:  newStubEmbedder(),
		Chunker:   chunker.NewTextChunker(0, 0),
		Store:     memstore.NewVectorStore(),
		Snapshots: snapshot.NewStore(f.snapPath, nil),
		Generator: f.gen,
	})
	require.NoError(t, restored.Initialize())

	hits, err := restored.Search(ctx, "alpha note about gardens", 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "a.md", hits[0].Chunk.SourcePath)
}

func TestInitializeCorruptSnapshotStartsEmpty(t *testing.T) {
	snapPath := filepath.Join(t.TempDir(), "embeddings.json")
	require.NoError(t, os.WriteFile(snapPath, []byte("{{{ not json"), 0o644))

	mgr := NewManager(ManagerParams{
		Corpus:    newStubCorpus(threeNotes()),
		Embedder:  newStubEmbedder(),
		Chunker:   chunker.NewTextChunker(0, 0),
		Store:     memstore.NewVectorStore(),
		Snapshots: snapshot.NewStore(snapPath, nil),
		Generator: &stubGenerator{},
	})
	require.NoError(t, mgr.Initialize(), "a corrupt snapshot must not fail startup")

	_, err := mgr.Search(context.Background(), "anything", 1)
	assert.ErrorIs(t, err, domain.ErrNotIndexed)
}

func TestInitializeFingerprintMismatchDiscards(t *testing.T) {
	f := newFixture(t, threeNotes(), nil)
	ctx := context.Background()

	_, err := f.mgr.IndexAll(ctx, nil)
	require.NoError(t, err)

	other := newStubEmbedder()
	other.fingerprint = "stub/different-model"

	mgr := NewManager(ManagerParams{
		Corpus:    f.corpus,
		Embedder:  other,
		Chunker:   chunker.NewTextChunker(0, 0),
		Store:     memstore.NewVectorStore(),
		Snapshots: snapshot.NewStore(f.snapPath, nil),
		Generator: f.gen,
	})
	require.NoError(t, mgr.Initialize())

	_, err = mgr.Search(ctx, "alpha", 1)
	assert.ErrorIs(t, err, domain.ErrNotIndexed,
		"a snapshot from another embedding model must not be restored")
}

func TestInitializeManifestMissingChunkDropsEntry(t *testing.T) {
	snapPath := filepath.Join(t.TempDir(), "embeddings.json")
	store := snapshot.NewStore(snapPath, nil)

	manifest := domain.Manifest{
		Provider:  "stub",
		Model:     "stub-embed",
		Dimension: 4,
		IndexedFiles: map[string]domain.FileEntry{
			"a.md": {ContentHash: "h", ChunkIDs: []string{"ghost"}},
		},
	}
	require.NoError(t, store.Save(manifest, nil, nil))

	mgr := NewManager(ManagerParams{
		Corpus:    newStubCorpus(threeNotes()),
		Embedder:  newStubEmbedder(),
		Chunker:   chunker.NewTextChunker(0, 0),
		Store:     memstore.NewVectorStore(),
		Snapshots: store,
		Generator: &stubGenerator{},
	})
	require.NoError(t, mgr.Initialize())

	assert.Empty(t, mgr.currentManifest().IndexedFiles,
		"an entry whose chunks did not load must be dropped so the file re-indexes")
}

func TestAskNotIndexed(t *testing.T) {
	f := newFixture(t, threeNotes(), nil)

	_, err := f.mgr.Ask(context.Background(), "what is alpha?")
	assert.ErrorIs(t, err, domain.ErrNotIndexed)
}

func TestAskReturnsSources(t *testing.T) {
	f := newFixture(t, threeNotes(), nil)
	ctx := context.Background()

	_, err := f.mgr.IndexAll(ctx, nil)
	require.NoError(t, err)

	answer, err := f.mgr.Ask(ctx, "alpha note about gardens")
	require.NoError(t, err)

	assert.Equal(t, "a grounded answer", answer.Text)
	assert.NotEmpty(t, answer.Sources)
	assert.Contains(t, answer.Sources, "a.md")
	assert.Contains(t, f.gen.lastPrompt, "[source: a.md]")
	assert.Contains(t, f.gen.lastPrompt, "alpha note about gardens")
}

func TestAskStripsReasoning(t *testing.T) {
	f := newFixture(t, threeNotes(), func(p *ManagerParams) {
		p.StripReasoning = true
	})
	ctx := context.Background()

	_, err := f.mgr.IndexAll(ctx, nil)
	require.NoError(t, err)

	f.gen.reply = "<think>scratch work</think>The real answer."
	answer, err := f.mgr.Ask(ctx, "alpha note about gardens")
	require.NoError(t, err)
	assert.Equal(t, "The real answer.", answer.Text)
}

func TestAskNoRelevantNotesYieldsEmptySources(t *testing.T) {
	f := newFixture(t, map[string]string{
		"a.md": "one",
		"b.md": "two",
	}, func(p *ManagerParams) {
		p.MinScore = 0.5
	})
	f.embed.vectors = map[string][]float32{
		"one":       {1, 0, 0, 0},
		"two":       {1, 0, 0, 0},
		"unrelated": {0, 1, 0, 0},
	}
	ctx := context.Background()

	_, err := f.mgr.IndexAll(ctx, nil)
	require.NoError(t, err)

	answer, err := f.mgr.Ask(ctx, "unrelated")
	require.NoError(t, err, "an off-topic question is not an error")
	assert.Empty(t, answer.Sources)
	assert.Contains(t, f.gen.lastPrompt, "(no relevant notes were found)")
}

func TestAskStream(t *testing.T) {
	f := newFixture(t, threeNotes(), nil)
	ctx := context.Background()

	_, err := f.mgr.IndexAll(ctx, nil)
	require.NoError(t, err)

	var sb strings.Builder
	sources, err := f.mgr.AskStream(ctx, "alpha note about gardens", func(delta string) error {
		sb.WriteString(delta)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "a grounded answer", sb.String())
	assert.Contains(t, sources, "a.md")
}

func TestEmbedCacheAvoidsDuplicateWork(t *testing.T) {
	embCache, err := cache.Open(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	defer embCache.Close()

	// Two notes with identical content: the second resolves from the cache.
	f := newFixture(t, map[string]string{
		"a.md": "the same text in both notes",
		"b.md": "the same text in both notes",
	}, func(p *ManagerParams) {
		p.Cache = embCache
	})

	_, err = f.mgr.IndexAll(context.Background(), nil)
	require.NoError(t, err)

	assert.Len(t, f.embed.embeddedTexts(), 1,
		"identical chunk text must be embedded once and served from the cache after")
	assert.Equal(t, 1, embCache.Len())
}

func TestClearIndex(t *testing.T) {
	f := newFixture(t, threeNotes(), nil)
	ctx := context.Background()

	_, err := f.mgr.IndexAll(ctx, nil)
	require.NoError(t, err)

	require.NoError(t, f.mgr.ClearIndex())

	_, err = f.mgr.Search(ctx, "alpha", 1)
	assert.ErrorIs(t, err, domain.ErrNotIndexed)

	_, err = os.Stat(f.snapPath)
	assert.True(t, os.IsNotExist(err), "the snapshot file must be gone")

	// The next run rebuilds from scratch.
	result, err := f.mgr.IndexAll(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, result.FilesIndexed)
}

func TestStats(t *testing.T) {
	f := newFixture(t, threeNotes(), nil)
	ctx := context.Background()

	_, err := f.mgr.IndexAll(ctx, nil)
	require.NoError(t, err)

	stats, err := f.mgr.Stats()
	require.NoError(t, err)
	assert.Equal(t, "stub", stats.Provider)
	assert.Equal(t, "stub-embed", stats.Model)
	assert.Equal(t, 3, stats.IndexedFiles)
	assert.Equal(t, 3, stats.TotalEmbeddings)
}
