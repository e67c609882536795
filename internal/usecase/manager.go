package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"noterag/config"
	"noterag/internal/adapter/cache"
	"noterag/internal/adapter/llm"
	"noterag/internal/adapter/memstore"
	"noterag/internal/domain"
	"noterag/internal/port"
)

// Manager orchestrates the index pipeline and the query path. It owns the
// vector store and the manifest; nothing above it touches either directly.
//
// One index run at a time: a second IndexAll while one is in flight returns
// domain.ErrIndexBusy. Queries may run during a run and see a briefly stale
// store; the store's own lock keeps them consistent.
type Manager struct {
	corpus    port.CorpusProvider
	embedder  port.EmbeddingProvider
	chunker   port.Chunker
	store     *memstore.VectorStore
	snapshots port.SnapshotStore
	generator port.Generator
	embCache  *cache.EmbedCache // optional
	personas  *config.PersonaStore
	log       *slog.Logger

	topK           int
	minScore       float64
	stripReasoning bool
	markers        []llm.MarkerPair

	indexing atomic.Bool

	mu       sync.Mutex // guards manifest
	manifest domain.Manifest
}

// ManagerParams collects the Manager's collaborators.
type ManagerParams struct {
	Corpus    port.CorpusProvider
	Embedder  port.EmbeddingProvider
	Chunker   port.Chunker
	Store     *memstore.VectorStore
	Snapshots port.SnapshotStore
	Generator port.Generator
	Cache     *cache.EmbedCache
	Personas  *config.PersonaStore
	Logger    *slog.Logger

	TopK           int
	MinScore       float64 // drop hits scoring below this (0 disables)
	StripReasoning bool
	Markers        []llm.MarkerPair
}

func NewManager(p ManagerParams) *Manager {
	if p.Logger == nil {
		p.Logger = slog.Default()
	}
	if p.TopK <= 0 {
		p.TopK = 4
	}
	if len(p.Markers) == 0 {
		p.Markers = llm.DefaultMarkers
	}
	return &Manager{
		corpus:         p.Corpus,
		embedder:       p.Embedder,
		chunker:        p.Chunker,
		store:          p.Store,
		snapshots:      p.Snapshots,
		generator:      p.Generator,
		embCache:       p.Cache,
		personas:       p.Personas,
		log:            p.Logger,
		topK:           p.TopK,
		minScore:       p.MinScore,
		stripReasoning: p.StripReasoning,
		markers:        p.Markers,
	}
}

// Initialize rebuilds the in-memory store from the last snapshot. A missing
// or unreadable snapshot starts the session empty; a snapshot built under a
// different embedding configuration is discarded so vectors of different
// dimensionality never mix.
func (m *Manager) Initialize() error {
	manifest, chunks, vectors, err := m.snapshots.Load()
	if err != nil {
		if errors.Is(err, domain.ErrSnapshotNotFound) {
			m.setManifest(emptyManifest(m.embedder))
			return nil
		}
		return fmt.Errorf("load snapshot: %w", err)
	}

	if manifest.Fingerprint() != m.embedder.Fingerprint() {
		m.log.Info("embedding configuration changed, discarding index",
			"had", manifest.Fingerprint(), "want", m.embedder.Fingerprint())
		m.setManifest(emptyManifest(m.embedder))
		return nil
	}

	if err := m.store.AddChunks(chunks, vectors); err != nil {
		// Mixed dimensions inside the snapshot: unusable, start over.
		m.log.Warn("snapshot vectors are inconsistent, discarding index", "err", err)
		m.store.Clear()
		m.setManifest(emptyManifest(m.embedder))
		return nil
	}

	// Manifest entries must reference chunks that actually loaded; drop any
	// that don't so the next run re-indexes them.
	present := m.store.ChunkIDs()
	for path, entry := range manifest.IndexedFiles {
		for _, id := range entry.ChunkIDs {
			if !present[id] {
				m.log.Warn("manifest references missing chunk, re-indexing file",
					"path", path, "chunk", id)
				m.store.RemoveBySourcePath(path)
				delete(manifest.IndexedFiles, path)
				break
			}
		}
	}

	m.setManifest(manifest)
	m.log.Info("index restored", "files", len(manifest.IndexedFiles), "chunks", m.store.Count())
	return nil
}

// queuedFile is a corpus file that needs (re-)embedding.
type queuedFile struct {
	path    string
	content string
	hash    string
}

// IndexAll runs one full incremental pass: scan the corpus, re-embed
// changed and new files, drop vanished ones, persist. Unchanged files are
// never re-embedded. Per-file failures are logged and skipped; the run
// continues. onProgress, if non-nil, receives the completed fraction in
// [0, 1].
func (m *Manager) IndexAll(ctx context.Context, onProgress func(float64)) (*domain.IndexResult, error) {
	if !m.indexing.CompareAndSwap(false, true) {
		return nil, domain.ErrIndexBusy
	}
	defer m.indexing.Store(false)

	// Fail fast before touching anything; one actionable error beats one
	// error per chunk.
	if err := m.embedder.CheckAvailability(ctx); err != nil {
		return nil, err
	}

	manifest := m.currentManifest()
	if len(manifest.IndexedFiles) > 0 && manifest.Fingerprint() != m.embedder.Fingerprint() {
		m.log.Info("embedding configuration changed, forcing full reindex")
		m.store.Clear()
		manifest = emptyManifest(m.embedder)
	}

	result := &domain.IndexResult{}

	// Scanning.
	files, err := m.corpus.ListFiles()
	if err != nil {
		return nil, fmt.Errorf("list corpus files: %w", err)
	}

	// Diffing: queue changed and new files, note which paths survive.
	var queued []queuedFile
	seen := make(map[string]bool, len(files))
	for _, f := range files {
		seen[f.Path] = true

		content, err := m.corpus.ReadFile(f.Path)
		if err != nil {
			result.FilesFailed++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", f.Path, err))
			m.log.Warn("cannot read note, skipping", "path", f.Path, "err", err)
			continue
		}

		hash := hashContent(content)
		if entry, ok := manifest.IndexedFiles[f.Path]; ok && entry.ContentHash == hash {
			result.FilesSkipped++
			continue
		}

		queued = append(queued, queuedFile{path: f.Path, content: content, hash: hash})
	}

	// Files in the manifest but gone from the corpus.
	for path := range manifest.IndexedFiles {
		if !seen[path] {
			m.store.RemoveBySourcePath(path)
			delete(manifest.IndexedFiles, path)
			result.FilesRemoved++
		}
	}

	// Embedding.
	for i, f := range queued {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}

		entry, created, err := m.indexFile(ctx, f)
		if err != nil {
			if isFatalIndexError(err) {
				return result, err
			}
			result.FilesFailed++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", f.path, err))
			m.log.Warn("indexing note failed, skipping", "path", f.path, "err", err)
		} else {
			manifest.IndexedFiles[f.path] = entry
			result.FilesIndexed++
			result.ChunksCreated += created
		}

		if onProgress != nil {
			onProgress(float64(i+1) / float64(len(queued)))
		}
	}

	if onProgress != nil && len(queued) == 0 {
		onProgress(1.0)
	}

	// Persisting.
	manifest.Dimension = m.store.Dimension()
	chunks, vectors := m.store.Snapshot()
	if err := m.snapshots.Save(manifest, chunks, vectors); err != nil {
		return result, fmt.Errorf("persist snapshot: %w", err)
	}
	m.setManifest(manifest)

	m.log.Info("index run complete",
		"indexed", result.FilesIndexed,
		"skipped", result.FilesSkipped,
		"removed", result.FilesRemoved,
		"failed", result.FilesFailed,
		"chunks", result.ChunksCreated)

	return result, nil
}

// indexFile chunks and embeds one file, replacing its previous chunks.
func (m *Manager) indexFile(ctx context.Context, f queuedFile) (domain.FileEntry, int, error) {
	pieces := m.chunker.Split(f.content)

	now := time.Now().UTC()
	chunks := make([]domain.Chunk, len(pieces))
	for i, p := range pieces {
		chunks[i] = domain.Chunk{
			ID:          chunkID(f.path, p.Ordinal, f.hash),
			SourcePath:  f.path,
			Ordinal:     p.Ordinal,
			Text:        p.Text,
			ContentHash: f.hash,
			CreatedAt:   now,
		}
	}

	vectors, err := m.embedChunks(ctx, chunks)
	if err != nil {
		return domain.FileEntry{}, 0, err
	}

	m.store.RemoveBySourcePath(f.path)
	if err := m.store.AddChunks(chunks, vectors); err != nil {
		return domain.FileEntry{}, 0, err
	}

	entry := domain.FileEntry{
		ContentHash:   f.hash,
		ChunkIDs:      make([]string, len(chunks)),
		LastIndexedAt: now,
	}
	for i, c := range chunks {
		entry.ChunkIDs[i] = c.ID
	}
	return entry, len(chunks), nil
}

// embedChunks resolves vectors for the chunks, consulting the embedding
// cache first and batching the misses into one provider call.
func (m *Manager) embedChunks(ctx context.Context, chunks []domain.Chunk) ([][]float32, error) {
	fingerprint := m.embedder.Fingerprint()
	vectors := make([][]float32, len(chunks))

	var missTexts []string
	var missIdx []int
	for i, c := range chunks {
		key := hashContent(c.Text)
		if m.embCache != nil {
			if vec, ok := m.embCache.Get(fingerprint, key); ok {
				vectors[i] = vec
				continue
			}
		}
		missTexts = append(missTexts, c.Text)
		missIdx = append(missIdx, i)
	}

	if len(missTexts) > 0 {
		embedded, err := m.embedder.EmbedDocuments(ctx, missTexts)
		if err != nil {
			return nil, err
		}
		for j, vec := range embedded {
			i := missIdx[j]
			vectors[i] = vec
			if m.embCache != nil {
				if err := m.embCache.Put(fingerprint, hashContent(chunks[i].Text), vec); err != nil {
					m.log.Warn("embed cache write failed", "err", err)
				}
			}
		}
	}

	return vectors, nil
}

// Ask answers a question grounded in the indexed notes. The returned
// sources list the note paths whose chunks formed the context, in retrieval
// order; it is empty when nothing relevant was found, which is not an error.
func (m *Manager) Ask(ctx context.Context, question string) (domain.Answer, error) {
	hits, err := m.retrieve(ctx, question, m.topK)
	if err != nil {
		return domain.Answer{}, err
	}

	prompt := BuildPrompt(BuildContextBlock(hits), question)
	text, err := m.generator.Generate(ctx, m.systemPrompt(), prompt)
	if err != nil {
		return domain.Answer{}, fmt.Errorf("generate answer: %w", err)
	}

	if m.stripReasoning {
		text = llm.StripReasoning(text, m.markers)
	}

	return domain.Answer{
		Text:    text,
		Sources: sourcePaths(hits),
	}, nil
}

// AskStream is Ask with incremental output. Retrieval happens up front and
// the sources are returned immediately; deltas flow through onDelta until
// the stream ends or ctx is cancelled. Reasoning sections are not stripped
// from streamed output.
func (m *Manager) AskStream(ctx context.Context, question string, onDelta func(string) error) ([]string, error) {
	hits, err := m.retrieve(ctx, question, m.topK)
	if err != nil {
		return nil, err
	}

	prompt := BuildPrompt(BuildContextBlock(hits), question)
	if err := m.generator.GenerateStream(ctx, m.systemPrompt(), prompt, onDelta); err != nil {
		return nil, fmt.Errorf("generate answer: %w", err)
	}
	return sourcePaths(hits), nil
}

// Search returns the raw top-k chunks for a query, without generation.
func (m *Manager) Search(ctx context.Context, query string, k int) ([]domain.ScoredChunk, error) {
	if k <= 0 {
		k = m.topK
	}
	return m.retrieve(ctx, query, k)
}

func (m *Manager) retrieve(ctx context.Context, query string, k int) ([]domain.ScoredChunk, error) {
	if m.store.Count() == 0 {
		return nil, domain.ErrNotIndexed
	}

	qvec, err := m.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	hits, err := m.store.Search(qvec, k)
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}

	if m.minScore > 0 {
		kept := hits[:0]
		for _, h := range hits {
			if h.Score >= m.minScore {
				kept = append(kept, h)
			}
		}
		hits = kept
	}
	return hits, nil
}

func (m *Manager) systemPrompt() string {
	persona := ""
	if m.personas != nil {
		persona = m.personas.Active()
	}
	return GroundedSystemPrompt(persona)
}

// Stats reports snapshot diagnostics.
func (m *Manager) Stats() (domain.StorageStats, error) {
	return m.snapshots.Stats()
}

// ClearIndex wipes the store, the manifest, the snapshot, and the embedding
// cache.
func (m *Manager) ClearIndex() error {
	m.store.Clear()
	m.setManifest(emptyManifest(m.embedder))

	if err := m.snapshots.Clear(); err != nil {
		return fmt.Errorf("clear snapshot: %w", err)
	}
	if m.embCache != nil {
		if err := m.embCache.Clear(); err != nil {
			return fmt.Errorf("clear embed cache: %w", err)
		}
	}
	return nil
}

// Indexing reports whether an index run is currently in flight.
func (m *Manager) Indexing() bool {
	return m.indexing.Load()
}

func (m *Manager) currentManifest() domain.Manifest {
	m.mu.Lock()
	defer m.mu.Unlock()

	manifest := m.manifest
	files := make(map[string]domain.FileEntry, len(manifest.IndexedFiles))
	for k, v := range manifest.IndexedFiles {
		files[k] = v
	}
	manifest.IndexedFiles = files
	return manifest
}

func (m *Manager) setManifest(manifest domain.Manifest) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.manifest = manifest
}

func emptyManifest(embedder port.EmbeddingProvider) domain.Manifest {
	return domain.Manifest{
		Provider:     providerOf(embedder.Fingerprint()),
		Model:        embedder.ModelName(),
		Dimension:    embedder.Dimension(),
		IndexedFiles: make(map[string]domain.FileEntry),
	}
}

func providerOf(fingerprint string) string {
	for i := 0; i < len(fingerprint); i++ {
		if fingerprint[i] == '/' {
			return fingerprint[:i]
		}
	}
	return fingerprint
}

// isFatalIndexError separates configuration inconsistencies, which abort the
// run, from per-file failures, which are skipped.
func isFatalIndexError(err error) bool {
	var de *domain.DimensionError
	if errors.As(err, &de) {
		return true
	}
	return errors.Is(err, domain.ErrProviderUnavailable) ||
		errors.Is(err, domain.ErrModelNotFound) ||
		errors.Is(err, context.Canceled)
}

func hashContent(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

func chunkID(path string, ordinal int, contentHash string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%d:%s", path, ordinal, contentHash)))
	return hex.EncodeToString(sum[:8])
}

func sourcePaths(hits []domain.ScoredChunk) []string {
	var paths []string
	seen := make(map[string]bool)
	for _, h := range hits {
		if !seen[h.Chunk.SourcePath] {
			seen[h.Chunk.SourcePath] = true
			paths = append(paths, h.Chunk.SourcePath)
		}
	}
	return paths
}
