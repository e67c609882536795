package memstore

import (
	"math"
	"sort"
	"sync"

	"noterag/internal/domain"
)

// VectorStore holds the session's chunks and embeddings in memory. Search is
// a brute-force cosine scan; the corpus is one user's notes, thousands of
// chunks at most, so an ANN structure would buy nothing.
//
// The first AddChunks call establishes the store's dimensionality; every
// later vector must match it.
type VectorStore struct {
	mu        sync.RWMutex
	chunks    []domain.Chunk
	vectors   [][]float32
	byPath    map[string][]int
	dimension int
}

func NewVectorStore() *VectorStore {
	return &VectorStore{
		byPath: make(map[string][]int),
	}
}

// AddChunks appends chunk/vector pairs. Returns a *domain.DimensionError if
// any vector disagrees with the established dimensionality.
func (s *VectorStore) AddChunks(chunks []domain.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return &domain.DimensionError{Want: len(chunks), Got: len(vectors)}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, vec := range vectors {
		if s.dimension == 0 && len(s.vectors) == 0 {
			s.dimension = len(vec)
			continue
		}
		if len(vec) != s.dimension {
			return &domain.DimensionError{Want: s.dimension, Got: len(vec)}
		}
	}

	for i := range chunks {
		idx := len(s.chunks)
		s.chunks = append(s.chunks, chunks[i])
		s.vectors = append(s.vectors, vectors[i])
		s.byPath[chunks[i].SourcePath] = append(s.byPath[chunks[i].SourcePath], idx)
	}

	return nil
}

// RemoveBySourcePath drops every chunk belonging to one source file. Called
// before re-indexing a changed file so stale chunks never shadow fresh ones.
func (s *VectorStore) RemoveBySourcePath(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	indices, ok := s.byPath[path]
	if !ok {
		return 0
	}

	drop := make(map[int]bool, len(indices))
	for _, i := range indices {
		drop[i] = true
	}

	chunks := make([]domain.Chunk, 0, len(s.chunks)-len(indices))
	vectors := make([][]float32, 0, len(s.vectors)-len(indices))
	for i := range s.chunks {
		if !drop[i] {
			chunks = append(chunks, s.chunks[i])
			vectors = append(vectors, s.vectors[i])
		}
	}

	s.chunks = chunks
	s.vectors = vectors
	s.rebuildPathIndex()

	if len(s.chunks) == 0 {
		s.dimension = 0
	}

	return len(indices)
}

// Search returns the k highest-scoring chunks by cosine similarity,
// descending, ties broken by most recent CreatedAt. Fewer than k chunks in
// the store returns all of them.
func (s *VectorStore) Search(query []float32, k int) ([]domain.ScoredChunk, error) {
	if k < 1 {
		k = 1
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.chunks) == 0 {
		return nil, nil
	}
	if len(query) != s.dimension {
		return nil, &domain.DimensionError{Want: s.dimension, Got: len(query)}
	}

	scored := make([]domain.ScoredChunk, len(s.chunks))
	for i := range s.chunks {
		scored[i] = domain.ScoredChunk{
			Chunk: s.chunks[i],
			Score: cosineSimilarity(query, s.vectors[i]),
		}
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Chunk.CreatedAt.After(scored[j].Chunk.CreatedAt)
	})

	if k > len(scored) {
		k = len(scored)
	}
	return scored[:k], nil
}

// Snapshot returns copies of the current chunk and vector slices for
// persistence. Chunk order is preserved.
func (s *VectorStore) Snapshot() ([]domain.Chunk, [][]float32) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	chunks := make([]domain.Chunk, len(s.chunks))
	copy(chunks, s.chunks)
	vectors := make([][]float32, len(s.vectors))
	copy(vectors, s.vectors)
	return chunks, vectors
}

func (s *VectorStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks)
}

func (s *VectorStore) Dimension() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dimension
}

// ChunkIDs reports the set of chunk ids present, used to validate the
// manifest against the store after a snapshot load.
func (s *VectorStore) ChunkIDs() map[string]bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make(map[string]bool, len(s.chunks))
	for _, c := range s.chunks {
		ids[c.ID] = true
	}
	return ids
}

func (s *VectorStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.chunks = nil
	s.vectors = nil
	s.byPath = make(map[string][]int)
	s.dimension = 0
}

func (s *VectorStore) rebuildPathIndex() {
	s.byPath = make(map[string][]int, len(s.byPath))
	for i, c := range s.chunks {
		s.byPath[c.SourcePath] = append(s.byPath[c.SourcePath], i)
	}
}

// cosineSimilarity is dot(a,b) / (|a| * |b|); zero for zero-norm inputs.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
