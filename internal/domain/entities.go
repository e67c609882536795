package domain

import "time"

// Chunk is the unit of embedding and retrieval: a bounded segment of one
// source note. Chunks are immutable once created; re-indexing a changed file
// replaces its chunks wholesale.
type Chunk struct {
	ID          string
	SourcePath  string
	Ordinal     int
	Text        string
	ContentHash string
	CreatedAt   time.Time
}

// Piece is a chunker output before it is bound to a source file.
type Piece struct {
	Text    string
	Ordinal int
}

type ScoredChunk struct {
	Chunk Chunk
	Score float64
}

// Answer is the result of a grounded query: the generated text plus the
// source paths of the retrieved context, in retrieval order.
type Answer struct {
	Text    string
	Sources []string
}

// FileEntry is the manifest record for one indexed source file.
type FileEntry struct {
	ContentHash   string    `json:"content_hash"`
	ChunkIDs      []string  `json:"chunk_ids"`
	LastIndexedAt time.Time `json:"last_indexed_at"`
}

// Manifest tracks what has been indexed, under which embedding configuration.
// A fingerprint change invalidates the whole index.
type Manifest struct {
	Provider     string               `json:"provider"`
	Model        string               `json:"model"`
	Dimension    int                  `json:"dimension"`
	IndexedFiles map[string]FileEntry `json:"indexed_files"`
}

// Fingerprint identifies the (provider, model) pair the index was built with.
func (m Manifest) Fingerprint() string {
	return m.Provider + "/" + m.Model
}

func (m Manifest) TotalChunks() int {
	n := 0
	for _, e := range m.IndexedFiles {
		n += len(e.ChunkIDs)
	}
	return n
}

// StorageStats summarizes the persisted index for diagnostics.
type StorageStats struct {
	TotalEmbeddings int
	IndexedFiles    int
	LastIndexed     time.Time
	StorageBytes    int64
	Provider        string
	Model           string
}

// IndexResult aggregates the outcome of one indexing run. Per-file failures
// are collected here rather than aborting the run.
type IndexResult struct {
	FilesIndexed  int
	FilesSkipped  int
	FilesRemoved  int
	FilesFailed   int
	ChunksCreated int
	Errors        []string
}
