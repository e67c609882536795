package snapshot

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"noterag/internal/domain"
)

// SchemaVersion is the snapshot format version. A persisted snapshot with a
// different version is treated as absent, which triggers a full reindex.
const SchemaVersion = 1

// Store persists the vector store and manifest as a single JSON document.
// Writes go to a temp file first and are renamed into place, so a crash
// mid-write never corrupts the previous snapshot.
type Store struct {
	path string
	log  *slog.Logger
}

func NewStore(path string, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{path: path, log: log}
}

type snapshotFile struct {
	SchemaVersion int                         `json:"schema_version"`
	Provider      string                      `json:"provider"`
	Model         string                      `json:"model"`
	Dimension     int                         `json:"dimension"`
	SavedAt       time.Time                   `json:"saved_at"`
	IndexedFiles  map[string]domain.FileEntry `json:"indexed_files"`
	Chunks        []chunkRecord               `json:"chunks"`
}

type chunkRecord struct {
	ID          string    `json:"id"`
	SourcePath  string    `json:"source_path"`
	Ordinal     int       `json:"ordinal"`
	Text        string    `json:"text"`
	ContentHash string    `json:"content_hash"`
	CreatedAt   time.Time `json:"created_at"`
	Vector      []float32 `json:"vector"`
}

// snapshotHeader mirrors snapshotFile without the chunk payload, so Stats
// can decode manifest fields cheaply.
type snapshotHeader struct {
	SchemaVersion int                         `json:"schema_version"`
	Provider      string                      `json:"provider"`
	Model         string                      `json:"model"`
	SavedAt       time.Time                   `json:"saved_at"`
	IndexedFiles  map[string]domain.FileEntry `json:"indexed_files"`
}

func (s *Store) Save(manifest domain.Manifest, chunks []domain.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("chunk/vector count mismatch: %d vs %d", len(chunks), len(vectors))
	}

	file := snapshotFile{
		SchemaVersion: SchemaVersion,
		Provider:      manifest.Provider,
		Model:         manifest.Model,
		Dimension:     manifest.Dimension,
		SavedAt:       time.Now().UTC(),
		IndexedFiles:  manifest.IndexedFiles,
		Chunks:        make([]chunkRecord, len(chunks)),
	}

	for i, c := range chunks {
		file.Chunks[i] = chunkRecord{
			ID:          c.ID,
			SourcePath:  c.SourcePath,
			Ordinal:     c.Ordinal,
			Text:        c.Text,
			ContentHash: c.ContentHash,
			CreatedAt:   c.CreatedAt,
			Vector:      vectors[i],
		}
	}

	data, err := json.Marshal(file)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace snapshot: %w", err)
	}

	return nil
}

func (s *Store) Load() (domain.Manifest, []domain.Chunk, [][]float32, error) {
	var manifest domain.Manifest

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return manifest, nil, nil, domain.ErrSnapshotNotFound
		}
		return manifest, nil, nil, fmt.Errorf("read snapshot: %w", err)
	}

	var file snapshotFile
	if err := json.Unmarshal(data, &file); err != nil {
		s.log.Warn("snapshot is corrupt, discarding", "path", s.path, "err", err)
		return manifest, nil, nil, domain.ErrSnapshotNotFound
	}

	if file.SchemaVersion != SchemaVersion {
		s.log.Warn("snapshot schema version mismatch, discarding",
			"have", file.SchemaVersion, "want", SchemaVersion)
		return manifest, nil, nil, domain.ErrSnapshotNotFound
	}

	manifest = domain.Manifest{
		Provider:     file.Provider,
		Model:        file.Model,
		Dimension:    file.Dimension,
		IndexedFiles: file.IndexedFiles,
	}
	if manifest.IndexedFiles == nil {
		manifest.IndexedFiles = make(map[string]domain.FileEntry)
	}

	chunks := make([]domain.Chunk, len(file.Chunks))
	vectors := make([][]float32, len(file.Chunks))
	for i, r := range file.Chunks {
		chunks[i] = domain.Chunk{
			ID:          r.ID,
			SourcePath:  r.SourcePath,
			Ordinal:     r.Ordinal,
			Text:        r.Text,
			ContentHash: r.ContentHash,
			CreatedAt:   r.CreatedAt,
		}
		vectors[i] = r.Vector
	}

	return manifest, chunks, vectors, nil
}

// Stats reads snapshot diagnostics. The chunk payload dominates the file but
// only header fields and the file size are needed, so chunk vectors are left
// undecoded.
func (s *Store) Stats() (domain.StorageStats, error) {
	var stats domain.StorageStats

	info, err := os.Stat(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return stats, nil
		}
		return stats, err
	}
	stats.StorageBytes = info.Size()

	data, err := os.ReadFile(s.path)
	if err != nil {
		return stats, err
	}

	var header snapshotHeader
	if err := json.Unmarshal(data, &header); err != nil {
		return stats, nil
	}

	stats.Provider = header.Provider
	stats.Model = header.Model
	stats.IndexedFiles = len(header.IndexedFiles)
	stats.LastIndexed = header.SavedAt
	for _, e := range header.IndexedFiles {
		stats.TotalEmbeddings += len(e.ChunkIDs)
	}
	return stats, nil
}

func (s *Store) Clear() error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
