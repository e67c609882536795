package port

import "noterag/internal/domain"

// SnapshotStore persists the vector store and its manifest as one durable
// snapshot.
type SnapshotStore interface {
	// Save atomically replaces the snapshot with the given state.
	Save(manifest domain.Manifest, chunks []domain.Chunk, vectors [][]float32) error

	// Load restores the last snapshot. A missing, schema-stale, or corrupt
	// snapshot returns domain.ErrSnapshotNotFound.
	Load() (domain.Manifest, []domain.Chunk, [][]float32, error)

	// Stats reports snapshot diagnostics without decoding vector payloads.
	Stats() (domain.StorageStats, error)

	// Clear removes the snapshot.
	Clear() error
}
