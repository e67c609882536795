package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrProviderUnavailable means the embedding server cannot be reached.
	// Surfaced before an index run starts; aborts the whole run.
	ErrProviderUnavailable = errors.New("embedding provider unavailable")

	// ErrModelNotFound means the server is up but the configured model is
	// not installed.
	ErrModelNotFound = errors.New("embedding model not found")

	// ErrSnapshotNotFound covers a missing, stale-schema, or corrupt
	// snapshot. The caller proceeds with an empty store and reindexes.
	ErrSnapshotNotFound = errors.New("snapshot not found")

	// ErrIndexBusy is returned when an index run is requested while one is
	// already in flight.
	ErrIndexBusy = errors.New("an index run is already in progress")

	// ErrNotIndexed is returned for queries against an empty store.
	ErrNotIndexed = errors.New("no notes indexed yet; run an index first")
)

// EmbeddingError reports a single-item failure within a batch embedding
// call. Index identifies the failed input so the orchestrator can skip the
// item and continue.
type EmbeddingError struct {
	Index int
	Err   error
}

func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("embedding item %d failed: %v", e.Index, e.Err)
}

func (e *EmbeddingError) Unwrap() error { return e.Err }

// DimensionError reports a vector whose length disagrees with the store's
// established dimensionality. This is a configuration inconsistency and
// forces a full reindex.
type DimensionError struct {
	Want int
	Got  int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("vector dimension mismatch: expected %d, got %d", e.Want, e.Got)
}
