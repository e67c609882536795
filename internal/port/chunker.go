package port

import "noterag/internal/domain"

type Chunker interface {
	// Split divides preprocessed note text into overlapping pieces.
	// Empty or whitespace-only input yields zero pieces.
	Split(text string) []domain.Piece
}
