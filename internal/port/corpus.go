package port

// CorpusProvider supplies the note files to index. The filesystem adapter is
// the default implementation; the interface keeps the orchestrator decoupled
// from how the host stores notes.
type CorpusProvider interface {
	// ListFiles returns every note file in the corpus.
	ListFiles() ([]FileInfo, error)

	// ReadFile returns the text content of one note.
	ReadFile(path string) (string, error)
}

type FileInfo struct {
	Path    string
	ModTime int64
	Size    int64
}
