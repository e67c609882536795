package corpus

import (
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"

	"noterag/internal/port"
)

// Walker lists note files under a root directory, filtered by doublestar
// include/exclude patterns. Paths returned are relative to the root so the
// manifest stays stable when the vault directory moves.
type Walker struct {
	root     string
	includes []string
	excludes []string
}

func NewWalker(root string, includes, excludes []string) *Walker {
	if len(includes) == 0 {
		includes = []string{"**/*.md"}
	}
	return &Walker{
		root:     root,
		includes: includes,
		excludes: excludes,
	}
}

func (w *Walker) ListFiles() ([]port.FileInfo, error) {
	root, err := filepath.Abs(w.root)
	if err != nil {
		return nil, err
	}

	var files []port.FileInfo
	err = filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		relPath, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		relPath = filepath.ToSlash(relPath)

		if info.IsDir() {
			if w.shouldExclude(relPath + "/") {
				return filepath.SkipDir
			}
			return nil
		}

		if w.shouldInclude(relPath) && !w.shouldExclude(relPath) {
			files = append(files, port.FileInfo{
				Path:    relPath,
				ModTime: info.ModTime().Unix(),
				Size:    info.Size(),
			})
		}

		return nil
	})

	return files, err
}

func (w *Walker) ReadFile(path string) (string, error) {
	data, err := os.ReadFile(filepath.Join(w.root, filepath.FromSlash(path)))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Root returns the corpus root directory.
func (w *Walker) Root() string {
	return w.root
}

func (w *Walker) shouldInclude(path string) bool {
	for _, pattern := range w.includes {
		matched, err := doublestar.Match(pattern, path)
		if err == nil && matched {
			return true
		}
	}
	return false
}

func (w *Walker) shouldExclude(path string) bool {
	for _, pattern := range w.excludes {
		matched, err := doublestar.Match(pattern, path)
		if err == nil && matched {
			return true
		}
	}
	return false
}
