package chunker

import (
	"regexp"
	"strings"

	"noterag/internal/domain"
)

const (
	DefaultTargetSize = 1000
	DefaultOverlap    = 100
)

// TextChunker splits note text into overlapping segments sized for
// embedding. Cuts prefer paragraph breaks, then sentence ends, then word
// boundaries, falling back to a hard cut when the text has no usable
// boundary within the target window.
type TextChunker struct {
	targetSize int
	overlap    int
}

func NewTextChunker(targetSize, overlap int) *TextChunker {
	if targetSize <= 0 {
		targetSize = DefaultTargetSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= targetSize/2 {
		overlap = targetSize / 4
	}
	return &TextChunker{
		targetSize: targetSize,
		overlap:    overlap,
	}
}

func (c *TextChunker) TargetSize() int { return c.targetSize }
func (c *TextChunker) Overlap() int    { return c.overlap }

var (
	frontMatterRe = regexp.MustCompile(`(?s)\A---\n.*?\n---\n?`)
	blankLinesRe  = regexp.MustCompile(`\n{3,}`)
	trailingWSRe  = regexp.MustCompile(`[ \t]+\n`)
)

// Preprocess strips structural metadata and normalizes whitespace before
// splitting. Front-matter key/value blocks carry no semantic signal for
// similarity search.
func Preprocess(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = frontMatterRe.ReplaceAllString(text, "")
	text = trailingWSRe.ReplaceAllString(text, "\n")
	text = blankLinesRe.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// Split preprocesses the text and divides it into pieces of at most
// targetSize runes. Every piece after the first repeats the tail overlap
// runes of its predecessor, so stripping that prefix from each piece after
// the first reconstructs the preprocessed text exactly.
func (c *TextChunker) Split(text string) []domain.Piece {
	clean := Preprocess(text)
	if clean == "" {
		return nil
	}

	runes := []rune(clean)
	if len(runes) <= c.targetSize {
		return []domain.Piece{{Text: clean, Ordinal: 0}}
	}

	var pieces []domain.Piece
	pos := 0
	for pos < len(runes) {
		end := pos + c.targetSize - overlapFor(len(pieces), c.overlap)
		if end >= len(runes) {
			end = len(runes)
		} else {
			end = c.cutPoint(runes, pos, end)
		}

		head := pos - overlapFor(len(pieces), c.overlap)
		pieces = append(pieces, domain.Piece{
			Text:    string(runes[head:end]),
			Ordinal: len(pieces),
		})
		pos = end
	}

	return pieces
}

func overlapFor(ordinal, overlap int) int {
	if ordinal == 0 {
		return 0
	}
	return overlap
}

// cutPoint picks the best cut position in (lo, hi], searching backwards so
// the chunk ends on the strongest boundary available. The search floor keeps
// every segment advancing past the overlap region.
func (c *TextChunker) cutPoint(runes []rune, lo, hi int) int {
	floor := lo + c.overlap + 1
	window := lo + (hi-lo)/2
	if window < floor {
		window = floor
	}

	// Paragraph break: cut right after a blank line.
	for j := hi; j > window; j-- {
		if runes[j-1] == '\n' && j >= 2 && runes[j-2] == '\n' {
			return j
		}
	}

	// Sentence end followed by whitespace.
	for j := hi; j > window; j-- {
		if isSentenceEnd(runes[j-1]) && j < len(runes) && isSpace(runes[j]) {
			return j
		}
	}

	// Any word boundary.
	for j := hi; j > floor; j-- {
		if isSpace(runes[j-1]) {
			return j
		}
	}

	// No boundary in the window: hard cut.
	return hi
}

func isSentenceEnd(r rune) bool {
	switch r {
	case '.', '!', '?':
		return true
	}
	return false
}

func isSpace(r rune) bool {
	switch r {
	case ' ', '\t', '\n':
		return true
	}
	return false
}
