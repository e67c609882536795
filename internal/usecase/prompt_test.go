package usecase

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"noterag/internal/domain"
)

func TestBuildContextBlock(t *testing.T) {
	hits := []domain.ScoredChunk{
		{Chunk: domain.Chunk{SourcePath: "a.md", Text: "first excerpt"}},
		{Chunk: domain.Chunk{SourcePath: "b.md", Text: "second excerpt"}},
	}

	block := BuildContextBlock(hits)
	assert.Equal(t, "[source: a.md]\nfirst excerpt\n\n[source: b.md]\nsecond excerpt", block)
}

func TestBuildContextBlockEmpty(t *testing.T) {
	assert.Equal(t, "(no relevant notes were found)", BuildContextBlock(nil))
}

func TestBuildPrompt(t *testing.T) {
	got := BuildPrompt("[source: a.md]\ntext", "what is a?")
	assert.Equal(t, "Context:\n[source: a.md]\ntext\n\nQuestion: what is a?", got)
}

func TestGroundedSystemPrompt(t *testing.T) {
	assert.Equal(t, groundingInstruction, GroundedSystemPrompt(""))

	withPersona := GroundedSystemPrompt("You are a terse librarian.")
	assert.Contains(t, withPersona, "You are a terse librarian.")
	assert.Contains(t, withPersona, groundingInstruction)
}

func TestSourcePathsDedupPreservesOrder(t *testing.T) {
	hits := []domain.ScoredChunk{
		{Chunk: domain.Chunk{SourcePath: "b.md"}},
		{Chunk: domain.Chunk{SourcePath: "a.md"}},
		{Chunk: domain.Chunk{SourcePath: "b.md"}},
	}
	assert.Equal(t, []string{"b.md", "a.md"}, sourcePaths(hits))
}
