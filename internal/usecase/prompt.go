package usecase

import (
	"fmt"
	"strings"

	"noterag/internal/domain"
)

const groundingInstruction = `Answer the question using only the context excerpts provided. ` +
	`Each excerpt is labeled with the note it came from. ` +
	`If the context does not contain the answer, say so plainly instead of guessing.`

// GroundedSystemPrompt combines the active persona with the grounding
// instruction.
func GroundedSystemPrompt(persona string) string {
	if persona == "" {
		return groundingInstruction
	}
	return persona + "\n\n" + groundingInstruction
}

// BuildContextBlock renders retrieved chunks as labeled excerpts. An empty
// hit list renders an explicit no-context notice so the model does not
// invent sources.
func BuildContextBlock(hits []domain.ScoredChunk) string {
	if len(hits) == 0 {
		return "(no relevant notes were found)"
	}

	var sb strings.Builder
	for i, h := range hits {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		fmt.Fprintf(&sb, "[source: %s]\n%s", h.Chunk.SourcePath, h.Chunk.Text)
	}
	return sb.String()
}

// BuildPrompt assembles the user message from context and question.
func BuildPrompt(contextBlock, question string) string {
	var sb strings.Builder
	sb.WriteString("Context:\n")
	sb.WriteString(contextBlock)
	sb.WriteString("\n\nQuestion: ")
	sb.WriteString(question)
	return sb.String()
}
