package port

import "context"

// Generator is the external text-generation service that phrases the final
// answer from retrieved context. It is a black box to the core.
type Generator interface {
	// Generate produces a completion for the prompt under the system
	// instruction.
	Generate(ctx context.Context, system, prompt string) (string, error)

	// GenerateStream produces the completion incrementally, calling onDelta
	// for each text fragment. Cancelling ctx stops the stream between
	// fragments; onDelta returning an error does the same.
	GenerateStream(ctx context.Context, system, prompt string, onDelta func(string) error) error

	// ModelName returns the name of the generation model.
	ModelName() string
}
