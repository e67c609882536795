package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"noterag/internal/domain"
)

var (
	askText     string
	askNoStream bool
)

var askCmd = &cobra.Command{
	Use:   "ask",
	Short: "Ask a question grounded in your notes",
	Long: `Retrieve the most relevant note excerpts for a question and generate an
answer grounded in them. Cited note paths are printed after the answer.

Examples:
  noterag ask -q "when is the boiler service due?"
  noterag ask -q "summarize my reading notes on estuaries" --no-stream`,
	RunE: runAsk,
}

func init() {
	rootCmd.AddCommand(askCmd)
	askCmd.Flags().StringVarP(&askText, "question", "q", "", "question to ask (required)")
	askCmd.Flags().BoolVar(&askNoStream, "no-stream", false, "wait for the full answer instead of streaming")
	askCmd.MarkFlagRequired("question")
}

func runAsk(cmd *cobra.Command, args []string) error {
	mgr, closeFn, err := newManager(rootDir, cfg)
	if err != nil {
		return err
	}
	defer closeFn()

	var sources []string
	if askNoStream {
		answer, err := mgr.Ask(cmd.Context(), askText)
		if err != nil {
			return askError(err)
		}
		fmt.Println(answer.Text)
		sources = answer.Sources
	} else {
		sources, err = mgr.AskStream(cmd.Context(), askText, func(delta string) error {
			fmt.Print(delta)
			return nil
		})
		if err != nil {
			return askError(err)
		}
		fmt.Println()
	}

	if len(sources) > 0 {
		fmt.Println("\nSources:")
		for _, s := range sources {
			fmt.Printf("  - %s\n", s)
		}
	}

	return nil
}

// askError turns engine errors into user-actionable messages, keeping "not
// indexed yet" distinct from a failed search request.
func askError(err error) error {
	switch {
	case errors.Is(err, domain.ErrNotIndexed):
		return fmt.Errorf("no notes indexed yet. Run 'noterag index' first")
	case errors.Is(err, domain.ErrProviderUnavailable), errors.Is(err, domain.ErrModelNotFound):
		return fmt.Errorf("search request failed: %w", err)
	default:
		return err
	}
}
