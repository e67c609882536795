package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	queryText string
	queryTopK int
	queryJSON bool
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Search indexed notes",
	Long: `Run a raw similarity search and print the top-scoring note excerpts,
without generating an answer.

Examples:
  noterag query -q "holiday ideas"
  noterag query -q "meeting notes" --top-k 10 --json`,
	RunE: runQuery,
}

func init() {
	rootCmd.AddCommand(queryCmd)
	queryCmd.Flags().StringVarP(&queryText, "query", "q", "", "search query (required)")
	queryCmd.Flags().IntVarP(&queryTopK, "top-k", "k", 0, "number of results (default from config)")
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "output as JSON")
	queryCmd.MarkFlagRequired("query")
}

// queryResult is a simplified hit for CLI output.
type queryResult struct {
	Path    string  `json:"path"`
	Ordinal int     `json:"ordinal"`
	Score   float64 `json:"score"`
	Text    string  `json:"text"`
}

func runQuery(cmd *cobra.Command, args []string) error {
	mgr, closeFn, err := newManager(rootDir, cfg)
	if err != nil {
		return err
	}
	defer closeFn()

	hits, err := mgr.Search(cmd.Context(), queryText, queryTopK)
	if err != nil {
		return askError(err)
	}

	results := make([]queryResult, len(hits))
	for i, h := range hits {
		results[i] = queryResult{
			Path:    h.Chunk.SourcePath,
			Ordinal: h.Chunk.Ordinal,
			Score:   h.Score,
			Text:    h.Chunk.Text,
		}
	}

	if queryJSON {
		output, _ := json.MarshalIndent(results, "", "  ")
		fmt.Println(string(output))
		return nil
	}

	if len(results) == 0 {
		fmt.Println("No results found.")
		return nil
	}

	fmt.Printf("Found %d results for: %s\n\n", len(results), queryText)
	for i, r := range results {
		fmt.Printf("--- [%d] %s#%d (score: %.2f) ---\n", i+1, r.Path, r.Ordinal, r.Score)
		text := r.Text
		if len(text) > 500 {
			text = text[:500] + "..."
		}
		fmt.Println(text)
		fmt.Println()
	}

	return nil
}
