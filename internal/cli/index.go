package cli

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"noterag/internal/domain"
)

var indexCmd = &cobra.Command{
	Use:   "index [path]",
	Short: "Index notes for retrieval",
	Long: `Index the notes in the vault directory. Only new and changed files are
embedded; unchanged files are skipped. The snapshot is stored in
.noterag/embeddings.json inside the vault.

Examples:
  noterag index                 # Index the current directory
  noterag index ~/notes         # Index a specific vault`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIndex,
}

func init() {
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, args []string) error {
	dir := rootDir
	if len(args) > 0 {
		var err error
		dir, err = filepath.Abs(args[0])
		if err != nil {
			return fmt.Errorf("invalid path: %w", err)
		}
	}

	mgr, closeFn, err := newManager(dir, cfg)
	if err != nil {
		return err
	}
	defer closeFn()

	fmt.Printf("Scanning %s...\n", dir)

	bar := progressbar.NewOptions(100,
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowBytes(false),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription("[cyan]Indexing[reset]"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() {
			fmt.Println()
		}),
	)

	result, err := mgr.IndexAll(cmd.Context(), func(fraction float64) {
		bar.Set(int(fraction * 100))
	})
	if err != nil {
		if errors.Is(err, domain.ErrProviderUnavailable) || errors.Is(err, domain.ErrModelNotFound) {
			return fmt.Errorf("embedding provider check failed: %w", err)
		}
		return fmt.Errorf("indexing failed: %w", err)
	}

	fmt.Printf("\nIndexing complete:\n")
	fmt.Printf("  Files indexed:  %d\n", result.FilesIndexed)
	fmt.Printf("  Files skipped:  %d (unchanged)\n", result.FilesSkipped)
	fmt.Printf("  Files removed:  %d (deleted from vault)\n", result.FilesRemoved)
	fmt.Printf("  Chunks created: %d\n", result.ChunksCreated)

	if result.FilesFailed > 0 {
		fmt.Printf("\n%d file(s) skipped due to errors:\n", result.FilesFailed)
		for _, e := range result.Errors {
			fmt.Printf("  - %s\n", e)
		}
	}

	return nil
}
