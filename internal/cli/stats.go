package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show index storage statistics",
	RunE:  runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	mgr, closeFn, err := newManager(rootDir, cfg)
	if err != nil {
		return err
	}
	defer closeFn()

	stats, err := mgr.Stats()
	if err != nil {
		return fmt.Errorf("read storage stats: %w", err)
	}

	if stats.IndexedFiles == 0 {
		fmt.Println("No index found. Run 'noterag index' first.")
		return nil
	}

	fmt.Printf("Index statistics:\n")
	fmt.Printf("  Embeddings:    %d\n", stats.TotalEmbeddings)
	fmt.Printf("  Indexed files: %d\n", stats.IndexedFiles)
	fmt.Printf("  Last indexed:  %s\n", stats.LastIndexed.Local().Format("2006-01-02 15:04:05"))
	fmt.Printf("  Storage used:  %.1f KiB\n", float64(stats.StorageBytes)/1024)
	fmt.Printf("  Provider:      %s (%s)\n", stats.Provider, stats.Model)
	return nil
}
