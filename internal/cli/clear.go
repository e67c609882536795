package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete the index, snapshot, and embedding cache",
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, closeFn, err := newManager(rootDir, cfg)
		if err != nil {
			return err
		}
		defer closeFn()

		if err := mgr.ClearIndex(); err != nil {
			return fmt.Errorf("clear index: %w", err)
		}
		fmt.Println("Index cleared.")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(clearCmd)
}
