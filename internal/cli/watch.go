package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"noterag/internal/domain"
)

var watchDebounce time.Duration

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Re-index automatically when notes change",
	Long: `Watch the vault directory and run an incremental index pass whenever
note files change. Events are debounced so a burst of saves triggers one
pass. Stop with Ctrl-C.`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", 2*time.Second, "quiet period before re-indexing")
}

func runWatch(cmd *cobra.Command, args []string) error {
	mgr, closeFn, err := newManager(rootDir, cfg)
	if err != nil {
		return err
	}
	defer closeFn()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := addWatchDirs(watcher, rootDir); err != nil {
		return err
	}

	runPass := func() {
		result, err := mgr.IndexAll(cmd.Context(), nil)
		switch {
		case errors.Is(err, domain.ErrIndexBusy):
			// A pass is already running; the next event will catch up.
		case err != nil:
			fmt.Fprintf(os.Stderr, "index pass failed: %v\n", err)
		case result.FilesIndexed > 0 || result.FilesRemoved > 0:
			fmt.Printf("Re-indexed: %d updated, %d removed\n", result.FilesIndexed, result.FilesRemoved)
		}
	}

	fmt.Printf("Watching %s (Ctrl-C to stop)\n", rootDir)
	runPass()

	var timer *time.Timer
	pending := make(chan struct{}, 1)

	for {
		select {
		case <-cmd.Context().Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !relevantEvent(event) {
				continue
			}
			// New directories need watching too.
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					addWatchDirs(watcher, event.Name)
				}
			}
			if timer == nil {
				timer = time.AfterFunc(watchDebounce, func() {
					select {
					case pending <- struct{}{}:
					default:
					}
				})
			} else {
				timer.Reset(watchDebounce)
			}

		case <-pending:
			timer = nil
			runPass()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintf(os.Stderr, "watch error: %v\n", err)
		}
	}
}

func addWatchDirs(watcher *fsnotify.Watcher, root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return nil
		}
		name := info.Name()
		if strings.HasPrefix(name, ".") && path != root {
			return filepath.SkipDir
		}
		return watcher.Add(path)
	})
}

func relevantEvent(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return false
	}
	base := filepath.Base(event.Name)
	if strings.HasPrefix(base, ".") {
		return false
	}
	return true
}
