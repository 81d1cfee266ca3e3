package main

import (
	"fmt"
	"strconv"

	"variantcache/internal/cache"
	"variantcache/internal/watch"

	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// renameCmd renames a conversation
var renameCmd = &cobra.Command{
	Use:   "rename <new-id>",
	Short: "Rename a conversation together with its cache",
	Args:  cobra.ExactArgs(1),
	RunE:  runRename,
}

// deleteCmd deletes a conversation
var deleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Delete a conversation and its cache",
	Args:  cobra.NoArgs,
	RunE:  runDelete,
}

// scanCmd inventories cache files
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "List every cache file under the data directory",
	Long: `Lists each cache file with its turn and variant counts. Caches whose
history file is gone are marked orphaned; unreadable ones are marked
corrupt.`,
	Args: cobra.NoArgs,
	RunE: runScan,
}

// watchCmd follows external history changes
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Keep caches in step with histories renamed or deleted by other programs",
	Args:  cobra.NoArgs,
	RunE:  runWatch,
}

func registerLifecycleCommands() {
	rootCmd.AddCommand(renameCmd, deleteCmd, scanCmd, watchCmd)
}

func runRename(cmd *cobra.Command, args []string) error {
	if conversation == "" {
		return fmt.Errorf("no conversation selected (use --conversation)")
	}
	newID := args[0]
	if err := app.files.Rename(conversation, newID, participant, mode); err != nil {
		return err
	}
	logger.Info("Renamed conversation", zap.String("from", conversation), zap.String("to", newID))
	conversation = newID
	fmt.Fprintln(cmd.OutOrStdout(), newID)
	return nil
}

func runDelete(cmd *cobra.Command, args []string) error {
	if conversation == "" {
		return fmt.Errorf("no conversation selected (use --conversation)")
	}
	if err := app.files.Delete(conversation, participant, mode); err != nil {
		return err
	}
	logger.Info("Deleted conversation", zap.String("id", conversation))
	fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", conversation)
	return nil
}

func runScan(cmd *cobra.Command, args []string) error {
	root := app.files.Root()
	reports, err := cache.Scan(commandContext(cmd), root)
	if err != nil {
		return fmt.Errorf("scan %s: %w", root, err)
	}
	if len(reports) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No cache files found")
		return nil
	}

	t := table.New().Headers("CONVERSATION", "TURNS", "VARIANTS", "STATUS", "PATH")
	for _, r := range reports {
		status := "ok"
		switch {
		case r.Corrupt:
			status = "corrupt"
		case r.Orphan:
			status = "orphaned"
		}
		t.Row(r.Conversation, strconv.Itoa(r.Turns), strconv.Itoa(r.Variants), status, r.Path)
	}
	fmt.Fprintln(cmd.OutOrStdout(), t.Render())
	return nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	w, err := newWatcher()
	if err != nil {
		return err
	}
	if err := w.Start(ctx); err != nil {
		return err
	}
	defer w.Stop()

	fmt.Fprintln(cmd.OutOrStdout(), "Watching for renamed or deleted conversations (Ctrl+C to stop)")
	<-ctx.Done()
	return nil
}

// newWatcher creates a watcher over the history directory of the
// selected participant and mode.
func newWatcher() (*watch.Watcher, error) {
	dir, err := app.files.Dir(participant, mode)
	if err != nil {
		return nil, err
	}
	logger.Debug("Starting watcher", zap.String("dir", dir))
	return watch.New(dir, participant, mode, app, app.cfg.GetWatchDebounce())
}
