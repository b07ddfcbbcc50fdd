package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/cosmikwolf/sazid/internal/adapters/driving/watch"
)

var (
	watchTags     []string
	watchDebounce time.Duration
	watchRescan   time.Duration
	watchInitial  bool
)

var watchCmd = &cobra.Command{
	Use:   "watch [dir]",
	Short: "Re-ingest files as they change",
	Long: `Watches a directory tree and keeps the vector store in step with it.

Created and modified files are re-ingested, removed and renamed files have
their chunks purged. The directory defaults to the current one.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringSliceVarP(&watchTags, "tag", "t", nil, "tag attached to every chunk (repeatable)")
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", watch.DefaultDebounce, "quiet period before a changed file is re-ingested")
	watchCmd.Flags().DurationVar(&watchRescan, "rescan", 0, "re-ingest the whole tree on this interval (0 disables)")
	watchCmd.Flags().BoolVar(&watchInitial, "initial", true, "ingest the tree before watching")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	if ingestService == nil {
		return notConfigured("ingest")
	}
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}

	w, err := watch.New(ingestService, watch.Config{
		Root:     dir,
		Tags:     watchTags,
		SkipDirs: skipDirs,
		Debounce: watchDebounce,
		Rescan:   watchRescan,
	}, watch.WithCallback(func(change watch.ChangeType, path string, err error) {
		if err != nil {
			cmd.PrintErrf("%s %s: %v\n", change, path, err)
			return
		}
		cmd.Printf("%s %s\n", change, path)
	}))
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if watchInitial {
		report, err := ingestService.IngestPath(ctx, w.Root(), watchTags)
		if err != nil {
			return fmt.Errorf("initial ingest failed: %w", err)
		}
		cmd.Printf("Ingested %d files: %d chunks inserted, %d unchanged.\n",
			report.Files, report.Inserted, report.Unchanged)
	}

	cmd.Printf("Watching %s (Ctrl-C to stop)\n", w.Root())
	return w.Run(ctx)
}
