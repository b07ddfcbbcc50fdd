package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/cosmikwolf/sazid/internal/core/ports/driving"
)

// IndexWaiter blocks until background index maintenance has caught up.
type IndexWaiter interface {
	WaitIndexed(ctx context.Context) error
}

var (
	ingestTags   []string
	ingestText   string
	ingestSource string
	ingestWait   bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [path...]",
	Short: "Chunk, embed and store files for retrieval",
	Long: `Ingests files or directory trees into the vector store.

Directories are walked recursively. Binary files and version control
directories are skipped. A file whose chunks are unchanged since the last
run is not embedded again; a changed file replaces its old chunks.

Use --text to ingest a text body instead of files. "--text -" reads it
from stdin and --source names it.`,
	RunE: runIngest,
}

var purgeCmd = &cobra.Command{
	Use:   "purge [source]",
	Short: "Remove every chunk of an ingested source",
	Args:  cobra.ExactArgs(1),
	RunE:  runPurge,
}

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List ingested sources",
	RunE:  runSources,
}

func init() {
	ingestCmd.Flags().StringSliceVarP(&ingestTags, "tag", "t", nil, "tag attached to every chunk (repeatable)")
	ingestCmd.Flags().StringVar(&ingestText, "text", "", `text to ingest instead of files ("-" reads stdin)`)
	ingestCmd.Flags().StringVar(&ingestSource, "source", "", "source name for --text")
	ingestCmd.Flags().BoolVar(&ingestWait, "wait", false, "wait until the similarity index has caught up")
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(purgeCmd)
	rootCmd.AddCommand(sourcesCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	if ingestService == nil {
		return notConfigured("ingest")
	}
	if ingestText == "" && len(args) == 0 {
		return errors.New("nothing to ingest: pass a path or --text")
	}
	ctx := cmd.Context()

	total := &driving.IngestReport{}
	if ingestText != "" {
		text := ingestText
		if text == "-" {
			data, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return fmt.Errorf("read stdin: %w", err)
			}
			text = string(data)
		}
		source := ingestSource
		if source == "" {
			source = "stdin"
		}
		report, err := ingestService.IngestText(ctx, text, source, ingestTags)
		addReport(total, report)
		if err != nil {
			return fmt.Errorf("ingest failed: %w", err)
		}
	}

	for _, path := range args {
		report, err := ingestService.IngestPath(ctx, path, ingestTags)
		addReport(total, report)
		if err != nil {
			return fmt.Errorf("ingest %s failed: %w", path, err)
		}
	}

	cmd.Printf("Ingested %d files: %d chunks inserted, %d unchanged, %d skipped, %d purged.\n",
		total.Files, total.Inserted, total.Unchanged, total.Skipped, total.Purged)

	if ingestWait && indexer != nil {
		cmd.Println("Waiting for the similarity index...")
		if err := indexer.WaitIndexed(ctx); err != nil {
			return fmt.Errorf("wait for index: %w", err)
		}
	}
	return nil
}

func addReport(total, r *driving.IngestReport) {
	if r == nil {
		return
	}
	total.Files += r.Files
	total.Skipped += r.Skipped
	total.Unchanged += r.Unchanged
	total.Chunks += r.Chunks
	total.Inserted += r.Inserted
	total.Purged += r.Purged
}

func runPurge(cmd *cobra.Command, args []string) error {
	if ingestService == nil {
		return notConfigured("ingest")
	}
	n, err := ingestService.Purge(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("purge failed: %w", err)
	}
	cmd.Printf("Removed %d chunks of %s.\n", n, args[0])
	return nil
}

func runSources(cmd *cobra.Command, _ []string) error {
	if ingestService == nil {
		return notConfigured("ingest")
	}
	sources, err := ingestService.Sources(cmd.Context())
	if err != nil {
		return fmt.Errorf("list sources: %w", err)
	}
	if len(sources) == 0 {
		cmd.Println("No sources ingested.")
		return nil
	}
	for _, src := range sources {
		cmd.Printf("  %-50s %5d chunks  %s\n", src.Path, src.Chunks, src.IngestedAt.Local().Format("2006-01-02 15:04"))
	}
	return nil
}
