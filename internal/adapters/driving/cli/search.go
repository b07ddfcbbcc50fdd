package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cosmikwolf/sazid/internal/core/domain"
)

var (
	searchLimit int
	searchTags  []string
	searchJSON  bool
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search ingested content",
	Long: `Embeds the query and returns the most similar ingested chunks,
closest first. With --tag only chunks carrying one of the tags are returned.`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 5, "maximum number of results")
	searchCmd.Flags().StringSliceVarP(&searchTags, "tag", "t", nil, "only return chunks with this tag (repeatable)")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output results as JSON")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	if retrievalService == nil {
		return notConfigured("retrieval")
	}

	results, err := retrievalService.Retrieve(cmd.Context(), args[0], searchLimit, searchTags)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if searchJSON {
		return outputSearchJSON(cmd, results)
	}
	return outputSearchTable(cmd, results)
}

type searchResultJSON struct {
	Source   string   `json:"source"`
	Position int      `json:"position"`
	Distance float64  `json:"distance"`
	Tags     []string `json:"tags,omitempty"`
	Content  string   `json:"content"`
}

func outputSearchJSON(cmd *cobra.Command, results []domain.ScoredChunk) error {
	out := make([]searchResultJSON, len(results))
	for i := range results {
		c := results[i].Chunk
		out[i] = searchResultJSON{
			Source:   c.SourcePath,
			Position: c.Position,
			Distance: results[i].Distance,
			Tags:     c.Tags,
			Content:  c.Content,
		}
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}
	cmd.Println(string(data))
	return nil
}

func outputSearchTable(cmd *cobra.Command, results []domain.ScoredChunk) error {
	if len(results) == 0 {
		cmd.Println("No results found.")
		return nil
	}

	cmd.Println("Results:")
	cmd.Println()
	for i := range results {
		c := results[i].Chunk
		source := c.SourcePath
		if source == "" {
			source = c.ID
		}

		// Format: [N] source#position (distance)
		cmd.Printf("  [%d] %s#%d (%.4f)\n", i+1, source, c.Position, results[i].Distance)
		if len(c.Tags) > 0 {
			cmd.Printf("      Tags: %s\n", strings.Join(c.Tags, ", "))
		}
		if snippet := snippet(c.Content, 160); snippet != "" {
			cmd.Printf("      %s\n", snippet)
		}
		cmd.Println()
	}
	return nil
}

// snippet collapses whitespace and truncates s to at most n runes.
func snippet(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
