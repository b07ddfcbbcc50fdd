package driving

import (
	"context"

	"github.com/cosmikwolf/sazid/internal/core/domain"
)

// IngestReport summarises an ingestion run.
type IngestReport struct {
	Files     int
	Skipped   int
	Unchanged int
	Chunks    int
	Inserted  int
	Purged    int
}

// IngestService chunks, embeds and stores content for retrieval.
type IngestService interface {
	// IngestPath ingests a file or every text file beneath a directory.
	IngestPath(ctx context.Context, path string, tags []string) (*IngestReport, error)

	// IngestText ingests a text body under the given source name.
	IngestText(ctx context.Context, text, source string, tags []string) (*IngestReport, error)

	// Purge removes every chunk of a source.
	Purge(ctx context.Context, source string) (int, error)

	// Sources lists ingested sources.
	Sources(ctx context.Context) ([]domain.SourceInfo, error)
}
