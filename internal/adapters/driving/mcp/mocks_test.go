package mcp

import (
	"context"

	"github.com/cosmikwolf/sazid/internal/core/domain"
	"github.com/cosmikwolf/sazid/internal/core/ports/driving"
)

// mockRetrievalService is a mock implementation of driving.RetrievalService.
type mockRetrievalService struct {
	results []domain.ScoredChunk
	stats   *domain.StoreStats
	err     error

	query string
	k     int
	tags  []string
}

func (m *mockRetrievalService) Retrieve(
	_ context.Context, query string, k int, tags []string,
) ([]domain.ScoredChunk, error) {
	m.query, m.k, m.tags = query, k, tags
	return m.results, m.err
}

func (m *mockRetrievalService) Stats(_ context.Context) (*domain.StoreStats, error) {
	return m.stats, m.err
}

// mockToolService is a mock implementation of driving.ToolService.
type mockToolService struct {
	definitions []domain.ToolDefinition
	result      *domain.ToolResult
	err         error
	invocations []domain.ToolInvocation
}

func (m *mockToolService) Definitions() []domain.ToolDefinition {
	return m.definitions
}

func (m *mockToolService) Dispatch(_ context.Context, inv domain.ToolInvocation) (*domain.ToolResult, error) {
	m.invocations = append(m.invocations, inv)
	return m.result, m.err
}

// mockIngestService is a mock implementation of driving.IngestService.
type mockIngestService struct {
	sources []domain.SourceInfo
	err     error
}

func (m *mockIngestService) IngestPath(context.Context, string, []string) (*driving.IngestReport, error) {
	return &driving.IngestReport{}, m.err
}

func (m *mockIngestService) IngestText(context.Context, string, string, []string) (*driving.IngestReport, error) {
	return &driving.IngestReport{}, m.err
}

func (m *mockIngestService) Purge(context.Context, string) (int, error) {
	return 0, m.err
}

func (m *mockIngestService) Sources(context.Context) ([]domain.SourceInfo, error) {
	return m.sources, m.err
}
