package cli

import (
	"context"
	"errors"
	"time"

	"github.com/cosmikwolf/sazid/internal/adapters/driving/watch"
	"github.com/cosmikwolf/sazid/internal/core/domain"
	"github.com/cosmikwolf/sazid/internal/core/ports/driving"
	"github.com/cosmikwolf/sazid/internal/tools"
)

var errMock = errors.New("mock failure")

// mockRetrievalService returns a fixed chunk for every query.
type mockRetrievalService struct {
	err   error
	query string
	k     int
	tags  []string
}

func (m *mockRetrievalService) Retrieve(_ context.Context, query string, k int, tags []string) ([]domain.ScoredChunk, error) {
	m.query, m.k, m.tags = query, k, tags
	if m.err != nil {
		return nil, m.err
	}
	return []domain.ScoredChunk{{
		Chunk: domain.Chunk{
			ID:         "chunk-1",
			SourcePath: "internal/app/main.go",
			Position:   2,
			Tags:       []string{"go"},
			Content:    "func main() {\n\trun()\n}",
		},
		Distance: 0.125,
	}}, nil
}

func (m *mockRetrievalService) Stats(context.Context) (*domain.StoreStats, error) {
	return &domain.StoreStats{Chunks: 1, Metric: domain.DistanceCosine, Dimensions: 16}, m.err
}

// mockIngestService records calls and reports one file per call.
type mockIngestService struct {
	err    error
	paths  []string
	texts  []string
	source string
	tags   []string
	purged []string
}

func (m *mockIngestService) IngestPath(_ context.Context, path string, tags []string) (*driving.IngestReport, error) {
	m.paths = append(m.paths, path)
	m.tags = tags
	return &driving.IngestReport{Files: 1, Chunks: 3, Inserted: 3}, m.err
}

func (m *mockIngestService) IngestText(_ context.Context, text, source string, tags []string) (*driving.IngestReport, error) {
	m.texts = append(m.texts, text)
	m.source = source
	m.tags = tags
	return &driving.IngestReport{Files: 1, Chunks: 1, Inserted: 1}, m.err
}

func (m *mockIngestService) Purge(_ context.Context, source string) (int, error) {
	m.purged = append(m.purged, source)
	return 4, m.err
}

func (m *mockIngestService) Sources(context.Context) ([]domain.SourceInfo, error) {
	return []domain.SourceInfo{{Path: "README.md", Chunks: 2, IngestedAt: time.Now()}}, m.err
}

// mockToolService exposes the builtin tools and returns a fixed result.
type mockToolService struct {
	result      *domain.ToolResult
	invocations []domain.ToolInvocation
}

func (m *mockToolService) Definitions() []domain.ToolDefinition {
	return tools.Builtins()
}

func (m *mockToolService) Dispatch(_ context.Context, inv domain.ToolInvocation) (*domain.ToolResult, error) {
	m.invocations = append(m.invocations, inv)
	if m.result != nil {
		return m.result, nil
	}
	return &domain.ToolResult{Status: domain.StatusSuccess, Stdout: "main.go:3:TODO\n"}, nil
}

// mockChatService echoes user messages.
type mockChatService struct {
	err      error
	started  []domain.SessionConfig
	sent     []string
	sessions []string
	degraded bool
}

func (m *mockChatService) StartSession(_ context.Context, cfg domain.SessionConfig) (*domain.Session, error) {
	m.started = append(m.started, cfg)
	return &domain.Session{ID: "session-1", Config: cfg}, m.err
}

func (m *mockChatService) Send(_ context.Context, sessionID, text string) (*domain.TurnResult, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.sessions = append(m.sessions, sessionID)
	m.sent = append(m.sent, text)
	return &domain.TurnResult{
		Reply:    domain.Message{Role: domain.RoleAssistant, Content: "echo: " + text},
		Degraded: m.degraded,
	}, nil
}

func (m *mockChatService) Summarize(context.Context, string) (string, error) {
	return "a short summary", m.err
}

func (m *mockChatService) Sessions(context.Context, int) ([]domain.Session, error) {
	return []domain.Session{{ID: "session-1", StartedAt: time.Now(), Config: domain.SessionConfig{Model: "gpt-4o"}}}, m.err
}

func (m *mockChatService) History(context.Context, string) ([]domain.Message, error) {
	return []domain.Message{
		{Role: domain.RoleUser, Content: "find the TODOs"},
		{Role: domain.RoleAssistant, ToolCalls: []domain.ToolCall{{
			ID: "call-1", Name: "search", Arguments: map[string]string{"pattern": "TODO"},
		}}},
		{Role: domain.RoleTool, ToolName: "search", Content: `{"status":"success"}`},
		{Role: domain.RoleAssistant, Content: "There is one TODO."},
	}, m.err
}

// mockSettingsService keeps settings in memory.
type mockSettingsService struct {
	settings domain.AppSettings
	saved    int
	invalid  error
}

func (m *mockSettingsService) Get() (*domain.AppSettings, error) {
	s := m.settings
	return &s, nil
}

func (m *mockSettingsService) Save(s *domain.AppSettings) error {
	m.settings = *s
	m.saved++
	return nil
}

func (m *mockSettingsService) Validate() error { return m.invalid }

func (m *mockSettingsService) GetDefaults() domain.AppSettings { return domain.DefaultAppSettings() }

func (m *mockSettingsService) ValidateEmbeddingConfig() error { return nil }

func (m *mockSettingsService) ValidateLLMConfig() error { return nil }

type mocks struct {
	retrieval *mockRetrievalService
	ingest    *mockIngestService
	tools     *mockToolService
	chat      *mockChatService
	settings  *mockSettingsService
}

// setupTestServices installs fresh mocks and returns a cleanup that
// restores nil services and default flag values.
func setupTestServices() (*mocks, func()) {
	m := &mocks{
		retrieval: &mockRetrievalService{},
		ingest:    &mockIngestService{},
		tools:     &mockToolService{},
		chat:      &mockChatService{},
		settings:  &mockSettingsService{settings: domain.DefaultAppSettings()},
	}
	SetServices(&Services{
		Settings:  m.settings,
		Retrieval: m.retrieval,
		Ingest:    m.ingest,
		Tools:     m.tools,
		Chat:      m.chat,
	})
	return m, func() {
		SetServices(nil)
		SetSetupError(nil)
		resetFlags()
	}
}

// resetFlags restores flag variables that persist between Execute calls.
func resetFlags() {
	rootCmd.SetArgs(nil)
	rootCmd.SetIn(nil)
	rootCmd.SetContext(context.Background())
	verbose = false
	searchLimit, searchTags, searchJSON = 5, nil, false
	ingestTags, ingestText, ingestSource, ingestWait = nil, "", "", false
	chatSession, chatModel, chatTags, chatMessage = "", "", nil, ""
	toolListJSON, toolCallArgs = false, ""
	sessionListLimit = 20
	versionShort = false
	mcpPort, mcpHost = 0, "localhost"
	watchTags, watchDebounce, watchRescan, watchInitial = nil, watch.DefaultDebounce, 0, true
}
