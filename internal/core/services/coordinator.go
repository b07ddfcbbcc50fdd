package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cosmikwolf/sazid/internal/core/domain"
	"github.com/cosmikwolf/sazid/internal/core/ports/driven"
	"github.com/cosmikwolf/sazid/internal/core/ports/driving"
	"github.com/cosmikwolf/sazid/internal/logger"
	"github.com/cosmikwolf/sazid/internal/postprocessors/chunker"
)

// Ensure Coordinator implements the interface.
var _ driving.ChatService = (*Coordinator)(nil)

// Coordinator runs conversational turns: retrieval, completion, the tool
// loop and persistence. Turns of one session run one at a time.
type Coordinator struct {
	sessions   driven.SessionStore
	vectors    driven.VectorStore
	embedder   driven.EmbeddingService
	completion driven.CompletionService
	tools      driving.ToolService
	specs      []driven.ToolSpec
	prompts    driven.PromptStore
	locks      *SessionLocks
	defaults   domain.SessionConfig
	maxTokens  int
	now        func() time.Time
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithTools offers the given tools to the model and dispatches its calls through service.
func WithTools(service driving.ToolService, specs []driven.ToolSpec) CoordinatorOption {
	return func(c *Coordinator) {
		c.tools = service
		c.specs = specs
	}
}

// WithRetrieval enables retrieval augmented turns and message embeddings.
func WithRetrieval(vectors driven.VectorStore, embedder driven.EmbeddingService) CoordinatorOption {
	return func(c *Coordinator) {
		c.vectors = vectors
		c.embedder = embedder
	}
}

// WithPromptStore loads system and summary prompts from store.
func WithPromptStore(store driven.PromptStore) CoordinatorOption {
	return func(c *Coordinator) {
		c.prompts = store
	}
}

// WithSessionDefaults fills unset session configuration fields.
func WithSessionDefaults(cfg domain.SessionConfig) CoordinatorOption {
	return func(c *Coordinator) {
		c.defaults = cfg
	}
}

// WithEmbedTokens sets the size above which a message is embedded in pieces.
func WithEmbedTokens(n int) CoordinatorOption {
	return func(c *Coordinator) {
		if n > 0 {
			c.maxTokens = n
		}
	}
}

// WithSessionLocks shares a lock table between coordinators.
func WithSessionLocks(locks *SessionLocks) CoordinatorOption {
	return func(c *Coordinator) {
		c.locks = locks
	}
}

// DefaultSessionConfig derives session defaults from application settings.
func DefaultSessionConfig(s *domain.AppSettings) domain.SessionConfig {
	return domain.SessionConfig{
		Model:         s.LLM.Model,
		FallbackModel: s.LLM.FallbackModel,
		SystemPrompt:  s.Chat.SystemPrompt,
		RetrievalK:    s.Chat.RetrievalK,
		ContextTokens: s.Chat.ContextTokens,
		MaxToolRounds: s.Chat.MaxToolRounds,
	}
}

// NewCoordinator creates a coordinator. Retrieval and tools are optional.
func NewCoordinator(
	sessions driven.SessionStore,
	completion driven.CompletionService,
	opts ...CoordinatorOption,
) *Coordinator {
	d := domain.DefaultAppSettings()
	c := &Coordinator{
		sessions:   sessions,
		completion: completion,
		locks:      NewSessionLocks(),
		defaults:   DefaultSessionConfig(&d),
		maxTokens:  d.Chat.ChunkTokens,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// StartSession stores a new session. Unset fields take the coordinator defaults.
func (c *Coordinator) StartSession(ctx context.Context, cfg domain.SessionConfig) (*domain.Session, error) {
	session := &domain.Session{
		ID:        uuid.New().String(),
		StartedAt: c.now().UTC(),
		Config:    c.resolve(cfg),
	}
	if err := c.sessions.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	logger.Debug("session %s started with model %s", session.ID, session.Config.Model)
	return session, nil
}

// Sessions lists recent sessions.
func (c *Coordinator) Sessions(ctx context.Context, limit int) ([]domain.Session, error) {
	return c.sessions.ListSessions(ctx, limit)
}

// History returns a session's messages in order.
func (c *Coordinator) History(ctx context.Context, sessionID string) ([]domain.Message, error) {
	if _, err := c.sessions.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	return c.sessions.Messages(ctx, sessionID, 0)
}

// Send processes one user message. Messages produced by the turn are
// persisted together once the model gives a final answer; a failed or
// cancelled turn persists nothing.
func (c *Coordinator) Send(ctx context.Context, sessionID, text string) (*domain.TurnResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: message is empty", domain.ErrInvalidInput)
	}

	release, err := c.locks.Acquire(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer release()

	session, err := c.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	cfg := c.resolve(session.Config)

	result := &domain.TurnResult{}
	user := c.newMessage(sessionID, domain.RoleUser, text)

	var chunks []domain.ScoredChunk
	var similar []domain.ScoredMessage
	if c.embedder != nil {
		vec, err := embedText(ctx, c.embedder, text, c.maxTokens)
		if err != nil {
			return nil, fmt.Errorf("embed message: %w", err)
		}
		user.Embedding = vec
		chunks, similar, result.Degraded, err = c.retrieve(ctx, sessionID, vec, cfg)
		if err != nil {
			return nil, err
		}
	}

	history, err := c.sessions.Messages(ctx, sessionID, 0)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	built := assembleContext(contextInput{
		systemPrompt: c.systemPrompt(cfg),
		summary:      session.Summary,
		chunks:       chunks,
		similar:      similar,
		history:      history,
		message:      user,
		budget:       cfg.ContextTokens,
	})
	result.Retrieved = built.included

	turn, rounds, err := c.runTools(ctx, built.messages, cfg, user)
	if err != nil {
		return nil, err
	}
	result.ToolRounds = rounds

	reply := &turn[len(turn)-1]
	if c.embedder != nil && reply.Content != "" {
		vec, err := embedText(ctx, c.embedder, reply.Content, c.maxTokens)
		switch {
		case err == nil:
			reply.Embedding = vec
		case ctx.Err() != nil:
			return nil, ctx.Err()
		default:
			logger.Warn("session %s: reply stored without embedding: %v", sessionID, err)
			result.Degraded = true
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := c.sessions.AppendMessages(ctx, sessionID, turn); err != nil {
		return nil, fmt.Errorf("persist turn: %w", err)
	}

	result.Messages = turn
	result.Reply = *reply
	return result, nil
}

// retrieve queries chunks and similar messages. An unavailable store
// degrades the turn instead of failing it.
func (c *Coordinator) retrieve(
	ctx context.Context, sessionID string, vec []float32, cfg domain.SessionConfig,
) ([]domain.ScoredChunk, []domain.ScoredMessage, bool, error) {
	if cfg.RetrievalK <= 0 {
		return nil, nil, false, nil
	}
	degraded := false

	var chunks []domain.ScoredChunk
	if c.vectors != nil {
		var err error
		chunks, err = c.vectors.QuerySimilar(ctx, vec, cfg.RetrievalK, cfg.Tags)
		if err != nil {
			if !errors.Is(err, domain.ErrStoreUnavailable) {
				return nil, nil, false, fmt.Errorf("retrieve chunks: %w", err)
			}
			logger.Warn("session %s: retrieval degraded: %v", sessionID, err)
			chunks, degraded = nil, true
		}
	}

	similar, err := c.sessions.QuerySimilarMessages(ctx, sessionID, vec, cfg.RetrievalK)
	if err != nil {
		if !errors.Is(err, domain.ErrStoreUnavailable) {
			return nil, nil, false, fmt.Errorf("retrieve messages: %w", err)
		}
		logger.Warn("session %s: message retrieval degraded: %v", sessionID, err)
		similar, degraded = nil, true
	}
	return chunks, similar, degraded, nil
}

// runTools requests completions until one carries no tool calls. It
// returns the messages of the turn, starting with the user message.
func (c *Coordinator) runTools(
	ctx context.Context, messages []driven.ChatMessage, cfg domain.SessionConfig, user domain.Message,
) ([]domain.Message, int, error) {
	turn := []domain.Message{user}
	model := cfg.Model
	rounds := 0

	for {
		reply, used, err := c.complete(ctx, messages, model, cfg.FallbackModel, c.specs)
		if err != nil {
			return nil, 0, err
		}
		model = used

		if len(reply.ToolCalls) == 0 {
			turn = append(turn, c.newMessage(user.SessionID, domain.RoleAssistant, reply.Content))
			return turn, rounds, nil
		}
		if rounds >= cfg.MaxToolRounds {
			notice := fmt.Sprintf("Stopped after %d tool rounds without a final answer.", rounds)
			if content := strings.TrimSpace(reply.Content); content != "" {
				notice = content + "\n\n" + notice
			}
			logger.Warn("session %s: tool round limit %d reached", user.SessionID, cfg.MaxToolRounds)
			turn = append(turn, c.newMessage(user.SessionID, domain.RoleAssistant, notice))
			return turn, rounds, nil
		}
		rounds++

		assistant := c.newMessage(user.SessionID, domain.RoleAssistant, reply.Content)
		assistant.ToolCalls = reply.ToolCalls
		turn = append(turn, assistant)
		messages = append(messages, toChatMessage(assistant))

		for _, call := range reply.ToolCalls {
			msg, err := c.callTool(ctx, user.SessionID, call)
			if err != nil {
				return nil, 0, err
			}
			turn = append(turn, msg)
			messages = append(messages, toChatMessage(msg))
		}
	}
}

// callTool dispatches one call and wraps its result as a tool message.
// Only cancellation is returned as an error.
func (c *Coordinator) callTool(ctx context.Context, sessionID string, call domain.ToolCall) (domain.Message, error) {
	var result *domain.ToolResult
	if c.tools == nil {
		result = domain.Rejected("tools are disabled in this session")
	} else {
		var err error
		result, err = c.tools.Dispatch(ctx, domain.ToolInvocation{
			ID:        call.ID,
			Tool:      call.Name,
			Arguments: call.Arguments,
		})
		if err != nil {
			return domain.Message{}, err
		}
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return domain.Message{}, fmt.Errorf("encode tool result: %w", err)
	}
	msg := c.newMessage(sessionID, domain.RoleTool, string(payload))
	msg.ToolCallID = call.ID
	msg.ToolName = call.Name
	return msg, nil
}

// complete calls the model, retrying once with the fallback model unless
// the failure is a cancellation or a context length overflow. It returns
// the model that answered.
func (c *Coordinator) complete(
	ctx context.Context, messages []driven.ChatMessage, model, fallback string, specs []driven.ToolSpec,
) (*driven.ChatMessage, string, error) {
	opts := driven.CompletionOptions{Model: model, Tools: specs}
	reply, err := c.completion.Complete(ctx, messages, opts)
	if err == nil {
		return reply, model, nil
	}
	if ctx.Err() != nil {
		return nil, "", ctx.Err()
	}
	if errors.Is(err, domain.ErrContextLength) || fallback == "" || fallback == model {
		return nil, "", fmt.Errorf("completion with %s: %w", model, err)
	}

	logger.Warn("completion with %s failed, falling back to %s: %v", model, fallback, err)
	opts.Model = fallback
	reply, ferr := c.completion.Complete(ctx, messages, opts)
	if ferr != nil {
		if ctx.Err() != nil {
			return nil, "", ctx.Err()
		}
		return nil, "", fmt.Errorf("completion with fallback %s: %w", fallback, ferr)
	}
	return reply, fallback, nil
}

// Summarize condenses a session's transcript into its summary. It fails
// with ErrSessionBusy while a turn is in flight.
func (c *Coordinator) Summarize(ctx context.Context, sessionID string) (string, error) {
	release, err := c.locks.TryAcquire(sessionID)
	if err != nil {
		return "", err
	}
	defer release()

	session, err := c.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return "", err
	}
	history, err := c.sessions.Messages(ctx, sessionID, 0)
	if err != nil {
		return "", fmt.Errorf("load history: %w", err)
	}
	if len(history) == 0 {
		return session.Summary, nil
	}

	cfg := c.resolve(session.Config)
	template := c.loadPrompt(driven.PromptSummarize, "")
	if template == "" || !strings.Contains(template, "%s") {
		template = "Summarize this conversation:\n\n%s"
	}
	prompt := fmt.Sprintf(template, transcript(session.Summary, history, cfg.ContextTokens-tokens(template)))

	reply, _, err := c.complete(ctx, []driven.ChatMessage{{Role: domain.RoleUser, Content: prompt}},
		cfg.Model, cfg.FallbackModel, nil)
	if err != nil {
		return "", err
	}
	summary := strings.TrimSpace(reply.Content)
	if err := c.sessions.UpdateSummary(ctx, sessionID, summary); err != nil {
		return "", fmt.Errorf("store summary: %w", err)
	}
	return summary, nil
}

// transcript renders the newest messages that fit budget, preceded by any
// previous summary.
func transcript(previous string, history []domain.Message, budget int) string {
	lines := make([]string, 0, len(history))
	for i := len(history) - 1; i >= 0; i-- {
		m := history[i]
		content := m.Content
		switch {
		case m.Role == domain.RoleTool:
			content = fmt.Sprintf("(%s output, %d bytes)", m.ToolName, len(m.Content))
		case len(m.ToolCalls) > 0 && content == "":
			names := make([]string, len(m.ToolCalls))
			for j, call := range m.ToolCalls {
				names[j] = call.Name
			}
			content = "(called " + strings.Join(names, ", ") + ")"
		}
		line := string(m.Role) + ": " + content
		cost := tokens(line)
		if cost > budget && len(lines) > 0 {
			break
		}
		budget -= cost
		lines = append(lines, line)
	}
	for i, j := 0, len(lines)-1; i < j; i, j = i+1, j-1 {
		lines[i], lines[j] = lines[j], lines[i]
	}
	out := strings.Join(lines, "\n")
	if previous != "" {
		out = "Previous summary: " + previous + "\n\n" + out
	}
	return out
}

// systemPrompt prefers a prompt set on the session over the prompt store.
func (c *Coordinator) systemPrompt(cfg domain.SessionConfig) string {
	if cfg.SystemPrompt != "" && cfg.SystemPrompt != domain.DefaultSystemPrompt {
		return cfg.SystemPrompt
	}
	return c.loadPrompt(driven.PromptSystem, domain.DefaultSystemPrompt)
}

func (c *Coordinator) loadPrompt(name, fallback string) string {
	if c.prompts == nil {
		return fallback
	}
	prompt, err := c.prompts.Load(name)
	if err != nil {
		logger.Warn("load prompt %s: %v", name, err)
		return fallback
	}
	return prompt
}

// resolve fills unset fields from the coordinator defaults.
func (c *Coordinator) resolve(cfg domain.SessionConfig) domain.SessionConfig {
	d := c.defaults
	if cfg.Model == "" {
		cfg.Model = d.Model
	}
	if cfg.FallbackModel == "" {
		cfg.FallbackModel = d.FallbackModel
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = d.SystemPrompt
	}
	if cfg.RetrievalK == 0 {
		cfg.RetrievalK = d.RetrievalK
	}
	if len(cfg.Tags) == 0 {
		cfg.Tags = d.Tags
	}
	if cfg.ContextTokens <= 0 {
		cfg.ContextTokens = d.ContextTokens
	}
	if cfg.ContextTokens <= 0 {
		cfg.ContextTokens = chunker.DefaultMaxTokens
	}
	if cfg.MaxToolRounds <= 0 {
		cfg.MaxToolRounds = d.MaxToolRounds
	}
	return cfg
}

func (c *Coordinator) newMessage(sessionID string, role domain.Role, content string) domain.Message {
	return domain.Message{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		CreatedAt: c.now().UTC(),
	}
}
