package services

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cosmikwolf/sazid/internal/core/domain"
)

func historyOf(contents ...string) []domain.Message {
	msgs := make([]domain.Message, len(contents))
	for i, c := range contents {
		role := domain.RoleUser
		if i%2 == 1 {
			role = domain.RoleAssistant
		}
		msgs[i] = domain.Message{ID: c, Role: role, Content: c}
	}
	return msgs
}

func TestAssembleContext_Order(t *testing.T) {
	out := assembleContext(contextInput{
		systemPrompt: "be helpful",
		summary:      "talked about foxes",
		chunks: []domain.ScoredChunk{{Chunk: domain.Chunk{
			SourcePath: "zoo.md", Position: 2, Content: "the quick brown fox",
		}}},
		history: historyOf("h1", "h2"),
		message: domain.Message{Role: domain.RoleUser, Content: "question"},
		budget:  1000,
	})

	msgs := out.messages
	assert.Len(t, msgs, 4)
	assert.Equal(t, domain.RoleSystem, msgs[0].Role)
	system := msgs[0].Content
	assert.True(t, strings.HasPrefix(system, "be helpful"))
	assert.Less(t, strings.Index(system, "talked about foxes"), strings.Index(system, "[zoo.md#2]"))
	assert.Equal(t, "h1", msgs[1].Content)
	assert.Equal(t, "h2", msgs[2].Content)
	assert.Equal(t, "question", msgs[3].Content)
	assert.Len(t, out.included, 1)
}

func TestAssembleContext_BudgetDropsOldestHistory(t *testing.T) {
	history := historyOf("one", "two", "three")
	out := assembleContext(contextInput{
		systemPrompt: "sys",
		history:      history,
		message:      domain.Message{Role: domain.RoleUser, Content: "now"},
		budget:       tokens("sys") + tokens("now") + 2*messageOverhead + messageTokens(history[1]) + messageTokens(history[2]),
	})

	var contents []string
	for _, m := range out.messages[1:] {
		contents = append(contents, m.Content)
	}
	assert.Equal(t, []string{"two", "three", "now"}, contents)
}

func TestAssembleContext_SnippetsRespectBudget(t *testing.T) {
	big := strings.Repeat("word ", 200)
	out := assembleContext(contextInput{
		systemPrompt: "sys",
		chunks: []domain.ScoredChunk{
			{Chunk: domain.Chunk{SourcePath: "big", Content: big}},
			{Chunk: domain.Chunk{SourcePath: "small", Content: "tiny"}},
		},
		message: domain.Message{Role: domain.RoleUser, Content: "q"},
		budget:  50,
	})

	assert.Len(t, out.included, 1)
	assert.Equal(t, "small", out.included[0].Chunk.SourcePath)
	assert.NotContains(t, out.messages[0].Content, "[big#")
}

func TestAssembleContext_SimilarMessagesSkipHistory(t *testing.T) {
	history := historyOf("recent")
	out := assembleContext(contextInput{
		systemPrompt: "sys",
		similar: []domain.ScoredMessage{
			{Message: history[0]},
			{Message: domain.Message{ID: "old", Role: domain.RoleAssistant, Content: "old answer"}},
		},
		history: history,
		message: domain.Message{Role: domain.RoleUser, Content: "q"},
		budget:  1000,
	})

	system := out.messages[0].Content
	assert.Contains(t, system, "old answer")
	assert.NotContains(t, system, "recent")
}

func TestAssembleContext_NoLeadingToolMessage(t *testing.T) {
	history := []domain.Message{
		{ID: "1", Role: domain.RoleUser, Content: strings.Repeat("long ", 100)},
		{ID: "2", Role: domain.RoleAssistant, ToolCalls: []domain.ToolCall{{ID: "c", Name: "search"}}},
		{ID: "3", Role: domain.RoleTool, Content: "result", ToolCallID: "c"},
		{ID: "4", Role: domain.RoleAssistant, Content: "done"},
	}
	out := assembleContext(contextInput{
		systemPrompt: "sys",
		history:      history,
		message:      domain.Message{Role: domain.RoleUser, Content: "q"},
		budget:       tokens("sys") + tokens("q") + 2*messageOverhead + messageTokens(history[2]) + messageTokens(history[3]),
	})

	assert.Len(t, out.messages, 3)
	assert.Equal(t, "done", out.messages[1].Content)
}
