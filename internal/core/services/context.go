package services

import (
	"fmt"
	"strings"

	"github.com/cosmikwolf/sazid/internal/core/domain"
	"github.com/cosmikwolf/sazid/internal/core/ports/driven"
	"github.com/cosmikwolf/sazid/internal/postprocessors/chunker"
)

// messageOverhead approximates the tokens a chat message costs beyond its content.
const messageOverhead = 4

// contextInput gathers everything a completion request may include.
type contextInput struct {
	systemPrompt string
	summary      string
	chunks       []domain.ScoredChunk
	similar      []domain.ScoredMessage
	history      []domain.Message
	message      domain.Message
	budget       int
}

// assembled is a completion request and the chunks that made it in.
type assembled struct {
	messages []driven.ChatMessage
	included []domain.ScoredChunk
}

// assembleContext builds the request in priority order: system prompt,
// summary, retrieved snippets, then as much recent history as fits. The
// system prompt and the new message are always included.
func assembleContext(in contextInput) assembled {
	var system strings.Builder
	system.WriteString(in.systemPrompt)
	if in.summary != "" {
		system.WriteString("\n\nSummary of the conversation so far:\n")
		system.WriteString(in.summary)
	}

	used := tokens(system.String()) + tokens(in.message.Content) + 2*messageOverhead
	remaining := in.budget - used

	inHistory := make(map[string]bool, len(in.history))
	for i := range in.history {
		inHistory[in.history[i].ID] = true
	}

	var snippets []string
	var included []domain.ScoredChunk
	for _, c := range in.chunks {
		s := fmt.Sprintf("[%s#%d]\n%s", c.Chunk.SourcePath, c.Chunk.Position, c.Chunk.Content)
		cost := tokens(s)
		if cost > remaining {
			continue
		}
		remaining -= cost
		snippets = append(snippets, s)
		included = append(included, c)
	}
	for _, m := range in.similar {
		if inHistory[m.Message.ID] || m.Message.Content == "" {
			continue
		}
		s := fmt.Sprintf("[earlier %s message]\n%s", m.Message.Role, m.Message.Content)
		cost := tokens(s)
		if cost > remaining {
			continue
		}
		remaining -= cost
		snippets = append(snippets, s)
	}
	if len(snippets) > 0 {
		system.WriteString("\n\nRelevant context:\n")
		system.WriteString(strings.Join(snippets, "\n\n"))
	}

	// Newest history first until the budget runs out.
	start := len(in.history)
	for start > 0 {
		cost := messageTokens(in.history[start-1])
		if cost > remaining {
			break
		}
		remaining -= cost
		start--
	}
	history := in.history[start:]
	// A tool result must follow the assistant message that requested it.
	for len(history) > 0 && history[0].Role == domain.RoleTool {
		history = history[1:]
	}

	messages := make([]driven.ChatMessage, 0, len(history)+2)
	messages = append(messages, driven.ChatMessage{Role: domain.RoleSystem, Content: system.String()})
	for i := range history {
		messages = append(messages, toChatMessage(history[i]))
	}
	messages = append(messages, toChatMessage(in.message))

	return assembled{messages: messages, included: included}
}

func toChatMessage(m domain.Message) driven.ChatMessage {
	return driven.ChatMessage{
		Role:       m.Role,
		Content:    m.Content,
		ToolCalls:  m.ToolCalls,
		ToolCallID: m.ToolCallID,
	}
}

func messageTokens(m domain.Message) int {
	n := tokens(m.Content) + messageOverhead
	for _, call := range m.ToolCalls {
		n += tokens(call.Name) + messageOverhead
		for k, v := range call.Arguments {
			n += tokens(k) + tokens(v)
		}
	}
	return n
}

func tokens(s string) int {
	return chunker.CountTokens(s)
}
