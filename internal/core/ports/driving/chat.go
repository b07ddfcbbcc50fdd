package driving

import (
	"context"

	"github.com/cosmikwolf/sazid/internal/core/domain"
)

// ChatService runs conversational turns against a session.
type ChatService interface {
	// StartSession creates a session with the given configuration.
	StartSession(ctx context.Context, cfg domain.SessionConfig) (*domain.Session, error)

	// Send processes one user message. Turns within a session are serialised.
	Send(ctx context.Context, sessionID, text string) (*domain.TurnResult, error)

	// Summarize condenses the session history into its summary.
	Summarize(ctx context.Context, sessionID string) (string, error)

	// Sessions lists recent sessions.
	Sessions(ctx context.Context, limit int) ([]domain.Session, error)

	// History returns a session's messages in order.
	History(ctx context.Context, sessionID string) ([]domain.Message, error)
}
