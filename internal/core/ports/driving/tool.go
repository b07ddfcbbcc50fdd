package driving

import (
	"context"

	"github.com/cosmikwolf/sazid/internal/core/domain"
)

// ToolService exposes registered tools to the model-facing layers.
type ToolService interface {
	// Definitions returns every registered tool, sorted by name.
	Definitions() []domain.ToolDefinition

	// Dispatch validates and runs an invocation. Tool-level failures are
	// reported in the result; the error is non-nil only on cancellation.
	Dispatch(ctx context.Context, inv domain.ToolInvocation) (*domain.ToolResult, error)
}
