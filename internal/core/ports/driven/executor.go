package driven

import (
	"context"

	"github.com/cosmikwolf/sazid/internal/core/domain"
)

// CommandExecutor spawns a validated command and maps its outcome into a ToolResult.
//
// A non-nil error is returned only when the caller's context is cancelled;
// process failures and timeouts are reported through the result.
type CommandExecutor interface {
	Execute(ctx context.Context, cmd domain.Command) (*domain.ToolResult, error)
}
