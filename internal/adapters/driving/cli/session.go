package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cosmikwolf/sazid/internal/core/domain"
)

var sessionListLimit int

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Inspect chat sessions",
}

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent sessions",
	RunE:  runSessionList,
}

var sessionShowCmd = &cobra.Command{
	Use:   "show [session-id]",
	Short: "Print a session transcript",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionShow,
}

var sessionSummarizeCmd = &cobra.Command{
	Use:   "summarize [session-id]",
	Short: "Condense a session's history into its summary",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionSummarize,
}

func init() {
	sessionListCmd.Flags().IntVarP(&sessionListLimit, "limit", "n", 20, "maximum number of sessions")
	sessionCmd.AddCommand(sessionListCmd)
	sessionCmd.AddCommand(sessionShowCmd)
	sessionCmd.AddCommand(sessionSummarizeCmd)
	rootCmd.AddCommand(sessionCmd)
}

func runSessionList(cmd *cobra.Command, _ []string) error {
	if chatService == nil {
		return notConfigured("chat")
	}
	sessions, err := chatService.Sessions(cmd.Context(), sessionListLimit)
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}
	if len(sessions) == 0 {
		cmd.Println("No sessions.")
		return nil
	}
	for i := range sessions {
		s := &sessions[i]
		cmd.Printf("  %s  %s  %s\n", s.ID, s.StartedAt.Local().Format("2006-01-02 15:04"), s.Config.Model)
	}
	return nil
}

func runSessionShow(cmd *cobra.Command, args []string) error {
	if chatService == nil {
		return notConfigured("chat")
	}
	messages, err := chatService.History(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("show session: %w", err)
	}
	for i := range messages {
		printMessage(cmd, &messages[i])
	}
	return nil
}

func runSessionSummarize(cmd *cobra.Command, args []string) error {
	if chatService == nil {
		return notConfigured("chat")
	}
	summary, err := chatService.Summarize(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("summarize session: %w", err)
	}
	cmd.Println(summary)
	return nil
}

func printMessage(cmd *cobra.Command, m *domain.Message) {
	switch m.Role {
	case domain.RoleTool:
		cmd.Printf("[tool %s] %s\n", m.ToolName, snippet(m.Content, 200))
	default:
		cmd.Printf("[%s] %s\n", m.Role, m.Content)
		for _, call := range m.ToolCalls {
			cmd.Printf("  -> %s %s\n", call.Name, formatArguments(call.Arguments))
		}
	}
}
