package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/cosmikwolf/sazid/internal/core/domain"
)

var (
	chatSession string
	chatModel   string
	chatTags    []string
	chatMessage string
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with the assistant",
	Long: `Starts or resumes a chat session.

Each line read from stdin is sent as one user message. The assistant may
call tools before it replies; retrieved project content is placed in its
context automatically.

Commands:
  /summarize   condense the session history into its summary
  /session     print the session ID
  /quit        leave the chat`,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVarP(&chatSession, "session", "s", "", "resume the session with this ID")
	chatCmd.Flags().StringVar(&chatModel, "model", "", "model for a new session")
	chatCmd.Flags().StringSliceVarP(&chatTags, "tag", "t", nil, "restrict retrieval to chunks with this tag")
	chatCmd.Flags().StringVarP(&chatMessage, "message", "m", "", "send one message and exit")
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, _ []string) error {
	if chatService == nil {
		return notConfigured("chat")
	}
	ctx := cmd.Context()

	sessionID := chatSession
	if sessionID == "" {
		session, err := chatService.StartSession(ctx, domain.SessionConfig{
			Model: chatModel,
			Tags:  chatTags,
		})
		if err != nil {
			return fmt.Errorf("start session: %w", err)
		}
		sessionID = session.ID
	}

	if chatMessage != "" {
		return sendMessage(cmd, sessionID, chatMessage)
	}

	in := cmd.InOrStdin()
	interactive := isTerminal(in)
	if interactive {
		cmd.Printf("Session %s. Type /quit to leave.\n", sessionID)
	}

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		if interactive {
			cmd.Print("> ")
		}
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/session":
			cmd.Println(sessionID)
			continue
		case "/summarize":
			summary, err := chatService.Summarize(ctx, sessionID)
			if err != nil {
				cmd.PrintErrf("summarize failed: %v\n", err)
				continue
			}
			cmd.Println(summary)
			continue
		}

		if err := sendMessage(cmd, sessionID, line); err != nil {
			if ctx.Err() != nil {
				return err
			}
			cmd.PrintErrln(err)
		}
	}
	return scanner.Err()
}

func sendMessage(cmd *cobra.Command, sessionID, text string) error {
	result, err := chatService.Send(cmd.Context(), sessionID, text)
	if err != nil {
		return fmt.Errorf("send failed: %w", err)
	}
	if result.Degraded {
		cmd.PrintErrln("(retrieval unavailable, answered without project context)")
	}
	if verbose {
		for _, msg := range result.Messages {
			for _, call := range msg.ToolCalls {
				cmd.PrintErrf("(tool %s %s)\n", call.Name, formatArguments(call.Arguments))
			}
		}
	}
	cmd.Println(result.Reply.Content)
	return nil
}

func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
