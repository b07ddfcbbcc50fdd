// Package cli implements the sazid command line on top of the core
// driving ports.
package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cosmikwolf/sazid/internal/core/ports/driving"
	"github.com/cosmikwolf/sazid/internal/logger"
)

// version is set at build time with -ldflags.
var version = "dev"

var verbose bool

// Services are the core services the commands drive. A nil service makes
// its commands fail with a "not configured" error.
type Services struct {
	Settings  driving.SettingsService
	Retrieval driving.RetrievalService
	Ingest    driving.IngestService
	Tools     driving.ToolService
	Chat      driving.ChatService

	// Indexer is waited on by commands that accept --wait.
	Indexer IndexWaiter

	// SkipDirs are directory names the watcher ignores.
	SkipDirs []string
}

var (
	settingsService  driving.SettingsService
	retrievalService driving.RetrievalService
	ingestService    driving.IngestService
	toolService      driving.ToolService
	chatService      driving.ChatService
	indexer          IndexWaiter
	skipDirs         []string

	// setupErr explains why services are missing.
	setupErr error
)

var rootCmd = &cobra.Command{
	Use:   "sazid",
	Short: "A coding assistant with tool use and retrieval",
	Long: `sazid chats with a language model about a software project.

The model may search and patch project files through whitelisted tools.
Project files and past messages are embedded into a vector store and
retrieved into the prompt of every turn.`,
	SilenceUsage: true,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		logger.SetVerbose(verbose)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug output")
}

// SetVersion sets the version reported by the version command.
func SetVersion(v string) {
	if v != "" {
		version = v
	}
}

// SetServices installs the services used by the commands.
func SetServices(s *Services) {
	if s == nil {
		s = &Services{}
	}
	settingsService = s.Settings
	retrievalService = s.Retrieval
	ingestService = s.Ingest
	toolService = s.Tools
	chatService = s.Chat
	indexer = s.Indexer
	skipDirs = s.SkipDirs
}

// SetSetupError records why services could not be built. It is reported by
// commands whose service is missing.
func SetSetupError(err error) {
	setupErr = err
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// notConfigured is returned when a command's service is missing.
func notConfigured(name string) error {
	if setupErr != nil {
		return fmt.Errorf("%s service not configured: %w", name, setupErr)
	}
	return errors.New(name + " service not configured")
}

// ExecuteContext runs the root command with ctx.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}
