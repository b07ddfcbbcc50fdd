package cli

import (
	"fmt"
	"net"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/cosmikwolf/sazid/internal/adapters/driving/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "MCP server commands",
	Long:  `Commands for the Model Context Protocol (MCP) server integration.`,
}

var mcpServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server",
	Long: `Start the Model Context Protocol server so other assistants can use
sazid's retrieval and tools.

The server exposes a "retrieve" tool answering similarity queries, every
registered tool under its own name, and resources describing the store.

By default, the server communicates over stdio using JSON-RPC. Use --port
to serve streamable HTTP instead. HTTP binds to localhost unless --host
names another interface.

Examples:
  # Stdio mode (default)
  sazid mcp serve

  # HTTP mode (for MCP Inspector, remote access)
  sazid mcp serve --port 8080

  # HTTP on every interface
  sazid mcp serve --host 0.0.0.0 --port 8080

Client configuration:
  {
    "mcpServers": {
      "sazid": {
        "command": "/path/to/sazid",
        "args": ["mcp", "serve"]
      }
    }
  }`,
	RunE: runMCPServe,
}

var (
	mcpPort int
	mcpHost string
)

func init() {
	mcpServeCmd.Flags().IntVarP(&mcpPort, "port", "p", 0, "HTTP port (0 = use stdio)")
	mcpServeCmd.Flags().StringVar(&mcpHost, "host", "localhost", "HTTP interface to bind")
	mcpCmd.AddCommand(mcpServeCmd)
	rootCmd.AddCommand(mcpCmd)
}

func runMCPServe(cmd *cobra.Command, _ []string) error {
	if retrievalService == nil {
		return notConfigured("retrieval")
	}

	server, err := mcp.NewServer(&mcp.Ports{
		Retrieval: retrievalService,
		Tools:     toolService,
		Ingest:    ingestService,
	})
	if err != nil {
		return err
	}

	if mcpPort <= 0 {
		return server.Run(cmd.Context())
	}

	ln, err := net.Listen("tcp", net.JoinHostPort(mcpHost, strconv.Itoa(mcpPort)))
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "MCP server listening on http://%s\n", ln.Addr())
	return server.Serve(cmd.Context(), ln)
}
