package cli

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/cosmikwolf/sazid/internal/core/domain"
	"github.com/cosmikwolf/sazid/internal/tools"
)

var (
	toolListJSON bool
	toolCallArgs string
)

var toolCmd = &cobra.Command{
	Use:   "tool",
	Short: "Inspect and run registered tools",
}

var toolListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered tools",
	RunE:  runToolList,
}

var toolCallCmd = &cobra.Command{
	Use:   "call [tool] [name=value...]",
	Short: "Run a tool the way the model would",
	Long: `Validates the arguments against the tool's parameter policy and runs it.

Arguments are given as name=value pairs, or as a JSON object with --args.
List values are comma separated.

Examples:
  sazid tool call search pattern=TODO paths=internal options=-n,-i
  sazid tool call patch_files --args '{"diff": "..."}'`,
	Args: cobra.MinimumNArgs(1),
	RunE: runToolCall,
}

func init() {
	toolListCmd.Flags().BoolVar(&toolListJSON, "json", false, "output definitions as JSON schemas")
	toolCallCmd.Flags().StringVar(&toolCallArgs, "args", "", "arguments as a JSON object")
	toolCmd.AddCommand(toolListCmd)
	toolCmd.AddCommand(toolCallCmd)
	rootCmd.AddCommand(toolCmd)
}

func runToolList(cmd *cobra.Command, _ []string) error {
	if toolService == nil {
		return notConfigured("tool")
	}
	defs := toolService.Definitions()

	if toolListJSON {
		schemas := make([]map[string]any, len(defs))
		for i := range defs {
			schemas[i] = map[string]any{
				"name":        defs[i].Name,
				"description": defs[i].Description,
				"parameters":  tools.JSONSchema(defs[i]),
			}
		}
		data, err := json.MarshalIndent(schemas, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal tools: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	if len(defs) == 0 {
		cmd.Println("No tools registered.")
		return nil
	}
	for i := range defs {
		cmd.Printf("  %-16s %-8s %s\n", defs[i].Name, defs[i].Kind, defs[i].Description)
		for _, p := range defs[i].Parameters {
			required := ""
			if p.Required {
				required = " (required)"
			}
			cmd.Printf("      %-14s %s%s\n", p.Name, p.Type, required)
		}
	}
	return nil
}

func runToolCall(cmd *cobra.Command, args []string) error {
	if toolService == nil {
		return notConfigured("tool")
	}

	arguments, err := parseToolArguments(toolCallArgs, args[1:])
	if err != nil {
		return err
	}

	result, err := toolService.Dispatch(cmd.Context(), domain.ToolInvocation{
		ID:        uuid.New().String(),
		Tool:      args[0],
		Arguments: arguments,
	})
	if err != nil {
		return fmt.Errorf("tool call failed: %w", err)
	}

	if result.Stdout != "" {
		cmd.Print(result.Stdout)
		if !strings.HasSuffix(result.Stdout, "\n") {
			cmd.Println()
		}
	}
	if result.Stderr != "" {
		cmd.PrintErr(result.Stderr)
	}
	if result.Truncated {
		cmd.PrintErrln("(output truncated)")
	}
	if !result.OK() {
		if result.Reason != "" {
			return fmt.Errorf("%s: %s", result.Kind, result.Reason)
		}
		return fmt.Errorf("%s", result.Kind)
	}
	return nil
}

// parseToolArguments merges a JSON object and name=value pairs. Pairs win.
func parseToolArguments(raw string, pairs []string) (map[string]string, error) {
	out, err := tools.DecodeArguments([]byte(raw))
	if err != nil {
		return nil, err
	}
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("argument %q is not name=value", pair)
		}
		out[name] = value
	}
	return out, nil
}

// formatArguments renders arguments as sorted name=value pairs.
func formatArguments(args map[string]string) string {
	parts := make([]string, 0, len(args))
	for _, name := range slices.Sorted(maps.Keys(args)) {
		value := args[name]
		if strings.ContainsAny(value, " \n\t") {
			value = fmt.Sprintf("%q", value)
		}
		parts = append(parts, name+"="+value)
	}
	return strings.Join(parts, " ")
}
