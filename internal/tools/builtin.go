package tools

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cosmikwolf/sazid/internal/core/domain"
)

// Built-in tool names.
const (
	SearchToolName     = "search"
	PatchToolName      = "patch_files"
	ReadFileToolName   = "read_file"
	FileSearchToolName = "file_search"
	CreateFileToolName = "create_file"
)

// SearchOptions is the allow-list of grep options the model may pass.
var SearchOptions = []string{"-i", "-n", "-l", "-L", "-c", "-v", "-H", "-h", "-o", "-w", "-x", "-F", "-E", "-s"}

// SearchTool returns the definition of the recursive pattern search tool.
// grep exits 1 when nothing matches, which is not an error.
func SearchTool() domain.ToolDefinition {
	return domain.ToolDefinition{
		Name:        SearchToolName,
		Description: "Search project files for a regular expression (grep -r). Returns matching lines.",
		Kind:        domain.ToolKindSearch,
		Program:     "grep",
		Args:        []string{"-r", "-I", "--color=never"},
		Parameters: []domain.ParameterSpec{
			{
				Name:          "options",
				Type:          domain.ParamOptions,
				Description:   "Comma-separated grep options, e.g. \"-i,-n\".",
				AllowedValues: SearchOptions,
			},
			{
				Name:        "pattern",
				Type:        domain.ParamString,
				Description: "Pattern to search for.",
				Required:    true,
			},
			{
				Name:        "paths",
				Type:        domain.ParamPaths,
				Description: "Comma-separated files or directories relative to the project root.",
				Default:     ".",
			},
		},
		EmptyExitCodes: []int{1},
	}
}

// PatchTool returns the definition of the unified-diff patch tool. The
// diff is fed to patch on stdin.
func PatchTool() domain.ToolDefinition {
	return domain.ToolDefinition{
		Name:        PatchToolName,
		Description: "Apply a unified diff to project files. Paths in the diff are relative to the project root.",
		Kind:        domain.ToolKindPatch,
		Program:     "patch",
		Args:        []string{"--batch", "--forward", "--no-backup-if-mismatch", "--reject-file=-"},
		Parameters: []domain.ParameterSpec{
			{
				Name:        "patch",
				Type:        domain.ParamString,
				Description: "Unified diff content.",
				Required:    true,
			},
			{
				Name:        "strip",
				Type:        domain.ParamInteger,
				Description: "Leading path components to strip from diff file names (patch -p).",
				Pattern:     "[0-9]",
				Default:     "1",
			},
			{
				Name:        "dry_run",
				Type:        domain.ParamBoolean,
				Description: "Check that the patch applies without changing files.",
				Flag:        "--dry-run",
			},
			{
				Name:        "file",
				Type:        domain.ParamPath,
				Description: "Patch this file instead of the one named in the diff.",
			},
		},
	}
}

// ReadFileTool returns the definition of the line-range reader.
func ReadFileTool() domain.ToolDefinition {
	return domain.ToolDefinition{
		Name:        ReadFileToolName,
		Description: "Read lines of a project file. Omit end_line to read to the end of the file.",
		Kind:        domain.ToolKindReadFile,
		Program:     "sed",
		Args:        []string{"-n"},
		Parameters: []domain.ParameterSpec{
			{
				Name:        "path",
				Type:        domain.ParamPath,
				Description: "File to read, relative to the project root.",
				Required:    true,
			},
			{
				Name:        "start_line",
				Type:        domain.ParamInteger,
				Description: "First line to print, counting from 1.",
				Pattern:     "[1-9][0-9]*",
				Default:     "1",
			},
			{
				Name:        "end_line",
				Type:        domain.ParamInteger,
				Description: "Last line to print.",
				Pattern:     "[1-9][0-9]*",
			},
		},
	}
}

// FileSearchTool returns the definition of the find-by-name tool. The
// .git directory is never descended into.
func FileSearchTool() domain.ToolDefinition {
	return domain.ToolDefinition{
		Name:        FileSearchToolName,
		Description: "Find project files whose name matches a glob, e.g. \"*_test.go\". Returns one path per line.",
		Kind:        domain.ToolKindFileSearch,
		Program:     "find",
		Parameters: []domain.ParameterSpec{
			{
				Name:        "name",
				Type:        domain.ParamString,
				Description: "File name glob; matched against the base name only.",
				Pattern:     "[^/]+",
				Required:    true,
			},
			{
				Name:        "paths",
				Type:        domain.ParamPaths,
				Description: "Comma-separated directories to search, relative to the project root.",
				Default:     ".",
			},
			{
				Name:        "ignore_case",
				Type:        domain.ParamBoolean,
				Description: "Match the name case-insensitively.",
			},
		},
	}
}

// createFileScript creates parent directories and writes stdin to $1.
// noclobber makes the redirection fail when the file already exists.
const createFileScript = `set -C; mkdir -p -- "$(dirname -- "$1")" && cat > "$1"`

// CreateFileTool returns the definition of the new-file tool. The content
// is fed to the shell on stdin and the path is passed as a positional
// argument, never as script text.
func CreateFileTool() domain.ToolDefinition {
	return domain.ToolDefinition{
		Name:        CreateFileToolName,
		Description: "Create a new project file with the given content. Existing files are never overwritten; use patch_files to change them.",
		Kind:        domain.ToolKindCreateFile,
		Program:     "sh",
		Args:        []string{"-c", createFileScript, "sh"},
		Parameters: []domain.ParameterSpec{
			{
				Name:        "path",
				Type:        domain.ParamPath,
				Description: "File to create, relative to the project root. Missing directories are created.",
				Required:    true,
			},
			{
				Name:        "content",
				Type:        domain.ParamString,
				Description: "Content of the new file.",
			},
		},
	}
}

// Builtins returns the built-in tools.
func Builtins() []domain.ToolDefinition {
	return []domain.ToolDefinition{SearchTool(), PatchTool(), ReadFileTool(), FileSearchTool(), CreateFileTool()}
}

// buildCommand turns validated arguments into a process invocation for
// the tool's variant.
func buildCommand(def *domain.ToolDefinition, args Arguments, v *Validator) (domain.Command, error) {
	cmd := domain.Command{
		Program:          def.Program,
		Args:             append([]string(nil), def.Args...),
		Dir:              v.Root(),
		Timeout:          def.Timeout,
		SuccessExitCodes: def.SuccessExitCodes,
		EmptyExitCodes:   def.EmptyExitCodes,
	}

	switch def.Kind {
	case domain.ToolKindSearch:
		cmd.Args = append(cmd.Args, args.List("options")...)
		cmd.Args = append(cmd.Args, "-e", args.String("pattern"), "--")
		cmd.Args = append(cmd.Args, args.List("paths")...)

	case domain.ToolKindPatch:
		strip := args.Int("strip")
		if err := checkDiffPaths(args.String("patch"), strip, v); err != nil {
			return cmd, err
		}
		cmd.Args = append(cmd.Args, "-p"+strconv.Itoa(strip))
		if args.Bool("dry_run") {
			cmd.Args = append(cmd.Args, "--dry-run")
		}
		if args.Has("file") {
			cmd.Args = append(cmd.Args, "--", args.String("file"))
		}
		cmd.Stdin = args.String("patch")

	case domain.ToolKindReadFile:
		path := args.String("path")
		if err := requireRegularFile(v, path); err != nil {
			return cmd, err
		}
		start := args.Int("start_line")
		script := strconv.Itoa(start) + ",$p"
		if args.Has("end_line") {
			end := args.Int("end_line")
			if end < start {
				return cmd, reject("end_line %d is before start_line %d", end, start)
			}
			script = fmt.Sprintf("%d,%dp", start, end)
		}
		cmd.Args = append(cmd.Args, script, "--", path)

	case domain.ToolKindFileSearch:
		for _, dir := range args.List("paths") {
			cmd.Args = append(cmd.Args, findOperand(dir))
		}
		match := "-name"
		if args.Bool("ignore_case") {
			match = "-iname"
		}
		cmd.Args = append(cmd.Args, "-name", ".git", "-prune", "-o", "-type", "f", match, args.String("name"), "-print")

	case domain.ToolKindCreateFile:
		path := args.String("path")
		_, err := os.Lstat(filepath.Join(v.Root(), path))
		switch {
		case err == nil:
			return cmd, reject("%s already exists; %s never overwrites files, use %s to change it",
				path, def.Name, PatchToolName)
		case !errors.Is(err, fs.ErrNotExist):
			return cmd, reject("cannot inspect %s: %v", path, err)
		}
		cmd.Args = append(cmd.Args, path)
		cmd.Stdin = args.String("content")

	case domain.ToolKindCLI:
		for _, p := range def.Parameters {
			if !args.Has(p.Name) {
				continue
			}
			extra, err := cliArgs(p, args)
			if err != nil {
				return cmd, err
			}
			cmd.Args = append(cmd.Args, extra...)
		}

	default:
		return cmd, reject("tool %s has unsupported kind %q", def.Name, def.Kind)
	}
	return cmd, nil
}

// cliArgs renders one parameter of a manifest tool.
func cliArgs(p domain.ParameterSpec, args Arguments) ([]string, error) {
	switch p.Type {
	case domain.ParamBoolean:
		if p.Flag != "" && args.Bool(p.Name) {
			return []string{p.Flag}, nil
		}
		if p.Flag == "" {
			return []string{args.String(p.Name)}, nil
		}
		return nil, nil

	case domain.ParamOptions, domain.ParamPaths:
		list := args.List(p.Name)
		if p.Flag == "" {
			return list, nil
		}
		out := make([]string, 0, 2*len(list))
		for _, item := range list {
			out = append(out, p.Flag, item)
		}
		return out, nil

	default:
		value := args.String(p.Name)
		if p.Flag != "" {
			return []string{p.Flag, value}, nil
		}
		if strings.HasPrefix(value, "-") {
			return nil, reject("argument %q may not start with '-'", p.Name)
		}
		return []string{value}, nil
	}
}

func requireRegularFile(v *Validator, rel string) error {
	info, err := os.Stat(filepath.Join(v.Root(), rel))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return reject("file %s does not exist; use %s to find it", rel, FileSearchToolName)
		}
		return reject("cannot read %s: %v", rel, err)
	}
	if !info.Mode().IsRegular() {
		return reject("%s is not a regular file", rel)
	}
	return nil
}

// findOperand keeps a relative path from being parsed as a find
// expression such as "!" or "(".
func findOperand(rel string) string {
	if rel == "." || strings.HasPrefix(rel, "."+string(filepath.Separator)) {
		return rel
	}
	return "." + string(filepath.Separator) + rel
}

// checkDiffPaths rejects diffs whose target files lie outside the root.
func checkDiffPaths(diff string, strip int, v *Validator) error {
	found := false
	scanner := bufio.NewScanner(strings.NewReader(diff))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "--- ") && !strings.HasPrefix(line, "+++ ") {
			continue
		}
		name := strings.TrimSpace(line[4:])
		if i := strings.IndexByte(name, '\t'); i >= 0 {
			name = name[:i]
		}
		if name == "" || name == "/dev/null" {
			continue
		}
		found = true
		stripped := stripComponents(name, strip)
		if stripped == "" {
			return reject("diff file name %q has fewer than %d components", name, strip)
		}
		if _, err := v.Contain(stripped); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return reject("cannot read diff: %v", err)
	}
	if !found {
		return reject("patch contains no ---/+++ file headers; send a unified diff")
	}
	return nil
}

func stripComponents(name string, n int) string {
	parts := strings.Split(filepath.ToSlash(name), "/")
	if n >= len(parts) {
		return ""
	}
	return filepath.FromSlash(strings.Join(parts[n:], "/"))
}

// describeOutcome is a one-line summary for logs.
func describeOutcome(res *domain.ToolResult) string {
	if res.OK() {
		if res.ExitCode != nil {
			return fmt.Sprintf("ok (exit %d)", *res.ExitCode)
		}
		return "ok"
	}
	return fmt.Sprintf("%s: %s", res.Kind, res.Reason)
}
