package domain

import (
	"slices"
	"time"
)

// ToolKind is the closed set of tool variants the dispatcher can drive.
type ToolKind string

// Tool variants.
const (
	// ToolKindSearch runs a pattern search over project files.
	ToolKindSearch ToolKind = "search"

	// ToolKindPatch applies a unified diff to a project file.
	ToolKindPatch ToolKind = "patch"

	// ToolKindReadFile prints a line range of one project file.
	ToolKindReadFile ToolKind = "read_file"

	// ToolKindFileSearch finds project files by name.
	ToolKindFileSearch ToolKind = "file_search"

	// ToolKindCreateFile writes a new project file; existing files are
	// never overwritten.
	ToolKindCreateFile ToolKind = "create_file"

	// ToolKindCLI wraps an arbitrary program declared in a manifest.
	ToolKindCLI ToolKind = "cli"
)

// IsValid returns true if the kind is recognised.
func (k ToolKind) IsValid() bool {
	switch k {
	case ToolKindSearch, ToolKindPatch, ToolKindReadFile, ToolKindFileSearch, ToolKindCreateFile, ToolKindCLI:
		return true
	default:
		return false
	}
}

// ParamType is the syntactic type of a tool parameter.
type ParamType string

// Parameter types.
const (
	ParamString  ParamType = "string"
	ParamInteger ParamType = "integer"
	ParamBoolean ParamType = "boolean"

	// ParamEnum must be one of AllowedValues.
	ParamEnum ParamType = "enum"

	// ParamOptions is a comma-separated list whose elements must each be
	// one of AllowedValues.
	ParamOptions ParamType = "options"

	// ParamPath is a single path that must resolve inside the project root.
	ParamPath ParamType = "path"

	// ParamPaths is a comma-separated list of paths.
	ParamPaths ParamType = "paths"
)

// IsValid returns true if the type is recognised.
func (t ParamType) IsValid() bool {
	switch t {
	case ParamString, ParamInteger, ParamBoolean, ParamEnum, ParamOptions, ParamPath, ParamPaths:
		return true
	default:
		return false
	}
}

// JSONType returns the JSON schema type shown to the model.
// All arguments travel as strings except integers and booleans.
func (t ParamType) JSONType() string {
	switch t {
	case ParamInteger:
		return "integer"
	case ParamBoolean:
		return "boolean"
	default:
		return "string"
	}
}

// ParameterSpec declares one tool parameter.
type ParameterSpec struct {
	Name        string    `yaml:"name" json:"name"`
	Type        ParamType `yaml:"type" json:"type"`
	Description string    `yaml:"description" json:"description"`
	Required    bool      `yaml:"required" json:"required"`

	// AllowedValues is the exact allow-list for enum and options parameters.
	AllowedValues []string `yaml:"allowed_values" json:"allowed_values,omitempty"`

	// Pattern is a regular expression the whole value must match.
	Pattern string `yaml:"pattern" json:"pattern,omitempty"`

	// Default is used when an optional parameter is omitted.
	Default string `yaml:"default" json:"default,omitempty"`

	// Flag precedes the value on the command line (e.g. "-e"). Booleans
	// emit only the flag when true. Parameters without a flag are
	// positional, in declaration order.
	Flag string `yaml:"flag" json:"flag,omitempty"`
}

// ToolDefinition describes a registered tool. Immutable after registration.
type ToolDefinition struct {
	Name        string
	Description string
	Kind        ToolKind

	// Program is the executable run by the tool.
	Program string

	// Args are fixed leading arguments placed before derived ones.
	Args []string

	Parameters []ParameterSpec

	// SuccessExitCodes are exit codes reported as success. Defaults to {0}.
	SuccessExitCodes []int

	// EmptyExitCodes are exit codes meaning success with no output,
	// such as a search finding no matches.
	EmptyExitCodes []int

	// Timeout overrides the dispatcher default when positive.
	Timeout time.Duration
}

// Parameter returns the named parameter spec.
func (d *ToolDefinition) Parameter(name string) (ParameterSpec, bool) {
	for _, p := range d.Parameters {
		if p.Name == name {
			return p, true
		}
	}
	return ParameterSpec{}, false
}

// ToolInvocation is one requested tool call.
type ToolInvocation struct {
	ID        string
	Tool      string
	Arguments map[string]string
}

// ResultStatus is the coarse outcome of a tool invocation.
type ResultStatus string

// Result statuses.
const (
	StatusSuccess ResultStatus = "success"
	StatusFailure ResultStatus = "failure"
)

// ToolResult is returned to the coordinator for every invocation,
// including rejected and failed ones.
type ToolResult struct {
	Status   ResultStatus `json:"status"`
	Stdout   string       `json:"stdout"`
	Stderr   string       `json:"stderr"`
	ExitCode *int         `json:"exit_code,omitempty"`

	// Kind classifies a failure.
	Kind ErrorKind `json:"kind,omitempty"`

	// Reason explains a rejection or failure to the model.
	Reason string `json:"reason,omitempty"`

	// Truncated is set when captured output hit the size limit.
	Truncated bool `json:"truncated,omitempty"`

	Duration time.Duration `json:"-"`
}

// OK returns true for successful results.
func (r *ToolResult) OK() bool {
	return r.Status == StatusSuccess
}

// Rejected builds a result for an invocation that failed validation.
func Rejected(reason string) *ToolResult {
	return &ToolResult{Status: StatusFailure, Kind: KindValidationRejected, Reason: reason}
}

// Command is a fully validated process to spawn.
type Command struct {
	Program string
	Args    []string
	Dir     string
	Stdin   string
	Timeout time.Duration

	// SuccessExitCodes and EmptyExitCodes mirror the tool definition.
	SuccessExitCodes []int
	EmptyExitCodes   []int
}

// IsSuccessCode reports whether code maps to success.
func (c *Command) IsSuccessCode(code int) bool {
	if len(c.SuccessExitCodes) == 0 {
		return code == 0
	}
	return slices.Contains(c.SuccessExitCodes, code)
}

// IsEmptyCode reports whether code maps to success with an empty result.
func (c *Command) IsEmptyCode(code int) bool {
	return slices.Contains(c.EmptyExitCodes, code)
}

// InvocationState tracks a tool invocation through dispatch.
type InvocationState string

// Invocation states.
const (
	StateReceived   InvocationState = "received"
	StateValidating InvocationState = "validating"
	StateRejected   InvocationState = "rejected"
	StateExecuting  InvocationState = "executing"
	StateCompleted  InvocationState = "completed"
	StateFailed     InvocationState = "failed"
)

// IsTerminal returns true for states with no successor.
func (s InvocationState) IsTerminal() bool {
	return s == StateRejected || s == StateCompleted || s == StateFailed
}

// CanTransition reports whether next is a legal successor of s.
func (s InvocationState) CanTransition(next InvocationState) bool {
	switch s {
	case StateReceived:
		return next == StateValidating
	case StateValidating:
		return next == StateRejected || next == StateExecuting
	case StateExecuting:
		return next == StateCompleted || next == StateFailed
	default:
		return false
	}
}

// String returns the string representation.
func (s InvocationState) String() string {
	return string(s)
}
