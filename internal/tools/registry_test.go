package tools

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cosmikwolf/sazid/internal/core/domain"
)

func echoTool(name string) domain.ToolDefinition {
	return domain.ToolDefinition{
		Name:    name,
		Kind:    domain.ToolKindCLI,
		Program: "echo",
		Parameters: []domain.ParameterSpec{
			{Name: "text", Type: domain.ParamString},
		},
	}
}

func TestNewRegistry_Builtins(t *testing.T) {
	r, err := NewRegistry(Builtins()...)
	require.NoError(t, err)

	assert.Equal(t, 5, r.Len())
	assert.Equal(t, []string{SearchToolName, PatchToolName, ReadFileToolName, FileSearchToolName, CreateFileToolName}, r.Names())

	def, ok := r.Lookup(SearchToolName)
	require.True(t, ok)
	assert.Equal(t, domain.ToolKindSearch, def.Kind)

	_, ok = r.Lookup("missing")
	assert.False(t, ok)
}

func TestNewRegistry_LookupReturnsCopy(t *testing.T) {
	r, err := NewRegistry(SearchTool())
	require.NoError(t, err)

	def, _ := r.Lookup(SearchToolName)
	def.Parameters[0].AllowedValues[0] = "--exec"
	def.Args[0] = "--changed"

	again, _ := r.Lookup(SearchToolName)
	assert.Equal(t, "-i", again.Parameters[0].AllowedValues[0])
	assert.Equal(t, "-r", again.Args[0])
}

func TestNewRegistry_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*domain.ToolDefinition)
	}{
		{"empty name", func(d *domain.ToolDefinition) { d.Name = "" }},
		{"unknown kind", func(d *domain.ToolDefinition) { d.Kind = "shell" }},
		{"missing program", func(d *domain.ToolDefinition) { d.Program = "" }},
		{"program with spaces", func(d *domain.ToolDefinition) { d.Program = "rm -rf" }},
		{"unknown param type", func(d *domain.ToolDefinition) { d.Parameters[0].Type = "float" }},
		{"enum without values", func(d *domain.ToolDefinition) { d.Parameters[0].Type = domain.ParamEnum }},
		{"bad pattern", func(d *domain.ToolDefinition) { d.Parameters[0].Pattern = "([" }},
		{"duplicate param", func(d *domain.ToolDefinition) {
			d.Parameters = append(d.Parameters, d.Parameters[0])
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def := echoTool("echo")
			tt.mutate(&def)
			_, err := NewRegistry(def)
			require.Error(t, err)
			assert.Equal(t, domain.KindConfiguration, domain.KindOf(err))
		})
	}
}

func TestNewRegistry_DuplicateName(t *testing.T) {
	_, err := NewRegistry(echoTool("echo"), echoTool("echo"))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConfiguration)
	assert.Contains(t, err.Error(), "registered twice")
}
