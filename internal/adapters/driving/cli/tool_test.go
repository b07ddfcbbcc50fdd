package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cosmikwolf/sazid/internal/core/domain"
	"github.com/cosmikwolf/sazid/internal/tools"
)

func TestToolCmd_HasSubcommands(t *testing.T) {
	names := make([]string, 0)
	for _, cmd := range toolCmd.Commands() {
		names = append(names, cmd.Name())
	}
	assert.ElementsMatch(t, []string{"list", "call"}, names)
}

func TestToolListCmd(t *testing.T) {
	_, cleanup := setupTestServices()
	defer cleanup()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"tool", "list"})

	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, buf.String(), tools.SearchToolName)
	assert.Contains(t, buf.String(), tools.PatchToolName)
	assert.Contains(t, buf.String(), "(required)")
}

func TestToolListCmd_JSON(t *testing.T) {
	_, cleanup := setupTestServices()
	defer cleanup()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"tool", "list", "--json"})

	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, buf.String(), `"name": "search"`)
	assert.Contains(t, buf.String(), `"type": "object"`)
}

func TestToolCallCmd_Success(t *testing.T) {
	m, cleanup := setupTestServices()
	defer cleanup()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"tool", "call", "search", "--args", `{"options":["-n"]}`, "pattern=TODO"})

	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, buf.String(), "main.go:3:TODO")

	require.Len(t, m.tools.invocations, 1)
	inv := m.tools.invocations[0]
	assert.Equal(t, "search", inv.Tool)
	assert.NotEmpty(t, inv.ID)
	assert.Equal(t, map[string]string{"pattern": "TODO", "options": "-n"}, inv.Arguments)
}

func TestToolCallCmd_Rejected(t *testing.T) {
	m, cleanup := setupTestServices()
	defer cleanup()
	m.tools.result = domain.Rejected(`path "../etc" escapes the project root`)

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs([]string{"tool", "call", "search", "pattern=x", "paths=../etc"})

	err := rootCmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validation_rejected")
	assert.Contains(t, err.Error(), "escapes the project root")
}

func TestParseToolArguments(t *testing.T) {
	args, err := parseToolArguments("", []string{"pattern=a=b", "path="})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"pattern": "a=b", "path": ""}, args)

	_, err = parseToolArguments("", []string{"novalue"})
	assert.Error(t, err)

	_, err = parseToolArguments(`{"nested":{"x":1}}`, nil)
	assert.Error(t, err)
}

func TestFormatArguments(t *testing.T) {
	got := formatArguments(map[string]string{"pattern": "two words", "paths": "src"})
	assert.Equal(t, `paths=src pattern="two words"`, got)
	assert.Empty(t, formatArguments(nil))
}
