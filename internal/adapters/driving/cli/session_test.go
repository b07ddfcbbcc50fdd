package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionListCmd(t *testing.T) {
	_, cleanup := setupTestServices()
	defer cleanup()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"session", "list"})

	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, buf.String(), "session-1")
	assert.Contains(t, buf.String(), "gpt-4o")
}

func TestSessionShowCmd(t *testing.T) {
	_, cleanup := setupTestServices()
	defer cleanup()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"session", "show", "session-1"})

	require.NoError(t, rootCmd.Execute())
	out := buf.String()
	assert.Contains(t, out, "[user] find the TODOs")
	assert.Contains(t, out, "-> search pattern=TODO")
	assert.Contains(t, out, "[tool search]")
	assert.Contains(t, out, "[assistant] There is one TODO.")
}

func TestSessionShowCmd_RequiresID(t *testing.T) {
	_, cleanup := setupTestServices()
	defer cleanup()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs([]string{"session", "show"})

	err := rootCmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg(s)")
}

func TestSessionSummarizeCmd(t *testing.T) {
	m, cleanup := setupTestServices()
	defer cleanup()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"session", "summarize", "session-1"})

	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, buf.String(), "a short summary")

	m.chat.err = errMock
	rootCmd.SetArgs([]string{"session", "summarize", "session-1"})
	err := rootCmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "summarize session")
}
