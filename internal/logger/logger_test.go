package logger

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func reset(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() {
		SetVerbose(false)
		SetOutput(os.Stderr)
	})
	return &buf
}

func TestSetVerbose(t *testing.T) {
	reset(t)

	SetVerbose(false)
	assert.False(t, IsVerbose())

	SetVerbose(true)
	assert.True(t, IsVerbose())

	SetVerbose(false)
	assert.False(t, IsVerbose())
}

func TestDebug_WhenVerbose(t *testing.T) {
	buf := reset(t)
	SetVerbose(true)

	Debug("test message %s", "arg")

	assert.Contains(t, buf.String(), "DEBUG")
	assert.Contains(t, buf.String(), "test message arg")
}

func TestDebug_WhenNotVerbose(t *testing.T) {
	buf := reset(t)
	SetVerbose(false)

	Debug("hidden")
	Info("hidden")
	Section("hidden")

	assert.Empty(t, buf.String())
}

func TestSection_WhenVerbose(t *testing.T) {
	buf := reset(t)
	SetVerbose(true)

	Section("Retrieval")

	assert.Contains(t, buf.String(), "=== Retrieval ===")
}

func TestWarnAndError_AlwaysWritten(t *testing.T) {
	buf := reset(t)
	SetVerbose(false)

	Warn("store degraded: %d", 3)
	Error("embedding failed")

	out := buf.String()
	assert.Contains(t, out, "WARN")
	assert.Contains(t, out, "store degraded: 3")
	assert.Contains(t, out, "ERROR")
	assert.Contains(t, out, "embedding failed")
}
