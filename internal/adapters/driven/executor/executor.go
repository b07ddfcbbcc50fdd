// Package executor spawns validated tool commands without a shell and maps
// their outcome onto the tool result contract.
package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"

	"github.com/cosmikwolf/sazid/internal/core/domain"
	"github.com/cosmikwolf/sazid/internal/core/ports/driven"
	"github.com/cosmikwolf/sazid/internal/logger"
)

// Ensure Executor implements the interface.
var _ driven.CommandExecutor = (*Executor)(nil)

// Default configuration values.
const (
	DefaultTimeout        = 30 * time.Second
	DefaultMaxOutputBytes = 256 * 1024
	DefaultWaitDelay      = 2 * time.Second
)

// Config holds executor configuration.
type Config struct {
	// DefaultTimeout applies to commands that carry none.
	DefaultTimeout time.Duration

	// MaxOutputBytes caps stdout and stderr each. Excess output is discarded.
	MaxOutputBytes int

	// WaitDelay bounds how long output pipes may stay open after the
	// process is killed, e.g. by an orphaned grandchild.
	WaitDelay time.Duration

	// Env replaces the inherited environment when non-nil.
	Env []string
}

// Executor runs commands directly via exec.CommandContext.
type Executor struct {
	cfg Config
}

// New creates an executor.
func New(cfg Config) *Executor {
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = DefaultTimeout
	}
	if cfg.MaxOutputBytes <= 0 {
		cfg.MaxOutputBytes = DefaultMaxOutputBytes
	}
	if cfg.WaitDelay <= 0 {
		cfg.WaitDelay = DefaultWaitDelay
	}
	return &Executor{cfg: cfg}
}

// Execute runs cmd to completion or until its timeout. Process failures
// are reported in the result; the error is non-nil only when ctx itself
// is cancelled.
func (e *Executor) Execute(ctx context.Context, cmd domain.Command) (*domain.ToolResult, error) {
	timeout := cmd.Timeout
	if timeout <= 0 {
		timeout = e.cfg.DefaultTimeout
	}

	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	proc := exec.CommandContext(execCtx, cmd.Program, cmd.Args...)
	proc.Dir = cmd.Dir
	proc.Env = e.cfg.Env
	if cmd.Stdin != "" {
		proc.Stdin = strings.NewReader(cmd.Stdin)
	}
	setupProcessGroup(proc)
	proc.Cancel = func() error { return killProcessGroup(proc) }
	proc.WaitDelay = e.cfg.WaitDelay

	var stdoutBuf, stderrBuf bytes.Buffer
	stdout := &limitedWriter{w: &stdoutBuf, max: int64(e.cfg.MaxOutputBytes)}
	stderr := &limitedWriter{w: &stderrBuf, max: int64(e.cfg.MaxOutputBytes)}
	proc.Stdout = stdout
	proc.Stderr = stderr

	logger.Debug("exec %s %v (timeout %s)", cmd.Program, cmd.Args, timeout)
	start := time.Now()
	runErr := proc.Run()

	result := &domain.ToolResult{
		Stdout:    stdoutBuf.String(),
		Stderr:    stderrBuf.String(),
		Truncated: stdout.truncated || stderr.truncated,
		Duration:  time.Since(start),
	}
	if result.Truncated {
		logger.Warn("%s: output truncated, %d bytes discarded", cmd.Program, stdout.discarded+stderr.discarded)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if errors.Is(execCtx.Err(), context.DeadlineExceeded) {
		result.Status = domain.StatusFailure
		result.Kind = domain.KindExecutionTimedOut
		result.Reason = fmt.Sprintf("%s killed after %s timeout", cmd.Program, timeout)
		logger.Warn("%s", result.Reason)
		return result, nil
	}

	code := 0
	if runErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) {
			// The process never ran: missing binary, bad directory.
			result.Status = domain.StatusFailure
			result.Kind = domain.KindExecutionFailed
			result.Reason = runErr.Error()
			return result, nil
		}
		code = exitErr.ExitCode()
	}
	result.ExitCode = &code

	switch {
	case cmd.IsEmptyCode(code):
		result.Status = domain.StatusSuccess
		result.Stdout = ""
	case cmd.IsSuccessCode(code):
		result.Status = domain.StatusSuccess
	default:
		result.Status = domain.StatusFailure
		result.Kind = domain.KindExecutionFailed
		result.Reason = fmt.Sprintf("%s exited with status %d", cmd.Program, code)
	}
	logger.Debug("exec %s -> exit=%d in %s, stdout=%d bytes", cmd.Program, code, result.Duration, len(result.Stdout))
	return result, nil
}

// limitedWriter keeps the first max bytes and counts the rest.
type limitedWriter struct {
	w         io.Writer
	max       int64
	written   int64
	truncated bool
	discarded int64
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)
	remaining := lw.max - lw.written
	if remaining <= 0 {
		lw.truncated = true
		lw.discarded += int64(n)
		return n, nil
	}
	if int64(n) > remaining {
		lw.truncated = true
		lw.discarded += int64(n) - remaining
		written, err := lw.w.Write(p[:remaining])
		lw.written += int64(written)
		// Report the full length so the process does not see a short write.
		return n, err
	}
	written, err := lw.w.Write(p)
	lw.written += int64(written)
	return written, err
}
