package runtime

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"
	"time"
)

// ExecRuntime implements the Runtime interface using raw OS processes.
type ExecRuntime struct {
	// WorkDir is used when StartOptions.WorkDir is empty.
	WorkDir string
}

// NewExecRuntime creates a new process-based runtime.
func NewExecRuntime(workDir string) *ExecRuntime {
	if workDir == "" {
		workDir = filepath.Join(os.TempDir(), "roomplane", "streams")
	}
	return &ExecRuntime{WorkDir: workDir}
}

// ExecHandle is a running OS process.
type ExecHandle struct {
	cmd     *exec.Cmd
	logFile *os.File

	done   chan struct{}
	mu     sync.Mutex
	result ExitResult
}

// Start implements Runtime.Start using os/exec.
func (e *ExecRuntime) Start(ctx context.Context, opts StartOptions) (Handle, error) {
	if len(opts.Command) == 0 {
		return nil, fmt.Errorf("command is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	workDir := opts.WorkDir
	if workDir == "" {
		workDir = e.WorkDir
	}
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create work dir: %w", err)
	}

	logPath := opts.LogPath
	if logPath == "" {
		logPath = os.DevNull
	}
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	// Not CommandContext: a stream runs for hours, long after the launching job returns.
	cmd := exec.Command(opts.Command[0], opts.Command[1:]...)
	cmd.Dir = workDir
	cmd.Stdout = nil
	cmd.Stderr = logFile

	if err := cmd.Start(); err != nil {
		logFile.Close()
		return nil, fmt.Errorf("failed to start %s: %w", opts.Command[0], err)
	}

	h := &ExecHandle{cmd: cmd, logFile: logFile, done: make(chan struct{})}
	go h.reap()
	return h, nil
}

func (h *ExecHandle) reap() {
	err := h.cmd.Wait()
	h.logFile.Close()

	res := ExitResult{ExitCode: h.cmd.ProcessState.ExitCode()}
	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		res.Error = err
	}

	h.mu.Lock()
	h.result = res
	h.mu.Unlock()
	close(h.done)
}

// Wait implements Handle.Wait.
func (h *ExecHandle) Wait(ctx context.Context) (ExitResult, error) {
	select {
	case <-h.done:
		h.mu.Lock()
		defer h.mu.Unlock()
		return h.result, nil
	case <-ctx.Done():
		return ExitResult{ExitCode: -1, Error: ctx.Err()}, ctx.Err()
	}
}

// Stop sends SIGTERM, waits up to grace, then SIGKILL.
func (h *ExecHandle) Stop(ctx context.Context, grace time.Duration) error {
	if !h.Alive() {
		return nil
	}
	if err := h.cmd.Process.Signal(syscall.SIGTERM); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("failed to signal process: %w", err)
	}

	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case <-h.done:
		return nil
	case <-timer.C:
	case <-ctx.Done():
	}

	if err := h.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("failed to kill process: %w", err)
	}
	<-h.done
	return nil
}

// Alive implements Handle.Alive.
func (h *ExecHandle) Alive() bool {
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

