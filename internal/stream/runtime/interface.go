// Package runtime provides the backends that run a room's transcoder process.
package runtime

import (
	"context"
	"time"
)

// Runtime launches transcoder processes.
// Implementations include raw process execution and Docker.
type Runtime interface {
	// Start launches the process and returns a handle. The process outlives ctx;
	// ctx only bounds the launch itself.
	Start(ctx context.Context, opts StartOptions) (Handle, error)
}

// StartOptions contains the parameters for launching a transcoder.
type StartOptions struct {
	// Name identifies the process, e.g. the room id. Docker uses it in the container name.
	Name string
	// Image is the container image. Ignored by ExecRuntime.
	Image string
	// Command is the full argv, binary first.
	Command []string
	// WorkDir is the directory the process writes into.
	WorkDir string
	// Mounts are extra host directories the process reads from.
	Mounts []string
	// LogPath receives the process's diagnostic output. Stdout is discarded.
	LogPath string
}

// ExitResult describes how a process ended.
type ExitResult struct {
	ExitCode int
	Error    error
}

// Handle represents a running transcoder.
type Handle interface {
	// Wait blocks until the process exits or ctx is done.
	Wait(ctx context.Context) (ExitResult, error)

	// Stop requests graceful termination, waits up to grace, then kills.
	Stop(ctx context.Context, grace time.Duration) error

	// Alive reports whether the process is still running.
	Alive() bool
}
