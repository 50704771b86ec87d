package runtime

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

// dockerAPI is the subset of the Docker client the runtime uses.
type dockerAPI interface {
	ImageInspect(ctx context.Context, imageID string, inspectOpts ...client.ImageInspectOption) (image.InspectResponse, error)
	ImagePull(ctx context.Context, refStr string, options image.PullOptions) (io.ReadCloser, error)
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerWait(ctx context.Context, containerID string, condition container.WaitCondition) (<-chan container.WaitResponse, <-chan error)
	ContainerLogs(ctx context.Context, containerID string, options container.LogsOptions) (io.ReadCloser, error)
	ContainerStop(ctx context.Context, containerID string, options container.StopOptions) error
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
}

// DockerRuntime implements the Runtime interface using the Docker SDK.
// Directories are bind-mounted at their host paths so the playlist's absolute paths resolve inside the container.
type DockerRuntime struct {
	client dockerAPI
}

// DockerHandle represents a running container.
type DockerHandle struct {
	client      dockerAPI
	containerID string

	done   chan struct{}
	mu     sync.Mutex
	result ExitResult
}

// NewDockerRuntime creates a new Docker-based runtime.
func NewDockerRuntime() (*DockerRuntime, error) {
	// Initializes client from standard environment variables (DOCKER_HOST, etc.)
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create Docker client: %w", err)
	}
	return &DockerRuntime{client: cli}, nil
}

// ContainerName returns the container name used for a stream.
func ContainerName(name string) string {
	return "roomplane-" + name
}

// Start implements Runtime.Start using Docker containers.
func (d *DockerRuntime) Start(ctx context.Context, opts StartOptions) (Handle, error) {
	if len(opts.Command) == 0 {
		return nil, fmt.Errorf("command is required")
	}
	if opts.Image == "" {
		return nil, fmt.Errorf("image is required")
	}

	// Check if it exists locally first to save time.
	if _, err := d.client.ImageInspect(ctx, opts.Image); err != nil {
		reader, err := d.client.ImagePull(ctx, opts.Image, image.PullOptions{})
		if err != nil {
			return nil, fmt.Errorf("failed to pull image %s: %w", opts.Image, err)
		}
		_, _ = io.Copy(io.Discard, reader)
		reader.Close()
	}

	name := ""
	if opts.Name != "" {
		name = ContainerName(opts.Name)
		// A container left over from a crashed process would block the name.
		if err := d.client.ContainerRemove(ctx, name, container.RemoveOptions{Force: true}); err != nil && !client.IsErrNotFound(err) {
			return nil, fmt.Errorf("failed to remove stale container %s: %w", name, err)
		}
	}

	var binds []string
	if opts.WorkDir != "" {
		if err := os.MkdirAll(opts.WorkDir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create work dir: %w", err)
		}
		binds = append(binds, opts.WorkDir+":"+opts.WorkDir)
	}
	for _, m := range opts.Mounts {
		binds = append(binds, m+":"+m+":ro")
	}

	containerConfig := &container.Config{
		Image:      opts.Image,
		Entrypoint: opts.Command[:1],
		Cmd:        opts.Command[1:],
		WorkingDir: opts.WorkDir,
		Labels:     map[string]string{"roomplane.stream": opts.Name},
	}
	hostConfig := &container.HostConfig{Binds: binds}

	resp, err := d.client.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, name)
	if err != nil {
		return nil, fmt.Errorf("failed to create container: %w", err)
	}

	if err := d.client.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		_ = d.client.ContainerRemove(context.WithoutCancel(ctx), resp.ID, container.RemoveOptions{Force: true})
		return nil, fmt.Errorf("failed to start container: %w", err)
	}

	h := &DockerHandle{client: d.client, containerID: resp.ID, done: make(chan struct{})}
	go h.watch()
	if opts.LogPath != "" {
		go h.copyLogs(opts.LogPath)
	}
	return h, nil
}

// watch records the exit status once the container stops.
func (h *DockerHandle) watch() {
	statusCh, errCh := h.client.ContainerWait(context.Background(), h.containerID, container.WaitConditionNotRunning)

	var res ExitResult
	select {
	case err := <-errCh:
		res = ExitResult{ExitCode: -1, Error: err}
	case status := <-statusCh:
		res = ExitResult{ExitCode: int(status.StatusCode)}
		if status.Error != nil {
			res.Error = fmt.Errorf("%s", status.Error.Message)
		}
	}

	h.mu.Lock()
	h.result = res
	h.mu.Unlock()
	close(h.done)
}

// copyLogs follows the container's output into path until the container exits.
func (h *DockerHandle) copyLogs(path string) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return
	}
	defer f.Close()

	logs, err := h.client.ContainerLogs(context.Background(), h.containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     true,
	})
	if err != nil {
		fmt.Fprintf(f, "failed to follow container logs: %v\n", err)
		return
	}
	defer logs.Close()

	// ffmpeg writes diagnostics to stderr; stdout is dropped like ExecRuntime does.
	_, _ = stdcopy.StdCopy(io.Discard, f, logs)
}

// Wait implements Handle.Wait.
func (h *DockerHandle) Wait(ctx context.Context) (ExitResult, error) {
	select {
	case <-h.done:
		h.mu.Lock()
		defer h.mu.Unlock()
		return h.result, nil
	case <-ctx.Done():
		return ExitResult{ExitCode: -1, Error: ctx.Err()}, ctx.Err()
	}
}

// Stop asks Docker to stop the container with a grace period, then removes it.
func (h *DockerHandle) Stop(ctx context.Context, grace time.Duration) error {
	timeout := int(grace.Seconds())
	if err := h.client.ContainerStop(ctx, h.containerID, container.StopOptions{Timeout: &timeout}); err != nil && !client.IsErrNotFound(err) {
		return fmt.Errorf("failed to stop container: %w", err)
	}
	if err := h.client.ContainerRemove(ctx, h.containerID, container.RemoveOptions{Force: true}); err != nil && !client.IsErrNotFound(err) {
		return fmt.Errorf("failed to remove container: %w", err)
	}
	return nil
}

// Alive implements Handle.Alive.
func (h *DockerHandle) Alive() bool {
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}
