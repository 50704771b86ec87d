// Package stream supervises the per-room transcoder that turns a playlist into an HLS stream.
package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"roomplane/internal/stream/runtime"
)

const (
	// ManifestName is the HLS playlist written into each room's directory.
	ManifestName = "stream.m3u8"
	// LogName receives the transcoder's diagnostic output.
	LogName = "ffmpeg.log"

	segmentPattern = "seg%05d.ts"
	segmentGlob    = "seg*.ts"
)

var (
	// ErrLaunch is returned when the transcoder could not be started.
	ErrLaunch = errors.New("transcoder launch failed")
	// ErrNotReady is returned when the manifest did not appear before the timeout.
	ErrNotReady = errors.New("stream manifest not ready")
	// ErrAlreadyRunning is returned by Start when the room already has a live transcoder.
	ErrAlreadyRunning = errors.New("stream already running")
)

// Options configures a Supervisor.
type Options struct {
	Runtime runtime.Runtime
	// FFmpegPath is the transcoder binary.
	FFmpegPath string
	// Image is used by container runtimes.
	Image string
	// OutputDir holds one directory per room.
	OutputDir string
	// AudioDir is made readable to the transcoder.
	AudioDir string
	// ServeURL is the public base URL the output directory is served under.
	ServeURL string

	SegmentSeconds   int
	PollInterval     time.Duration
	ReadyTimeout     time.Duration
	MinManifestBytes int64
	StopGrace        time.Duration

	Logger *slog.Logger
}

// Supervisor owns the registry of running transcoders.
// Calls for the same room are serialized; calls for different rooms do not contend.
type Supervisor struct {
	opts   Options
	logger *slog.Logger

	mu    sync.Mutex
	procs map[string]runtime.Handle

	locks *keyedMutex
}

// NewSupervisor creates a Supervisor, filling unset options with defaults.
func NewSupervisor(opts Options) (*Supervisor, error) {
	if opts.Runtime == nil {
		return nil, fmt.Errorf("runtime is required")
	}
	if opts.OutputDir == "" {
		return nil, fmt.Errorf("output dir is required")
	}
	abs, err := filepath.Abs(opts.OutputDir)
	if err != nil {
		return nil, fmt.Errorf("invalid output dir: %w", err)
	}
	opts.OutputDir = abs

	if opts.FFmpegPath == "" {
		opts.FFmpegPath = "ffmpeg"
	}
	if opts.SegmentSeconds <= 0 {
		opts.SegmentSeconds = 6
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 500 * time.Millisecond
	}
	if opts.ReadyTimeout <= 0 {
		opts.ReadyTimeout = 45 * time.Second
	}
	if opts.MinManifestBytes <= 0 {
		opts.MinManifestBytes = 50
	}
	if opts.StopGrace <= 0 {
		opts.StopGrace = 5 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Supervisor{
		opts:   opts,
		logger: opts.Logger,
		procs:  make(map[string]runtime.Handle),
		locks:  newKeyedMutex(),
	}, nil
}

// Dir returns the room's output directory.
func (s *Supervisor) Dir(roomID string) string {
	return filepath.Join(s.opts.OutputDir, roomID)
}

// ManifestPath returns the room's HLS manifest path.
func (s *Supervisor) ManifestPath(roomID string) string {
	return filepath.Join(s.Dir(roomID), ManifestName)
}

// StreamURL returns the public manifest URL for a room.
func (s *Supervisor) StreamURL(roomID string) string {
	return s.opts.ServeURL + "/hls/" + roomID + "/" + ManifestName
}

// Args returns the transcoder argv for a room, binary first.
// Segments are kept forever so late joiners can start from the beginning.
func (s *Supervisor) Args(roomID, programRef string) []string {
	dir := s.Dir(roomID)
	return []string{
		s.opts.FFmpegPath, "-y",
		"-f", "concat", "-safe", "0",
		"-i", programRef,
		"-af", "aresample=async=1000",
		"-c:a", "aac", "-b:a", "128k", "-ar", "44100",
		"-vn",
		"-max_muxing_queue_size", "1024",
		"-f", "hls",
		"-hls_time", strconv.Itoa(s.opts.SegmentSeconds),
		"-hls_list_size", "0",
		"-hls_segment_filename", filepath.Join(dir, segmentPattern),
		filepath.Join(dir, ManifestName),
	}
}

// Start launches the transcoder for a room. Nothing is registered when the launch fails.
func (s *Supervisor) Start(ctx context.Context, roomID, programRef string) error {
	unlock := s.locks.Lock(roomID)
	defer unlock()

	if h := s.handle(roomID); h != nil && h.Alive() {
		return ErrAlreadyRunning
	}

	dir := s.Dir(roomID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: failed to create %s: %v", ErrLaunch, dir, err)
	}

	var mounts []string
	if s.opts.AudioDir != "" {
		mounts = append(mounts, s.opts.AudioDir)
	}
	logPath := filepath.Join(dir, LogName)

	h, err := s.opts.Runtime.Start(ctx, runtime.StartOptions{
		Name:    roomID,
		Image:   s.opts.Image,
		Command: s.Args(roomID, programRef),
		WorkDir: dir,
		Mounts:  mounts,
		LogPath: logPath,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrLaunch, err)
	}

	s.mu.Lock()
	s.procs[roomID] = h
	s.mu.Unlock()

	s.logger.Info("stream started", "room_id", roomID, "log", logPath)
	return nil
}

// WaitReady polls for a manifest larger than the configured minimum.
// On timeout the transcoder is left running; the caller decides whether to stop it.
func (s *Supervisor) WaitReady(ctx context.Context, roomID string) error {
	manifest := s.ManifestPath(roomID)
	deadline := time.NewTimer(s.opts.ReadyTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return fmt.Errorf("%w after %s for room %s", ErrNotReady, s.opts.ReadyTimeout, roomID)
		case <-ticker.C:
			if info, err := os.Stat(manifest); err == nil && info.Size() > s.opts.MinManifestBytes {
				return nil
			}
		}
	}
}

// IsAlive reports whether the room has a running transcoder.
func (s *Supervisor) IsAlive(roomID string) bool {
	h := s.handle(roomID)
	return h != nil && h.Alive()
}

// Stop terminates the room's transcoder. The room is removed from the registry whatever the outcome.
// Stopping a room without a transcoder is a no-op.
func (s *Supervisor) Stop(ctx context.Context, roomID string) error {
	unlock := s.locks.Lock(roomID)
	defer unlock()

	s.mu.Lock()
	h, ok := s.procs[roomID]
	delete(s.procs, roomID)
	s.mu.Unlock()

	if !ok {
		return nil
	}
	if err := h.Stop(ctx, s.opts.StopGrace); err != nil {
		return fmt.Errorf("failed to stop stream for room %s: %w", roomID, err)
	}
	s.logger.Info("stream stopped", "room_id", roomID)
	return nil
}

// StopAll stops every registered transcoder concurrently.
func (s *Supervisor) StopAll(ctx context.Context) {
	var wg sync.WaitGroup
	for _, id := range s.Live() {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if err := s.Stop(ctx, id); err != nil {
				s.logger.Error("failed to stop stream", "room_id", id, "error", err)
			}
		}(id)
	}
	wg.Wait()
}

// ResetOutput removes segments and the manifest left by a previous transcoder.
func (s *Supervisor) ResetOutput(roomID string) error {
	dir := s.Dir(roomID)
	segs, err := filepath.Glob(filepath.Join(dir, segmentGlob))
	if err != nil {
		return err
	}
	for _, p := range append(segs, s.ManifestPath(roomID)) {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to remove %s: %w", p, err)
		}
	}
	return nil
}

// Live returns the ids of rooms with a registered transcoder, sorted.
func (s *Supervisor) Live() []string {
	s.mu.Lock()
	ids := make([]string, 0, len(s.procs))
	for id := range s.procs {
		ids = append(ids, id)
	}
	s.mu.Unlock()
	sort.Strings(ids)
	return ids
}

func (s *Supervisor) handle(roomID string) runtime.Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.procs[roomID]
}
