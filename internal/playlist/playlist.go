// Package playlist composes the ordered audio program for a room and writes it as an ffconcat file.
package playlist

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"roomplane/internal/quran"
)

// ArtifactName is the file written into each room's output directory.
const ArtifactName = "concat.txt"

// ErrNoRakats is returned when a request asks for zero rakats.
var ErrNoRakats = errors.New("rakat count must be positive")

// Request selects what a room recites.
type Request struct {
	Rakats  int
	Juz     int
	Half    quran.Half
	Reciter string
}

// Program is the result of a build.
type Program struct {
	// Path is the absolute path of the written artifact.
	Path     string
	Segments int
	Missing  int
}

// Composer resolves planned segments to audio files.
type Composer struct {
	audioDir  string
	outputDir string
	table     *Table
	logger    *slog.Logger
}

// New creates a Composer. audioDir and outputDir are made absolute.
func New(audioDir, outputDir string, table *Table, logger *slog.Logger) (*Composer, error) {
	if table == nil {
		return nil, fmt.Errorf("segment table is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	absAudio, err := filepath.Abs(audioDir)
	if err != nil {
		return nil, fmt.Errorf("invalid audio dir: %w", err)
	}
	absOut, err := filepath.Abs(outputDir)
	if err != nil {
		return nil, fmt.Errorf("invalid output dir: %w", err)
	}
	return &Composer{audioDir: absAudio, outputDir: absOut, table: table, logger: logger}, nil
}

// TableVersion reports which segment layout the composer renders.
func (c *Composer) TableVersion() string {
	return c.table.Version
}

// ClipPath returns AUDIO_DIR/<dir>/<name>.mp3.
func (c *Composer) ClipPath(clip Clip) string {
	return filepath.Join(c.audioDir, clip.Dir, clip.Name+".mp3")
}

// AyahPath returns AUDIO_DIR/<reciter>/<sss>/<aaa>.mp3.
func (c *Composer) AyahPath(reciter string, k quran.AyahKey) string {
	return filepath.Join(c.audioDir, reciter, fmt.Sprintf("%03d", k.Surah), fmt.Sprintf("%03d.mp3", k.Ayah))
}

// Chunks splits the requested unit across rakats. Ayahs of the opening surah are dropped from
// the unit because they are recited in every rakat anyway.
func Chunks(req Request) ([][]quran.AyahKey, error) {
	if req.Rakats <= 0 {
		return nil, ErrNoRakats
	}
	all, err := quran.JuzAyahs(req.Juz, req.Half)
	if err != nil {
		return nil, err
	}
	items := make([]quran.AyahKey, 0, len(all))
	for _, k := range all {
		if !quran.IsFatiha(k) {
			items = append(items, k)
		}
	}
	return quran.Distribute(items, req.Rakats), nil
}

// Compose returns the ordered absolute paths of every audio file in the program.
// Files that do not exist are logged and left out.
func (c *Composer) Compose(req Request) ([]string, int, error) {
	chunks, err := Chunks(req)
	if err != nil {
		return nil, 0, err
	}

	plan := c.table.Plan(chunks)
	paths := make([]string, 0, len(plan))
	missing := 0
	for _, seg := range plan {
		var p string
		switch seg.Kind {
		case SegmentAyah:
			p = c.AyahPath(req.Reciter, seg.Ayah)
		default:
			p = c.ClipPath(seg.Clip)
		}
		if _, err := os.Stat(p); err != nil {
			missing++
			c.logger.Warn("audio file missing, skipping", "path", p)
			continue
		}
		paths = append(paths, p)
	}
	return paths, missing, nil
}

// ArtifactPath returns where the program for a room is written.
func (c *Composer) ArtifactPath(roomID string) string {
	return filepath.Join(c.outputDir, roomID, ArtifactName)
}

// Build composes the program for a room and writes it atomically.
// The same request and the same audio files always produce the same bytes.
func (c *Composer) Build(ctx context.Context, roomID string, req Request) (*Program, error) {
	paths, missing, err := c.Compose(req)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no audio files found for room %s", roomID)
	}

	dest := c.ArtifactPath(roomID)
	if err := writeAtomic(dest, Render(paths)); err != nil {
		return nil, err
	}

	c.logger.Info("built playlist",
		"room_id", roomID,
		"path", dest,
		"segments", len(paths),
		"missing", missing,
		"table_version", c.table.Version,
	)
	return &Program{Path: dest, Segments: len(paths), Missing: missing}, nil
}

// Render serializes paths in ffconcat format.
func Render(paths []string) []byte {
	var buf bytes.Buffer
	buf.WriteString("ffconcat version 1.0\n")
	for _, p := range paths {
		buf.WriteString("file '")
		buf.WriteString(strings.ReplaceAll(p, "'", `'\''`))
		buf.WriteString("'\n")
	}
	return buf.Bytes()
}

func writeAtomic(dest string, data []byte) error {
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".concat-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write playlist: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync playlist: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close playlist: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("failed to chmod playlist: %w", err)
	}
	if err := os.Rename(tmpName, dest); err != nil {
		return fmt.Errorf("failed to move playlist into place: %w", err)
	}
	return nil
}
