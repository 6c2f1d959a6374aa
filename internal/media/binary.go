// Package media wraps ffmpeg and ffprobe: subprocess execution with
// cancellation, stream probing, encoder detection and the low-level
// helpers the video pipeline builds on.
package media

import (
	"os/exec"
	"sync"

	"github.com/voxcut/voxcut/internal/models"
)

// Binaries resolves and caches the ffmpeg/ffprobe executable paths.
type Binaries struct {
	ffmpegPath  string
	ffprobePath string

	mu       sync.Mutex
	resolved map[string]string
}

// NewBinaries creates a resolver. Empty paths fall back to PATH lookup.
func NewBinaries(ffmpegPath, ffprobePath string) *Binaries {
	return &Binaries{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		resolved:    make(map[string]string),
	}
}

// FFmpeg returns the ffmpeg executable path.
func (b *Binaries) FFmpeg() (string, error) {
	return b.resolve("ffmpeg", b.ffmpegPath)
}

// FFprobe returns the ffprobe executable path.
func (b *Binaries) FFprobe() (string, error) {
	return b.resolve("ffprobe", b.ffprobePath)
}

func (b *Binaries) resolve(name, configured string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if path, ok := b.resolved[name]; ok {
		return path, nil
	}

	candidate := configured
	if candidate == "" {
		candidate = name
	}
	path, err := exec.LookPath(candidate)
	if err != nil {
		return "", models.DependencyMissing("%s not found (looked for %q): %v", name, candidate, err)
	}
	b.resolved[name] = path
	return path, nil
}
