package media

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/voxcut/voxcut/internal/models"
)

// ExtractAudio demuxes the audio track of a video into an mp3 at
// outPath, creating parent directories as needed. Used to feed ASR.
func ExtractAudio(ctx context.Context, binaries *Binaries, runner *Runner, videoPath, outPath string) error {
	ffmpeg, err := binaries.FFmpeg()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("creating audio output dir: %w", err)
	}

	spec := Spec{Command: []string{
		ffmpeg, "-y", "-i", videoPath,
		"-vn", "-acodec", "libmp3lame", "-q:a", "2",
		outPath,
	}}
	res, err := runner.Run(ctx, spec)
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return models.MediaProcessingFailure("audio extraction failed (exit %d): %s", res.ExitCode, tailOf(res.Stderr))
	}
	return nil
}

// tailOf trims captured stderr to its last line for error messages.
func tailOf(stderr []byte) string {
	s := string(stderr)
	if len(s) > 300 {
		s = s[len(s)-300:]
	}
	return s
}
