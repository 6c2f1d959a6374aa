package draft

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/voxcut/voxcut/internal/media"
	"github.com/voxcut/voxcut/internal/models"
	"github.com/voxcut/voxcut/internal/taskqueue"
)

// Loudness policy for narration: -20 LUFS integrated, -1 dB true
// peak, 7 LU range.
const loudnormTargets = "I=-20:TP=-1:LRA=7"

// loudnormMeasurement is the first-pass analysis emitted by the
// loudnorm filter. ffmpeg prints the values as JSON strings.
type loudnormMeasurement struct {
	InputI       string `json:"input_i"`
	InputTP      string `json:"input_tp"`
	InputLRA     string `json:"input_lra"`
	InputThresh  string `json:"input_thresh"`
	TargetOffset string `json:"target_offset"`
}

// normalizeLoudness writes a loudness-normalized copy of in to out.
// The two-pass form is preferred; when the measurement pass produces
// no readable JSON the single-pass filter is applied instead.
func (b *Builder) normalizeLoudness(ctx context.Context, in, out string, sig *taskqueue.Signal) error {
	ffmpeg, err := b.binaries.FFmpeg()
	if err != nil {
		return err
	}

	measured := b.measureLoudness(ctx, ffmpeg, in, sig)

	filter := "loudnorm=" + loudnormTargets
	if measured != nil {
		filter = fmt.Sprintf(
			"loudnorm=%s:measured_I=%s:measured_TP=%s:measured_LRA=%s:measured_thresh=%s:offset=%s:linear=true",
			loudnormTargets,
			measured.InputI, measured.InputTP, measured.InputLRA,
			measured.InputThresh, measured.TargetOffset)
	}

	res, err := b.runner.Run(ctx, media.Spec{
		Command: []string{
			ffmpeg, "-y", "-i", in,
			"-af", filter,
			"-ar", "48000",
			out,
		},
		Registrar: sig,
		Cancel:    sig,
	})
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return models.MediaProcessingFailure("loudness normalization failed: %s", tailOf(res.Stderr))
	}
	return nil
}

// measureLoudness runs the analysis pass. Any failure yields nil and
// the caller degrades to single-pass normalization.
func (b *Builder) measureLoudness(ctx context.Context, ffmpeg, in string, sig *taskqueue.Signal) *loudnormMeasurement {
	res, err := b.runner.Run(ctx, media.Spec{
		Command: []string{
			ffmpeg, "-hide_banner", "-i", in,
			"-af", "loudnorm=" + loudnormTargets + ":print_format=json",
			"-f", "null", "-",
		},
		Registrar: sig,
		Cancel:    sig,
	})
	if err != nil || res.ExitCode != 0 {
		return nil
	}

	m, err := parseLoudnormMeasurement(res.Stderr)
	if err != nil {
		b.logger.Warn("loudness measurement unreadable, using single-pass loudnorm", "error", err)
		return nil
	}
	return m
}

// parseLoudnormMeasurement extracts the JSON block the loudnorm
// filter prints at the end of stderr. The block has no nested braces,
// so the last brace pair bounds it.
func parseLoudnormMeasurement(stderr []byte) (*loudnormMeasurement, error) {
	s := string(stderr)
	first := strings.LastIndex(s, "{")
	last := strings.LastIndex(s, "}")
	if first < 0 || last < first {
		return nil, fmt.Errorf("no measurement block in loudnorm output")
	}

	var m loudnormMeasurement
	if err := json.Unmarshal([]byte(s[first:last+1]), &m); err != nil {
		return nil, fmt.Errorf("parsing loudnorm measurement: %w", err)
	}
	if m.InputI == "" || m.InputTP == "" || m.InputLRA == "" || m.InputThresh == "" || m.TargetOffset == "" {
		return nil, fmt.Errorf("loudnorm measurement incomplete")
	}
	return &m, nil
}

func tailOf(stderr []byte) string {
	s := string(stderr)
	if len(s) > 300 {
		s = s[len(s)-300:]
	}
	return s
}
