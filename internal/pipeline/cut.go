package pipeline

import (
	"context"
	"fmt"
	"strconv"

	"github.com/voxcut/voxcut/internal/media"
	"github.com/voxcut/voxcut/internal/models"
	"github.com/voxcut/voxcut/internal/taskqueue"
)

func ffmt(f float64) string {
	return strconv.FormatFloat(f, 'f', 3, 64)
}

// cutSegment extracts [start, start+duration) from source. The fast
// path seeks before -i and stream-copies, landing on the nearest
// keyframe; when that fails or produces a near-empty file it re-cuts
// with a frame-accurate re-encode.
func (p *Pipeline) cutSegment(ctx context.Context, source string, start, duration float64, outPath string, sig *taskqueue.Signal) error {
	if duration <= 0 {
		return models.InputInvalid("segment duration %.3f must be positive", duration)
	}
	ffmpeg, err := p.binaries.FFmpeg()
	if err != nil {
		return err
	}

	fast := media.Spec{
		Command: []string{
			ffmpeg, "-y",
			"-ss", ffmt(start),
			"-i", source,
			"-t", ffmt(duration),
			"-c", "copy",
			"-avoid_negative_ts", "make_zero",
			outPath,
		},
		Registrar: sig,
		Cancel:    sig,
	}
	res, err := p.runner.Run(ctx, fast)
	if err != nil {
		return err
	}
	if res.ExitCode == 0 {
		if dur, ok := p.prober.Duration(ctx, outPath, media.DurationFormat); ok && dur > minCutDuration {
			return nil
		}
	}

	p.logger.Debug("keyframe cut unusable, re-encoding", "source", source, "start", start)
	return p.cutReencode(ctx, source, start, duration, outPath, sig)
}

// cutReencode performs a frame-accurate cut, trying each available
// encoder in priority order.
func (p *Pipeline) cutReencode(ctx context.Context, source string, start, duration float64, outPath string, sig *taskqueue.Signal) error {
	ffmpeg, err := p.binaries.FFmpeg()
	if err != nil {
		return err
	}

	var lastErr error
	for _, enc := range p.encoders.Available(ctx) {
		args := []string{
			ffmpeg, "-y",
			"-i", source,
			"-ss", ffmt(start),
			"-t", ffmt(duration),
		}
		args = append(args, enc.CodecArgs()...)
		args = append(args, "-c:a", "aac", "-b:a", "192k", outPath)

		res, err := p.runner.Run(ctx, media.Spec{Command: args, Registrar: sig, Cancel: sig})
		if err != nil {
			return err
		}
		if res.ExitCode == 0 {
			if dur, ok := p.prober.Duration(ctx, outPath, media.DurationFormat); ok && dur > minCutDuration {
				return nil
			}
			lastErr = fmt.Errorf("encoder %s produced an empty cut", enc.Name)
			continue
		}
		lastErr = fmt.Errorf("encoder %s exit %d: %s", enc.Name, res.ExitCode, tailOf(res.Stderr))
		p.logger.Warn("re-encode cut failed, trying next encoder", "encoder", enc.Name, "exit", res.ExitCode)
	}
	return models.MediaProcessingFailure("segment cut failed with every encoder: %v", lastErr)
}

func tailOf(stderr []byte) string {
	s := string(stderr)
	if len(s) > 300 {
		s = s[len(s)-300:]
	}
	return s
}
