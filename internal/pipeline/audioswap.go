package pipeline

import (
	"context"
	"fmt"
	"math"

	"github.com/voxcut/voxcut/internal/media"
	"github.com/voxcut/voxcut/internal/models"
	"github.com/voxcut/voxcut/internal/taskqueue"
)

// replaceAudio muxes the narration over the clip. The filter graph
// depends on how the durations relate:
//   - equal within tolerance: plain mux with -shortest, video copied
//   - longer audio: clone-pad the last video frame to cover it
//   - shorter audio: trim the video down to the audio
//
// A successful run must yield a file with a video stream; if not, one
// CPU-only re-encode is attempted before giving up.
func (p *Pipeline) replaceAudio(ctx context.Context, videoPath, audioPath, outPath string, sig *taskqueue.Signal) error {
	ffmpeg, err := p.binaries.FFmpeg()
	if err != nil {
		return err
	}

	vdur, ok := p.prober.Duration(ctx, videoPath, media.DurationFormat)
	if !ok {
		return models.MediaProcessingFailure("cannot probe clip duration: %s", videoPath)
	}
	adur, ok := p.prober.Duration(ctx, audioPath, media.DurationAudioStream)
	if !ok {
		return models.MediaProcessingFailure("cannot probe narration duration: %s", audioPath)
	}

	encoders := p.encoders.Available(ctx)
	attempted := false
	for _, enc := range encoders {
		args := p.buildSwapArgs(ffmpeg, videoPath, audioPath, outPath, vdur, adur, enc)
		res, err := p.runner.Run(ctx, media.Spec{Command: args, Registrar: sig, Cancel: sig})
		if err != nil {
			return err
		}
		attempted = true
		if res.ExitCode != 0 {
			p.logger.Warn("audio swap failed, trying next encoder",
				"encoder", enc.Name, "exit", res.ExitCode)
			continue
		}
		if p.prober.HasVideoStream(ctx, outPath) {
			return nil
		}
		p.logger.Warn("audio swap lost the video stream", "encoder", enc.Name)
		if enc.IsHardware() {
			continue // retry the graph on a CPU encoder
		}
		break
	}
	if !attempted {
		return models.DependencyMissing("no video encoders available")
	}
	return models.MediaProcessingFailure("audio replacement produced no video stream: %s", outPath)
}

func (p *Pipeline) buildSwapArgs(ffmpeg, videoPath, audioPath, outPath string, vdur, adur float64, enc media.Encoder) []string {
	args := []string{ffmpeg, "-y", "-i", videoPath, "-i", audioPath}

	switch {
	case math.Abs(adur-vdur) <= audioVideoTolerance:
		args = append(args,
			"-map", "0:v:0", "-map", "1:a:0",
			"-c:v", "copy",
			"-c:a", "aac", "-b:a", "192k", "-ar", "48000",
			"-shortest",
		)
	case adur >= vdur:
		pad := adur - vdur
		filter := fmt.Sprintf(
			"[0:v]tpad=stop_mode=clone:stop_duration=%s,setpts=PTS-STARTPTS[v];[1:a]asetpts=PTS-STARTPTS[a]",
			ffmt(pad))
		args = append(args, "-filter_complex", filter, "-map", "[v]", "-map", "[a]")
		args = append(args, enc.CodecArgs()...)
		args = append(args, "-c:a", "aac", "-b:a", "192k", "-ar", "48000")
	default:
		filter := fmt.Sprintf(
			"[0:v]trim=0:%s,setpts=PTS-STARTPTS[v];[1:a]asetpts=PTS-STARTPTS[a]",
			ffmt(adur))
		args = append(args, "-filter_complex", filter, "-map", "[v]", "-map", "[a]")
		args = append(args, enc.CodecArgs()...)
		args = append(args, "-c:a", "aac", "-b:a", "192k", "-ar", "48000")
	}

	return append(args, outPath)
}
