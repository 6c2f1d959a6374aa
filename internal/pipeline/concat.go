package pipeline

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/voxcut/voxcut/internal/media"
	"github.com/voxcut/voxcut/internal/models"
	"github.com/voxcut/voxcut/internal/taskqueue"
)

// concatTier identifies the strategy used to join clips.
type concatTier int

const (
	tierDemuxer concatTier = iota + 1
	tierTS
	tierFilter
)

// clipInfo caches the probe results used for tier selection.
type clipInfo struct {
	path   string
	video  *media.VideoStreamInfo
	audio  *media.AudioStreamInfo
	format string
	vdur   float64
}

// concat joins the clips into outPath, choosing the cheapest capable
// tier: stream-copy via the concat demuxer, TS intermediate copy, or
// a full filter-graph re-encode. Intermediate files are removed on
// exit.
func (p *Pipeline) concat(ctx context.Context, clips []string, outPath string, sig *taskqueue.Signal, onPercent func(int)) error {
	if len(clips) == 0 {
		return models.InputInvalid("no clips to concatenate")
	}
	if onPercent == nil {
		onPercent = func(int) {}
	}

	if len(clips) == 1 {
		return p.remuxSingle(ctx, clips[0], outPath, sig)
	}

	infos := make([]clipInfo, len(clips))
	var total float64
	for i, path := range clips {
		si := p.prober.StreamInfo(ctx, path)
		format, _ := p.prober.FormatName(ctx, path)
		vdur, _ := p.prober.Duration(ctx, path, media.DurationVideoStream)
		if vdur == 0 {
			vdur, _ = p.prober.Duration(ctx, path, media.DurationFormat)
		}
		infos[i] = clipInfo{path: path, video: si.Video, audio: si.Audio, format: format, vdur: vdur}
		total += vdur
	}
	totalDur := time.Duration(total * float64(time.Second))

	tier := selectTier(infos)
	p.logger.Info("concat tier selected", "tier", int(tier), "clips", len(clips))

	if tier == tierDemuxer {
		err := p.concatDemuxer(ctx, clips, outPath, totalDur, sig, onPercent)
		if err == nil {
			return nil
		}
		if models.IsCancelled(err) {
			return err
		}
		tier = downgradeTier(infos)
		p.logger.Warn("concat demuxer failed, downgrading", "tier", int(tier), "error", err)
	}
	if tier == tierTS {
		err := p.concatTS(ctx, infos, outPath, totalDur, sig, onPercent)
		if err == nil {
			return nil
		}
		if models.IsCancelled(err) {
			return err
		}
		p.logger.Warn("ts concat failed, downgrading to filter concat", "error", err)
	}
	return p.concatFilter(ctx, infos, outPath, totalDur, sig, onPercent)
}

// selectTier decides the cheapest strategy all inputs support.
func selectTier(infos []clipInfo) concatTier {
	if demuxerCompatible(infos) {
		return tierDemuxer
	}
	if tsCompatible(infos) {
		return tierTS
	}
	return tierFilter
}

// downgradeTier picks the fallback after a failed demuxer pass. Clips
// the TS rewrap cannot carry skip straight to the filter graph.
func downgradeTier(infos []clipInfo) concatTier {
	if tsCompatible(infos) {
		return tierTS
	}
	return tierFilter
}

// demuxerCompatible requires identical stream parameters across all
// clips: codec, pixel format, dimensions, frame rate, and matching
// audio presence/codec/rate/channels.
func demuxerCompatible(infos []clipInfo) bool {
	first := infos[0]
	if first.video == nil {
		return false
	}
	for _, info := range infos[1:] {
		v := info.video
		if v == nil ||
			v.Codec != first.video.Codec ||
			v.PixFmt != first.video.PixFmt ||
			v.Width != first.video.Width ||
			v.Height != first.video.Height ||
			math.Abs(v.FPS()-first.video.FPS()) > 0.001 {
			return false
		}
		if (info.audio == nil) != (first.audio == nil) {
			return false
		}
		if info.audio != nil &&
			(info.audio.Codec != first.audio.Codec ||
				info.audio.SampleRate != first.audio.SampleRate ||
				info.audio.Channels != first.audio.Channels) {
			return false
		}
	}
	return true
}

// tsCompatible additionally requires h264/hevc video in an mp4/mov
// container with aac or absent audio, the combination the MPEG-TS
// bitstream filters support.
func tsCompatible(infos []clipInfo) bool {
	for _, info := range infos {
		if info.video == nil {
			return false
		}
		if info.video.Codec != "h264" && info.video.Codec != "hevc" {
			return false
		}
		if !strings.Contains(info.format, "mp4") && !strings.Contains(info.format, "mov") {
			return false
		}
		if info.audio != nil && info.audio.Codec != "aac" {
			return false
		}
	}
	return true
}

func (p *Pipeline) remuxSingle(ctx context.Context, clip, outPath string, sig *taskqueue.Signal) error {
	ffmpeg, err := p.binaries.FFmpeg()
	if err != nil {
		return err
	}
	res, err := p.runner.Run(ctx, media.Spec{
		Command:   []string{ffmpeg, "-y", "-i", clip, "-c", "copy", "-movflags", "+faststart", outPath},
		Registrar: sig,
		Cancel:    sig,
	})
	if err != nil {
		return err
	}
	if res.ExitCode == 0 {
		return nil
	}

	p.logger.Warn("single-clip remux failed, re-encoding", "exit", res.ExitCode)
	for _, enc := range p.encoders.Available(ctx) {
		args := []string{ffmpeg, "-y", "-i", clip}
		args = append(args, enc.CodecArgs()...)
		args = append(args, "-c:a", "aac", "-b:a", "192k", "-movflags", "+faststart", outPath)
		res, err := p.runner.Run(ctx, media.Spec{Command: args, Registrar: sig, Cancel: sig})
		if err != nil {
			return err
		}
		if res.ExitCode == 0 {
			return nil
		}
	}
	return models.MediaProcessingFailure("single-clip output failed: %s", tailOf(res.Stderr))
}

// concatDemuxer stream-copies through a concat list file.
func (p *Pipeline) concatDemuxer(ctx context.Context, clips []string, outPath string, total time.Duration, sig *taskqueue.Signal, onPercent func(int)) error {
	ffmpeg, err := p.binaries.FFmpeg()
	if err != nil {
		return err
	}

	listPath := outPath + ".list.txt"
	var list strings.Builder
	for _, clip := range clips {
		abs, err := filepath.Abs(clip)
		if err != nil {
			abs = clip
		}
		fmt.Fprintf(&list, "file '%s'\n", strings.ReplaceAll(abs, "'", `'\''`))
	}
	if err := os.WriteFile(listPath, []byte(list.String()), 0o644); err != nil {
		return fmt.Errorf("writing concat list: %w", err)
	}
	defer os.Remove(listPath)

	args := []string{
		ffmpeg, "-y",
		"-f", "concat", "-safe", "0",
		"-i", listPath,
		"-c", "copy",
		"-movflags", "+faststart",
		"-progress", "pipe:1",
		outPath,
	}
	return p.runWithProgress(ctx, args, total, sig, onPercent)
}

// concatTS rewraps each clip as MPEG-TS with annex-b bitstream
// conversion and joins them through the concat: URI.
func (p *Pipeline) concatTS(ctx context.Context, infos []clipInfo, outPath string, total time.Duration, sig *taskqueue.Signal, onPercent func(int)) error {
	ffmpeg, err := p.binaries.FFmpeg()
	if err != nil {
		return err
	}

	tsPaths := make([]string, 0, len(infos))
	defer func() {
		for _, ts := range tsPaths {
			os.Remove(ts)
		}
	}()

	hasAudio := false
	for i, info := range infos {
		bsf := "h264_mp4toannexb"
		if info.video != nil && info.video.Codec == "hevc" {
			bsf = "hevc_mp4toannexb"
		}
		tsPath := fmt.Sprintf("%s.part%03d.ts", outPath, i)
		res, err := p.runner.Run(ctx, media.Spec{
			Command: []string{
				ffmpeg, "-y", "-i", info.path,
				"-c", "copy",
				"-bsf:v", bsf,
				"-f", "mpegts",
				tsPath,
			},
			Registrar: sig,
			Cancel:    sig,
		})
		if err != nil {
			return err
		}
		if res.ExitCode != 0 {
			return models.MediaProcessingFailure("ts rewrap of clip %d failed: %s", i+1, tailOf(res.Stderr))
		}
		tsPaths = append(tsPaths, tsPath)
		if info.audio != nil {
			hasAudio = true
		}
	}

	args := []string{
		ffmpeg, "-y",
		"-i", "concat:" + strings.Join(tsPaths, "|"),
		"-c", "copy",
	}
	if hasAudio {
		args = append(args, "-bsf:a", "aac_adtstoasc")
	}
	args = append(args, "-movflags", "+faststart", "-progress", "pipe:1", outPath)
	return p.runWithProgress(ctx, args, total, sig, onPercent)
}

// concatFilter re-encodes everything through one concat filter graph,
// normalizing dimensions, frame rate and pixel format, and silencing
// audio-less inputs with anullsrc.
func (p *Pipeline) concatFilter(ctx context.Context, infos []clipInfo, outPath string, total time.Duration, sig *taskqueue.Signal, onPercent func(int)) error {
	ffmpeg, err := p.binaries.FFmpeg()
	if err != nil {
		return err
	}

	fps := 30.0
	if infos[0].video != nil && infos[0].video.FPS() > 0 {
		fps = infos[0].video.FPS()
	}

	var filter strings.Builder
	args := []string{ffmpeg, "-y"}
	for _, info := range infos {
		args = append(args, "-i", info.path)
	}
	for i, info := range infos {
		fmt.Fprintf(&filter,
			"[%d:v:0]scale=trunc(iw/2)*2:trunc(ih/2)*2,fps=%g,format=yuv420p,setpts=PTS-STARTPTS[v%d];",
			i, fps, i)
		if info.audio != nil {
			fmt.Fprintf(&filter, "[%d:a:0]aresample=48000,asetpts=PTS-STARTPTS[a%d];", i, i)
		} else {
			fmt.Fprintf(&filter, "anullsrc=r=48000:cl=stereo:d=%s[a%d];", ffmt(info.vdur), i)
		}
	}
	for i := range infos {
		fmt.Fprintf(&filter, "[v%d][a%d]", i, i)
	}
	fmt.Fprintf(&filter, "concat=n=%d:v=1:a=1[outv][outa]", len(infos))

	var lastErr error
	for _, enc := range p.encoders.Available(ctx) {
		full := append([]string{}, args...)
		full = append(full, "-filter_complex", filter.String(), "-map", "[outv]", "-map", "[outa]")
		full = append(full, enc.CodecArgs()...)
		full = append(full,
			"-c:a", "aac", "-b:a", "192k", "-ar", "48000",
			"-movflags", "+faststart",
			"-progress", "pipe:1",
			outPath,
		)
		err := p.runWithProgress(ctx, full, total, sig, onPercent)
		if err == nil {
			return nil
		}
		if models.IsCancelled(err) {
			return err
		}
		lastErr = err
		p.logger.Warn("filter concat failed, trying next encoder", "encoder", enc.Name, "error", err)
	}
	return models.MediaProcessingFailure("filter concat failed with every encoder: %v", lastErr)
}

// runWithProgress executes ffmpeg parsing its -progress stream and
// reporting 0..99 until the end marker, then 100.
func (p *Pipeline) runWithProgress(ctx context.Context, args []string, total time.Duration, sig *taskqueue.Signal, onPercent func(int)) error {
	ended := false
	spec := media.Spec{
		Command:    args,
		StdoutMode: media.LineStream,
		OnLine: func(line string) {
			elapsed, end, ok := media.ParseProgressLine(line)
			if !ok {
				return
			}
			if end {
				ended = true
				onPercent(100)
				return
			}
			if !ended {
				onPercent(media.ProgressPercent(elapsed, total))
			}
		},
		Registrar: sig,
		Cancel:    sig,
	}
	res, err := p.runner.Run(ctx, spec)
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return models.MediaProcessingFailure("ffmpeg exit %d: %s", res.ExitCode, tailOf(res.Stderr))
	}
	return nil
}
