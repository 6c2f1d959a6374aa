// Package pipeline implements video generation from a validated
// script: segment cutting, per-segment TTS, duration alignment,
// audio replacement and tiered concatenation.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/voxcut/voxcut/internal/config"
	"github.com/voxcut/voxcut/internal/media"
	"github.com/voxcut/voxcut/internal/models"
	"github.com/voxcut/voxcut/internal/observability"
	"github.com/voxcut/voxcut/internal/repository"
	"github.com/voxcut/voxcut/internal/taskqueue"
	"github.com/voxcut/voxcut/internal/tts"
)

// audioVideoTolerance is the policy constant under which audio and
// clip durations are treated as equal.
const audioVideoTolerance = 0.05

// minCutDuration is the probed duration below which a cut output is
// considered broken.
const minCutDuration = 0.01

// Reporter receives coarse pipeline progress for event publication.
type Reporter func(phase string, percent int, message string)

// Pipeline generates videos from scripts.
type Pipeline struct {
	cfg      *config.Config
	binaries *media.Binaries
	runner   *media.Runner
	prober   *media.Prober
	encoders *media.EncoderDetector
	tts      tts.Provider
	projects repository.ProjectRepository
	logger   *slog.Logger

	ttsVoice string
	ttsSpeed float64
}

// New creates a video pipeline.
func New(cfg *config.Config, binaries *media.Binaries, runner *media.Runner, prober *media.Prober, encoders *media.EncoderDetector, ttsProvider tts.Provider, projects repository.ProjectRepository, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		cfg:      cfg,
		binaries: binaries,
		runner:   runner,
		prober:   prober,
		encoders: encoders,
		tts:      ttsProvider,
		projects: projects,
		logger:   observability.WithComponent(logger, "pipeline"),
		ttsVoice: cfg.Providers.TTS.Voice,
		ttsSpeed: cfg.Providers.TTS.Speed,
	}
}

// segmentJob tracks one segment through the pipeline.
type segmentJob struct {
	seg      *models.Segment
	index    int
	clipPath string

	// narrated segments only
	audioPath     string
	audioDuration float64
	newStart      float64
	newDuration   float64
}

// Result is the outcome of a successful generation.
type Result struct {
	OutputPath    string
	SegmentsCount int
}

// GenerateFromScript runs the full pipeline for a project. sig
// cancels cooperatively and kills spawned subprocesses. Temporary
// job directories are removed regardless of outcome.
func (p *Pipeline) GenerateFromScript(ctx context.Context, project *models.Project, script *models.Script, sig *taskqueue.Signal, report Reporter) (*Result, error) {
	if report == nil {
		report = func(string, int, string) {}
	}
	if project.VideoPath == "" {
		return nil, models.InputInvalid("project %s has no source video", project.ID)
	}
	if _, err := os.Stat(project.VideoPath); err != nil {
		return nil, models.InputInvalid("source video missing: %v", err)
	}
	if script == nil || len(script.Segments) == 0 {
		return nil, models.InputInvalid("script has no segments")
	}

	videoDur, ok := p.prober.Duration(ctx, project.VideoPath, media.DurationFormat)
	if !ok {
		return nil, models.MediaProcessingFailure("cannot probe source video duration")
	}
	if err := script.Validate(videoDur); err != nil {
		return nil, err
	}

	// status commits to processing inside the task, consistently
	if err := p.projects.UpdateStatus(ctx, project.ID, models.ProjectStatusProcessing); err != nil {
		p.logger.Warn("status update failed", "project_id", project.ID, "error", err)
	}

	job := fmt.Sprintf("%s_%s", project.ID, time.Now().Format("20060102150405"))
	videoTmp := p.cfg.VideoTmpDir(job)
	audioTmp := p.cfg.AudioTmpDir(job)
	for _, dir := range []string{videoTmp, audioTmp} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating job dir: %w", err)
		}
	}
	defer func() {
		os.RemoveAll(videoTmp)
		os.RemoveAll(audioTmp)
	}()

	result, err := p.run(ctx, project, script, sig, report, videoDur, videoTmp, audioTmp)
	if err != nil {
		if !models.IsCancelled(err) && ctx.Err() == nil {
			if uerr := p.projects.UpdateStatus(context.WithoutCancel(ctx), project.ID, models.ProjectStatusFailed); uerr != nil {
				p.logger.Warn("failed-status update failed", "project_id", project.ID, "error", uerr)
			}
		}
		return nil, err
	}
	return result, nil
}

func (p *Pipeline) run(ctx context.Context, project *models.Project, script *models.Script, sig *taskqueue.Signal, report Reporter, videoDur float64, videoTmp, audioTmp string) (*Result, error) {
	report("start", 2, "video generation started")

	jobs := make([]*segmentJob, len(script.Segments))
	for i := range script.Segments {
		jobs[i] = &segmentJob{
			seg:         &script.Segments[i],
			index:       i,
			newStart:    script.Segments[i].StartTime,
			newDuration: script.Segments[i].Duration(),
		}
	}

	// cut all segments on keyframes first
	for i, j := range jobs {
		if err := checkCancel(ctx, sig); err != nil {
			return nil, err
		}
		j.clipPath = filepath.Join(videoTmp, fmt.Sprintf("seg_%03d.mp4", i))
		if err := p.cutSegment(ctx, project.VideoPath, j.seg.StartTime, j.seg.Duration(), j.clipPath, sig); err != nil {
			return nil, fmt.Errorf("cutting segment %d: %w", i+1, err)
		}
		report("cutting_segments_progress", 2+(i+1)*18/len(jobs),
			fmt.Sprintf("cut segment %d/%d", i+1, len(jobs)))
	}

	// synthesize all narration in parallel
	if err := p.synthesizeAll(ctx, jobs, audioTmp, sig, report); err != nil {
		return nil, err
	}
	report("tts_generate", 45, "narration synthesized")

	// align windows to the narration and replace audio
	for i, j := range jobs {
		if err := checkCancel(ctx, sig); err != nil {
			return nil, err
		}
		if j.seg.IsOriginal() {
			continue
		}
		if err := p.alignAndReplace(ctx, project.VideoPath, j, videoDur, videoTmp, sig); err != nil {
			return nil, fmt.Errorf("segment %d audio: %w", i+1, err)
		}
		report("align_replace_progress", 45+(i+1)*25/len(jobs),
			fmt.Sprintf("aligned segment %d/%d", i+1, len(jobs)))
	}

	// concatenate
	outputDir := p.cfg.OutputDir(project.Name)
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output dir: %w", err)
	}
	outputPath := filepath.Join(outputDir, fmt.Sprintf("final_%s.mp4", time.Now().Format("20060102150405")))

	clips := make([]string, len(jobs))
	for i, j := range jobs {
		clips[i] = j.clipPath
	}
	report("concat_start", 72, "concatenating segments")
	if err := p.concat(ctx, clips, outputPath, sig, func(pct int) {
		report("concat_progress", 72+pct*25/100, "concatenating")
	}); err != nil {
		return nil, err
	}

	// keep only the newest output for the project
	p.pruneOutputs(outputDir, outputPath)

	rel := p.cfg.RelativeToUploads(outputPath)
	if err := p.projects.SetOutputVideo(context.WithoutCancel(ctx), project.ID, rel); err != nil {
		p.logger.Warn("output path update failed", "project_id", project.ID, "error", err)
	}

	report("finalize", 99, "finalizing")
	return &Result{OutputPath: rel, SegmentsCount: len(jobs)}, nil
}

// pruneOutputs deletes all prior outputs in the project folder,
// keeping only the just-written file.
func (p *Pipeline) pruneOutputs(dir, keep string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	var removed []string
	for _, e := range entries {
		path := filepath.Join(dir, e.Name())
		if e.IsDir() || path == keep {
			continue
		}
		if err := os.Remove(path); err == nil {
			removed = append(removed, e.Name())
		}
	}
	if len(removed) > 0 {
		sort.Strings(removed)
		p.logger.Debug("pruned old outputs", "dir", dir, "removed", removed)
	}
}

func checkCancel(ctx context.Context, sig *taskqueue.Signal) error {
	if sig != nil && sig.IsFired() {
		return models.ErrCancelled
	}
	if err := ctx.Err(); err != nil {
		return models.ErrCancelled
	}
	return nil
}
