package service

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/voxcut/voxcut/internal/asr"
	"github.com/voxcut/voxcut/internal/config"
	"github.com/voxcut/voxcut/internal/media"
	"github.com/voxcut/voxcut/internal/models"
	"github.com/voxcut/voxcut/internal/observability"
	"github.com/voxcut/voxcut/internal/repository"
	"github.com/voxcut/voxcut/internal/subtitle"
	"github.com/voxcut/voxcut/internal/taskqueue"
)

// SubtitleService extracts subtitles from a project's source video:
// audio demux, ASR transcription (cached), SRT written next to the
// project's other uploads.
type SubtitleService struct {
	cfg       *config.Config
	binaries  *media.Binaries
	runner    *media.Runner
	asr       asr.Provider
	projects  repository.ProjectRepository
	scheduler *taskqueue.Scheduler
	logger    *slog.Logger
}

// NewSubtitleService creates the subtitle extraction facade.
func NewSubtitleService(cfg *config.Config, binaries *media.Binaries, runner *media.Runner, provider asr.Provider, projects repository.ProjectRepository, scheduler *taskqueue.Scheduler, logger *slog.Logger) *SubtitleService {
	return &SubtitleService{
		cfg:       cfg,
		binaries:  binaries,
		runner:    runner,
		asr:       provider,
		projects:  projects,
		scheduler: scheduler,
		logger:    observability.WithComponent(logger, "subtitle_service"),
	}
}

// Enqueue schedules subtitle extraction for the project.
func (s *SubtitleService) Enqueue(projectID string) (string, error) {
	return s.scheduler.Enqueue(taskqueue.EnqueueOptions{
		Scope:       taskqueue.ScopeExtractSubtitle,
		ProjectID:   projectID,
		Run:         s.run,
		Concurrency: taskqueue.ResolveConcurrency(taskqueue.ScopeExtractSubtitle, s.cfg.Scopes),
		Dedup:       true,
	})
}

// Cancel cancels the project's active extraction task, if any.
func (s *SubtitleService) Cancel(projectID, taskID string) {
	s.scheduler.Cancel(taskqueue.ScopeExtractSubtitle, projectID, taskID)
}

func (s *SubtitleService) run(ctx context.Context, projectID, taskID string, sig *taskqueue.Signal) (map[string]any, error) {
	started := time.Now()

	project, err := s.projects.Get(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if project.VideoPath == "" {
		return nil, models.InputInvalid("project %s has no source video", projectID)
	}

	report := func(phase string, percent int, message string) {
		s.scheduler.Publish(taskqueue.ScopeExtractSubtitle, projectID, taskID,
			progressEvent(phase, percent, message))
	}

	job := fmt.Sprintf("%s_asr_%s", projectID, time.Now().Format("20060102150405"))
	audioTmp := s.cfg.AudioTmpDir(job)
	if err := os.MkdirAll(audioTmp, 0o755); err != nil {
		return nil, fmt.Errorf("creating job dir: %w", err)
	}
	defer os.RemoveAll(audioTmp)

	report("extract_audio", 10, "extracting audio track")
	audioPath := filepath.Join(audioTmp, "audio.mp3")
	if err := media.ExtractAudio(ctx, s.binaries, s.runner, project.VideoPath, audioPath); err != nil {
		return nil, err
	}

	report("transcribe", 30, "transcribing")
	cues, err := s.asr.Transcribe(ctx, audioPath, asr.Options{
		Language: project.ScriptLanguage,
	})
	if err != nil {
		return nil, err
	}
	if len(cues) == 0 {
		return nil, models.ProviderUnavailable("transcription produced no cues")
	}
	if sig != nil && sig.IsFired() {
		return nil, models.ErrCancelled
	}

	segments := make([]subtitle.Segment, len(cues))
	for i, c := range cues {
		segments[i] = subtitle.Segment{
			Start: float64(c.StartMs) / 1000,
			End:   float64(c.EndMs) / 1000,
			Text:  c.Text,
		}
	}

	report("write_subtitles", 90, "writing subtitles")
	if err := os.MkdirAll(s.cfg.SubtitlesDir(), 0o755); err != nil {
		return nil, fmt.Errorf("creating subtitles dir: %w", err)
	}
	srtPath := filepath.Join(s.cfg.SubtitlesDir(), projectID+".srt")
	if err := os.WriteFile(srtPath, []byte(subtitle.FormatSRT(segments)), 0o644); err != nil {
		return nil, fmt.Errorf("writing subtitles: %w", err)
	}

	project.SubtitlePath = srtPath
	if err := s.projects.Update(context.WithoutCancel(ctx), project); err != nil {
		return nil, err
	}

	s.logger.Info("subtitles extracted", "project_id", projectID, "cues", len(cues))
	return resultMap(started, map[string]any{
		"file_path":      s.cfg.RelativeToUploads(srtPath),
		"segments_count": len(cues),
	}), nil
}
