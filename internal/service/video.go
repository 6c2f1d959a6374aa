package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/voxcut/voxcut/internal/config"
	"github.com/voxcut/voxcut/internal/models"
	"github.com/voxcut/voxcut/internal/observability"
	"github.com/voxcut/voxcut/internal/pipeline"
	"github.com/voxcut/voxcut/internal/repository"
	"github.com/voxcut/voxcut/internal/taskqueue"
)

// videoGenerator is the pipeline surface this facade consumes.
type videoGenerator interface {
	GenerateFromScript(ctx context.Context, project *models.Project, script *models.Script, sig *taskqueue.Signal, report pipeline.Reporter) (*pipeline.Result, error)
}

// VideoService runs video generation for projects with a saved script.
type VideoService struct {
	cfg       *config.Config
	pipeline  videoGenerator
	projects  repository.ProjectRepository
	scheduler *taskqueue.Scheduler
	logger    *slog.Logger
}

// NewVideoService creates the video facade.
func NewVideoService(cfg *config.Config, p *pipeline.Pipeline, projects repository.ProjectRepository, scheduler *taskqueue.Scheduler, logger *slog.Logger) *VideoService {
	return &VideoService{
		cfg:       cfg,
		pipeline:  p,
		projects:  projects,
		scheduler: scheduler,
		logger:    observability.WithComponent(logger, "video_service"),
	}
}

// Enqueue schedules video generation for the project. A second call
// for the same project while one is active returns the active task id.
func (s *VideoService) Enqueue(projectID string) (string, error) {
	return s.scheduler.Enqueue(taskqueue.EnqueueOptions{
		Scope:       taskqueue.ScopeGenerateVideo,
		ProjectID:   projectID,
		Run:         s.run,
		Concurrency: taskqueue.ResolveConcurrency(taskqueue.ScopeGenerateVideo, s.cfg.Scopes),
		Dedup:       true,
	})
}

// Cancel cancels the project's active generation task, if any.
func (s *VideoService) Cancel(projectID, taskID string) {
	s.scheduler.Cancel(taskqueue.ScopeGenerateVideo, projectID, taskID)
}

func (s *VideoService) run(ctx context.Context, projectID, taskID string, sig *taskqueue.Signal) (map[string]any, error) {
	started := time.Now()

	project, err := s.projects.Get(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if !project.HasScript() {
		return nil, models.InputInvalid("project %s has no saved script", projectID)
	}

	res, err := s.pipeline.GenerateFromScript(ctx, project, project.Script.Script, sig,
		func(phase string, percent int, message string) {
			s.scheduler.Publish(taskqueue.ScopeGenerateVideo, projectID, taskID,
				progressEvent(phase, percent, message))
		})
	if err != nil {
		return nil, err
	}

	s.logger.Info("video generated", "project_id", projectID,
		"output", res.OutputPath, "segments", res.SegmentsCount)
	return resultMap(started, map[string]any{
		"file_path":      res.OutputPath,
		"segments_count": res.SegmentsCount,
	}), nil
}
