package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/voxcut/voxcut/internal/config"
	"github.com/voxcut/voxcut/internal/draft"
	"github.com/voxcut/voxcut/internal/models"
	"github.com/voxcut/voxcut/internal/observability"
	"github.com/voxcut/voxcut/internal/repository"
	"github.com/voxcut/voxcut/internal/taskqueue"
)

// draftBuilder is the builder surface this facade consumes.
type draftBuilder interface {
	Build(ctx context.Context, project *models.Project, script *models.Script, sig *taskqueue.Signal, report draft.Reporter) (*draft.Result, error)
}

// DraftService emits editor draft folders for projects with a saved
// script.
type DraftService struct {
	cfg       *config.Config
	builder   draftBuilder
	projects  repository.ProjectRepository
	scheduler *taskqueue.Scheduler
	logger    *slog.Logger
}

// NewDraftService creates the draft facade.
func NewDraftService(cfg *config.Config, builder *draft.Builder, projects repository.ProjectRepository, scheduler *taskqueue.Scheduler, logger *slog.Logger) *DraftService {
	return &DraftService{
		cfg:       cfg,
		builder:   builder,
		projects:  projects,
		scheduler: scheduler,
		logger:    observability.WithComponent(logger, "draft_service"),
	}
}

// Enqueue schedules a draft build for the project.
func (s *DraftService) Enqueue(projectID string) (string, error) {
	return s.scheduler.Enqueue(taskqueue.EnqueueOptions{
		Scope:       taskqueue.ScopeGenerateDraft,
		ProjectID:   projectID,
		Run:         s.run,
		Concurrency: taskqueue.ResolveConcurrency(taskqueue.ScopeGenerateDraft, s.cfg.Scopes),
		Dedup:       true,
	})
}

// Cancel cancels the project's active draft task, if any.
func (s *DraftService) Cancel(projectID, taskID string) {
	s.scheduler.Cancel(taskqueue.ScopeGenerateDraft, projectID, taskID)
}

func (s *DraftService) run(ctx context.Context, projectID, taskID string, sig *taskqueue.Signal) (map[string]any, error) {
	started := time.Now()

	project, err := s.projects.Get(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if !project.HasScript() {
		return nil, models.InputInvalid("project %s has no saved script", projectID)
	}

	res, err := s.builder.Build(ctx, project, project.Script.Script, sig,
		func(phase string, percent int, message string) {
			s.scheduler.Publish(taskqueue.ScopeGenerateDraft, projectID, taskID,
				progressEvent(phase, percent, message))
		})
	if err != nil {
		return nil, err
	}

	s.logger.Info("draft built", "project_id", projectID, "path", res.DraftPath)
	return resultMap(started, map[string]any{
		"file_path":      s.cfg.RelativeToUploads(res.DraftPath),
		"segments_count": res.SegmentsCount,
	}), nil
}
