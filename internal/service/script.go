package service

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/voxcut/voxcut/internal/config"
	"github.com/voxcut/voxcut/internal/models"
	"github.com/voxcut/voxcut/internal/observability"
	"github.com/voxcut/voxcut/internal/repository"
	"github.com/voxcut/voxcut/internal/script"
	"github.com/voxcut/voxcut/internal/taskqueue"
)

// scriptGenerator is the assembler surface this facade consumes.
type scriptGenerator interface {
	Generate(ctx context.Context, in script.GenerateInput) (*models.Script, error)
}

// ScriptService runs narration script generation from a project's
// subtitles and saves the result on the project.
type ScriptService struct {
	cfg       *config.Config
	assembler scriptGenerator
	projects  repository.ProjectRepository
	scheduler *taskqueue.Scheduler
	logger    *slog.Logger
}

// NewScriptService creates the script facade.
func NewScriptService(cfg *config.Config, assembler *script.Assembler, projects repository.ProjectRepository, scheduler *taskqueue.Scheduler, logger *slog.Logger) *ScriptService {
	return &ScriptService{
		cfg:       cfg,
		assembler: assembler,
		projects:  projects,
		scheduler: scheduler,
		logger:    observability.WithComponent(logger, "script_service"),
	}
}

// Enqueue schedules script generation for the project.
func (s *ScriptService) Enqueue(projectID string) (string, error) {
	return s.scheduler.Enqueue(taskqueue.EnqueueOptions{
		Scope:       taskqueue.ScopeGenerateScript,
		ProjectID:   projectID,
		Run:         s.run,
		Concurrency: taskqueue.ResolveConcurrency(taskqueue.ScopeGenerateScript, s.cfg.Scopes),
		Dedup:       true,
	})
}

// Cancel cancels the project's active script task, if any.
func (s *ScriptService) Cancel(projectID, taskID string) {
	s.scheduler.Cancel(taskqueue.ScopeGenerateScript, projectID, taskID)
}

func (s *ScriptService) run(ctx context.Context, projectID, taskID string, sig *taskqueue.Signal) (map[string]any, error) {
	started := time.Now()

	project, err := s.projects.Get(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if project.SubtitlePath == "" {
		return nil, models.InputInvalid("project %s has no subtitles", projectID)
	}
	subs, err := os.ReadFile(project.SubtitlePath)
	if err != nil {
		return nil, models.InputInvalid("reading subtitles: %v", err)
	}

	in := script.GenerateInput{
		DramaName:       project.Name,
		PlotAnalysis:    s.loadAnalysis(projectID),
		SubtitleContent: string(subs),
		Selection:       project.PromptSelection,
		LengthPreset:    firstNonEmpty(project.ScriptLength, s.cfg.Script.DefaultLength),
		OriginalRatio:   project.OriginalRatio,
		Language:        firstNonEmpty(project.ScriptLanguage, s.cfg.Script.DefaultLanguage),
		OnProgress: func(phase string, percent int) {
			s.scheduler.Publish(taskqueue.ScopeGenerateScript, projectID, taskID,
				progressEvent(phase, percent, "generating script"))
		},
	}

	generated, err := s.assembler.Generate(ctx, in)
	if err != nil {
		return nil, err
	}
	if sig != nil && sig.IsFired() {
		return nil, models.ErrCancelled
	}

	if err := s.projects.SaveScript(context.WithoutCancel(ctx), projectID, generated); err != nil {
		return nil, err
	}

	s.logger.Info("script generated", "project_id", projectID, "segments", len(generated.Segments))
	return resultMap(started, map[string]any{
		"segments_count": len(generated.Segments),
	}), nil
}

// loadAnalysis reads the optional plot analysis saved next to the
// project's other uploads. Missing analysis is not an error.
func (s *ScriptService) loadAnalysis(projectID string) string {
	data, err := os.ReadFile(filepath.Join(s.cfg.AnalysesDir(), projectID+".txt"))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
