package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/voxcut/voxcut/internal/config"
	"github.com/voxcut/voxcut/internal/events"
	"github.com/voxcut/voxcut/internal/modeldl"
	"github.com/voxcut/voxcut/internal/models"
	"github.com/voxcut/voxcut/internal/observability"
	"github.com/voxcut/voxcut/internal/progress"
	"github.com/voxcut/voxcut/internal/taskqueue"
)

// snapshotDownloader is the downloader surface this facade consumes.
type snapshotDownloader interface {
	Installed(snap modeldl.Snapshot) bool
	Download(ctx context.Context, snap modeldl.Snapshot, sig *taskqueue.Signal, onProgress modeldl.ProgressFunc) error
}

// ModelService schedules local model downloads. Each model family has
// its own scope so ASR and TTS snapshots queue independently.
type ModelService struct {
	cfg        *config.Config
	downloader snapshotDownloader
	scheduler  *taskqueue.Scheduler
	logger     *slog.Logger
}

// NewModelService creates the model download facade.
func NewModelService(cfg *config.Config, downloader *modeldl.Downloader, scheduler *taskqueue.Scheduler, logger *slog.Logger) *ModelService {
	return &ModelService{
		cfg:        cfg,
		downloader: downloader,
		scheduler:  scheduler,
		logger:     observability.WithComponent(logger, "model_service"),
	}
}

// Enqueue schedules a snapshot download on the family's scope.
func (s *ModelService) Enqueue(snap modeldl.Snapshot) (string, error) {
	scope, err := scopeForFamily(snap.Family)
	if err != nil {
		return "", err
	}
	return s.scheduler.Enqueue(taskqueue.EnqueueOptions{
		Scope:       scope,
		ProjectID:   snap.Key,
		Run:         s.runFor(scope, snap),
		Concurrency: taskqueue.ResolveConcurrency(scope, s.cfg.Scopes),
		Dedup:       true,
	})
}

// Cancel cancels an active download.
func (s *ModelService) Cancel(family, key, taskID string) {
	scope, err := scopeForFamily(family)
	if err != nil {
		return
	}
	s.scheduler.Cancel(scope, key, taskID)
}

// Installed reports whether the snapshot is already on disk.
func (s *ModelService) Installed(snap modeldl.Snapshot) bool {
	return s.downloader.Installed(snap)
}

func (s *ModelService) runFor(scope string, snap modeldl.Snapshot) taskqueue.RunFunc {
	return func(ctx context.Context, projectID, taskID string, sig *taskqueue.Signal) (map[string]any, error) {
		started := time.Now()

		err := s.downloader.Download(ctx, snap, sig, func(downloaded, total int64) {
			ev := &events.TaskEvent{
				Type:            events.TypeProgress,
				Status:          progress.StatusProcessing,
				Phase:           "downloading",
				Progress:        downloadPercent(downloaded, total),
				Message:         fmt.Sprintf("downloading %s/%s", snap.Family, snap.Key),
				DownloadedBytes: downloaded,
				TotalBytes:      total,
			}
			s.scheduler.Publish(scope, projectID, taskID, ev)
		})
		if err != nil {
			return nil, err
		}

		s.logger.Info("model download finished", "family", snap.Family, "key", snap.Key)
		return resultMap(started, map[string]any{
			"file_path": s.cfg.RelativeToUploads(s.cfg.ModelsDir(snap.Family, snap.Key)),
		}), nil
	}
}

// downloadPercent caps at 99; the completion event carries the 100.
func downloadPercent(downloaded, total int64) int {
	if total <= 0 {
		return 0
	}
	pct := int(downloaded * 100 / total)
	if pct > 99 {
		pct = 99
	}
	return pct
}

func scopeForFamily(family string) (string, error) {
	switch family {
	case "fun_asr":
		return taskqueue.ScopeASRModels, nil
	case "qwen3_tts":
		return taskqueue.ScopeTTSModels, nil
	default:
		return "", models.InputInvalid("unknown model family %q", family)
	}
}
