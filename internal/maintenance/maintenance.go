// Package maintenance runs the background sweeps: stale temp job
// dirs on disk and terminal task states in the progress store.
package maintenance

import (
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/voxcut/voxcut/internal/config"
	"github.com/voxcut/voxcut/internal/observability"
	"github.com/voxcut/voxcut/internal/progress"
)

// Sweeper schedules the periodic cleanup jobs.
type Sweeper struct {
	cfg    *config.Config
	store  *progress.Store
	logger *slog.Logger
	cron   *cron.Cron
}

// New creates a sweeper.
func New(cfg *config.Config, store *progress.Store, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		cfg:    cfg,
		store:  store,
		logger: observability.WithComponent(logger, "maintenance"),
		cron:   cron.New(),
	}
}

// Start registers and starts the sweep schedule. Disabled maintenance
// is a no-op.
func (s *Sweeper) Start() error {
	if !s.cfg.Maintenance.Enabled {
		s.logger.Info("maintenance disabled")
		return nil
	}
	if _, err := s.cron.AddFunc(s.cfg.Maintenance.SweepSchedule, s.sweep); err != nil {
		return err
	}
	s.cron.Start()
	s.logger.Info("maintenance started", "schedule", s.cfg.Maintenance.SweepSchedule)
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

func (s *Sweeper) sweep() {
	removed := SweepTempDirs(s.logger, s.tempRoots(), s.cfg.Maintenance.TempMaxAge)
	pruned := s.store.PruneTerminal(s.cfg.Maintenance.TerminalMaxAge)
	if removed > 0 || pruned > 0 {
		s.logger.Info("sweep finished", "tmp_dirs_removed", removed, "task_states_pruned", pruned)
	}
}

func (s *Sweeper) tempRoots() []string {
	return []string{
		filepath.Join(s.cfg.VideosDir(), "tmp"),
		filepath.Join(s.cfg.AudiosDir(), "tmp"),
	}
}

// CleanOrphans removes every job dir under the temp roots regardless
// of age. It runs once at startup, when no task can own them.
func (s *Sweeper) CleanOrphans() int {
	return SweepTempDirs(s.logger, s.tempRoots(), 0)
}

// SweepTempDirs removes subdirectories of the given roots whose
// modification time is older than maxAge, returning the count
// removed. A missing root is skipped.
func SweepTempDirs(logger *slog.Logger, roots []string, maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, root := range roots {
		entries, err := os.ReadDir(root)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if !e.IsDir() {
				continue
			}
			info, err := e.Info()
			if err != nil || info.ModTime().After(cutoff) {
				continue
			}
			path := filepath.Join(root, e.Name())
			if err := os.RemoveAll(path); err != nil {
				logger.Warn("temp dir removal failed", "path", path, "error", err)
				continue
			}
			removed++
			logger.Debug("temp dir removed", "path", path)
		}
	}
	return removed
}
