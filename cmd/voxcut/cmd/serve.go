package cmd

import (
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/voxcut/voxcut/internal/asr"
	"github.com/voxcut/voxcut/internal/config"
	"github.com/voxcut/voxcut/internal/database"
	"github.com/voxcut/voxcut/internal/draft"
	"github.com/voxcut/voxcut/internal/events"
	"github.com/voxcut/voxcut/internal/httpx"
	"github.com/voxcut/voxcut/internal/llm"
	"github.com/voxcut/voxcut/internal/maintenance"
	"github.com/voxcut/voxcut/internal/media"
	"github.com/voxcut/voxcut/internal/modeldl"
	"github.com/voxcut/voxcut/internal/pipeline"
	"github.com/voxcut/voxcut/internal/progress"
	"github.com/voxcut/voxcut/internal/prompt"
	"github.com/voxcut/voxcut/internal/repository"
	"github.com/voxcut/voxcut/internal/script"
	"github.com/voxcut/voxcut/internal/service"
	"github.com/voxcut/voxcut/internal/taskqueue"
	"github.com/voxcut/voxcut/internal/tts"
	"github.com/voxcut/voxcut/internal/version"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the voxcut backend",
	Long: `Start the voxcut backend: the project store, the scoped task
scheduler with its worker pools, the media pipelines, and the
maintenance sweeps. The process runs until interrupted.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("uploads-root", "", "root directory for uploads and outputs")
	serveCmd.Flags().String("database", "", "sqlite database file path")

	mustBindPFlag("uploads.root", serveCmd.Flags().Lookup("uploads-root"))
	mustBindPFlag("database.path", serveCmd.Flags().Lookup("database"))
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := slog.Default()
	logger.Info("starting voxcut", "version", version.Short())

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	db, err := database.New(&cfg.Database, logger)
	if err != nil {
		return err
	}
	defer db.Close()
	projects := repository.NewProjectRepository(db.DB())

	binaries := media.NewBinaries(cfg.FFmpeg.FFmpegPath, cfg.FFmpeg.FFprobePath)
	runner := media.NewRunner()
	prober := media.NewProber(binaries, runner)
	encoders := media.NewEncoderDetector(binaries, runner, logger)

	bus := events.NewBus(logger)
	store := progress.NewStore()
	registry := taskqueue.NewRegistry()
	scheduler := taskqueue.NewScheduler(registry, store, bus, logger)
	defer scheduler.Shutdown()

	sub := bus.Subscribe()
	defer bus.Unsubscribe(sub)
	go func() {
		for ev := range sub.C {
			logTaskEvent(logger, ev)
		}
	}()

	llmProvider := llm.NewOpenAIClient(cfg.Providers.LLM)
	ttsProvider := tts.NewHTTPProvider(cfg.Providers.TTS)
	asrProvider := asr.NewCache(asr.NewHTTPProvider(cfg.Providers.ASR), cfg.ASRCacheDir(), logger)

	prompts, err := prompt.LoadLibrary(cfg.Script.PromptDir)
	if err != nil {
		return err
	}

	videoPipeline := pipeline.New(cfg, binaries, runner, prober, encoders, ttsProvider, projects, logger)
	draftBuilder := draft.NewBuilder(cfg, binaries, runner, prober, ttsProvider, logger)
	assembler := script.NewAssembler(llmProvider, prompts, logger)
	downloader := modeldl.New(cfg, httpx.New(httpx.DefaultConfig()), logger)

	services := &service.Services{
		Video:     service.NewVideoService(cfg, videoPipeline, projects, scheduler, logger),
		Script:    service.NewScriptService(cfg, assembler, projects, scheduler, logger),
		Draft:     service.NewDraftService(cfg, draftBuilder, projects, scheduler, logger),
		Subtitles: service.NewSubtitleService(cfg, binaries, runner, asrProvider, projects, scheduler, logger),
		Models:    service.NewModelService(cfg, downloader, scheduler, logger),
	}
	// the desktop front end drives these facades over its IPC surface,
	// which lives outside this repository
	_ = services

	sweeper := maintenance.New(cfg, store, logger)
	if removed := sweeper.CleanOrphans(); removed > 0 {
		logger.Info("orphaned temp dirs removed", "count", removed)
	}
	if err := sweeper.Start(); err != nil {
		return err
	}
	defer sweeper.Stop()

	logger.Info("voxcut ready", "uploads_root", cfg.Uploads.Root)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	logger.Info("shutting down")
	return nil
}

// logTaskEvent is the serve process's observable task surface:
// terminal events at info, progress at debug.
func logTaskEvent(logger *slog.Logger, ev *events.TaskEvent) {
	if ev.IsTerminal() {
		logger.Info("task finished", "type", ev.Type, "scope", ev.Scope,
			"task_id", ev.TaskID, "status", ev.Status, "message", ev.Message)
		return
	}
	logger.Debug("task event", "type", ev.Type, "scope", ev.Scope,
		"task_id", ev.TaskID, "phase", ev.Phase, "progress", ev.Progress)
}

// mustBindPFlag binds a viper key to a cobra flag and panics when the
// binding fails, keeping init() lint-clean.
func mustBindPFlag(key string, flag *pflag.Flag) {
	if err := viper.BindPFlag(key, flag); err != nil {
		panic(err)
	}
}
