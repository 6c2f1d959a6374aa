// Package draft emits an editor-importable project folder from a
// project and its script: copied assets, loudness-normalized
// narration, and the JSON project files the target editor reads.
package draft

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/voxcut/voxcut/internal/config"
	"github.com/voxcut/voxcut/internal/media"
	"github.com/voxcut/voxcut/internal/models"
	"github.com/voxcut/voxcut/internal/observability"
	"github.com/voxcut/voxcut/internal/pipeline"
	"github.com/voxcut/voxcut/internal/taskqueue"
	"github.com/voxcut/voxcut/internal/tts"
)

// All time values in the project files are microseconds.
const microsPerSecond = 1_000_000

func usOf(seconds float64) int64 {
	return int64(math.Round(seconds * microsPerSecond))
}

// Reporter receives coarse build progress for event publication.
type Reporter func(phase string, percent int, message string)

// Builder produces editor draft folders.
type Builder struct {
	cfg      *config.Config
	binaries *media.Binaries
	runner   *media.Runner
	prober   *media.Prober
	tts      tts.Provider
	logger   *slog.Logger

	ttsVoice string
	ttsSpeed float64
}

// NewBuilder creates a draft builder.
func NewBuilder(cfg *config.Config, binaries *media.Binaries, runner *media.Runner, prober *media.Prober, ttsProvider tts.Provider, logger *slog.Logger) *Builder {
	return &Builder{
		cfg:      cfg,
		binaries: binaries,
		runner:   runner,
		prober:   prober,
		tts:      ttsProvider,
		logger:   observability.WithComponent(logger, "draft"),
		ttsVoice: cfg.Providers.TTS.Voice,
		ttsSpeed: cfg.Providers.TTS.Speed,
	}
}

// Result is the outcome of a successful draft build.
type Result struct {
	DraftPath     string
	SegmentsCount int
}

// placement is one script segment resolved onto the editor timeline.
type placement struct {
	SourceStartUs int64
	DurationUs    int64
	TimelineUs    int64

	// narrated segments only; AudioRel is empty for originals
	AudioRel   string
	AudioDurUs int64
	Muted      bool
}

// canvasInfo is the probed geometry of the source video.
type canvasInfo struct {
	Width  int
	Height int
	FPS    float64
}

// Build writes a complete draft folder for the project and returns
// its path. Narration is synthesized per non-original segment and
// loudness-normalized before placement.
func (b *Builder) Build(ctx context.Context, project *models.Project, script *models.Script, sig *taskqueue.Signal, report Reporter) (*Result, error) {
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

	videoDur, ok := b.prober.Duration(ctx, project.VideoPath, media.DurationFormat)
	if !ok {
		return nil, models.MediaProcessingFailure("cannot probe source video duration")
	}
	if err := script.Validate(videoDur); err != nil {
		return nil, err
	}

	canvas := canvasInfo{Width: 1920, Height: 1080, FPS: 30}
	if si := b.prober.StreamInfo(ctx, project.VideoPath); si.Video != nil {
		canvas.Width = si.Video.Width
		canvas.Height = si.Video.Height
		if fps := si.Video.FPS(); fps > 0 {
			canvas.FPS = fps
		}
	}

	report("start", 2, "draft build started")

	draftDir := filepath.Join(b.cfg.DraftOutputDir(project.Name), time.Now().Format("20060102150405"))
	videoAssets := filepath.Join(draftDir, "assets", "video")
	audioAssets := filepath.Join(draftDir, "assets", "audio")
	for _, dir := range []string{videoAssets, audioAssets} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating draft dir: %w", err)
		}
	}

	job := fmt.Sprintf("%s_draft_%s", project.ID, time.Now().Format("20060102150405"))
	audioTmp := b.cfg.AudioTmpDir(job)
	if err := os.MkdirAll(audioTmp, 0o755); err != nil {
		return nil, fmt.Errorf("creating job dir: %w", err)
	}
	defer os.RemoveAll(audioTmp)

	videoRel := filepath.Join("assets", "video", filepath.Base(project.VideoPath))
	if err := copyFile(project.VideoPath, filepath.Join(draftDir, videoRel)); err != nil {
		return nil, fmt.Errorf("copying source video: %w", err)
	}
	report("copy_assets", 10, "source video copied")

	placements := make([]placement, len(script.Segments))
	var cursor int64
	for i := range script.Segments {
		if err := checkCancel(ctx, sig); err != nil {
			os.RemoveAll(draftDir)
			return nil, err
		}
		seg := &script.Segments[i]

		pl := placement{
			SourceStartUs: usOf(seg.StartTime),
			DurationUs:    usOf(seg.Duration()),
			TimelineUs:    cursor,
		}
		if !seg.IsOriginal() {
			rel, adur, err := b.prepareNarration(ctx, seg, i, audioTmp, audioAssets, sig)
			if err != nil {
				os.RemoveAll(draftDir)
				return nil, err
			}
			al := pipeline.AlignWindow(adur, seg.Duration(), videoDur, seg.StartTime, seg.EndTime)
			pl.SourceStartUs = usOf(al.NewStart)
			pl.DurationUs = usOf(al.NewDuration)
			pl.AudioRel = rel
			pl.AudioDurUs = usOf(adur)
			pl.Muted = true
		}
		placements[i] = pl
		cursor += pl.DurationUs

		report("build_segments_progress", 10+(i+1)*70/len(script.Segments),
			fmt.Sprintf("placed segment %d/%d", i+1, len(script.Segments)))
	}

	doc := buildDraftDoc(project.Name, canvas, videoRel, usOf(videoDur), placements)
	if err := writeJSON(filepath.Join(draftDir, "draft_info.json"), doc); err != nil {
		os.RemoveAll(draftDir)
		return nil, err
	}
	if err := b.writeCompanions(draftDir, doc, project.Name); err != nil {
		os.RemoveAll(draftDir)
		return nil, err
	}

	report("finalize", 99, "draft written")
	b.logger.Info("draft built", "project_id", project.ID, "path", draftDir, "segments", len(placements))
	return &Result{DraftPath: draftDir, SegmentsCount: len(placements)}, nil
}

// prepareNarration synthesizes one segment's narration and normalizes
// it into the draft's audio assets, returning the draft-relative path
// and the measured duration in seconds.
func (b *Builder) prepareNarration(ctx context.Context, seg *models.Segment, index int, audioTmp, audioAssets string, sig *taskqueue.Signal) (string, float64, error) {
	raw := filepath.Join(audioTmp, fmt.Sprintf("seg_%03d_raw.mp3", index))
	result, err := b.tts.Synthesize(ctx, tts.Request{
		Text:    seg.Text,
		VoiceID: b.ttsVoice,
		Speed:   b.ttsSpeed,
		OutPath: raw,
	})
	if err != nil {
		return "", 0, fmt.Errorf("tts for segment %d: %w", index+1, err)
	}
	if !result.Success {
		return "", 0, models.ProviderUnavailable("tts for segment %d: %s", index+1, result.Error)
	}

	name := fmt.Sprintf("seg_%03d.mp3", index)
	normalized := filepath.Join(audioAssets, name)
	if err := b.normalizeLoudness(ctx, raw, normalized, sig); err != nil {
		return "", 0, err
	}

	adur, ok := b.prober.Duration(ctx, normalized, media.DurationAudioStream)
	if !ok {
		adur = result.Duration
	}
	if adur <= 0 {
		return "", 0, models.MediaProcessingFailure("narration for segment %d has no measurable duration", index+1)
	}
	return filepath.Join("assets", "audio", name), adur, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
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

func newID() string {
	return uuid.NewString()
}
