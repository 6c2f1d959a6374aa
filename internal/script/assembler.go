package script

import (
	"context"
	"log/slog"
	"strings"

	"github.com/voxcut/voxcut/internal/llm"
	"github.com/voxcut/voxcut/internal/models"
	"github.com/voxcut/voxcut/internal/observability"
	"github.com/voxcut/voxcut/internal/prompt"
	"github.com/voxcut/voxcut/internal/subtitle"
)

// GenerateInput is everything one script generation needs.
type GenerateInput struct {
	DramaName       string
	PlotAnalysis    string
	SubtitleContent string // SRT or compressed bracket form
	Selection       models.PromptSelection
	LengthPreset    string // e.g. "20～30条" or a bare count
	OriginalRatio   int    // percent of time keeping original footage
	Language        string // "zh" or "en"

	// OnProgress, when set, observes coarse generation progress.
	OnProgress func(phase string, percent int)
}

// Assembler drives the full script pipeline: plan, generate chunks in
// parallel, merge, refine, convert.
type Assembler struct {
	provider llm.ChatProvider
	prompts  *prompt.Library
	logger   *slog.Logger
}

// NewAssembler creates a script assembler.
func NewAssembler(provider llm.ChatProvider, prompts *prompt.Library, logger *slog.Logger) *Assembler {
	return &Assembler{
		provider: provider,
		prompts:  prompts,
		logger:   observability.WithComponent(logger, "script"),
	}
}

// Generate produces a validated script from subtitles and analysis.
func (a *Assembler) Generate(ctx context.Context, in GenerateInput) (*models.Script, error) {
	if strings.TrimSpace(in.SubtitleContent) == "" {
		return nil, models.InputInvalid("subtitle content is empty")
	}
	if in.OriginalRatio < 10 || in.OriginalRatio > 90 {
		in.OriginalRatio = 70
	}
	if in.Language == "" {
		in.Language = "zh"
	}

	report := func(phase string, pct int) {
		if in.OnProgress != nil {
			in.OnProgress(phase, pct)
		}
	}

	subs, err := subtitle.Parse(in.SubtitleContent)
	if err != nil {
		return nil, err
	}

	preset := in.LengthPreset
	if strings.TrimSpace(preset) == "" {
		preset = "20～30条"
	}
	_, targetMax, err := ParseLengthPreset(preset)
	if err != nil {
		return nil, err
	}

	tpl, err := a.prompts.ResolveForProject(in.Selection, in.Language)
	if err != nil {
		return nil, err
	}

	plan := PlanChunks(subs, targetMax)
	a.logger.Info("script generation planned",
		"subtitles", len(subs), "chunks", len(plan), "target_max", targetMax)
	report("chunks_planned", 5)

	chunkLists, err := generateAllChunks(ctx, a.provider, a.logger, tpl,
		in.DramaName, in.PlotAnalysis, plan, in.OriginalRatio, in.Language,
		func(done int) {
			// chunk generation spans 5..70 of the reported range
			report("chunk_generated", 5+done*65/len(plan))
		})
	if err != nil {
		return nil, err
	}

	merged := MergeItems(chunkLists...)
	if len(merged) == 0 {
		return nil, models.ProviderUnavailable("no usable items after merge")
	}
	report("merged", 75)

	final, err := RefineItems(ctx, a.provider, a.logger, merged, targetMax, len(plan), in.Language)
	if err != nil {
		return nil, err
	}
	if len(final) == 0 {
		return nil, models.ProviderUnavailable("refine produced no items")
	}
	report("refined", 95)

	s := models.NewScript(ToSegments(final))
	s.SortSegments()
	if err := s.Validate(0); err != nil {
		return nil, err
	}
	report("done", 100)
	return s, nil
}
