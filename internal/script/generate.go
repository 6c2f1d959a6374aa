package script

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/voxcut/voxcut/internal/llm"
	"github.com/voxcut/voxcut/internal/models"
	"github.com/voxcut/voxcut/internal/prompt"
	"github.com/voxcut/voxcut/internal/subtitle"
)

const (
	// llmAttempts bounds retries of each LM call.
	llmAttempts = 3
	// chunkTimeSlack widens the chunk window when filtering returned
	// items; the model may legitimately reach slightly past the edges.
	chunkTimeSlack = 5.0
	// maxParallelChunkCalls bounds concurrent LM requests.
	maxParallelChunkCalls = 4
)

// chunkPosition names where a chunk sits in the episode; the model
// shapes openings and endings differently.
func chunkPosition(idx, total int) string {
	switch {
	case total == 1:
		return "complete"
	case idx == 0:
		return "opening"
	case idx == total-1:
		return "ending"
	default:
		return "middle"
	}
}

// buildChunkMessages assembles the chat messages for one chunk. All
// system content collapses into a single system message.
func buildChunkMessages(tpl prompt.Template, dramaName, plotAnalysis string, plan PlanItem, totalChunks int, originalRatio int, language string) []llm.Message {
	subtitleContent := subtitle.Compress(plan.Subs)
	vars := map[string]string{
		"drama_name":       dramaName,
		"plot_analysis":    plotAnalysis,
		"subtitle_content": subtitleContent,
	}

	languageName := "中文"
	if language == "en" {
		languageName = "English"
	}

	directive := fmt.Sprintf(`This chunk is the %s of the episode (chunk %d of %d, covering %s to %s).
Respond with a single JSON object of the exact shape:
{"items": [{"_id": 1, "timestamp": "HH:MM:SS,mmm-HH:MM:SS,mmm", "picture": "...", "narration": "...", "OST": 0}]}
Produce exactly %d items. Timestamps must lie within the chunk's time range.
Roughly %d%% of the covered time should keep the original footage (OST=1 or narration beginning with the original-footage marker).
All narration must be written in %s.`,
		chunkPosition(plan.Idx, totalChunks), plan.Idx+1, totalChunks,
		subtitle.FormatTimestamp(plan.StartS), subtitle.FormatTimestamp(plan.EndS),
		plan.TargetItems, originalRatio, languageName)

	system := strings.TrimSpace(prompt.Render(tpl.System, vars)) + "\n\n" + directive

	return []llm.Message{
		{Role: llm.RoleSystem, Content: system},
		{Role: llm.RoleUser, Content: prompt.Render(tpl.User, vars)},
	}
}

// chatItems calls the model and reduces the response to items,
// retrying transient failures.
func chatItems(ctx context.Context, provider llm.ChatProvider, logger *slog.Logger, messages []llm.Message) (*ItemList, error) {
	var lastErr error
	for attempt := 1; attempt <= llmAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		result, err := provider.Chat(ctx, messages, llm.Options{ResponseFormat: "json_object"})
		if err == nil {
			list, parseErr := CleanAndParse(result.Content)
			if parseErr == nil {
				return list, nil
			}
			err = parseErr
		}
		lastErr = err
		logger.Warn("llm call failed", "attempt", attempt, "error", err)
	}
	return nil, models.ProviderUnavailable("llm call failed after %d attempts: %v", llmAttempts, lastErr)
}

// generateChunk runs one chunk's generation and post-filters the
// returned items to the chunk window.
func generateChunk(ctx context.Context, provider llm.ChatProvider, logger *slog.Logger, tpl prompt.Template, dramaName, plotAnalysis string, plan PlanItem, totalChunks, originalRatio int, language string) ([]Item, error) {
	messages := buildChunkMessages(tpl, dramaName, plotAnalysis, plan, totalChunks, originalRatio, language)
	list, err := chatItems(ctx, provider, logger, messages)
	if err != nil {
		return nil, err
	}

	lo := plan.StartS - chunkTimeSlack
	hi := plan.EndS + chunkTimeSlack
	var items []Item
	for _, it := range list.Items {
		// drop items lying entirely outside the widened window
		if it.end <= lo || it.start >= hi {
			continue
		}
		items = append(items, it)
	}
	if len(items) > plan.TargetItems {
		items = items[:plan.TargetItems]
	}
	return items, nil
}

// generateAllChunks fans the plan out over parallel LM calls and
// returns the per-chunk lists in plan order.
func generateAllChunks(ctx context.Context, provider llm.ChatProvider, logger *slog.Logger, tpl prompt.Template, dramaName, plotAnalysis string, plan []PlanItem, originalRatio int, language string, onChunkDone func(done int)) ([][]Item, error) {
	results := make([][]Item, len(plan))
	var mu sync.Mutex
	done := 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelChunkCalls)

	for i := range plan {
		g.Go(func() error {
			items, err := generateChunk(gctx, provider, logger, tpl, dramaName, plotAnalysis, plan[i], len(plan), originalRatio, language)
			if err != nil {
				return fmt.Errorf("chunk %d: %w", plan[i].Idx+1, err)
			}
			mu.Lock()
			results[i] = items
			done++
			if onChunkDone != nil {
				onChunkDone(done)
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
