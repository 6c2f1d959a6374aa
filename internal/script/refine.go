package script

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"

	"github.com/voxcut/voxcut/internal/llm"
)

// refineResponse is what the refine call is asked to return: a
// selection among the existing item ids, optionally with smoothed
// text on the opening and closing items.
type refineItem struct {
	ID        int    `json:"_id"`
	Narration string `json:"narration,omitempty"`
	Picture   string `json:"picture,omitempty"`
	OST       *int   `json:"OST,omitempty"`
}

type refineList struct {
	Items []refineItem `json:"items"`
}

// RefineItems reduces the merged items to the effective target. With
// a single source chunk the reduction is a plain truncation in time
// order; with two or more chunks one LM pass selects the items and
// may smooth the first and last narrations. The model must not invent
// items: unknown ids in its answer are ignored, and a failed or
// unusable refine falls back to truncation.
func RefineItems(ctx context.Context, provider llm.ChatProvider, logger *slog.Logger, merged []Item, targetMax, chunkCount int, language string) ([]Item, error) {
	target := targetMax
	if len(merged) < target {
		target = len(merged)
	}
	if target <= 0 {
		return nil, nil
	}

	if chunkCount < 2 {
		return renumber(merged[:target]), nil
	}

	selected, err := refineViaLLM(ctx, provider, logger, merged, target, language)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logger.Warn("refine pass failed, truncating in time order", "error", err)
		return renumber(merged[:target]), nil
	}
	return selected, nil
}

func refineViaLLM(ctx context.Context, provider llm.ChatProvider, logger *slog.Logger, merged []Item, target int, language string) ([]Item, error) {
	payload, err := json.Marshal(ItemList{Items: merged})
	if err != nil {
		return nil, err
	}

	languageName := "中文"
	if language == "en" {
		languageName = "English"
	}
	system := fmt.Sprintf(`You are refining a draft narration script assembled from multiple passes.
The user message contains a JSON object with an "items" array.
Return a JSON object {"items": [{"_id": ...}]} selecting exactly %d of the existing items by their "_id".
Keep the story coherent end to end. You may rewrite "narration" (and "picture") on the first and last selected items to smooth the opening and ending; include those fields only when changed, in %s.
Never invent new items and never use ids that do not exist.`, target, languageName)

	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: system},
		{Role: llm.RoleUser, Content: string(payload)},
	}

	byID := make(map[int]Item, len(merged))
	for _, it := range merged {
		byID[it.ID] = it
	}

	var lastErr error
	for attempt := 1; attempt <= llmAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		result, err := provider.Chat(ctx, messages, llm.Options{ResponseFormat: "json_object"})
		if err != nil {
			lastErr = err
			logger.Warn("refine call failed", "attempt", attempt, "error", err)
			continue
		}

		selected, err := applyRefine(result.Content, byID, target)
		if err != nil {
			lastErr = err
			logger.Warn("refine response unusable", "attempt", attempt, "error", err)
			continue
		}
		return selected, nil
	}
	return nil, fmt.Errorf("refine failed after %d attempts: %w", llmAttempts, lastErr)
}

// applyRefine interprets the model's selection: LM order is honored,
// unknown ids skipped, overrides applied, surplus trimmed and a
// shortfall topped up from the remaining items in time order.
func applyRefine(content string, byID map[int]Item, target int) ([]Item, error) {
	cleaned := cleanJSON(content)
	var resp refineList
	if err := json.Unmarshal([]byte(cleaned), &resp); err != nil {
		return nil, fmt.Errorf("parsing refine response: %w", err)
	}
	if len(resp.Items) == 0 {
		return nil, fmt.Errorf("refine response selected nothing")
	}

	var selected []Item
	used := make(map[int]bool)
	for _, r := range resp.Items {
		it, ok := byID[r.ID]
		if !ok || used[r.ID] {
			continue
		}
		used[r.ID] = true
		if r.Narration != "" {
			it.Narration = r.Narration
		}
		if r.Picture != "" {
			it.Picture = r.Picture
		}
		if r.OST != nil && (*r.OST == 0 || *r.OST == 1) {
			it.OST = *r.OST
		}
		selected = append(selected, it)
		if len(selected) == target {
			break
		}
	}
	if len(selected) == 0 {
		return nil, fmt.Errorf("refine response contained no known ids")
	}

	if len(selected) < target {
		var rest []Item
		for id, it := range byID {
			if !used[id] {
				rest = append(rest, it)
			}
		}
		sort.SliceStable(rest, func(i, j int) bool { return rest[i].start < rest[j].start })
		for _, it := range rest {
			selected = append(selected, it)
			if len(selected) == target {
				break
			}
		}
	}

	sort.SliceStable(selected, func(i, j int) bool { return selected[i].start < selected[j].start })
	return renumber(selected), nil
}

func renumber(items []Item) []Item {
	out := make([]Item, len(items))
	copy(out, items)
	for i := range out {
		out[i].ID = i + 1
	}
	return out
}
