package script

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxcut/voxcut/internal/llm"
	"github.com/voxcut/voxcut/internal/models"
	"github.com/voxcut/voxcut/internal/prompt"
	"github.com/voxcut/voxcut/internal/subtitle"
)

// mockLLM answers chunk calls with evenly spaced items inside the
// chunk window and refine calls with an id selection.
type mockLLM struct {
	mu        sync.Mutex
	calls     int
	failTimes int
	err       error
}

func (m *mockLLM) Chat(ctx context.Context, messages []llm.Message, opts llm.Options) (*llm.Result, error) {
	m.mu.Lock()
	m.calls++
	if m.failTimes > 0 {
		m.failTimes--
		m.mu.Unlock()
		return nil, errors.New("transient provider hiccup")
	}
	m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}

	system := messages[0].Content
	if strings.Contains(system, "refining a draft narration script") {
		return m.refineAnswer(messages[1].Content, system)
	}
	return m.chunkAnswer(system)
}

var (
	countRe  = regexp.MustCompile(`Produce exactly (\d+) items`)
	windowRe = regexp.MustCompile(`covering (\d{2}:\d{2}:\d{2},\d{3}) to (\d{2}:\d{2}:\d{2},\d{3})`)
	targetRe = regexp.MustCompile(`selecting exactly (\d+)`)
)

// chunkAnswer reads the directive for the item count and time range.
func (m *mockLLM) chunkAnswer(system string) (*llm.Result, error) {
	count := 1
	if mm := countRe.FindStringSubmatch(system); mm != nil {
		count, _ = strconv.Atoi(mm[1])
	}

	var from, to float64
	if mm := windowRe.FindStringSubmatch(system); mm != nil {
		from, _ = subtitle.ParseTimestamp(mm[1])
		to, _ = subtitle.ParseTimestamp(mm[2])
	}
	if to <= from {
		to = from + float64(count)*4
	}

	items := make([]Item, count)
	step := (to - from) / float64(count)
	for i := range items {
		start := from + float64(i)*step
		items[i] = Item{
			ID:        i + 1,
			Timestamp: subtitle.FormatTimeRange(start, start+step*0.9),
			Picture:   fmt.Sprintf("scene %d", i+1),
			Narration: fmt.Sprintf("narration %d", i+1),
			OST:       i % 3 % 2,
		}
	}
	payload, _ := json.Marshal(ItemList{Items: items})
	return &llm.Result{Content: string(payload)}, nil
}

func (m *mockLLM) refineAnswer(userJSON, system string) (*llm.Result, error) {
	target := 1
	if mm := targetRe.FindStringSubmatch(system); mm != nil {
		target, _ = strconv.Atoi(mm[1])
	}

	var list ItemList
	if err := json.Unmarshal([]byte(userJSON), &list); err != nil {
		return nil, err
	}
	if target > len(list.Items) {
		target = len(list.Items)
	}
	var sel []map[string]any
	for i := 0; i < target; i++ {
		sel = append(sel, map[string]any{"_id": list.Items[i].ID})
	}
	payload, _ := json.Marshal(map[string]any{"items": sel})
	return &llm.Result{Content: string(payload)}, nil
}

func subtitleCorpus(n int) string {
	subs := make([]subtitle.Segment, n)
	for i := range subs {
		start := float64(i) * 2
		subs[i] = subtitle.Segment{Start: start, End: start + 1.8, Text: fmt.Sprintf("line %d", i)}
	}
	return subtitle.Compress(subs)
}

func newTestAssembler(provider llm.ChatProvider) *Assembler {
	lib, _ := prompt.LoadLibrary("")
	return NewAssembler(provider, lib, slog.New(slog.DiscardHandler))
}

func TestGenerateEndToEnd(t *testing.T) {
	mock := &mockLLM{}
	asm := newTestAssembler(mock)

	var phases []string
	s, err := asm.Generate(context.Background(), GenerateInput{
		DramaName:       "Westward",
		PlotAnalysis:    "A long journey.",
		SubtitleContent: subtitleCorpus(500),
		LengthPreset:    "20～30条",
		OriginalRatio:   70,
		Language:        "zh",
		OnProgress:      func(phase string, pct int) { phases = append(phases, phase) },
	})
	require.NoError(t, err)
	require.NotNil(t, s)

	// 500 cues at target 30 plan into 3 chunks of 10 items each;
	// the refine pass keeps the merged selection within target
	assert.LessOrEqual(t, len(s.Segments), 30)
	assert.NotEmpty(t, s.Segments)
	require.NoError(t, s.Validate(0))

	for i, seg := range s.Segments {
		assert.Equal(t, fmt.Sprint(i+1), seg.ID)
	}
	assert.Contains(t, phases, "chunks_planned")
	assert.Contains(t, phases, "done")
	assert.NotEmpty(t, s.Version)
}

func TestGenerateSingleChunkSkipsRefine(t *testing.T) {
	mock := &mockLLM{}
	asm := newTestAssembler(mock)

	s, err := asm.Generate(context.Background(), GenerateInput{
		DramaName:       "Short",
		SubtitleContent: subtitleCorpus(40),
		LengthPreset:    "10",
		Language:        "en",
	})
	require.NoError(t, err)
	// one chunk: one generation call, no refine call
	assert.Equal(t, 1, mock.calls)
	assert.NotEmpty(t, s.Segments)
}

func TestGenerateRetriesTransientFailures(t *testing.T) {
	mock := &mockLLM{failTimes: 2}
	asm := newTestAssembler(mock)

	_, err := asm.Generate(context.Background(), GenerateInput{
		DramaName:       "Flaky",
		SubtitleContent: subtitleCorpus(40),
		LengthPreset:    "10",
	})
	assert.NoError(t, err)
}

func TestGeneratePermanentFailure(t *testing.T) {
	mock := &mockLLM{err: errors.New("provider down")}
	asm := newTestAssembler(mock)

	_, err := asm.Generate(context.Background(), GenerateInput{
		DramaName:       "Down",
		SubtitleContent: subtitleCorpus(40),
		LengthPreset:    "10",
	})
	assert.ErrorIs(t, err, models.ErrProviderUnavailable)
}

func TestGenerateEmptySubtitles(t *testing.T) {
	asm := newTestAssembler(&mockLLM{})
	_, err := asm.Generate(context.Background(), GenerateInput{DramaName: "X"})
	assert.ErrorIs(t, err, models.ErrInputInvalid)
}
