package draft

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUsOfRoundsToMicroseconds(t *testing.T) {
	assert.Equal(t, int64(1_500_000), usOf(1.5))
	assert.Equal(t, int64(0), usOf(0))
	assert.Equal(t, int64(33_333), usOf(0.0333333))
}

func TestBuildDraftDocPlacesSegmentsSequentially(t *testing.T) {
	canvas := canvasInfo{Width: 1920, Height: 1080, FPS: 30}
	placements := []placement{
		{SourceStartUs: 0, DurationUs: 5_000_000, TimelineUs: 0},
		{
			SourceStartUs: 10_000_000, DurationUs: 7_000_000, TimelineUs: 5_000_000,
			AudioRel: "assets/audio/seg_001.mp3", AudioDurUs: 7_000_000, Muted: true,
		},
		{SourceStartUs: 30_000_000, DurationUs: 3_000_000, TimelineUs: 12_000_000},
	}

	doc := buildDraftDoc("demo", canvas, "assets/video/src.mp4", 60_000_000, placements)

	assert.Equal(t, int64(15_000_000), doc.Duration)
	assert.Equal(t, 1920, doc.CanvasConfig.Width)
	assert.InDelta(t, 30.0, doc.FPS, 1e-9)

	require.Len(t, doc.Materials.Videos, 1)
	assert.Equal(t, "assets/video/src.mp4", doc.Materials.Videos[0].Path)
	assert.Equal(t, int64(60_000_000), doc.Materials.Videos[0].Duration)
	assert.Len(t, doc.Materials.Audios, 1)
	assert.Len(t, doc.Materials.Speeds, 3)

	require.Len(t, doc.Tracks, 2)
	video, audio := doc.Tracks[0], doc.Tracks[1]
	assert.Equal(t, "video", video.Type)
	assert.Equal(t, "audio", audio.Type)
	require.Len(t, video.Segments, 3)
	require.Len(t, audio.Segments, 1)

	// every video segment references the single source material
	for _, seg := range video.Segments {
		assert.Equal(t, doc.Materials.Videos[0].ID, seg.MaterialID)
		assert.True(t, seg.Visible)
		require.Len(t, seg.ExtraMaterialRefs, 1)
	}

	// narrated segment is muted, the others keep source audio
	assert.Equal(t, 1.0, video.Segments[0].Volume)
	assert.Equal(t, 0.0, video.Segments[1].Volume)
	assert.Equal(t, 1.0, video.Segments[2].Volume)

	// narration lands at the same timeline position as its segment
	assert.Equal(t, video.Segments[1].TargetTimerange.Start, audio.Segments[0].TargetTimerange.Start)
	assert.Equal(t, int64(0), audio.Segments[0].SourceTimerange.Start)
	assert.Equal(t, int64(7_000_000), audio.Segments[0].SourceTimerange.Duration)
}

func TestBuildDraftDocOmitsEmptyAudioTrack(t *testing.T) {
	doc := buildDraftDoc("demo", canvasInfo{Width: 720, Height: 1280, FPS: 25},
		"assets/video/src.mp4", 10_000_000,
		[]placement{{DurationUs: 10_000_000}})

	require.Len(t, doc.Tracks, 1)
	assert.Equal(t, "video", doc.Tracks[0].Type)
	assert.Empty(t, doc.Materials.Audios)
}

func TestBuildDraftDocIDsAreUniqueUUIDs(t *testing.T) {
	doc := buildDraftDoc("demo", canvasInfo{Width: 1920, Height: 1080, FPS: 30},
		"assets/video/src.mp4", 20_000_000,
		[]placement{
			{DurationUs: 5_000_000},
			{DurationUs: 5_000_000, TimelineUs: 5_000_000, AudioRel: "assets/audio/a.mp3", AudioDurUs: 5_000_000, Muted: true},
		})

	seen := map[string]bool{}
	record := func(id string) {
		_, err := uuid.Parse(id)
		assert.NoError(t, err, "id %q", id)
		assert.False(t, seen[id], "duplicate id %q", id)
		seen[id] = true
	}

	record(doc.ID)
	record(doc.Materials.Videos[0].ID)
	for _, a := range doc.Materials.Audios {
		record(a.ID)
	}
	for _, s := range doc.Materials.Speeds {
		record(s.ID)
	}
	for _, tr := range doc.Tracks {
		record(tr.ID)
		for _, seg := range tr.Segments {
			record(seg.ID)
		}
	}
}

func TestDraftDocMarshalsWithMicrosecondFields(t *testing.T) {
	doc := buildDraftDoc("demo", canvasInfo{Width: 1080, Height: 1920, FPS: 30},
		"assets/video/src.mp4", 12_345_678,
		[]placement{{SourceStartUs: 1_000_000, DurationUs: 2_000_000}})

	data, err := json.Marshal(doc)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Contains(t, decoded, "canvas_config")
	assert.Contains(t, decoded, "materials")
	assert.Contains(t, decoded, "tracks")
	assert.EqualValues(t, 2_000_000, decoded["duration"])
}
