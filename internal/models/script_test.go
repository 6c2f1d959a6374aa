package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSegmentIsOriginal(t *testing.T) {
	tests := []struct {
		name string
		seg  Segment
		want bool
	}{
		{"ost flag", Segment{OST: 1, Text: "narration"}, true},
		{"zh sentinel", Segment{Text: "播放原片，无需解说"}, true},
		{"en sentinel", Segment{Text: "Play original footage here"}, true},
		{"narrated", Segment{Text: "He opens the door"}, false},
		{"sentinel mid-text", Segment{Text: "然后播放原片"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.seg.IsOriginal())
		})
	}
}

func TestScriptValidate(t *testing.T) {
	valid := &Script{Segments: []Segment{
		{ID: "1", StartTime: 0, EndTime: 5},
		{ID: "2", StartTime: 5, EndTime: 12.5},
	}}
	require.NoError(t, valid.Validate(60))

	empty := &Script{}
	assert.ErrorIs(t, empty.Validate(60), ErrInputInvalid)

	inverted := &Script{Segments: []Segment{{ID: "1", StartTime: 5, EndTime: 5}}}
	assert.ErrorIs(t, inverted.Validate(60), ErrInputInvalid)

	unsorted := &Script{Segments: []Segment{
		{ID: "1", StartTime: 10, EndTime: 15},
		{ID: "2", StartTime: 2, EndTime: 8},
	}}
	assert.ErrorIs(t, unsorted.Validate(60), ErrInputInvalid)

	overlong := &Script{Segments: []Segment{{ID: "1", StartTime: 0, EndTime: 70}}}
	assert.ErrorIs(t, overlong.Validate(60), ErrInputInvalid)
	assert.NoError(t, overlong.Validate(0))
}

func TestScriptValidateClampsSmallEndOvershoot(t *testing.T) {
	s := &Script{Segments: []Segment{
		{ID: "1", StartTime: 0, EndTime: 30},
		{ID: "2", StartTime: 30, EndTime: 60.3},
	}}
	require.NoError(t, s.Validate(60))
	assert.InDelta(t, 60.0, s.Segments[1].EndTime, 1e-9)

	// past the clamp window the script is still rejected
	far := &Script{Segments: []Segment{{ID: "1", StartTime: 0, EndTime: 60.6}}}
	assert.ErrorIs(t, far.Validate(60), ErrInputInvalid)

	// clamping must not collapse a window that starts at the duration
	collapsed := &Script{Segments: []Segment{{ID: "1", StartTime: 60, EndTime: 60.2}}}
	assert.ErrorIs(t, collapsed.Validate(60), ErrInputInvalid)
}

func TestNarratedSegments(t *testing.T) {
	s := &Script{Segments: []Segment{
		{ID: "1", StartTime: 0, EndTime: 5, OST: 1},
		{ID: "2", StartTime: 5, EndTime: 10, Text: "voice over"},
		{ID: "3", StartTime: 10, EndTime: 15, Text: "播放原片"},
	}}
	narrated := s.NarratedSegments()
	require.Len(t, narrated, 1)
	assert.Equal(t, "2", narrated[0].ID)
}

func TestScriptColumnRoundTrip(t *testing.T) {
	col := ScriptColumn{Script: NewScript([]Segment{{ID: "1", StartTime: 0, EndTime: 3, Text: "hi"}})}
	v, err := col.Value()
	require.NoError(t, err)

	var back ScriptColumn
	require.NoError(t, back.Scan(v))
	require.NotNil(t, back.Script)
	assert.Equal(t, col.Script.Version, back.Script.Version)
	assert.Len(t, back.Script.Segments, 1)

	var null ScriptColumn
	require.NoError(t, null.Scan(nil))
	assert.Nil(t, null.Script)
}
