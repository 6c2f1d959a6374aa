package subtitle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleSRT = `1
00:00:01,000 --> 00:00:03,500
Hello <i>there</i>

2
00:00:03,500 --> 00:00:06,000
Second   line
continued
`

func TestParseSRT(t *testing.T) {
	segs, err := Parse(sampleSRT)
	require.NoError(t, err)
	require.Len(t, segs, 2)

	assert.InDelta(t, 1.0, segs[0].Start, 0.0001)
	assert.InDelta(t, 3.5, segs[0].End, 0.0001)
	assert.Equal(t, "Hello there", segs[0].Text)
	assert.Equal(t, "Second line continued", segs[1].Text)
}

func TestParseCompressed(t *testing.T) {
	content := "[00:00:01,000-00:00:03,500] Hello there\n[00:00:03,500-00:00:06,000] Second line"
	segs, err := Parse(content)
	require.NoError(t, err)
	require.Len(t, segs, 2)
	assert.InDelta(t, 3.5, segs[1].Start, 0.0001)
	assert.Equal(t, "Second line", segs[1].Text)
}

func TestParseBOMAndSorting(t *testing.T) {
	content := "\uFEFF[00:00:10,000-00:00:12,000] later\n[00:00:01,000-00:00:02,000] earlier"
	segs, err := Parse(content)
	require.NoError(t, err)
	require.Len(t, segs, 2)
	assert.Equal(t, "earlier", segs[0].Text)
}

func TestParseEmpty(t *testing.T) {
	_, err := Parse("no cues here")
	assert.Error(t, err)
}

func TestCompressIdempotent(t *testing.T) {
	segs, err := Parse(sampleSRT)
	require.NoError(t, err)

	once := Compress(segs)
	reparsed, err := Parse(once)
	require.NoError(t, err)
	twice := Compress(reparsed)
	assert.Equal(t, once, twice)

	// round trip preserves times to the millisecond and cleaned text
	require.Len(t, reparsed, len(segs))
	for i := range segs {
		assert.InDelta(t, segs[i].Start, reparsed[i].Start, 0.0005)
		assert.InDelta(t, segs[i].End, reparsed[i].End, 0.0005)
		assert.Equal(t, segs[i].Text, reparsed[i].Text)
	}
}

func TestTimestampRoundTrip(t *testing.T) {
	tests := []struct {
		ts   string
		want float64
	}{
		{"00:00:00,000", 0},
		{"00:01:05,250", 65.25},
		{"01:02:03,004", 3723.004},
	}
	for _, tt := range tests {
		got, err := ParseTimestamp(tt.ts)
		require.NoError(t, err)
		assert.InDelta(t, tt.want, got, 0.0005)
		assert.Equal(t, tt.ts, FormatTimestamp(got))
	}

	// dot separator accepted on input
	got, err := ParseTimestamp("00:00:01.500")
	require.NoError(t, err)
	assert.InDelta(t, 1.5, got, 0.0005)

	_, err = ParseTimestamp("1:2:3")
	assert.Error(t, err)
}

func TestParseTimeRange(t *testing.T) {
	start, end, err := ParseTimeRange("00:00:05,000-00:00:09,500")
	require.NoError(t, err)
	assert.InDelta(t, 5.0, start, 0.0005)
	assert.InDelta(t, 9.5, end, 0.0005)

	assert.Equal(t, "00:00:05,000-00:00:09,500", FormatTimeRange(5, 9.5))

	_, _, err = ParseTimeRange("garbage")
	assert.Error(t, err)
}
