package script

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxcut/voxcut/internal/subtitle"
)

func item(id int, start, end float64, narration string) Item {
	return Item{
		ID:        id,
		Timestamp: subtitle.FormatTimeRange(start, end),
		Narration: narration,
		start:     start,
		end:       end,
	}
}

func TestMergeDropsHeavyOverlap(t *testing.T) {
	// B overlaps A by 4s; the shorter (B) is dropped
	a := item(1, 0, 10, "a")
	b := item(2, 6, 11, "b")
	merged := MergeItems([]Item{a, b})
	require.Len(t, merged, 1)
	assert.Equal(t, "a", merged[0].Narration)
}

func TestMergeKeepsLongerOfPair(t *testing.T) {
	// first item is the shorter one; the later, longer item survives
	a := item(1, 0, 3, "short")
	b := item(2, 1, 9, "long")
	merged := MergeItems([]Item{a, b})
	require.Len(t, merged, 1)
	assert.Equal(t, "long", merged[0].Narration)
}

func TestMergeToleratesSmallOverlap(t *testing.T) {
	// 0.5s overlap on 5s/5s items: threshold is 0.4*5+0.1 = 2.1
	a := item(1, 0, 5, "a")
	b := item(2, 4.5, 9.5, "b")
	merged := MergeItems([]Item{a, b})
	assert.Len(t, merged, 2)
}

func TestMergeDropsShortItems(t *testing.T) {
	merged := MergeItems([]Item{
		item(1, 0, 0.5, "blink"),
		item(2, 1, 5, "keeper"),
	})
	require.Len(t, merged, 1)
	assert.Equal(t, "keeper", merged[0].Narration)
}

func TestMergeInvariants(t *testing.T) {
	lists := [][]Item{
		{item(1, 0, 4, "c1-a"), item(2, 5, 9, "c1-b")},
		{item(1, 8.5, 15, "c2-a"), item(2, 16, 16.5, "c2-short")},
		{item(1, 3.5, 12, "c3-wide")},
	}
	merged := MergeItems(lists...)
	require.NotEmpty(t, merged)

	for i, it := range merged {
		// ids contiguous from 1
		assert.Equal(t, i+1, it.ID)
		// no surviving item under the minimum duration
		assert.GreaterOrEqual(t, it.DurationS(), minItemDuration)
	}
	// surviving overlaps stay within the tolerated threshold
	for i := 1; i < len(merged); i++ {
		a, b := merged[i-1], merged[i]
		assert.LessOrEqual(t, a.Start(), b.Start())
		overlap := a.End() - b.Start()
		if overlap > 0 {
			threshold := overlapFraction*minFloat(a.DurationS(), b.DurationS()) + overlapSlack
			assert.LessOrEqual(t, overlap, threshold+1e-9)
		}
	}
}

func TestMergeEmpty(t *testing.T) {
	assert.Nil(t, MergeItems())
	assert.Nil(t, MergeItems([]Item{}))
}
