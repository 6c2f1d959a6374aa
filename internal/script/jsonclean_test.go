package script

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxcut/voxcut/internal/models"
)

func TestCleanAndParsePlainJSON(t *testing.T) {
	raw := `{"items": [{"_id": 1, "timestamp": "00:00:01,000-00:00:05,000", "picture": "street", "narration": "He runs", "OST": 0}]}`
	list, err := CleanAndParse(raw)
	require.NoError(t, err)
	require.Len(t, list.Items, 1)
	assert.InDelta(t, 1.0, list.Items[0].Start(), 0.0005)
	assert.InDelta(t, 5.0, list.Items[0].End(), 0.0005)
}

func TestCleanAndParseCodeFence(t *testing.T) {
	raw := "Here is the script:\n```json\n{\"items\": [{\"_id\": 1, \"timestamp\": \"00:00:01,000-00:00:05,000\", \"picture\": \"p\", \"narration\": \"n\", \"OST\": 1},]}\n```\nHope this helps!"
	list, err := CleanAndParse(raw)
	require.NoError(t, err)
	require.Len(t, list.Items, 1)
	assert.Equal(t, 1, list.Items[0].OST)
}

func TestCleanAndParseTrailingCommas(t *testing.T) {
	raw := `{"items": [{"_id": 1, "timestamp": "00:00:01,000-00:00:02,000", "picture": "p", "narration": "n", "OST": 0,},]}`
	_, err := CleanAndParse(raw)
	assert.NoError(t, err)
}

func TestCleanAndParseSmartQuotes(t *testing.T) {
	raw := `{“items”: [{“_id”: 1, “timestamp”: “00:00:01,000-00:00:02,000”, “picture”: “p”, “narration”: “n”, “OST”: 0}]}`
	list, err := CleanAndParse(raw)
	require.NoError(t, err)
	assert.Len(t, list.Items, 1)
}

func TestCleanAndParseDropsInvalidItems(t *testing.T) {
	raw := `{"items": [
		{"_id": 1, "timestamp": "00:00:01,000-00:00:05,000", "picture": "p", "narration": "good", "OST": 0},
		{"_id": 2, "timestamp": "garbage", "picture": "p", "narration": "bad time", "OST": 0},
		{"_id": 3, "timestamp": "00:00:06,000-00:00:05,000", "picture": "p", "narration": "inverted", "OST": 0},
		{"_id": 4, "timestamp": "00:00:07,000-00:00:09,000", "picture": "p", "narration": "bad ost", "OST": 5}
	]}`
	list, err := CleanAndParse(raw)
	require.NoError(t, err)
	require.Len(t, list.Items, 1)
	assert.Equal(t, "good", list.Items[0].Narration)
}

func TestCleanAndParseFailures(t *testing.T) {
	_, err := CleanAndParse("not json at all")
	assert.ErrorIs(t, err, models.ErrProviderUnavailable)

	_, err = CleanAndParse(`{"something": []}`)
	assert.ErrorIs(t, err, models.ErrProviderUnavailable)

	_, err = CleanAndParse(`{"items": []}`)
	assert.ErrorIs(t, err, models.ErrProviderUnavailable)
}
