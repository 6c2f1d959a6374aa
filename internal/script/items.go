// Package script assembles narration scripts: subtitle chunk
// planning, parallel per-chunk generation through the language model,
// time-based merging and the refine pass.
package script

import (
	"strconv"

	"github.com/voxcut/voxcut/internal/models"
	"github.com/voxcut/voxcut/internal/subtitle"
)

// Item is one narration unit in the exchange format used with the
// language model. Timestamp is "HH:MM:SS,mmm-HH:MM:SS,mmm".
type Item struct {
	ID        int    `json:"_id"`
	Timestamp string `json:"timestamp"`
	Picture   string `json:"picture"`
	Narration string `json:"narration"`
	OST       int    `json:"OST"`

	start float64
	end   float64
}

// Start returns the parsed start time in seconds.
func (i *Item) Start() float64 { return i.start }

// End returns the parsed end time in seconds.
func (i *Item) End() float64 { return i.end }

// DurationS returns the item length in seconds.
func (i *Item) DurationS() float64 { return i.end - i.start }

// ItemList is the validated shape every LM response is reduced to.
// Nothing downstream of the JSON cleaner sees untyped maps.
type ItemList struct {
	Items []Item `json:"items"`
}

// ToSegments converts items to script segments, renumbering ids from
// 1 in slice order.
func ToSegments(items []Item) []models.Segment {
	segments := make([]models.Segment, 0, len(items))
	for idx, it := range items {
		segments = append(segments, models.Segment{
			ID:        strconv.Itoa(idx + 1),
			StartTime: it.start,
			EndTime:   it.end,
			Text:      it.Narration,
			Subtitle:  it.Picture,
			OST:       it.OST,
		})
	}
	return segments
}

// parseItemTimes fills the parsed time fields, reporting false when
// the timestamp is malformed or inverted.
func parseItemTimes(it *Item) bool {
	start, end, err := subtitle.ParseTimeRange(it.Timestamp)
	if err != nil || end <= start {
		return false
	}
	it.start, it.end = start, end
	return true
}
