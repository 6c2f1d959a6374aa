package script

import "sort"

// Merge policy constants.
const (
	// overlapFraction of the shorter item, plus overlapSlack seconds,
	// is the overlap beyond which the shorter of two items is dropped.
	overlapFraction = 0.4
	overlapSlack    = 0.1
	// minItemDuration filters out items too short to narrate.
	minItemDuration = 0.8
)

// MergeItems combines the per-chunk item lists: sort by start time,
// resolve pairwise overlaps by dropping the shorter item, remove
// items under the minimum duration and renumber ids from 1.
func MergeItems(lists ...[]Item) []Item {
	var items []Item
	for _, l := range lists {
		items = append(items, l...)
	}
	if len(items) == 0 {
		return nil
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].start < items[j].start
	})

	var kept []Item
	for _, next := range items {
		if len(kept) == 0 {
			kept = append(kept, next)
			continue
		}
		last := &kept[len(kept)-1]
		overlap := last.end - next.start
		if overlap <= 0 {
			kept = append(kept, next)
			continue
		}
		threshold := overlapFraction*minFloat(last.DurationS(), next.DurationS()) + overlapSlack
		if overlap > threshold {
			// drop the shorter of the pair
			if next.DurationS() > last.DurationS() {
				kept[len(kept)-1] = next
			}
			continue
		}
		kept = append(kept, next)
	}

	out := kept[:0]
	for _, it := range kept {
		if it.DurationS() >= minItemDuration {
			out = append(out, it)
		}
	}

	for i := range out {
		out[i].ID = i + 1
	}
	return out
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
