package script

import (
	"math"
	"regexp"
	"strconv"

	"github.com/voxcut/voxcut/internal/models"
	"github.com/voxcut/voxcut/internal/subtitle"
)

// Chunking policy constants.
const (
	// itemsPerCall sizes the number of parallel LM calls from the
	// requested item count.
	itemsPerCall = 20
	// maxSubsPerCall is the hard subtitle budget of one LM call.
	maxSubsPerCall = 220
	// softFactor derates the budget so chunks stay under the model's
	// comfortable context use.
	softFactor = 0.85
)

func softCap() int {
	return int(float64(maxSubsPerCall) * softFactor)
}

// PlanItem is one contiguous subtitle slice assigned to one LM call.
type PlanItem struct {
	Idx         int
	StartS      float64
	EndS        float64
	Subs        []subtitle.Segment
	TargetItems int
}

var lengthRangeRe = regexp.MustCompile(`(\d+)\s*[～~\-]\s*(\d+)`)
var lengthSingleRe = regexp.MustCompile(`(\d+)`)

// ParseLengthPreset interprets a length setting like "20～30条" as an
// item count range. A bare number n becomes n ±20%.
func ParseLengthPreset(s string) (minItems, maxItems int, err error) {
	if m := lengthRangeRe.FindStringSubmatch(s); m != nil {
		lo, _ := strconv.Atoi(m[1])
		hi, _ := strconv.Atoi(m[2])
		if lo >= 1 && hi >= lo {
			return lo, hi, nil
		}
	}
	if m := lengthSingleRe.FindStringSubmatch(s); m != nil {
		n, _ := strconv.Atoi(m[1])
		if n >= 1 {
			lo := int(math.Round(float64(n) * 0.8))
			hi := int(math.Round(float64(n) * 1.2))
			if lo < 1 {
				lo = 1
			}
			return lo, hi, nil
		}
	}
	return 0, 0, models.InputInvalid("unparseable script length %q", s)
}

// PlanChunks slices the subtitles into contiguous chunks for parallel
// generation and allocates the per-chunk item targets.
func PlanChunks(subs []subtitle.Segment, targetMax int) []PlanItem {
	if len(subs) == 0 {
		return nil
	}

	desiredCalls := ceilDiv(targetMax, itemsPerCall)
	minCalls := ceilDiv(len(subs), softCap())
	calls := max(1, max(desiredCalls, minCalls))

	slices := splitEven(subs, calls)

	// Oversized slices split recursively at their midpoint until
	// every chunk fits the soft cap.
	var final [][]subtitle.Segment
	for _, sl := range slices {
		final = append(final, splitOversized(sl)...)
	}

	targets := allocateTargets(targetMax, len(final))

	plan := make([]PlanItem, len(final))
	for i, sl := range final {
		plan[i] = PlanItem{
			Idx:         i,
			StartS:      sl[0].Start,
			EndS:        sl[len(sl)-1].End,
			Subs:        sl,
			TargetItems: targets[i],
		}
	}
	return plan
}

func splitEven(subs []subtitle.Segment, n int) [][]subtitle.Segment {
	if n > len(subs) {
		n = len(subs)
	}
	out := make([][]subtitle.Segment, 0, n)
	size := len(subs) / n
	rem := len(subs) % n
	pos := 0
	for i := 0; i < n; i++ {
		take := size
		if i < rem {
			take++
		}
		out = append(out, subs[pos:pos+take])
		pos += take
	}
	return out
}

func splitOversized(sl []subtitle.Segment) [][]subtitle.Segment {
	if len(sl) <= softCap() {
		return [][]subtitle.Segment{sl}
	}
	mid := len(sl) / 2
	return append(splitOversized(sl[:mid]), splitOversized(sl[mid:])...)
}

// allocateTargets distributes the requested item count over chunks as
// evenly as possible, remainder to the first chunks. When the target
// does not cover every chunk, each still gets one item.
func allocateTargets(target, chunks int) []int {
	out := make([]int, chunks)
	if target <= chunks {
		for i := range out {
			out[i] = 1
		}
		return out
	}
	base := target / chunks
	rem := target % chunks
	for i := range out {
		out[i] = base
		if i < rem {
			out[i]++
		}
	}
	return out
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
