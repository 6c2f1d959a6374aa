// Package subtitle parses SRT and the compressed bracket dialect used
// when feeding subtitles to the language model, and converts between
// the HH:MM:SS,mmm timestamp form and seconds.
package subtitle

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/voxcut/voxcut/internal/models"
)

// Segment is one subtitle cue. Times are seconds.
type Segment struct {
	Start float64
	End   float64
	Text  string
}

var (
	timeRangeRe  = regexp.MustCompile(`(\d{2}:\d{2}:\d{2}[,.]\d{3})\s*-->\s*(\d{2}:\d{2}:\d{2}[,.]\d{3})`)
	compressedRe = regexp.MustCompile(`^\[(\d{2}:\d{2}:\d{2}[,.]\d{3})-(\d{2}:\d{2}:\d{2}[,.]\d{3})\]\s*(.*)$`)
	htmlTagRe    = regexp.MustCompile(`<[^>]*>`)
	spaceRe      = regexp.MustCompile(`\s+`)
)

// ParseTimestamp converts HH:MM:SS,mmm (or with a dot) to seconds.
func ParseTimestamp(ts string) (float64, error) {
	ts = strings.TrimSpace(strings.ReplaceAll(ts, ".", ","))
	parts := strings.Split(ts, ",")
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid timestamp %q", ts)
	}
	hms := strings.Split(parts[0], ":")
	if len(hms) != 3 {
		return 0, fmt.Errorf("invalid timestamp %q", ts)
	}
	h, err1 := strconv.Atoi(hms[0])
	m, err2 := strconv.Atoi(hms[1])
	s, err3 := strconv.Atoi(hms[2])
	ms, err4 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
		return 0, fmt.Errorf("invalid timestamp %q", ts)
	}
	return float64(h)*3600 + float64(m)*60 + float64(s) + float64(ms)/1000, nil
}

// FormatTimestamp converts seconds to HH:MM:SS,mmm.
func FormatTimestamp(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	totalMs := int64(math.Round(seconds * 1000))
	h := totalMs / 3600000
	m := (totalMs % 3600000) / 60000
	s := (totalMs % 60000) / 1000
	ms := totalMs % 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}

// FormatSRT renders cues as a standard SRT document with 1-based
// sequence numbers.
func FormatSRT(segments []Segment) string {
	var b strings.Builder
	for i, seg := range segments {
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n\n",
			i+1, FormatTimestamp(seg.Start), FormatTimestamp(seg.End), seg.Text)
	}
	return b.String()
}

// ParseTimeRange parses "HH:MM:SS,mmm-HH:MM:SS,mmm".
func ParseTimeRange(r string) (start, end float64, err error) {
	parts := strings.SplitN(strings.TrimSpace(r), "-", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid time range %q", r)
	}
	if start, err = ParseTimestamp(parts[0]); err != nil {
		return 0, 0, err
	}
	if end, err = ParseTimestamp(parts[1]); err != nil {
		return 0, 0, err
	}
	return start, end, nil
}

// FormatTimeRange renders "HH:MM:SS,mmm-HH:MM:SS,mmm".
func FormatTimeRange(start, end float64) string {
	return FormatTimestamp(start) + "-" + FormatTimestamp(end)
}

// Parse auto-detects standard SRT versus the compressed bracket form
// and returns cues sorted by start time. The BOM is stripped, HTML
// tags removed and whitespace collapsed.
func Parse(content string) ([]Segment, error) {
	content = strings.TrimPrefix(content, "\uFEFF")
	content = strings.ReplaceAll(content, "\r\n", "\n")

	var segments []Segment
	if strings.Contains(content, "-->") {
		segments = parseSRT(content)
	} else {
		segments = parseCompressed(content)
	}
	if len(segments) == 0 {
		return nil, models.InputInvalid("no subtitle cues recognized")
	}

	sort.SliceStable(segments, func(i, j int) bool {
		return segments[i].Start < segments[j].Start
	})
	return segments, nil
}

func parseSRT(content string) []Segment {
	var segments []Segment
	blocks := strings.Split(content, "\n\n")
	for _, block := range blocks {
		lines := strings.Split(strings.TrimSpace(block), "\n")
		var start, end float64
		var textLines []string
		found := false
		for _, line := range lines {
			if m := timeRangeRe.FindStringSubmatch(line); m != nil {
				s1, err1 := ParseTimestamp(m[1])
				s2, err2 := ParseTimestamp(m[2])
				if err1 == nil && err2 == nil {
					start, end = s1, s2
					found = true
				}
				continue
			}
			if found {
				textLines = append(textLines, line)
			}
		}
		if !found {
			continue
		}
		text := cleanText(strings.Join(textLines, " "))
		if text == "" || end <= start {
			continue
		}
		segments = append(segments, Segment{Start: start, End: end, Text: text})
	}
	return segments
}

func parseCompressed(content string) []Segment {
	var segments []Segment
	for _, line := range strings.Split(content, "\n") {
		m := compressedRe.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		start, err1 := ParseTimestamp(m[1])
		end, err2 := ParseTimestamp(m[2])
		if err1 != nil || err2 != nil || end <= start {
			continue
		}
		text := cleanText(m[3])
		if text == "" {
			continue
		}
		segments = append(segments, Segment{Start: start, End: end, Text: text})
	}
	return segments
}

// Compress renders segments in the compressed bracket form, one cue
// per line. Compressing already-compressed content is a fixed point.
func Compress(segments []Segment) string {
	var b strings.Builder
	for i, seg := range segments {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "[%s-%s] %s",
			FormatTimestamp(seg.Start), FormatTimestamp(seg.End), cleanText(seg.Text))
	}
	return b.String()
}

func cleanText(s string) string {
	s = htmlTagRe.ReplaceAllString(s, "")
	s = spaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}
