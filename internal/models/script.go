package models

import (
	"sort"
	"strings"
	"time"
)

// Sentinel narration prefixes marking a segment that keeps the source
// audio even when its OST flag is 0.
const (
	OriginalFootageSentinelZH = "播放原片"
	OriginalFootageSentinelEN = "play original footage"
)

// Segment is one narration unit of a script. Times are seconds.
type Segment struct {
	ID        string  `json:"id"`
	StartTime float64 `json:"start_time"`
	EndTime   float64 `json:"end_time"`
	Text      string  `json:"text"`
	Subtitle  string  `json:"subtitle,omitempty"`
	OST       int     `json:"OST"`
}

// Duration returns the segment length in seconds.
func (s *Segment) Duration() float64 {
	return s.EndTime - s.StartTime
}

// IsOriginal reports whether the segment keeps the source audio.
// True when OST==1 or the narration begins with a sentinel literal.
func (s *Segment) IsOriginal() bool {
	if s.OST == 1 {
		return true
	}
	text := strings.TrimSpace(s.Text)
	if strings.HasPrefix(text, OriginalFootageSentinelZH) {
		return true
	}
	return strings.HasPrefix(strings.ToLower(text), OriginalFootageSentinelEN)
}

// ScriptMetadata carries script bookkeeping fields.
type ScriptMetadata struct {
	CreatedAt string `json:"created_at"`
}

// Script is the structured narration for a project.
type Script struct {
	Version       string         `json:"version"`
	TotalDuration float64        `json:"total_duration"`
	Segments      []Segment      `json:"segments"`
	Metadata      ScriptMetadata `json:"metadata"`
}

// NewScript builds a script from segments, stamping version and
// metadata and computing the total duration.
func NewScript(segments []Segment) *Script {
	now := time.Now()
	var total float64
	for i := range segments {
		total += segments[i].Duration()
	}
	return &Script{
		Version:       now.Format("20060102150405"),
		TotalDuration: total,
		Segments:      segments,
		Metadata:      ScriptMetadata{CreatedAt: now.Format(time.RFC3339)},
	}
}

// SortSegments orders segments by start time in place.
func (s *Script) SortSegments() {
	sort.SliceStable(s.Segments, func(i, j int) bool {
		return s.Segments[i].StartTime < s.Segments[j].StartTime
	})
}

// endOvershootClamp is how far a segment's end_time may overshoot the
// probed video duration before the script is rejected. Model output
// regularly lands a few frames past the container duration.
const endOvershootClamp = 0.5

// Validate checks segment ordering and window sanity against the
// source video duration, clamping end times that overshoot it by at
// most endOvershootClamp. videoDuration <= 0 skips the upper bound.
func (s *Script) Validate(videoDuration float64) error {
	if len(s.Segments) == 0 {
		return InputInvalid("script has no segments")
	}
	prev := -1.0
	for i := range s.Segments {
		seg := &s.Segments[i]
		if seg.EndTime <= seg.StartTime {
			return InputInvalid("segment %s: end_time %.3f <= start_time %.3f", seg.ID, seg.EndTime, seg.StartTime)
		}
		if seg.StartTime < prev {
			return InputInvalid("segment %s: start_time %.3f out of order", seg.ID, seg.StartTime)
		}
		if videoDuration > 0 && seg.EndTime > videoDuration {
			if seg.EndTime > videoDuration+endOvershootClamp {
				return InputInvalid("segment %s: end_time %.3f exceeds video duration %.3f", seg.ID, seg.EndTime, videoDuration)
			}
			seg.EndTime = videoDuration
			if seg.EndTime <= seg.StartTime {
				return InputInvalid("segment %s: window collapsed clamping to video duration %.3f", seg.ID, videoDuration)
			}
		}
		prev = seg.StartTime
	}
	return nil
}

// NarratedSegments returns the segments whose audio is replaced.
func (s *Script) NarratedSegments() []*Segment {
	var out []*Segment
	for i := range s.Segments {
		if !s.Segments[i].IsOriginal() {
			out = append(out, &s.Segments[i])
		}
	}
	return out
}
