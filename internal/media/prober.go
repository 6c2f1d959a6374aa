package media

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
)

// DurationScope selects which duration ffprobe reports.
type DurationScope string

const (
	DurationFormat      DurationScope = "format"
	DurationVideoStream DurationScope = "video_stream"
	DurationAudioStream DurationScope = "audio_stream"
)

// VideoStreamInfo describes the first video stream of a file.
type VideoStreamInfo struct {
	Codec    string
	PixFmt   string
	Width    int
	Height   int
	FPSRatio string // raw r_frame_rate, e.g. "24000/1001"
}

// FPS returns the frame rate as a float, 0 when unparseable.
func (v *VideoStreamInfo) FPS() float64 {
	return parseFramerate(v.FPSRatio)
}

// AudioStreamInfo describes the first audio stream of a file.
type AudioStreamInfo struct {
	Codec      string
	SampleRate int
	Channels   int
}

// StreamInfo is the pair of optional stream descriptions.
type StreamInfo struct {
	Video *VideoStreamInfo
	Audio *AudioStreamInfo
}

type probeOutput struct {
	Format  *probeFormat  `json:"format"`
	Streams []probeStream `json:"streams"`
	Frames  []probeFrame  `json:"frames"`
}

type probeFormat struct {
	FormatName string `json:"format_name"`
	Duration   string `json:"duration"`
}

type probeStream struct {
	CodecType  string `json:"codec_type"`
	CodecName  string `json:"codec_name"`
	PixFmt     string `json:"pix_fmt"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	RFrameRate string `json:"r_frame_rate"`
	SampleRate string `json:"sample_rate"`
	Channels   int    `json:"channels"`
	Duration   string `json:"duration"`
}

type probeFrame struct {
	KeyFrame int `json:"key_frame"`
}

// Prober answers read-only questions about media files via ffprobe.
// All probes swallow failures: a broken file yields zero values, not
// errors, so callers branch on presence instead of error plumbing.
type Prober struct {
	binaries *Binaries
	runner   *Runner
}

// NewProber creates a prober.
func NewProber(binaries *Binaries, runner *Runner) *Prober {
	return &Prober{binaries: binaries, runner: runner}
}

func (p *Prober) run(ctx context.Context, args ...string) *probeOutput {
	ffprobe, err := p.binaries.FFprobe()
	if err != nil {
		return nil
	}

	var out strings.Builder
	spec := Spec{
		Command:    append([]string{ffprobe, "-v", "quiet", "-print_format", "json"}, args...),
		StdoutMode: LineStream,
		OnLine: func(line string) {
			out.WriteString(line)
			out.WriteByte('\n')
		},
	}
	res, err := p.runner.Run(ctx, spec)
	if err != nil || res.ExitCode != 0 {
		return nil
	}

	var parsed probeOutput
	if err := json.Unmarshal([]byte(out.String()), &parsed); err != nil {
		return nil
	}
	return &parsed
}

// Duration probes the duration in seconds for the requested scope.
// Returns ok=false when the file or the requested stream is missing.
func (p *Prober) Duration(ctx context.Context, path string, scope DurationScope) (float64, bool) {
	switch scope {
	case DurationVideoStream, DurationAudioStream:
		sel := "v:0"
		if scope == DurationAudioStream {
			sel = "a:0"
		}
		out := p.run(ctx, "-select_streams", sel, "-show_entries", "stream=duration", path)
		if out == nil || len(out.Streams) == 0 {
			return 0, false
		}
		return parsePositiveFloat(out.Streams[0].Duration)
	default:
		out := p.run(ctx, "-show_entries", "format=duration", path)
		if out == nil || out.Format == nil {
			return 0, false
		}
		return parsePositiveFloat(out.Format.Duration)
	}
}

// StreamInfo probes the first video and audio streams.
func (p *Prober) StreamInfo(ctx context.Context, path string) StreamInfo {
	out := p.run(ctx, "-show_streams", path)
	if out == nil {
		return StreamInfo{}
	}

	var info StreamInfo
	for i := range out.Streams {
		s := &out.Streams[i]
		switch s.CodecType {
		case "video":
			if info.Video == nil {
				info.Video = &VideoStreamInfo{
					Codec:    s.CodecName,
					PixFmt:   s.PixFmt,
					Width:    s.Width,
					Height:   s.Height,
					FPSRatio: s.RFrameRate,
				}
			}
		case "audio":
			if info.Audio == nil {
				sr, _ := strconv.Atoi(s.SampleRate)
				info.Audio = &AudioStreamInfo{
					Codec:      s.CodecName,
					SampleRate: sr,
					Channels:   s.Channels,
				}
			}
		}
	}
	return info
}

// FormatName probes the container format name ("mov,mp4,m4a,..." etc).
func (p *Prober) FormatName(ctx context.Context, path string) (string, bool) {
	out := p.run(ctx, "-show_entries", "format=format_name", path)
	if out == nil || out.Format == nil || out.Format.FormatName == "" {
		return "", false
	}
	return out.Format.FormatName, true
}

// FirstFrameIsKeyframe reports whether decoding can start cleanly at
// the first video frame. Unprobeable files report false.
func (p *Prober) FirstFrameIsKeyframe(ctx context.Context, path string) bool {
	out := p.run(ctx, "-select_streams", "v:0", "-show_frames", "-read_intervals", "%+#1",
		"-show_entries", "frame=key_frame", path)
	if out == nil || len(out.Frames) == 0 {
		return false
	}
	return out.Frames[0].KeyFrame == 1
}

// HasVideoStream reports whether the file contains a video stream.
func (p *Prober) HasVideoStream(ctx context.Context, path string) bool {
	return p.StreamInfo(ctx, path).Video != nil
}

func parsePositiveFloat(s string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || f <= 0 {
		return 0, false
	}
	return f, true
}

// parseFramerate converts an ffprobe rational like "30000/1001" to a
// float frames-per-second value.
func parseFramerate(ratio string) float64 {
	if ratio == "" || ratio == "0/0" {
		return 0
	}
	parts := strings.Split(ratio, "/")
	if len(parts) == 1 {
		f, err := strconv.ParseFloat(parts[0], 64)
		if err != nil {
			return 0
		}
		return f
	}
	if len(parts) != 2 {
		return 0
	}
	num, err1 := strconv.ParseFloat(parts[0], 64)
	den, err2 := strconv.ParseFloat(parts[1], 64)
	if err1 != nil || err2 != nil || den == 0 {
		return 0
	}
	return num / den
}
