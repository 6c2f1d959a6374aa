package media

import (
	"context"
	"log/slog"
	"strings"
	"sync"
)

// Encoder is one usable H.264 encoder with its tuned arguments.
type Encoder struct {
	Name string
	Args []string // codec-specific quality flags, after -c:v <Name>
}

// CodecArgs returns the full -c:v argument list for this encoder.
func (e Encoder) CodecArgs() []string {
	return append([]string{"-c:v", e.Name}, e.Args...)
}

// IsHardware reports whether this encoder offloads to a GPU.
func (e Encoder) IsHardware() bool {
	return e.Name != "libx264"
}

// Known encoders in priority order. libx264 leads: the software path
// succeeds on every install, so trying it first maximizes the success
// rate of the first attempt.
var encoderPriority = []Encoder{
	{Name: "libx264", Args: []string{"-preset", "superfast", "-crf", "18"}},
	{Name: "h264_nvenc", Args: []string{"-preset", "p3", "-rc:v", "vbr_hq", "-cq:v", "19"}},
	{Name: "h264_qsv", Args: nil},
	{Name: "h264_amf", Args: nil},
}

// EncoderDetector discovers which encoders the local ffmpeg build
// offers. Detection runs once per process and is cached.
type EncoderDetector struct {
	binaries *Binaries
	runner   *Runner
	logger   *slog.Logger

	once     sync.Once
	detected []Encoder
}

// NewEncoderDetector creates a detector.
func NewEncoderDetector(binaries *Binaries, runner *Runner, logger *slog.Logger) *EncoderDetector {
	return &EncoderDetector{binaries: binaries, runner: runner, logger: logger}
}

// Available returns the usable encoders in priority order. When
// detection fails entirely it still returns libx264 so the pipeline
// has a path forward (ffmpeg itself will report the real error).
func (d *EncoderDetector) Available(ctx context.Context) []Encoder {
	d.once.Do(func() { d.detect(ctx) })
	return d.detected
}

func (d *EncoderDetector) detect(ctx context.Context) {
	listed := d.listEncoders(ctx)
	accels := d.listHWAccels(ctx)

	for _, enc := range encoderPriority {
		switch enc.Name {
		case "libx264":
			// always offered; real ffmpeg builds without it are rare
			// and the attempt loop handles the failure anyway
			d.detected = append(d.detected, enc)
		case "h264_nvenc":
			if listed[enc.Name] && accels["cuda"] {
				d.detected = append(d.detected, enc)
			}
		default:
			if listed[enc.Name] {
				d.detected = append(d.detected, enc)
			}
		}
	}

	names := make([]string, len(d.detected))
	for i, e := range d.detected {
		names[i] = e.Name
	}
	d.logger.Info("video encoders detected", "encoders", names)
}

func (d *EncoderDetector) listEncoders(ctx context.Context) map[string]bool {
	out := map[string]bool{}
	for _, line := range d.capture(ctx, "-encoders") {
		// format: " V..... libx264   H.264 / AVC ..."
		fields := strings.Fields(line)
		if len(fields) >= 2 && strings.HasPrefix(fields[0], "V") {
			out[fields[1]] = true
		}
	}
	return out
}

func (d *EncoderDetector) listHWAccels(ctx context.Context) map[string]bool {
	out := map[string]bool{}
	for _, line := range d.capture(ctx, "-hwaccels") {
		name := strings.TrimSpace(line)
		if name != "" && !strings.HasPrefix(name, "Hardware") {
			out[name] = true
		}
	}
	return out
}

func (d *EncoderDetector) capture(ctx context.Context, flag string) []string {
	ffmpeg, err := d.binaries.FFmpeg()
	if err != nil {
		return nil
	}
	var lines []string
	spec := Spec{
		Command:    []string{ffmpeg, "-hide_banner", flag},
		StdoutMode: LineStream,
		OnLine:     func(line string) { lines = append(lines, line) },
	}
	if _, err := d.runner.Run(ctx, spec); err != nil {
		return nil
	}
	return lines
}
