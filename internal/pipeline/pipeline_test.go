package pipeline

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxcut/voxcut/internal/media"
)

func TestAlignWindowExtendsForward(t *testing.T) {
	// narration 7s over a 5s clip at [10,15) in a 50s source: room
	// ahead, so the window grows forward
	al := AlignWindow(7.0, 5.0, 50.0, 10.0, 15.0)
	assert.True(t, al.Changed)
	assert.InDelta(t, 10.0, al.NewStart, 1e-9)
	assert.InDelta(t, 7.0, al.NewDuration, 1e-9)
}

func TestAlignWindowShiftsStartBack(t *testing.T) {
	// clip ends 1s before the source end but needs 3s more, so the
	// start moves back by the shortfall
	al := AlignWindow(8.0, 5.0, 16.0, 10.0, 15.0)
	assert.True(t, al.Changed)
	assert.InDelta(t, 8.0, al.NewStart, 1e-9)
	assert.InDelta(t, 8.0, al.NewDuration, 1e-9)
}

func TestAlignWindowClampsStartAtZero(t *testing.T) {
	// shortfall larger than the available lead-in clamps to 0 and the
	// window covers everything that exists
	al := AlignWindow(20.0, 5.0, 12.0, 2.0, 7.0)
	assert.True(t, al.Changed)
	assert.InDelta(t, 0.0, al.NewStart, 1e-9)
	assert.InDelta(t, 12.0, al.NewDuration, 1e-9)
}

func TestAlignWindowShrinksToAudio(t *testing.T) {
	al := AlignWindow(3.0, 5.0, 50.0, 10.0, 15.0)
	assert.True(t, al.Changed)
	assert.InDelta(t, 10.0, al.NewStart, 1e-9)
	assert.InDelta(t, 3.0, al.NewDuration, 1e-9)
}

func TestAlignWindowWithinToleranceUnchanged(t *testing.T) {
	al := AlignWindow(5.03, 5.0, 50.0, 10.0, 15.0)
	assert.False(t, al.Changed)
	assert.InDelta(t, 10.0, al.NewStart, 1e-9)
	assert.InDelta(t, 5.0, al.NewDuration, 1e-9)
}

func TestAlignWindowIdempotent(t *testing.T) {
	first := AlignWindow(7.0, 5.0, 50.0, 10.0, 15.0)
	second := AlignWindow(7.0, first.NewDuration, 50.0, first.NewStart, first.NewStart+first.NewDuration)
	assert.False(t, second.Changed)
	assert.Equal(t, first.NewStart, second.NewStart)
	assert.Equal(t, first.NewDuration, second.NewDuration)
}

func h264Clip(path string, fpsRatio string, withAudio bool) clipInfo {
	info := clipInfo{
		path:   path,
		format: "mov,mp4,m4a,3gp,3g2,mj2",
		vdur:   5.0,
		video: &media.VideoStreamInfo{
			Codec: "h264", PixFmt: "yuv420p", Width: 1920, Height: 1080, FPSRatio: fpsRatio,
		},
	}
	if withAudio {
		info.audio = &media.AudioStreamInfo{Codec: "aac", SampleRate: 48000, Channels: 2}
	}
	return info
}

func TestSelectTierDemuxerForUniformClips(t *testing.T) {
	infos := []clipInfo{
		h264Clip("a.mp4", "30/1", true),
		h264Clip("b.mp4", "30/1", true),
		h264Clip("c.mp4", "30/1", true),
	}
	assert.Equal(t, tierDemuxer, selectTier(infos))
}

func TestSelectTierTSOnFrameRateMismatch(t *testing.T) {
	infos := []clipInfo{
		h264Clip("a.mp4", "30/1", true),
		h264Clip("b.mp4", "30000/1001", true),
	}
	assert.Equal(t, tierTS, selectTier(infos))
}

func TestSelectTierTSOnAudioPresenceMismatch(t *testing.T) {
	infos := []clipInfo{
		h264Clip("a.mp4", "30/1", true),
		h264Clip("b.mp4", "30/1", false),
	}
	assert.Equal(t, tierTS, selectTier(infos))
}

func TestSelectTierFilterOnCodecMismatch(t *testing.T) {
	vp9 := h264Clip("b.webm", "30/1", true)
	vp9.video.Codec = "vp9"
	vp9.format = "matroska,webm"
	infos := []clipInfo{h264Clip("a.mp4", "30/1", true), vp9}
	assert.Equal(t, tierFilter, selectTier(infos))
}

func TestSelectTierFilterOnNonAACAudio(t *testing.T) {
	mp3 := h264Clip("b.mp4", "30/1", true)
	mp3.audio.Codec = "mp3"
	infos := []clipInfo{h264Clip("a.mp4", "30/1", true), mp3}
	assert.Equal(t, tierFilter, selectTier(infos))
}

func TestSelectTierToleratesTinyFrameRateDrift(t *testing.T) {
	a := h264Clip("a.mp4", "30/1", true)
	b := h264Clip("b.mp4", "30/1", true)
	b.video.FPSRatio = "30000/1000"
	assert.Equal(t, tierDemuxer, selectTier([]clipInfo{a, b}))
}

func TestDemuxerCompatibleRejectsDimensionMismatch(t *testing.T) {
	a := h264Clip("a.mp4", "30/1", true)
	b := h264Clip("b.mp4", "30/1", true)
	b.video.Height = 720
	assert.False(t, demuxerCompatible([]clipInfo{a, b}))
}

func TestTSCompatibleAcceptsHEVC(t *testing.T) {
	a := h264Clip("a.mp4", "30/1", true)
	b := h264Clip("b.mp4", "25/1", true)
	b.video.Codec = "hevc"
	assert.True(t, tsCompatible([]clipInfo{a, b}))
}

func TestDowngradeTierUsesTSWhenCompatible(t *testing.T) {
	infos := []clipInfo{h264Clip("a.mp4", "30/1", true), h264Clip("b.mp4", "30/1", true)}
	assert.Equal(t, tierTS, downgradeTier(infos))
}

// Uniform vp9 clips select the demuxer tier, but a failed demuxer pass
// must skip the TS rewrap entirely.
func TestDowngradeTierSkipsTSForIncompatibleClips(t *testing.T) {
	a := h264Clip("a.webm", "30/1", true)
	a.video.Codec = "vp9"
	a.format = "matroska,webm"
	b := h264Clip("b.webm", "30/1", true)
	b.video.Codec = "vp9"
	b.format = "matroska,webm"

	require.Equal(t, tierDemuxer, selectTier([]clipInfo{a, b}))
	assert.Equal(t, tierFilter, downgradeTier([]clipInfo{a, b}))
}

func testPipeline() *Pipeline {
	return &Pipeline{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

func TestBuildSwapArgsEqualDurationsCopiesVideo(t *testing.T) {
	p := testPipeline()
	enc := media.Encoder{Name: "libx264", Args: []string{"-preset", "superfast", "-crf", "18"}}
	args := p.buildSwapArgs("ffmpeg", "v.mp4", "a.mp3", "out.mp4", 5.0, 5.03, enc)

	joined := strings.Join(args, " ")
	assert.Contains(t, joined, "-c:v copy")
	assert.Contains(t, joined, "-shortest")
	assert.NotContains(t, joined, "filter_complex")
}

func TestBuildSwapArgsLongerAudioPadsVideo(t *testing.T) {
	p := testPipeline()
	enc := media.Encoder{Name: "libx264"}
	args := p.buildSwapArgs("ffmpeg", "v.mp4", "a.mp3", "out.mp4", 5.0, 7.5, enc)

	joined := strings.Join(args, " ")
	assert.Contains(t, joined, "tpad=stop_mode=clone:stop_duration=2.500")
	assert.Contains(t, joined, "-c:v libx264")
	assert.NotContains(t, joined, "-c:v copy")
}

func TestBuildSwapArgsShorterAudioTrimsVideo(t *testing.T) {
	p := testPipeline()
	enc := media.Encoder{Name: "libx264"}
	args := p.buildSwapArgs("ffmpeg", "v.mp4", "a.mp3", "out.mp4", 5.0, 3.2, enc)

	joined := strings.Join(args, " ")
	assert.Contains(t, joined, "trim=0:3.200")
	assert.NotContains(t, joined, "tpad")
}

func TestPruneOutputsKeepsNewestOnly(t *testing.T) {
	dir := t.TempDir()
	old1 := filepath.Join(dir, "final_20240101000000.mp4")
	old2 := filepath.Join(dir, "final_20240201000000.mp4")
	keep := filepath.Join(dir, "final_20240301000000.mp4")
	for _, f := range []string{old1, old2, keep} {
		require.NoError(t, os.WriteFile(f, []byte("x"), 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested"), 0o755))

	testPipeline().pruneOutputs(dir, keep)

	_, err := os.Stat(keep)
	assert.NoError(t, err)
	_, err = os.Stat(old1)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(old2)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(dir, "nested"))
	assert.NoError(t, err, "directories are left alone")
}

func TestFfmtFixedPrecision(t *testing.T) {
	assert.Equal(t, "1.500", ffmt(1.5))
	assert.Equal(t, "0.000", ffmt(0))
	assert.Equal(t, "12.346", ffmt(12.3456))
}

func TestTailOfTruncatesLongStderr(t *testing.T) {
	long := strings.Repeat("e", 1000)
	assert.Len(t, tailOf([]byte(long)), 300)
	assert.Equal(t, "short", tailOf([]byte("short")))
}
