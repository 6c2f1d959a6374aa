package pipeline

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/voxcut/voxcut/internal/media"
	"github.com/voxcut/voxcut/internal/taskqueue"
)

// Alignment is the resolved window for one narrated segment.
type Alignment struct {
	NewStart    float64
	NewDuration float64
	Changed     bool
}

// AlignWindow resolves the segment window against the narration
// duration. Longer narration extends the window forward into the
// source; when the source end blocks that, the start shifts backward
// instead. Shorter narration shrinks the window. Within tolerance the
// window is untouched, which also makes the computation idempotent
// once audio and clip agree. The draft builder reuses it to place
// editor segments against the same windows the rendered video uses.
func AlignWindow(audioDur, clipDur, videoDur, start, end float64) Alignment {
	switch {
	case audioDur > clipDur:
		ext := audioDur - clipDur
		fwd := videoDur - end
		if fwd >= ext {
			return Alignment{NewStart: start, NewDuration: clipDur + ext, Changed: true}
		}
		newStart := start - (ext - fwd)
		if newStart < 0 {
			newStart = 0
		}
		return Alignment{NewStart: newStart, NewDuration: videoDur - newStart, Changed: true}
	case audioDur+audioVideoTolerance < clipDur:
		return Alignment{NewStart: start, NewDuration: audioDur, Changed: true}
	default:
		return Alignment{NewStart: start, NewDuration: clipDur, Changed: false}
	}
}

// alignAndReplace re-cuts a narrated segment to match its narration
// and swaps in the synthesized audio. On an unrecoverable audio swap
// the original clip with source audio is kept and a warning logged.
func (p *Pipeline) alignAndReplace(ctx context.Context, source string, j *segmentJob, videoDur float64, videoTmp string, sig *taskqueue.Signal) error {
	clipDur := j.seg.Duration()
	if probed, ok := p.prober.Duration(ctx, j.clipPath, media.DurationFormat); ok {
		clipDur = probed
	}

	al := AlignWindow(j.audioDuration, clipDur, videoDur, j.seg.StartTime, j.seg.EndTime)
	j.newStart = al.NewStart
	j.newDuration = al.NewDuration

	if al.Changed {
		recut := filepath.Join(videoTmp, fmt.Sprintf("seg_%03d_aligned.mp4", j.index))
		if err := p.cutSegment(ctx, source, al.NewStart, al.NewDuration, recut, sig); err != nil {
			return err
		}
		j.clipPath = recut
	}

	swapped := filepath.Join(videoTmp, fmt.Sprintf("seg_%03d_voiced.mp4", j.index))
	if err := p.replaceAudio(ctx, j.clipPath, j.audioPath, swapped, sig); err != nil {
		// last resort: keep the original clip and its source audio
		p.logger.Warn("audio replacement failed, keeping original clip audio",
			"segment", j.index+1, "error", err)
		return nil
	}
	j.clipPath = swapped
	return nil
}
