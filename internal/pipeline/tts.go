package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/voxcut/voxcut/internal/media"
	"github.com/voxcut/voxcut/internal/models"
	"github.com/voxcut/voxcut/internal/taskqueue"
	"github.com/voxcut/voxcut/internal/tts"
)

// ttsParallelism bounds simultaneous synthesis calls.
const ttsParallelism = 5

// synthesizeAll runs TTS for every narrated segment. Any failure
// cancels the remaining calls and fails the pipeline.
func (p *Pipeline) synthesizeAll(ctx context.Context, jobs []*segmentJob, audioTmp string, sig *taskqueue.Signal, report Reporter) error {
	var narrated []*segmentJob
	for _, j := range jobs {
		if !j.seg.IsOriginal() {
			narrated = append(narrated, j)
		}
	}
	if len(narrated) == 0 {
		return nil
	}

	sem := semaphore.NewWeighted(ttsParallelism)
	g, gctx := errgroup.WithContext(ctx)

	var mu sync.Mutex
	done := 0

	for _, j := range narrated {
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				return models.ErrCancelled
			}
			defer sem.Release(1)
			if err := checkCancel(gctx, sig); err != nil {
				return err
			}

			outPath := filepath.Join(audioTmp, fmt.Sprintf("seg_%03d.mp3", j.index))
			result, err := p.tts.Synthesize(gctx, tts.Request{
				Text:    j.seg.Text,
				VoiceID: p.ttsVoice,
				Speed:   p.ttsSpeed,
				OutPath: outPath,
			})
			if err != nil {
				return fmt.Errorf("tts for segment %d: %w", j.index+1, err)
			}
			if !result.Success {
				return models.ProviderUnavailable("tts for segment %d: %s", j.index+1, result.Error)
			}

			duration := result.Duration
			if duration <= 0 {
				probed, ok := p.prober.Duration(gctx, outPath, media.DurationAudioStream)
				if !ok {
					return models.MediaProcessingFailure("tts output for segment %d has no measurable duration", j.index+1)
				}
				duration = probed
			}

			mu.Lock()
			j.audioPath = outPath
			j.audioDuration = duration
			done++
			report("tts_generate", 20+done*25/len(narrated),
				fmt.Sprintf("synthesized %d/%d", done, len(narrated)))
			mu.Unlock()
			return nil
		})
	}
	return g.Wait()
}
