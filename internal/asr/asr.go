// Package asr defines the transcription capability and its content
// addressed result cache.
package asr

import "context"

// Cue is one transcribed utterance.
type Cue struct {
	StartMs int64  `json:"start_ms"`
	EndMs   int64  `json:"end_ms"`
	Text    string `json:"text"`
}

// Options tunes a transcription run. Options participate in the
// cache key, so distinct settings never collide.
type Options struct {
	Language string `json:"language,omitempty"`
	ModelKey string `json:"model_key,omitempty"`
}

// Provider transcribes an audio file.
type Provider interface {
	Transcribe(ctx context.Context, audioPath string, opts Options) ([]Cue, error)
}
