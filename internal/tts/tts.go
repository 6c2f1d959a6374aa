// Package tts defines the speech-synthesis capability the video and
// draft pipelines consume, plus an HTTP implementation.
package tts

import "context"

// Request describes one synthesis call.
type Request struct {
	Text    string
	VoiceID string
	Speed   float64
	OutPath string
}

// Result is the synthesis outcome. Duration is seconds when the
// provider reports it; callers probe the file otherwise.
type Result struct {
	Success  bool
	Duration float64
	Error    string
}

// Provider synthesizes speech to a file.
type Provider interface {
	Synthesize(ctx context.Context, req Request) (*Result, error)
}
