// Package main is the entry point for the voxcut backend.
//
// voxcut automates AI-narrated short-video production: subtitle
// extraction, script authoring via a language model, per-segment
// voiceover, cutting, audio replacement, concatenation, and editor
// draft export.
package main

import (
	"os"

	"github.com/voxcut/voxcut/cmd/voxcut/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
