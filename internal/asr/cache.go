package asr

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/voxcut/voxcut/internal/observability"
)

// Cache wraps a Provider with a JSON file cache keyed by the CRC of
// the audio content plus the transcription options. Re-running ASR
// on an unchanged upload is a cache hit.
type Cache struct {
	provider Provider
	dir      string
	logger   *slog.Logger
}

// NewCache creates a caching wrapper storing entries under dir.
func NewCache(provider Provider, dir string, logger *slog.Logger) *Cache {
	return &Cache{
		provider: provider,
		dir:      dir,
		logger:   observability.WithComponent(logger, "asr-cache"),
	}
}

// Transcribe returns cached cues when available, otherwise delegates
// and stores the result. Cache failures degrade to a direct call.
func (c *Cache) Transcribe(ctx context.Context, audioPath string, opts Options) ([]Cue, error) {
	key, err := c.cacheKey(audioPath, opts)
	if err != nil {
		c.logger.Warn("cache key computation failed, bypassing cache", "error", err)
		return c.provider.Transcribe(ctx, audioPath, opts)
	}
	path := filepath.Join(c.dir, key+".json")

	if data, err := os.ReadFile(path); err == nil {
		var cues []Cue
		if err := json.Unmarshal(data, &cues); err == nil {
			c.logger.Debug("asr cache hit", "key", key)
			return cues, nil
		}
		// corrupt entry; drop it and re-transcribe
		os.Remove(path)
	}

	cues, err := c.provider.Transcribe(ctx, audioPath, opts)
	if err != nil {
		return nil, err
	}

	if err := c.store(path, cues); err != nil {
		c.logger.Warn("asr cache write failed", "error", err)
	}
	return cues, nil
}

func (c *Cache) cacheKey(audioPath string, opts Options) (string, error) {
	f, err := os.Open(audioPath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := crc32.NewIEEE()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	optsJSON, err := json.Marshal(opts)
	if err != nil {
		return "", err
	}
	h.Write(optsJSON)
	return fmt.Sprintf("%08x", h.Sum32()), nil
}

func (c *Cache) store(path string, cues []Cue) error {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return err
	}
	data, err := json.Marshal(cues)
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
