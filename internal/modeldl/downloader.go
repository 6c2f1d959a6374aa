// Package modeldl downloads local model snapshots (ASR, TTS) over
// HTTP with byte-level progress reporting and atomic installation.
package modeldl

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/voxcut/voxcut/internal/config"
	"github.com/voxcut/voxcut/internal/httpx"
	"github.com/voxcut/voxcut/internal/models"
	"github.com/voxcut/voxcut/internal/observability"
	"github.com/voxcut/voxcut/internal/taskqueue"
)

// FileSpec is one file of a model snapshot. Size may be zero when the
// manifest does not know it; the Content-Length then fills it in.
type FileSpec struct {
	Name string
	URL  string
	Size int64
}

// Snapshot describes one downloadable model.
type Snapshot struct {
	Family string // e.g. "fun_asr", "qwen3_tts"
	Key    string // model identifier within the family
	Files  []FileSpec
}

// ProgressFunc receives cumulative byte counts. total is 0 when no
// file in the snapshot reported a size.
type ProgressFunc func(downloaded, total int64)

// Downloader fetches snapshots into the configured models directory.
type Downloader struct {
	cfg    *config.Config
	client *httpx.Client
	logger *slog.Logger
}

// New creates a downloader.
func New(cfg *config.Config, client *httpx.Client, logger *slog.Logger) *Downloader {
	return &Downloader{
		cfg:    cfg,
		client: client,
		logger: observability.WithComponent(logger, "modeldl"),
	}
}

// Installed reports whether the snapshot directory already exists.
func (d *Downloader) Installed(snap Snapshot) bool {
	info, err := os.Stat(d.cfg.ModelsDir(snap.Family, snap.Key))
	return err == nil && info.IsDir()
}

// Download fetches every file of the snapshot into a staging
// directory and renames it into place once complete, so a partially
// downloaded model is never visible under the final path.
func (d *Downloader) Download(ctx context.Context, snap Snapshot, sig *taskqueue.Signal, onProgress ProgressFunc) error {
	if len(snap.Files) == 0 {
		return models.InputInvalid("snapshot %s/%s has no files", snap.Family, snap.Key)
	}
	if onProgress == nil {
		onProgress = func(int64, int64) {}
	}

	finalDir := d.cfg.ModelsDir(snap.Family, snap.Key)
	if d.Installed(snap) {
		d.logger.Info("model already installed", "family", snap.Family, "key", snap.Key)
		return nil
	}

	stagingDir := finalDir + ".partial"
	if err := os.RemoveAll(stagingDir); err != nil {
		return fmt.Errorf("clearing stale staging dir: %w", err)
	}
	if err := os.MkdirAll(stagingDir, 0o755); err != nil {
		return fmt.Errorf("creating staging dir: %w", err)
	}
	defer os.RemoveAll(stagingDir)

	var total int64
	for _, f := range snap.Files {
		total += f.Size
	}

	var downloaded int64
	for _, f := range snap.Files {
		if err := checkCancel(ctx, sig); err != nil {
			return err
		}
		n, err := d.fetchFile(ctx, f, stagingDir, func(fileBytes int64) {
			onProgress(downloaded+fileBytes, total)
		})
		if err != nil {
			return fmt.Errorf("downloading %s: %w", f.Name, err)
		}
		downloaded += n
		if f.Size == 0 {
			total += n
		}
		onProgress(downloaded, total)
	}

	if err := os.MkdirAll(filepath.Dir(finalDir), 0o755); err != nil {
		return fmt.Errorf("creating models dir: %w", err)
	}
	if err := os.Rename(stagingDir, finalDir); err != nil {
		return fmt.Errorf("installing snapshot: %w", err)
	}
	d.logger.Info("model installed", "family", snap.Family, "key", snap.Key, "bytes", downloaded)
	return nil
}

// fetchFile streams one file to the staging dir, reporting its own
// cumulative byte count.
func (d *Downloader) fetchFile(ctx context.Context, f FileSpec, stagingDir string, onBytes func(int64)) (int64, error) {
	name := filepath.FromSlash(strings.TrimPrefix(f.Name, "/"))
	if strings.Contains(name, "..") {
		return 0, models.InputInvalid("file name %q escapes the snapshot dir", f.Name)
	}
	dest := filepath.Join(stagingDir, name)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return 0, err
	}

	resp, err := d.client.Get(ctx, f.URL)
	if err != nil {
		return 0, models.ProviderUnavailable("fetching %s: %v", f.URL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		return 0, models.ProviderUnavailable("fetching %s: status %d", f.URL, resp.StatusCode)
	}

	out, err := os.Create(dest)
	if err != nil {
		return 0, err
	}

	n, err := io.Copy(out, &progressReader{r: resp.Body, onBytes: onBytes})
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return n, err
	}
	return n, nil
}

// progressReader reports the cumulative byte count after every read.
type progressReader struct {
	r       io.Reader
	read    int64
	onBytes func(int64)
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.read += int64(n)
		p.onBytes(p.read)
	}
	return n, err
}

func checkCancel(ctx context.Context, sig *taskqueue.Signal) error {
	if sig != nil && sig.IsFired() {
		return models.ErrCancelled
	}
	if err := ctx.Err(); err != nil {
		return models.ErrCancelled
	}
	return nil
}
