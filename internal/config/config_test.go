package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nonexistent.yaml"))
	// explicit missing file is an error; default search path is not
	assert.Error(t, err)

	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Database.Type)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, 70, cfg.Script.OriginalRatio)
	assert.Equal(t, "zh", cfg.Script.DefaultLanguage)
	assert.Equal(t, 600*time.Second, cfg.Providers.LLM.Timeout)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "voxcut.yaml")
	content := `
uploads:
  root: /data/uploads
logging:
  level: debug
  format: text
scopes:
  generate_video:
    max_workers: 2
    override: true
script:
  original_ratio: 50
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/data/uploads", cfg.Uploads.Root)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 50, cfg.Script.OriginalRatio)
	require.Contains(t, cfg.Scopes, "generate_video")
	assert.Equal(t, 2, cfg.Scopes["generate_video"].MaxWorkers)
	assert.True(t, cfg.Scopes["generate_video"].Override)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Database: DatabaseConfig{Type: "sqlite", Path: "x.db"},
			Script:   ScriptConfig{OriginalRatio: 70, DefaultLanguage: "zh"},
		}
	}

	cfg := base()
	assert.NoError(t, cfg.Validate())

	cfg = base()
	cfg.Database.Type = "oracle"
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.Script.OriginalRatio = 95
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.Script.DefaultLanguage = "fr"
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.Scopes = map[string]ScopeConfig{"tts": {Override: true, MaxWorkers: 0}}
	assert.Error(t, cfg.Validate())
}

func TestPathHelpers(t *testing.T) {
	cfg := &Config{Uploads: UploadsConfig{Root: "/up"}}
	assert.Equal(t, filepath.Join("/up", "videos", "tmp", "job1"), cfg.VideoTmpDir("job1"))
	assert.Equal(t, filepath.Join("/up", "videos", "outputs", "p"), cfg.OutputDir("p"))
	assert.Equal(t, filepath.Join("/up", "models", "fun_asr", "base"), cfg.ModelsDir("fun_asr", "base"))
	assert.Equal(t, "videos/outputs/p/final.mp4",
		cfg.RelativeToUploads(filepath.Join("/up", "videos", "outputs", "p", "final.mp4")))
}
