// Package config handles application configuration using Viper.
// Precedence: CLI flags > environment variables > config file > defaults.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/voxcut/voxcut/internal/observability"
)

// Config represents the complete application configuration.
type Config struct {
	Uploads     UploadsConfig                `mapstructure:"uploads"`
	Database    DatabaseConfig               `mapstructure:"database"`
	Logging     observability.LoggingConfig  `mapstructure:"logging"`
	FFmpeg      FFmpegConfig                 `mapstructure:"ffmpeg"`
	Scopes      map[string]ScopeConfig       `mapstructure:"scopes"`
	Providers   ProvidersConfig              `mapstructure:"providers"`
	Script      ScriptConfig                 `mapstructure:"script"`
	Maintenance MaintenanceConfig            `mapstructure:"maintenance"`
}

// UploadsConfig anchors the on-disk layout every pipeline writes into.
type UploadsConfig struct {
	Root string `mapstructure:"root"`
}

// DatabaseConfig holds project store settings.
type DatabaseConfig struct {
	Type string `mapstructure:"type"` // sqlite, mysql, postgres
	Path string `mapstructure:"path"` // sqlite file path
	DSN  string `mapstructure:"dsn"`  // mysql/postgres connection string
}

// FFmpegConfig locates the media binaries.
type FFmpegConfig struct {
	FFmpegPath  string `mapstructure:"ffmpeg_path"`
	FFprobePath string `mapstructure:"ffprobe_path"`
}

// ScopeConfig carries a per-scope worker override. When Override is
// false the effective value falls through to env var then heuristic.
type ScopeConfig struct {
	MaxWorkers int  `mapstructure:"max_workers"`
	Override   bool `mapstructure:"override"`
}

// ProvidersConfig groups the external capability endpoints.
type ProvidersConfig struct {
	LLM LLMConfig `mapstructure:"llm"`
	TTS TTSConfig `mapstructure:"tts"`
	ASR ASRConfig `mapstructure:"asr"`
}

// LLMConfig configures the chat-completion provider.
type LLMConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// TTSConfig configures the speech-synthesis provider.
type TTSConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Voice   string        `mapstructure:"voice"`
	Speed   float64       `mapstructure:"speed"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// ASRConfig configures the transcription provider.
type ASRConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// ScriptConfig carries script-generation defaults.
type ScriptConfig struct {
	DefaultLength   string `mapstructure:"default_length"`   // e.g. "20～30条"
	OriginalRatio   int    `mapstructure:"original_ratio"`   // percent, 10..90
	DefaultLanguage string `mapstructure:"default_language"` // "zh" or "en"
	PromptDir       string `mapstructure:"prompt_dir"`
}

// MaintenanceConfig controls the background sweeps.
type MaintenanceConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	SweepSchedule  string        `mapstructure:"sweep_schedule"`
	TempMaxAge     time.Duration `mapstructure:"temp_max_age"`
	TerminalMaxAge time.Duration `mapstructure:"terminal_max_age"`
}

// Load reads configuration from file, environment and defaults.
func Load(configFile string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("voxcut")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.voxcut")
		v.AddConfigPath("/etc/voxcut")
	}

	v.SetEnvPrefix("VOXCUT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("uploads.root", "./uploads")

	v.SetDefault("database.type", "sqlite")
	v.SetDefault("database.path", "./voxcut.db")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("ffmpeg.ffmpeg_path", "")
	v.SetDefault("ffmpeg.ffprobe_path", "")

	v.SetDefault("providers.llm.timeout", 600*time.Second)
	v.SetDefault("providers.llm.model", "gpt-4o-mini")
	v.SetDefault("providers.tts.timeout", 600*time.Second)
	v.SetDefault("providers.tts.speed", 1.0)
	v.SetDefault("providers.asr.timeout", 600*time.Second)

	v.SetDefault("script.default_length", "20～30条")
	v.SetDefault("script.original_ratio", 70)
	v.SetDefault("script.default_language", "zh")
	v.SetDefault("script.prompt_dir", "./prompts")

	v.SetDefault("maintenance.enabled", true)
	v.SetDefault("maintenance.sweep_schedule", "@every 1h")
	v.SetDefault("maintenance.temp_max_age", 24*time.Hour)
	v.SetDefault("maintenance.terminal_max_age", time.Hour)
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	switch c.Database.Type {
	case "sqlite", "mysql", "postgres":
	default:
		return fmt.Errorf("invalid database type: %s", c.Database.Type)
	}

	if c.Database.Type == "sqlite" && c.Database.Path == "" {
		return fmt.Errorf("database path required for sqlite")
	}
	if c.Database.Type != "sqlite" && c.Database.DSN == "" {
		return fmt.Errorf("database dsn required for %s", c.Database.Type)
	}

	if c.Script.OriginalRatio < 10 || c.Script.OriginalRatio > 90 {
		return fmt.Errorf("script original_ratio must be within 10..90, got %d", c.Script.OriginalRatio)
	}

	switch c.Script.DefaultLanguage {
	case "zh", "en":
	default:
		return fmt.Errorf("invalid script language: %s", c.Script.DefaultLanguage)
	}

	for name, sc := range c.Scopes {
		if sc.Override && sc.MaxWorkers < 1 {
			return fmt.Errorf("scope %s: max_workers must be >= 1", name)
		}
	}

	return nil
}

// Path helpers for the uploads layout. Every pipeline component goes
// through these rather than joining strings ad hoc.

func (c *Config) VideosDir() string       { return filepath.Join(c.Uploads.Root, "videos") }
func (c *Config) SubtitlesDir() string    { return filepath.Join(c.Uploads.Root, "subtitles") }
func (c *Config) AudiosDir() string       { return filepath.Join(c.Uploads.Root, "audios") }
func (c *Config) AnalysesDir() string     { return filepath.Join(c.Uploads.Root, "analyses") }
func (c *Config) VideoTmpDir(job string) string {
	return filepath.Join(c.Uploads.Root, "videos", "tmp", job)
}
func (c *Config) AudioTmpDir(job string) string {
	return filepath.Join(c.Uploads.Root, "audios", "tmp", job)
}
func (c *Config) OutputDir(projectName string) string {
	return filepath.Join(c.Uploads.Root, "videos", "outputs", projectName)
}
func (c *Config) DraftOutputDir(projectName string) string {
	return filepath.Join(c.Uploads.Root, "jianying_drafts", "outputs", projectName)
}
func (c *Config) ModelsDir(family, key string) string {
	return filepath.Join(c.Uploads.Root, "models", family, key)
}
func (c *Config) ASRCacheDir() string { return filepath.Join(c.Uploads.Root, "asr_cache") }

// RelativeToUploads converts an absolute path under the uploads root
// to the relative form used in event payloads and stored records.
func (c *Config) RelativeToUploads(path string) string {
	rel, err := filepath.Rel(c.Uploads.Root, path)
	if err != nil {
		return path
	}
	return filepath.ToSlash(rel)
}
