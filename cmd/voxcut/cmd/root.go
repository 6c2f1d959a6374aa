// Package cmd implements the CLI commands for voxcut.
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/voxcut/voxcut/internal/observability"
	"github.com/voxcut/voxcut/internal/version"
)

// cfgFile holds the config file path from the CLI flag.
var cfgFile string

var rootCmd = &cobra.Command{
	Use:     "voxcut",
	Short:   "AI-narrated short-video production backend",
	Version: version.Short(),
	Long: `voxcut automates the production of AI-narrated short video
commentary: it turns a source video and its subtitles into a
timestamped narration script, synthesizes per-segment voiceover,
cuts and re-voices the source, and emits either a finished video or
an editor-importable draft folder.`,
}

// Execute runs the root command.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		return fmt.Errorf("executing root command: %w", err)
	}
	return nil
}

func init() {
	cobra.OnInitialize(initViper)

	// PersistentPreRunE set here to avoid an initialization cycle with
	// the flag set.
	rootCmd.PersistentPreRunE = func(_ *cobra.Command, _ []string) error {
		return initLogging()
	}

	// These flags are not bound to viper; Changed() gates the override
	// so the precedence stays CLI flag > env > config > default.
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default searches ., $HOME/.voxcut, /etc/voxcut)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "json", "log format (text, json)")
}

// initViper prepares the global viper used by initLogging. Full config
// loading happens per command through config.Load.
func initViper() {
	v := viper.GetViper()
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("voxcut")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.voxcut")
		v.AddConfigPath("/etc/voxcut")
	}

	v.SetEnvPrefix("VOXCUT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", v.ConfigFileUsed())
	}
}

// initLogging configures the default slog logger with redaction.
func initLogging() error {
	level := viper.GetString("logging.level")
	format := viper.GetString("logging.format")

	if rootCmd.PersistentFlags().Changed("log-level") {
		level, _ = rootCmd.PersistentFlags().GetString("log-level")
	}
	if rootCmd.PersistentFlags().Changed("log-format") {
		format, _ = rootCmd.PersistentFlags().GetString("log-format")
	}

	logger := observability.NewLoggerWithWriter(observability.LoggingConfig{
		Level:  strings.ToLower(level),
		Format: strings.ToLower(format),
	}, os.Stderr)
	observability.SetDefault(logger)
	return nil
}
