package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/voxcut/voxcut/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management commands",
	Long:  "Commands for inspecting voxcut configuration.",
}

var configDumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Dump the effective configuration",
	Long: `Dump the effective configuration in YAML format.

This resolves the full precedence chain (CLI flags > environment
variables > config file > defaults) and prints the result. Redirect
the output to create a configuration template:

  voxcut config dump > voxcut.yaml

Environment variables use the VOXCUT_ prefix with underscores for
nesting, e.g. uploads.root -> VOXCUT_UPLOADS_ROOT.`,
	RunE: runConfigDump,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configDumpCmd)
}

func runConfigDump(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	fmt.Print(string(data))
	return nil
}
