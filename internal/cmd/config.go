package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/M-Creative-ltd/TanteBeauty/internal/config"
)

var (
	configOutputPath string
	configForce      bool
)

// configCmd represents the config parent command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage TanteBeauty configuration",
	Long: `Inspect or create configuration files.

Use the subcommands to check the effective configuration or to write a
starting configuration file.`,
}

// configCheckCmd represents the config check subcommand
var configCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Print the effective configuration with secrets redacted",
	Long: `Load the configuration file and environment overrides, then print
the result as YAML. Secrets are replaced by a placeholder. Warnings such
as missing credentials are printed after the configuration.

Examples:
  tantebeauty config check
  tantebeauty --config /etc/tantebeauty.yaml config check`,
	Args: cobra.NoArgs,
	RunE: runConfigCheck,
}

// configCreateCmd represents the config create subcommand
var configCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Write a default configuration file",
	Long: `Write the built-in default configuration as YAML.

Credentials and the JWT secret are left empty; set them in the file or
through the environment before serving the admin.

Examples:
  tantebeauty config create                       # Write ./tantebeauty.yaml
  tantebeauty config create -o /etc/tante.yaml    # Write elsewhere
  tantebeauty config create --force               # Overwrite an existing file`,
	Args:        cobra.NoArgs,
	Annotations: map[string]string{skipConfigAnnotation: "true"},
	RunE:        runConfigCreate,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configCheckCmd)
	configCmd.AddCommand(configCreateCmd)

	configCreateCmd.Flags().StringVarP(&configOutputPath, "output", "o", "",
		"File to write (default: $TANTE_CONFIG or ./tantebeauty.yaml)")
	configCreateCmd.Flags().BoolVarP(&configForce, "force", "f", false,
		"Overwrite an existing configuration file")
}

func runConfigCheck(cmd *cobra.Command, args []string) error {
	data, err := cfg.Redacted().YAML()
	if err != nil {
		return fmt.Errorf("failed to render configuration: %w", err)
	}

	out := cmd.OutOrStdout()
	_, _ = out.Write(data)
	if len(cfg.Warnings) == 0 {
		fmt.Fprintln(out, "# configuration OK")
		return nil
	}
	for _, w := range cfg.Warnings {
		fmt.Fprintf(out, "# warning: %s\n", w)
	}
	return nil
}

func runConfigCreate(cmd *cobra.Command, args []string) error {
	path := configOutputPath
	if path == "" {
		path = config.DefaultConfigPath()
	}

	if !configForce {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		} else if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to check %s: %w", path, err)
		}
	}

	data, err := config.Default().YAML()
	if err != nil {
		return fmt.Errorf("failed to render configuration: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
	return nil
}
