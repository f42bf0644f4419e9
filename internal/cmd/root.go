// Package cmd provides the CLI commands for the TanteBeauty site server.
package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/M-Creative-ltd/TanteBeauty/internal/config"
	"github.com/M-Creative-ltd/TanteBeauty/internal/logging"
)

// skipConfigAnnotation marks commands that run without loading configuration.
const skipConfigAnnotation = "skip-config"

var (
	// Global flags
	configPath    string
	debug         bool
	logLevel      string // --log-level flag (debug, info, warn, error)
	logFile       string
	logComponents string
	logJSON       bool

	// Loaded configuration
	cfg *config.Config
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "tantebeauty",
	Short: "TanteBeauty - site server with a protected content admin",
	Long: `TanteBeauty serves the public beauty salon site from a content
directory and protects the content admin surface behind a login.

Admin credentials and the session signing secret come from the
configuration file or the environment (KEYSTATIC_ADMIN_USERNAME,
KEYSTATIC_ADMIN_PASSWORD, JWT_SECRET, JWT_EXPIRATION).`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" || cmd.Name() == "completion" {
			return nil
		}

		// An explicit --config must exist; the default path is optional.
		if cmd.Annotations[skipConfigAnnotation] == "" {
			path, optional := configPath, false
			if path == "" {
				path, optional = config.DefaultConfigPath(), true
			}
			loaded, err := config.Load(path, optional)
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			cfg = loaded
		} else {
			cfg = config.Default()
		}

		if err := initLogging(cfg.Logging); err != nil {
			return fmt.Errorf("failed to initialize logging: %w", err)
		}
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return logging.Close()
	},
}

// initLogging merges the command line flags over the logging section of
// the configuration. Priority: --log-level > --debug > config > info.
func initLogging(lc config.LoggingConfig) error {
	level := lc.Level
	if level == "" {
		level = "info"
	}
	if logLevel != "" {
		level = logLevel
	} else if debug {
		level = "debug"
	}

	components := lc.Components
	if logComponents != "" {
		components = nil
		for _, c := range strings.Split(logComponents, ",") {
			c = strings.TrimSpace(c)
			if c != "" {
				components = append(components, c)
			}
		}
	}

	file := lc.File
	if logFile != "" {
		file = logFile
	}
	var fileCfg *logging.FileLogConfig
	if file != "" {
		fileCfg = &logging.FileLogConfig{Path: file}
	}

	return logging.Initialize(logging.Config{
		Level:      level,
		JSON:       logJSON || lc.JSON,
		File:       fileCfg,
		Components: components,
	})
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"Path to the YAML configuration file (default: $TANTE_CONFIG or ./tantebeauty.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"Log level: debug, info, warn, error (overrides --debug)")
	rootCmd.PersistentFlags().StringVarP(&logFile, "logfile", "l", "",
		"Also write logs to this file (rotated)")
	rootCmd.PersistentFlags().StringVar(&logComponents, "log-components", "",
		"Comma-separated components to log (web,auth,content,oauth)")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "Emit logs as JSON")
}
