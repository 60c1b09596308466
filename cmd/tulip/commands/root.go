// Package commands implements the tulip CLI: serve, migrate, and the
// operational maintenance subcommands.
package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/emberian/tulip/internal/config"
	"github.com/emberian/tulip/internal/logger"
	"github.com/emberian/tulip/internal/version"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:     "tulip",
	Short:   "Tulip - team chat server with bot extensibility",
	Version: version.GetInfo(),
	Long: `Tulip is a team chat server with first-class bot extensibility:
slash commands, interactive widgets, persona and puppet identity
overlays, and ordered at-least-once interaction delivery to bots.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// Execute runs the CLI.
func Execute() error {
	rootCmd.SilenceUsage = true
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config TOML (or CONFIG_PATH env)")
}

// loadConfig reads the config from --config, CONFIG_PATH, or the default
// location, and initializes the global logger from it.
func loadConfig() (config.Config, error) {
	path := configPath
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return cfg, nil
}
