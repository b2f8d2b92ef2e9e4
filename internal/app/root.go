package app

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/voidstore/internal/config"
	"github.com/blackwell-systems/voidstore/internal/logger"
)

var (
	configDir string
	cacheDir  string
	dbPath    string
	logLevel  string

	// cfg is loaded once per invocation by the root command's
	// PersistentPreRunE.
	cfg     *config.Config
	logFile *os.File

	// RootCmd is the root command for voidstore
	RootCmd = &cobra.Command{
		Use:   "voidstore",
		Short: "Search, install and update Void Linux packages",
		Long: `voidstore is a package agent for Void Linux built on the xbps tools.

It searches the configured repositories, installs and removes packages,
runs update batches with per-package progress, and keeps a spotlight
cache of recently built packages grouped by category.

Every install, remove and update is recorded in a local operation
history. Mutating commands run through a privilege wrapper (pkexec by
default, see 'privilege.wrapper' in config.yaml).

Examples:
  # Search the repositories
  voidstore search firefox

  # Check for and apply updates
  voidstore updates
  voidstore update --all

  # Install and remove packages
  voidstore install ripgrep
  voidstore remove ripgrep fd

  # Browse recently built packages
  voidstore spotlight --category dev

  # Serve the HTTP API with scheduled update checks
  voidstore serve`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: loadConfig,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logFile != nil {
				logFile.Close()
				logFile = nil
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println("voidstore: Void Linux package agent")
			fmt.Println()
			fmt.Println("Tip: Run 'voidstore updates' to check for updates.")
			fmt.Println("     Run 'voidstore search <term>' to find packages.")
			fmt.Println("     Run 'voidstore --help' for all commands.")
			return nil
		},
	}
)

func init() {
	// Global flags
	RootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "", "configuration directory (default: $XDG_CONFIG_HOME/voidstore)")
	RootCmd.PersistentFlags().StringVar(&cacheDir, "cache-dir", "", "spotlight cache directory (default: $XDG_CACHE_HOME/voidstore)")
	RootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "operation history database path (default: $XDG_DATA_HOME/voidstore/operations.db)")
	RootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")

	RootCmd.SuggestionsMinimumDistance = 2

	RootCmd.AddCommand(searchCmd)
	RootCmd.AddCommand(installedCmd)
	RootCmd.AddCommand(installCmd)
	RootCmd.AddCommand(removeCmd)
	RootCmd.AddCommand(updateCmd)
	RootCmd.AddCommand(updatesCmd)
	RootCmd.AddCommand(infoCmd)
	RootCmd.AddCommand(spotlightCmd)
	RootCmd.AddCommand(historyCmd)
	RootCmd.AddCommand(maintenanceCmd)
	RootCmd.AddCommand(mirrorsCmd)
	RootCmd.AddCommand(settingsCmd)
	RootCmd.AddCommand(serveCmd)
}

// Execute runs the root command
func Execute() error {
	return RootCmd.Execute()
}

// loadConfig reads config.yaml, applies the global flag overrides and sets
// up logging.
func loadConfig(cmd *cobra.Command, args []string) error {
	c, err := config.Load(configDir)
	if err != nil {
		return err
	}
	if cacheDir != "" {
		c.Cache.Dir = cacheDir
	}
	if dbPath != "" {
		c.DB.Path = dbPath
	}
	if logLevel != "" {
		c.Log.Level = logLevel
	}

	level, err := logger.ParseLevel(c.Log.Level)
	if err != nil {
		return err
	}
	logger.SetLevel(level)
	if c.Log.Path != "" {
		f, err := logger.OpenFile(c.Log.Path)
		if err != nil {
			return err
		}
		logFile = f
	}

	cfg = c
	return nil
}
