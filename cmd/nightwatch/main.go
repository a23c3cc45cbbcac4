package main

import (
	"fmt"
	"os"

	"github.com/obentoo/nightwatch/internal/common/logger"
	"github.com/obentoo/nightwatch/internal/common/output"
	"github.com/spf13/cobra"
)

var (
	verbose    bool
	quiet      bool
	noColor    bool
	logToFile  bool
	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "nightwatch",
	Short: "Composer dependency watcher",
	Long: `NightWatch checks the Composer dependencies of GitLab projects against
Packagist and opens merge requests for newer releases that fit the declared
version constraints.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// Configure logging based on flags
		if verbose {
			logger.SetVerbose(true)
		}
		if quiet {
			logger.SetQuiet(true)
		}
		if noColor {
			output.NoColor()
		}
		if logToFile {
			if err := logger.Default().EnableFileLogging(); err != nil {
				logger.Warn("file logging disabled: %v", err)
			}
		}
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Default().Close()
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Suppress non-error output")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().BoolVar(&logToFile, "log-file", false, "Also write a log file under $XDG_STATE_HOME/nightwatch/logs")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to the configuration file (YAML or .toml)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
