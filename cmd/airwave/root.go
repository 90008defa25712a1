package main

import (
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
)

var (
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "airwave",
	Short: "Whole-house audio mirroring for Windows output devices",
	Long: `airwave captures the system's default audio output and replays it, in
near-real-time and drift-corrected, on every adopted output endpoint — every
HDMI display, every paired speaker — simultaneously.

Commands:
  - start:   run the capture/render pipeline in the foreground
  - status:  query adopted endpoints and their state
  - devices: list render endpoints and their adoption eligibility`,
}

// Execute runs the root command. Called once from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.yaml (default: OS config dir)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

func newLogger() *log.Logger {
	level := log.InfoLevel
	if verbose {
		level = log.DebugLevel
	}
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Level:           level,
	})
	return logger
}
