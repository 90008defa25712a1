package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"airwave/internal/audiohost"
	"airwave/internal/config"
	"airwave/internal/engine"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Resolve the configured targets and report what would be adopted",
	Long: `status opens the audio host, resolves target endpoints against the
current configuration, and reports their status. airwave has no background
service, so this reflects a fresh resolution rather than a running
pipeline's live state — run "airwave start" in the foreground to see the
pipeline in action.`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	logger := newLogger()

	path := configPath
	if path == "" {
		path = config.DefaultPath()
	}
	store, err := config.NewStore(path)
	if err != nil {
		return err
	}
	cfg := store.Get()

	host, err := audiohost.NewMalgoHost(logger)
	if err != nil {
		return err
	}
	defer host.Close()

	eng := engine.New(host, logger)
	ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
	defer cancel()

	if err := eng.Start(ctx, cfg); err != nil {
		return err
	}
	defer eng.Stop()

	fmt.Printf("%-36s %-32s %-8s %-8s %-8s %s\n", "ID", "NAME", "ENABLED", "PAUSED", "DEFAULT", "DRIFT_MS")
	for _, s := range eng.GetDeviceStatuses() {
		fmt.Printf("%-36s %-32s %-8v %-8v %-8v %.2f\n", s.ID, s.FriendlyName, s.Enabled, s.Paused, s.IsSystemDefault, s.DriftMS)
	}
	return nil
}
