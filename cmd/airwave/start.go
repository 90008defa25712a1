package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"airwave/internal/audiohost"
	"airwave/internal/config"
	"airwave/internal/engine"
)

var (
	flagUseAllDevices bool
	flagBufferMs      uint32
	flagDeviceIDs     []string
	flagExcludeIDs    []string
	flagDumpWav       string
	flagSourceID      string
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Run the capture/render pipeline in the foreground",
	RunE:  runStart,
}

func init() {
	rootCmd.AddCommand(startCmd)
	startCmd.Flags().BoolVar(&flagUseAllDevices, "all-devices", false, "adopt every render endpoint, not just HDMI-class ones")
	startCmd.Flags().Uint32Var(&flagBufferMs, "buffer-ms", 0, "requested per-endpoint host buffer duration (0: keep the config's buffer_ms)")
	startCmd.Flags().StringSliceVar(&flagDeviceIDs, "device-ids", nil, "allow-list of endpoint id/name substrings")
	startCmd.Flags().StringSliceVar(&flagExcludeIDs, "exclude-ids", nil, "deny-list of endpoint id/name substrings")
	startCmd.Flags().StringVar(&flagDumpWav, "dump-wav", "", "mirror captured audio to a WAV file for diagnostics")
	startCmd.Flags().StringVar(&flagSourceID, "source-device-id", "", "pin the capture source instead of following the system default")
}

func runStart(cmd *cobra.Command, args []string) error {
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
	if flagUseAllDevices {
		cfg.UseAllDevices = true
	}
	if flagBufferMs != 0 {
		cfg.BufferMs = flagBufferMs
	}
	if len(flagDeviceIDs) > 0 {
		cfg.DeviceIDs = flagDeviceIDs
	}
	if len(flagExcludeIDs) > 0 {
		cfg.ExcludeIDs = flagExcludeIDs
	}
	if flagDumpWav != "" {
		cfg.DebugWavPath = flagDumpWav
	}
	if flagSourceID != "" {
		cfg.SourceDeviceID = flagSourceID
	}

	host, err := audiohost.NewMalgoHost(logger)
	if err != nil {
		return err
	}
	defer host.Close()

	eng := engine.New(host, logger)
	eng.SetEventChannel(func(event string) {
		logger.Info("event", "kind", event)
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := eng.Start(ctx, cfg); err != nil {
		return err
	}
	logger.Info("airwave: pipeline running, press ctrl-c to stop")

	<-ctx.Done()
	logger.Info("airwave: stopping")
	eng.Stop()
	return nil
}
