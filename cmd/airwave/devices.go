package main

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"airwave/internal/audiohost"
	"airwave/internal/config"
	"airwave/internal/devicematch"
	"airwave/internal/eventlog"
)

var flagShowHistory bool

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List render endpoints and their adoption eligibility",
	RunE:  runDevices,
}

func init() {
	rootCmd.AddCommand(devicesCmd)
	devicesCmd.Flags().BoolVar(&flagShowHistory, "history", false, "also print recent device-topology events")
}

func runDevices(cmd *cobra.Command, args []string) error {
	logger := newLogger()

	host, err := audiohost.NewMalgoHost(logger)
	if err != nil {
		return err
	}
	defer host.Close()

	endpoints, err := host.EnumerateRenderEndpoints()
	if err != nil {
		return err
	}
	def, _ := host.DefaultRenderEndpoint()

	path := configPath
	if path == "" {
		path = config.DefaultPath()
	}
	store, err := config.NewStore(path)
	if err != nil {
		return err
	}
	cfg := store.Get()

	matchEndpoints := make([]devicematch.Endpoint, len(endpoints))
	for i, ep := range endpoints {
		matchEndpoints[i] = devicematch.Endpoint{ID: ep.ID, FriendlyName: ep.FriendlyName}
	}
	resolved := devicematch.Resolve(matchEndpoints, devicematch.Config{
		DeviceIDs:     cfg.DeviceIDs,
		ExcludeIDs:    cfg.ExcludeIDs,
		UseAllDevices: cfg.UseAllDevices,
	})
	adopted := make(map[string]bool, len(resolved))
	for _, ep := range resolved {
		adopted[ep.ID] = true
	}

	fmt.Printf("%-36s %-32s %-10s %s\n", "ID", "NAME", "ADOPTED", "DEFAULT")
	for _, ep := range endpoints {
		defaultMark := ""
		if ep.ID == def.ID {
			defaultMark = "*"
		}
		fmt.Printf("%-36s %-32s %-10v %s\n", ep.ID, ep.FriendlyName, adopted[ep.ID], defaultMark)
	}

	if flagShowHistory && cfg.EventLogPath != "" {
		log, err := eventlog.Open(cfg.EventLogPath)
		if err != nil {
			return err
		}
		defer log.Close()
		entries, err := log.Recent(context.Background(), 20)
		if err != nil {
			return err
		}
		fmt.Println("\nrecent device events:")
		for _, e := range entries {
			fmt.Printf("  %s  %-16s %s\n", humanize.Time(e.ObservedAt), e.Kind, e.EndpointID)
		}
	}
	return nil
}
