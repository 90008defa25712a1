// Package devicemonitor implements the Device Monitor (spec.md §4.5): it
// consumes the audio host's device-notification stream and, on a
// DefaultChanged render event, reinitializes the Capture Worker, rebinds
// the Volume Follower, and pauses the renderer that now equals the new
// default (to avoid echoing the host's own mix back into itself).
package devicemonitor

import (
	"context"
	"time"

	"github.com/bep/debounce"
	"github.com/charmbracelet/log"

	"airwave/internal/audiohost"
)

// CaptureReinitializer is the subset of capture.Worker the monitor needs.
type CaptureReinitializer interface {
	Reinitialize(endpointID string)
}

// VolumeRebinder is the subset of volume.Follower the monitor needs.
type VolumeRebinder interface {
	Rebind(endpointID string)
}

// RendererSet lets the monitor pause the renderer matching the new default,
// satisfied by internal/engine's renderer registry.
type RendererSet interface {
	SetPaused(endpointID string, paused bool)
}

// Sink receives every device event the monitor observes, for external
// consumers (event-log recording, default-change notification).
type Sink func(audiohost.DeviceEvent)

// Monitor drives the device-topology side of the pipeline.
type Monitor struct {
	host     audiohost.Host
	capture  CaptureReinitializer
	volume   VolumeRebinder
	renderer RendererSet
	logger   *log.Logger
	sink     Sink

	currentDefault string

	// sourceOverride is the operator-pinned capture source (spec.md §6,
	// source_device_id). When set, DefaultChanged never reinitializes
	// capture against the new default — only the volume/pause side reacts.
	sourceOverride string

	// debounced coalesces bursts of notifications the host may deliver for
	// a single physical device change (e.g. a format-renegotiation flurry
	// around a default switch) into one reinit pass.
	debounced func(func())
}

// New builds a Device Monitor. sink may be nil if no external consumer
// needs raw events. sourceOverride pins the Capture Worker's source and
// suppresses reinitialize-on-DefaultChanged when non-empty.
func New(host audiohost.Host, capture CaptureReinitializer, volume VolumeRebinder, renderer RendererSet, sourceOverride string, sink Sink, logger *log.Logger) *Monitor {
	if logger == nil {
		logger = log.Default()
	}
	return &Monitor{
		host:           host,
		capture:        capture,
		volume:         volume,
		renderer:       renderer,
		sourceOverride: sourceOverride,
		logger:         logger,
		sink:           sink,
		debounced:      debounce.New(150 * time.Millisecond),
	}
}

// Run subscribes to the host's device events and processes them until ctx
// is canceled.
func (m *Monitor) Run(ctx context.Context, initialDefaultID string) error {
	m.currentDefault = initialDefaultID
	events, err := m.host.Subscribe(ctx)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			m.handle(ev)
		}
	}
}

func (m *Monitor) handle(ev audiohost.DeviceEvent) {
	if m.sink != nil {
		m.sink(ev)
	}

	if ev.Kind != audiohost.DefaultChanged || ev.Flow != audiohost.FlowRender {
		return
	}
	m.currentDefault = ev.ID

	m.debounced(func() {
		m.logger.Info("devicemonitor: default render endpoint changed", "id", ev.ID)
		if m.sourceOverride == "" {
			m.capture.Reinitialize(ev.ID)
		}
		m.volume.Rebind(ev.ID)
		if m.renderer != nil {
			m.renderer.SetPaused(ev.ID, true)
		}
	})
}

// CurrentDefault returns the most recently observed default render
// endpoint id.
func (m *Monitor) CurrentDefault() string { return m.currentDefault }
