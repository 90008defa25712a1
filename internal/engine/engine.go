// Package engine is the Audio Engine facade (spec.md §4.7): lifecycle,
// worker wiring, and the narrow control surface (start/stop/pause/resume/
// status) a CLI or service collaborator drives the pipeline through.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/samber/lo"

	"airwave/internal/audiohost"
	"airwave/internal/capture"
	"airwave/internal/clocksync"
	"airwave/internal/config"
	"airwave/internal/devicematch"
	"airwave/internal/devicemonitor"
	"airwave/internal/eventlog"
	"airwave/internal/hardware"
	"airwave/internal/renderer"
	"airwave/internal/ringbuf"
	"airwave/internal/volume"
	"airwave/internal/wav"
)

// State is the engine's own lifecycle state, distinct from any one
// worker's state.
type State int

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

var (
	ErrAlreadyRunning  = errors.New("engine: already running")
	ErrNoTargets       = errors.New("engine: no target endpoints resolved")
	ErrNotAdopted      = errors.New("engine: endpoint not adopted")
	ErrNotRunning      = errors.New("engine: not running")
)

// DeviceStatus is one adopted endpoint's reported status (spec.md §6,
// "Status query").
type DeviceStatus struct {
	ID              string
	FriendlyName    string
	Enabled         bool
	Paused          bool
	IsSystemDefault bool

	// DriftMS is the endpoint's current smoothed clock drift against the
	// master renderer, in milliseconds. Zero (and meaningless) for the
	// master itself.
	DriftMS float64
}

// EventSink receives sideband events (spec.md §4.7, set_event_channel).
// Only DefaultDeviceChanged is currently defined.
type EventSink func(event string)

type adoptedRenderer struct {
	worker   *renderer.Worker
	info     audiohost.EndpointInfo
	cancel   context.CancelFunc
	done     <-chan struct{}
}

// Engine wires together the Capture Worker, Volume Follower, Device
// Monitor, and one Renderer Worker per adopted endpoint.
type Engine struct {
	host   audiohost.Host
	logger *log.Logger

	mu       sync.Mutex
	state    State
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	sink     EventSink

	ring      *ringbuf.Ring
	sync      *clocksync.Sync
	cell      *volume.Cell
	capture   *capture.Worker
	monitor   *devicemonitor.Monitor
	follower  *volume.Follower
	renderers map[string]*adoptedRenderer
	defaultID string
	sessionID string
	dumpWriter *wav.Writer
	eventLog   *eventlog.Log
}

// New builds an engine bound to a concrete audio host.
func New(host audiohost.Host, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.Default()
	}
	return &Engine{host: host, logger: logger, state: StateStopped}
}

// SetEventChannel registers sink for sideband notifications
// (spec.md §4.7, set_event_channel).
func (e *Engine) SetEventChannel(sink EventSink) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sink = sink
}

func (e *Engine) emit(event string) {
	e.mu.Lock()
	sink := e.sink
	e.mu.Unlock()
	if sink != nil {
		sink(event)
	}
}

// SetPaused adapts Engine to devicemonitor.RendererSet.
func (e *Engine) SetPaused(endpointID string, paused bool) {
	e.mu.Lock()
	r, ok := e.renderers[endpointID]
	e.mu.Unlock()
	if ok {
		r.worker.SetPaused(paused)
	}
}

// Start resolves target endpoints, allocates the ring, and spawns every
// worker (spec.md §4.7, start).
func (e *Engine) Start(ctx context.Context, cfg config.EngineConfig) error {
	e.mu.Lock()
	if e.state != StateStopped {
		e.mu.Unlock()
		return ErrAlreadyRunning
	}
	e.state = StateStarting
	e.mu.Unlock()

	endpoints, err := e.host.EnumerateRenderEndpoints()
	if err != nil {
		e.setStopped()
		return fmt.Errorf("engine: enumerate endpoints: %w", err)
	}

	matchEndpoints := lo.Map(endpoints, func(ep audiohost.EndpointInfo, _ int) devicematch.Endpoint {
		return devicematch.Endpoint{ID: ep.ID, FriendlyName: ep.FriendlyName}
	})
	resolved := devicematch.Resolve(matchEndpoints, devicematch.Config{
		DeviceIDs:     cfg.DeviceIDs,
		ExcludeIDs:    cfg.ExcludeIDs,
		UseAllDevices: cfg.UseAllDevices,
	})
	if len(resolved) == 0 {
		e.setStopped()
		return ErrNoTargets
	}
	byID := lo.KeyBy(endpoints, func(ep audiohost.EndpointInfo) string { return ep.ID })

	defaultEndpoint, err := e.host.DefaultRenderEndpoint()
	if err != nil {
		e.setStopped()
		return fmt.Errorf("engine: resolve default endpoint: %w", err)
	}

	// captureSourceID is the endpoint the Capture Worker loopback-captures
	// from: cfg.SourceDeviceID overrides the system default when set
	// (spec.md §6, "Optional capture source override").
	captureSourceID := cfg.SourceDeviceID
	if captureSourceID == "" {
		captureSourceID = defaultEndpoint.ID
	}

	period, err := e.host.QueryDevicePeriod(defaultEndpoint.ID)
	if err != nil {
		e.logger.Warn("engine: device period probe failed, using conservative default", "err", err)
	}
	caps := hardware.Probe(period)
	ringMs := caps.OptimalRingMs(len(resolved))
	captureFormat := audiohost.Format{SampleRate: 48000, Channels: 2, BitsPerSample: 32, BlockAlign: 8}
	ringBytes := captureFormat.BufferSizeForMillis(ringMs)

	sessionID := uuid.NewString()
	e.logger.Info("engine: starting capture session", "session_id", sessionID, "targets", len(resolved), "ring_ms", ringMs)

	runCtx, cancel := context.WithCancel(ctx)

	ring := ringbuf.New(ringBytes)
	syncState := clocksync.New(captureFormat.SampleRate)
	cell := volume.NewCell()

	captureWorker := capture.New(e.host, ring, e.logger)
	var dumpWriter *wav.Writer
	if cfg.DebugWavPath != "" {
		dumpWriter, err = wav.NewWriter(cfg.DebugWavPath, captureFormat.SampleRate, uint16(captureFormat.Channels), uint16(captureFormat.BitsPerSample))
		if err != nil {
			e.logger.Warn("engine: failed to open debug wav dump, continuing without it", "path", cfg.DebugWavPath, "err", err)
		} else {
			captureWorker.SetDebugSink(func(data []byte) { _, _ = dumpWriter.Write(data) })
		}
	}
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		captureWorker.Run(runCtx, captureSourceID)
	}()

	bufferMs := cfg.BufferMs
	if bufferMs == 0 {
		bufferMs = caps.OptimalBufferMs()
	}
	policy := policyFromName(cfg.NegativeDriftPolicy)
	paused := lo.SliceToMap(cfg.PausedDeviceIDs, func(id string) (string, bool) { return id, true })

	renderers := make(map[string]*adoptedRenderer, len(resolved))
	for i, ep := range resolved {
		info := byID[ep.ID]
		isMaster := i == 0
		if isMaster {
			syncState.SetMaster(ep.ID)
		} else {
			syncState.RegisterSlave(ep.ID)
		}

		stream, err := e.host.OpenRenderStream(ep.ID, bufferMs)
		if err != nil {
			e.logger.Error("engine: failed to open render stream, skipping endpoint", "endpoint", ep.ID, "err", err)
			continue
		}
		w, err := renderer.NewWorker(ep.ID, ring, stream, syncState, cell, isMaster, policy, e.logger)
		if err != nil {
			e.logger.Error("engine: failed to build renderer, skipping endpoint", "endpoint", ep.ID, "err", err)
			stream.Close()
			continue
		}
		if paused[ep.ID] {
			w.SetPaused(true)
		}

		rendererCtx, rendererCancel := context.WithCancel(runCtx)
		done := make(chan struct{})
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			defer close(done)
			w.Run(rendererCtx)
		}()

		renderers[ep.ID] = &adoptedRenderer{worker: w, info: info, cancel: rendererCancel, done: done}
	}
	if len(renderers) == 0 {
		cancel()
		e.setStopped()
		return ErrNoTargets
	}

	var eventLog *eventlog.Log
	if cfg.EventLogPath != "" {
		eventLog, err = eventlog.Open(cfg.EventLogPath)
		if err != nil {
			e.logger.Warn("engine: failed to open event log, continuing without history", "path", cfg.EventLogPath, "err", err)
			eventLog = nil
		}
	}

	pulseSource, pulseErr := volume.NewPulseSource()
	var volumeSource volume.Source
	if pulseErr == nil {
		volumeSource = pulseSource
	} else {
		e.logger.Debug("engine: pulseaudio dbus volume source unavailable, using host fallback", "err", pulseErr)
		volumeSource = hostVolumeSource{host: e.host}
	}
	follower := volume.NewFollower(volumeSource, cell, e.logger)
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		follower.Run(runCtx, defaultEndpoint.ID)
	}()

	monitor := devicemonitor.New(e.host, captureWorker, follower, e, cfg.SourceDeviceID, func(ev audiohost.DeviceEvent) {
		if eventLog != nil {
			if err := eventLog.Record(runCtx, ev); err != nil {
				e.logger.Warn("engine: failed to record device event", "kind", ev.Kind, "err", err)
			}
		}
		if ev.Kind == audiohost.DefaultChanged && ev.Flow == audiohost.FlowRender {
			e.mu.Lock()
			e.defaultID = ev.ID
			e.mu.Unlock()
			e.emit("DefaultDeviceChanged")
		}
	}, e.logger)
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		monitor.Run(runCtx, defaultEndpoint.ID)
	}()

	e.mu.Lock()
	e.ring = ring
	e.sync = syncState
	e.cell = cell
	e.capture = captureWorker
	e.monitor = monitor
	e.follower = follower
	e.renderers = renderers
	e.defaultID = defaultEndpoint.ID
	e.sessionID = sessionID
	e.dumpWriter = dumpWriter
	e.eventLog = eventLog
	e.cancel = cancel
	e.state = StateRunning
	e.mu.Unlock()

	return nil
}

func (e *Engine) setStopped() {
	e.mu.Lock()
	e.state = StateStopped
	e.mu.Unlock()
}

// Stop idempotently tears down every worker (spec.md §4.7, stop).
func (e *Engine) Stop() {
	e.mu.Lock()
	if e.state != StateRunning {
		e.mu.Unlock()
		return
	}
	e.state = StateStopping
	cancel := e.cancel
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	e.wg.Wait()

	e.mu.Lock()
	if e.dumpWriter != nil {
		_ = e.dumpWriter.Close()
		e.dumpWriter = nil
	}
	if e.eventLog != nil {
		_ = e.eventLog.Close()
		e.eventLog = nil
	}
	e.renderers = nil
	e.ring = nil
	e.sync = nil
	e.cell = nil
	e.capture = nil
	e.monitor = nil
	e.follower = nil
	e.state = StateStopped
	e.mu.Unlock()
}

// PauseRenderer sets the paused flag for an adopted endpoint.
func (e *Engine) PauseRenderer(id string) error { return e.setRendererPaused(id, true) }

// ResumeRenderer clears the paused flag for an adopted endpoint.
func (e *Engine) ResumeRenderer(id string) error { return e.setRendererPaused(id, false) }

func (e *Engine) setRendererPaused(id string, paused bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	r, ok := e.renderers[id]
	if !ok {
		return ErrNotAdopted
	}
	r.worker.SetPaused(paused)
	return nil
}

// GetDeviceStatuses returns the current status of every adopted endpoint
// (spec.md §6, "Status query").
func (e *Engine) GetDeviceStatuses() []DeviceStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]DeviceStatus, 0, len(e.renderers))
	for id, r := range e.renderers {
		driftMS, _ := e.sync.DriftMS(id)
		out = append(out, DeviceStatus{
			ID:              id,
			FriendlyName:    r.info.FriendlyName,
			Enabled:         true,
			Paused:          r.worker.Paused(),
			IsSystemDefault: id == e.defaultID,
			DriftMS:         driftMS,
		})
	}
	return out
}

// State reports the engine's current lifecycle state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func policyFromName(name string) renderer.NegativeDriftPolicy {
	switch name {
	case "silence":
		return renderer.SilenceInsertPolicy
	case "repeat":
		return renderer.SampleRepeatPolicy
	default:
		return renderer.ResamplePolicy
	}
}

// hostVolumeSource adapts audiohost.Host.MasterVolume to volume.Source as a
// fallback when no richer platform backend (e.g. PulseAudio D-Bus) is
// available.
type hostVolumeSource struct {
	host audiohost.Host
}

func (h hostVolumeSource) Query(endpointID string) (float64, bool, error) {
	return h.host.MasterVolume(endpointID)
}
