package audiohost

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gen2brain/malgo"
)

// MalgoHost implements Host on top of github.com/gen2brain/malgo (miniaudio
// bindings) — the same binding the teacher uses for its own WASAPI loopback
// recorder in internal/audio/loopback.go, generalized here to drive both
// loopback capture and N concurrent render streams from one context.
//
// True OS-level loopback (reading a render endpoint's mix back as capture)
// is a WASAPI-only miniaudio backend feature. On non-Windows hosts we fall
// back to opening the capture device whose name carries the host audio
// server's monitor-source convention (e.g. PulseAudio/PipeWire "*.monitor"
// sources), since that is the portable equivalent.
type MalgoHost struct {
	ctx    *malgo.AllocatedContext
	logger *log.Logger

	mu          sync.Mutex
	lastRender  []EndpointInfo
}

// NewMalgoHost initializes a miniaudio context shared by every capture and
// render stream this host opens.
func NewMalgoHost(logger *log.Logger) (*MalgoHost, error) {
	if logger == nil {
		logger = log.Default()
	}
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		logger.Debug("malgo", "message", strings.TrimSpace(message))
	})
	if err != nil {
		return nil, fmt.Errorf("audiohost: init malgo context: %w", err)
	}
	return &MalgoHost{ctx: ctx, logger: logger}, nil
}

// Close releases the underlying miniaudio context. Call only after every
// stream opened from this host has been closed.
func (h *MalgoHost) Close() error {
	if h.ctx == nil {
		return nil
	}
	h.ctx.Uninit()
	h.ctx = nil
	return nil
}

func (h *MalgoHost) EnumerateRenderEndpoints() ([]EndpointInfo, error) {
	infos, err := h.ctx.Devices(malgo.Playback)
	if err != nil {
		return nil, fmt.Errorf("audiohost: enumerate playback devices: %w", err)
	}
	out := make([]EndpointInfo, 0, len(infos))
	for i := range infos {
		out = append(out, EndpointInfo{
			ID:           infos[i].ID.String(),
			FriendlyName: infos[i].Name(),
		})
	}
	h.mu.Lock()
	h.lastRender = out
	h.mu.Unlock()
	return out, nil
}

func (h *MalgoHost) DefaultRenderEndpoint() (EndpointInfo, error) {
	infos, err := h.ctx.Devices(malgo.Playback)
	if err != nil {
		return EndpointInfo{}, fmt.Errorf("audiohost: enumerate playback devices: %w", err)
	}
	for i := range infos {
		if infos[i].IsDefault != 0 {
			return EndpointInfo{ID: infos[i].ID.String(), FriendlyName: infos[i].Name()}, nil
		}
	}
	if len(infos) > 0 {
		return EndpointInfo{ID: infos[0].ID.String(), FriendlyName: infos[0].Name()}, nil
	}
	return EndpointInfo{}, ErrNoDefaultEndpoint
}

func (h *MalgoHost) QueryDevicePeriod(endpointID string) (DevicePeriod, error) {
	// miniaudio does not expose IAudioClient::GetDevicePeriod through the Go
	// bindings; a conservative standard-class period is reported and actual
	// buffer sizing falls back to the Standard latency class (see
	// internal/hardware), which spec.md already treats as the safe default.
	return DevicePeriod{MinPeriod100ns: 100_000, DefaultPeriod100ns: 100_000}, nil
}

func (h *MalgoHost) MasterVolume(endpointID string) (float64, bool, error) {
	// miniaudio has no cross-platform master-volume/mute query; callers
	// should prefer a platform volume source (internal/volume) and only
	// fall back to this for a neutral reading.
	return 1.0, false, nil
}

// OpenLoopbackCapture opens a capture stream that mirrors render output. On
// Windows it opens miniaudio's default loopback device and endpointID is not
// used. Elsewhere a non-empty endpointID selects the first monitor source
// (see resolveMonitorSource), falling back to the default capture device;
// the monitor source is not matched to endpointID.
func (h *MalgoHost) OpenLoopbackCapture(endpointID string) (CaptureStream, error) {
	deviceConfig := malgo.DefaultDeviceConfig(h.captureDeviceType())
	deviceConfig.Capture.Format = malgo.FormatS32
	deviceConfig.Capture.Channels = 2
	deviceConfig.SampleRate = 48000

	if runtime.GOOS != "windows" && endpointID != "" {
		if id, err := h.resolveMonitorSource(endpointID); err == nil {
			deviceConfig.Capture.DeviceID = id
		}
	}

	stream := &malgoCaptureStream{
		format: Format{SampleRate: 48000, Channels: 2, BitsPerSample: 32, BlockAlign: 8},
		frames: make(chan FrameBatch, 64),
		done:   make(chan struct{}),
	}

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, frameCount uint32) {
			data := make([]byte, len(input))
			silence := true
			for _, b := range input {
				if b != 0 {
					silence = false
					break
				}
			}
			copy(data, input)
			batch := FrameBatch{
				Data:    data,
				Frames:  frameCount,
				Silence: silence,
				PresentedAt: time.Now(),
				release: func() {},
			}
			select {
			case stream.frames <- batch:
			default:
				// Ring-consumer side is slow; drop rather than block the
				// audio callback thread (spec.md §4.2: never blocks).
			}
		},
		Stop: func() {
			stream.setErr(ErrStreamClosed)
			close(stream.done)
		},
	}

	dev, err := malgo.InitDevice(h.ctx.Context, deviceConfig, callbacks)
	if err != nil {
		return nil, fmt.Errorf("audiohost: init capture device: %w", err)
	}
	if err := dev.Start(); err != nil {
		dev.Uninit()
		return nil, fmt.Errorf("audiohost: start capture device: %w", err)
	}
	stream.device = dev
	return stream, nil
}

func (h *MalgoHost) captureDeviceType() malgo.DeviceType {
	if runtime.GOOS == "windows" {
		return malgo.Loopback
	}
	return malgo.Capture
}

// resolveMonitorSource returns the device id pointer of the first capture
// device whose name contains "monitor" (PulseAudio/PipeWire convention), for
// use in a DeviceConfig. renderEndpointID is only used in the error message;
// the monitor source found is not checked to belong to that endpoint.
func (h *MalgoHost) resolveMonitorSource(renderEndpointID string) (*malgo.DeviceID, error) {
	infos, err := h.ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, err
	}
	for i := range infos {
		name := strings.ToLower(infos[i].Name())
		if strings.Contains(name, "monitor") {
			return infos[i].ID.Pointer(), nil
		}
	}
	return nil, fmt.Errorf("audiohost: no monitor source found for %q", renderEndpointID)
}

func (h *MalgoHost) OpenRenderStream(endpointID string, requestedBufferMs uint32) (RenderStream, error) {
	infos, err := h.ctx.Devices(malgo.Playback)
	if err != nil {
		return nil, fmt.Errorf("audiohost: enumerate playback devices: %w", err)
	}
	var target *malgo.DeviceInfo
	for i := range infos {
		if infos[i].ID.String() == endpointID {
			target = &infos[i]
			break
		}
	}
	if target == nil {
		return nil, ErrEndpointNotFound
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = malgo.FormatS32
	deviceConfig.Playback.Channels = 2
	deviceConfig.SampleRate = 48000
	deviceConfig.Playback.DeviceID = target.ID.Pointer()
	if requestedBufferMs > 0 {
		deviceConfig.PeriodSizeInMilliseconds = requestedBufferMs
	}

	stream := &malgoRenderStream{
		format:   Format{SampleRate: 48000, Channels: 2, BitsPerSample: 32, BlockAlign: 8},
		pending:  make(chan []byte, 1),
		accepted: make(chan uint32, 1),
	}

	callbacks := malgo.DeviceCallbacks{
		Data: func(output, _ []byte, frameCount uint32) {
			select {
			case data := <-stream.pending:
				n := copy(output, data)
				frames := stream.format.BytesToFrames(n)
				select {
				case stream.accepted <- frames:
				default:
				}
			default:
				// Nothing submitted this period; leave output silent.
			}
		},
	}

	dev, err := malgo.InitDevice(h.ctx.Context, deviceConfig, callbacks)
	if err != nil {
		return nil, fmt.Errorf("audiohost: init render device %q: %w", endpointID, err)
	}
	if err := dev.Start(); err != nil {
		dev.Uninit()
		return nil, fmt.Errorf("audiohost: start render device %q: %w", endpointID, err)
	}
	stream.device = dev
	if bf, err := deviceBufferFrames(dev); err == nil {
		stream.bufferFrames = bf
	}
	return stream, nil
}

// deviceBufferFrames isolates the (version-sensitive) call to fetch a
// malgo.Device's configured buffer size in frames.
func deviceBufferFrames(dev *malgo.Device) (uint32, error) {
	return dev.BufferSize()
}

// Subscribe synthesizes device notifications by polling enumeration and
// the default endpoint every second, since miniaudio has no native
// hot-plug/default-change notification surface equivalent to
// IMMNotificationClient (spec.md §9, "Open question: format change
// mid-stream" invites an analogous poll-based choice here).
func (h *MalgoHost) Subscribe(ctx context.Context) (<-chan DeviceEvent, error) {
	out := make(chan DeviceEvent, 16)
	go func() {
		defer close(out)
		ticker := time.NewTicker(1 * time.Second)
		defer ticker.Stop()

		knownIDs := map[string]bool{}
		var currentDefault string
		if def, err := h.DefaultRenderEndpoint(); err == nil {
			currentDefault = def.ID
		}
		if eps, err := h.EnumerateRenderEndpoints(); err == nil {
			for _, ep := range eps {
				knownIDs[ep.ID] = true
			}
		}

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				eps, err := h.EnumerateRenderEndpoints()
				if err != nil {
					continue
				}
				seen := make(map[string]bool, len(eps))
				for _, ep := range eps {
					seen[ep.ID] = true
					if !knownIDs[ep.ID] {
						emit(ctx, out, DeviceEvent{Kind: DeviceAdded, ID: ep.ID, Flow: FlowRender})
					}
				}
				for id := range knownIDs {
					if !seen[id] {
						emit(ctx, out, DeviceEvent{Kind: DeviceRemoved, ID: id, Flow: FlowRender})
					}
				}
				knownIDs = seen

				if def, err := h.DefaultRenderEndpoint(); err == nil && def.ID != currentDefault {
					currentDefault = def.ID
					emit(ctx, out, DeviceEvent{Kind: DefaultChanged, ID: def.ID, Flow: FlowRender})
				}
			}
		}
	}()
	return out, nil
}

func emit(ctx context.Context, out chan<- DeviceEvent, ev DeviceEvent) {
	select {
	case out <- ev:
	case <-ctx.Done():
	}
}

type malgoCaptureStream struct {
	format Format
	frames chan FrameBatch
	done   chan struct{}
	device *malgo.Device

	mu  sync.Mutex
	err error
}

func (s *malgoCaptureStream) Format() Format             { return s.format }
func (s *malgoCaptureStream) Frames() <-chan FrameBatch  { return s.frames }

func (s *malgoCaptureStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *malgoCaptureStream) setErr(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

func (s *malgoCaptureStream) Close() error {
	if s.device != nil {
		_ = s.device.Stop()
		s.device.Uninit()
		s.device = nil
	}
	return nil
}

type malgoRenderStream struct {
	format       Format
	bufferFrames uint32
	device       *malgo.Device

	pending  chan []byte
	accepted chan uint32
}

func (s *malgoRenderStream) Format() Format         { return s.format }
func (s *malgoRenderStream) BufferFrames() uint32   { return s.bufferFrames }

func (s *malgoRenderStream) Submit(ctx context.Context, data []byte, timeout time.Duration) (uint32, error) {
	select {
	case s.pending <- data:
	case <-time.After(timeout):
		return 0, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
	select {
	case n := <-s.accepted:
		return n, nil
	case <-time.After(timeout):
		return 0, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (s *malgoRenderStream) SubmitSilence(frames uint32) error {
	silence := make([]byte, s.format.FramesToBytes(frames))
	select {
	case s.pending <- silence:
	default:
	}
	return nil
}

func (s *malgoRenderStream) Position() (uint64, error) {
	padding, err := s.device.PlaybackPadding()
	if err != nil {
		return 0, err
	}
	return uint64(padding), nil
}

func (s *malgoRenderStream) Close() error {
	if s.device != nil {
		_ = s.device.Stop()
		s.device.Uninit()
		s.device = nil
	}
	return nil
}
