// Package audiohost abstracts the operations spec.md §6 requires of the
// underlying OS audio API (WASAPI loopback in the reference implementation)
// so the pipeline in internal/engine never talks to a concrete backend
// directly. internal/audiohost/malgo_host.go wires this interface to
// github.com/gen2brain/malgo (miniaudio bindings), the same library the
// teacher uses for its own WASAPI loopback recorder.
package audiohost

import (
	"context"
	"errors"
	"time"
)

// Format describes an immutable PCM stream format. Format transitions force
// re-initialization of the capture session (spec.md §3).
type Format struct {
	SampleRate    uint32
	Channels      uint32
	BitsPerSample uint32
	BlockAlign    uint32 // bytes per frame (all channels)
}

// BytesToFrames converts a byte count to a frame count using BlockAlign.
func (f Format) BytesToFrames(n int) uint32 {
	if f.BlockAlign == 0 {
		return 0
	}
	return uint32(n) / f.BlockAlign
}

// FramesToBytes converts a frame count to a byte count using BlockAlign.
func (f Format) FramesToBytes(frames uint32) int {
	return int(frames * f.BlockAlign)
}

// BufferSizeForMillis returns the byte size needed to hold the given
// duration of audio at this format, used to size the distribution ring.
func (f Format) BufferSizeForMillis(ms uint32) uint64 {
	bytesPerSec := uint64(f.SampleRate) * uint64(f.BlockAlign)
	return bytesPerSec * uint64(ms) / 1000
}

// EndpointInfo identifies one addressable audio output device.
type EndpointInfo struct {
	ID           string
	FriendlyName string
}

// FrameBatch is a claim on a contiguous span of captured PCM. The claim must
// be released on every exit path (spec.md §9, "Scoped acquisition"); Release
// is idempotent and safe to call multiple times.
type FrameBatch struct {
	Data            []byte
	Frames          uint32
	Silence         bool
	DevicePosition  uint64
	PresentedAt     time.Time
	release         func()
	released        bool
}

// Release returns the claim on the host's capture buffer. Safe to call more
// than once and safe to call on the zero value.
func (b *FrameBatch) Release() {
	if b.released || b.release == nil {
		return
	}
	b.released = true
	b.release()
}

// DeviceEventKind enumerates the notification kinds spec.md §4.5 names.
type DeviceEventKind int

const (
	DeviceAdded DeviceEventKind = iota
	DeviceRemoved
	DefaultChanged
	StateChanged
	PropertyChanged
)

func (k DeviceEventKind) String() string {
	switch k {
	case DeviceAdded:
		return "added"
	case DeviceRemoved:
		return "removed"
	case DefaultChanged:
		return "default_changed"
	case StateChanged:
		return "state_changed"
	case PropertyChanged:
		return "property_changed"
	default:
		return "unknown"
	}
}

// Flow distinguishes render (output) from capture (input) endpoints in a
// DefaultChanged notification.
type Flow int

const (
	FlowRender Flow = iota
	FlowCapture
)

// DeviceEvent is one notification delivered by Subscribe.
type DeviceEvent struct {
	Kind     DeviceEventKind
	ID       string
	Flow     Flow
	NewState string
}

// DevicePeriod reports a device's minimum and default period, expressed in
// 100-ns ticks, used for latency classification (spec.md §6).
type DevicePeriod struct {
	MinPeriod100ns     int64
	DefaultPeriod100ns int64
}

var (
	// ErrNoDefaultEndpoint is returned when the host has no default render
	// endpoint (e.g. all outputs disabled).
	ErrNoDefaultEndpoint = errors.New("audiohost: no default render endpoint")
	// ErrEndpointNotFound is returned when an endpoint id no longer exists.
	ErrEndpointNotFound = errors.New("audiohost: endpoint not found")
	// ErrStreamClosed is returned by operations on a closed stream.
	ErrStreamClosed = errors.New("audiohost: stream closed")
)

// CaptureStream is an open loopback capture session against one endpoint.
type CaptureStream interface {
	Format() Format
	// Frames delivers claimed batches as the host produces them. The
	// channel is closed when the stream stops or encounters a fatal error;
	// Err returns the reason.
	Frames() <-chan FrameBatch
	Err() error
	Close() error
}

// RenderStream is an open render session against one endpoint.
type RenderStream interface {
	Format() Format
	BufferFrames() uint32
	// Submit blocks up to timeout waiting for buffer space, then writes as
	// many frames from data as fit and reports how many were accepted.
	Submit(ctx context.Context, data []byte, timeout time.Duration) (framesAccepted uint32, err error)
	// SubmitSilence pushes up to the given number of frames of silence,
	// used to keep the endpoint fed while paused or underrun.
	SubmitSilence(frames uint32) error
	// Position reports the endpoint's current playback position in
	// frames, used by Clock Sync.
	Position() (uint64, error)
	Close() error
}

// Host is the abstract audio host contract spec.md §6 requires.
type Host interface {
	EnumerateRenderEndpoints() ([]EndpointInfo, error)
	DefaultRenderEndpoint() (EndpointInfo, error)
	OpenLoopbackCapture(endpointID string) (CaptureStream, error)
	OpenRenderStream(endpointID string, requestedBufferMs uint32) (RenderStream, error)
	QueryDevicePeriod(endpointID string) (DevicePeriod, error)
	// MasterVolume returns the effective (scalar, muted) state of an
	// endpoint's master volume.
	MasterVolume(endpointID string) (scalar float64, muted bool, err error)
	// Subscribe delivers device notifications until ctx is done.
	Subscribe(ctx context.Context) (<-chan DeviceEvent, error)
}
