package capture

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"airwave/internal/audiohost"
	"airwave/internal/ringbuf"
)

type fakeStream struct {
	frames chan audiohost.FrameBatch
	err    error
	closed bool
}

func newFakeStream() *fakeStream {
	return &fakeStream{frames: make(chan audiohost.FrameBatch, 8)}
}

func (f *fakeStream) Format() audiohost.Format            { return audiohost.Format{SampleRate: 48000, Channels: 2, BitsPerSample: 32, BlockAlign: 8} }
func (f *fakeStream) Frames() <-chan audiohost.FrameBatch { return f.frames }
func (f *fakeStream) Err() error                          { return f.err }
func (f *fakeStream) Close() error                         { f.closed = true; return nil }

type fakeHost struct {
	streams   chan *fakeStream
	openCalls []string
}

func (h *fakeHost) EnumerateRenderEndpoints() ([]audiohost.EndpointInfo, error) { return nil, nil }
func (h *fakeHost) DefaultRenderEndpoint() (audiohost.EndpointInfo, error)      { return audiohost.EndpointInfo{}, nil }
func (h *fakeHost) OpenLoopbackCapture(endpointID string) (audiohost.CaptureStream, error) {
	h.openCalls = append(h.openCalls, endpointID)
	return <-h.streams, nil
}
func (h *fakeHost) OpenRenderStream(string, uint32) (audiohost.RenderStream, error) { return nil, nil }
func (h *fakeHost) QueryDevicePeriod(string) (audiohost.DevicePeriod, error)        { return audiohost.DevicePeriod{}, nil }
func (h *fakeHost) MasterVolume(string) (float64, bool, error)                      { return 1, false, nil }
func (h *fakeHost) Subscribe(ctx context.Context) (<-chan audiohost.DeviceEvent, error) {
	return make(chan audiohost.DeviceEvent), nil
}

func TestWorkerWritesFramesToRing(t *testing.T) {
	ring := ringbuf.New(1024)
	host := &fakeHost{streams: make(chan *fakeStream, 2)}
	stream := newFakeStream()
	host.streams <- stream

	w := New(host, ring, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx, "default")

	require.Eventually(t, func() bool { return len(host.openCalls) == 1 }, time.Second, time.Millisecond)

	stream.frames <- audiohost.FrameBatch{Data: []byte{1, 2, 3, 4}, Frames: 1}
	require.Eventually(t, func() bool { return ring.WriterPosition() == 4 }, time.Second, time.Millisecond)
}

func TestReinitializeReopensAgainstNewEndpoint(t *testing.T) {
	ring := ringbuf.New(1024)
	host := &fakeHost{streams: make(chan *fakeStream, 2)}
	first := newFakeStream()
	second := newFakeStream()
	host.streams <- first
	host.streams <- second

	w := New(host, ring, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx, "ep1")

	require.Eventually(t, func() bool { return len(host.openCalls) == 1 }, time.Second, time.Millisecond)
	w.Reinitialize("ep2")

	require.Eventually(t, func() bool { return len(host.openCalls) == 2 }, time.Second, time.Millisecond)
	assert.Equal(t, "ep2", host.openCalls[1])
	assert.True(t, first.closed)
}
