package devicemonitor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"airwave/internal/audiohost"
)

type fakeHost struct {
	events chan audiohost.DeviceEvent
}

func (h *fakeHost) EnumerateRenderEndpoints() ([]audiohost.EndpointInfo, error) { return nil, nil }
func (h *fakeHost) DefaultRenderEndpoint() (audiohost.EndpointInfo, error)      { return audiohost.EndpointInfo{}, nil }
func (h *fakeHost) OpenLoopbackCapture(string) (audiohost.CaptureStream, error) { return nil, nil }
func (h *fakeHost) OpenRenderStream(string, uint32) (audiohost.RenderStream, error) { return nil, nil }
func (h *fakeHost) QueryDevicePeriod(string) (audiohost.DevicePeriod, error)        { return audiohost.DevicePeriod{}, nil }
func (h *fakeHost) MasterVolume(string) (float64, bool, error)                      { return 1, false, nil }
func (h *fakeHost) Subscribe(ctx context.Context) (<-chan audiohost.DeviceEvent, error) {
	return h.events, nil
}

type fakeCapture struct{ reinitCalls []string }

func (f *fakeCapture) Reinitialize(id string) { f.reinitCalls = append(f.reinitCalls, id) }

type fakeVolume struct{ rebindCalls []string }

func (f *fakeVolume) Rebind(id string) { f.rebindCalls = append(f.rebindCalls, id) }

type fakeRenderers struct{ paused map[string]bool }

func (f *fakeRenderers) SetPaused(id string, paused bool) {
	if f.paused == nil {
		f.paused = map[string]bool{}
	}
	f.paused[id] = paused
}

func TestDefaultChangedTriggersReinitRebindAndPause(t *testing.T) {
	host := &fakeHost{events: make(chan audiohost.DeviceEvent, 4)}
	capture := &fakeCapture{}
	vol := &fakeVolume{}
	renderers := &fakeRenderers{}

	m := New(host, capture, vol, renderers, "", nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx, "ep1")

	host.events <- audiohost.DeviceEvent{Kind: audiohost.DefaultChanged, Flow: audiohost.FlowRender, ID: "ep2"}

	require.Eventually(t, func() bool { return len(capture.reinitCalls) == 1 }, time.Second, 2*time.Millisecond)
	require.Eventually(t, func() bool { return len(vol.rebindCalls) == 1 }, time.Second, 2*time.Millisecond)
	require.Eventually(t, func() bool { return renderers.paused["ep2"] }, time.Second, 2*time.Millisecond)
	require.Equal(t, "ep2", m.CurrentDefault())
}

func TestNonDefaultChangedEventsAreIgnoredForReinit(t *testing.T) {
	host := &fakeHost{events: make(chan audiohost.DeviceEvent, 4)}
	capture := &fakeCapture{}
	vol := &fakeVolume{}

	m := New(host, capture, vol, nil, "", nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx, "ep1")

	host.events <- audiohost.DeviceEvent{Kind: audiohost.StateChanged, ID: "ep3"}
	time.Sleep(20 * time.Millisecond)

	require.Empty(t, capture.reinitCalls)
	require.Empty(t, vol.rebindCalls)
}

func TestSourceOverrideSuppressesCaptureReinitButStillRebindsVolume(t *testing.T) {
	host := &fakeHost{events: make(chan audiohost.DeviceEvent, 4)}
	capture := &fakeCapture{}
	vol := &fakeVolume{}
	renderers := &fakeRenderers{}

	m := New(host, capture, vol, renderers, "pinned-source", nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx, "ep1")

	host.events <- audiohost.DeviceEvent{Kind: audiohost.DefaultChanged, Flow: audiohost.FlowRender, ID: "ep2"}

	require.Eventually(t, func() bool { return len(vol.rebindCalls) == 1 }, time.Second, 2*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	require.Empty(t, capture.reinitCalls)
}
