package renderer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"airwave/internal/audiohost"
	"airwave/internal/clocksync"
	"airwave/internal/ringbuf"
	"airwave/internal/volume"
)

type fakeRenderStream struct {
	format       audiohost.Format
	submitted    [][]byte
	silenceCalls int
	position     uint64
}

func (f *fakeRenderStream) Format() audiohost.Format { return f.format }
func (f *fakeRenderStream) BufferFrames() uint32      { return 960 }
func (f *fakeRenderStream) Submit(ctx context.Context, data []byte, timeout time.Duration) (uint32, error) {
	cp := append([]byte{}, data...)
	f.submitted = append(f.submitted, cp)
	f.position += uint64(f.format.BytesToFrames(len(data)))
	return f.format.BytesToFrames(len(data)), nil
}
func (f *fakeRenderStream) SubmitSilence(frames uint32) error { f.silenceCalls++; return nil }
func (f *fakeRenderStream) Position() (uint64, error)         { return f.position, nil }
func (f *fakeRenderStream) Close() error                      { return nil }

func TestRendererPlaysBackWrittenData(t *testing.T) {
	ring := ringbuf.New(4096)
	format := audiohost.Format{SampleRate: 48000, Channels: 2, BitsPerSample: 32, BlockAlign: 8}
	stream := &fakeRenderStream{format: format}
	sync := clocksync.New(48000)
	sync.SetMaster("ep1")

	w, err := NewWorker("ep1", ring, stream, sync, volume.NewCell(), true, ResamplePolicy, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go w.Run(ctx)

	payload := make([]byte, 64)
	for i := range payload {
		payload[i] = byte(i + 1)
	}
	ring.Write(payload)

	require.Eventually(t, func() bool {
		for _, s := range stream.submitted {
			if len(s) > 0 {
				return true
			}
		}
		return false
	}, time.Second, time.Millisecond)

	cancel()
}

func TestRendererServicesPausedEndpointWithSilence(t *testing.T) {
	ring := ringbuf.New(4096)
	format := audiohost.Format{SampleRate: 48000, Channels: 2, BitsPerSample: 32, BlockAlign: 8}
	stream := &fakeRenderStream{format: format}
	sync := clocksync.New(48000)
	sync.SetMaster("master")
	sync.RegisterSlave("ep2")

	w, err := NewWorker("ep2", ring, stream, sync, volume.NewCell(), false, SilenceInsertPolicy, nil)
	require.NoError(t, err)
	w.SetPaused(true)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	require.Eventually(t, func() bool { return stream.silenceCalls > 0 }, time.Second, time.Millisecond)
}
