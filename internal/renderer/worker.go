// Package renderer implements the Renderer Worker (spec.md §4.3): one
// goroutine per adopted output endpoint that reads the distribution ring,
// applies drift correction and master volume, and submits frames to its
// endpoint.
package renderer

import (
	"context"
	"encoding/binary"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"airwave/internal/audiohost"
	"airwave/internal/clocksync"
	"airwave/internal/ringbuf"
	"airwave/internal/volume"
)

const (
	prerollMs       = 20
	pausedSilenceMs = 10
	pausedSleep     = 50 * time.Millisecond
	emptySilenceMs  = 10
	emptySleep      = 5 * time.Millisecond
	submitWait      = 50 * time.Millisecond
	errorBackoff    = 10 * time.Millisecond
	stagingMs       = 20
)

// LifecycleState mirrors the Renderer Control Block's state enum
// (spec.md §3, "Renderer Control Block").
type LifecycleState int

const (
	StateIdle LifecycleState = iota
	StateRunning
	StateError
	StateReconnecting
)

func (s LifecycleState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateError:
		return "error"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// Worker renders one endpoint's share of the distribution ring.
type Worker struct {
	endpointID string
	ring       *ringbuf.Ring
	stream     audiohost.RenderStream
	sync       *clocksync.Sync
	corrector  *DriftCorrector
	logger     *log.Logger
	isMaster   bool

	paused    atomic.Bool
	volume    *volume.Cell // shared Master Volume Cell published by the Volume Follower
	state     atomic.Int32
	readerPos uint64
	lastErr   atomic.Value // error
}

// NewWorker builds a Renderer Worker for one adopted endpoint. cell is the
// shared Master Volume Cell published by the Volume Follower; sync is the
// shared Clock Sync instance; isMaster marks this endpoint as the first
// adopted (spec.md §4.4), which publishes its position as the master clock
// rather than as a corrected slave.
func NewWorker(endpointID string, ring *ringbuf.Ring, stream audiohost.RenderStream, sync *clocksync.Sync, cell *volume.Cell, isMaster bool, policy NegativeDriftPolicy, logger *log.Logger) (*Worker, error) {
	if logger == nil {
		logger = log.Default()
	}
	corrector, err := NewDriftCorrector(stream.Format(), policy)
	if err != nil {
		return nil, err
	}
	w := &Worker{
		endpointID: endpointID,
		ring:       ring,
		stream:     stream,
		sync:       sync,
		corrector:  corrector,
		logger:     logger,
		isMaster:   isMaster,
		volume:     cell,
	}
	w.readerPos = ring.WriterPosition()
	return w, nil
}

// SetPaused toggles the paused flag (spec.md §5, pause_renderer/resume_renderer).
func (w *Worker) SetPaused(paused bool) { w.paused.Store(paused) }

// Paused reports the current paused flag.
func (w *Worker) Paused() bool { return w.paused.Load() }

// State reports the renderer's current lifecycle state.
func (w *Worker) State() LifecycleState { return LifecycleState(w.state.Load()) }

func (w *Worker) setState(s LifecycleState) { w.state.Store(int32(s)) }

// Run drives the renderer loop until ctx is canceled. It pre-rolls silence,
// then loops reading the ring, correcting drift, scaling volume, and
// submitting to the endpoint, per spec.md §4.3.
func (w *Worker) Run(ctx context.Context) {
	defer w.stream.Close()
	defer w.setState(StateIdle)

	format := w.stream.Format()
	preroll := format.BufferSizeForMillis(prerollMs)
	_ = w.stream.SubmitSilence(format.BytesToFrames(int(preroll)))

	staging := make([]byte, format.BufferSizeForMillis(stagingMs))
	w.setState(StateRunning)

	for {
		if ctx.Err() != nil {
			return
		}

		if w.paused.Load() {
			w.pushSilence(format, pausedSilenceMs)
			w.readerPos = w.ring.CatchUp()
			if !sleepCtx(ctx, pausedSleep) {
				return
			}
			continue
		}

		if w.ring.IsLagging(w.readerPos) {
			w.readerPos = w.ring.CatchUp()
			w.logger.Warn("renderer: overrun, caught up to writer", "endpoint", w.endpointID)
		}

		avail := w.ring.Available(w.readerPos)
		if avail == 0 {
			w.pushSilence(format, emptySilenceMs)
			if !sleepCtx(ctx, emptySleep) {
				return
			}
			continue
		}

		want := uint64(len(staging))
		if avail < want {
			want = avail
		}
		n, newPos := w.ring.ReadInto(w.readerPos, staging[:want])
		w.readerPos = newPos
		slice := staging[:n]

		if !w.isMaster {
			correction := w.sync.GetCorrection(w.endpointID)
			slice = w.corrector.Apply(slice, correction)
		}

		slice = applyVolume(slice, w.volume.Load(), format)

		accepted, err := w.stream.Submit(ctx, slice, submitWait)
		if err != nil {
			w.lastErr.Store(err)
			w.setState(StateError)
			w.logger.Warn("renderer: submit failed", "endpoint", w.endpointID, "err", err)
			if !sleepCtx(ctx, errorBackoff) {
				return
			}
			w.setState(StateRunning)
			continue
		}
		_ = accepted

		if pos, err := w.stream.Position(); err == nil {
			if w.isMaster {
				w.sync.UpdateMaster(pos)
			} else {
				w.sync.UpdateSlave(w.endpointID, pos)
			}
		}
	}
}

func (w *Worker) pushSilence(format audiohost.Format, ms uint32) {
	frames := format.BytesToFrames(int(format.BufferSizeForMillis(ms)))
	_ = w.stream.SubmitSilence(frames)
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// applyVolume multiplies every sample in slice by scalar in place, skipping
// the loop entirely when scalar is 1 (spec.md §4.3 step 6). Operates on
// 32-bit signed little-endian samples, the format malgo_host.go opens
// streams with.
func applyVolume(slice []byte, scalar float64, format audiohost.Format) []byte {
	if scalar == 1.0 || format.BitsPerSample != 32 {
		return slice
	}
	for i := 0; i+4 <= len(slice); i += 4 {
		sample := int32(binary.LittleEndian.Uint32(slice[i : i+4]))
		scaled := float64(sample) * scalar
		binary.LittleEndian.PutUint32(slice[i:i+4], uint32(int32(scaled)))
	}
	return slice
}
