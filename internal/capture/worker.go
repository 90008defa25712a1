// Package capture implements the Capture Worker (spec.md §4.2): a dedicated
// goroutine that drives loopback capture from the current default output
// endpoint and writes frames into the distribution ring, reinitializing
// whenever the Device Monitor reports a new default.
//
// Grounded on abra5umente-blackbox/internal/audio/loopback.go's Recorder
// lifecycle (Start/Stop/RunUntil over a malgo device), generalized from a
// fixed default-device loopback session into one that can be torn down and
// reopened against a changing endpoint without exiting its host goroutine.
package capture

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/log"

	"airwave/internal/audiohost"
	"airwave/internal/ringbuf"
)

// State is the Capture Worker's lifecycle state (spec.md §4.2).
type State int

const (
	StateOpening State = iota
	StateRunning
	StateReinitializing
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateOpening:
		return "opening"
	case StateRunning:
		return "running"
	case StateReinitializing:
		return "reinitializing"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// settleDelay is how long the worker waits after stopping a stream before
// opening the next one, to let the host settle (spec.md §4.2).
const settleDelay = 100 * time.Millisecond

// backoffDelay is how long the worker waits after a transient open/start
// failure before retrying.
const backoffDelay = 500 * time.Millisecond

// command is a sideband instruction from the Device Monitor.
type command struct {
	reinitialize bool
	endpointID   string
}

// Worker runs loopback capture against the current default output and
// writes into ring, reopening whenever told to.
type Worker struct {
	host   audiohost.Host
	ring   *ringbuf.Ring
	logger *log.Logger

	commands chan command
	state    chan State // buffered state observability stream, drained by the caller; full-buffer updates are dropped
	stopped  chan struct{}

	debugSink func([]byte)
}

// SetDebugSink registers a callback that receives a copy of every batch
// written to the ring, for the `airwave start --dump-wav` diagnostic tap.
// Pass nil to disable.
func (w *Worker) SetDebugSink(sink func([]byte)) {
	w.debugSink = sink
}

// New creates a Capture Worker bound to host and ring. The initial endpoint
// to open against is passed to Run.
func New(host audiohost.Host, ring *ringbuf.Ring, logger *log.Logger) *Worker {
	if logger == nil {
		logger = log.Default()
	}
	return &Worker{
		host:     host,
		ring:     ring,
		logger:   logger,
		commands: make(chan command, 4),
		state:    make(chan State, 8),
		stopped:  make(chan struct{}),
	}
}

// States returns a channel of state transitions for observability. The
// channel is never closed by Run; callers should stop reading on context
// cancellation.
func (w *Worker) States() <-chan State { return w.state }

// Reinitialize requests the worker stop its current stream and reopen
// against endpointID. Non-blocking; if the queue is full the request is
// dropped, matching the bounded-command-queue contract (spec.md §4.2).
func (w *Worker) Reinitialize(endpointID string) {
	select {
	case w.commands <- command{reinitialize: true, endpointID: endpointID}:
	default:
		w.logger.Warn("capture: reinitialize dropped, command queue full", "endpoint", endpointID)
	}
}

func (w *Worker) setState(s State) {
	select {
	case w.state <- s:
	default:
	}
}

// Run drives the worker until ctx is canceled, implementing the
// Opening → Running ⇄ Reinitializing → Running state machine, with Failed
// looping back to Reinitializing after backoff (spec.md §4.2).
func (w *Worker) Run(ctx context.Context, initialEndpointID string) {
	defer close(w.stopped)

	endpointID := initialEndpointID
	w.setState(StateOpening)

	for {
		if ctx.Err() != nil {
			return
		}

		stream, err := w.host.OpenLoopbackCapture(endpointID)
		if err != nil {
			w.logger.Error("capture: open failed, backing off", "endpoint", endpointID, "err", err)
			w.setState(StateFailed)
			if !w.sleepOrDone(ctx, backoffDelay) {
				return
			}
			w.setState(StateReinitializing)
			continue
		}

		w.setState(StateRunning)
		nextEndpointID, reopen := w.runStream(ctx, stream)
		stream.Close()

		if !reopen {
			return
		}

		w.setState(StateReinitializing)
		endpointID = nextEndpointID
		if !w.sleepOrDone(ctx, settleDelay) {
			return
		}
	}
}

// runStream pumps frames from one open stream into the ring until ctx is
// canceled, the stream errors, or a Reinitialize command arrives. It
// returns the endpoint to reopen against and whether the worker should
// continue (false only on ctx cancellation).
func (w *Worker) runStream(ctx context.Context, stream audiohost.CaptureStream) (string, bool) {
	frames := stream.Frames()
	for {
		select {
		case <-ctx.Done():
			return "", false

		case cmd := <-w.commands:
			if cmd.reinitialize {
				return cmd.endpointID, true
			}

		case batch, ok := <-frames:
			if !ok {
				err := stream.Err()
				if err != nil && !errors.Is(err, audiohost.ErrStreamClosed) {
					w.logger.Warn("capture: stream ended with error, reopening", "err", err)
				}
				return "", true
			}
			w.writeBatch(batch)
			batch.Release()
		}
	}
}

func (w *Worker) writeBatch(batch audiohost.FrameBatch) {
	data := batch.Data
	if batch.Silence {
		data = make([]byte, len(batch.Data))
	}
	w.ring.Write(data)
	if w.debugSink != nil {
		w.debugSink(data)
	}
}

// sleepOrDone waits for d or ctx cancellation, returning false if canceled.
func (w *Worker) sleepOrDone(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// Done reports when Run has returned, for callers performing a clean
// shutdown join.
func (w *Worker) Done() <-chan struct{} { return w.stopped }
