package volume

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
)

const (
	pollInterval = 100 * time.Millisecond
	rebindSettle = 100 * time.Millisecond
)

// Source queries a platform's master-volume scalar and mute flag for the
// fallback/default output. Implementations: PulseSource (Linux/PipeWire via
// D-Bus), or audiohost.Host.MasterVolume as a neutral fallback where no
// richer backend exists.
type Source interface {
	Query(endpointID string) (scalar float64, muted bool, err error)
}

// Follower polls a Source every pollInterval and publishes the effective
// volume (muted ? 0 : scalar) into a shared Cell (spec.md §4.6).
type Follower struct {
	source Source
	cell   *Cell
	logger *log.Logger

	rebind chan string
}

// NewFollower builds a Volume Follower publishing into cell.
func NewFollower(source Source, cell *Cell, logger *log.Logger) *Follower {
	if logger == nil {
		logger = log.Default()
	}
	return &Follower{source: source, cell: cell, logger: logger, rebind: make(chan string, 1)}
}

// Rebind requests the follower settle and resume polling against a new
// default endpoint id, called by the Device Monitor on DefaultChanged
// (spec.md §4.5 step 3).
func (f *Follower) Rebind(endpointID string) {
	select {
	case f.rebind <- endpointID:
	default:
	}
}

// Run polls until ctx is canceled.
func (f *Follower) Run(ctx context.Context, initialEndpointID string) {
	endpointID := initialEndpointID
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case id := <-f.rebind:
			endpointID = id
			select {
			case <-ctx.Done():
				return
			case <-time.After(rebindSettle):
			}

		case <-ticker.C:
			scalar, muted, err := f.source.Query(endpointID)
			if err != nil {
				f.logger.Warn("volume: query failed, retrying next poll", "endpoint", endpointID, "err", err)
				continue
			}
			effective := scalar
			if muted {
				effective = 0
			}
			f.cell.Store(effective)
		}
	}
}
