// Package volume implements the Volume Follower (spec.md §4.6): a dedicated
// goroutine that polls the current default output's master-volume scalar
// and mute flag, publishing the effective volume into a shared atomic cell
// that every Renderer Worker reads on its hot path.
package volume

import (
	"math"
	"sync/atomic"
)

// Cell is the Master Volume Cell: an atomic scalar holding the effective
// volume (muted ? 0 : scalar), read with relaxed ordering on the renderer
// hot path (spec.md §8: "staleness of one polling period is acceptable").
type Cell struct {
	bits atomic.Uint64
}

// NewCell creates a cell initialized to full, unmuted volume.
func NewCell() *Cell {
	c := &Cell{}
	c.Store(1.0)
	return c
}

// Load reads the current effective volume scalar.
func (c *Cell) Load() float64 {
	if c == nil {
		return 1.0
	}
	return math.Float64frombits(c.bits.Load())
}

// Store publishes a new effective volume scalar.
func (c *Cell) Store(v float64) {
	c.bits.Store(math.Float64bits(v))
}
