// Package clocksync implements the master/slave drift estimator described in
// spec.md §4.4. The first endpoint adopted becomes the reference clock;
// every other endpoint corrects its playback rate toward it by small,
// rate-limited sample-count nudges. Grounded on the wemux reference's
// sync/clock.rs, which this component's constants and smoothing formula are
// carried over from verbatim.
package clocksync

import (
	"sync"
	"time"
)

const (
	// DriftThresholdSamples is the drift magnitude (in samples) above which
	// a correction is armed. ~5ms at 48kHz.
	DriftThresholdSamples int64 = 240
	// MaxCorrectionSamples bounds how much a single correction may move a
	// slave, to keep corrections inaudible. ~1ms at 48kHz.
	MaxCorrectionSamples int64 = 48
)

type slaveState struct {
	lastPosition      uint64
	driftSamples      int64
	pendingCorrection int64
	lastSync          time.Time
}

// Sync tracks one master clock and any number of slave clocks. Exactly one
// master exists at a time; correcting the master is always a no-op.
type Sync struct {
	mu         sync.Mutex
	sampleRate uint32
	masterID   string
	hasMaster  bool

	masterPosition uint64
	masterUpdated  time.Time

	slaves map[string]*slaveState
}

// New creates a clock sync instance for a capture session at the given
// sample rate.
func New(sampleRate uint32) *Sync {
	return &Sync{
		sampleRate: sampleRate,
		slaves:     make(map[string]*slaveState),
	}
}

// SetMaster designates id as the reference clock. Replaces any previous
// master and removes id from the slave map if it was previously registered
// as one.
func (s *Sync) SetMaster(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.masterID = id
	s.hasMaster = true
	s.masterPosition = 0
	s.masterUpdated = time.Now()
	delete(s.slaves, id)
}

// RegisterSlave adds id as a slave to be corrected toward the master. A
// no-op if id is currently the master.
func (s *Sync) RegisterSlave(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hasMaster && s.masterID == id {
		return
	}
	s.slaves[id] = &slaveState{lastSync: time.Now()}
}

// RemoveSlave drops a slave's tracked state, e.g. on endpoint removal.
func (s *Sync) RemoveSlave(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.slaves, id)
}

// UpdateMaster records the master's latest reported playback position.
func (s *Sync) UpdateMaster(position uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.masterPosition = position
	s.masterUpdated = time.Now()
}

// UpdateSlave records a slave's latest reported playback position,
// recomputing its smoothed drift and arming a correction if the drift
// exceeds DriftThresholdSamples.
func (s *Sync) UpdateSlave(id string, position uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	slave, ok := s.slaves[id]
	if !ok {
		return
	}

	now := time.Now()
	elapsed := now.Sub(slave.lastSync)
	elapsedSamples := int64(elapsed.Seconds() * float64(s.sampleRate))

	actualMovement := int64(position - slave.lastPosition) // wrap-safe via unsigned subtraction
	delta := actualMovement - elapsedSamples

	slave.driftSamples = (slave.driftSamples*7 + delta) / 8
	slave.lastPosition = position
	slave.lastSync = now

	if abs64(slave.driftSamples) > DriftThresholdSamples {
		mag := abs64(slave.driftSamples)
		if mag > MaxCorrectionSamples {
			mag = MaxCorrectionSamples
		}
		slave.pendingCorrection = sign64(slave.driftSamples) * mag
	} else {
		slave.pendingCorrection = 0
	}
}

// GetCorrection returns the pending correction (in samples; positive means
// the slave should skip samples, negative means it should insert) for id
// and reduces the tracked drift by that amount. One-shot: subsequent calls
// return 0 until UpdateSlave arms a new correction. Always returns 0 for the
// master id.
func (s *Sync) GetCorrection(id string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.hasMaster && s.masterID == id {
		return 0
	}
	slave, ok := s.slaves[id]
	if !ok || slave.pendingCorrection == 0 {
		return 0
	}
	correction := slave.pendingCorrection
	slave.driftSamples -= correction
	slave.pendingCorrection = 0
	return correction
}

// PendingCorrection reports the armed correction without consuming it, for
// status/observability callers that must not perturb the hot path.
func (s *Sync) PendingCorrection(id string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if slave, ok := s.slaves[id]; ok {
		return slave.pendingCorrection
	}
	return 0
}

// IsMaster reports whether id is the current master.
func (s *Sync) IsMaster(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasMaster && s.masterID == id
}

// DriftMS returns a slave's current smoothed drift in milliseconds, for
// observability. ok is false if id is not a tracked slave.
func (s *Sync) DriftMS(id string) (ms float64, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	slave, exists := s.slaves[id]
	if !exists {
		return 0, false
	}
	return float64(slave.driftSamples) * 1000.0 / float64(s.sampleRate), true
}

// AllDrifts returns every tracked slave's drift in milliseconds, keyed by
// endpoint id.
func (s *Sync) AllDrifts() map[string]float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]float64, len(s.slaves))
	for id, slave := range s.slaves {
		out[id] = float64(slave.driftSamples) * 1000.0 / float64(s.sampleRate)
	}
	return out
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

func sign64(v int64) int64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}
