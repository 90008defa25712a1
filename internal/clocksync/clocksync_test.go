package clocksync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMasterInvariance(t *testing.T) {
	s := New(48000)
	s.SetMaster("master")
	s.RegisterSlave("slave1")
	s.RegisterSlave("slave2")

	assert.True(t, s.IsMaster("master"))
	assert.False(t, s.IsMaster("slave1"))
	assert.Equal(t, int64(0), s.GetCorrection("master"))

	s.UpdateSlave("master", 999999) // master was never registered as a slave
	assert.Equal(t, int64(0), s.GetCorrection("master"))
}

func TestRegisteringMasterAsSlaveIsNoop(t *testing.T) {
	s := New(48000)
	s.SetMaster("m")
	s.RegisterSlave("m")
	assert.Equal(t, 0, len(s.AllDrifts()))
}

func TestCorrectionIsOneShot(t *testing.T) {
	s := New(48000)
	s.SetMaster("m")
	s.RegisterSlave("slave")

	s.UpdateSlave("slave", 0)
	time.Sleep(5 * time.Millisecond)
	// Huge jump relative to elapsed time to force drift past threshold.
	s.UpdateSlave("slave", 10_000)

	first := s.GetCorrection("slave")
	require.NotZero(t, first)
	second := s.GetCorrection("slave")
	assert.Zero(t, second, "correction must be consumed exactly once")
}

func TestDriftConvergesWithinBoundedJitter(t *testing.T) {
	s := New(48000)
	s.SetMaster("m")
	s.RegisterSlave("slave")

	pos := uint64(0)
	for i := 0; i < 50; i++ {
		time.Sleep(2 * time.Millisecond)
		pos += 96 // 2ms worth of samples at 48kHz, i.e. no real drift
		s.UpdateSlave("slave", pos)
		if c := s.GetCorrection("slave"); c != 0 {
			assert.LessOrEqual(t, abs64(c), MaxCorrectionSamples)
		}
	}

	ms, ok := s.DriftMS("slave")
	require.True(t, ok)
	assert.Less(t, abs64(int64(ms)), int64(6), "steady state drift should stay near zero")
}

func TestRemoveSlaveDropsState(t *testing.T) {
	s := New(48000)
	s.SetMaster("m")
	s.RegisterSlave("slave")
	s.RemoveSlave("slave")
	_, ok := s.DriftMS("slave")
	assert.False(t, ok)
}
