package ringbuf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestCapacityRoundsUpToPowerOfTwo(t *testing.T) {
	r := New(10)
	assert.EqualValues(t, 16, r.Capacity())
	assert.EqualValues(t, 15, r.Capacity()-1)
}

func TestWrapAround(t *testing.T) {
	r := New(8)
	readerPos := r.WriterPosition()

	r.Write([]byte{1, 2, 3, 4, 5, 6})

	buf := make([]byte, 4)
	n, pos := r.ReadInto(readerPos, buf)
	require.Equal(t, 4, n)
	require.Equal(t, []byte{1, 2, 3, 4}, buf)
	readerPos = pos

	r.Write([]byte{7, 8, 9, 10})

	buf = make([]byte, 6)
	n, readerPos = r.ReadInto(readerPos, buf)
	require.Equal(t, 6, n)
	assert.Equal(t, []byte{5, 6, 7, 8, 9, 10}, buf)
	_ = readerPos
}

func TestLagDetectionAndCatchUp(t *testing.T) {
	r := New(8)
	readerPos := r.WriterPosition()

	r.Write(make([]byte, 9)) // one byte beyond capacity

	assert.True(t, r.IsLagging(readerPos))
	readerPos = r.CatchUp()
	assert.False(t, r.IsLagging(readerPos))
	assert.EqualValues(t, 0, r.Available(readerPos))
}

func TestEmptyReadIsZeroNotError(t *testing.T) {
	r := New(64)
	readerPos := r.WriterPosition()
	n, pos := r.ReadInto(readerPos, make([]byte, 16))
	assert.Equal(t, 0, n)
	assert.Equal(t, readerPos, pos)
}

// TestReadIsPrefixOfWrites checks the invariant named in spec.md §8: for any
// writer-only sequence, the concatenation of successful reads is a prefix of
// what was written after subscribing, as long as the reader never laps.
func TestReadIsPrefixOfWrites(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		capacity := rapid.SampledFrom([]uint64{16, 32, 64, 128}).Draw(t, "capacity")
		r := New(capacity)
		readerPos := r.WriterPosition()

		writes := rapid.SliceOfN(
			rapid.SliceOfBoundedN(rapid.Byte(), 0, 8, 8),
			0, 6,
		).Draw(t, "writes")

		var all []byte
		for _, w := range writes {
			r.Write(w)
			all = append(all, w...)
		}

		if r.IsLagging(readerPos) {
			// Data loss is permitted once lapped; nothing to assert about
			// the exact bytes, only that catch-up clears the lag.
			readerPos = r.CatchUp()
			assert.False(t, r.IsLagging(readerPos))
			return
		}

		var got []byte
		buf := make([]byte, 4)
		for {
			n, pos := r.ReadInto(readerPos, buf)
			if n == 0 {
				break
			}
			got = append(got, buf[:n]...)
			readerPos = pos
		}

		assert.Equal(t, all, got)
	})
}
