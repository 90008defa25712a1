package volume

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	scalar float64
	muted  bool
	calls  int
}

func (f *fakeSource) Query(string) (float64, bool, error) {
	f.calls++
	return f.scalar, f.muted, nil
}

func TestFollowerPublishesMutedAsZero(t *testing.T) {
	cell := NewCell()
	src := &fakeSource{scalar: 0.8, muted: true}
	f := NewFollower(src, cell, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go f.Run(ctx, "ep1")

	require.Eventually(t, func() bool { return src.calls > 0 }, time.Second, time.Millisecond)
	assert.Equal(t, 0.0, cell.Load())
}

func TestFollowerPublishesScalarWhenUnmuted(t *testing.T) {
	cell := NewCell()
	src := &fakeSource{scalar: 0.5, muted: false}
	f := NewFollower(src, cell, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go f.Run(ctx, "ep1")

	require.Eventually(t, func() bool { return cell.Load() == 0.5 }, time.Second, time.Millisecond)
}
