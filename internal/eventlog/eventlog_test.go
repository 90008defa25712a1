package eventlog

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"airwave/internal/audiohost"
)

func TestRecordAndRecent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "events.db")
	log, err := Open(dbPath)
	require.NoError(t, err)
	defer log.Close()

	ctx := context.Background()
	require.NoError(t, log.Record(ctx, audiohost.DeviceEvent{Kind: audiohost.DefaultChanged, ID: "ep1", Flow: audiohost.FlowRender}))
	require.NoError(t, log.Record(ctx, audiohost.DeviceEvent{Kind: audiohost.DeviceRemoved, ID: "ep2", Flow: audiohost.FlowRender}))

	entries, err := log.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "removed", entries[0].Kind)
	assert.Equal(t, "default_changed", entries[1].Kind)
}
