package persistence

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veilspace/kernel/kernel/element"
	"github.com/veilspace/kernel/kernel/veil"
)

func TestMaintainer_WritesDeltaEveryFrameAndSnapshotOnInterval(t *testing.T) {
	dir := t.TempDir()
	adapter, err := NewFileAdapter(dir)
	require.NoError(t, err)

	store := veil.New("lc-1")
	tree := element.NewTree(element.New("root", "space"))
	m := NewMaintainer(adapter, store, tree, "lc-1", "space-1", 2)

	f1 := &veil.Frame{Sequence: 1, Timestamp: veil.Now()}
	_, err = m.Process(context.Background(), f1, nil, store.GetState())
	require.NoError(t, err)

	latest, err := adapter.LatestSnapshot()
	require.NoError(t, err)
	assert.Nil(t, latest, "no snapshot expected before the interval is reached")

	f2 := &veil.Frame{Sequence: 2, Timestamp: veil.Now()}
	_, err = m.Process(context.Background(), f2, nil, store.GetState())
	require.NoError(t, err)

	latest, err = adapter.LatestSnapshot()
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, uint64(2), latest.Sequence)

	deltas, err := adapter.DeltasSince(0)
	require.NoError(t, err)
	assert.Len(t, deltas, 2)
}

func TestMaintainer_SnapshotCadenceCountsTicksNotSequenceGaps(t *testing.T) {
	dir := t.TempDir()
	adapter, err := NewFileAdapter(dir)
	require.NoError(t, err)

	store := veil.New("lc-1")
	tree := element.NewTree(element.New("root", "space"))
	m := NewMaintainer(adapter, store, tree, "lc-1", "space-1", 2)

	// Sequences jump by a variable amount per tick (one per phase
	// sub-application), so a snapshotInterval derived from
	// frame.Sequence would routinely skip the boundary. Two ticks
	// whose sequences never land on a multiple of 2 must still fire
	// the snapshot on the second tick.
	f1 := &veil.Frame{Sequence: 3, Timestamp: veil.Now()}
	_, err = m.Process(context.Background(), f1, nil, store.GetState())
	require.NoError(t, err)
	latest, err := adapter.LatestSnapshot()
	require.NoError(t, err)
	assert.Nil(t, latest, "first tick must not snapshot")

	f2 := &veil.Frame{Sequence: 11, Timestamp: veil.Now()}
	_, err = m.Process(context.Background(), f2, nil, store.GetState())
	require.NoError(t, err)
	latest, err = adapter.LatestSnapshot()
	require.NoError(t, err)
	require.NotNil(t, latest, "second tick must snapshot regardless of the sequence gap")
	assert.Equal(t, uint64(11), latest.Sequence)
}

func TestMaintainer_ForceSnapshot(t *testing.T) {
	dir := t.TempDir()
	adapter, err := NewFileAdapter(dir)
	require.NoError(t, err)

	store := veil.New("lc-1")
	tree := element.NewTree(element.New("root", "space"))
	m := NewMaintainer(adapter, store, tree, "lc-1", "space-1", 100)

	require.NoError(t, m.ForceSnapshot(veil.Now()))

	latest, err := adapter.LatestSnapshot()
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "lc-1", latest.LifecycleID)
}
