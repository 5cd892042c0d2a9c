package persistence

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veilspace/kernel/kernel/element"
	"github.com/veilspace/kernel/kernel/veil"
)

func TestRestore_NoSnapshotIsFreshLifecycle(t *testing.T) {
	dir := t.TempDir()
	adapter, err := NewFileAdapter(dir)
	require.NoError(t, err)

	store := veil.New("lc-1")
	tree := element.NewTree(element.New("root", "space"))
	registry := NewComponentRegistry()

	result, err := Restore(context.Background(), adapter, store, tree, registry)
	require.NoError(t, err)
	assert.False(t, result.Restored)
}

func TestRestore_SnapshotPlusReplayedDeltas(t *testing.T) {
	dir := t.TempDir()
	adapter, err := NewFileAdapter(dir)
	require.NoError(t, err)

	originalStore := veil.New("lc-1")
	originalTree := element.NewTree(element.New("root", "space"))
	m := NewMaintainer(adapter, originalStore, originalTree, "lc-1", "space-1", 100)

	seq := originalStore.GetNextSequence()
	f1 := &veil.Frame{
		Sequence:  seq,
		Timestamp: veil.Now(),
		UUID:      originalStore.FrameUUID(seq),
		Deltas:    []veil.Delta{veil.AddFacet(&veil.Facet{ID: "f1", Type: "state"})},
	}
	_, err = originalStore.ApplyFrame(f1)
	require.NoError(t, err)
	_, err = m.Process(context.Background(), f1, nil, originalStore.GetState())
	require.NoError(t, err)

	require.NoError(t, m.ForceSnapshot(veil.Now()))

	seq2 := originalStore.GetNextSequence()
	f2 := &veil.Frame{
		Sequence:  seq2,
		Timestamp: veil.Now(),
		UUID:      originalStore.FrameUUID(seq2),
		Deltas:    []veil.Delta{veil.AddFacet(&veil.Facet{ID: "f2", Type: "state"})},
	}
	_, err = originalStore.ApplyFrame(f2)
	require.NoError(t, err)
	require.NoError(t, adapter.WriteDelta(FrameDelta{Sequence: seq2, Timestamp: f2.Timestamp, LifecycleID: "lc-1", Frame: f2}))

	freshStore := veil.New("")
	freshTree := element.NewTree(element.New("root", "space"))
	registry := NewComponentRegistry()

	result, err := Restore(context.Background(), adapter, freshStore, freshTree, registry)
	require.NoError(t, err)
	require.True(t, result.Restored)
	assert.Equal(t, "lc-1", result.LifecycleID)
	assert.Equal(t, seq2, result.RestoredThrough)

	state := freshStore.GetState()
	_, ok := state.Facet("f1")
	assert.True(t, ok, "facet from snapshot must be present")
	_, ok = state.Facet("f2")
	assert.True(t, ok, "facet from replayed delta must be present")

	// The next frame's sequence must continue past every replayed
	// delta, not resume from the snapshot's own (earlier) counter.
	assert.Equal(t, seq2+1, freshStore.GetNextSequence())
}
