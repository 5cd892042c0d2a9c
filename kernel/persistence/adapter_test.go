package persistence

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veilspace/kernel/kernel/veil"
)

func TestFileAdapter_WriteAndLoadLatestSnapshot(t *testing.T) {
	dir := t.TempDir()
	a, err := NewFileAdapter(dir)
	require.NoError(t, err)

	s1 := Snapshot{Version: SchemaVersion, Sequence: 100, Timestamp: "2026-01-01T00-00-00Z", LifecycleID: "lc-1"}
	s2 := Snapshot{Version: SchemaVersion, Sequence: 200, Timestamp: "2026-01-01T00-01-00Z", LifecycleID: "lc-1"}

	require.NoError(t, a.WriteSnapshot(s1))
	require.NoError(t, a.WriteSnapshot(s2))

	latest, err := a.LatestSnapshot()
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, uint64(200), latest.Sequence)
}

func TestFileAdapter_LatestSnapshotNilWhenEmpty(t *testing.T) {
	dir := t.TempDir()
	a, err := NewFileAdapter(dir)
	require.NoError(t, err)

	latest, err := a.LatestSnapshot()
	require.NoError(t, err)
	assert.Nil(t, latest)
}

func TestFileAdapter_DeltaRoundTripAndOrdering(t *testing.T) {
	dir := t.TempDir()
	a, err := NewFileAdapter(dir)
	require.NoError(t, err)

	require.NoError(t, a.WriteDelta(FrameDelta{Sequence: 3, Frame: &veil.Frame{Sequence: 3}}))
	require.NoError(t, a.WriteDelta(FrameDelta{Sequence: 1, Frame: &veil.Frame{Sequence: 1}}))
	require.NoError(t, a.WriteDelta(FrameDelta{Sequence: 2, Frame: &veil.Frame{Sequence: 2}}))

	deltas, err := a.DeltasSince(0)
	require.NoError(t, err)
	require.Len(t, deltas, 3)
	assert.Equal(t, []uint64{1, 2, 3}, []uint64{deltas[0].Sequence, deltas[1].Sequence, deltas[2].Sequence})

	deltas, err = a.DeltasSince(1)
	require.NoError(t, err)
	assert.Len(t, deltas, 2)
}

func TestFileAdapter_DeleteDeltasInRange(t *testing.T) {
	dir := t.TempDir()
	a, err := NewFileAdapter(dir)
	require.NoError(t, err)

	for _, seq := range []uint64{1, 2, 3, 4} {
		require.NoError(t, a.WriteDelta(FrameDelta{Sequence: seq, Frame: &veil.Frame{Sequence: seq}}))
	}
	require.NoError(t, a.DeleteDeltasInRange(2, 3))

	deltas, err := a.DeltasSince(0)
	require.NoError(t, err)
	require.Len(t, deltas, 2)
	assert.Equal(t, []uint64{1, 4}, []uint64{deltas[0].Sequence, deltas[1].Sequence})
}

func TestFileAdapter_Reset(t *testing.T) {
	dir := t.TempDir()
	a, err := NewFileAdapter(dir)
	require.NoError(t, err)
	require.NoError(t, a.WriteDelta(FrameDelta{Sequence: 1, Frame: &veil.Frame{Sequence: 1}}))

	require.NoError(t, a.Reset())

	deltas, err := a.DeltasSince(0)
	require.NoError(t, err)
	assert.Empty(t, deltas)
}
