package space

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veilspace/kernel/kernel/veil"
)

func TestEphemeralCleanupTransform_MarksThenRemovesAcrossFrames(t *testing.T) {
	store := veil.New("lc-1")
	_, err := store.ApplyFrame(&veil.Frame{
		Sequence: store.GetNextSequence(),
		Deltas:   []veil.Delta{veil.AddFacet(&veil.Facet{ID: "f1", Type: "agent-activation", Ephemeral: true})},
	})
	require.NoError(t, err)

	transform := NewEphemeralCleanupTransform()

	// Frame N: first sighting only marks, never removes.
	transform.SetFrameSeq(10)
	deltas, err := transform.Process(context.Background(), store.GetState())
	require.NoError(t, err)
	require.Len(t, deltas, 1)
	assert.Equal(t, veil.OpRewriteFacet, deltas[0].Op)

	_, err = store.ApplyFrame(&veil.Frame{Sequence: store.GetNextSequence(), Deltas: deltas})
	require.NoError(t, err)

	// Same frame, a second iteration (still seq 10): already marked this
	// frame, must not remove yet.
	deltas, err = transform.Process(context.Background(), store.GetState())
	require.NoError(t, err)
	assert.Empty(t, deltas, "must not remove within the marking frame")

	// Next outer frame: now it is a removal candidate.
	transform.SetFrameSeq(11)
	deltas, err = transform.Process(context.Background(), store.GetState())
	require.NoError(t, err)
	require.Len(t, deltas, 1)
	assert.Equal(t, veil.OpRemoveFacet, deltas[0].Op)
	assert.Equal(t, "f1", deltas[0].ID)
}

func TestEphemeralCleanupTransform_IgnoresNonEphemeralFacets(t *testing.T) {
	store := veil.New("lc-1")
	_, err := store.ApplyFrame(&veil.Frame{
		Sequence: store.GetNextSequence(),
		Deltas:   []veil.Delta{veil.AddFacet(&veil.Facet{ID: "durable", Type: "state"})},
	})
	require.NoError(t, err)

	transform := NewEphemeralCleanupTransform()
	transform.SetFrameSeq(1)
	deltas, err := transform.Process(context.Background(), store.GetState())
	require.NoError(t, err)
	assert.Empty(t, deltas)
}
