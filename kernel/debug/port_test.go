package debug

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veilspace/kernel/kernel/event"
	"github.com/veilspace/kernel/kernel/veil"
)

type recordingObserver struct {
	starts     []uint64
	completes  []uint64
	renders    []RenderedContext
	outgoing   []uint64
}

func (r *recordingObserver) OnFrameStart(f *veil.Frame) { r.starts = append(r.starts, f.Sequence) }
func (r *recordingObserver) OnFrameEvent(f *veil.Frame, e *event.Event) {}
func (r *recordingObserver) OnFrameComplete(f *veil.Frame, d time.Duration, n int) {
	r.completes = append(r.completes, f.Sequence)
}
func (r *recordingObserver) OnOutgoingFrame(f *veil.Frame) { r.outgoing = append(r.outgoing, f.Sequence) }
func (r *recordingObserver) OnRenderedContext(info RenderedContext) {
	r.renders = append(r.renders, info)
}

func TestPort_NotifiesObserversInOrder(t *testing.T) {
	p := NewPort()
	obs := &recordingObserver{}
	p.Subscribe(obs)

	f := &veil.Frame{Sequence: 1}
	p.NotifyFrameStart(f)
	p.NotifyFrameComplete(f, time.Millisecond, 3)
	p.NotifyOutgoingFrame(f)

	assert.Equal(t, []uint64{1}, obs.starts)
	assert.Equal(t, []uint64{1}, obs.completes)
	assert.Equal(t, []uint64{1}, obs.outgoing)
}

func TestPort_RecordRenderedContextIsRetrievable(t *testing.T) {
	p := NewPort()
	obs := &recordingObserver{}
	p.Subscribe(obs)

	f := &veil.Frame{Sequence: 42}
	p.RecordRenderedContext(f, "hello world", map[string]any{"agent": "narrator"})

	got, ok := p.RenderedContextFor(42)
	require.True(t, ok)
	assert.Equal(t, "hello world", got.Content)
	assert.Len(t, obs.renders, 1)
}

func TestPort_RenderedContextLRUEvictsOldest(t *testing.T) {
	p := NewPortWithCapacity(2)

	p.RecordRenderedContext(&veil.Frame{Sequence: 1}, "one", nil)
	p.RecordRenderedContext(&veil.Frame{Sequence: 2}, "two", nil)
	p.RecordRenderedContext(&veil.Frame{Sequence: 3}, "three", nil)

	_, ok := p.RenderedContextFor(1)
	assert.False(t, ok, "oldest entry should have been evicted")

	_, ok = p.RenderedContextFor(2)
	assert.True(t, ok)
	_, ok = p.RenderedContextFor(3)
	assert.True(t, ok)
}

func TestPort_RenderedContextLRUTouchOnGetProtectsRecentlyUsed(t *testing.T) {
	p := NewPortWithCapacity(2)

	p.RecordRenderedContext(&veil.Frame{Sequence: 1}, "one", nil)
	p.RecordRenderedContext(&veil.Frame{Sequence: 2}, "two", nil)

	_, _ = p.RenderedContextFor(1) // touch 1, making 2 the LRU entry

	p.RecordRenderedContext(&veil.Frame{Sequence: 3}, "three", nil)

	_, ok := p.RenderedContextFor(2)
	assert.False(t, ok, "entry 2 should have been evicted, not entry 1")
	_, ok = p.RenderedContextFor(1)
	assert.True(t, ok)
}
