package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veilspace/kernel/kernel/event"
)

func evt(topic string, p event.Priority) *event.Event {
	return &event.Event{Topic: topic, Priority: p}
}

func TestQueue_FIFOWithinPriority(t *testing.T) {
	q := New()
	q.Push(evt("a", event.PriorityNormal))
	q.Push(evt("b", event.PriorityNormal))
	q.Push(evt("c", event.PriorityNormal))

	first, ok := q.Shift()
	require.True(t, ok)
	assert.Equal(t, "a", first.Topic)

	second, ok := q.Shift()
	require.True(t, ok)
	assert.Equal(t, "b", second.Topic)
}

func TestQueue_PriorityOrdering(t *testing.T) {
	// Mirrors spec.md §8 scenario 6: E1(normal), E2(high), E3(normal)
	// queued in that order must drain as E2, E1, E3.
	q := New()
	q.Push(evt("E1", event.PriorityNormal))
	q.Push(evt("E2", event.PriorityHigh))
	q.Push(evt("E3", event.PriorityNormal))

	drained := q.DrainAll()
	require.Len(t, drained, 3)
	assert.Equal(t, []string{"E2", "E1", "E3"}, []string{drained[0].Topic, drained[1].Topic, drained[2].Topic})
}

func TestQueue_EmptyAndLength(t *testing.T) {
	q := New()
	assert.True(t, q.IsEmpty())
	assert.Equal(t, 0, q.Length())

	q.Push(evt("x", event.PriorityLow))
	assert.False(t, q.IsEmpty())
	assert.Equal(t, 1, q.Length())

	_, ok := q.Shift()
	assert.True(t, ok)
	assert.True(t, q.IsEmpty())

	_, ok = q.Shift()
	assert.False(t, ok)
}

func TestQueue_DebugInfo(t *testing.T) {
	q := New()
	q.Push(evt("a", event.PriorityHigh))
	q.Push(evt("b", event.PriorityLow))
	q.Push(evt("c", event.PriorityLow))

	info := q.DebugInfo()
	assert.Equal(t, 1, info.High)
	assert.Equal(t, 0, info.Normal)
	assert.Equal(t, 2, info.Low)
	assert.Equal(t, uint64(3), info.Stats.Pushed)
}
