// Package queue implements the priority event queue (component C2): FIFO
// within each of high/normal/low, with starvation permitted by design.
// Grounded on the ring-buffer bookkeeping of
// kernel/threads/foundation/message_queue.go, reworked from a raw SAB
// byte layout into a plain in-process structure — there is no shared
// memory to lay out once the kernel runs in a single process.
package queue

import (
	"sync"

	"github.com/veilspace/kernel/kernel/event"
)

var priorityOrder = []event.Priority{event.PriorityHigh, event.PriorityNormal, event.PriorityLow}

// Stats mirrors the teacher's QueueStats: cheap counters for the debug
// surface.
type Stats struct {
	Pushed  uint64
	Shifted uint64
	Dropped uint64
}

// Queue is the priority event queue. Zero value is not usable; use New.
type Queue struct {
	mu    sync.Mutex
	lanes map[event.Priority][]*event.Event
	stats Stats
}

// New creates an empty priority queue.
func New() *Queue {
	return &Queue{
		lanes: map[event.Priority][]*event.Event{
			event.PriorityHigh:   nil,
			event.PriorityNormal: nil,
			event.PriorityLow:    nil,
		},
	}
}

// Push enqueues an event onto its effective-priority lane.
func (q *Queue) Push(e *event.Event) {
	q.mu.Lock()
	defer q.mu.Unlock()
	p := e.EffectivePriority()
	q.lanes[p] = append(q.lanes[p], e)
	q.stats.Pushed++
}

// Shift dequeues the next event: the oldest event of the highest
// non-empty priority lane. Returns nil, false if the queue is empty.
func (q *Queue) Shift() (*event.Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, p := range priorityOrder {
		lane := q.lanes[p]
		if len(lane) == 0 {
			continue
		}
		e := lane[0]
		q.lanes[p] = lane[1:]
		q.stats.Shifted++
		return e, true
	}
	return nil, false
}

// DrainAll removes and returns every queued event, in delivery order
// (high, then normal, then low — each FIFO within itself). This is what
// the frame engine calls at the start of each frame.
func (q *Queue) DrainAll() []*event.Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []*event.Event
	for _, p := range priorityOrder {
		out = append(out, q.lanes[p]...)
		q.stats.Shifted += uint64(len(q.lanes[p]))
		q.lanes[p] = nil
	}
	return out
}

// IsEmpty reports whether every lane is empty.
func (q *Queue) IsEmpty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, p := range priorityOrder {
		if len(q.lanes[p]) > 0 {
			return false
		}
	}
	return true
}

// Length returns the total number of queued events across all lanes.
func (q *Queue) Length() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, p := range priorityOrder {
		n += len(q.lanes[p])
	}
	return n
}

// DebugInfo reports a snapshot of queue depth and lifetime counters.
type DebugInfo struct {
	High, Normal, Low int
	Stats             Stats
}

func (q *Queue) DebugInfo() DebugInfo {
	q.mu.Lock()
	defer q.mu.Unlock()
	return DebugInfo{
		High:   len(q.lanes[event.PriorityHigh]),
		Normal: len(q.lanes[event.PriorityNormal]),
		Low:    len(q.lanes[event.PriorityLow]),
		Stats:  q.stats,
	}
}
