// Package debug implements the pull-based debug observer port
// (component C8): a push-notification fan-out for frame lifecycle
// events plus a bounded record of recently rendered contexts.
package debug

import (
	"time"

	"github.com/veilspace/kernel/kernel/event"
	"github.com/veilspace/kernel/kernel/veil"
)

// DefaultRenderedContextCapacity is the bound chosen for the rendered-
// context LRU (§4.8, §9 open question: "~200 is a reasonable default").
const DefaultRenderedContextCapacity = 200

// RenderedContext is the Space's record of the last-rendered prompt for
// one frame, kept for later inspection.
type RenderedContext struct {
	FrameSequence uint64
	Content       string
	Meta          map[string]any
	RecordedAt    string
}

// Observer is the port any external consumer implements to watch the
// frame engine. The HTTP/WebSocket debug server that would normally
// consume this port is out of scope; Port only fans notifications out.
type Observer interface {
	OnFrameStart(frame *veil.Frame)
	OnFrameEvent(frame *veil.Frame, e *event.Event)
	OnFrameComplete(frame *veil.Frame, duration time.Duration, processedEvents int)
	OnOutgoingFrame(frame *veil.Frame)
	OnRenderedContext(info RenderedContext)
}

// Port is the concrete, in-process implementation of the observer
// fan-out plus the bounded rendered-context record.
type Port struct {
	observers []Observer
	contexts  *renderedLRU
}

// NewPort creates a port with the default rendered-context bound.
func NewPort() *Port {
	return NewPortWithCapacity(DefaultRenderedContextCapacity)
}

func NewPortWithCapacity(capacity int) *Port {
	return &Port{contexts: newRenderedLRU(capacity)}
}

// Subscribe registers an observer; notifications are delivered
// synchronously, in registration order, from the frame engine's own
// goroutine.
func (p *Port) Subscribe(o Observer) {
	p.observers = append(p.observers, o)
}

func (p *Port) NotifyFrameStart(frame *veil.Frame) {
	for _, o := range p.observers {
		o.OnFrameStart(frame)
	}
}

func (p *Port) NotifyFrameEvent(frame *veil.Frame, e *event.Event) {
	for _, o := range p.observers {
		o.OnFrameEvent(frame, e)
	}
}

func (p *Port) NotifyFrameComplete(frame *veil.Frame, duration time.Duration, processedEvents int) {
	for _, o := range p.observers {
		o.OnFrameComplete(frame, duration, processedEvents)
	}
}

func (p *Port) NotifyOutgoingFrame(frame *veil.Frame) {
	for _, o := range p.observers {
		o.OnOutgoingFrame(frame)
	}
}

// RecordRenderedContext stores the rendered prompt for a frame in the
// bounded LRU and fans it out to observers.
func (p *Port) RecordRenderedContext(frame *veil.Frame, rendered string, meta map[string]any) {
	info := RenderedContext{
		FrameSequence: frame.Sequence,
		Content:       rendered,
		Meta:          meta,
		RecordedAt:    veil.Now(),
	}
	p.contexts.Put(frame.Sequence, info)
	for _, o := range p.observers {
		o.OnRenderedContext(info)
	}
}

// RenderedContextFor returns the retained rendered context for a frame
// sequence, if still present in the LRU.
func (p *Port) RenderedContextFor(sequence uint64) (RenderedContext, bool) {
	return p.contexts.Get(sequence)
}

// RecentRenderedContexts returns every retained context, most-recent first.
func (p *Port) RecentRenderedContexts() []RenderedContext {
	return p.contexts.All()
}
