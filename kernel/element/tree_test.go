package element

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veilspace/kernel/kernel/event"
)

func buildTree(t *testing.T) (*Tree, *Element, *Element, *Element) {
	t.Helper()
	root := New("root", "space")
	tree := NewTree(root)
	mid := New("mid", "group")
	leaf := New("leaf", "widget")
	require.NoError(t, root.AddChild(context.Background(), mid))
	require.NoError(t, mid.AddChild(context.Background(), leaf))
	return tree, root, mid, leaf
}

func TestTree_BroadcastVisitsAllSubscribedActiveElements(t *testing.T) {
	tree, root, mid, leaf := buildTree(t)

	var hits []string
	root.OnAction("chat:message", func(ctx context.Context, e *event.Event) { hits = append(hits, "root") })
	mid.OnAction("chat:message", func(ctx context.Context, e *event.Event) { hits = append(hits, "mid") })
	leaf.OnAction("chat:message", func(ctx context.Context, e *event.Event) { hits = append(hits, "leaf") })

	root.Subscribe("chat:*")
	mid.Subscribe("chat:*")
	leaf.Subscribe("chat:*")
	mid.SetActive(false)

	tree.Broadcast(context.Background(), &event.Event{Topic: "chat:message"})

	assert.Equal(t, []string{"root", "leaf"}, hits, "inactive mid must be skipped, but its subtree is still walked")
}

func TestTree_DispatchPropagationCaptureThenTarget(t *testing.T) {
	tree, root, mid, leaf := buildTree(t)

	var order []string
	phaseAt := func(name string, want int) ActionHandler {
		return func(ctx context.Context, e *event.Event) {
			order = append(order, name)
			assert.Equal(t, want, e.EventPhase)
		}
	}
	root.OnAction("click", phaseAt("root", event.PhaseCapture))
	mid.OnAction("click", phaseAt("mid", event.PhaseCapture))
	leaf.OnAction("click", phaseAt("leaf", event.PhaseTarget))

	e := &event.Event{Topic: "click", Source: leaf.Ref(), Bubbles: false}
	tree.DispatchPropagation(context.Background(), e)

	assert.Equal(t, []string{"root", "mid", "leaf"}, order)
}

func TestTree_DispatchPropagationBubblePhase(t *testing.T) {
	tree, root, mid, leaf := buildTree(t)

	var bubbled []string
	mid.OnAction("click", func(ctx context.Context, e *event.Event) {
		if e.EventPhase == event.PhaseBubble {
			bubbled = append(bubbled, "mid")
		}
	})
	root.OnAction("click", func(ctx context.Context, e *event.Event) {
		if e.EventPhase == event.PhaseBubble {
			bubbled = append(bubbled, "root")
		}
	})

	e := &event.Event{Topic: "click", Source: leaf.Ref(), Bubbles: true}
	tree.DispatchPropagation(context.Background(), e)

	assert.Equal(t, []string{"mid", "root"}, bubbled)
}

func TestTree_DispatchPropagationNoBubbleStopsAtTarget(t *testing.T) {
	tree, root, _, leaf := buildTree(t)

	var rootCalled bool
	root.OnAction("click", func(ctx context.Context, e *event.Event) {
		if e.EventPhase == event.PhaseBubble {
			rootCalled = true
		}
	})

	e := &event.Event{Topic: "click", Source: leaf.Ref(), Bubbles: false}
	tree.DispatchPropagation(context.Background(), e)

	assert.False(t, rootCalled)
}

func TestTree_DispatchPropagationStopPropagationHaltsBubble(t *testing.T) {
	tree, root, mid, leaf := buildTree(t)

	var rootCalled bool
	leaf.OnAction("click", func(ctx context.Context, e *event.Event) { e.StopPropagation() })
	mid.OnAction("click", func(ctx context.Context, e *event.Event) {})
	root.OnAction("click", func(ctx context.Context, e *event.Event) {
		if e.EventPhase == event.PhaseBubble {
			rootCalled = true
		}
	})

	e := &event.Event{Topic: "click", Source: leaf.Ref(), Bubbles: true}
	tree.DispatchPropagation(context.Background(), e)

	assert.False(t, rootCalled)
}

func TestTree_DispatchPropagationUnknownTargetIsNoOp(t *testing.T) {
	tree, _, _, _ := buildTree(t)
	e := &event.Event{Topic: "click", Source: event.ElementRef{ElementID: "ghost"}}
	assert.NotPanics(t, func() {
		tree.DispatchPropagation(context.Background(), e)
	})
}
