package element

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veilspace/kernel/kernel/event"
	"github.com/veilspace/kernel/kernel/retm"
	"github.com/veilspace/kernel/kernel/veil"
)

func TestElement_AddChildIsIdempotent(t *testing.T) {
	root := New("root", "space")
	tree := NewTree(root)
	child := New("c1", "widget")

	require.NoError(t, root.AddChild(context.Background(), child))
	require.NoError(t, root.AddChild(context.Background(), child))

	assert.Len(t, root.Children(), 1)
	_, ok := tree.Find("c1")
	assert.True(t, ok)
}

func TestElement_AddChildRejectsReparenting(t *testing.T) {
	root := New("root", "space")
	NewTree(root)
	other := New("other", "space2")
	child := New("c1", "widget")

	require.NoError(t, root.AddChild(context.Background(), child))
	err := other.AddChild(context.Background(), child)
	assert.Error(t, err)
}

func TestElement_RemoveChildIsIdempotentAndDeindexes(t *testing.T) {
	root := New("root", "space")
	tree := NewTree(root)
	child := New("c1", "widget")
	require.NoError(t, root.AddChild(context.Background(), child))

	root.RemoveChild(context.Background(), child)
	root.RemoveChild(context.Background(), child) // idempotent

	assert.Len(t, root.Children(), 0)
	_, ok := tree.Find("c1")
	assert.False(t, ok)
}

func TestElement_MountUnmountEmitUpward(t *testing.T) {
	root := New("root", "space")
	tree := NewTree(root)

	var seenMount, seenUnmount bool
	root.OnAction("element:mount", func(ctx context.Context, e *event.Event) { seenMount = true })
	root.OnAction("element:unmount", func(ctx context.Context, e *event.Event) { seenUnmount = true })

	child := New("c1", "widget")
	require.NoError(t, root.AddChild(context.Background(), child))
	assert.True(t, seenMount)

	root.RemoveChild(context.Background(), child)
	assert.True(t, seenUnmount)

	_ = tree
}

func TestElement_FindLookups(t *testing.T) {
	root := New("root", "space")
	NewTree(root)
	mid := New("mid", "group")
	leaf := New("leaf", "widget")

	require.NoError(t, root.AddChild(context.Background(), mid))
	require.NoError(t, mid.AddChild(context.Background(), leaf))

	_, ok := root.FindChild("leaf")
	assert.False(t, ok, "FindChild only looks at direct children")

	found, ok := root.FindInChildren("leaf")
	require.True(t, ok)
	assert.Equal(t, leaf, found)

	assert.Equal(t, root, leaf.FindSpace())
}

func TestElement_SubscribeAndTopicMatch(t *testing.T) {
	el := New("e1", "widget")
	el.Subscribe("chat:*")
	el.Subscribe("system:error")

	assert.True(t, el.IsSubscribedTo("chat:message"))
	assert.True(t, el.IsSubscribedTo("system:error"))
	assert.False(t, el.IsSubscribedTo("other:thing"))
}

type hookComponent struct {
	calls *[]string
}

func (h hookComponent) Name() string { return "hook" }
func (h hookComponent) OnInit(ctx context.Context) error {
	*h.calls = append(*h.calls, "init")
	return nil
}
func (h hookComponent) OnMount(ctx context.Context) error {
	*h.calls = append(*h.calls, "mount")
	return nil
}
func (h hookComponent) OnRestore(ctx context.Context) error {
	*h.calls = append(*h.calls, "restore")
	return nil
}

func TestElement_AddComponentLifecycleOrder_Mount(t *testing.T) {
	el := New("e1", "widget")
	var calls []string
	require.NoError(t, el.AddComponent(context.Background(), hookComponent{calls: &calls}, false))
	assert.Equal(t, []string{"init", "mount"}, calls)
}

func TestElement_AddComponentLifecycleOrder_Restore(t *testing.T) {
	el := New("e1", "widget")
	var calls []string
	require.NoError(t, el.AddComponent(context.Background(), hookComponent{calls: &calls}, true))
	assert.Equal(t, []string{"init", "restore"}, calls)
}

// recordingPipeline is a fake Pipeline used to verify auto-registration.
type recordingPipeline struct {
	receptors []retm.Receptor
}

func (p *recordingPipeline) RegisterReceptor(r retm.Receptor)   { p.receptors = append(p.receptors, r) }
func (p *recordingPipeline) RegisterTransform(retm.Transform)   {}
func (p *recordingPipeline) RegisterEffector(retm.Effector)     {}
func (p *recordingPipeline) RegisterMaintainer(retm.Maintainer) {}
func (p *recordingPipeline) RegisterModulator(retm.Modulator)   {}

type receptorComponent struct{}

func (receptorComponent) Name() string   { return "recv" }
func (receptorComponent) Topics() []string { return []string{"console:input"} }
func (receptorComponent) Transform(ctx context.Context, e *event.Event, s *veil.ReadonlyState) ([]veil.Delta, error) {
	return nil, nil
}

func TestElement_AddComponentAutoRegistersRETMRole(t *testing.T) {
	root := New("root", "space")
	tree := NewTree(root)
	p := &recordingPipeline{}
	tree.SetPipeline(p)

	require.NoError(t, root.AddComponent(context.Background(), receptorComponent{}, false))
	assert.Len(t, p.receptors, 1)
}

func TestElement_HandleEvent_ActionStopsBeforeComponent(t *testing.T) {
	el := New("e1", "widget")
	var componentCalled bool
	el.OnAction("ping", func(ctx context.Context, e *event.Event) {
		e.StopImmediatePropagation()
	})
	require.NoError(t, el.AddComponent(context.Background(), testHandlerComponent{called: &componentCalled}, false))

	el.HandleEvent(context.Background(), &event.Event{Topic: "ping"})
	assert.False(t, componentCalled)
	assert.Equal(t, el, el.CurrentTarget())
}

type testHandlerComponent struct {
	called *bool
}

func (testHandlerComponent) Name() string { return "handler" }
func (c testHandlerComponent) HandleEvent(ctx context.Context, e *event.Event) {
	*c.called = true
}
