// Package space implements the frame engine (component C4): the single
// serial loop that drains the event queue and runs it through the four
// RETM phases against the VEIL store, then fans the result out to the
// element tree and the debug port.
package space

import (
	"context"
	"sync"
	"time"

	"github.com/veilspace/kernel/kernel/debug"
	"github.com/veilspace/kernel/kernel/element"
	"github.com/veilspace/kernel/kernel/errs"
	"github.com/veilspace/kernel/kernel/event"
	"github.com/veilspace/kernel/kernel/idgen"
	"github.com/veilspace/kernel/kernel/klog"
	"github.com/veilspace/kernel/kernel/queue"
	"github.com/veilspace/kernel/kernel/retm"
	"github.com/veilspace/kernel/kernel/veil"
)

// MaxPhase2Iterations bounds the Phase 2 fixed-point loop (§4.4).
const MaxPhase2Iterations = 10

// Space is the frame engine: it owns no state of its own beyond role
// registries and the reentrancy guard, deferring to the tree (C3), the
// store (C1) and the queue (C2) it's built around.
type Space struct {
	mu         sync.Mutex
	processing bool

	tree  *element.Tree
	store *veil.Store
	queue *queue.Queue
	roles *roles
	debug *debug.Port

	ephemeral *EphemeralCleanupTransform

	lifecycleID string
	log         *klog.Logger
}

// New builds a Space over an already-constructed tree, store, queue and
// debug port, and installs itself as the tree's pipeline so components
// attached from here on are auto-discovered for their RETM roles.
func New(lifecycleID string, store *veil.Store, tree *element.Tree, q *queue.Queue, dbg *debug.Port) *Space {
	s := &Space{
		tree:        tree,
		store:       store,
		queue:       q,
		roles:       newRoles(),
		debug:       dbg,
		ephemeral:   NewEphemeralCleanupTransform(),
		lifecycleID: lifecycleID,
		log:         klog.For("space"),
	}
	tree.SetPipeline(s)
	return s
}

// element.Pipeline implementation: Space is the sink every auto-
// discovered component's RETM roles land in.
func (s *Space) RegisterReceptor(r retm.Receptor)     { s.roles.RegisterReceptor(r) }
func (s *Space) RegisterTransform(t retm.Transform)   { s.roles.RegisterTransform(t) }
func (s *Space) RegisterEffector(e retm.Effector)     { s.roles.RegisterEffector(e) }
func (s *Space) RegisterMaintainer(m retm.Maintainer) { s.roles.RegisterMaintainer(m) }
func (s *Space) RegisterModulator(m retm.Modulator)   { s.roles.RegisterModulator(m) }

// Tree, Store and Pending expose the collaborators a host needs to wire
// up bootstrap elements and decide when to tick again.
func (s *Space) Tree() *element.Tree { return s.tree }
func (s *Space) Store() *veil.Store  { return s.store }
func (s *Space) Pending() bool       { return !s.queue.IsEmpty() }

// Enqueue pushes an event onto the priority queue for the next frame.
func (s *Space) Enqueue(e *event.Event) { s.queue.Push(e) }

// ProcessFrame runs one full frame: setup, Phase 1 (receptors), Phase 2
// (transforms, fixed-point), Phase 3 (effectors), Phase 4 (maintainers),
// completion. A reentrant call while a frame is already in flight is a
// no-op that returns nil; the in-flight pass picks up anything queued
// meanwhile on its own next invocation.
func (s *Space) ProcessFrame(ctx context.Context) *veil.Frame {
	s.mu.Lock()
	if s.processing {
		s.mu.Unlock()
		return nil
	}
	s.processing = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.processing = false
		s.mu.Unlock()
	}()

	start := time.Now()
	setupSeq := s.store.GetNextSequence()
	frame := &veil.Frame{
		Sequence:  setupSeq,
		Timestamp: veil.Now(),
		UUID:      s.store.FrameUUID(setupSeq),
	}
	s.debug.NotifyFrameStart(frame)

	events := s.queue.DrainAll()
	frame.Events = events
	s.ephemeral.SetFrameSeq(setupSeq)

	var allChanges []veil.FacetChange
	var allDeltas []veil.Delta
	lastAppliedSeq := setupSeq

	admitted := s.admitPhase1(ctx, frame, events)

	if seq, deltas := s.runPhase1(ctx, admitted); len(deltas) > 0 {
		lastAppliedSeq = s.applyOr(ctx, seq, deltas, &allChanges, &allDeltas, "phase1-error", lastAppliedSeq)
	}

	if seq := s.runPhase2(ctx, &allChanges, &allDeltas); seq > lastAppliedSeq {
		lastAppliedSeq = seq
	}

	// Fixed before Phase 4 runs: the persistence maintainer (itself a
	// Phase-4 maintainer) writes this frame to the delta log as it sees
	// it here, so it must already carry every delta applied so far.
	frame.Sequence = lastAppliedSeq
	frame.Deltas = allDeltas

	s.runPhase3(ctx, allChanges)
	s.runPhase4(ctx, frame, &allChanges, &allDeltas)

	duration := time.Since(start)
	s.debug.NotifyFrameComplete(frame, duration, len(admitted))

	s.tree.Broadcast(ctx, &event.Event{
		Topic:     "frame:end",
		Source:    s.tree.Root().Ref(),
		Payload:   map[string]any{"sequence": frame.Sequence},
		Broadcast: true,
	})

	return frame
}

// admitPhase1 runs the optional modulator over the drained events,
// notifying the debug port of every event that reaches the tree/phase
// pipeline (admitted or not — observability sees the full intake).
func (s *Space) admitPhase1(ctx context.Context, frame *veil.Frame, events []*event.Event) []*event.Event {
	admitted := make([]*event.Event, 0, len(events))
	for _, e := range events {
		s.debug.NotifyFrameEvent(frame, e)
		if s.roles.modulator != nil && !s.roles.modulator.Admit(ctx, e) {
			continue
		}
		admitted = append(admitted, e)
	}
	return admitted
}

// runPhase1 calls every topic-matched receptor against one fixed
// readonlyState snapshot for the whole phase, per §4.4.
func (s *Space) runPhase1(ctx context.Context, admitted []*event.Event) (uint64, []veil.Delta) {
	readonly := s.store.GetState()
	var deltas []veil.Delta
	for _, e := range admitted {
		for _, rec := range s.roles.receptorsFor(e.Topic) {
			d, err := rec.Transform(ctx, e, readonly)
			if err != nil {
				s.capturePhaseError(ctx, "receptor-error", err)
				continue
			}
			deltas = append(deltas, d...)
		}
	}
	if len(deltas) == 0 {
		return 0, nil
	}
	seq := s.store.GetNextSequence()
	return seq, deltas
}

// runPhase2 is the fixed-point loop: each iteration runs every
// registered transform in registration order, then the built-in
// ephemeral cleanup transform last, against a fresh snapshot. It stops
// as soon as an iteration's union of deltas is empty.
func (s *Space) runPhase2(ctx context.Context, allChanges *[]veil.FacetChange, allDeltas *[]veil.Delta) uint64 {
	var lastSeq uint64
	converged := false

	for i := 0; i < MaxPhase2Iterations; i++ {
		iterState := s.store.GetState()
		var iterDeltas []veil.Delta

		for _, t := range s.roles.transforms {
			d, err := t.Process(ctx, iterState)
			if err != nil {
				s.capturePhaseError(ctx, "transform-error", err)
				continue
			}
			iterDeltas = append(iterDeltas, d...)
		}

		ephDeltas, err := s.ephemeral.Process(ctx, iterState)
		if err != nil {
			s.capturePhaseError(ctx, "transform-error", err)
		} else {
			iterDeltas = append(iterDeltas, ephDeltas...)
		}

		if len(iterDeltas) == 0 {
			converged = true
			break
		}

		seq := s.store.GetNextSequence()
		changes, err := s.store.ApplyFrame(&veil.Frame{
			Sequence:  seq,
			Timestamp: veil.Now(),
			UUID:      s.store.FrameUUID(seq),
			Deltas:    iterDeltas,
		})
		if err != nil {
			s.log.Warn("phase 2 sub-frame rejected", klog.Err(err), klog.Uint64("sequence", seq))
			s.emitSystemError(ctx, "phase2-error", err)
			break
		}
		*allChanges = append(*allChanges, changes...)
		*allDeltas = append(*allDeltas, iterDeltas...)
		lastSeq = seq
	}

	if !converged {
		s.log.Warn("phase 2 did not reach a fixed point", klog.Int("iterations", MaxPhase2Iterations))
		s.emitSystemError(ctx, "transform-divergence", errs.TransformDivergence(MaxPhase2Iterations))
	}

	return lastSeq
}

// runPhase3 hands every effector the facet changes its filters admit
// and pushes any returned events onto the queue for the next frame.
func (s *Space) runPhase3(ctx context.Context, allChanges []veil.FacetChange) {
	readonly := s.store.GetState()
	for _, eff := range s.roles.effectors {
		var matched []veil.FacetChange
		filters := eff.FacetFilters()
		for _, c := range allChanges {
			if retm.MatchesAny(filters, c) {
				matched = append(matched, c)
			}
		}
		result, err := eff.Process(ctx, matched, readonly)
		if err != nil {
			s.capturePhaseError(ctx, "effector-error", err)
			continue
		}
		for _, e := range result.Events {
			s.queue.Push(e)
		}
	}
}

// runPhase4 hands every maintainer the whole frame plus its changes, in
// registration order; maintainer errors are reported but never fatal to
// the frame. A maintainer's returned Deltas are applied immediately
// (the frame engine remains the sole caller of ApplyFrame) and folded
// into frame.Sequence/frame.Deltas before the next maintainer runs, so
// a maintainer registered after another (persistence, typically last)
// sees everything prior maintainers committed this tick.
func (s *Space) runPhase4(ctx context.Context, frame *veil.Frame, allChanges *[]veil.FacetChange, allDeltas *[]veil.Delta) {
	readonly := s.store.GetState()
	for _, m := range s.roles.maintainers {
		result, err := m.Process(ctx, frame, *allChanges, readonly)
		if err != nil {
			s.log.Warn("maintainer error, frame continues", klog.Err(err))
			continue
		}
		for _, e := range result.Events {
			s.queue.Push(e)
		}
		if len(result.Deltas) == 0 {
			continue
		}

		seq := s.store.GetNextSequence()
		changes, err := s.store.ApplyFrame(&veil.Frame{
			Sequence:  seq,
			Timestamp: veil.Now(),
			UUID:      s.store.FrameUUID(seq),
			Deltas:    result.Deltas,
		})
		if err != nil {
			s.log.Warn("phase 4 sub-frame rejected", klog.Err(err), klog.Uint64("sequence", seq))
			s.emitSystemError(ctx, "phase4-error", err)
			continue
		}
		*allChanges = append(*allChanges, changes...)
		*allDeltas = append(*allDeltas, result.Deltas...)
		frame.Sequence = seq
		frame.Deltas = *allDeltas
		readonly = s.store.GetState()
	}
}

// applyOr applies a Phase 1 batch (already pre-allocated a sequence by
// the caller) and folds the result into the frame-wide accumulators,
// returning the sequence actually used or the prior one on rejection.
func (s *Space) applyOr(ctx context.Context, seq uint64, deltas []veil.Delta, allChanges *[]veil.FacetChange, allDeltas *[]veil.Delta, errLabel string, prevSeq uint64) uint64 {
	changes, err := s.store.ApplyFrame(&veil.Frame{
		Sequence:  seq,
		Timestamp: veil.Now(),
		UUID:      s.store.FrameUUID(seq),
		Deltas:    deltas,
	})
	if err != nil {
		s.log.Warn("sub-frame rejected", klog.Err(err), klog.Uint64("sequence", seq))
		s.emitSystemError(ctx, errLabel, err)
		return prevSeq
	}
	*allChanges = append(*allChanges, changes...)
	*allDeltas = append(*allDeltas, deltas...)
	return seq
}

// capturePhaseError records a processor fault as an ephemeral
// diagnostic facet and a system:error event (§7 kind 1): the fault is
// captured, the frame continues.
func (s *Space) capturePhaseError(ctx context.Context, kind string, cause error) {
	s.log.Warn("processor fault", klog.String("kind", kind), klog.Err(cause))
	diag := &veil.Facet{
		ID:        "diagnostic:" + idgen.New(),
		Type:      kind,
		State:     map[string]any{"error": cause.Error()},
		Ephemeral: true,
	}
	seq := s.store.GetNextSequence()
	if _, err := s.store.ApplyFrame(&veil.Frame{
		Sequence:  seq,
		Timestamp: veil.Now(),
		UUID:      s.store.FrameUUID(seq),
		Deltas:    []veil.Delta{veil.AddFacet(diag)},
	}); err != nil {
		s.log.Warn("failed to record diagnostic facet", klog.Err(err))
	}
	s.emitSystemError(ctx, kind, cause)
}

func (s *Space) emitSystemError(ctx context.Context, kind string, cause error) {
	s.tree.Broadcast(ctx, &event.Event{
		Topic:     "system:error",
		Source:    s.tree.Root().Ref(),
		Payload:   map[string]any{"kind": kind, "message": cause.Error()},
		Timestamp: time.Now().UnixMilli(),
		Broadcast: true,
	})
}

// RecordOutgoingFrame applies a frame an agent produced out of band
// (e.g. a rendered-context response) and notifies the debug port, the
// §4.8 onOutgoingFrame hook.
func (s *Space) RecordOutgoingFrame(frame *veil.Frame, agentID string) ([]veil.FacetChange, error) {
	changes, err := s.store.RecordOutgoingFrame(frame, agentID)
	if err != nil {
		return nil, err
	}
	s.debug.NotifyOutgoingFrame(frame)
	return changes, nil
}
