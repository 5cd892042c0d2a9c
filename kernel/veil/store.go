package veil

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bits-and-blooms/bloom/v3"

	"github.com/veilspace/kernel/kernel/errs"
	"github.com/veilspace/kernel/kernel/klog"
)

// ChangeKind classifies one entry of a change log.
type ChangeKind string

const (
	ChangeAdded    ChangeKind = "added"
	ChangeRemoved  ChangeKind = "removed"
	ChangeModified ChangeKind = "modified"
)

// FacetChange is one entry of the change log that applyFrame returns;
// it is the sole input Phase 3/4 processors see for a frame.
type FacetChange struct {
	Kind   ChangeKind
	ID     string
	Before *Facet
	After  *Facet
}

// Store is the VEIL state store (component C1): facets, streams,
// agents, frame history and the monotonic sequence counter. The bloom
// filter gives a cheap fast-path negative answer to "have I ever seen
// this facet id" ahead of the authoritative map lookup, the same
// dedup shape as the teacher's gossip `seenFilter`
// (kernel/core/mesh/gossip.go) repurposed from network message
// dedup to facet-id collision probing.
type Store struct {
	mu sync.RWMutex

	lifecycleID string
	sequence    uint64

	facets  map[string]*Facet
	streams map[string]*Stream
	agents  map[string]*Agent

	frameHistory []*Frame

	everSeen *bloom.BloomFilter

	listeners []func([]FacetChange, *Frame)

	log *klog.Logger
}

// New creates an empty store for the given lifecycle.
func New(lifecycleID string) *Store {
	return &Store{
		lifecycleID: lifecycleID,
		facets:      make(map[string]*Facet),
		streams:     make(map[string]*Stream),
		agents:      make(map[string]*Agent),
		everSeen:    newSeenFilter(0),
		log:         klog.For("veil"),
	}
}

// newSeenFilter sizes a bloom filter for roughly expected, falling back
// to a reasonable minimum so a freshly restored lifecycle with few
// facets doesn't start with a filter that is all false positives.
func newSeenFilter(expected int) *bloom.BloomFilter {
	n := uint(expected * 2)
	if n < 1024 {
		n = 1024
	}
	return bloom.NewWithEstimates(n, 0.01)
}

// GetNextSequence atomically pre-increments and returns the sequence
// counter. Sequences are strictly increasing and gap-free within a
// lifecycle (§4.1).
func (s *Store) GetNextSequence() uint64 {
	return atomic.AddUint64(&s.sequence, 1)
}

// CurrentSequence returns the last sequence assigned without advancing it.
func (s *Store) CurrentSequence() uint64 {
	return atomic.LoadUint64(&s.sequence)
}

// SetSequence advances the counter to at least seq. Used by restoration
// after replaying deltas past a snapshot, so the next allocated sequence
// continues after the last replayed one instead of reusing sequences
// the snapshot's own counter would otherwise hand out again.
func (s *Store) SetSequence(seq uint64) {
	for {
		cur := atomic.LoadUint64(&s.sequence)
		if seq <= cur {
			return
		}
		if atomic.CompareAndSwapUint64(&s.sequence, cur, seq) {
			return
		}
	}
}

// FrameUUID computes the deterministic external identity of a sequence
// number: sha256(lifecycleId + ":" + sequence), hex-encoded and
// truncated to 32 characters for readability.
func (s *Store) FrameUUID(sequence uint64) string {
	h := sha256.Sum256([]byte(s.lifecycleID + ":" + strconv.FormatUint(sequence, 10)))
	return hex.EncodeToString(h[:])[:32]
}

// ApplyFrame validates and applies a frame's deltas, appends the frame
// to history, and returns the change log — the sole input to Phase 3/4
// for that frame. A state-invariant violation rejects the whole batch:
// the facet map is left exactly as it was before the call (§4.1, §7
// kind 2).
func (s *Store) ApplyFrame(frame *Frame) ([]FacetChange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applyLocked(frame)
}

// RecordOutgoingFrame applies a frame produced by an agent, exactly as
// ApplyFrame does. The responsible agent id is written to the debug log
// only; it is not stored on the frame or in frame history.
func (s *Store) RecordOutgoingFrame(frame *Frame, agentID string) ([]FacetChange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	changes, err := s.applyLocked(frame)
	if err != nil {
		return nil, err
	}
	s.log.Debug("recorded outgoing frame", klog.String("agent_id", agentID), klog.Uint64("sequence", frame.Sequence))
	return changes, nil
}

func (s *Store) applyLocked(frame *Frame) ([]FacetChange, error) {
	// Validate the whole batch before mutating anything, so a rejected
	// delta never leaves the facet map partially applied. Each delta is
	// checked against the state the earlier deltas of the same batch
	// leave behind (staged: id -> present), so an ordered batch that
	// adds a facet and then changes or removes it validates.
	staged := make(map[string]bool)
	for _, d := range frame.Deltas {
		if err := s.validateLocked(d, staged); err != nil {
			return nil, err
		}
	}

	changes := make([]FacetChange, 0, len(frame.Deltas))
	for _, d := range frame.Deltas {
		change := s.applyDeltaLocked(d)
		changes = append(changes, change)
	}

	s.frameHistory = append(s.frameHistory, frame)
	for _, l := range s.listeners {
		l(changes, frame)
	}
	return changes, nil
}

func (s *Store) validateLocked(d Delta, staged map[string]bool) error {
	switch d.Op {
	case OpAddFacet:
		if d.Facet == nil || d.Facet.ID == "" {
			return errs.New(errs.CodeInvalidDelta, "addFacet requires a facet with an id")
		}
		if present, touched := staged[d.Facet.ID]; touched {
			if present {
				return errs.DuplicateFacet(d.Facet.ID)
			}
		} else if s.everSeen.Test([]byte(d.Facet.ID)) {
			// The bloom filter gives a cheap "definitely never seen"
			// answer; a positive still falls through to the authoritative
			// map check since false positives are expected.
			if _, exists := s.facets[d.Facet.ID]; exists {
				return errs.DuplicateFacet(d.Facet.ID)
			}
		}
		staged[d.Facet.ID] = true
	case OpChangeState, OpRewriteFacet:
		if d.ID == "" {
			return errs.New(errs.CodeInvalidDelta, string(d.Op)+" requires an id")
		}
		present, touched := staged[d.ID]
		if !touched {
			_, present = s.facets[d.ID]
		}
		if !present {
			return errs.UnknownFacet(d.ID, string(d.Op))
		}
	case OpRemoveFacet:
		if d.ID == "" {
			return errs.New(errs.CodeInvalidDelta, "removeFacet requires an id")
		}
		// removeFacet on an absent id is tolerated (idempotent).
		staged[d.ID] = false
	default:
		return errs.New(errs.CodeInvalidDelta, "unknown delta op: "+string(d.Op))
	}
	return nil
}

func (s *Store) applyDeltaLocked(d Delta) FacetChange {
	switch d.Op {
	case OpAddFacet:
		f := d.Facet.Clone()
		s.facets[f.ID] = f
		s.everSeen.Add([]byte(f.ID))
		return FacetChange{Kind: ChangeAdded, ID: f.ID, After: f.Clone()}

	case OpChangeState:
		before := s.facets[d.ID].Clone()
		f := s.facets[d.ID]
		if f.State == nil {
			f.State = make(map[string]any)
		}
		for k, v := range d.Partial {
			f.State[k] = v
		}
		return FacetChange{Kind: ChangeModified, ID: d.ID, Before: before, After: f.Clone()}

	case OpRewriteFacet:
		before := s.facets[d.ID].Clone()
		f := s.facets[d.ID]
		applyPartial(f, d.Partial)
		return FacetChange{Kind: ChangeModified, ID: d.ID, Before: before, After: f.Clone()}

	case OpRemoveFacet:
		before := s.facets[d.ID]
		delete(s.facets, d.ID)
		if before == nil {
			return FacetChange{Kind: ChangeRemoved, ID: d.ID}
		}
		return FacetChange{Kind: ChangeRemoved, ID: d.ID, Before: before.Clone()}
	}
	// unreachable: validateLocked rejects unknown ops first.
	return FacetChange{}
}

// applyPartial merges a rewriteFacet's partial map onto a live facet.
// Recognized top-level keys update the matching field; anything else is
// merged into State for forward-compatibility with open-ended facet
// shapes.
func applyPartial(f *Facet, partial map[string]any) {
	rest := make(map[string]any)
	for k, v := range partial {
		switch k {
		case "content":
			if s, ok := v.(string); ok {
				f.Content = &s
			}
		case "type":
			if s, ok := v.(string); ok {
				f.Type = s
			}
		case "streamId":
			if s, ok := v.(string); ok {
				f.StreamID = s
			}
		case "ephemeral":
			if b, ok := v.(bool); ok {
				f.Ephemeral = b
			}
		case "attributes":
			if m, ok := v.(map[string]any); ok {
				if f.Attributes == nil {
					f.Attributes = make(map[string]any)
				}
				for ak, av := range m {
					f.Attributes[ak] = av
				}
			}
		case "state":
			if m, ok := v.(map[string]any); ok {
				if f.State == nil {
					f.State = make(map[string]any)
				}
				for sk, sv := range m {
					f.State[sk] = sv
				}
			}
		default:
			rest[k] = v
		}
	}
	if len(rest) > 0 {
		if f.State == nil {
			f.State = make(map[string]any)
		}
		for k, v := range rest {
			f.State[k] = v
		}
	}
}

// Subscribe registers a listener invoked with each frame's change log,
// used by the debug surface (C8).
func (s *Store) Subscribe(listener func([]FacetChange, *Frame)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, listener)
}

// FrameHistory returns the full recorded frame history.
func (s *Store) FrameHistory() []*Frame {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Frame, len(s.frameHistory))
	copy(out, s.frameHistory)
	return out
}

// RegisterStream and RegisterAgent seed the stream/agent registries;
// neither is a VEILDelta since streams and agents are host metadata,
// not world content.
func (s *Store) RegisterStream(stream *Stream) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streams[stream.ID] = stream
}

func (s *Store) RegisterAgent(agent *Agent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.agents[agent.ID] = agent
}

// DeleteRecentFrames truncates frame history to sequences <= upTo,
// inclusive, as the first half of the "delete recent frames" recovery
// operation (§7); the caller (persistence) is responsible for the
// matching on-disk truncation and the pre/post snapshot pair.
func (s *Store) DeleteRecentFrames(upTo uint64) []*Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.frameHistory[:0:0]
	var removed []*Frame
	for _, f := range s.frameHistory {
		if f.Sequence <= upTo {
			kept = append(kept, f)
		} else {
			removed = append(removed, f)
		}
	}
	s.frameHistory = kept
	return removed
}

// Now is a seam for deterministic timestamping in tests; production
// code calls it directly, tests may shadow it at the call site via a
// frame-builder helper instead of mutating global state.
func Now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
