package veil

// ReadonlyState is a cheap, borrowed, snapshot-consistent view of the
// store passed to every RETM processor within one phase iteration. All
// processors called during the same phase iteration observe a bitwise
// identical snapshot (§8's snapshot-consistency invariant); the store
// takes a fresh snapshot once per phase iteration, never mid-phase.
type ReadonlyState struct {
	sequence uint64
	facets   map[string]*Facet
	streams  map[string]*Stream
	agents   map[string]*Agent
}

// GetState returns a fresh, read-only snapshot of the store for the
// pipeline to hand to the processors of the current phase iteration.
func (s *Store) GetState() *ReadonlyState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	facets := make(map[string]*Facet, len(s.facets))
	for id, f := range s.facets {
		facets[id] = f.Clone()
	}
	streams := make(map[string]*Stream, len(s.streams))
	for id, st := range s.streams {
		streams[id] = st
	}
	agents := make(map[string]*Agent, len(s.agents))
	for id, a := range s.agents {
		agents[id] = a
	}

	return &ReadonlyState{
		sequence: s.sequence,
		facets:   facets,
		streams:  streams,
		agents:   agents,
	}
}

func (rs *ReadonlyState) Sequence() uint64 { return rs.sequence }

func (rs *ReadonlyState) Facet(id string) (*Facet, bool) {
	f, ok := rs.facets[id]
	return f, ok
}

func (rs *ReadonlyState) AllFacets() []*Facet {
	out := make([]*Facet, 0, len(rs.facets))
	for _, f := range rs.facets {
		out = append(out, f)
	}
	return out
}

func (rs *ReadonlyState) FacetsByType(t string) []*Facet {
	var out []*Facet
	for _, f := range rs.facets {
		if f.Type == t {
			out = append(out, f)
		}
	}
	return out
}

func (rs *ReadonlyState) Stream(id string) (*Stream, bool) {
	st, ok := rs.streams[id]
	return st, ok
}

func (rs *ReadonlyState) Agent(id string) (*Agent, bool) {
	a, ok := rs.agents[id]
	return a, ok
}

// RestoredState is the shape restoration hands to SetState/RebuildStateCache.
type RestoredState struct {
	LifecycleID  string
	Sequence     uint64
	Facets       map[string]*Facet
	Streams      map[string]*Stream
	Agents       map[string]*Agent
	FrameHistory []*Frame
}

// SetState installs a restored state wholesale. Used only by restoration
// (§4.7): never by ordinary frame processing.
func (s *Store) SetState(rs RestoredState) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lifecycleID = rs.LifecycleID
	s.sequence = rs.Sequence
	s.facets = rs.Facets
	if s.facets == nil {
		s.facets = make(map[string]*Facet)
	}
	s.streams = rs.Streams
	if s.streams == nil {
		s.streams = make(map[string]*Stream)
	}
	s.agents = rs.Agents
	if s.agents == nil {
		s.agents = make(map[string]*Agent)
	}
	s.frameHistory = rs.FrameHistory
	s.rebuildStateCacheLocked()
}

// RebuildStateCache recomputes derived indices (currently just the bloom
// filter) from the live facet map. Exposed standalone so restoration can
// call it again after materializing additional element-tree facets.
func (s *Store) RebuildStateCache() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rebuildStateCacheLocked()
}

func (s *Store) rebuildStateCacheLocked() {
	s.everSeen = newSeenFilter(len(s.facets))
	for id := range s.facets {
		s.everSeen.Add([]byte(id))
	}
}
