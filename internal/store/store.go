// Package store holds the versioned in-memory element store. It is the sole
// owner of persisted element versions; the diff-apply engine mutates it only
// through the Apply* methods.
package store

import (
	"sort"
	"sync"
	"time"

	"github.com/example/osm-edit-engine/internal/osm"
)

// record keeps every version ever written for one (type, id), plus the
// current (highest) version number. Versions written through the engine form
// a contiguous 1..N sequence; verbatim adds may seed sparse histories.
type record struct {
	versions map[int32]*osm.Element
	current  int32
}

// Store is a concurrency-safe versioned element store. The optimistic version
// check-and-increment in ApplyModify/ApplyDelete is atomic per store: two
// concurrent writers claiming the same base version cannot both succeed.
type Store struct {
	mu       sync.RWMutex
	elements map[osm.ElementType]map[int64]*record
	nextID   map[osm.ElementType]int64
}

// New creates an empty store.
func New() *Store {
	s := &Store{}
	s.reset()
	return s
}

func (s *Store) reset() {
	s.elements = map[osm.ElementType]map[int64]*record{
		osm.NodeType:     {},
		osm.WayType:      {},
		osm.RelationType: {},
	}
	s.nextID = map[osm.ElementType]int64{
		osm.NodeType:     1,
		osm.WayType:      1,
		osm.RelationType: 1,
	}
}

// Clear resets the store to empty, including id allocation.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
	updateElementGauges(s.elements)
}

// Get returns the latest version of the element, visible or not.
func (s *Store) Get(t osm.ElementType, id int64) (*osm.Element, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.elements[t][id]
	if !ok {
		return nil, false
	}
	return rec.versions[rec.current].Copy(), true
}

// GetVersion returns the exact historical version of the element.
func (s *Store) GetVersion(t osm.ElementType, id int64, version int32) (*osm.Element, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.elements[t][id]
	if !ok {
		return nil, false
	}
	e, ok := rec.versions[version]
	if !ok {
		return nil, false
	}
	return e.Copy(), true
}

// History returns all stored versions of the element in version order.
func (s *Store) History(t osm.ElementType, id int64) ([]*osm.Element, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.elements[t][id]
	if !ok {
		return nil, false
	}
	out := make([]*osm.Element, 0, len(rec.versions))
	for _, e := range rec.versions {
		out = append(out, e.Copy())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, true
}

// Add inserts the given elements exactly as given, bypassing the versioning
// engine. Used for seeding and bulk import.
func (s *Store) Add(elements ...*osm.Element) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range elements {
		if e == nil || !e.Type.Valid() {
			continue
		}
		c := e.Copy()
		if c.Version < 1 {
			c.Version = 1
		}
		rec, ok := s.elements[c.Type][c.ID]
		if !ok {
			rec = &record{versions: make(map[int32]*osm.Element)}
			s.elements[c.Type][c.ID] = rec
		}
		rec.versions[c.Version] = c
		if c.Version > rec.current {
			rec.current = c.Version
		}
		if c.ID >= s.nextID[c.Type] {
			s.nextID[c.Type] = c.ID + 1
		}
	}
	updateElementGauges(s.elements)
}

// ApplyCreate assigns the next unused positive id for the element's type,
// stores it at version 1 and returns the assigned id.
func (s *Store) ApplyCreate(e *osm.Element) (int64, int32) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := e.Copy()
	c.ID = s.nextID[c.Type]
	s.nextID[c.Type]++
	c.Version = 1
	c.Visible = true

	s.elements[c.Type][c.ID] = &record{
		versions: map[int32]*osm.Element{1: c},
		current:  1,
	}
	updateElementGauges(s.elements)
	return c.ID, 1
}

// ApplyModify stores a new version of the element when the claimed base
// version matches the current version. The mismatch is reported as a result,
// not an error, so the engine can aggregate validation outcomes.
func (s *Store) ApplyModify(e *osm.Element) (int32, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.elements[e.Type][e.ID]
	if !ok || rec.current != e.Version {
		return 0, false
	}
	c := e.Copy()
	c.Version = rec.current + 1
	rec.versions[c.Version] = c
	rec.current = c.Version
	return c.Version, true
}

// ApplyDelete soft-deletes the element by writing a new invisible version,
// subject to the same optimistic version check as ApplyModify. History is
// retained.
func (s *Store) ApplyDelete(t osm.ElementType, id int64, claimedVersion int32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.elements[t][id]
	if !ok || rec.current != claimedVersion {
		return false
	}
	c := rec.versions[rec.current].Copy()
	c.Version = rec.current + 1
	c.Visible = false
	rec.versions[c.Version] = c
	rec.current = c.Version
	return true
}

// Snapshot returns the latest version of every element, in type then id
// order. When visibleOnly is set, soft-deleted elements are omitted.
func (s *Store) Snapshot(visibleOnly bool) []*osm.Element {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*osm.Element
	for _, t := range osm.Types {
		ids := make([]int64, 0, len(s.elements[t]))
		for id := range s.elements[t] {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		for _, id := range ids {
			rec := s.elements[t][id]
			e := rec.versions[rec.current]
			if visibleOnly && !e.Visible {
				continue
			}
			out = append(out, e.Copy())
		}
	}
	return out
}

// Len returns the number of distinct elements of the given type.
func (s *Store) Len(t osm.ElementType) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.elements[t])
}

// InBoundingBox returns the latest visible version of every node in the box,
// every way referencing at least one such node plus all nodes those ways
// reference, and every relation referencing any included node or way. The
// closure is one level only: a relation referencing only another qualifying
// relation is not included.
func (s *Store) InBoundingBox(box osm.BoundingBox) []*osm.Element {
	start := time.Now()
	s.mu.RLock()
	defer func() {
		s.mu.RUnlock()
		bboxQueryLatency.Observe(time.Since(start).Seconds())
	}()

	nodesInBox := make(map[int64]struct{})
	nodesToInclude := make(map[int64]struct{})
	waysToInclude := make(map[int64]struct{})
	relationsToInclude := make(map[int64]struct{})

	for id, rec := range s.elements[osm.NodeType] {
		n := rec.versions[rec.current]
		if n.Visible && box.Contains(n.Lat, n.Lon) {
			nodesInBox[id] = struct{}{}
		}
	}

	for id, rec := range s.elements[osm.WayType] {
		w := rec.versions[rec.current]
		if !w.Visible {
			continue
		}
		for _, ref := range w.NodeIDs {
			if _, ok := nodesInBox[ref]; !ok {
				continue
			}
			waysToInclude[id] = struct{}{}
			for _, all := range w.NodeIDs {
				nodesToInclude[all] = struct{}{}
			}
			break
		}
	}

	for id, rec := range s.elements[osm.RelationType] {
		r := rec.versions[rec.current]
		if !r.Visible {
			continue
		}
		for _, m := range r.Members {
			found := false
			switch m.Type {
			case osm.NodeType:
				if _, ok := nodesInBox[m.Ref]; ok {
					found = true
				}
				if _, ok := nodesToInclude[m.Ref]; ok {
					found = true
				}
			case osm.WayType:
				if _, ok := waysToInclude[m.Ref]; ok {
					found = true
				}
			}
			if found {
				relationsToInclude[id] = struct{}{}
				break
			}
		}
	}

	var out []*osm.Element
	appendSorted := func(t osm.ElementType, include func(int64) bool) {
		ids := make([]int64, 0)
		for id := range s.elements[t] {
			if include(id) {
				ids = append(ids, id)
			}
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		for _, id := range ids {
			rec := s.elements[t][id]
			out = append(out, rec.versions[rec.current].Copy())
		}
	}

	appendSorted(osm.NodeType, func(id int64) bool {
		_, a := nodesInBox[id]
		_, b := nodesToInclude[id]
		return a || b
	})
	appendSorted(osm.WayType, func(id int64) bool {
		_, ok := waysToInclude[id]
		return ok
	})
	appendSorted(osm.RelationType, func(id int64) bool {
		_, ok := relationsToInclude[id]
		return ok
	})
	return out
}

// WaysForNode returns the latest visible ways that reference the node.
func (s *Store) WaysForNode(nodeID int64) []*osm.Element {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*osm.Element
	for _, rec := range s.elements[osm.WayType] {
		w := rec.versions[rec.current]
		if !w.Visible {
			continue
		}
		for _, ref := range w.NodeIDs {
			if ref == nodeID {
				out = append(out, w.Copy())
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// RelationsFor returns the latest visible relations that reference the given
// element as a member.
func (s *Store) RelationsFor(t osm.ElementType, id int64) []*osm.Element {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*osm.Element
	for _, rec := range s.elements[osm.RelationType] {
		r := rec.versions[rec.current]
		if !r.Visible {
			continue
		}
		for _, m := range r.Members {
			if m.Type == t && m.Ref == id {
				out = append(out, r.Copy())
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
