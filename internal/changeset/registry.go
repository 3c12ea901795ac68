// Package changeset tracks open changesets and assigns changeset ids.
package changeset

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/example/osm-edit-engine/internal/osm"
)

// Registry assigns strictly increasing changeset ids starting at 1 and keeps
// metadata for every changeset ever opened. Changesets are never deleted,
// only closed.
type Registry struct {
	nextID atomic.Int64

	mu         sync.RWMutex
	changesets map[int64]*osm.Changeset
}

// NewRegistry creates an empty registry with the id counter at 1.
func NewRegistry() *Registry {
	r := &Registry{changesets: make(map[int64]*osm.Changeset)}
	r.nextID.Store(1)
	return r
}

// FastForward advances the id counter past the given id so ids assigned
// after a journal replay never collide with replayed ones.
func (r *Registry) FastForward(id int64) {
	for {
		cur := r.nextID.Load()
		if cur > id {
			return
		}
		if r.nextID.CompareAndSwap(cur, id+1) {
			return
		}
	}
}

// Restore re-inserts a recovered changeset under its original id, closed,
// and advances the id counter past it. Used when rebuilding state from the
// journal; an already known id is left untouched.
func (r *Registry) Restore(cs osm.Changeset) bool {
	cs.Open = false

	r.mu.Lock()
	_, exists := r.changesets[cs.ID]
	if !exists {
		r.changesets[cs.ID] = &cs
	}
	r.mu.Unlock()

	r.FastForward(cs.ID)
	return !exists
}

// Open stores the changeset as open and returns its assigned id. Concurrent
// opens never hand out the same id.
func (r *Registry) Open(cs osm.Changeset) int64 {
	id := r.nextID.Add(1) - 1

	cs.ID = id
	cs.Open = true
	if cs.CreatedAt.IsZero() {
		cs.CreatedAt = time.Now().UTC()
	}

	r.mu.Lock()
	r.changesets[id] = &cs
	r.mu.Unlock()

	openChangesets.Inc()
	return id
}

// Close marks the changeset closed. It returns true only when the changeset
// existed and was open; closing again is a harmless no-op reported as false.
func (r *Registry) Close(id int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	cs, ok := r.changesets[id]
	if !ok || !cs.Open {
		return false
	}
	cs.Open = false
	cs.ClosedAt = time.Now().UTC()
	openChangesets.Dec()
	return true
}

// Get returns a copy of the changeset metadata.
func (r *Registry) Get(id int64) (osm.Changeset, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cs, ok := r.changesets[id]
	if !ok {
		return osm.Changeset{}, false
	}
	return *cs, true
}

// IsOpen reports whether the changeset exists and is open.
func (r *Registry) IsOpen(id int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cs, ok := r.changesets[id]
	return ok && cs.Open
}

// Update overwrites the changeset's tags, keeping id and lifecycle fields.
func (r *Registry) Update(id int64, tags map[string]string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	cs, ok := r.changesets[id]
	if !ok {
		return false
	}
	cs.Tags = make(map[string]string, len(tags))
	for k, v := range tags {
		cs.Tags[k] = v
	}
	return true
}

// All returns every known changeset ordered by id. Used by the changeset
// query operation.
func (r *Registry) All() []osm.Changeset {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]osm.Changeset, 0, len(r.changesets))
	for _, cs := range r.changesets {
		out = append(out, *cs)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Clear resets the registry, including the id counter. Mainly for tests.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.changesets = make(map[int64]*osm.Changeset)
	r.nextID.Store(1)
	openChangesets.Set(0)
}
