// Package engine applies change batches to the versioned element store under
// optimistic concurrency control.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/example/osm-edit-engine/internal/osm"
	"github.com/example/osm-edit-engine/internal/store"
)

// Identity is the validated (uid, username) pair stamped on every written
// version. The engine trusts it and never re-derives it.
type Identity struct {
	UID  int64
	User string
}

// AppliedChange describes a successfully processed batch, delivered to
// subscribers for journaling, broadcasting and export accounting.
type AppliedChange struct {
	ChangesetID int64
	Change      osm.Change
	Result      osm.DiffResult
	AppliedAt   time.Time
}

// Listener receives applied changes.
type Listener func(AppliedChange)

// Engine validates incoming change batches against the store and applies
// them. Validation is all-or-nothing; the apply phase is best-effort per
// element: after validation passes, an element that loses a version race to a
// concurrent batch is reported failed in its diff entry while the rest of the
// batch proceeds. The two phases are not atomic relative to other batches.
type Engine struct {
	store  *store.Store
	logger zerolog.Logger

	mu        sync.RWMutex
	listeners []Listener
}

// New constructs an Engine over the given store.
func New(s *store.Store, logger zerolog.Logger) *Engine {
	return &Engine{store: s, logger: logger}
}

// Subscribe registers a listener for applied changes. It returns a function
// to unregister the listener when it is no longer needed.
func (e *Engine) Subscribe(listener Listener) func() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.listeners = append(e.listeners, listener)
	idx := len(e.listeners) - 1
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if idx >= 0 && idx < len(e.listeners) {
			e.listeners = append(e.listeners[:idx], e.listeners[idx+1:]...)
		}
	}
}

func (e *Engine) emit(ac AppliedChange) {
	e.mu.RLock()
	listeners := append([]Listener(nil), e.listeners...)
	e.mu.RUnlock()

	for _, listener := range listeners {
		listener(ac)
	}
}

// ApplyChangeset validates the batch and applies it under the given
// changeset. On validation failure a *ValidationError is returned and the
// store is untouched. Otherwise a DiffResult with one entry per input element
// is returned, in create/modify/delete order matching the input order within
// each group.
func (e *Engine) ApplyChangeset(ctx context.Context, changesetID int64, change osm.Change, id Identity) (*osm.DiffResult, error) {
	ctx, span := tracer.Start(ctx, "engine.ApplyChangeset")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("changeset.id", changesetID),
		attribute.Int("change.size", change.Size()),
	)
	start := time.Now()

	if err := e.validate(change); err != nil {
		validationFailures.Inc()
		return nil, err
	}

	now := time.Now().UTC()
	result := &osm.DiffResult{Entries: make([]osm.DiffEntry, 0, change.Size())}

	// Placeholder remaps are per-type: element ids are only unique within
	// their own type. Built fresh per batch, never persisted.
	remap := map[osm.ElementType]map[int64]int64{
		osm.NodeType:     {},
		osm.WayType:      {},
		osm.RelationType: {},
	}

	for _, el := range change.Create {
		entry := e.applyCreate(el, changesetID, id, now, remap)
		result.Entries = append(result.Entries, entry)
	}
	for _, el := range change.Modify {
		entry := e.applyModify(el, changesetID, id, now, remap)
		result.Entries = append(result.Entries, entry)
	}
	for _, el := range change.Delete {
		entry := e.applyDelete(el)
		result.Entries = append(result.Entries, entry)
	}

	applyLatency.Observe(time.Since(start).Seconds())
	e.logger.Debug().
		Int64("changeset", changesetID).
		Int("elements", change.Size()).
		Msg("changeset applied")

	e.emit(AppliedChange{ChangesetID: changesetID, Change: change, Result: *result, AppliedAt: now})
	return result, nil
}

// validate is the read-only pass over the whole batch. It touches no store
// state and aggregates every failure reason.
func (e *Engine) validate(change osm.Change) error {
	var reasons []string

	for _, el := range change.Create {
		if el == nil {
			continue
		}
		if !el.Type.Valid() {
			reasons = append(reasons, fmt.Sprintf("create with unknown element type %q", el.Type))
			continue
		}
		if el.Version > 1 {
			reasons = append(reasons, fmt.Sprintf("create of %s %d declares version %d", el.Type, el.ID, el.Version))
		}
	}

	checkBase := func(group string, elements []*osm.Element) {
		for _, el := range elements {
			if el == nil {
				continue
			}
			if !el.Type.Valid() {
				reasons = append(reasons, fmt.Sprintf("%s with unknown element type %q", group, el.Type))
				continue
			}
			if el.ID == 0 {
				reasons = append(reasons, fmt.Sprintf("%s of %s without an id", group, el.Type))
				continue
			}
			current, ok := e.store.Get(el.Type, el.ID)
			if !ok {
				reasons = append(reasons, fmt.Sprintf("%s of unknown %s %d", group, el.Type, el.ID))
				continue
			}
			if current.Version != el.Version {
				reasons = append(reasons, fmt.Sprintf("%s of %s %d claims version %d, current is %d",
					group, el.Type, el.ID, el.Version, current.Version))
			}
		}
	}
	checkBase("modify", change.Modify)
	checkBase("delete", change.Delete)

	if len(reasons) > 0 {
		return &ValidationError{Reasons: reasons}
	}
	return nil
}

func (e *Engine) applyCreate(el *osm.Element, changesetID int64, id Identity, now time.Time, remap map[osm.ElementType]map[int64]int64) osm.DiffEntry {
	entry := osm.DiffEntry{Type: el.Type, OldID: el.ID}

	c := el.Copy()
	stamp(c, changesetID, id, now)
	if err := remapRefs(c, remap); err != nil {
		entry.Error = err.Error()
		applyConflicts.WithLabelValues("create").Inc()
		return entry
	}

	newID, newVersion := e.store.ApplyCreate(c)
	if el.ID < 0 {
		remap[el.Type][el.ID] = newID
	}
	entry.NewID = &newID
	entry.NewVersion = &newVersion
	return entry
}

func (e *Engine) applyModify(el *osm.Element, changesetID int64, id Identity, now time.Time, remap map[osm.ElementType]map[int64]int64) osm.DiffEntry {
	entry := osm.DiffEntry{Type: el.Type, OldID: el.ID}

	c := el.Copy()
	stamp(c, changesetID, id, now)
	if err := remapRefs(c, remap); err != nil {
		entry.Error = err.Error()
		applyConflicts.WithLabelValues("modify").Inc()
		return entry
	}

	newVersion, ok := e.store.ApplyModify(c)
	if !ok {
		// Validation passed but a concurrent batch moved the version.
		entry.Error = ErrConflict.Error()
		applyConflicts.WithLabelValues("modify").Inc()
		return entry
	}
	entry.NewID = &c.ID
	entry.NewVersion = &newVersion
	return entry
}

func (e *Engine) applyDelete(el *osm.Element) osm.DiffEntry {
	entry := osm.DiffEntry{Type: el.Type, OldID: el.ID}

	if ok := e.store.ApplyDelete(el.Type, el.ID, el.Version); !ok {
		entry.Error = ErrConflict.Error()
		applyConflicts.WithLabelValues("delete").Inc()
	}
	return entry
}

// stamp overwrites server-owned provenance. Client-supplied values are never
// trusted.
func stamp(el *osm.Element, changesetID int64, id Identity, now time.Time) {
	el.Changeset = changesetID
	el.Timestamp = now
	el.UID = id.UID
	el.User = id.User
	el.Visible = true
}

// remapRefs substitutes placeholder references with the real ids assigned to
// earlier creations in the same batch. A negative reference with no mapping
// is malformed.
func remapRefs(el *osm.Element, remap map[osm.ElementType]map[int64]int64) error {
	switch el.Type {
	case osm.WayType:
		for i, ref := range el.NodeIDs {
			if ref >= 0 {
				continue
			}
			mapped, ok := remap[osm.NodeType][ref]
			if !ok {
				return fmt.Errorf("way %d references unresolved placeholder node %d", el.ID, ref)
			}
			el.NodeIDs[i] = mapped
		}
	case osm.RelationType:
		for i, m := range el.Members {
			if m.Ref >= 0 {
				continue
			}
			mapped, ok := remap[m.Type][m.Ref]
			if !ok {
				return fmt.Errorf("relation %d references unresolved placeholder %s %d", el.ID, m.Type, m.Ref)
			}
			el.Members[i].Ref = mapped
		}
	}
	return nil
}
