// Package api is the thin per-operation dispatch over the store, registry and
// engine. Every operation returns a uniform Result envelope that the
// transport layer maps to protocol status codes.
package api

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/example/osm-edit-engine/internal/changeset"
	"github.com/example/osm-edit-engine/internal/engine"
	"github.com/example/osm-edit-engine/internal/journal"
	"github.com/example/osm-edit-engine/internal/osm"
	"github.com/example/osm-edit-engine/internal/store"
	"github.com/example/osm-edit-engine/internal/user"
)

// Instance bundles one named editing instance: its store, changeset registry,
// engine, user directory and optional journal.
type Instance struct {
	name     string
	store    *store.Store
	registry *changeset.Registry
	engine   *engine.Engine
	journal  *journal.Journal
	users    *user.Directory
	logger   zerolog.Logger
}

// NewInstance wires an instance together. The journal may be nil.
func NewInstance(name string, s *store.Store, r *changeset.Registry, e *engine.Engine, j *journal.Journal, users *user.Directory, logger zerolog.Logger) *Instance {
	return &Instance{
		name:     name,
		store:    s,
		registry: r,
		engine:   e,
		journal:  j,
		users:    users,
		logger:   logger.With().Str("instance", name).Logger(),
	}
}

// Name returns the instance name used in transport routes.
func (i *Instance) Name() string {
	return i.name
}

// Store exposes the backing store for import and export collaborators.
func (i *Instance) Store() *store.Store {
	return i.store
}

// Engine exposes the diff-apply engine for feed subscriptions.
func (i *Instance) Engine() *engine.Engine {
	return i.engine
}

// Capabilities returns the static capability document.
func (i *Instance) Capabilities() Result[Capabilities] {
	return OK(DefaultCapabilities())
}

// Map returns all elements inside the bounding box plus the one-level
// closure over referencing ways and relations.
func (i *Instance) Map(minLat, minLon, maxLat, maxLon float64) Result[[]*osm.Element] {
	box, err := osm.NewBoundingBox(minLat, minLon, maxLat, maxLon)
	if err != nil {
		return Fail[[]*osm.Element](StatusBadRequest, err.Error())
	}
	if area := (maxLat - minLat) * (maxLon - minLon); area > DefaultCapabilities().MaximumArea {
		return Fail[[]*osm.Element](StatusBadRequest,
			fmt.Sprintf("requested area %.4f exceeds maximum %.2f", area, DefaultCapabilities().MaximumArea))
	}
	return OK(i.store.InBoundingBox(box))
}

// Element returns the latest version of the element, visible or not.
func (i *Instance) Element(t osm.ElementType, id int64) Result[*osm.Element] {
	if !t.Valid() {
		return Fail[*osm.Element](StatusBadRequest, fmt.Sprintf("unknown element type %q", t))
	}
	el, ok := i.store.Get(t, id)
	if !ok {
		return Fail[*osm.Element](StatusNotFound, fmt.Sprintf("%s %d not found", t, id))
	}
	return OK(el)
}

// ElementVersion returns one exact historical version.
func (i *Instance) ElementVersion(t osm.ElementType, id int64, version int32) Result[*osm.Element] {
	if !t.Valid() {
		return Fail[*osm.Element](StatusBadRequest, fmt.Sprintf("unknown element type %q", t))
	}
	el, ok := i.store.GetVersion(t, id, version)
	if !ok {
		return Fail[*osm.Element](StatusNotFound, fmt.Sprintf("%s %d version %d not found", t, id, version))
	}
	return OK(el)
}

// ElementHistory returns every stored version in version order.
func (i *Instance) ElementHistory(t osm.ElementType, id int64) Result[[]*osm.Element] {
	history, ok := i.store.History(t, id)
	if !ok {
		return Fail[[]*osm.Element](StatusNotFound, fmt.Sprintf("%s %d not found", t, id))
	}
	return OK(history)
}

// ElementFull returns the element plus its direct references: a way with its
// nodes, a relation with its member elements.
func (i *Instance) ElementFull(t osm.ElementType, id int64) Result[[]*osm.Element] {
	res := i.Element(t, id)
	if res.IsError() {
		return failAs[*osm.Element, []*osm.Element](res)
	}

	el := res.Data
	out := []*osm.Element{}
	seen := map[osm.Key]struct{}{el.Key(): {}}
	include := func(t osm.ElementType, id int64) {
		key := osm.Key{Type: t, ID: id}
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		if ref, ok := i.store.Get(t, id); ok {
			out = append(out, ref)
		}
	}

	switch t {
	case osm.WayType:
		for _, ref := range el.NodeIDs {
			include(osm.NodeType, ref)
		}
	case osm.RelationType:
		for _, m := range el.Members {
			include(m.Type, m.Ref)
			if m.Type == osm.WayType {
				if w, ok := i.store.Get(osm.WayType, m.Ref); ok {
					for _, ref := range w.NodeIDs {
						include(osm.NodeType, ref)
					}
				}
			}
		}
	}
	out = append(out, el)
	return OK(out)
}

// WaysForNode returns the visible ways that reference the node.
func (i *Instance) WaysForNode(id int64) Result[[]*osm.Element] {
	return OK(i.store.WaysForNode(id))
}

// ElementRelations returns the visible relations that reference the element.
func (i *Instance) ElementRelations(t osm.ElementType, id int64) Result[[]*osm.Element] {
	if !t.Valid() {
		return Fail[[]*osm.Element](StatusBadRequest, fmt.Sprintf("unknown element type %q", t))
	}
	return OK(i.store.RelationsFor(t, id))
}

// CreateChangeset opens a new changeset stamped with the caller's identity.
func (i *Instance) CreateChangeset(cs osm.Changeset, id engine.Identity) Result[int64] {
	cs.UID = id.UID
	cs.User = id.User
	assigned := i.registry.Open(cs)
	i.users.CountChangeset(id.UID)
	return OK(assigned)
}

// Changeset returns the changeset metadata.
func (i *Instance) Changeset(id int64) Result[osm.Changeset] {
	cs, ok := i.registry.Get(id)
	if !ok {
		return Fail[osm.Changeset](StatusNotFound, fmt.Sprintf("changeset %d not found", id))
	}
	return OK(cs)
}

// Changesets returns every known changeset ordered by id.
func (i *Instance) Changesets() Result[[]osm.Changeset] {
	return OK(i.registry.All())
}

// UpdateChangeset overwrites the changeset tags.
func (i *Instance) UpdateChangeset(id int64, tags map[string]string) Result[osm.Changeset] {
	if !i.registry.Update(id, tags) {
		return Fail[osm.Changeset](StatusNotFound, fmt.Sprintf("changeset %d not found", id))
	}
	cs, _ := i.registry.Get(id)
	return OK(cs)
}

// CloseChangeset closes the changeset. Closing an unknown or already-closed
// changeset is not an error; the result data reports whether a transition
// happened.
func (i *Instance) CloseChangeset(id int64) Result[bool] {
	return OK(i.registry.Close(id))
}

// Changes returns the recorded changes of a changeset merged into a single
// batch, for the download operation. Without a journal the recorded set is
// empty.
func (i *Instance) Changes(ctx context.Context, id int64) Result[osm.Change] {
	if _, ok := i.registry.Get(id); !ok {
		return Fail[osm.Change](StatusNotFound, fmt.Sprintf("changeset %d not found", id))
	}

	var merged osm.Change
	if i.journal.Enabled() {
		records, err := i.journal.Changes(ctx, id)
		if err != nil {
			i.logger.Error().Err(err).Int64("changeset", id).Msg("journal read failed")
			return Fail[osm.Change](StatusInternal, "changeset journal unavailable")
		}
		for _, rec := range records {
			merged.Create = append(merged.Create, rec.Change.Create...)
			merged.Modify = append(merged.Modify, rec.Change.Modify...)
			merged.Delete = append(merged.Delete, rec.Change.Delete...)
		}
	}
	return OK(merged)
}

// ApplyChange validates and applies a change batch under an open changeset
// and journals the outcome.
func (i *Instance) ApplyChange(ctx context.Context, changesetID int64, change osm.Change, id engine.Identity) Result[osm.DiffResult] {
	cs, ok := i.registry.Get(changesetID)
	if !ok {
		return Fail[osm.DiffResult](StatusNotFound, fmt.Sprintf("changeset %d not found", changesetID))
	}
	if !cs.Open {
		return Fail[osm.DiffResult](StatusConflict, fmt.Sprintf("changeset %d is closed", changesetID))
	}
	if change.Size() > DefaultCapabilities().MaximumElements {
		return Fail[osm.DiffResult](StatusBadRequest,
			fmt.Sprintf("change of %d elements exceeds maximum %d", change.Size(), DefaultCapabilities().MaximumElements))
	}

	result, err := i.engine.ApplyChangeset(ctx, changesetID, change, id)
	if err != nil {
		if engine.IsValidation(err) {
			return Fail[osm.DiffResult](StatusBadRequest, err.Error())
		}
		i.logger.Error().Err(err).Int64("changeset", changesetID).Msg("apply failed")
		return Fail[osm.DiffResult](StatusInternal, "changeset could not be applied")
	}

	if i.journal.Enabled() {
		rec := journal.Record{ChangesetID: changesetID, UID: id.UID, User: id.User, Change: change, Result: *result}
		if _, err := i.journal.AppendChange(ctx, rec); err != nil {
			i.logger.Error().Err(err).Int64("changeset", changesetID).Msg("journal append failed")
		}
	}
	return OK(*result)
}

// CreateElement wraps a single creation in a one-element batch and returns
// the assigned id.
func (i *Instance) CreateElement(ctx context.Context, changesetID int64, el *osm.Element, id engine.Identity) Result[int64] {
	res := i.ApplyChange(ctx, changesetID, osm.Change{Create: []*osm.Element{el}}, id)
	if res.IsError() {
		return failAs[osm.DiffResult, int64](res)
	}
	entry := res.Data.Entries[0]
	if !entry.OK() {
		return Fail[int64](StatusConflict, entry.Error)
	}
	return OK(*entry.NewID)
}

// UpdateElement applies a single modification and returns the new version.
func (i *Instance) UpdateElement(ctx context.Context, changesetID int64, el *osm.Element, id engine.Identity) Result[int32] {
	res := i.ApplyChange(ctx, changesetID, osm.Change{Modify: []*osm.Element{el}}, id)
	if res.IsError() {
		return failAs[osm.DiffResult, int32](res)
	}
	entry := res.Data.Entries[0]
	if !entry.OK() {
		return Fail[int32](StatusConflict, entry.Error)
	}
	return OK(*entry.NewVersion)
}

// DeleteElement applies a single deletion.
func (i *Instance) DeleteElement(ctx context.Context, changesetID int64, el *osm.Element, id engine.Identity) Result[bool] {
	res := i.ApplyChange(ctx, changesetID, osm.Change{Delete: []*osm.Element{el}}, id)
	if res.IsError() {
		return failAs[osm.DiffResult, bool](res)
	}
	entry := res.Data.Entries[0]
	if !entry.OK() {
		return Fail[bool](StatusConflict, entry.Error)
	}
	return OK(true)
}

// User returns the user with the given id.
func (i *Instance) User(id int64) Result[user.User] {
	u, ok := i.users.Get(id)
	if !ok {
		return Fail[user.User](StatusNotFound, fmt.Sprintf("user %d not found", id))
	}
	return OK(u)
}

// UserByName returns the user with the given display name.
func (i *Instance) UserByName(name string) Result[user.User] {
	u, ok := i.users.GetByName(name)
	if !ok {
		return Fail[user.User](StatusNotFound, fmt.Sprintf("user %q not found", name))
	}
	return OK(u)
}
