// Package osm contains the shared data model for the versioned editing API:
// elements (nodes, ways, relations), changesets, change batches and diff
// results.
package osm

import (
	"time"
)

// ElementType tags the three element variants.
type ElementType string

const (
	NodeType     ElementType = "node"
	WayType      ElementType = "way"
	RelationType ElementType = "relation"
)

// Types lists the element types in canonical order.
var Types = []ElementType{NodeType, WayType, RelationType}

// Valid reports whether t is one of the three known element types.
func (t ElementType) Valid() bool {
	switch t {
	case NodeType, WayType, RelationType:
		return true
	}
	return false
}

// Member is a single entry in a relation's ordered member list.
type Member struct {
	Type ElementType `json:"type"`
	Ref  int64       `json:"ref"`
	Role string      `json:"role,omitempty"`
}

// Element is the tagged union over nodes, ways and relations. The header
// fields are shared; exactly one variant payload is meaningful, selected by
// Type. Negative ids are batch-local placeholders and are never stored.
type Element struct {
	Type      ElementType       `json:"type"`
	ID        int64             `json:"id"`
	Version   int32             `json:"version,omitempty"`
	Visible   bool              `json:"visible"`
	Changeset int64             `json:"changeset,omitempty"`
	Timestamp time.Time         `json:"timestamp,omitempty"`
	UID       int64             `json:"uid,omitempty"`
	User      string            `json:"user,omitempty"`
	Tags      map[string]string `json:"tags,omitempty"`

	// Node payload.
	Lat float64 `json:"lat,omitempty"`
	Lon float64 `json:"lon,omitempty"`

	// Way payload, order significant.
	NodeIDs []int64 `json:"nodes,omitempty"`

	// Relation payload, order significant.
	Members []Member `json:"members,omitempty"`
}

// Key identifies the latest version of an element.
type Key struct {
	Type ElementType
	ID   int64
}

// Key returns the (type, id) key of the element.
func (e *Element) Key() Key {
	return Key{Type: e.Type, ID: e.ID}
}

// Copy returns a deep copy so stored versions are never aliased by callers.
func (e *Element) Copy() *Element {
	c := *e
	if e.Tags != nil {
		c.Tags = make(map[string]string, len(e.Tags))
		for k, v := range e.Tags {
			c.Tags[k] = v
		}
	}
	if e.NodeIDs != nil {
		c.NodeIDs = append([]int64(nil), e.NodeIDs...)
	}
	if e.Members != nil {
		c.Members = append([]Member(nil), e.Members...)
	}
	return &c
}

// Changeset is the batch boundary under which element versions are committed.
// Ids are assigned by the registry, strictly increasing from 1.
type Changeset struct {
	ID        int64             `json:"id"`
	Open      bool              `json:"open"`
	CreatedAt time.Time         `json:"created_at"`
	ClosedAt  time.Time         `json:"closed_at,omitempty"`
	UID       int64             `json:"uid,omitempty"`
	User      string            `json:"user,omitempty"`
	Tags      map[string]string `json:"tags,omitempty"`
}

// Change is an incoming change batch. Empty groups are legal no-ops.
type Change struct {
	Create []*Element `json:"create,omitempty"`
	Modify []*Element `json:"modify,omitempty"`
	Delete []*Element `json:"delete,omitempty"`
}

// Empty reports whether the batch carries no elements at all.
func (c *Change) Empty() bool {
	return c == nil || len(c.Create)+len(c.Modify)+len(c.Delete) == 0
}

// Size returns the total number of elements in the batch.
func (c *Change) Size() int {
	if c == nil {
		return 0
	}
	return len(c.Create) + len(c.Modify) + len(c.Delete)
}

// DiffEntry is the per-element outcome of an applied change. OldID is the
// client-supplied (possibly placeholder) id. NewID and NewVersion are set on
// successful creates and modifies; deletions report neither. Error is set when
// the apply phase skipped the element.
type DiffEntry struct {
	Type       ElementType `json:"type"`
	OldID      int64       `json:"old_id"`
	NewID      *int64      `json:"new_id,omitempty"`
	NewVersion *int32      `json:"new_version,omitempty"`
	Error      string      `json:"error,omitempty"`
}

// OK reports whether the element was applied.
func (d DiffEntry) OK() bool {
	return d.Error == ""
}

// DiffResult is the ordered list of per-element outcomes, one per input
// element, creates first, then modifies, then deletes.
type DiffResult struct {
	Entries []DiffEntry `json:"entries"`
}
