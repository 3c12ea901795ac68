// Package wire converts the data model to and from the OSM API v0.6 XML
// schema. The structures map 1:1 onto the documents the emulated protocol
// exchanges.
package wire

import (
	"encoding/xml"
	"time"

	"github.com/example/osm-edit-engine/internal/osm"
)

const (
	// APIVersion is the emulated protocol version.
	APIVersion = "0.6"
	// Generator names this implementation in produced documents.
	Generator = "osm-edit-engine"
)

// Tag is a single `<tag k= v=>` entry.
type Tag struct {
	Key   string `xml:"k,attr"`
	Value string `xml:"v,attr"`
}

// Nd is an ordered `<nd ref=>` way node reference.
type Nd struct {
	Ref int64 `xml:"ref,attr"`
}

// Member is a `<member type= ref= role=>` relation member.
type Member struct {
	Type string `xml:"type,attr"`
	Ref  int64  `xml:"ref,attr"`
	Role string `xml:"role,attr"`
}

// Node is the XML form of a node element.
type Node struct {
	ID        int64      `xml:"id,attr"`
	Version   int32      `xml:"version,attr,omitempty"`
	Visible   bool       `xml:"visible,attr"`
	Changeset int64      `xml:"changeset,attr,omitempty"`
	Timestamp *time.Time `xml:"timestamp,attr,omitempty"`
	UID       int64      `xml:"uid,attr,omitempty"`
	User      string     `xml:"user,attr,omitempty"`
	Lat       float64    `xml:"lat,attr"`
	Lon       float64    `xml:"lon,attr"`
	Tags      []Tag      `xml:"tag"`
}

// Way is the XML form of a way element.
type Way struct {
	ID        int64      `xml:"id,attr"`
	Version   int32      `xml:"version,attr,omitempty"`
	Visible   bool       `xml:"visible,attr"`
	Changeset int64      `xml:"changeset,attr,omitempty"`
	Timestamp *time.Time `xml:"timestamp,attr,omitempty"`
	UID       int64      `xml:"uid,attr,omitempty"`
	User      string     `xml:"user,attr,omitempty"`
	Nds       []Nd       `xml:"nd"`
	Tags      []Tag      `xml:"tag"`
}

// Relation is the XML form of a relation element.
type Relation struct {
	ID        int64      `xml:"id,attr"`
	Version   int32      `xml:"version,attr,omitempty"`
	Visible   bool       `xml:"visible,attr"`
	Changeset int64      `xml:"changeset,attr,omitempty"`
	Timestamp *time.Time `xml:"timestamp,attr,omitempty"`
	UID       int64      `xml:"uid,attr,omitempty"`
	User      string     `xml:"user,attr,omitempty"`
	Members   []Member   `xml:"member"`
	Tags      []Tag      `xml:"tag"`
}

// Changeset is the XML form of changeset metadata.
type Changeset struct {
	ID        int64      `xml:"id,attr,omitempty"`
	Open      bool       `xml:"open,attr"`
	CreatedAt *time.Time `xml:"created_at,attr,omitempty"`
	ClosedAt  *time.Time `xml:"closed_at,attr,omitempty"`
	UID       int64      `xml:"uid,attr,omitempty"`
	User      string     `xml:"user,attr,omitempty"`
	Tags      []Tag      `xml:"tag"`
}

// Osm is the `<osm>` document root.
type Osm struct {
	XMLName    xml.Name    `xml:"osm"`
	Version    string      `xml:"version,attr"`
	Generator  string      `xml:"generator,attr,omitempty"`
	Nodes      []Node      `xml:"node"`
	Ways       []Way       `xml:"way"`
	Relations  []Relation  `xml:"relation"`
	Changesets []Changeset `xml:"changeset"`
}

// NewOsm returns an empty document with version and generator set.
func NewOsm() *Osm {
	return &Osm{Version: APIVersion, Generator: Generator}
}

// Append adds the elements to the document grouped by type.
func (o *Osm) Append(elements ...*osm.Element) {
	for _, el := range elements {
		switch el.Type {
		case osm.NodeType:
			o.Nodes = append(o.Nodes, nodeFromElement(el))
		case osm.WayType:
			o.Ways = append(o.Ways, wayFromElement(el))
		case osm.RelationType:
			o.Relations = append(o.Relations, relationFromElement(el))
		}
	}
}

// AppendChangeset adds changeset metadata to the document.
func (o *Osm) AppendChangeset(cs ...osm.Changeset) {
	for _, c := range cs {
		o.Changesets = append(o.Changesets, changesetFromModel(c))
	}
}

// Elements converts the document contents back to model elements, nodes
// first, then ways, then relations.
func (o *Osm) Elements() []*osm.Element {
	out := make([]*osm.Element, 0, len(o.Nodes)+len(o.Ways)+len(o.Relations))
	for _, n := range o.Nodes {
		out = append(out, n.Element())
	}
	for _, w := range o.Ways {
		out = append(out, w.Element())
	}
	for _, r := range o.Relations {
		out = append(out, r.Element())
	}
	return out
}

// ModelChangesets converts the document changesets to the data model.
func (o *Osm) ModelChangesets() []osm.Changeset {
	out := make([]osm.Changeset, 0, len(o.Changesets))
	for _, c := range o.Changesets {
		out = append(out, c.Model())
	}
	return out
}

func tagsFromMap(m map[string]string) []Tag {
	if len(m) == 0 {
		return nil
	}
	out := make([]Tag, 0, len(m))
	for k, v := range m {
		out = append(out, Tag{Key: k, Value: v})
	}
	return out
}

func tagsToMap(tags []Tag) map[string]string {
	if len(tags) == 0 {
		return nil
	}
	out := make(map[string]string, len(tags))
	for _, t := range tags {
		out[t.Key] = t.Value
	}
	return out
}

func optTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func header(el *osm.Element) (int64, int32, bool, int64, *time.Time, int64, string) {
	return el.ID, el.Version, el.Visible, el.Changeset, optTime(el.Timestamp), el.UID, el.User
}

func nodeFromElement(el *osm.Element) Node {
	id, version, visible, cs, ts, uid, u := header(el)
	return Node{
		ID: id, Version: version, Visible: visible, Changeset: cs,
		Timestamp: ts, UID: uid, User: u,
		Lat: el.Lat, Lon: el.Lon, Tags: tagsFromMap(el.Tags),
	}
}

func wayFromElement(el *osm.Element) Way {
	id, version, visible, cs, ts, uid, u := header(el)
	nds := make([]Nd, 0, len(el.NodeIDs))
	for _, ref := range el.NodeIDs {
		nds = append(nds, Nd{Ref: ref})
	}
	return Way{
		ID: id, Version: version, Visible: visible, Changeset: cs,
		Timestamp: ts, UID: uid, User: u,
		Nds: nds, Tags: tagsFromMap(el.Tags),
	}
}

func relationFromElement(el *osm.Element) Relation {
	id, version, visible, cs, ts, uid, u := header(el)
	members := make([]Member, 0, len(el.Members))
	for _, m := range el.Members {
		members = append(members, Member{Type: string(m.Type), Ref: m.Ref, Role: m.Role})
	}
	return Relation{
		ID: id, Version: version, Visible: visible, Changeset: cs,
		Timestamp: ts, UID: uid, User: u,
		Members: members, Tags: tagsFromMap(el.Tags),
	}
}

func changesetFromModel(cs osm.Changeset) Changeset {
	return Changeset{
		ID: cs.ID, Open: cs.Open, CreatedAt: optTime(cs.CreatedAt), ClosedAt: optTime(cs.ClosedAt),
		UID: cs.UID, User: cs.User, Tags: tagsFromMap(cs.Tags),
	}
}

func elementHeader(t osm.ElementType, id int64, version int32, visible bool, cs int64, ts *time.Time, uid int64, u string) osm.Element {
	el := osm.Element{Type: t, ID: id, Version: version, Visible: visible, Changeset: cs, UID: uid, User: u}
	if ts != nil {
		el.Timestamp = *ts
	}
	return el
}

// Element converts the XML node to the model.
func (n Node) Element() *osm.Element {
	el := elementHeader(osm.NodeType, n.ID, n.Version, n.Visible, n.Changeset, n.Timestamp, n.UID, n.User)
	el.Lat = n.Lat
	el.Lon = n.Lon
	el.Tags = tagsToMap(n.Tags)
	return &el
}

// Element converts the XML way to the model.
func (w Way) Element() *osm.Element {
	el := elementHeader(osm.WayType, w.ID, w.Version, w.Visible, w.Changeset, w.Timestamp, w.UID, w.User)
	for _, nd := range w.Nds {
		el.NodeIDs = append(el.NodeIDs, nd.Ref)
	}
	el.Tags = tagsToMap(w.Tags)
	return &el
}

// Element converts the XML relation to the model.
func (r Relation) Element() *osm.Element {
	el := elementHeader(osm.RelationType, r.ID, r.Version, r.Visible, r.Changeset, r.Timestamp, r.UID, r.User)
	for _, m := range r.Members {
		el.Members = append(el.Members, osm.Member{Type: osm.ElementType(m.Type), Ref: m.Ref, Role: m.Role})
	}
	el.Tags = tagsToMap(r.Tags)
	return &el
}

// Model converts the XML changeset to the model.
func (c Changeset) Model() osm.Changeset {
	cs := osm.Changeset{ID: c.ID, Open: c.Open, UID: c.UID, User: c.User, Tags: tagsToMap(c.Tags)}
	if c.CreatedAt != nil {
		cs.CreatedAt = *c.CreatedAt
	}
	if c.ClosedAt != nil {
		cs.ClosedAt = *c.ClosedAt
	}
	return cs
}
