package wire

import (
	"encoding/xml"

	"github.com/example/osm-edit-engine/internal/osm"
)

// group is one `<create>`, `<modify>` or `<delete>` block of an osmChange
// document.
type group struct {
	Nodes     []Node     `xml:"node"`
	Ways      []Way      `xml:"way"`
	Relations []Relation `xml:"relation"`
}

func (g group) elements() []*osm.Element {
	out := make([]*osm.Element, 0, len(g.Nodes)+len(g.Ways)+len(g.Relations))
	for _, n := range g.Nodes {
		out = append(out, n.Element())
	}
	for _, w := range g.Ways {
		out = append(out, w.Element())
	}
	for _, r := range g.Relations {
		out = append(out, r.Element())
	}
	return out
}

func groupFrom(elements []*osm.Element) group {
	var g group
	for _, el := range elements {
		switch el.Type {
		case osm.NodeType:
			g.Nodes = append(g.Nodes, nodeFromElement(el))
		case osm.WayType:
			g.Ways = append(g.Ways, wayFromElement(el))
		case osm.RelationType:
			g.Relations = append(g.Relations, relationFromElement(el))
		}
	}
	return g
}

// OsmChange is the `<osmChange>` document carrying a change batch.
type OsmChange struct {
	XMLName   xml.Name `xml:"osmChange"`
	Version   string   `xml:"version,attr"`
	Generator string   `xml:"generator,attr,omitempty"`
	Create    []group  `xml:"create"`
	Modify    []group  `xml:"modify"`
	Delete    []group  `xml:"delete"`
}

// NewOsmChange converts a model batch to its wire form.
func NewOsmChange(change osm.Change) *OsmChange {
	oc := &OsmChange{Version: APIVersion, Generator: Generator}
	if len(change.Create) > 0 {
		oc.Create = []group{groupFrom(change.Create)}
	}
	if len(change.Modify) > 0 {
		oc.Modify = []group{groupFrom(change.Modify)}
	}
	if len(change.Delete) > 0 {
		oc.Delete = []group{groupFrom(change.Delete)}
	}
	return oc
}

// Change flattens the document into a model batch. Multiple blocks of the
// same kind are concatenated in document order.
func (oc *OsmChange) Change() osm.Change {
	var change osm.Change
	for _, g := range oc.Create {
		change.Create = append(change.Create, g.elements()...)
	}
	for _, g := range oc.Modify {
		change.Modify = append(change.Modify, g.elements()...)
	}
	for _, g := range oc.Delete {
		change.Delete = append(change.Delete, g.elements()...)
	}
	return change
}
